package query

// Archived project filters.
const (
	ArchivedInclude = "include"
	ArchivedOnly    = "only"
	ArchivedExclude = "exclude"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Color modes.
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

// ScopeBlobs is the default search scope (file contents).
const ScopeBlobs = "blobs"

// Command is everything parsed from a gitlab-search command line.
type Command struct {
	// Where to search.
	Groups     []string
	Projects   []string
	User       string
	MyProjects bool
	Recursive  bool

	// Exclusions introduced by "!" or "-not" in front of -g/-p/-f/-e/-P.
	ExcludeGroups     []string
	ExcludeProjects   []string
	ExcludeFilenames  []string
	ExcludeExtensions []string
	ExcludePaths      []string

	// What to search for. Expr is nil when no -q was given.
	Expr      Expr
	Scopes    []string
	Filename  string
	Extension string
	Path      string
	Archived  string

	// Connection. Zero values mean "not given on the command line".
	APIURL      string
	IgnoreCert  bool
	MaxRequests int
	Token       string
	TokenFile   string
	ConfigFile  string
	Cache       string
	NoCache     bool

	// Presentation.
	Color       string
	Format      string
	Debug       bool
	MetricsFile string

	// Setup mode.
	Setup bool
	Dir   string
}

// NewCommand returns a Command with defaults applied.
func NewCommand() *Command {
	return &Command{
		Scopes:   []string{ScopeBlobs},
		Archived: ArchivedInclude,
		Color:    ColorAuto,
		Format:   FormatText,
		Dir:      ".",
	}
}

// Terms returns the distinct search terms of the expression.
func (c *Command) Terms() []string {
	return UniqueTerms(c.Expr)
}

// HasScopeDefinition reports whether groups, projects, a user or membership
// projects were named explicitly.
func (c *Command) HasScopeDefinition() bool {
	return len(c.Groups) > 0 || len(c.Projects) > 0 || c.User != "" || c.MyProjects
}
