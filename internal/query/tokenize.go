package query

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrSyntax matches every command line error via errors.Is.
	ErrSyntax = errors.New("syntax error")
	// ErrHelp is returned when -h or --help is present.
	ErrHelp = errors.New("help requested")
	// ErrVersion is returned when -V or --version is present.
	ErrVersion = errors.New("version requested")
)

// Kind identifies an expression token.
type Kind int

const (
	EOF Kind = iota
	QUERY
	AND
	OR
	NOT
	LPAREN
	RPAREN
)

var kindNames = map[Kind]string{
	EOF:    "EOF",
	QUERY:  "QUERY",
	AND:    "AND",
	OR:     "OR",
	NOT:    "NOT",
	LPAREN: "LPAREN",
	RPAREN: "RPAREN",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// Token is an expression token. Value is set for QUERY only.
type Token struct {
	Kind  Kind
	Value string
}

type lexer struct {
	args   []string
	pos    int
	tokens []Token
	cmd    *Command
}

// SyntaxError is a malformed command line. Its message is shown as is.
type SyntaxError struct {
	Msg string
}

func (e *SyntaxError) Error() string { return e.Msg }

func (e *SyntaxError) Is(target error) bool { return target == ErrSyntax }

func syntaxErr(format string, args ...any) error {
	return &SyntaxError{Msg: fmt.Sprintf(format, args...)}
}

// value consumes the argument following the current option.
func (l *lexer) value(what string) (string, error) {
	opt := l.args[l.pos]
	l.pos++
	if l.pos >= len(l.args) {
		return "", syntaxErr("%s requires %s argument", opt, what)
	}
	return l.args[l.pos], nil
}

// negated pops a NOT token that directly precedes the current option, which
// turns the option into an exclusion.
func (l *lexer) negated() bool {
	n := len(l.tokens)
	if n > 0 && l.tokens[n-1].Kind == NOT && l.pos > 0 && isNot(l.args[l.pos-1]) {
		l.tokens = l.tokens[:n-1]
		return true
	}
	return false
}

func isNot(arg string) bool { return arg == "-not" || arg == "!" }

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func oneOf(opt, v string, allowed ...string) error {
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}
	return syntaxErr("%s must be one of: %s", opt, strings.Join(allowed, ", "))
}

// Tokenize separates expression tokens (-q, -a, -o, -not, !, parentheses)
// from options. The returned token list always ends with EOF.
func Tokenize(args []string) ([]Token, *Command, error) {
	l := &lexer{args: args, cmd: NewCommand()}
	for ; l.pos < len(l.args); l.pos++ {
		if err := l.step(); err != nil {
			return nil, nil, err
		}
	}
	l.tokens = append(l.tokens, Token{Kind: EOF})
	return l.tokens, l.cmd, nil
}

func (l *lexer) step() error {
	c := l.cmd
	arg := l.args[l.pos]
	switch arg {
	case "-q":
		v, err := l.value("a query")
		if err != nil {
			return err
		}
		l.tokens = append(l.tokens, Token{Kind: QUERY, Value: v})
	case "-a":
		l.tokens = append(l.tokens, Token{Kind: AND})
	case "-o":
		l.tokens = append(l.tokens, Token{Kind: OR})
	case "-not", "!":
		l.tokens = append(l.tokens, Token{Kind: NOT})
	case "(":
		l.tokens = append(l.tokens, Token{Kind: LPAREN})
	case ")":
		l.tokens = append(l.tokens, Token{Kind: RPAREN})

	case "-g", "--groups":
		exclude := l.negated()
		v, err := l.value("a group")
		if err != nil {
			return err
		}
		if exclude {
			c.ExcludeGroups = append(c.ExcludeGroups, splitList(v)...)
		} else {
			c.Groups = append(c.Groups, splitList(v)...)
		}
	case "-p", "--projects":
		exclude := l.negated()
		v, err := l.value("a project")
		if err != nil {
			return err
		}
		if exclude {
			c.ExcludeProjects = append(c.ExcludeProjects, splitList(v)...)
		} else {
			c.Projects = append(c.Projects, splitList(v)...)
		}
	case "-f", "--filename":
		exclude := l.negated()
		v, err := l.value("a filename")
		if err != nil {
			return err
		}
		if exclude {
			c.ExcludeFilenames = append(c.ExcludeFilenames, v)
		} else {
			c.Filename = v
		}
	case "-e", "--extension":
		exclude := l.negated()
		v, err := l.value("an extension")
		if err != nil {
			return err
		}
		if exclude {
			c.ExcludeExtensions = append(c.ExcludeExtensions, v)
		} else {
			c.Extension = v
		}
	case "-P", "--path":
		exclude := l.negated()
		v, err := l.value("a path")
		if err != nil {
			return err
		}
		if exclude {
			c.ExcludePaths = append(c.ExcludePaths, v)
		} else {
			c.Path = v
		}

	case "-u", "--user":
		v, err := l.value("a user")
		if err != nil {
			return err
		}
		c.User = v
	case "--my-projects":
		c.MyProjects = true
	case "-r", "--recursive":
		c.Recursive = true
	case "-s", "--scope":
		v, err := l.value("a scope")
		if err != nil {
			return err
		}
		c.Scopes = splitList(v)
		if len(c.Scopes) == 0 {
			return syntaxErr("%s requires at least one scope", arg)
		}
	case "--archived":
		v, err := l.value("an")
		if err != nil {
			return err
		}
		if err := oneOf(arg, v, ArchivedInclude, ArchivedOnly, ArchivedExclude); err != nil {
			return err
		}
		c.Archived = v

	case "--api-url":
		v, err := l.value("a URL")
		if err != nil {
			return err
		}
		c.APIURL = v
	case "--ignore-cert":
		c.IgnoreCert = true
	case "--max-requests":
		v, err := l.value("a number")
		if err != nil {
			return err
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return syntaxErr("%s requires an integer", arg)
		}
		if n < 1 {
			return syntaxErr("%s must be at least 1", arg)
		}
		c.MaxRequests = n
	case "--token":
		v, err := l.value("a token")
		if err != nil {
			return err
		}
		c.Token = v
	case "--token-file":
		v, err := l.value("a file")
		if err != nil {
			return err
		}
		c.TokenFile = v
	case "-C", "--config":
		v, err := l.value("a file")
		if err != nil {
			return err
		}
		c.ConfigFile = v
	case "--cache":
		v, err := l.value("a backend")
		if err != nil {
			return err
		}
		if err := oneOf(arg, v, "none", "sqlite", "redis"); err != nil {
			return err
		}
		c.Cache = v
	case "--no-cache":
		c.NoCache = true

	case "--color":
		v, err := l.value("an")
		if err != nil {
			return err
		}
		if err := oneOf(arg, v, ColorAuto, ColorAlways, ColorNever); err != nil {
			return err
		}
		c.Color = v
	case "--format":
		v, err := l.value("a format")
		if err != nil {
			return err
		}
		if err := oneOf(arg, v, FormatText, FormatJSON, FormatYAML); err != nil {
			return err
		}
		c.Format = v
	case "--debug":
		c.Debug = true
	case "--metrics-file":
		v, err := l.value("a file")
		if err != nil {
			return err
		}
		c.MetricsFile = v

	case "--setup":
		c.Setup = true
	case "--dir":
		v, err := l.value("a directory")
		if err != nil {
			return err
		}
		c.Dir = v

	case "-V", "--version":
		return ErrVersion
	case "-h", "--help":
		return ErrHelp

	default:
		if strings.HasPrefix(arg, "-") {
			return syntaxErr("Unknown option: %s", arg)
		}
		return syntaxErr("Unknown argument: %s", arg)
	}
	return nil
}
