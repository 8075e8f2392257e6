package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

const usage = `Usage:
  gitlab-search [options] EXPRESSION
  gitlab-search setup [flags]
  gitlab-search config show
  gitlab-search version

Search GitLab code, files, issues, merge requests, milestones, wikis, commits
and notes across groups and projects.

Expression:
  -q TERM                 search term
  -a                      AND (implicit between adjacent terms)
  -o                      OR
  ! | -not                NOT
  ( EXPR )                grouping

  Precedence: NOT binds tightest, then AND, then OR.

Where to search:
  -g, --groups LIST       comma separated groups (all groups when nothing is given)
  -p, --projects LIST     comma separated project ids or paths
  -u, --user USER         projects owned by USER
      --my-projects       projects you are a member of
  -r, --recursive         include subgroups of the given groups
      --archived MODE     include (default), only or exclude archived projects
  ! -g LIST / ! -p LIST   exclude groups / projects

What to search:
  -s, --scope LIST        blobs (default), files, issues, merge_requests,
                          milestones, wiki_blobs, commits, notes
  -f, --filename PATTERN  only files matching PATTERN (wildcard '*')
  -e, --extension EXT     only files with extension EXT
  -P, --path PATTERN      only files under PATTERN
  ! -f / ! -e / ! -P      exclude matching files from the results

Connection:
      --api-url URL       GitLab API base URL (default https://gitlab.com/api/v4)
      --ignore-cert       do not verify the server certificate
      --max-requests N    concurrent API requests (default 15)
      --token TOKEN       access token (default $GITLAB_SEARCH_TOKEN)
      --token-file FILE   read the access token from FILE
  -C, --config FILE       configuration file (default .gitlab-search-config.json
                          in the working directory, home directory or /etc)
      --cache BACKEND     none, sqlite or redis response cache
      --no-cache          disable the response cache

Output:
      --format FORMAT     text (default), json or yaml
      --color MODE        auto (default), always or never
      --metrics-file FILE write Prometheus metrics to FILE on exit
      --debug             debug logging

Setup:
      --setup             store --api-url, --ignore-cert and --max-requests
      --dir DIR           directory for the configuration file (default .)

  -V, --version           print the version
  -h, --help              print this help

Examples:
  gitlab-search -g backend -q "func main"
  gitlab-search -p acme/api -q TODO ! -e md
  gitlab-search -g acme -r -q foo -o -q bar -s blobs,issues
  gitlab-search -g acme -s files -f "*docker*"
`

var rootCmd = &cobra.Command{
	Use:           "gitlab-search",
	Short:         "Search GitLab with boolean queries across groups and projects",
	Long:          usage,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// searchCmd takes the raw argument list; the query language has its own
// tokenizer so cobra must not parse flags.
var searchCmd = &cobra.Command{
	Use:                "gitlab-search [options] EXPRESSION",
	Args:               cobra.ArbitraryArgs,
	DisableFlagParsing: true,
	SilenceUsage:       true,
	SilenceErrors:      true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSearch(cmd.Context(), args, cmd.OutOrStdout(), cmd.ErrOrStderr())
	},
}

// Execute is the entry point called by main.main()
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

// run dispatches to a subcommand when the first argument names one and to
// the search otherwise.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if args == nil {
		args = []string{}
	}
	c := searchCmd
	if len(args) > 0 && isSubcommand(args[0]) {
		c = rootCmd
	}
	c.SetArgs(args)
	c.SetOut(stdout)
	c.SetErr(stderr)
	return c.ExecuteContext(ctx)
}

func isSubcommand(name string) bool {
	if name == "help" {
		return true
	}
	for _, c := range rootCmd.Commands() {
		if c.Name() == name || c.HasAlias(name) {
			return true
		}
	}
	return false
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, usage)
}
