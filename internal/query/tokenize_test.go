package query_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/gitlab-search/internal/query"
)

func kinds(tokens []query.Token) []query.Kind {
	out := make([]query.Kind, len(tokens))
	for i, t := range tokens {
		out[i] = t.Kind
	}
	return out
}

func TestTokenizeSingleQuery(t *testing.T) {
	tokens, cmd, err := query.Tokenize([]string{"-p", "proj", "-q", "foo"})
	require.NoError(t, err)
	assert.Equal(t, []string{"proj"}, cmd.Projects)
	require.Len(t, tokens, 2)
	assert.Equal(t, query.Token{Kind: query.QUERY, Value: "foo"}, tokens[0])
	assert.Equal(t, query.EOF, tokens[1].Kind)
}

func TestTokenizeOperators(t *testing.T) {
	cases := []struct {
		name string
		args []string
		want []query.Kind
	}{
		{"implicit and", []string{"-q", "a", "-q", "b"}, []query.Kind{query.QUERY, query.QUERY, query.EOF}},
		{"explicit and", []string{"-q", "a", "-a", "-q", "b"}, []query.Kind{query.QUERY, query.AND, query.QUERY, query.EOF}},
		{"or", []string{"-q", "a", "-o", "-q", "b"}, []query.Kind{query.QUERY, query.OR, query.QUERY, query.EOF}},
		{"not", []string{"-not", "-q", "a"}, []query.Kind{query.NOT, query.QUERY, query.EOF}},
		{"bang", []string{"!", "-q", "a"}, []query.Kind{query.NOT, query.QUERY, query.EOF}},
		{"parens", []string{"(", "-q", "a", "-o", "-q", "b", ")"}, []query.Kind{query.LPAREN, query.QUERY, query.OR, query.QUERY, query.RPAREN, query.EOF}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tokens, _, err := query.Tokenize(append([]string{"-p", "proj"}, tc.args...))
			require.NoError(t, err)
			assert.Equal(t, tc.want, kinds(tokens))
		})
	}
}

func TestTokenizeExclusionsConsumeNot(t *testing.T) {
	tokens, cmd, err := query.Tokenize([]string{
		"-g", "grp1", "!", "-g", "grp2",
		"-not", "-p", "proj",
		"-q", "x",
		"!", "-e", "md", "!", "-e", "txt",
		"-not", "-f", "*.test.js",
		"!", "-P", "*vendor*",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"grp1"}, cmd.Groups)
	assert.Equal(t, []string{"grp2"}, cmd.ExcludeGroups)
	assert.Equal(t, []string{"proj"}, cmd.ExcludeProjects)
	assert.Equal(t, []string{"md", "txt"}, cmd.ExcludeExtensions)
	assert.Equal(t, []string{"*.test.js"}, cmd.ExcludeFilenames)
	assert.Equal(t, []string{"*vendor*"}, cmd.ExcludePaths)
	assert.Equal(t, []query.Kind{query.QUERY, query.EOF}, kinds(tokens))
}

func TestTokenizeInclusionAndExclusionCombined(t *testing.T) {
	_, cmd, err := query.Tokenize([]string{"-p", "proj", "-q", "x", "-e", "py", "!", "-f", "test_*"})
	require.NoError(t, err)
	assert.Equal(t, "py", cmd.Extension)
	assert.Equal(t, []string{"test_*"}, cmd.ExcludeFilenames)
}

func TestTokenizeLists(t *testing.T) {
	_, cmd, err := query.Tokenize([]string{"-g", "grp1,grp2", "-p", "proj1,proj2,proj3", "-s", "issues, merge_requests", "-q", "x"})
	require.NoError(t, err)
	assert.Equal(t, []string{"grp1", "grp2"}, cmd.Groups)
	assert.Equal(t, []string{"proj1", "proj2", "proj3"}, cmd.Projects)
	assert.Equal(t, []string{"issues", "merge_requests"}, cmd.Scopes)
}

func TestTokenizeOptions(t *testing.T) {
	_, cmd, err := query.Tokenize([]string{
		"-p", "proj",
		"--api-url", "https://example.com/api/v4",
		"--token", "secret",
		"--token-file", "/tmp/tok",
		"--max-requests", "10",
		"--ignore-cert",
		"--debug",
		"-C", "/etc/custom.json",
		"-f", "*.py", "-e", "py", "-P", "src/",
		"--archived", "exclude",
		"-r",
		"-u", "alice",
		"--my-projects",
		"--color", "never",
		"--format", "json",
		"--cache", "sqlite",
		"--metrics-file", "/tmp/m.prom",
		"-q", "x",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/api/v4", cmd.APIURL)
	assert.Equal(t, "secret", cmd.Token)
	assert.Equal(t, "/tmp/tok", cmd.TokenFile)
	assert.Equal(t, 10, cmd.MaxRequests)
	assert.True(t, cmd.IgnoreCert)
	assert.True(t, cmd.Debug)
	assert.Equal(t, "/etc/custom.json", cmd.ConfigFile)
	assert.Equal(t, "*.py", cmd.Filename)
	assert.Equal(t, "py", cmd.Extension)
	assert.Equal(t, "src/", cmd.Path)
	assert.Equal(t, query.ArchivedExclude, cmd.Archived)
	assert.True(t, cmd.Recursive)
	assert.Equal(t, "alice", cmd.User)
	assert.True(t, cmd.MyProjects)
	assert.Equal(t, query.ColorNever, cmd.Color)
	assert.Equal(t, query.FormatJSON, cmd.Format)
	assert.Equal(t, "sqlite", cmd.Cache)
	assert.Equal(t, "/tmp/m.prom", cmd.MetricsFile)
}

func TestTokenizeDefaults(t *testing.T) {
	_, cmd, err := query.Tokenize([]string{"-g", "grp", "-q", "x"})
	require.NoError(t, err)
	assert.False(t, cmd.Recursive)
	assert.Equal(t, []string{query.ScopeBlobs}, cmd.Scopes)
	assert.Equal(t, query.ArchivedInclude, cmd.Archived)
	assert.Equal(t, ".", cmd.Dir)
	assert.Zero(t, cmd.MaxRequests)
}

func TestTokenizeErrors(t *testing.T) {
	cases := []struct {
		args []string
		msg  string
	}{
		{[]string{"-p", "proj", "-q"}, "-q requires a query argument"},
		{[]string{"-p", "proj", "--unknown", "-q", "x"}, "Unknown option: --unknown"},
		{[]string{"stray"}, "Unknown argument: stray"},
		{[]string{"--max-requests", "many"}, "--max-requests requires an integer"},
		{[]string{"--max-requests", "0"}, "--max-requests must be at least 1"},
		{[]string{"--archived", "sometimes"}, "--archived must be one of: include, only, exclude"},
		{[]string{"--color", "blue"}, "--color must be one of: auto, always, never"},
		{[]string{"-g"}, "-g requires a group argument"},
	}
	for _, tc := range cases {
		_, _, err := query.Tokenize(tc.args)
		require.Error(t, err, "%v", tc.args)
		assert.ErrorIs(t, err, query.ErrSyntax)
		assert.True(t, strings.HasPrefix(err.Error(), tc.msg), "%q", err.Error())
	}
}

func TestTokenizeHelpAndVersion(t *testing.T) {
	_, _, err := query.Tokenize([]string{"-q", "x", "--help"})
	assert.ErrorIs(t, err, query.ErrHelp)
	_, _, err = query.Tokenize([]string{"-V"})
	assert.ErrorIs(t, err, query.ErrVersion)
}

func TestTokenizeSetupMode(t *testing.T) {
	cmd, err := query.ParseCommand([]string{"--setup", "--token", "mytoken", "--dir", "/tmp/x"})
	require.NoError(t, err)
	assert.True(t, cmd.Setup)
	assert.Equal(t, "mytoken", cmd.Token)
	assert.Equal(t, "/tmp/x", cmd.Dir)
	assert.Nil(t, cmd.Expr)
}
