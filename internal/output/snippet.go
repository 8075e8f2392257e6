package output

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/KaramelBytes/gitlab-search/internal/gitlab"
)

// SnippetContext is the number of characters kept on each side of a match.
const SnippetContext = 100

// LineURL links to the lines of a blob hit.
func LineURL(p gitlab.Project, b gitlab.Blob) string {
	end := b.Startline + strings.Count(b.Data, "\n") - 1
	return p.WebURL + "/blob/" + b.Ref + "/" + b.FilePath() + "#L" + strconv.Itoa(b.Startline) + "-" + strconv.Itoa(end)
}

// FileURL links to a file at HEAD.
func FileURL(p gitlab.Project, path string) string {
	return p.WebURL + "/-/blob/HEAD/" + path
}

// WikiURL links to a wiki page.
func WikiURL(p gitlab.Project, slug string) string {
	return p.WebURL + "/-/wikis/" + slug
}

// Indent indents continuation lines of a preview.
func Indent(s string) string {
	return strings.ReplaceAll(s, "\n", "\n\t\t")
}

// ExtractSnippet returns the text around the first case-insensitive
// occurrence of term, with "..." where it was cut. ok is false when term does
// not occur.
func ExtractSnippet(text, term string, context int) (snippet string, ok bool) {
	if term == "" {
		return "", false
	}
	loc := regexp.MustCompile("(?i)" + regexp.QuoteMeta(term)).FindStringIndex(text)
	if loc == nil {
		return "", false
	}
	start := backRunes(text, loc[0], context)
	end := forwardRunes(text, loc[1], context)
	snippet = text[start:end]
	if start > 0 {
		snippet = "..." + snippet
	}
	if end < len(text) {
		snippet += "..."
	}
	return snippet, true
}

// firstSnippet tries each term in order.
func firstSnippet(text string, terms []string) (string, bool) {
	for _, t := range terms {
		if s, ok := ExtractSnippet(text, t, SnippetContext); ok {
			return s, true
		}
	}
	return "", false
}

// Highlight colors every case-insensitive occurrence of any term red,
// keeping the original case.
func Highlight(p Palette, terms []string, text string) string {
	if !p.Enabled() || len(terms) == 0 {
		return text
	}
	sorted := append([]string(nil), terms...)
	sort.SliceStable(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })
	quoted := make([]string, 0, len(sorted))
	for _, t := range sorted {
		if t != "" {
			quoted = append(quoted, regexp.QuoteMeta(t))
		}
	}
	if len(quoted) == 0 {
		return text
	}
	re := regexp.MustCompile("(?i)(" + strings.Join(quoted, "|") + ")")
	return re.ReplaceAllStringFunc(text, p.Red)
}

func backRunes(s string, i, n int) int {
	for ; n > 0 && i > 0; n-- {
		_, size := utf8.DecodeLastRuneInString(s[:i])
		i -= size
	}
	return i
}

func forwardRunes(s string, i, n int) int {
	for ; n > 0 && i < len(s); n-- {
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return i
}
