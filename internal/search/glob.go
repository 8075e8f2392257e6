package search

import (
	"regexp"
	"strings"
)

// compileGlob translates a shell wildcard pattern into an anchored regular
// expression. '*' matches any run of characters including '/', '?' one
// character, and [...] / [!...] character classes. An unterminated '[' is
// literal.
func compileGlob(pattern string, foldCase bool) (*regexp.Regexp, error) {
	var b strings.Builder
	if foldCase {
		b.WriteString("(?i)")
	}
	b.WriteString("^(?s:")
	p := []rune(pattern)
	n := len(p)
	for i := 0; i < n; {
		c := p[i]
		i++
		switch c {
		case '*':
			for i < n && p[i] == '*' {
				i++
			}
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		case '[':
			j := i
			if j < n && p[j] == '!' {
				j++
			}
			if j < n && p[j] == ']' {
				j++
			}
			for j < n && p[j] != ']' {
				j++
			}
			if j >= n {
				b.WriteString(`\[`)
				continue
			}
			class := string(p[i:j])
			i = j + 1
			b.WriteString("[")
			if strings.HasPrefix(class, "!") {
				b.WriteString("^")
				class = class[1:]
			} else if strings.HasPrefix(class, "^") {
				b.WriteString(`\^`)
				class = class[1:]
			}
			class = strings.NewReplacer(`\`, `\\`, `[`, `\[`, `]`, `\]`).Replace(class)
			b.WriteString(class)
			b.WriteString("]")
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	b.WriteString(")$")
	return regexp.Compile(b.String())
}

func compileGlobs(patterns []string, foldCase bool) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := compileGlob(p, foldCase)
		if err != nil {
			return nil, err
		}
		out = append(out, re)
	}
	return out, nil
}
