package search

import (
	"fmt"
	"regexp"
	"strings"
)

// FileFilter selects files by name and path for the files scope. Every set
// criterion must match; matching ignores case.
type FileFilter struct {
	filename  *regexp.Regexp
	extension string
	path      *regexp.Regexp
}

// NewFileFilter compiles the filename and path globs. Empty criteria are
// ignored.
func NewFileFilter(filename, extension, path string) (*FileFilter, error) {
	f := &FileFilter{extension: strings.ToLower(dotted(extension))}
	var err error
	if filename != "" {
		if f.filename, err = compileGlob(filename, true); err != nil {
			return nil, fmt.Errorf("invalid filename pattern %q: %w", filename, err)
		}
	}
	if path != "" {
		if f.path, err = compileGlob(path, true); err != nil {
			return nil, fmt.Errorf("invalid path pattern %q: %w", path, err)
		}
	}
	return f, nil
}

// Empty reports whether no criterion is set.
func (f *FileFilter) Empty() bool {
	return f == nil || (f.filename == nil && f.extension == "" && f.path == nil)
}

// Matches reports whether a file with the given base name and repository
// path passes the filter.
func (f *FileFilter) Matches(name, path string) bool {
	if f == nil {
		return true
	}
	if f.filename != nil && !f.filename.MatchString(name) {
		return false
	}
	if f.extension != "" && !strings.HasSuffix(strings.ToLower(name), f.extension) {
		return false
	}
	if f.path != nil && !f.path.MatchString(path) {
		return false
	}
	return true
}

// Exclusions removes hits introduced with "! -f", "! -e" and "! -P".
type Exclusions struct {
	filenames  []*regexp.Regexp
	extensions []string
	paths      []*regexp.Regexp
}

// NewExclusions compiles the exclusion patterns. Globs are case sensitive.
func NewExclusions(filenames, extensions, paths []string) (*Exclusions, error) {
	fn, err := compileGlobs(filenames, false)
	if err != nil {
		return nil, fmt.Errorf("invalid filename exclusion: %w", err)
	}
	ps, err := compileGlobs(paths, false)
	if err != nil {
		return nil, fmt.Errorf("invalid path exclusion: %w", err)
	}
	exts := make([]string, 0, len(extensions))
	for _, e := range extensions {
		exts = append(exts, dotted(e))
	}
	return &Exclusions{filenames: fn, extensions: exts, paths: ps}, nil
}

// Empty reports whether nothing is excluded.
func (e *Exclusions) Empty() bool {
	return e == nil || (len(e.filenames) == 0 && len(e.extensions) == 0 && len(e.paths) == 0)
}

// Excludes reports whether the file matches any exclusion. Path patterns are
// checked against filename when path is empty.
func (e *Exclusions) Excludes(filename, path string) bool {
	if e == nil {
		return false
	}
	for _, re := range e.filenames {
		if re.MatchString(filename) {
			return true
		}
	}
	for _, ext := range e.extensions {
		if strings.HasSuffix(filename, ext) {
			return true
		}
	}
	if path == "" {
		path = filename
	}
	for _, re := range e.paths {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

// MatchesExclusion is a one-shot form of NewExclusions(...).Excludes. Invalid
// patterns never match.
func MatchesExclusion(filename, path string, filenames, extensions, paths []string) bool {
	e, err := NewExclusions(filenames, extensions, paths)
	if err != nil {
		return false
	}
	return e.Excludes(filename, path)
}

func dotted(ext string) string {
	if ext == "" || strings.HasPrefix(ext, ".") {
		return ext
	}
	return "." + ext
}
