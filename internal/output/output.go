// Package output renders search results as colored text, JSON or YAML.
package output

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/KaramelBytes/gitlab-search/internal/gitlab"
)

// Printer writes the results of each scope as they arrive. Close flushes
// anything buffered.
type Printer interface {
	Blobs(terms []string, results []gitlab.ProjectResults[gitlab.Blob]) error
	Files(terms []string, results []gitlab.ProjectResults[gitlab.FileEntry]) error
	Items(scope string, terms []string, results []gitlab.ProjectResults[gitlab.Item]) error
	Close() error
}

// Options tune a printer.
type Options struct {
	// Color is auto, always or never. Only the text format uses it.
	Color string
}

// Factory builds a printer writing to w.
type Factory func(w io.Writer, opts Options) Printer

var registry = map[string]Factory{}

// Register adds a format to the registry.
func Register(name string, f Factory) {
	registry[name] = f
}

// Formats lists the registered format names.
func Formats() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// New returns the printer registered under format.
func New(format string, w io.Writer, opts Options) (Printer, error) {
	f, ok := registry[format]
	if !ok {
		return nil, fmt.Errorf("unknown output format %q (want one of: %s)", format, strings.Join(Formats(), ", "))
	}
	return f(w, opts), nil
}

func init() {
	Register("text", newTextPrinter)
	Register("json", newJSONPrinter)
	Register("yaml", newYAMLPrinter)
}
