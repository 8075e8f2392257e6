package output

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/KaramelBytes/gitlab-search/internal/gitlab"
)

// Document is the JSON/YAML rendering of one scope.
type Document[T any] struct {
	Scope    string                     `json:"scope" yaml:"scope"`
	Terms    []string                   `json:"terms" yaml:"terms"`
	Projects []gitlab.ProjectResults[T] `json:"projects" yaml:"projects"`
}

func newDocument[T any](scope string, terms []string, results []gitlab.ProjectResults[T]) Document[T] {
	if terms == nil {
		terms = []string{}
	}
	if results == nil {
		results = []gitlab.ProjectResults[T]{}
	}
	return Document[T]{Scope: scope, Terms: terms, Projects: results}
}

// encoder is satisfied by both json.Encoder and yaml.Encoder.
type encoder interface {
	Encode(v any) error
}

type structuredPrinter struct {
	enc   encoder
	close func() error
}

func newJSONPrinter(w io.Writer, _ Options) Printer {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return &structuredPrinter{enc: enc, close: func() error { return nil }}
}

func newYAMLPrinter(w io.Writer, _ Options) Printer {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	return &structuredPrinter{enc: enc, close: enc.Close}
}

func (s *structuredPrinter) encode(v any) error {
	if err := s.enc.Encode(v); err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	return nil
}

func (s *structuredPrinter) Blobs(terms []string, results []gitlab.ProjectResults[gitlab.Blob]) error {
	return s.encode(newDocument("blobs", terms, results))
}

func (s *structuredPrinter) Files(terms []string, results []gitlab.ProjectResults[gitlab.FileEntry]) error {
	return s.encode(newDocument("files", terms, results))
}

func (s *structuredPrinter) Items(scope string, terms []string, results []gitlab.ProjectResults[gitlab.Item]) error {
	return s.encode(newDocument(scope, terms, results))
}

func (s *structuredPrinter) Close() error { return s.close() }
