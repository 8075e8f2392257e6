package output

import (
	"bufio"
	"fmt"
	"io"

	"github.com/KaramelBytes/gitlab-search/internal/gitlab"
)

type textPrinter struct {
	w   *bufio.Writer
	pal Palette
}

func newTextPrinter(w io.Writer, opts Options) Printer {
	return &textPrinter{w: bufio.NewWriter(w), pal: NewPalette(opts.Color, w)}
}

func (t *textPrinter) header(p gitlab.Project) {
	archived := ""
	if p.Archived {
		archived = t.pal.Bold(t.pal.Red(" (archived)"))
	}
	fmt.Fprintf(t.w, "%s%s:\n", t.pal.Bold(t.pal.Green(p.Name)), archived)
}

func (t *textPrinter) Blobs(terms []string, results []gitlab.ProjectResults[gitlab.Blob]) error {
	for _, pr := range results {
		t.header(pr.Project)
		for _, b := range pr.Results {
			fmt.Fprintf(t.w, "\n\t%s\n\n\t\t%s", t.pal.Underline(LineURL(pr.Project, b)), Highlight(t.pal, terms, Indent(b.Data)))
		}
		fmt.Fprintln(t.w)
	}
	return t.w.Flush()
}

func (t *textPrinter) Files(_ []string, results []gitlab.ProjectResults[gitlab.FileEntry]) error {
	for _, pr := range results {
		t.header(pr.Project)
		for _, f := range pr.Results {
			fmt.Fprintf(t.w, "\t%s\n", t.pal.Underline(FileURL(pr.Project, f.Path)))
		}
	}
	return t.w.Flush()
}

func (t *textPrinter) Items(scope string, terms []string, results []gitlab.ProjectResults[gitlab.Item]) error {
	for _, pr := range results {
		t.header(pr.Project)
		for _, it := range pr.Results {
			t.item(pr.Project, scope, terms, it)
		}
	}
	return t.w.Flush()
}

func (t *textPrinter) item(p gitlab.Project, scope string, terms []string, it gitlab.Item) {
	switch scope {
	case "issues", "merge_requests", "milestones":
		fmt.Fprintf(t.w, "\n\t%s\n", t.pal.Underline(it.Field("web_url")))
		fmt.Fprintf(t.w, "\t#%s [%s] %s\n", it.Field("iid"), it.Field("state"), Highlight(t.pal, terms, it.Field("title")))
		if s, ok := firstSnippet(it.Field("description"), terms); ok {
			fmt.Fprintf(t.w, "\t\t%s\n", Highlight(t.pal, terms, Indent(s)))
		}
	case "wiki_blobs":
		fmt.Fprintf(t.w, "\t%s\n\n\t\t%s\n", t.pal.Underline(WikiURL(p, it.Field("slug"))), Highlight(t.pal, terms, Indent(it.Field("data"))))
	case "commits":
		fmt.Fprintf(t.w, "\n\t%s\n", t.pal.Underline(it.Field("web_url")))
		fmt.Fprintf(t.w, "\t%s %s\n", it.Field("short_id"), it.Field("title"))
	case "notes":
		fmt.Fprintf(t.w, "\n\t%s #%s\n", it.Field("noteable_type"), it.Field("noteable_iid"))
		fmt.Fprintf(t.w, "\t\t%s\n", Highlight(t.pal, terms, Indent(it.Field("body"))))
	default:
		fmt.Fprintf(t.w, "\n\t%s\n", t.pal.Underline(it.Field("web_url")))
		fmt.Fprintf(t.w, "\t%s\n", Highlight(t.pal, terms, it.Field("title")))
	}
}

func (t *textPrinter) Close() error { return t.w.Flush() }
