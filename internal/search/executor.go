// Package search resolves the projects to search, fans the query terms out
// to GitLab and evaluates the boolean expression over the returned hits.
package search

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/KaramelBytes/gitlab-search/internal/gitlab"
	"github.com/KaramelBytes/gitlab-search/internal/logger"
	"github.com/KaramelBytes/gitlab-search/internal/metrics"
	"github.com/KaramelBytes/gitlab-search/internal/query"
)

// Search scopes.
const (
	ScopeBlobs         = "blobs"
	ScopeFiles         = "files"
	ScopeIssues        = "issues"
	ScopeMergeRequests = "merge_requests"
	ScopeMilestones    = "milestones"
	ScopeWikiBlobs     = "wiki_blobs"
	ScopeCommits       = "commits"
	ScopeNotes         = "notes"
)

// Scopes lists every supported scope.
var Scopes = []string{
	ScopeBlobs, ScopeFiles, ScopeIssues, ScopeMergeRequests,
	ScopeMilestones, ScopeWikiBlobs, ScopeCommits, ScopeNotes,
}

// ErrNoQuery is returned when a scope other than files is requested without
// any -q term.
var ErrNoQuery = errors.New("no search query given")

// API is the part of the GitLab client the searcher needs.
type API interface {
	Groups(ctx context.Context, names []string) ([]gitlab.Group, error)
	DescendantGroups(ctx context.Context, g gitlab.Group) []gitlab.Group
	GroupProjects(ctx context.Context, g gitlab.Group, archived string) ([]gitlab.Project, error)
	Project(ctx context.Context, idOrPath string) (gitlab.Project, error)
	UserProjects(ctx context.Context, user, archived string) ([]gitlab.Project, error)
	MemberProjects(ctx context.Context, archived string) ([]gitlab.Project, error)
	SearchBlobs(ctx context.Context, p gitlab.Project, crit gitlab.BlobCriteria) ([]gitlab.Blob, error)
	SearchScope(ctx context.Context, p gitlab.Project, scope, term string) ([]gitlab.Item, error)
	Tree(ctx context.Context, p gitlab.Project, ref string) ([]gitlab.FileEntry, error)
}

// Sink receives the results of each scope, in the order scopes were
// requested.
type Sink interface {
	Blobs(terms []string, results []gitlab.ProjectResults[gitlab.Blob]) error
	Files(terms []string, results []gitlab.ProjectResults[gitlab.FileEntry]) error
	Items(scope string, terms []string, results []gitlab.ProjectResults[gitlab.Item]) error
}

// Searcher runs parsed commands against GitLab.
type Searcher struct {
	api     API
	sink    Sink
	metrics *metrics.Metrics
}

// New returns a Searcher. m may be nil.
func New(api API, sink Sink, m *metrics.Metrics) *Searcher {
	return &Searcher{api: api, sink: sink, metrics: m}
}

// ValidateScopes rejects unknown scope names.
func ValidateScopes(scopes []string) error {
	for _, sc := range scopes {
		known := false
		for _, k := range Scopes {
			if sc == k {
				known = true
				break
			}
		}
		if !known {
			return fmt.Errorf("unknown scope %q (want one of: %s)", sc, strings.Join(Scopes, ", "))
		}
	}
	return nil
}

// Run resolves the projects and executes every requested scope.
func (s *Searcher) Run(ctx context.Context, cmd *query.Command) error {
	if err := ValidateScopes(cmd.Scopes); err != nil {
		return err
	}
	if cmd.Expr == nil {
		for _, sc := range cmd.Scopes {
			if sc != ScopeFiles {
				return ErrNoQuery
			}
		}
	}
	projects, err := s.ResolveProjects(ctx, cmd)
	if err != nil {
		return err
	}
	if len(projects) == 0 {
		logger.FromContext(ctx).Warn("no projects to search")
		return nil
	}
	terms := cmd.Terms()
	for _, scope := range cmd.Scopes {
		ctx := logger.WithFields(ctx, zap.String("scope", scope))
		switch scope {
		case ScopeBlobs:
			res, err := s.Blobs(ctx, cmd, projects)
			if err != nil {
				return err
			}
			s.metrics.Results(scope, count(res))
			if err := s.sink.Blobs(terms, res); err != nil {
				return err
			}
		case ScopeFiles:
			res, err := s.Files(ctx, cmd, projects)
			if err != nil {
				return err
			}
			s.metrics.Results(scope, count(res))
			if err := s.sink.Files(terms, res); err != nil {
				return err
			}
		default:
			res, err := s.Scope(ctx, cmd, scope, projects)
			if err != nil {
				return err
			}
			s.metrics.Results(scope, count(res))
			if err := s.sink.Items(scope, terms, res); err != nil {
				return err
			}
		}
	}
	return nil
}

// Blobs searches file contents for every term in every project and keeps the
// files whose membership satisfies the expression. All hits of a matching
// file are returned, grouped per project.
func (s *Searcher) Blobs(ctx context.Context, cmd *query.Command, projects []gitlab.Project) ([]gitlab.ProjectResults[gitlab.Blob], error) {
	terms := cmd.Terms()
	if len(terms) == 0 {
		return nil, nil
	}
	found, err := fanOut(ctx, terms, projects, func(ctx context.Context, term string, p gitlab.Project) ([]gitlab.Blob, error) {
		return s.api.SearchBlobs(ctx, p, gitlab.BlobCriteria{
			Term:      term,
			Filename:  cmd.Filename,
			Extension: cmd.Extension,
			Path:      cmd.Path,
		})
	})
	if err != nil {
		return nil, err
	}
	results := combine(cmd.Expr, terms, projects, found,
		func(b gitlab.Blob) string { return b.FilePath() },
		func(b gitlab.Blob) string {
			return b.FilePath() + "\x00" + b.Ref + "\x00" + strconv.Itoa(b.Startline) + "\x00" + b.Data
		},
	)
	excl, err := NewExclusions(cmd.ExcludeFilenames, cmd.ExcludeExtensions, cmd.ExcludePaths)
	if err != nil {
		return nil, err
	}
	if excl.Empty() {
		return results, nil
	}
	return filterResults(results, func(b gitlab.Blob) bool {
		return excl.Excludes(path.Base(b.FilePath()), b.FilePath())
	}), nil
}

// Files lists the repository tree of every project at HEAD and keeps the
// blobs that pass the filename, extension and path filters and no exclusion.
// A project whose tree cannot be read contributes nothing.
func (s *Searcher) Files(ctx context.Context, cmd *query.Command, projects []gitlab.Project) ([]gitlab.ProjectResults[gitlab.FileEntry], error) {
	log := logger.FromContext(ctx)
	filter, err := NewFileFilter(cmd.Filename, cmd.Extension, cmd.Path)
	if err != nil {
		return nil, err
	}
	excl, err := NewExclusions(cmd.ExcludeFilenames, cmd.ExcludeExtensions, cmd.ExcludePaths)
	if err != nil {
		return nil, err
	}

	unfiltered := filter.Empty() && excl.Empty()

	found := make([][]gitlab.FileEntry, len(projects))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range projects {
		g.Go(func() error {
			entries, err := s.api.Tree(gctx, p, "HEAD")
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				log.Warn("cannot list repository tree", zap.String("project", p.Name), zap.Error(err))
				return nil
			}
			var keep []gitlab.FileEntry
			for _, e := range entries {
				if e.Type != "blob" {
					continue
				}
				if !unfiltered && (!filter.Matches(e.Name, e.Path) || excl.Excludes(e.Name, e.Path)) {
					continue
				}
				keep = append(keep, e)
			}
			found[i] = keep
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []gitlab.ProjectResults[gitlab.FileEntry]
	for i, p := range projects {
		if len(found[i]) > 0 {
			out = append(out, gitlab.ProjectResults[gitlab.FileEntry]{Project: p, Results: found[i]})
		}
	}
	return out, nil
}

// Scope searches a non-blob scope (issues, merge requests, ...) and keeps
// the items whose membership satisfies the expression.
func (s *Searcher) Scope(ctx context.Context, cmd *query.Command, scope string, projects []gitlab.Project) ([]gitlab.ProjectResults[gitlab.Item], error) {
	terms := cmd.Terms()
	if len(terms) == 0 {
		return nil, nil
	}
	found, err := fanOut(ctx, terms, projects, func(ctx context.Context, term string, p gitlab.Project) ([]gitlab.Item, error) {
		return s.api.SearchScope(ctx, p, scope, term)
	})
	if err != nil {
		return nil, err
	}
	identity := func(it gitlab.Item) string { return scope + "\x00" + it.Identity(scope) }
	return combine(cmd.Expr, terms, projects, found, identity, identity), nil
}

// fanOut runs search for every (term, project) pair concurrently.
// found[t][p] holds the hits of terms[t] in projects[p].
func fanOut[T any](ctx context.Context, terms []string, projects []gitlab.Project, search func(context.Context, string, gitlab.Project) ([]T, error)) ([][][]T, error) {
	found := make([][][]T, len(terms))
	g, gctx := errgroup.WithContext(ctx)
	for t, term := range terms {
		found[t] = make([][]T, len(projects))
		for i, p := range projects {
			g.Go(func() error {
				hits, err := search(gctx, term, p)
				if err != nil {
					return err
				}
				found[t][i] = hits
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return found, nil
}

// combine builds one id set per term, evaluates expr over them and merges
// the hits of matching ids per project in first-seen order. id identifies the
// result within its project; key removes duplicate hits.
func combine[T any](expr query.Expr, terms []string, projects []gitlab.Project, found [][][]T, id, key func(T) string) []gitlab.ProjectResults[T] {
	type group struct {
		project int
		hits    []T
	}
	sets := make(map[string]query.Set, len(terms))
	byTerm := make([][]string, len(terms))
	groups := make([]map[string]*group, len(terms))
	for t, term := range terms {
		set := query.NewSet()
		groups[t] = make(map[string]*group)
		for i, p := range projects {
			for _, hit := range found[t][i] {
				rid := strconv.Itoa(p.ID) + "\x00" + id(hit)
				gr, ok := groups[t][rid]
				if !ok {
					gr = &group{project: i}
					groups[t][rid] = gr
					byTerm[t] = append(byTerm[t], rid)
					set.Add(rid)
				}
				gr.hits = append(gr.hits, hit)
			}
		}
		sets[term] = set
	}
	matching := expr.Eval(sets, query.Universe(sets))

	var out []gitlab.ProjectResults[T]
	index := make(map[int]int)
	seen := make(map[int]map[string]bool)
	for t := range terms {
		for _, rid := range byTerm[t] {
			if !matching.Has(rid) {
				continue
			}
			gr := groups[t][rid]
			p := projects[gr.project]
			at, ok := index[p.ID]
			if !ok {
				at = len(out)
				index[p.ID] = at
				seen[p.ID] = make(map[string]bool)
				out = append(out, gitlab.ProjectResults[T]{Project: p})
			}
			for _, hit := range gr.hits {
				k := key(hit)
				if seen[p.ID][k] {
					continue
				}
				seen[p.ID][k] = true
				out[at].Results = append(out[at].Results, hit)
			}
		}
	}
	return out
}

func filterResults[T any](in []gitlab.ProjectResults[T], drop func(T) bool) []gitlab.ProjectResults[T] {
	var out []gitlab.ProjectResults[T]
	for _, pr := range in {
		var keep []T
		for _, r := range pr.Results {
			if !drop(r) {
				keep = append(keep, r)
			}
		}
		if len(keep) > 0 {
			out = append(out, gitlab.ProjectResults[T]{Project: pr.Project, Results: keep})
		}
	}
	return out
}

func count[T any](rs []gitlab.ProjectResults[T]) int {
	n := 0
	for _, r := range rs {
		n += len(r.Results)
	}
	return n
}
