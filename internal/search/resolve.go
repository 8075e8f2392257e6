package search

import (
	"context"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/KaramelBytes/gitlab-search/internal/gitlab"
	"github.com/KaramelBytes/gitlab-search/internal/logger"
	"github.com/KaramelBytes/gitlab-search/internal/query"
)

// ResolveProjects collects the projects to search: group projects (with
// descendant groups when recursive), explicit projects, a user's projects and
// membership projects, in that order and without duplicates. When none of
// these is named every visible group is used. Excluded projects are resolved
// and removed by id.
func (s *Searcher) ResolveProjects(ctx context.Context, cmd *query.Command) ([]gitlab.Project, error) {
	log := logger.FromContext(ctx)
	var out []gitlab.Project
	seen := make(map[int]bool)
	add := func(ps []gitlab.Project) {
		for _, p := range ps {
			if !seen[p.ID] {
				seen[p.ID] = true
				out = append(out, p)
			}
		}
	}

	if len(cmd.Groups) > 0 || !cmd.HasScopeDefinition() {
		groups, err := s.api.Groups(ctx, cmd.Groups)
		if err != nil {
			return nil, err
		}
		ps, err := s.groupProjects(ctx, cmd, groups)
		if err != nil {
			return nil, err
		}
		add(ps)
	}
	if len(cmd.Projects) > 0 {
		ps, err := s.projectsByRef(ctx, cmd.Projects)
		if err != nil {
			return nil, err
		}
		add(ps)
	}
	if cmd.User != "" {
		ps, err := s.api.UserProjects(ctx, cmd.User, cmd.Archived)
		if err != nil {
			return nil, err
		}
		add(ps)
	}
	if cmd.MyProjects {
		ps, err := s.api.MemberProjects(ctx, cmd.Archived)
		if err != nil {
			return nil, err
		}
		add(ps)
	}

	if len(cmd.ExcludeProjects) > 0 {
		excluded, err := s.projectsByRef(ctx, cmd.ExcludeProjects)
		if err != nil {
			return nil, err
		}
		drop := make(map[int]bool, len(excluded))
		ids := make([]string, 0, len(excluded))
		for _, p := range excluded {
			drop[p.ID] = true
			ids = append(ids, strconv.Itoa(p.ID))
		}
		kept := out[:0]
		for _, p := range out {
			if !drop[p.ID] {
				kept = append(kept, p)
			}
		}
		out = kept
		log.Debug("excluded projects", zap.Strings("ids", ids))
	}

	log.Debug("resolved projects", zap.Int("count", len(out)), zap.Strings("projects", names(out)))
	return out, nil
}

func (s *Searcher) groupProjects(ctx context.Context, cmd *query.Command, groups []gitlab.Group) ([]gitlab.Project, error) {
	log := logger.FromContext(ctx)
	all := append([]gitlab.Group(nil), groups...)
	if cmd.Recursive {
		descendants := make([][]gitlab.Group, len(groups))
		g, gctx := errgroup.WithContext(ctx)
		for i, grp := range groups {
			g.Go(func() error {
				descendants[i] = s.api.DescendantGroups(gctx, grp)
				return nil
			})
		}
		_ = g.Wait()
		for _, d := range descendants {
			all = append(all, d...)
		}
		log.Debug("expanded groups recursively", zap.Int("groups", len(all)))
	}

	if len(cmd.ExcludeGroups) > 0 {
		before := len(all)
		kept := all[:0]
		for _, grp := range all {
			if !excludedGroup(grp, cmd.ExcludeGroups) {
				kept = append(kept, grp)
			}
		}
		all = kept
		log.Debug("excluded groups", zap.Int("excluded", before-len(all)), zap.Int("remaining", len(all)))
	}

	found := make([][]gitlab.Project, len(all))
	g, gctx := errgroup.WithContext(ctx)
	for i, grp := range all {
		g.Go(func() error {
			ps, err := s.api.GroupProjects(gctx, grp, cmd.Archived)
			if err != nil {
				return err
			}
			found[i] = ps
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var out []gitlab.Project
	for _, ps := range found {
		out = append(out, ps...)
	}
	return out, nil
}

func (s *Searcher) projectsByRef(ctx context.Context, refs []string) ([]gitlab.Project, error) {
	out := make([]gitlab.Project, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	for i, ref := range refs {
		g.Go(func() error {
			p, err := s.api.Project(gctx, ref)
			if err != nil {
				return err
			}
			out[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func excludedGroup(g gitlab.Group, refs []string) bool {
	for _, ref := range refs {
		if g.Matches(ref) {
			return true
		}
	}
	return false
}

func names(ps []gitlab.Project) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Name
	}
	return out
}
