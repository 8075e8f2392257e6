package gitlab

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"go.uber.org/zap"
)

// Archived filter values accepted by the project listing endpoints.
const (
	ArchivedInclude = "include"
	ArchivedOnly    = "only"
	ArchivedExclude = "exclude"
)

func (c *Client) endpoint(p string, q url.Values) string {
	if q == nil {
		q = url.Values{}
	}
	return c.baseURL + p + "?" + q.Encode()
}

func listParams(archived string) url.Values {
	q := url.Values{"per_page": {perPage}}
	switch archived {
	case ArchivedOnly:
		q.Set("archived", "true")
	case ArchivedExclude:
		q.Set("archived", "false")
	}
	return q
}

// Groups returns the named groups as given, or every group visible to the
// caller when names is empty.
func (c *Client) Groups(ctx context.Context, names []string) ([]Group, error) {
	if len(names) == 0 {
		return c.ListGroups(ctx)
	}
	groups := make([]Group, 0, len(names))
	for _, n := range names {
		groups = append(groups, Group{ID: n, Name: n})
	}
	return groups, nil
}

// ListGroups returns every group visible to the caller.
func (c *Client) ListGroups(ctx context.Context) ([]Group, error) {
	raw, err := getAll[apiGroup](ctx, c, "groups", c.endpoint("/groups", url.Values{"per_page": {perPage}}))
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	groups := make([]Group, 0, len(raw))
	for _, g := range raw {
		groups = append(groups, g.group())
	}
	c.log.Debug("using groups", zap.Strings("groups", groupNames(groups)))
	return groups, nil
}

// DescendantGroups returns the subgroups of g at every level. Failures are
// logged and yield no groups.
func (c *Client) DescendantGroups(ctx context.Context, g Group) []Group {
	q := url.Values{"per_page": {perPage}, "all_available": {"true"}}
	raw, err := getAll[apiGroup](ctx, c, "groups", c.endpoint("/groups/"+url.PathEscape(g.ID)+"/descendant_groups", q))
	if err != nil {
		c.log.Warn("failed to fetch descendant groups", zap.String("group", g.Name), zap.Error(err))
		return nil
	}
	groups := make([]Group, 0, len(raw))
	for _, d := range raw {
		dg := d.group()
		dg.Name = d.FullPath
		groups = append(groups, dg)
	}
	c.log.Debug("found descendant groups",
		zap.String("group", g.Name),
		zap.Int("count", len(groups)),
		zap.Strings("groups", groupNames(groups)),
	)
	return groups
}

// GroupProjects lists the projects directly inside g.
func (c *Client) GroupProjects(ctx context.Context, g Group, archived string) ([]Project, error) {
	projects, err := getAll[Project](ctx, c, "projects", c.endpoint("/groups/"+url.PathEscape(g.ID)+"/projects", listParams(archived)))
	if err != nil {
		return nil, fmt.Errorf("projects of group %s: %w", g.Name, err)
	}
	return projects, nil
}

// Project fetches one project by numeric id or path with namespace.
func (c *Client) Project(ctx context.Context, idOrPath string) (Project, error) {
	p, err := getOne[Project](ctx, c, "projects", c.baseURL+"/projects/"+url.PathEscape(idOrPath))
	if err != nil {
		return Project{}, fmt.Errorf("project %s: %w", idOrPath, err)
	}
	return p, nil
}

// UserProjects lists the projects owned by a user (name or id).
func (c *Client) UserProjects(ctx context.Context, user, archived string) ([]Project, error) {
	projects, err := getAll[Project](ctx, c, "projects", c.endpoint("/users/"+url.PathEscape(user)+"/projects", listParams(archived)))
	if err != nil {
		return nil, fmt.Errorf("projects of user %s: %w", user, err)
	}
	c.log.Debug("using user projects", zap.String("user", user), zap.Strings("projects", projectNames(projects)))
	return projects, nil
}

// MemberProjects lists the projects the caller is a member of.
func (c *Client) MemberProjects(ctx context.Context, archived string) ([]Project, error) {
	q := listParams(archived)
	q.Set("membership", "true")
	projects, err := getAll[Project](ctx, c, "projects", c.endpoint("/projects", q))
	if err != nil {
		return nil, fmt.Errorf("member projects: %w", err)
	}
	c.log.Debug("using my projects", zap.Strings("projects", projectNames(projects)))
	return projects, nil
}

// SearchBlobs runs a code search in one project.
func (c *Client) SearchBlobs(ctx context.Context, p Project, crit BlobCriteria) ([]Blob, error) {
	q := url.Values{"scope": {"blobs"}, "search": {crit.Query()}, "per_page": {perPage}}
	blobs, err := getAll[Blob](ctx, c, "search", c.endpoint("/projects/"+strconv.Itoa(p.ID)+"/search", q))
	if err != nil {
		return nil, fmt.Errorf("search blobs in %s: %w", p.Name, err)
	}
	return blobs, nil
}

// SearchScope runs a search of any non-blob scope in one project.
func (c *Client) SearchScope(ctx context.Context, p Project, scope, term string) ([]Item, error) {
	q := url.Values{"scope": {scope}, "search": {term}, "per_page": {perPage}}
	items, err := getAll[Item](ctx, c, "search", c.endpoint("/projects/"+strconv.Itoa(p.ID)+"/search", q))
	if err != nil {
		return nil, fmt.Errorf("search %s in %s: %w", scope, p.Name, err)
	}
	return items, nil
}

// Tree lists the repository tree of p at ref, recursively.
func (c *Client) Tree(ctx context.Context, p Project, ref string) ([]FileEntry, error) {
	if ref == "" {
		ref = "HEAD"
	}
	q := url.Values{"recursive": {"true"}, "per_page": {perPage}, "ref": {ref}}
	entries, err := getAll[FileEntry](ctx, c, "tree", c.endpoint("/projects/"+strconv.Itoa(p.ID)+"/repository/tree", q))
	if err != nil {
		return nil, fmt.Errorf("tree of %s: %w", p.Name, err)
	}
	return entries, nil
}

func groupNames(groups []Group) []string {
	out := make([]string, len(groups))
	for i, g := range groups {
		out[i] = g.Name
	}
	return out
}

func projectNames(projects []Project) []string {
	out := make([]string, len(projects))
	for i, p := range projects {
		out[i] = p.Name
	}
	return out
}
