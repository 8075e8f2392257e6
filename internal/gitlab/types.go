package gitlab

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Group is a GitLab group. ID holds either the numeric id or the full path,
// both are accepted by the API.
type Group struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	FullPath string `json:"full_path,omitempty" yaml:"full_path,omitempty"`
}

// Matches reports whether ref names this group by id, name or full path.
func (g Group) Matches(ref string) bool {
	return ref == g.ID || ref == g.Name || (g.FullPath != "" && ref == g.FullPath)
}

type apiGroup struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	FullPath string `json:"full_path"`
}

func (g apiGroup) group() Group {
	return Group{ID: strconv.Itoa(g.ID), Name: g.Name, FullPath: g.FullPath}
}

// Project is a GitLab project.
type Project struct {
	ID                int    `json:"id" yaml:"id"`
	Name              string `json:"name" yaml:"name"`
	PathWithNamespace string `json:"path_with_namespace" yaml:"path_with_namespace"`
	WebURL            string `json:"web_url" yaml:"web_url"`
	Archived          bool   `json:"archived" yaml:"archived"`
	DefaultBranch     string `json:"default_branch,omitempty" yaml:"default_branch,omitempty"`
}

// Blob is a code search hit (scope "blobs").
type Blob struct {
	Basename  string `json:"basename" yaml:"basename"`
	Data      string `json:"data" yaml:"data"`
	Path      string `json:"path" yaml:"path"`
	Filename  string `json:"filename" yaml:"filename"`
	Ref       string `json:"ref" yaml:"ref"`
	Startline int    `json:"startline" yaml:"startline"`
	ProjectID int    `json:"project_id" yaml:"project_id"`
}

// FilePath returns the repository path of the hit. Older GitLab versions
// only fill in filename.
func (b Blob) FilePath() string {
	if b.Path != "" {
		return b.Path
	}
	return b.Filename
}

// FileEntry is a repository tree entry (scope "files").
type FileEntry struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
	Path string `json:"path" yaml:"path"`
}

// Item is a search hit of any other scope (issues, merge_requests,
// milestones, wiki_blobs, commits, notes). The payload is kept as returned by
// GitLab; accessors cover the fields the tool uses.
type Item map[string]any

// Field returns the field key as a string, or "" when absent.
func (it Item) Field(key string) string {
	switch v := it[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Identity returns a stable id for the item within a project and scope.
func (it Item) Identity(scope string) string {
	switch scope {
	case "issues", "merge_requests", "milestones":
		if iid := it.Field("iid"); iid != "" {
			return iid
		}
	case "wiki_blobs":
		for _, k := range []string{"slug", "path", "filename"} {
			if v := it.Field(k); v != "" {
				return v
			}
		}
	case "commits":
		if id := it.Field("id"); id != "" {
			return id
		}
		return it.Field("short_id")
	}
	return it.Field("id")
}

// ProjectResults groups the hits of one project.
type ProjectResults[T any] struct {
	Project Project `json:"project" yaml:"project"`
	Results []T     `json:"results" yaml:"results"`
}

// BlobCriteria narrows a blob search with GitLab's search qualifiers.
type BlobCriteria struct {
	Term      string
	Filename  string
	Extension string
	Path      string
}

// Query renders the search string including filename:, extension: and path:
// qualifiers.
func (c BlobCriteria) Query() string {
	q := c.Term
	if c.Filename != "" {
		q += " filename:" + c.Filename
	}
	if c.Extension != "" {
		q += " extension:" + c.Extension
	}
	if c.Path != "" {
		q += " path:" + c.Path
	}
	return q
}
