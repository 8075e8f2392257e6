package gitlab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/KaramelBytes/gitlab-search/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type ipv4Server struct {
	URL string
	srv *http.Server
	ln  net.Listener
}

func newIPv4Server(t *testing.T, handler http.Handler) *ipv4Server {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		if errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EPERM) {
			t.Skipf("skipping test: cannot open local listener (%v)", err)
		}
		t.Fatalf("listen tcp4: %v", err)
	}
	srv := &http.Server{Handler: handler}
	s := &ipv4Server{
		URL: "http://" + ln.Addr().String(),
		srv: srv,
		ln:  ln,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			panic(fmt.Sprintf("test server serve: %v", err))
		}
	}()
	return s
}

func (s *ipv4Server) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = s.srv.Shutdown(ctx)
}

func testClient(srv *ipv4Server, opts Options) *Client {
	opts.BaseURL = srv.URL + "/api/v4"
	if opts.Token == "" {
		opts.Token = "glpat-test"
	}
	if opts.BaseDelay == 0 {
		opts.BaseDelay = 10 * time.Millisecond
	}
	if opts.MaxDelay == 0 {
		opts.MaxDelay = 50 * time.Millisecond
	}
	return New(opts)
}

func testServerSequence(t *testing.T, statuses []int, headers []http.Header, bodyOK any) *ipv4Server {
	t.Helper()
	var idx int32
	return newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v4/groups" {
			http.NotFound(w, r)
			return
		}
		i := int(atomic.AddInt32(&idx, 1)) - 1
		if i >= len(statuses) {
			i = len(statuses) - 1
		}
		st := statuses[i]
		if headers != nil && i < len(headers) && headers[i] != nil {
			for k, vals := range headers[i] {
				for _, v := range vals {
					w.Header().Add(k, v)
				}
			}
		}
		w.WriteHeader(st)
		if st >= 200 && st < 300 {
			_ = json.NewEncoder(w).Encode(bodyOK)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"message": "slow down"})
	}))
}

func TestListGroupsRetriesOn429(t *testing.T) {
	body := []map[string]any{{"id": 7, "name": "backend", "full_path": "acme/backend"}}
	srv := testServerSequence(t, []int{429, 200}, []http.Header{{"Retry-After": {"0"}}, {}}, body)
	defer srv.Close()

	c := testClient(srv, Options{RetryMax: 3})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	groups, err := c.ListGroups(ctx)
	if err != nil {
		t.Fatalf("ListGroups returned error: %v", err)
	}
	if len(groups) != 1 || groups[0].ID != "7" || groups[0].Name != "backend" {
		t.Fatalf("unexpected groups: %+v", groups)
	}
}

func TestRetriesExhaustedReturnsRateLimitError(t *testing.T) {
	srv := testServerSequence(t, []int{429}, []http.Header{{"Retry-After": {"0"}}}, nil)
	defer srv.Close()

	c := testClient(srv, Options{RetryMax: 2})
	_, err := c.ListGroups(context.Background())
	var rl *RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("expected RateLimitError, got %T: %v", err, err)
	}
	if !strings.Contains(err.Error(), "slow down") {
		t.Fatalf("expected server message in error, got: %v", err)
	}
}

func TestServerErrorIsRetried(t *testing.T) {
	body := []map[string]any{{"id": 1, "name": "g"}}
	srv := testServerSequence(t, []int{502, 503, 200}, nil, body)
	defer srv.Close()

	c := testClient(srv, Options{RetryMax: 3})
	groups, err := c.ListGroups(context.Background())
	if err != nil {
		t.Fatalf("ListGroups returned error: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
}

func TestUnauthorizedIsAuthError(t *testing.T) {
	var calls int32
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{"message": "401 Unauthorized"})
	}))
	defer srv.Close()

	c := testClient(srv, Options{RetryMax: 3})
	_, err := c.MemberProjects(context.Background(), ArchivedInclude)
	var ae *AuthError
	if !errors.As(err, &ae) {
		t.Fatalf("expected AuthError, got %T: %v", err, err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("401 must not be retried, got %d calls", n)
	}
}

func TestErrorIncludesRequestID(t *testing.T) {
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-Id", "req_test_123")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "scope does not have a valid value"})
	}))
	defer srv.Close()

	c := testClient(srv, Options{RetryMax: 1})
	_, err := c.SearchScope(context.Background(), Project{ID: 3, Name: "api"}, "bogus", "x")
	if err == nil {
		t.Fatalf("expected error")
	}
	var br *BadRequestError
	if !errors.As(err, &br) {
		t.Fatalf("expected BadRequestError, got %T", err)
	}
	if !strings.Contains(err.Error(), "req_test_123") || !strings.Contains(err.Error(), "scope does not have a valid value") {
		t.Fatalf("expected request id and message in error, got: %v", err)
	}
}

func TestRequestHeaders(t *testing.T) {
	var got http.Header
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		_ = json.NewEncoder(w).Encode(map[string]any{"id": 42, "name": "api", "web_url": "https://gitlab.example/acme/api"})
	}))
	defer srv.Close()

	c := testClient(srv, Options{Token: "secret", RequestID: "run-1", UserAgent: "gitlab-search/test"})
	p, err := c.Project(context.Background(), "acme/api")
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	if p.ID != 42 {
		t.Fatalf("unexpected project: %+v", p)
	}
	if got.Get("PRIVATE-TOKEN") != "secret" {
		t.Fatalf("missing token header: %v", got)
	}
	if got.Get("X-Request-Id") != "run-1" || got.Get("User-Agent") != "gitlab-search/test" {
		t.Fatalf("unexpected headers: %v", got)
	}
}

func TestProjectPathIsEscaped(t *testing.T) {
	var rawPath string
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawPath = r.URL.EscapedPath()
		_ = json.NewEncoder(w).Encode(map[string]any{"id": 1})
	}))
	defer srv.Close()

	c := testClient(srv, Options{})
	if _, err := c.Project(context.Background(), "acme/api"); err != nil {
		t.Fatalf("Project: %v", err)
	}
	if rawPath != "/api/v4/projects/acme%2Fapi" {
		t.Fatalf("unexpected path: %s", rawPath)
	}
}

func TestPaginationFollowsLinkHeader(t *testing.T) {
	var srv *ipv4Server
	srv = newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("per_page") != "100" {
			t.Errorf("expected per_page=100, got %q", r.URL.RawQuery)
		}
		switch r.URL.Query().Get("page") {
		case "":
			w.Header().Set("Link", fmt.Sprintf(`<%s/api/v4/groups?page=2&per_page=100>; rel="next", <%s/api/v4/groups?page=2&per_page=100>; rel="last"`, srv.URL, srv.URL))
			_ = json.NewEncoder(w).Encode([]map[string]any{{"id": 1, "name": "a"}})
		case "2":
			_ = json.NewEncoder(w).Encode([]map[string]any{{"id": 2, "name": "b"}})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := testClient(srv, Options{})
	groups, err := c.ListGroups(context.Background())
	if err != nil {
		t.Fatalf("ListGroups: %v", err)
	}
	if len(groups) != 2 || groups[0].Name != "a" || groups[1].Name != "b" {
		t.Fatalf("unexpected groups: %+v", groups)
	}
}

func TestArchivedParam(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]string{}
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen[r.URL.Path] = r.URL.Query().Get("archived")
		mu.Unlock()
		if r.URL.Path == "/api/v4/projects" && r.URL.Query().Get("membership") != "true" {
			t.Errorf("membership=true missing: %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte("[]"))
	}))
	defer srv.Close()

	c := testClient(srv, Options{})
	ctx := context.Background()
	if _, err := c.GroupProjects(ctx, Group{ID: "acme", Name: "acme"}, ArchivedOnly); err != nil {
		t.Fatal(err)
	}
	if _, err := c.UserProjects(ctx, "alice", ArchivedExclude); err != nil {
		t.Fatal(err)
	}
	if _, err := c.MemberProjects(ctx, ArchivedInclude); err != nil {
		t.Fatal(err)
	}
	want := map[string]string{
		"/api/v4/groups/acme/projects": "true",
		"/api/v4/users/alice/projects": "false",
		"/api/v4/projects":             "",
	}
	for p, v := range want {
		if seen[p] != v {
			t.Fatalf("archived for %s = %q, want %q", p, seen[p], v)
		}
	}
}

func TestDescendantGroupsFailureYieldsNone(t *testing.T) {
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := testClient(srv, Options{})
	if got := c.DescendantGroups(context.Background(), Group{ID: "acme", Name: "acme"}); got != nil {
		t.Fatalf("expected no groups, got %+v", got)
	}
}

func TestDescendantGroupsUseFullPath(t *testing.T) {
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v4/groups/acme/descendant_groups" || r.URL.Query().Get("all_available") != "true" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode([]map[string]any{{"id": 11, "name": "web", "full_path": "acme/web"}})
	}))
	defer srv.Close()

	c := testClient(srv, Options{})
	got := c.DescendantGroups(context.Background(), Group{ID: "acme", Name: "acme"})
	if len(got) != 1 || got[0].ID != "11" || got[0].Name != "acme/web" {
		t.Fatalf("unexpected descendants: %+v", got)
	}
}

func TestSearchBlobsQuery(t *testing.T) {
	var search, scope string
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		search = r.URL.Query().Get("search")
		scope = r.URL.Query().Get("scope")
		_ = json.NewEncoder(w).Encode([]map[string]any{{
			"basename": "main", "data": "func main()\n", "path": "cmd/main.go",
			"filename": "cmd/main.go", "ref": "main", "startline": 3, "project_id": 5,
		}})
	}))
	defer srv.Close()

	c := testClient(srv, Options{})
	blobs, err := c.SearchBlobs(context.Background(), Project{ID: 5}, BlobCriteria{Term: "func main", Extension: "go", Path: "cmd/*"})
	if err != nil {
		t.Fatalf("SearchBlobs: %v", err)
	}
	if scope != "blobs" || search != "func main extension:go path:cmd/*" {
		t.Fatalf("unexpected query: scope=%q search=%q", scope, search)
	}
	if len(blobs) != 1 || blobs[0].FilePath() != "cmd/main.go" || blobs[0].Startline != 3 {
		t.Fatalf("unexpected blobs: %+v", blobs)
	}
}

func TestMaxRequestsCapsConcurrency(t *testing.T) {
	var inFlight, peak int32
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": 1})
	}))
	defer srv.Close()

	c := testClient(srv, Options{MaxRequests: 2})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := c.Project(context.Background(), fmt.Sprint(i)); err != nil {
				t.Errorf("Project: %v", err)
			}
		}(i)
	}
	wg.Wait()
	if p := atomic.LoadInt32(&peak); p > 2 {
		t.Fatalf("expected at most 2 requests in flight, saw %d", p)
	}
}

type memCache struct {
	mu sync.Mutex
	m  map[string][]byte
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.m[key]
	return b, ok
}

func (c *memCache) Set(_ context.Context, key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = value
}

func TestCacheServesRepeatedFetches(t *testing.T) {
	var calls int32
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_ = json.NewEncoder(w).Encode([]map[string]any{{"id": "a1b2c3", "path": "README.md", "name": "README.md", "type": "blob"}})
	}))
	defer srv.Close()

	m := metrics.New()
	c := testClient(srv, Options{Cache: &memCache{m: map[string][]byte{}}, Metrics: m})
	for i := 0; i < 2; i++ {
		entries, err := c.Tree(context.Background(), Project{ID: 1}, "")
		if err != nil {
			t.Fatalf("Tree: %v", err)
		}
		if len(entries) != 1 || entries[0].Path != "README.md" {
			t.Fatalf("unexpected entries: %+v", entries)
		}
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("expected 1 request, got %d", n)
	}
	if got := testutil.ToFloat64(m.CacheLookups.WithLabelValues("hit")); got != 1 {
		t.Fatalf("expected 1 cache hit, got %v", got)
	}
	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("tree", "200")); got != 1 {
		t.Fatalf("expected 1 tree request, got %v", got)
	}
}

func TestNextLink(t *testing.T) {
	cases := map[string]string{
		"": "",
		`<https://g/api/v4/groups?page=1>; rel="prev", <https://g/api/v4/groups?page=3>; rel="next"`: "https://g/api/v4/groups?page=3",
		`<https://g/api/v4/groups?page=1>; rel="first", <https://g/api/v4/groups?page=9>; rel="last"`: "",
	}
	for in, want := range cases {
		if got := nextLink(in); got != want {
			t.Fatalf("nextLink(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestErrorMessage(t *testing.T) {
	cases := map[string]string{
		`{"message":"404 Project Not Found"}`:  "404 Project Not Found",
		`{"error":"insufficient_scope"}`:       "insufficient_scope",
		`{"message":{"search":["is missing"]}}`: `{"search":["is missing"]}`,
		"plain text":                           "plain text",
	}
	for in, want := range cases {
		if got := errorMessage([]byte(in)); got != want {
			t.Fatalf("errorMessage(%s) = %q, want %q", in, got, want)
		}
	}
}
