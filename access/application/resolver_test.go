package application

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"content-gateway/access/domain"
	"content-gateway/access/infra"
	"content-gateway/platform/logger"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type mappingServer struct {
	*httptest.Server
	hits   atomic.Int32
	status atomic.Int32
	body   atomic.Value
}

func newMappingServer(t *testing.T, body string) *mappingServer {
	t.Helper()
	m := &mappingServer{}
	m.status.Store(http.StatusOK)
	m.body.Store(body)
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(int(m.status.Load()))
		_, _ = w.Write([]byte(m.body.Load().(string)))
	}))
	t.Cleanup(m.Close)
	return m
}

func newTestResolver(srv *mappingServer, clock *fakeClock, opts ...ResolverOption) *Resolver {
	cache := infra.NewMappingCache(time.Minute, infra.WithClock(clock.Now))
	base := []ResolverOption{
		WithMappingSource(infra.NewHTTPMappingSource(srv.URL), cache),
		WithResolverLogger(logger.Nop()),
	}
	return NewResolver(append(base, opts...)...)
}

func request(host, target string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, target, nil)
	r.Host = host
	return r
}

func TestResolver_ReservedSubdomainResolvesToDefault(t *testing.T) {
	srv := newMappingServer(t, `{"theme":"gitbook"}`)
	r := newTestResolver(srv, &fakeClock{now: time.Now()})

	for _, host := range []string{"blog.example.com", "www.example.com", "api.example.com", "admin.example.com", "app.example.com", "BLOG.example.com"} {
		id := r.Resolve(context.Background(), request(host, "/"))
		if !id.IsDefault || id.ID != domain.DefaultTenantID {
			t.Fatalf("%s: expected default identity, got %+v", host, id)
		}
	}
	if srv.hits.Load() != 0 {
		t.Fatalf("reserved subdomains must not trigger lookups, got %d", srv.hits.Load())
	}
}

func TestResolver_SubdomainWithoutRemoteCall(t *testing.T) {
	srv := newMappingServer(t, `{"theme":"gitbook"}`)
	r := newTestResolver(srv, &fakeClock{now: time.Now()})

	id := r.Resolve(context.Background(), request("acme.example.com:8080", "/"))
	if id.ID != "acme" || id.IsDefault {
		t.Fatalf("expected tenant acme, got %+v", id)
	}
	if id.Theme != domain.DefaultTheme {
		t.Fatalf("expected default theme, got %s", id.Theme)
	}
	if id.SourceHost != "acme.example.com" {
		t.Fatalf("expected host without port, got %s", id.SourceHost)
	}
	if srv.hits.Load() != 0 {
		t.Fatalf("expected no remote call, got %d", srv.hits.Load())
	}
}

func TestResolver_CustomDomainCoercesUnknownTheme(t *testing.T) {
	srv := newMappingServer(t, `{"id":"acme","notion_page_id":"p1","theme":"hacked-theme"}`)
	r := newTestResolver(srv, &fakeClock{now: time.Now()})

	id := r.Resolve(context.Background(), request("acme-custom.io", "/"))
	if srv.hits.Load() != 1 {
		t.Fatalf("expected exactly one lookup, got %d", srv.hits.Load())
	}
	if id.Theme != "heo" {
		t.Fatalf("expected theme coerced to heo, got %s", id.Theme)
	}
	if id.ID != "acme" || id.IsDefault {
		t.Fatalf("expected mapped tenant acme, got %+v", id)
	}
}

func TestResolver_CustomDomainKeepsAllowedTheme(t *testing.T) {
	srv := newMappingServer(t, `{"notion_page_id":"p1","theme":"typography"}`)
	r := newTestResolver(srv, &fakeClock{now: time.Now()})

	id := r.Resolve(context.Background(), request("docs-custom.io", "/"))
	if id.Theme != "typography" {
		t.Fatalf("expected typography, got %s", id.Theme)
	}
	if id.ID != "docs-custom.io" {
		t.Fatalf("expected host as tenant id when payload has none, got %s", id.ID)
	}
}

func TestResolver_LookupFailureFallsBackToDefault(t *testing.T) {
	srv := newMappingServer(t, `{"error":"boom"}`)
	srv.status.Store(http.StatusInternalServerError)
	stats := infra.NewMemoryStatsStore()
	r := newTestResolver(srv, &fakeClock{now: time.Now()}, WithResolverStats(stats))

	id := r.Resolve(context.Background(), request("acme-custom.io", "/"))
	if !id.IsDefault || id.Theme != domain.DefaultTheme {
		t.Fatalf("expected default identity, got %+v", id)
	}
	if stats.Count(domain.StatsMappingFallback) != 1 {
		t.Fatalf("expected a fallback event")
	}

	// falha não fica em cache: próxima request tenta de novo
	r.Resolve(context.Background(), request("acme-custom.io", "/"))
	if srv.hits.Load() != 2 {
		t.Fatalf("expected failed lookups to be retried, got %d hits", srv.hits.Load())
	}
}

func TestResolver_MalformedPayloadFallsBack(t *testing.T) {
	srv := newMappingServer(t, `["not","an","object"]`)
	r := newTestResolver(srv, &fakeClock{now: time.Now()})

	if id := r.Resolve(context.Background(), request("acme-custom.io", "/")); !id.IsDefault {
		t.Fatalf("expected default identity, got %+v", id)
	}
}

func TestResolver_CacheTTL(t *testing.T) {
	srv := newMappingServer(t, `{"id":"acme","theme":"gitbook"}`)
	clock := &fakeClock{now: time.Now()}
	r := newTestResolver(srv, clock)
	ctx := context.Background()

	r.Resolve(ctx, request("acme-custom.io", "/"))
	clock.Advance(59 * time.Second)
	r.Resolve(ctx, request("acme-custom.io", "/"))
	if srv.hits.Load() != 1 {
		t.Fatalf("expected no extra lookup within TTL, got %d", srv.hits.Load())
	}

	clock.Advance(2 * time.Second)
	r.Resolve(ctx, request("acme-custom.io", "/"))
	r.Resolve(ctx, request("acme-custom.io", "/"))
	if srv.hits.Load() != 2 {
		t.Fatalf("expected exactly one refresh after TTL, got %d", srv.hits.Load())
	}
}

func TestResolver_ExpiredEntryServedOnFailure(t *testing.T) {
	srv := newMappingServer(t, `{"id":"acme","theme":"gitbook"}`)
	clock := &fakeClock{now: time.Now()}
	r := newTestResolver(srv, clock)
	ctx := context.Background()

	r.Resolve(ctx, request("acme-custom.io", "/"))
	clock.Advance(2 * time.Minute)
	srv.status.Store(http.StatusBadGateway)

	id := r.Resolve(ctx, request("acme-custom.io", "/"))
	if id.ID != "acme" || id.Theme != "gitbook" {
		t.Fatalf("expected expired mapping to be served on failure, got %+v", id)
	}
}

func TestResolver_ConcurrentLookupsCoalesce(t *testing.T) {
	release := make(chan struct{})
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		_, _ = w.Write([]byte(`{"theme":"gitbook"}`))
	}))
	defer srv.Close()

	r := NewResolver(
		WithMappingSource(infra.NewHTTPMappingSource(srv.URL), infra.NewMappingCache(time.Minute)),
		WithResolverLogger(logger.Nop()),
	)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Resolve(context.Background(), request("acme-custom.io", "/"))
		}()
	}
	waitUntil(t, func() bool { return hits.Load() == 1 && r.flight.InFlight() == 1 })
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if hits.Load() != 1 {
		t.Fatalf("expected one lookup for concurrent requests, got %d", hits.Load())
	}
}

func TestResolver_Precedence(t *testing.T) {
	srv := newMappingServer(t, `{"theme":"gitbook"}`)
	clock := &fakeClock{now: time.Now()}

	fixed := newTestResolver(srv, clock, WithFixedTenant("solo"))
	if id := fixed.Resolve(context.Background(), request("acme.example.com", "/?_tenant=other")); id.ID != "solo" {
		t.Fatalf("fixed tenant must win, got %+v", id)
	}
	if id := fixed.Resolve(context.Background(), nil); id.ID != "solo" {
		t.Fatalf("fixed tenant must win outside a request, got %+v", id)
	}

	trusted := newTestResolver(srv, clock, WithTrustedOverride(true))
	id := trusted.Resolve(context.Background(), request("acme.example.com", "/?_tenant=globex&_theme=gitbook"))
	if id.ID != "globex" || id.Theme != "gitbook" {
		t.Fatalf("trusted query override must beat the subdomain, got %+v", id)
	}
	id = trusted.Resolve(context.Background(), request("acme.example.com", "/?_tenant=globex&_theme=neon"))
	if id.Theme != domain.DefaultTheme {
		t.Fatalf("override theme must be validated, got %s", id.Theme)
	}

	r := newTestResolver(srv, clock)
	id = r.Resolve(context.Background(), request("acme.example.com", "/?_tenant=globex&_theme=gitbook"))
	if id.ID != "acme" || id.Theme != domain.DefaultTheme {
		t.Fatalf("untrusted query override must be ignored, got %+v", id)
	}

	if id := r.Resolve(context.Background(), nil); !id.IsDefault {
		t.Fatalf("nil request must resolve to default, got %+v", id)
	}
	for _, host := range []string{"localhost:3000", "127.0.0.1", "[::1]:8080", "intranet"} {
		if id := r.Resolve(context.Background(), request(host, "/")); !id.IsDefault {
			t.Fatalf("%s: expected default identity, got %+v", host, id)
		}
	}
	if srv.hits.Load() != 0 {
		t.Fatalf("expected no lookups, got %d", srv.hits.Load())
	}
}

func TestResolver_NoMappingSource(t *testing.T) {
	r := NewResolver(WithResolverLogger(logger.Nop()))
	if id := r.Resolve(context.Background(), request("acme-custom.io", "/")); !id.IsDefault {
		t.Fatalf("expected default identity without mapping service, got %+v", id)
	}
}

func TestResolver_ContentRoot(t *testing.T) {
	srv := newMappingServer(t, `{"id":"acme","notion_page_id":"root-acme"}`)
	r := newTestResolver(srv, &fakeClock{now: time.Now()}, WithDefaultPageID("root-default"))
	ctx := context.Background()

	if got := r.ContentRoot(ctx, domain.DefaultIdentity("")); got != "root-default" {
		t.Fatalf("expected default page for default tenant, got %s", got)
	}
	if got := r.ContentRoot(ctx, domain.TenantIdentity{ID: "acme"}); got != "root-acme" {
		t.Fatalf("expected tenant page, got %s", got)
	}
	r.ContentRoot(ctx, domain.TenantIdentity{ID: "acme"})
	if srv.hits.Load() != 1 {
		t.Fatalf("expected cached content root, got %d hits", srv.hits.Load())
	}

	srv.status.Store(http.StatusNotFound)
	if got := r.ContentRoot(ctx, domain.TenantIdentity{ID: "missing"}); got != "root-default" {
		t.Fatalf("expected default page on lookup failure, got %s", got)
	}
}

func TestHostOfAndSubdomain(t *testing.T) {
	cases := []struct {
		host, want, sub string
	}{
		{"Acme.Example.com:443", "acme.example.com", "acme"},
		{"example.com.", "example.com", ""},
		{"[::1]:8080", "::1", ""},
		{"a.b.c.d", "a.b.c.d", "a"},
	}
	for _, tc := range cases {
		got := HostOf(request(tc.host, "/"))
		if got != tc.want {
			t.Fatalf("HostOf(%q) = %q, want %q", tc.host, got, tc.want)
		}
		if sub := Subdomain(got); sub != tc.sub {
			t.Fatalf("Subdomain(%q) = %q, want %q", got, sub, tc.sub)
		}
	}
}
