package tenant

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"content-gateway/access/application"
	"content-gateway/access/domain"
	"content-gateway/platform/logger"
)

func TestMiddleware_PropagatesIdentity(t *testing.T) {
	res := application.NewResolver(application.WithResolverLogger(logger.Nop()))

	var (
		got   domain.TenantIdentity
		query map[string]string
	)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = domain.TenantFrom(r.Context())
		q := r.URL.Query()
		query = map[string]string{
			"_tenant":    q.Get("_tenant"),
			"_theme":     q.Get("_theme"),
			"_subdomain": q.Get("_subdomain"),
			"page":       q.Get("page"),
		}
		w.WriteHeader(http.StatusOK)
	})

	h := Middleware(res, Options{})(next)
	r := httptest.NewRequest(http.MethodGet, "http://acme.example.com/posts?page=2", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if got.ID != "acme" {
		t.Fatalf("expected tenant acme in ctx, got %+v", got)
	}
	if query["_tenant"] != "acme" || query["_theme"] != "heo" || query["_subdomain"] != "acme" {
		t.Fatalf("unexpected augmented query %v", query)
	}
	if query["page"] != "2" {
		t.Fatalf("existing query params must be kept, got %v", query)
	}
	if h := w.Header().Get(HeaderTenantID); h != "acme" {
		t.Fatalf("expected %s=acme, got %q", HeaderTenantID, h)
	}
}

func TestMiddleware_RoundTripsOverride(t *testing.T) {
	res := application.NewResolver(
		application.WithResolverLogger(logger.Nop()),
		application.WithTrustedOverride(true),
	)

	var got domain.TenantIdentity
	h := Middleware(res, Options{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = domain.TenantFrom(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "http://render.internal/?_tenant=globex&_theme=gitbook", nil)
	h.ServeHTTP(httptest.NewRecorder(), r)

	if got.ID != "globex" || got.Theme != "gitbook" {
		t.Fatalf("expected identity from the override params, got %+v", got)
	}
}

func TestMiddleware_IgnoresClientOverride(t *testing.T) {
	res := application.NewResolver(application.WithResolverLogger(logger.Nop()))

	var (
		got   domain.TenantIdentity
		query string
	)
	h := Middleware(res, Options{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = domain.TenantFrom(r.Context())
		query = r.URL.Query().Get("_tenant")
	}))

	r := httptest.NewRequest(http.MethodGet, "http://acme.example.com/?_tenant=globex", nil)
	h.ServeHTTP(httptest.NewRecorder(), r)

	if got.ID != "acme" || query != "acme" {
		t.Fatalf("expected host tenant to replace the client _tenant, got %+v (query %q)", got, query)
	}
}

func TestMiddleware_SkipsAPIPaths(t *testing.T) {
	res := application.NewResolver(application.WithResolverLogger(logger.Nop()))

	var (
		query  string
		tenant domain.TenantIdentity
	)
	h := Middleware(res, Options{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		tenant = domain.TenantFrom(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "http://acme.example.com/api/health", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if query != "" {
		t.Fatalf("api paths must not be augmented, got %q", query)
	}
	if !tenant.IsDefault {
		t.Fatalf("api paths must not carry a resolved tenant, got %+v", tenant)
	}
	if w.Header().Get(HeaderTenantID) != "" {
		t.Fatalf("api paths must not get the tenant header")
	}
}
