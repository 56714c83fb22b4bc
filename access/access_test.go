package access

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"content-gateway/platform/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func testConfig(t *testing.T, upstreamURL string) config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.APIBaseURL = upstreamURL
	cfg.TokenStore = "memory"
	cfg.TokenPath = filepath.Join(t.TempDir(), "token")
	cfg.MinDispatchInterval = 20 * time.Millisecond
	return cfg
}

func TestNew_InteractiveHasNoDispatcher(t *testing.T) {
	l, err := New(context.Background(), testConfig(t, "http://127.0.0.1:1"), Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer l.Close()

	if l.Dispatcher != nil {
		t.Fatalf("interactive mode must not build a dispatcher")
	}
	if l.Client == nil || l.Resolver == nil || l.Inbound == nil {
		t.Fatalf("layer not fully built: %+v", l)
	}
	if l.Stats != nil {
		t.Fatalf("no registry and no redis means no stats store")
	}
}

func TestNew_BulkModeRoutesThroughDispatcher(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	reg := prometheus.NewRegistry()
	bulk := true
	l, err := New(context.Background(), testConfig(t, srv.URL), Options{Registry: reg, BulkMode: &bulk})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer l.Close()

	if l.Dispatcher == nil || !l.Dispatcher.Enabled() {
		t.Fatalf("bulk mode must build an enabled dispatcher")
	}

	start := time.Now()
	for _, id := range []string{"a", "b", "c"} {
		if _, err := l.Client.GetPage(context.Background(), id); err != nil {
			t.Fatalf("GetPage(%s): %v", id, err)
		}
	}
	if el := time.Since(start); el < 40*time.Millisecond {
		t.Fatalf("3 dispatches at 20ms spacing took only %s", el)
	}
	if hits.Load() != 3 {
		t.Fatalf("expected 3 upstream hits, got %d", hits.Load())
	}
	if n, err := testutil.GatherAndCount(reg, "gateway_access_events_total"); err != nil || n == 0 {
		t.Fatalf("expected access events in registry, got (%d, %v)", n, err)
	}
}

func TestNew_SQLiteTokenStore(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.TokenStore = "sqlite"
	cfg.TokenPath = filepath.Join(t.TempDir(), "token.db")
	bulk := true

	l, err := New(context.Background(), cfg, Options{BulkMode: &bulk})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if l.Dispatcher == nil {
		t.Fatalf("expected dispatcher")
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestNew_UnknownTokenStore(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.TokenStore = "etcd"
	bulk := true

	if _, err := New(context.Background(), cfg, Options{BulkMode: &bulk}); err == nil {
		t.Fatalf("expected error for unknown token store")
	}
}

func TestNew_MappingSourceFromConfig(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"acme","notion_page_id":"root-acme","theme":"gitbook"}`))
	}))
	defer srv.Close()

	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.MappingAPIURL = srv.URL
	cfg.DefaultPageID = "root-default"

	l, err := New(context.Background(), cfg, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer l.Close()

	id := l.Resolver.ResolveHost(context.Background(), "acme.com")
	if id.ID != "acme" || id.Theme != "gitbook" {
		t.Fatalf("unexpected identity: %+v", id)
	}
	if root := l.Resolver.ContentRoot(context.Background(), id); root != "root-acme" {
		t.Fatalf("expected root-acme, got %q", root)
	}
}
