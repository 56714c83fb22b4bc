package requestid

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"content-gateway/platform/logger"

	"github.com/google/uuid"
)

func TestMiddleware_GeneratesID(t *testing.T) {
	var inCtx string
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inCtx = logger.RequestID(r.Context())
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	id := w.Header().Get(Header)
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("expected a uuid, got %q", id)
	}
	if inCtx != id {
		t.Fatalf("expected ctx id %q, got %q", id, inCtx)
	}
}

func TestMiddleware_KeepsIncomingID(t *testing.T) {
	h := Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(Header, "edge-123")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if got := w.Header().Get(Header); got != "edge-123" {
		t.Fatalf("expected incoming id to be kept, got %q", got)
	}

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(Header, strings.Repeat("x", 500))
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if got := w.Header().Get(Header); len(got) > maxLen {
		t.Fatalf("oversized ids must be replaced, got %d chars", len(got))
	}
}
