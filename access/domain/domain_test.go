package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestReservedSubdomains_ExactList(t *testing.T) {
	want := map[string]bool{"www": true, "api": true, "admin": true, "blog": true, "app": true}
	got := ReservedSubdomains()
	if len(got) != len(want) {
		t.Fatalf("expected %d reserved labels, got %v", len(want), got)
	}
	for _, l := range got {
		if !want[l] {
			t.Fatalf("unexpected reserved label %q", l)
		}
	}
	if !IsReservedSubdomain("Blog") || IsReservedSubdomain("acme") {
		t.Fatalf("reserved check must be case-insensitive and exact")
	}
}

func TestNormalizeTheme(t *testing.T) {
	cases := []struct {
		in, out string
		coerced bool
	}{
		{"", DefaultTheme, false},
		{"heo", "heo", false},
		{"gitbook", "gitbook", false},
		{" typography ", "typography", false},
		{"hacked-theme", "heo", true},
		{"GITBOOK", "heo", true},
	}
	for _, tc := range cases {
		out, coerced := NormalizeTheme(tc.in)
		if out != tc.out || coerced != tc.coerced {
			t.Fatalf("NormalizeTheme(%q) = (%q, %v), want (%q, %v)", tc.in, out, coerced, tc.out, tc.coerced)
		}
	}
}

func TestDomainMapping_Fresh(t *testing.T) {
	at := time.Now()
	m := DomainMapping{FetchedAt: at}
	if !m.Fresh(at.Add(59*time.Second), time.Minute) {
		t.Fatalf("expected fresh inside TTL")
	}
	if m.Fresh(at.Add(time.Minute), time.Minute) {
		t.Fatalf("expected stale at exactly TTL")
	}
}

func TestTenantFrom_DefaultOutsideRequest(t *testing.T) {
	if id := TenantFrom(context.Background()); !id.IsDefault || id.ID != DefaultTenantID || id.Theme != DefaultTheme {
		t.Fatalf("expected default identity, got %+v", id)
	}
	ctx := WithTenant(context.Background(), TenantIdentity{ID: "acme", Theme: "gitbook"})
	if id := TenantFrom(ctx); id.ID != "acme" {
		t.Fatalf("expected acme, got %+v", id)
	}
}

func TestError_IsByKind(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("fetch page: %w", &Error{
		Kind:     KindUpstreamUnavailable,
		Op:       "getPage",
		Endpoint: "/loadPageChunk",
		Status:   503,
		Err:      cause,
	})

	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("expected errors.Is by kind")
	}
	if errors.Is(err, ErrMappingLookupFailed) {
		t.Fatalf("different kinds must not match")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected the cause to be reachable")
	}
	if KindOf(err) != KindUpstreamUnavailable || KindOf(cause) != KindUnknown {
		t.Fatalf("unexpected KindOf results")
	}
	want := "fetch page: getPage: upstream_unavailable endpoint=/loadPageChunk status=503: connection refused"
	if err.Error() != want {
		t.Fatalf("unexpected message:\n%s\n%s", err.Error(), want)
	}
}

func TestParseOperation(t *testing.T) {
	for _, name := range []string{"getPage", "getBlocks", "getUsers", "queryCollection", "getSignedFileUrls"} {
		op, err := ParseOperation(name)
		if err != nil || op.Endpoint() == "" {
			t.Fatalf("%s: unexpected (%q, %v)", name, op.Endpoint(), err)
		}
	}
	if _, err := ParseOperation("deleteEverything"); !errors.Is(err, ErrUnknownOperation) {
		t.Fatalf("expected UnknownOperation, got %v", err)
	}
	if OpGetBlocks.Endpoint() != "/syncRecordValues" {
		t.Fatalf("getBlocks must target syncRecordValues before alias rewrite")
	}
}
