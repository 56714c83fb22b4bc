package infra

import (
	"context"
	"errors"
	"testing"
	"time"

	"content-gateway/access/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func statsEvent(kind domain.StatsKind, tenant string) domain.StatsEvent {
	return domain.StatsEvent{Kind: kind, Tenant: tenant, Op: "getPage", At: time.Now()}
}

func TestMemoryStatsStore_CountsByKindAndTenant(t *testing.T) {
	s := NewMemoryStatsStore(WithTrackTenants(true))
	ctx := context.Background()
	_ = s.Record(ctx, statsEvent(domain.StatsDispatch, "acme"))
	_ = s.Record(ctx, statsEvent(domain.StatsDispatch, "globex"))
	_ = s.Record(ctx, statsEvent(domain.StatsCoalesced, "acme"))

	if got := s.Count(domain.StatsDispatch); got != 2 {
		t.Fatalf("expected 2 dispatches, got %d", got)
	}
	acme := s.ByTenant("acme")
	if acme[domain.StatsDispatch] != 1 || acme[domain.StatsCoalesced] != 1 {
		t.Fatalf("unexpected per-tenant counts: %v", acme)
	}
}

func TestPromStatsStore_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := NewPromStatsStore(reg)
	ctx := context.Background()

	_ = s.Record(ctx, statsEvent(domain.StatsUpstreamCall, "acme"))
	_ = s.Record(ctx, statsEvent(domain.StatsUpstreamCall, "acme"))
	_ = s.Record(ctx, domain.StatsEvent{Kind: domain.StatsWait, Wait: 150 * time.Millisecond})

	if got := testutil.ToFloat64(s.events.WithLabelValues("upstream_call", "getPage")); got != 2 {
		t.Fatalf("expected 2 upstream calls, got %v", got)
	}
	if n := testutil.CollectAndCount(s.wait); n != 1 {
		t.Fatalf("expected the wait histogram to be collected, got %d", n)
	}
}

type failingStats struct{}

func (failingStats) Record(context.Context, domain.StatsEvent) error { return errors.New("down") }

func TestMultiStats_FansOutAndJoinsErrors(t *testing.T) {
	mem := NewMemoryStatsStore()
	m := MultiStats{mem, nil, failingStats{}}

	err := m.Record(context.Background(), statsEvent(domain.StatsDispatch, ""))
	if err == nil {
		t.Fatalf("expected the failing store error")
	}
	if mem.Count(domain.StatsDispatch) != 1 {
		t.Fatalf("healthy stores must still record")
	}
}
