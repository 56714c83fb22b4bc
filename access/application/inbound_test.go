package application

import (
	"context"
	"testing"
	"time"

	"content-gateway/access/domain"
	"content-gateway/access/infra"
)

type fakeLimiter struct {
	allow bool
}

func (f fakeLimiter) Allow() bool { return f.allow }

type fakeLimiterStore struct {
	lim domain.Limiter
}

func (s fakeLimiterStore) Get(domain.Key) domain.Limiter { return s.lim }

func TestInboundService_Decide_AllowsWhenNoStore(t *testing.T) {
	svc := InboundService{}
	dec := svc.Decide(context.Background(), "acme")
	if !dec.Allowed {
		t.Fatalf("expected allowed")
	}
	if dec.RetryAfter != 0 {
		t.Fatalf("expected RetryAfter=0 when allowed, got %s", dec.RetryAfter)
	}
}

func TestInboundService_Decide_BlocksWithRetryAfterDefault(t *testing.T) {
	stats := infra.NewMemoryStatsStore(infra.WithTrackTenants(true))
	svc := InboundService{Store: fakeLimiterStore{lim: fakeLimiter{allow: false}}, Stats: stats}
	dec := svc.Decide(context.Background(), "acme")
	if dec.Allowed {
		t.Fatalf("expected blocked")
	}
	if dec.RetryAfter != 1*time.Second {
		t.Fatalf("expected default RetryAfter=1s, got %s", dec.RetryAfter)
	}
	if got := stats.ByTenant("acme")[domain.StatsInboundDenied]; got != 1 {
		t.Fatalf("expected one denied event for acme, got %d", got)
	}
}

func TestInboundService_Decide_PerTenantBuckets(t *testing.T) {
	svc := InboundService{Store: infra.NewStore(1, 1), RetryAfter: 2500 * time.Millisecond}
	ctx := context.Background()

	if !svc.Decide(ctx, "acme").Allowed {
		t.Fatalf("expected first acme request allowed")
	}
	dec := svc.Decide(ctx, "acme")
	if dec.Allowed || dec.RetryAfter != 2500*time.Millisecond {
		t.Fatalf("expected acme blocked with RetryAfter=2.5s, got %+v", dec)
	}
	if !svc.Decide(ctx, "globex").Allowed {
		t.Fatalf("one tenant's burst must not consume another's")
	}
}

type blockingPool struct{}

func (p *blockingPool) Acquire(ctx context.Context) (func(), bool) {
	select {
	case <-ctx.Done():
		return nil, false
	case <-time.After(5 * time.Second):
		// não deve chegar aqui nos testes
		return nil, false
	}
}

type immediatePool struct {
	acquired int
}

func (p *immediatePool) Acquire(ctx context.Context) (func(), bool) {
	p.acquired++
	return func() {}, true
}

func TestConcurrencyService_Acquire_AllowsWhenNoPool(t *testing.T) {
	svc := ConcurrencyService{}
	release, ok := svc.Acquire(context.Background())
	if !ok {
		t.Fatalf("expected ok")
	}
	release()
}

func TestConcurrencyService_Acquire_UsesTimeout(t *testing.T) {
	svc := ConcurrencyService{Pool: &blockingPool{}, AcquireTimeout: 10 * time.Millisecond}

	_, ok := svc.Acquire(context.Background())
	if ok {
		t.Fatalf("expected timeout and ok=false")
	}
}

func TestConcurrencyService_Acquire_NoTimeoutDelegatesToPool(t *testing.T) {
	pool := &immediatePool{}
	svc := ConcurrencyService{Pool: pool}

	_, ok := svc.Acquire(context.Background())
	if !ok {
		t.Fatalf("expected ok")
	}
	if pool.acquired != 1 {
		t.Fatalf("expected pool Acquire to be called once, got %d", pool.acquired)
	}
}

func TestConcurrencyService_ChanPoolCapacity(t *testing.T) {
	svc := ConcurrencyService{Pool: infra.NewChanPool(1), AcquireTimeout: 10 * time.Millisecond}

	release, ok := svc.Acquire(context.Background())
	if !ok {
		t.Fatalf("expected first slot")
	}
	if _, ok := svc.Acquire(context.Background()); ok {
		t.Fatalf("expected pool to be full")
	}
	release()
	if _, ok := svc.Acquire(context.Background()); !ok {
		t.Fatalf("expected slot after release")
	}
}

func TestConcurrencyService_RecordsBusyForTenant(t *testing.T) {
	stats := infra.NewMemoryStatsStore(infra.WithTrackTenants(true))
	svc := ConcurrencyService{Pool: infra.NewChanPool(1), AcquireTimeout: 10 * time.Millisecond, Stats: stats}

	release, ok := svc.Acquire(context.Background())
	if !ok {
		t.Fatalf("expected first slot")
	}
	defer release()

	ctx := domain.WithTenant(context.Background(), domain.TenantIdentity{ID: "acme"})
	if _, ok := svc.Acquire(ctx); ok {
		t.Fatalf("expected pool to be full")
	}
	if got := stats.ByTenant("acme")[domain.StatsInboundBusy]; got != 1 {
		t.Fatalf("expected one busy event for acme, got %d", got)
	}
}
