package infra

import (
	"context"
	"testing"
	"time"
)

func TestChanPool_CountsSlotsAndReleasesOnce(t *testing.T) {
	p := NewChanPool(2)

	r1, ok := p.Acquire(context.Background())
	if !ok {
		t.Fatalf("expected first slot")
	}
	r2, ok := p.Acquire(context.Background())
	if !ok {
		t.Fatalf("expected second slot")
	}
	if p.InUse() != 2 || p.Cap() != 2 {
		t.Fatalf("expected 2/2 in use, got %d/%d", p.InUse(), p.Cap())
	}

	r1()
	r1()
	if p.InUse() != 1 {
		t.Fatalf("double release must free one slot, in use %d", p.InUse())
	}
	r2()
}

func TestChanPool_FullPoolWaitsForContext(t *testing.T) {
	p := NewChanPool(1)
	release, _ := p.Acquire(context.Background())
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, ok := p.Acquire(ctx); ok {
		t.Fatalf("expected full pool to give up with the context")
	}
}

func TestChanPool_ZeroCapacityIsUnlimited(t *testing.T) {
	p := NewChanPool(0)
	for range 100 {
		if _, ok := p.Acquire(context.Background()); !ok {
			t.Fatalf("unlimited pool refused a slot")
		}
	}
	if p.Cap() != 0 || p.InUse() != 0 {
		t.Fatalf("unlimited pool must report 0/0, got %d/%d", p.InUse(), p.Cap())
	}
}
