package infra

import (
	"context"
	"sync"
)

// ChanPool limita quantas requests interativas seguem juntas para o upstream.
// Capacidade <= 0 não limita.
type ChanPool struct {
	slots chan struct{}
}

func NewChanPool(capacity int) *ChanPool {
	if capacity <= 0 {
		return &ChanPool{}
	}
	return &ChanPool{slots: make(chan struct{}, capacity)}
}

// Acquire ocupa uma vaga ou desiste quando o ctx encerra. O release é idempotente.
func (p *ChanPool) Acquire(ctx context.Context) (func(), bool) {
	if p.slots == nil {
		return func() {}, true
	}
	select {
	case p.slots <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-p.slots }) }, true
	case <-ctx.Done():
		return nil, false
	}
}

// InUse devolve quantas vagas estão ocupadas agora.
func (p *ChanPool) InUse() int { return len(p.slots) }

// Cap devolve a capacidade (0 = ilimitado).
func (p *ChanPool) Cap() int { return cap(p.slots) }
