package application

import (
	"context"
	"time"

	"content-gateway/access/domain"
)

// InboundService decide se uma request de entrada pode seguir, por tenant.
//
// Não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
type InboundService struct {
	Store      domain.LimiterStore
	RetryAfter time.Duration
	Stats      domain.StatsStore
}

func (s InboundService) Decide(ctx context.Context, key domain.Key) domain.Decision {
	if s.Store == nil {
		return domain.Decision{Allowed: true}
	}
	if s.RetryAfter <= 0 {
		s.RetryAfter = 1 * time.Second
	}

	lim := s.Store.Get(key)
	if lim == nil || lim.Allow() {
		s.record(ctx, key, domain.StatsInboundAllowed)
		return domain.Decision{Allowed: true}
	}
	s.record(ctx, key, domain.StatsInboundDenied)
	return domain.Decision{Allowed: false, RetryAfter: s.RetryAfter}
}

func (s InboundService) record(ctx context.Context, key domain.Key, kind domain.StatsKind) {
	if s.Stats == nil {
		return
	}
	_ = s.Stats.Record(ctx, domain.StatsEvent{Kind: kind, Tenant: string(key), At: time.Now()})
}

// ConcurrencyService concentra a regra de aquisição/liberação de vagas com timeout,
// sem saber nada sobre HTTP. Uma recusa vira evento inbound_busy do tenant do ctx.
type ConcurrencyService struct {
	Pool           domain.SlotPool
	AcquireTimeout time.Duration
	Stats          domain.StatsStore
}

// Acquire tenta adquirir uma vaga.
// - Se `AcquireTimeout <= 0`, espera indefinidamente (até ctx cancelar).
// - Se `AcquireTimeout > 0`, espera até o timeout.
// Retorna (release, ok). Se ok=false, nenhuma vaga foi adquirida.
func (s ConcurrencyService) Acquire(ctx context.Context) (func(), bool) {
	if s.Pool == nil {
		return func() {}, true
	}

	acqCtx := ctx
	if s.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		acqCtx, cancel = context.WithTimeout(ctx, s.AcquireTimeout)
		defer cancel()
	}

	release, ok := s.Pool.Acquire(acqCtx)
	if !ok && s.Stats != nil {
		_ = s.Stats.Record(ctx, domain.StatsEvent{
			Kind:   domain.StatsInboundBusy,
			Tenant: domain.TenantFrom(ctx).ID,
			At:     time.Now(),
		})
	}
	return release, ok
}
