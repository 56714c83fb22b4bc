package domain

import (
	"context"
	"time"
)

// StatsKind é o tipo de evento observado pela camada de acesso.
type StatsKind string

const (
	StatsDispatch        StatsKind = "dispatch"
	StatsWait            StatsKind = "wait"
	StatsDegraded        StatsKind = "degraded"
	StatsCoalesced       StatsKind = "coalesced"
	StatsUpstreamCall    StatsKind = "upstream_call"
	StatsUpstreamError   StatsKind = "upstream_error"
	StatsMappingHit      StatsKind = "mapping_hit"
	StatsMappingMiss     StatsKind = "mapping_miss"
	StatsMappingFallback StatsKind = "mapping_fallback"
	StatsInboundAllowed  StatsKind = "inbound_allowed"
	StatsInboundDenied   StatsKind = "inbound_denied"
	StatsInboundBusy     StatsKind = "inbound_busy"
)

// StatsEvent representa um evento de decisão da camada de acesso.
//
// Observação: cuidado com cardinalidade (Tenant/Op sem controle podem
// explodir o número de séries/chaves em Redis/Prometheus).
type StatsEvent struct {
	Kind   StatsKind
	Tenant string
	Op     string
	Wait   time.Duration

	At time.Time
}

// StatsStore é a estratégia de persistência para estatísticas.
//
// Implementações podem armazenar em Redis, Prometheus, memória, etc.
// Quem registra trata erro como best-effort (nunca derruba a chamada).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
