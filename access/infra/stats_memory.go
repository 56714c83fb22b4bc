package infra

import (
	"context"
	"sync"

	"content-gateway/access/domain"
)

// MemoryStatsStore é uma implementação simples em memória.
// Útil para testes e desenvolvimento.
//
// Não faz expiração e não é indicada para produção.
type MemoryStatsStore struct {
	mu       sync.Mutex
	byKind   map[domain.StatsKind]int64
	byTenant map[string]map[domain.StatsKind]int64

	trackTenants bool
}

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackTenants(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackTenants = track }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		byKind:   make(map[domain.StatsKind]int64),
		byTenant: make(map[string]map[domain.StatsKind]int64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byKind[ev.Kind]++
	if s.trackTenants && ev.Tenant != "" {
		m := s.byTenant[ev.Tenant]
		if m == nil {
			m = make(map[domain.StatsKind]int64)
			s.byTenant[ev.Tenant] = m
		}
		m[ev.Kind]++
	}
	return nil
}

// Count devolve o total de eventos do tipo.
func (s *MemoryStatsStore) Count(kind domain.StatsKind) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byKind[kind]
}

func (s *MemoryStatsStore) ByTenant(tenant string) map[domain.StatsKind]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[domain.StatsKind]int64, len(s.byTenant[tenant]))
	for k, v := range s.byTenant[tenant] {
		out[k] = v
	}
	return out
}
