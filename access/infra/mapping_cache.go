package infra

import (
	"context"
	"sync"
	"time"

	"content-gateway/access/domain"
)

// MappingCache guarda DomainMapping por host.
//
// Uma entrada é válida enquanto now - FetchedAt < ttl. Entradas vencidas continuam
// guardadas por retain para servir de último recurso quando o serviço de mapeamento
// falha; o janitor remove o que passou disso.
type MappingCache struct {
	mu           sync.RWMutex
	entries      map[string]domain.DomainMapping
	ttl          time.Duration
	retain       time.Duration
	cleanupEvery time.Duration
	now          func() time.Time
}

type MappingCacheOption func(*MappingCache)

// WithRetain define por quanto tempo uma entrada vencida ainda pode ser servida em falha.
func WithRetain(d time.Duration) MappingCacheOption {
	return func(c *MappingCache) { c.retain = d }
}

func WithMappingCleanupEvery(d time.Duration) MappingCacheOption {
	return func(c *MappingCache) { c.cleanupEvery = d }
}

// WithClock troca o relógio (testes de TTL).
func WithClock(now func() time.Time) MappingCacheOption {
	return func(c *MappingCache) { c.now = now }
}

func NewMappingCache(ttl time.Duration, opts ...MappingCacheOption) *MappingCache {
	if ttl <= 0 {
		ttl = domain.DefaultMappingTTL
	}
	c := &MappingCache{
		entries:      make(map[string]domain.DomainMapping),
		ttl:          ttl,
		retain:       10 * ttl,
		cleanupEvery: 2 * time.Minute,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *MappingCache) TTL() time.Duration { return c.ttl }

// Get devolve a entrada do host e se ela ainda está dentro do TTL.
func (c *MappingCache) Get(host string) (m domain.DomainMapping, fresh bool, ok bool) {
	c.mu.RLock()
	m, ok = c.entries[host]
	c.mu.RUnlock()
	if !ok {
		return domain.DomainMapping{}, false, false
	}
	return m, m.Fresh(c.now(), c.ttl), true
}

// Put grava a configuração buscada agora.
func (c *MappingCache) Put(host string, cfg domain.TenantConfig) domain.DomainMapping {
	m := domain.DomainMapping{Host: host, Config: cfg, FetchedAt: c.now()}
	c.mu.Lock()
	c.entries[host] = m
	c.mu.Unlock()
	return m
}

func (c *MappingCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *MappingCache) Cleanup() {
	cutoff := c.now().Add(-(c.ttl + c.retain))

	c.mu.Lock()
	defer c.mu.Unlock()
	for k, m := range c.entries {
		if m.FetchedAt.Before(cutoff) {
			delete(c.entries, k)
		}
	}
}

// StartJanitor limpa entradas velhas periodicamente até o ctx encerrar.
func (c *MappingCache) StartJanitor(ctx context.Context) {
	startJanitor(ctx, c.cleanupEvery, c.Cleanup)
}
