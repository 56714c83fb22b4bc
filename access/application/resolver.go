package application

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"content-gateway/access/domain"
	"content-gateway/platform/logger"
)

// Parâmetros de query que propagam a identidade entre a borda e o render.
const (
	ParamTenant    = "_tenant"
	ParamTheme     = "_theme"
	ParamSubdomain = "_subdomain"
)

// MappingCache é o cache de DomainMapping usado pelo Resolver.
type MappingCache interface {
	Get(host string) (m domain.DomainMapping, fresh bool, ok bool)
	Put(host string, cfg domain.TenantConfig) domain.DomainMapping
}

// Resolver mapeia uma request de entrada para uma TenantIdentity.
//
// Precedência:
//  1. tenant fixo do ambiente (deploy single-tenant), sempre vence;
//  2. override por request (_tenant / _theme), só com WithTrustedOverride: a borda
//     confiável já resolveu o tenant e repassa pela query;
//  3. subdomínio: host com 3+ labels cujo primeiro label não é reservado;
//  4. domínio próprio: lookup remoto pelo host inteiro, com cache de TTL curto;
//  5. identidade padrão.
//
// Falha no lookup remoto nunca falha a request: usa a entrada vencida do cache se
// existir, senão a identidade padrão.
type Resolver struct {
	fixedTenant   string
	trustOverride bool
	defaultPageID string
	source        domain.MappingSource
	cache         MappingCache
	flight        *Coalescer
	stats         domain.StatsStore
	log           *logger.Logger
}

type ResolverOption func(*Resolver)

// WithFixedTenant liga o modo single-tenant: toda request resolve para id.
func WithFixedTenant(id string) ResolverOption {
	return func(r *Resolver) { r.fixedTenant = strings.TrimSpace(id) }
}

// WithTrustedOverride aceita _tenant / _theme da query. Desligado (padrão), a query
// é ignorada e o tenant vem sempre do host.
func WithTrustedOverride(on bool) ResolverOption {
	return func(r *Resolver) { r.trustOverride = on }
}

// WithMappingSource liga o lookup remoto de domínios próprios.
func WithMappingSource(src domain.MappingSource, cache MappingCache) ResolverOption {
	return func(r *Resolver) {
		r.source = src
		r.cache = cache
	}
}

// WithDefaultPageID define a página raiz usada quando o tenant não informa a sua.
func WithDefaultPageID(id string) ResolverOption {
	return func(r *Resolver) { r.defaultPageID = id }
}

func WithResolverStats(s domain.StatsStore) ResolverOption {
	return func(r *Resolver) { r.stats = s }
}

func WithResolverLogger(l *logger.Logger) ResolverOption {
	return func(r *Resolver) { r.log = l }
}

func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{flight: NewCoalescer(nil)}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = logger.Named("resolver")
	}
	if r.source != nil && r.cache == nil {
		r.cache = newMapCache()
	}
	return r
}

// Resolve devolve a identidade da request. req nil (startup, job) devolve a padrão.
func (r *Resolver) Resolve(ctx context.Context, req *http.Request) domain.TenantIdentity {
	if req == nil {
		if r.fixedTenant != "" {
			return r.fixed("")
		}
		return domain.DefaultIdentity("")
	}
	host := HostOf(req)

	if r.fixedTenant != "" {
		return r.fixed(host)
	}

	if !r.trustOverride {
		return r.ResolveHost(ctx, host)
	}
	q := req.URL.Query()
	if id := strings.TrimSpace(q.Get(ParamTenant)); id != "" {
		return domain.TenantIdentity{
			ID:         id,
			SourceHost: host,
			Theme:      r.theme(ctx, q.Get(ParamTheme), host),
			IsDefault:  id == domain.DefaultTenantID,
		}
	}

	return r.ResolveHost(ctx, host)
}

// ResolveHost aplica as regras 3-5 sobre um host já normalizado.
func (r *Resolver) ResolveHost(ctx context.Context, host string) domain.TenantIdentity {
	if host == "" || isLocalHost(host) {
		return domain.DefaultIdentity(host)
	}

	labels := strings.Split(host, ".")
	if len(labels) >= 3 {
		sub := labels[0]
		if sub == "" || domain.IsReservedSubdomain(sub) {
			return domain.DefaultIdentity(host)
		}
		return domain.TenantIdentity{ID: sub, SourceHost: host, Theme: domain.DefaultTheme}
	}
	if len(labels) < 2 {
		return domain.DefaultIdentity(host)
	}
	return r.lookup(ctx, host)
}

// Subdomain devolve o primeiro label de um host com 3+ labels (reservado ou não).
func Subdomain(host string) string {
	if host == "" || isLocalHost(host) {
		return ""
	}
	labels := strings.Split(host, ".")
	if len(labels) >= 3 {
		return labels[0]
	}
	return ""
}

func (r *Resolver) fixed(host string) domain.TenantIdentity {
	return domain.TenantIdentity{
		ID:         r.fixedTenant,
		SourceHost: host,
		Theme:      domain.DefaultTheme,
		IsDefault:  r.fixedTenant == domain.DefaultTenantID,
	}
}

func (r *Resolver) lookup(ctx context.Context, host string) domain.TenantIdentity {
	if r.source == nil {
		return domain.DefaultIdentity(host)
	}

	if m, fresh, ok := r.cache.Get(host); ok && fresh {
		r.record(ctx, domain.StatsMappingHit)
		return identityFromMapping(host, m.Config)
	}

	v, err := r.flight.Do(ctx, domain.CallKey("by-host|"+host), "mapping.bySubdomain", func(ctx context.Context) (any, error) {
		cfg, err := r.source.BySubdomain(ctx, host)
		if err != nil {
			return nil, err
		}
		cfg.Theme = r.theme(ctx, cfg.Theme, host)
		return r.cache.Put(host, cfg), nil
	})
	if err != nil {
		r.record(ctx, domain.StatsMappingFallback)
		if m, _, ok := r.cache.Get(host); ok {
			r.log.Warn().Err(err).Str("host", host).Time("fetched_at", m.FetchedAt).
				Msg("domain mapping lookup failed, serving expired mapping")
			return identityFromMapping(host, m.Config)
		}
		r.log.Warn().Err(err).Str("host", host).Msg("domain mapping lookup failed, using default tenant")
		return domain.DefaultIdentity(host)
	}

	r.record(ctx, domain.StatsMappingMiss)
	return identityFromMapping(host, v.(domain.DomainMapping).Config)
}

// theme valida o tema contra a allow-list; tema desconhecido vira o padrão (e loga).
func (r *Resolver) theme(ctx context.Context, theme, host string) string {
	out, coerced := domain.NormalizeTheme(theme)
	if coerced {
		err := &domain.Error{Kind: domain.KindInvalidConfiguration, Op: "tenant.theme"}
		logger.C(ctx).Warn().Err(err).Str("host", host).Str("theme", theme).Str("coerced_to", out).
			Msg("unrecognized theme")
	}
	return out
}

// ContentRoot devolve a página raiz do tenant (GET /api/tenants/<id>), caindo na
// página padrão em qualquer falha, no tenant padrão ou sem serviço de mapeamento.
func (r *Resolver) ContentRoot(ctx context.Context, id domain.TenantIdentity) string {
	if r.source == nil || id.IsDefault || id.ID == "" {
		return r.defaultPageID
	}

	cacheKey := "id:" + id.ID
	if m, fresh, ok := r.cache.Get(cacheKey); ok && fresh {
		return pageOrDefault(m.Config.NotionPageID, r.defaultPageID)
	}

	v, err := r.flight.Do(ctx, domain.CallKey("by-id|"+id.ID), "mapping.byID", func(ctx context.Context) (any, error) {
		cfg, err := r.source.ByID(ctx, id.ID)
		if err != nil {
			return nil, err
		}
		return r.cache.Put(cacheKey, cfg), nil
	})
	if err != nil {
		r.log.Warn().Err(err).Str("tenant", id.ID).Msg("tenant lookup failed, using default page id")
		return r.defaultPageID
	}
	return pageOrDefault(v.(domain.DomainMapping).Config.NotionPageID, r.defaultPageID)
}

func (r *Resolver) record(ctx context.Context, kind domain.StatsKind) {
	if r.stats == nil {
		return
	}
	_ = r.stats.Record(ctx, domain.StatsEvent{Kind: kind, At: time.Now()})
}

func identityFromMapping(host string, cfg domain.TenantConfig) domain.TenantIdentity {
	id := cfg.Identifier()
	if id == "" {
		id = host
	}
	theme, _ := domain.NormalizeTheme(cfg.Theme)
	return domain.TenantIdentity{ID: id, SourceHost: host, Theme: theme}
}

func pageOrDefault(page, def string) string {
	if page != "" {
		return page
	}
	return def
}

// HostOf extrai o host da request sem porta, em minúsculas.
func HostOf(req *http.Request) string {
	host := req.Host
	if host == "" && req.URL != nil {
		host = req.URL.Host
	}
	host = strings.TrimSpace(host)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	return strings.TrimSuffix(strings.ToLower(host), ".")
}

func isLocalHost(host string) bool {
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	return net.ParseIP(host) != nil
}

// mapCache é o cache mínimo usado quando nenhum MappingCache é injetado.
type mapCache struct {
	mu      sync.Mutex
	entries map[string]domain.DomainMapping
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[string]domain.DomainMapping)}
}

func (c *mapCache) Get(host string) (domain.DomainMapping, bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.entries[host]
	return m, ok && m.Fresh(time.Now(), domain.DefaultMappingTTL), ok
}

func (c *mapCache) Put(host string, cfg domain.TenantConfig) domain.DomainMapping {
	m := domain.DomainMapping{Host: host, Config: cfg, FetchedAt: time.Now()}
	c.mu.Lock()
	c.entries[host] = m
	c.mu.Unlock()
	return m
}
