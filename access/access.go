// Package access monta a camada de acesso ao upstream de conteúdo: um objeto por
// processo, criado no startup e passado explicitamente a quem precisa.
package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"content-gateway/access/application"
	"content-gateway/access/domain"
	"content-gateway/access/infra"
	"content-gateway/access/upstream"
	"content-gateway/platform/config"
	"content-gateway/platform/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// Layer agrupa Client, Resolver e Dispatcher com o estado que eles dividem.
type Layer struct {
	Client     *upstream.Client
	Resolver   *application.Resolver
	Dispatcher *application.Dispatcher
	Stats      domain.StatsStore
	Inbound    *infra.Store

	mappingCache *infra.MappingCache
	closers      []func() error
	log          *logger.Logger
}

// Options ajusta a montagem sem mexer na Config.
type Options struct {
	// Registry recebe as métricas Prometheus. Nil desliga o PromStatsStore.
	Registry prometheus.Registerer

	// BulkMode sobrescreve cfg.BulkMode (o prerender sempre liga).
	BulkMode *bool
}

// New monta a camada a partir da Config. Feche com Close.
func New(ctx context.Context, cfg config.Config, opts Options) (*Layer, error) {
	l := &Layer{log: logger.Named("access")}

	var rdb *redis.Client
	if cfg.TokenStore == "redis" || cfg.StatsRedisEnabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		l.closers = append(l.closers, rdb.Close)

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			// o token degrada sozinho; só avisamos
			l.log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis ping failed")
		}
	}

	l.Stats = buildStats(cfg, opts.Registry, rdb)

	bulk := cfg.BulkMode
	if opts.BulkMode != nil {
		bulk = *opts.BulkMode
	}
	if bulk {
		store, err := l.tokenStore(cfg, rdb)
		if err != nil {
			_ = l.Close()
			return nil, err
		}
		l.Dispatcher = application.NewDispatcher(store,
			application.WithMinInterval(cfg.MinDispatchInterval),
			application.WithFallback(infra.NewLocalTokenStore()),
			application.WithDispatchStats(l.Stats),
		)
	}

	pipeline := upstream.Pipeline(upstream.PipelineConfig{
		TokenV2:     cfg.NotionTokenV2,
		ActiveUser:  cfg.NotionActiveUser,
		APIKey:      cfg.APIKey,
		MultiTenant: cfg.MultiTenant(),
	})
	copts := []upstream.Option{
		upstream.WithBaseURL(cfg.APIBase()),
		upstream.WithTimeout(cfg.UpstreamTimeout),
		upstream.WithPipeline(pipeline),
		upstream.WithMultiTenant(cfg.MultiTenant()),
		upstream.WithStats(l.Stats),
	}
	if l.Dispatcher != nil {
		copts = append(copts, upstream.WithScheduler(l.Dispatcher))
	}
	l.Client = upstream.New(copts...)

	ropts := []application.ResolverOption{
		application.WithFixedTenant(cfg.TenantID),
		application.WithTrustedOverride(cfg.TrustTenantOverride),
		application.WithDefaultPageID(cfg.DefaultPageID),
		application.WithResolverStats(l.Stats),
	}
	if base := cfg.MappingBase(); base != "" {
		l.mappingCache = infra.NewMappingCache(cfg.MappingTTL)
		src := infra.NewHTTPMappingSource(base, infra.WithMappingAPIKey(cfg.APIKey))
		ropts = append(ropts, application.WithMappingSource(src, l.mappingCache))
	}
	l.Resolver = application.NewResolver(ropts...)

	l.Inbound = infra.NewStore(cfg.RateRPS, cfg.RateBurst)

	l.log.Info().
		Str("api_base", cfg.APIBase()).
		Bool("multi_tenant", cfg.MultiTenant()).
		Bool("bulk", bulk).
		Str("token_store", cfg.TokenStore).
		Dur("min_interval", cfg.MinDispatchInterval).
		Str("fixed_tenant", cfg.TenantID).
		Msg("access layer ready")
	return l, nil
}

// StartJanitors limpa caches e buckets ociosos até o ctx encerrar.
func (l *Layer) StartJanitors(ctx context.Context) {
	l.Inbound.StartJanitor(ctx)
	if l.mappingCache != nil {
		l.mappingCache.StartJanitor(ctx)
	}
}

// Close para o Dispatcher e libera conexões. Pode ser chamado mais de uma vez.
func (l *Layer) Close() error {
	if l.Dispatcher != nil {
		l.Dispatcher.Close()
	}
	var errs []error
	for i := len(l.closers) - 1; i >= 0; i-- {
		if err := l.closers[i](); err != nil && !errors.Is(err, redis.ErrClosed) {
			errs = append(errs, err)
		}
	}
	l.closers = nil
	return errors.Join(errs...)
}

func (l *Layer) tokenStore(cfg config.Config, rdb *redis.Client) (domain.TokenStore, error) {
	switch cfg.TokenStore {
	case "file", "":
		s := infra.NewFileTokenStore(cfg.TokenPath,
			infra.WithStaleAfter(cfg.TokenStaleAfter),
			infra.WithAcquireTimeout(cfg.TokenAcquireTimeout),
		)
		if err := s.EnsureDir(); err != nil {
			// sem diretório o Dispatcher degrada para o limite local
			l.log.Warn().Err(err).Str("path", cfg.TokenPath).Msg("cannot create token directory")
		}
		return s, nil
	case "redis":
		return infra.NewRedisTokenStore(rdb), nil
	case "sqlite":
		s, err := infra.NewSQLiteTokenStore(infra.SQLiteTokenConfig{
			DBPath:      cfg.TokenPath,
			BusyTimeout: cfg.TokenAcquireTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("open sqlite token store: %w", err)
		}
		l.closers = append(l.closers, s.Close)
		return s, nil
	case "memory":
		return infra.NewLocalTokenStore(), nil
	}
	return nil, fmt.Errorf("unknown token store %q", cfg.TokenStore)
}

func buildStats(cfg config.Config, reg prometheus.Registerer, rdb *redis.Client) domain.StatsStore {
	var stores infra.MultiStats
	if reg != nil && cfg.MetricsEnabled {
		stores = append(stores, infra.NewPromStatsStore(reg))
	}
	if cfg.StatsRedisEnabled && rdb != nil {
		stores = append(stores, infra.NewRedisStatsStore(rdb,
			infra.WithStatsPrefix(cfg.StatsPrefix),
			infra.WithStatsTTL(cfg.StatsTTL),
			infra.WithStatsBucket(cfg.StatsBucket),
			infra.WithStatsTrackTenants(cfg.StatsTrackTenants),
		))
	}
	if len(stores) == 0 {
		return nil
	}
	return stores
}
