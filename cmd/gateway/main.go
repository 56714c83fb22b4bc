package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"content-gateway/access"
	"content-gateway/platform/config"
	"content-gateway/platform/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	logger.Init(logger.FromEnv())
	log := logger.Named("gateway")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config error")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	layer, err := access.New(ctx, cfg, access.Options{Registry: reg})
	if err != nil {
		log.Fatal().Err(err).Msg("access layer error")
	}
	defer func() {
		if err := layer.Close(); err != nil {
			log.Error().Err(err).Msg("close access layer")
		}
	}()
	layer.StartJanitors(ctx)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           newRouter(cfg, layer, reg),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.UpstreamTimeout + 15*time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().
		Str("addr", cfg.ListenAddr).
		Bool("rate_enabled", cfg.RateEnabled).
		Float64("rate_rps", cfg.RateRPS).
		Int("rate_burst", cfg.RateBurst).
		Int("concurrency_max", cfg.ConcurrencyMax).
		Dur("concurrency_timeout", cfg.ConcurrencyTimeout).
		Msg("gateway listening")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("server error")
		os.Exit(1)
	}
}
