// Command devupstream sobe uma API de conteúdo e um serviço de mapeamento falsos para
// desenvolvimento local do gateway e do prerender:
//
//	DEV_FIXTURES=fixtures.yaml go run ./cmd/devupstream
//	USE_CUSTOM_API=true CUSTOM_API_BASE_URL=http://localhost:8081/api/v3 \
//	  MAPPING_API_URL=http://localhost:8081 go run ./cmd/gateway
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"content-gateway/access/infra"
	"content-gateway/platform/logger"
)

func main() {
	logger.Init(logger.FromEnv())
	log := logger.Named("devupstream")

	fx, err := loadFixtures(os.Getenv("DEV_FIXTURES"))
	if err != nil {
		log.Fatal().Err(err).Msg("cannot load fixtures")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// o upstream real aguenta ~3 req/s por integração
	rps := 3.0
	if v, err := strconv.ParseFloat(os.Getenv("DEV_RPS"), 64); err == nil && v > 0 {
		rps = v
	}
	limiter := infra.NewStore(rps, int(rps)+1)
	limiter.StartJanitor(ctx)

	addr := ":8081"
	if v := os.Getenv("DEV_LISTEN_ADDR"); v != "" {
		addr = v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           newHandler(fx, limiter),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Int("tenants", len(fx.Tenants)).Float64("rps", rps).Msg("dev upstream listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server error")
	}
}
