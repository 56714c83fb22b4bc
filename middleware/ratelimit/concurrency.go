package ratelimit

import (
	"net/http"
	"time"

	"content-gateway/access/application"
	"content-gateway/access/domain"
	"content-gateway/access/infra"
	"content-gateway/platform/logger"
)

// ConcurrencyOptions limita as requests interativas em voo no processo inteiro.
type ConcurrencyOptions struct {
	Max            int
	RejectStatus   int
	AcquireTimeout time.Duration
	// RetryAfter > 0 vai no header Retry-After das recusas.
	RetryAfter time.Duration
	Stats      domain.StatsStore
}

// ConcurrencyMiddleware recusa (503 por padrão) quando nenhuma vaga abre dentro do
// AcquireTimeout. A recusa é contada para o tenant resolvido na request.
func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	if opts.Max <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusServiceUnavailable
	}

	pool := infra.NewChanPool(opts.Max)
	svc := application.ConcurrencyService{
		Pool:           pool,
		AcquireTimeout: opts.AcquireTimeout,
		Stats:          opts.Stats,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			release, ok := svc.Acquire(r.Context())
			if !ok {
				id := domain.TenantFrom(r.Context())
				logger.C(r.Context()).Warn().
					Str("tenant", id.ID).
					Int("in_use", pool.InUse()).
					Int("max", pool.Cap()).
					Msg("no concurrency slot available")
				if opts.RetryAfter > 0 {
					w.Header().Set("Retry-After", formatInt(int(opts.RetryAfter.Seconds())))
				}
				http.Error(w, http.StatusText(opts.RejectStatus), opts.RejectStatus)
				return
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}
