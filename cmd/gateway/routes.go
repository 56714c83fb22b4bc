package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"content-gateway/access"
	"content-gateway/access/domain"
	"content-gateway/middleware/ratelimit"
	"content-gateway/middleware/requestid"
	"content-gateway/middleware/tenant"
	"content-gateway/platform/config"
	"content-gateway/platform/logger"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxRequestBody = 1 << 20

func newRouter(cfg config.Config, layer *access.Layer, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(accessLog)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})
	if cfg.MetricsEnabled && gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	h := &handlers{layer: layer}
	r.Route("/v1", func(r chi.Router) {
		r.Use(tenant.Middleware(layer.Resolver, tenant.Options{}))
		if cfg.RateEnabled {
			r.Use(ratelimit.Middleware(ratelimit.Options{
				Store:               layer.Inbound,
				Stats:               layer.Stats,
				TrustXForwardedFor:  cfg.TrustXFF,
				RetryAfter:          cfg.RetryAfter,
				AddRateLimitHeaders: cfg.AddRateLimitHeaders,
			}))
		}
		r.Use(ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{
			Max:            cfg.ConcurrencyMax,
			AcquireTimeout: cfg.ConcurrencyTimeout,
			RetryAfter:     cfg.RetryAfter,
			Stats:          layer.Stats,
		}))

		r.Get("/tenant", h.tenant)
		r.Get("/pages/{id}", h.page)
		r.Post("/blocks", h.blocks)
		r.Post("/users", h.users)
	})
	return r
}

type handlers struct {
	layer *access.Layer
}

func (h *handlers) tenant(w http.ResponseWriter, r *http.Request) {
	id := domain.TenantFrom(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"id":           id.ID,
		"theme":        id.Theme,
		"host":         id.SourceHost,
		"default":      id.IsDefault,
		"content_root": h.layer.Resolver.ContentRoot(r.Context(), id),
	})
}

func (h *handlers) page(w http.ResponseWriter, r *http.Request) {
	raw, err := h.layer.Client.GetPage(r.Context(), chi.URLParam(r, "id"))
	respond(w, r, raw, err)
}

type idsRequest struct {
	IDs []string `json:"ids"`
}

func (h *handlers) blocks(w http.ResponseWriter, r *http.Request) {
	var req idsRequest
	if !decodeIDs(w, r, &req) {
		return
	}
	raw, err := h.layer.Client.GetBlocks(r.Context(), req.IDs)
	respond(w, r, raw, err)
}

func (h *handlers) users(w http.ResponseWriter, r *http.Request) {
	var req idsRequest
	if !decodeIDs(w, r, &req) {
		return
	}
	raw, err := h.layer.Client.GetUsers(r.Context(), req.IDs)
	respond(w, r, raw, err)
}

func decodeIDs(w http.ResponseWriter, r *http.Request, req *idsRequest) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(req); err != nil || len(req.IDs) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "body must be {\"ids\": [...]} with at least one id"})
		return false
	}
	return true
}

// respond traduz o resultado do upstream: erro tipado vira 502 com status/endpoint.
func respond(w http.ResponseWriter, r *http.Request, raw json.RawMessage, err error) {
	if err == nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(raw)
		return
	}

	var derr *domain.Error
	if !errors.As(err, &derr) {
		if r.Context().Err() != nil {
			// cliente desistiu
			return
		}
		logger.C(r.Context()).Error().Err(err).Msg("upstream call failed")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal error"})
		return
	}

	status := http.StatusBadGateway
	if derr.Kind == domain.KindInvalidConfiguration {
		status = http.StatusBadRequest
	}
	logger.C(r.Context()).Error().Err(err).Str("kind", derr.Kind.String()).
		Str("endpoint", derr.Endpoint).Int("upstream_status", derr.Status).Msg("upstream call failed")
	writeJSON(w, status, map[string]any{
		"error":           derr.Kind.String(),
		"op":              derr.Op,
		"endpoint":        derr.Endpoint,
		"upstream_status": derr.Status,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logger.C(r.Context()).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("host", r.Host).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Str("tenant_id", ww.Header().Get(tenant.HeaderTenantID)).
			Dur("took", time.Since(start)).
			Msg("request")
	})
}
