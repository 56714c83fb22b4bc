package main

import (
	"encoding/json"
	"net/http"

	"content-gateway/access/infra"
	"content-gateway/middleware/ratelimit"
	"content-gateway/platform/logger"

	"github.com/go-chi/chi/v5"
)

// newHandler monta a API falsa:
//
//	POST /api/v3/{endpoint}                  conteúdo (limitado por X-Tenant-ID ou IP)
//	GET  /api/tenants/by-subdomain/{host}    mapeamento de domínio
//	GET  /api/tenants/{id}                   configuração do tenant
//
// O limite do /api/v3 imita o do upstream real: excedido, responde 429.
func newHandler(fx *fixtures, limiter *infra.Store) http.Handler {
	r := chi.NewRouter()

	r.Route("/api/v3", func(r chi.Router) {
		if limiter != nil {
			r.Use(ratelimit.Middleware(ratelimit.Options{
				Store:               limiter,
				KeyHeader:           "X-Tenant-ID",
				AddRateLimitHeaders: true,
			}))
		}
		r.Post("/loadPageChunk", loadPageChunk(fx))
		r.Post("/{endpoint}", echoRecords)
	})

	r.Get("/api/tenants/by-subdomain/{host}", func(w http.ResponseWriter, r *http.Request) {
		t, ok := fx.byHost(chi.URLParam(r, "host"))
		if !ok {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, http.StatusOK, t)
	})
	r.Get("/api/tenants/{id}", func(w http.ResponseWriter, r *http.Request) {
		t, ok := fx.byID(chi.URLParam(r, "id"))
		if !ok {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, http.StatusOK, t)
	})
	return r
}

func loadPageChunk(fx *fixtures) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			PageID string `json:"pageId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.PageID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "pageId required"})
			return
		}
		value, ok := fx.Pages[body.PageID]
		if !ok {
			value = map[string]any{"id": body.PageID}
		}
		logger.C(r.Context()).Debug().Str("page", body.PageID).Str("tenant", r.Header.Get("X-Tenant-ID")).
			Msg("loadPageChunk")
		writeJSON(w, http.StatusOK, map[string]any{
			"recordMap": map[string]any{
				"block": map[string]any{body.PageID: map[string]any{"value": value}},
			},
			"cursor": map[string]any{"stack": []any{}},
		})
	}
}

// echoRecords responde qualquer outro endpoint devolvendo os requests recebidos.
func echoRecords(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"endpoint": chi.URLParam(r, "endpoint"),
		"results":  body["requests"],
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
