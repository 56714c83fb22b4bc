// Package tenant resolve a identidade do site na borda e a propaga para quem renderiza.
package tenant

import (
	"context"
	"net/http"
	"strings"

	"content-gateway/access/application"
	"content-gateway/access/domain"
	"content-gateway/platform/logger"
)

// HeaderTenantID volta na resposta com o tenant resolvido.
const HeaderTenantID = "X-Tenant-ID"

// Resolver é o que o middleware precisa do application.Resolver.
type Resolver interface {
	Resolve(ctx context.Context, r *http.Request) domain.TenantIdentity
}

type Options struct {
	// SkipPrefixes não passam pela resolução (rotas internas da plataforma).
	// Default: "/api/"
	SkipPrefixes []string
}

// Middleware resolve o tenant, guarda no ctx (e no logger da request) e reescreve a
// query com _tenant, _subdomain e _theme para que o render não precise resolver de novo.
func Middleware(res Resolver, opts Options) func(next http.Handler) http.Handler {
	if opts.SkipPrefixes == nil {
		opts.SkipPrefixes = []string{"/api/"}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, p := range opts.SkipPrefixes {
				if strings.HasPrefix(r.URL.Path, p) {
					next.ServeHTTP(w, r)
					return
				}
			}

			id := res.Resolve(r.Context(), r)

			ctx := domain.WithTenant(r.Context(), id)
			ctx = logger.WithTenantID(ctx, id.ID)
			r = r.Clone(ctx)

			q := r.URL.Query()
			q.Set(application.ParamTenant, id.ID)
			q.Set(application.ParamTheme, id.Theme)
			if sub := application.Subdomain(id.SourceHost); sub != "" {
				q.Set(application.ParamSubdomain, sub)
			}
			r.URL.RawQuery = q.Encode()

			w.Header().Set(HeaderTenantID, id.ID)
			logger.C(ctx).Debug().Str("host", id.SourceHost).Str("theme", id.Theme).
				Bool("default", id.IsDefault).Msg("tenant resolved")

			next.ServeHTTP(w, r)
		})
	}
}
