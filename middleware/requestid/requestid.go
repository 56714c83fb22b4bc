// Package requestid garante um id por request (header X-Request-ID) e o anota no ctx
// usado pelo logger.
package requestid

import (
	"net/http"
	"strings"

	"content-gateway/platform/logger"

	"github.com/google/uuid"
)

const Header = "X-Request-ID"

const maxLen = 128

// Middleware reaproveita o X-Request-ID de entrada quando é razoável, senão gera um UUID.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(Header))
		if id == "" || len(id) > maxLen {
			id = uuid.NewString()
		}
		w.Header().Set(Header, id)
		next.ServeHTTP(w, r.WithContext(logger.WithRequestID(r.Context(), id)))
	})
}
