package domain

import (
	"context"
	"time"
)

// RateToken é o registro durável do último dispatch permitido, compartilhado entre processos.
//
// O token é consultivo: a garantia de intervalo mínimo vem do acesso serializado
// (seção crítica do TokenStore), não do conteúdo sozinho.
type RateToken struct {
	LastDispatchMillis int64 `json:"last_dispatch_ms"`
}

// Last devolve o instante do último dispatch (zero se nunca houve).
func (t RateToken) Last() time.Time {
	if t.LastDispatchMillis <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(t.LastDispatchMillis)
}

// TokenStore é o recurso durável que guarda o RateToken.
//
// Advance executa, dentro de uma seção crítica exclusiva, o read-modify-write:
//   - se now - last < minInterval, devolve a espera restante e NÃO escreve;
//   - senão grava now e devolve 0 (o chamador pode despachar).
//
// Implementações devem recuperar seções críticas abandonadas (stale lock) e nunca
// bloquear indefinidamente: erro de infraestrutura vira ErrRateTokenUnavailable.
type TokenStore interface {
	Advance(ctx context.Context, minInterval time.Duration) (wait time.Duration, err error)
	Load(ctx context.Context) (RateToken, error)
}
