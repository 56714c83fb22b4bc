package infra

import (
	"time"

	"content-gateway/access/domain"
)

// decide aplica a regra do intervalo mínimo sobre o último dispatch gravado.
// Devolve (espera, false) quando ainda não pode despachar, ou (0, true) quando pode
// gravar now como novo último dispatch.
func decide(last, now time.Time, minInterval time.Duration) (time.Duration, bool) {
	if last.IsZero() || minInterval <= 0 {
		return 0, true
	}
	elapsed := now.Sub(last)
	if elapsed < 0 {
		// relógio atrás do token: espera um intervalo inteiro, nunca grava um valor menor
		return minInterval, false
	}
	if elapsed < minInterval {
		return minInterval - elapsed, false
	}
	return 0, true
}

func unavailable(op string, err error) error {
	return &domain.Error{Kind: domain.KindRateTokenUnavailable, Op: op, Err: err}
}
