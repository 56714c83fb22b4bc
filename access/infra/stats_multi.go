package infra

import (
	"context"
	"errors"

	"content-gateway/access/domain"
)

// MultiStats repassa cada evento para todos os stores. Nil é ignorado.
type MultiStats []domain.StatsStore

func (m MultiStats) Record(ctx context.Context, ev domain.StatsEvent) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
