package infra

import (
	"context"
	"sync"
	"time"

	"content-gateway/access/domain"

	"golang.org/x/time/rate"
)

// LocalTokenStore é o token só do processo, sobre um token bucket (x/time/rate) com
// burst 1 e taxa 1/minInterval. É o fallback quando o recurso durável some e o
// store do modo "memory".
type LocalTokenStore struct {
	mu       sync.Mutex
	lim      *rate.Limiter
	interval time.Duration
	last     time.Time
}

func NewLocalTokenStore() *LocalTokenStore { return &LocalTokenStore{} }

func (s *LocalTokenStore) Advance(_ context.Context, minInterval time.Duration) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lim == nil || s.interval != minInterval {
		s.lim = rate.NewLimiter(rate.Every(minInterval), 1)
		s.interval = minInterval
	}

	now := time.Now()
	r := s.lim.ReserveN(now, 1)
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return d, nil
	}
	s.last = now
	return 0, nil
}

func (s *LocalTokenStore) Load(context.Context) (domain.RateToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last.IsZero() {
		return domain.RateToken{}, nil
	}
	return domain.RateToken{LastDispatchMillis: s.last.UnixMilli()}, nil
}
