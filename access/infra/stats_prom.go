package infra

import (
	"context"

	"content-gateway/access/domain"

	"github.com/prometheus/client_golang/prometheus"
)

// PromStatsStore expõe os eventos como métricas Prometheus.
//
// Métricas:
//   - gateway_access_events_total{kind,op}: eventos da camada de acesso
//   - gateway_access_dispatch_wait_seconds: espera imposta pelo intervalo mínimo
//
// O tenant não vira label (cardinalidade).
type PromStatsStore struct {
	events *prometheus.CounterVec
	wait   prometheus.Histogram
}

func NewPromStatsStore(registry prometheus.Registerer) *PromStatsStore {
	s := &PromStatsStore{
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Subsystem: "access",
				Name:      "events_total",
				Help:      "Total number of access layer events by kind and upstream operation",
			},
			[]string{"kind", "op"},
		),
		wait: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "gateway",
				Subsystem: "access",
				Name:      "dispatch_wait_seconds",
				Help:      "Time a dispatch waited for the shared minimum interval",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.2, 0.5, 1, 2, 5, 10},
			},
		),
	}
	if registry != nil {
		registry.MustRegister(s.events, s.wait)
	}
	return s
}

func (s *PromStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	s.events.WithLabelValues(string(ev.Kind), ev.Op).Inc()
	if ev.Kind == domain.StatsWait && ev.Wait > 0 {
		s.wait.Observe(ev.Wait.Seconds())
	}
	return nil
}
