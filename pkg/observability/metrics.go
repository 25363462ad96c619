package observability

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/formbridge/pkg/domain"
)

// Metrics holds the prometheus collectors updated by Hooks.
type Metrics struct {
	mapped      *prometheus.CounterVec
	parameters  *prometheus.HistogramVec
	duplicates  *prometheus.CounterVec
	dispatched  *prometheus.CounterVec
	dispatchDur *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them on reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		mapped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "formbridge_mapped_total",
				Help: "Total number of forms turned into parameter batches",
			},
			[]string{"mapping"},
		),
		parameters: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "formbridge_parameters_per_submission",
				Help:    "Number of parameters in a merged batch",
				Buckets: prometheus.LinearBuckets(0, 5, 10),
			},
			[]string{"mapping"},
		),
		duplicates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "formbridge_duplicate_parameters_total",
				Help: "Parameter names sent more than once in a merged batch",
			},
			[]string{"mapping"},
		),
		dispatched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "formbridge_dispatch_total",
				Help: "Total number of engine calls",
			},
			[]string{"mapping", "operation", "outcome"},
		),
		dispatchDur: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "formbridge_dispatch_duration_seconds",
				Help:    "Duration of engine calls",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"mapping", "operation"},
		),
	}

	for _, c := range []prometheus.Collector{m.mapped, m.parameters, m.duplicates, m.dispatched, m.dispatchDur} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return nil, err
		}
	}
	return m, nil
}

// Hooks returns lifecycle hooks that record into m.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnMapped: func(_ context.Context, e *domain.MappingEvent) {
			m.mapped.WithLabelValues(e.Mapping).Inc()
			m.parameters.WithLabelValues(e.Mapping).Observe(float64(e.Visible + e.Hidden))
			if n := len(e.Duplicates); n > 0 {
				m.duplicates.WithLabelValues(e.Mapping).Add(float64(n))
			}
		},
		OnDispatched: func(_ context.Context, e *domain.DispatchEvent) {
			outcome := "ok"
			if e.Err != nil {
				outcome = "error"
			}
			op := string(e.Operation)
			m.dispatched.WithLabelValues(e.Mapping, op, outcome).Inc()
			m.dispatchDur.WithLabelValues(e.Mapping, op).Observe(e.Duration.Seconds())
		},
	}
}
