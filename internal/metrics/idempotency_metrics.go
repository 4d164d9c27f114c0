package metrics

import "github.com/prometheus/client_golang/prometheus"

// IdempotencyMetrics: метрики очистки просроченных ключей оформления заказов.
type IdempotencyMetrics struct {
	sweepRuns      *prometheus.CounterVec
	sweptKeys      prometheus.Counter
	lastSweepCount prometheus.Gauge
}

func NewIdempotencyMetrics(registerer prometheus.Registerer) *IdempotencyMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &IdempotencyMetrics{
		sweepRuns: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_idempotency_sweep_runs_total",
			Help: "Idempotency sweeps grouped by outcome (ok, truncated, error)",
		}, []string{"outcome"}),
		sweptKeys: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_idempotency_swept_keys_total",
			Help: "Expired idempotency keys removed by the sweeper",
		}),
		lastSweepCount: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_idempotency_last_sweep_keys",
			Help: "Keys removed by the most recent successful sweep",
		}),
	}
}

// RecordRun учитывает завершённый проход; truncated означает, что проход упёрся в лимит батчей.
func (m *IdempotencyMetrics) RecordRun(err error, deleted int, truncated bool) {
	switch {
	case err != nil:
		m.sweepRuns.WithLabelValues("error").Inc()
		return
	case truncated:
		m.sweepRuns.WithLabelValues("truncated").Inc()
	default:
		m.sweepRuns.WithLabelValues("ok").Inc()
	}
	m.lastSweepCount.Set(float64(deleted))
}

func (m *IdempotencyMetrics) RecordDeleted(n int) {
	if n > 0 {
		m.sweptKeys.Add(float64(n))
	}
}
