package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	ProviderAttempts   *prometheus.CounterVec
	ProviderSuccesses  *prometheus.CounterVec
	ProviderFailures   *prometheus.CounterVec
	FallbackServed     prometheus.Counter
	PreprocessDegraded prometheus.Counter
	RateLimitedTotal   prometheus.Counter
	UsageEnqueued      prometheus.Counter
	UsageProcessed     prometheus.Counter
	UsageFailed        prometheus.Counter
}

var (
	once   sync.Once
	global *Metrics
)

func Global() *Metrics {
	once.Do(func() {
		global = &Metrics{
			ProviderAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "prepmind",
				Name:      "provider_attempts_total",
				Help:      "Completion attempts per provider",
			}, []string{"provider"}),
			ProviderSuccesses: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "prepmind",
				Name:      "provider_successes_total",
				Help:      "Successful completions per provider",
			}, []string{"provider"}),
			ProviderFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "prepmind",
				Name:      "provider_failures_total",
				Help:      "Failed completion attempts per provider and reason",
			}, []string{"provider", "reason"}),
			FallbackServed: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "prepmind",
				Name:      "fallback_served_total",
				Help:      "Guidance responses served by the local template fallback",
			}),
			PreprocessDegraded: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "prepmind",
				Name:      "preprocess_degraded_total",
				Help:      "Attachments downgraded to a descriptive note",
			}),
			RateLimitedTotal: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "prepmind",
				Name:      "requests_rate_limited_total",
				Help:      "Inbound requests rejected by the per-user rate limit",
			}),
			UsageEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "prepmind",
				Name:      "usage_enqueued_total",
				Help:      "Usage records enqueued to the redis stream",
			}),
			UsageProcessed: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "prepmind",
				Name:      "usage_processed_total",
				Help:      "Usage records persisted by the worker",
			}),
			UsageFailed: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "prepmind",
				Name:      "usage_failed_total",
				Help:      "Usage records that failed to persist",
			}),
		}
		prometheus.MustRegister(
			global.ProviderAttempts,
			global.ProviderSuccesses,
			global.ProviderFailures,
			global.FallbackServed,
			global.PreprocessDegraded,
			global.RateLimitedTotal,
			global.UsageEnqueued,
			global.UsageProcessed,
			global.UsageFailed,
		)
	})
	return global
}
