// Package metrics holds the Prometheus collectors shared by the CLI and the HTTP service.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	LLMRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synthec_llm_requests_total",
			Help: "Count of LLM completion requests by provider and outcome",
		},
		[]string{"provider", "status"},
	)

	LLMRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "synthec_llm_request_duration_seconds",
			Help:    "Latency of LLM completion requests",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 8),
		},
		[]string{"provider"},
	)

	RecordsAcceptedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "synthec_generation_records_accepted_total",
			Help: "Number of generated records accepted into a dataset",
		},
	)

	GenerationFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synthec_generation_failures_total",
			Help: "Number of rejected model responses by pipeline stage",
		},
		[]string{"stage"},
	)

	ClassifierRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synthec_classifier_requests_total",
			Help: "Count of classification model requests by outcome",
		},
		[]string{"status"},
	)
)

var registerOnce sync.Once

// Init registers every collector with the default registry. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(LLMRequestsTotal)
		prometheus.MustRegister(LLMRequestDuration)
		prometheus.MustRegister(RecordsAcceptedTotal)
		prometheus.MustRegister(GenerationFailuresTotal)
		prometheus.MustRegister(ClassifierRequestsTotal)
	})
}
