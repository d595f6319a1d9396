// Package metrics holds the prometheus collectors of the pass server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline stages of the issuance handler, used as the "stage" label.
const (
	StageValidate = "validate"
	StageImage    = "image"
	StageBuild    = "build"
	StageStore    = "store"
	StageRecord   = "record"
	StageLink     = "link"
	StageEmail    = "email"
)

var (
	PassRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pass_requests_total",
			Help: "Total number of pass issuance requests by outcome",
		},
		[]string{"outcome"},
	)

	StageFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pass_stage_failures_total",
			Help: "Total number of failed issuance stages",
		},
		[]string{"stage"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pass_stage_duration_seconds",
			Help:    "Issuance stage duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	PassSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pass_size_bytes",
			Help:    "Size of serialized .pkpass archives",
			Buckets: prometheus.ExponentialBuckets(16*1024, 2, 8),
		},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method", "status"},
	)
)
