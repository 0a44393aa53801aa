// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the accountd Prometheus collectors.
type Metrics struct {
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	HTTPRequestsTotal *prometheus.CounterVec
}

// NewMetrics creates the accountd collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "accountd_operations_total",
				Help: "Total number of credential lifecycle operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "accountd_operation_duration_seconds",
				Help: "Duration of credential lifecycle operations, hashing included",
				// Password hashing dominates; buckets span cheap bcrypt to slow argon2id.
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"operation"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "accountd_http_requests_total",
				Help: "Total number of HTTP API requests by route and status code",
			},
			[]string{"route", "status"},
		),
	}

	reg.MustRegister(m.OperationsTotal, m.OperationDuration, m.HTTPRequestsTotal)
	return m
}

// ObserveOperation records one lifecycle operation. outcome is "ok" or the
// error code.
func (m *Metrics) ObserveOperation(operation, outcome string, elapsed time.Duration) {
	m.OperationsTotal.WithLabelValues(operation, outcome).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// ObserveHTTPRequest records one HTTP API response.
func (m *Metrics) ObserveHTTPRequest(route string, status int) {
	m.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
}
