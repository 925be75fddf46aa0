// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcomes of a check besides the verdict statuses.
const (
	outcomeError    = "error"
	outcomeInvalid  = "invalid"
	outcomeNotFound = "not_found"
)

type metrics struct {
	checks   *prometheus.CounterVec
	duration prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer, c Checker) *metrics {
	m := &metrics{
		checks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blockcheck_checks_total",
				Help: "Total checks by outcome",
			},
			[]string{"outcome"},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "blockcheck_check_duration_seconds",
				Help:    "Check duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
	reg.MustRegister(
		m.checks,
		m.duration,
		prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "blockcheck_blacklisted_domains",
				Help: "Number of blacklisted domains",
			},
			func() float64 { return float64(c.Stats().TotalDomains) },
		),
		prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "blockcheck_listed_ipv4_addresses",
				Help: "Number of IPv4 addresses in the CDN list and the blacklist",
			},
			func() float64 { return float64(c.Stats().TotalV4s) },
		),
		prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "blockcheck_last_update_timestamp_seconds",
				Help: "Time of the last dataset refresh",
			},
			func() float64 {
				if t := c.Stats().LastUpdate; t != nil {
					return float64(t.Unix())
				}
				return 0
			},
		),
	)
	return m
}

func (m *metrics) observe(outcome string, t0 time.Time) {
	m.checks.WithLabelValues(outcome).Inc()
	m.duration.Observe(time.Since(t0).Seconds())
}
