// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package queryservice

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// queryMetrics holds Prometheus metrics for the graph query service.
type queryMetrics struct {
	once sync.Once

	queryDuration *prometheus.HistogramVec
	cacheHits     *prometheus.CounterVec
	cacheMisses   *prometheus.CounterVec
}

var metricsOnce queryMetrics

func (m *queryMetrics) init() {
	m.once.Do(func() {
		buckets := []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
		m.queryDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cie_query_seconds",
			Help:    "Graph query service operation duration",
			Buckets: buckets,
		}, []string{"operation"})
		m.cacheHits = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cie_query_cache_hits_total",
			Help: "Graph query service cache hits",
		}, []string{"operation"})
		m.cacheMisses = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cie_query_cache_misses_total",
			Help: "Graph query service cache misses",
		}, []string{"operation"})

		prometheus.MustRegister(m.queryDuration, m.cacheHits, m.cacheMisses)
	})
}

func recordQueryDuration(operation string, seconds float64) {
	metricsOnce.init()
	metricsOnce.queryDuration.WithLabelValues(operation).Observe(seconds)
}

func recordCacheHit(operation string, hit bool) {
	metricsOnce.init()
	if hit {
		metricsOnce.cacheHits.WithLabelValues(operation).Inc()
		return
	}
	metricsOnce.cacheMisses.WithLabelValues(operation).Inc()
}
