// Copyright 2024 Dolthub, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package fallback

import "github.com/prometheus/client_golang/prometheus"

var (
	totalDesc = prometheus.NewDesc(
		"agg_engine_shim_fallbacks_total",
		"Total compatibility-shim fallbacks.",
		nil, nil,
	)
	reasonDesc = prometheus.NewDesc(
		"agg_engine_shim_fallbacks_by_reason",
		"Compatibility-shim fallbacks by reason tag.",
		[]string{"reason"}, nil,
	)
)

type collector struct {
	registry *Registry
}

// Collector exposes a registry as prometheus metrics.
func (r *Registry) Collector() prometheus.Collector {
	return collector{registry: r}
}

func (c collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- totalDesc
	ch <- reasonDesc
}

func (c collector) Collect(ch chan<- prometheus.Metric) {
	a := c.registry.Analysis()
	ch <- prometheus.MustNewConstMetric(totalDesc, prometheus.CounterValue, float64(a.TotalFallbacks))
	for reason, n := range a.ByReason {
		ch <- prometheus.MustNewConstMetric(reasonDesc, prometheus.CounterValue, float64(n), reason)
	}
}
