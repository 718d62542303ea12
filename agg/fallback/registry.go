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

// Package fallback tracks every compatibility-shim invocation with a
// structured reason. The registry is process-global by design; tests reset
// it at case boundaries.
package fallback

import (
	"github.com/puzpuzpuz/xsync/v3"
)

// Analysis is a point-in-time summary of recorded fallbacks.
type Analysis struct {
	TotalFallbacks int64
	ByReason       map[string]int64
}

// Registry counts shim fallbacks by reason tag.
type Registry struct {
	total    *xsync.Counter
	byReason *xsync.MapOf[string, *xsync.Counter]
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		total:    xsync.NewCounter(),
		byReason: xsync.NewMapOf[string, *xsync.Counter](),
	}
}

// Default is the process-wide registry.
var Default = NewRegistry()

// Record counts one fallback under the reason tag.
func (r *Registry) Record(reason string) {
	r.total.Inc()
	c, _ := r.byReason.LoadOrCompute(reason, xsync.NewCounter)
	c.Inc()
}

// Count returns the total number of recorded fallbacks.
func (r *Registry) Count() int64 { return r.total.Value() }

// Reset zeroes the registry.
func (r *Registry) Reset() {
	r.total.Reset()
	r.byReason.Clear()
}

// Analysis returns the totals and per-reason counts.
func (r *Registry) Analysis() Analysis {
	out := Analysis{
		TotalFallbacks: r.total.Value(),
		ByReason:       map[string]int64{},
	}
	r.byReason.Range(func(reason string, c *xsync.Counter) bool {
		out.ByReason[reason] = c.Value()
		return true
	})
	return out
}

// Record counts one fallback in the default registry.
func Record(reason string) { Default.Record(reason) }

// Count reads the default registry's total.
func Count() int64 { return Default.Count() }

// Reset zeroes the default registry.
func Reset() { Default.Reset() }

// Analyze summarizes the default registry.
func Analyze() Analysis { return Default.Analysis() }
