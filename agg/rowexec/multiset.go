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

package rowexec

import (
	"sort"

	"github.com/dolthub/go-agg-engine/agg"
)

// valueMultiset is a small sorted multiset used for order-statistic
// tracking in $min/$max: removing the current extremum promotes the next.
type valueMultiset struct {
	items []msItem
}

type msItem struct {
	v agg.Value
	n int
}

func (m *valueMultiset) search(v agg.Value) int {
	return sort.Search(len(m.items), func(i int) bool {
		return agg.Compare(m.items[i].v, v) >= 0
	})
}

// Insert adds one occurrence of v.
func (m *valueMultiset) Insert(v agg.Value) {
	i := m.search(v)
	if i < len(m.items) && agg.Compare(m.items[i].v, v) == 0 {
		m.items[i].n++
		return
	}
	m.items = append(m.items, msItem{})
	copy(m.items[i+1:], m.items[i:])
	m.items[i] = msItem{v: v, n: 1}
}

// Delete removes one occurrence of v; absent values are a no-op.
func (m *valueMultiset) Delete(v agg.Value) {
	i := m.search(v)
	if i >= len(m.items) || agg.Compare(m.items[i].v, v) != 0 {
		return
	}
	m.items[i].n--
	if m.items[i].n == 0 {
		m.items = append(m.items[:i], m.items[i+1:]...)
	}
}

// Len returns the number of stored occurrences' distinct values.
func (m *valueMultiset) Len() int { return len(m.items) }

// Min returns the smallest value, or Missing when empty.
func (m *valueMultiset) Min() agg.Value {
	if len(m.items) == 0 {
		return agg.Missing
	}
	return m.items[0].v
}

// Max returns the largest value, or Missing when empty.
func (m *valueMultiset) Max() agg.Value {
	if len(m.items) == 0 {
		return agg.Missing
	}
	return m.items[len(m.items)-1].v
}

// rankedValues tracks (rank, value) pairs ordered by pipeline rank, backing
// $first/$last/$push/$mergeObjects under removals.
type rankedValues struct {
	items []rankedItem
}

type rankedItem struct {
	rank int64
	v    agg.Value
}

func (r *rankedValues) search(rank int64) int {
	return sort.Search(len(r.items), func(i int) bool {
		return r.items[i].rank >= rank
	})
}

// Insert adds a pair; equal ranks keep insertion order.
func (r *rankedValues) Insert(rank int64, v agg.Value) {
	i := r.search(rank + 1)
	r.items = append(r.items, rankedItem{})
	copy(r.items[i+1:], r.items[i:])
	r.items[i] = rankedItem{rank: rank, v: v}
}

// Delete removes the pair with this rank whose value matches, or failing
// that, one occurrence of an equal value anywhere.
func (r *rankedValues) Delete(rank int64, v agg.Value) {
	i := r.search(rank)
	for ; i < len(r.items) && r.items[i].rank == rank; i++ {
		if agg.Equal(r.items[i].v, v) || (agg.IsNullOrMissing(r.items[i].v) && agg.IsNullOrMissing(v)) {
			r.items = append(r.items[:i], r.items[i+1:]...)
			return
		}
	}
	for j := range r.items {
		if agg.Equal(r.items[j].v, v) {
			r.items = append(r.items[:j], r.items[j+1:]...)
			return
		}
	}
}

// Len returns the pair count.
func (r *rankedValues) Len() int { return len(r.items) }

// First returns the lowest-ranked value, or Missing when empty.
func (r *rankedValues) First() agg.Value {
	if len(r.items) == 0 {
		return agg.Missing
	}
	return r.items[0].v
}

// Last returns the highest-ranked value, or Missing when empty.
func (r *rankedValues) Last() agg.Value {
	if len(r.items) == 0 {
		return agg.Missing
	}
	return r.items[len(r.items)-1].v
}

// Values returns the values in rank order.
func (r *rankedValues) Values() []agg.Value {
	out := make([]agg.Value, len(r.items))
	for i, it := range r.items {
		out[i] = it.v
	}
	return out
}
