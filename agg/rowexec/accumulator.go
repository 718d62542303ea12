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

import "github.com/dolthub/go-agg-engine/agg"

// accumulator is one $group partial with add/remove semantics.
type accumulator interface {
	Add(v agg.Value, rank int64)
	Remove(v agg.Value, rank int64)
	Result() agg.Value
}

func newAccumulator(op string) accumulator {
	switch op {
	case "$sum":
		return &sumAcc{}
	case "$avg":
		return &avgAcc{}
	case "$count":
		return &countAcc{}
	case "$min":
		return &minMaxAcc{min: true, set: &valueMultiset{}}
	case "$max":
		return &minMaxAcc{set: &valueMultiset{}}
	case "$first":
		return &firstLastAcc{first: true, set: &rankedValues{}}
	case "$last":
		return &firstLastAcc{set: &rankedValues{}}
	case "$push":
		return &pushAcc{set: &rankedValues{}}
	case "$addToSet":
		return &addToSetAcc{refs: map[string]*setRef{}}
	case "$mergeObjects":
		return &mergeObjectsAcc{set: &rankedValues{}}
	default:
		return nil
	}
}

// sumAcc keeps separate integer and float partials; the sum stays Int64
// until a Float64 operand is observed, then widens for the life of the
// group. Non-numeric operands contribute nothing.
type sumAcc struct {
	sumInt   int64
	sumFloat float64
	sawFloat bool
}

func (a *sumAcc) Add(v agg.Value, _ int64) {
	switch t := v.(type) {
	case int64:
		a.sumInt += t
	case float64:
		a.sumFloat += t
		a.sawFloat = true
	}
}

func (a *sumAcc) Remove(v agg.Value, _ int64) {
	switch t := v.(type) {
	case int64:
		a.sumInt -= t
	case float64:
		a.sumFloat -= t
	}
}

func (a *sumAcc) Result() agg.Value {
	if a.sawFloat {
		return a.sumFloat + float64(a.sumInt)
	}
	return a.sumInt
}

type avgAcc struct {
	sum sumAcc
	n   int64
}

func (a *avgAcc) Add(v agg.Value, rank int64) {
	if agg.IsNumber(v) {
		a.sum.Add(v, rank)
		a.n++
	}
}

func (a *avgAcc) Remove(v agg.Value, rank int64) {
	if agg.IsNumber(v) {
		a.sum.Remove(v, rank)
		a.n--
	}
}

func (a *avgAcc) Result() agg.Value {
	if a.n == 0 {
		return nil
	}
	total, _ := agg.AsFloat(a.sum.Result())
	return total / float64(a.n)
}

type countAcc struct {
	n int64
}

func (a *countAcc) Add(agg.Value, int64) { a.n++ }
func (a *countAcc) Remove(agg.Value, int64) {
	a.n--
}
func (a *countAcc) Result() agg.Value { return a.n }

// minMaxAcc tracks an order-statistic multiset so removing the current
// extremum promotes the next. Null and missing operands are skipped, as in
// the non-incremental semantics.
type minMaxAcc struct {
	min bool
	set *valueMultiset
}

func (a *minMaxAcc) Add(v agg.Value, _ int64) {
	if agg.IsNullOrMissing(v) {
		return
	}
	a.set.Insert(v)
}

func (a *minMaxAcc) Remove(v agg.Value, _ int64) {
	if agg.IsNullOrMissing(v) {
		return
	}
	a.set.Delete(v)
}

func (a *minMaxAcc) Result() agg.Value {
	var v agg.Value
	if a.min {
		v = a.set.Min()
	} else {
		v = a.set.Max()
	}
	if agg.IsMissing(v) {
		return nil
	}
	return v
}

// firstLastAcc records values with their pipeline-order rank so the
// surviving extremal rank wins after removals.
type firstLastAcc struct {
	first bool
	set   *rankedValues
}

func (a *firstLastAcc) Add(v agg.Value, rank int64) { a.set.Insert(rank, v) }
func (a *firstLastAcc) Remove(v agg.Value, rank int64) {
	a.set.Delete(rank, v)
}

func (a *firstLastAcc) Result() agg.Value {
	var v agg.Value
	if a.first {
		v = a.set.First()
	} else {
		v = a.set.Last()
	}
	if agg.IsMissing(v) {
		return nil
	}
	return v
}

type pushAcc struct {
	set *rankedValues
}

func (a *pushAcc) Add(v agg.Value, rank int64) {
	if agg.IsMissing(v) {
		return
	}
	a.set.Insert(rank, v)
}

func (a *pushAcc) Remove(v agg.Value, rank int64) {
	if agg.IsMissing(v) {
		return
	}
	a.set.Delete(rank, v)
}

func (a *pushAcc) Result() agg.Value { return a.set.Values() }

type setRef struct {
	v agg.Value
	n int
}

// addToSetAcc refcounts members so removing one instance of a value only
// unsets membership when its count reaches zero.
type addToSetAcc struct {
	refs  map[string]*setRef
	order []string
}

func (a *addToSetAcc) Add(v agg.Value, _ int64) {
	if agg.IsMissing(v) {
		return
	}
	key := agg.CanonicalKey(v)
	if ref, ok := a.refs[key]; ok {
		ref.n++
		return
	}
	a.refs[key] = &setRef{v: v, n: 1}
	a.order = append(a.order, key)
}

func (a *addToSetAcc) Remove(v agg.Value, _ int64) {
	if agg.IsMissing(v) {
		return
	}
	key := agg.CanonicalKey(v)
	if ref, ok := a.refs[key]; ok {
		ref.n--
	}
}

func (a *addToSetAcc) Result() agg.Value {
	out := []agg.Value{}
	for _, key := range a.order {
		if ref := a.refs[key]; ref.n > 0 {
			out = append(out, ref.v)
		}
	}
	return out
}

type mergeObjectsAcc struct {
	set *rankedValues
}

func (a *mergeObjectsAcc) Add(v agg.Value, rank int64) {
	if _, ok := v.(*agg.Document); ok {
		a.set.Insert(rank, v)
	}
}

func (a *mergeObjectsAcc) Remove(v agg.Value, rank int64) {
	if _, ok := v.(*agg.Document); ok {
		a.set.Delete(rank, v)
	}
}

func (a *mergeObjectsAcc) Result() agg.Value {
	out := agg.NewDocument()
	for _, v := range a.set.Values() {
		doc := v.(*agg.Document)
		for _, k := range doc.Keys() {
			fv, _ := doc.Get(k)
			out.Set(k, fv)
		}
	}
	return out
}
