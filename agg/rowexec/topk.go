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
	"container/heap"
	"sort"

	"github.com/dolthub/go-agg-engine/agg"
	"github.com/dolthub/go-agg-engine/agg/plan"
)

// topKOp is the fused $sort+$limit pair: a bounded heap of the k best
// entries, discarding worse entries on insert. Removal of a retained entry
// cannot be handled incrementally; the operator advertises
// CanDecrement=false and the executor rebuilds it.
type topKOp struct {
	stageIdx int
	input    docSource
	fields   []sortField
	k        int64
	worst    *entryHeap
}

// entryHeap keeps the retained entries with the WORST at the top, so a
// better incoming entry evicts it in O(log k).
type entryHeap struct {
	fields  []sortField
	entries []*sortEntry
}

func (h *entryHeap) Len() int { return len(h.entries) }
func (h *entryHeap) Less(i, j int) bool {
	return compareEntries(h.fields, h.entries[i], h.entries[j]) > 0
}
func (h *entryHeap) Swap(i, j int) { h.entries[i], h.entries[j] = h.entries[j], h.entries[i] }
func (h *entryHeap) Push(x interface{}) {
	h.entries = append(h.entries, x.(*sortEntry))
}
func (h *entryHeap) Pop() interface{} {
	last := h.entries[len(h.entries)-1]
	h.entries = h.entries[:len(h.entries)-1]
	return last
}

func newTopKOp(stageIdx int, input docSource, sortStage *plan.Stage, k int64) (*topKOp, error) {
	fields, err := sortFieldsOf(sortStage)
	if err != nil {
		return nil, err
	}
	return &topKOp{
		stageIdx: stageIdx,
		input:    input,
		fields:   fields,
		k:        k,
		worst:    &entryHeap{fields: fields},
	}, nil
}

func (o *topKOp) Name() string { return "$sort+$limit" }

func (o *topKOp) OnAdd(ctx *agg.Context, d agg.Delta) ([]agg.Delta, error) {
	doc, err := o.input.Doc(ctx, d.Row)
	if err != nil {
		return nil, err
	}
	keys := make([]agg.Value, len(o.fields))
	for i, f := range o.fields {
		keys[i] = f.path.Resolve(doc)
	}
	e := &sortEntry{keys: keys, id: d.Row, doc: doc}
	if int64(o.worst.Len()) < o.k {
		heap.Push(o.worst, e)
		return nil, nil
	}
	if o.k > 0 && compareEntries(o.fields, e, o.worst.entries[0]) < 0 {
		o.worst.entries[0] = e
		heap.Fix(o.worst, 0)
	}
	return nil, nil
}

func (o *topKOp) OnRemove(*agg.Context, agg.Delta) ([]agg.Delta, error) {
	return nil, agg.ErrInvariantViolation.New("decrement on bounded top-k")
}

func (o *topKOp) Snapshot(*agg.Context) ([]agg.Value, error) {
	sorted := append([]*sortEntry(nil), o.worst.entries...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return compareEntries(o.fields, sorted[i], sorted[j]) < 0
	})
	out := make([]agg.Value, len(sorted))
	for i, e := range sorted {
		out[i] = e.doc
	}
	return out, nil
}

func (o *topKOp) Doc(*agg.Context, agg.RowID) (*agg.Document, error) {
	return nil, agg.ErrInvariantViolation.New("row-id doc request on top-k")
}

func (o *topKOp) ApplyBatch(ctx *agg.Context, vals []agg.Value) ([]agg.Value, error) {
	docs, err := asDocuments(vals)
	if err != nil {
		return nil, err
	}
	tmp := &topKOp{
		stageIdx: o.stageIdx,
		input:    docListSource{docs},
		fields:   o.fields,
		k:        o.k,
		worst:    &entryHeap{fields: o.fields},
	}
	for i := range docs {
		if _, err := tmp.OnAdd(ctx, agg.Add(agg.RowID(i))); err != nil {
			return nil, err
		}
	}
	return tmp.Snapshot(ctx)
}

func (o *topKOp) Barrier() bool      { return true }
func (o *topKOp) CanIncrement() bool { return true }
func (o *topKOp) CanDecrement() bool { return false }
func (o *topKOp) Reset()             { o.worst = &entryHeap{fields: o.fields} }
