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
	"github.com/dolthub/go-agg-engine/agg/plan"
)

// sortField is one component of a compound sort key.
type sortField struct {
	path agg.Path
	dir  int // +1 ascending, -1 descending
}

func sortFieldsOf(stage *plan.Stage) ([]sortField, error) {
	spec := stage.Spec.(*agg.Document)
	out := make([]sortField, 0, spec.Len())
	for _, k := range spec.Keys() {
		v, _ := spec.Get(k)
		dir := int(v.(int64))
		path, err := agg.ParsePath(k)
		if err != nil {
			return nil, err
		}
		out = append(out, sortField{path: path, dir: dir})
	}
	return out, nil
}

type sortEntry struct {
	keys []agg.Value
	id   agg.RowID
	doc  *agg.Document
}

// compareEntries orders by each sort field with its direction, tie-breaking
// on ascending row id.
func compareEntries(fields []sortField, a, b *sortEntry) int {
	for i, f := range fields {
		c := agg.Compare(a.keys[i], b.keys[i])
		if c != 0 {
			return c * f.dir
		}
	}
	switch {
	case a.id < b.id:
		return -1
	case a.id > b.id:
		return 1
	default:
		return 0
	}
}

// sortOp maintains an ordered multiset of (sortKey, rowId). It stores the
// materialized upstream document alongside the key so snapshots survive
// across runs without touching run scratch.
type sortOp struct {
	stageIdx int
	input    docSource
	fields   []sortField
	entries  []*sortEntry
}

func newSortOp(stageIdx int, input docSource, stage *plan.Stage) (*sortOp, error) {
	fields, err := sortFieldsOf(stage)
	if err != nil {
		return nil, err
	}
	return &sortOp{stageIdx: stageIdx, input: input, fields: fields}, nil
}

func (o *sortOp) Name() string { return "$sort" }

func (o *sortOp) entryOf(id agg.RowID, doc *agg.Document) *sortEntry {
	keys := make([]agg.Value, len(o.fields))
	for i, f := range o.fields {
		keys[i] = f.path.Resolve(doc)
	}
	return &sortEntry{keys: keys, id: id, doc: doc}
}

func (o *sortOp) insert(e *sortEntry) {
	i := sort.Search(len(o.entries), func(i int) bool {
		return compareEntries(o.fields, o.entries[i], e) >= 0
	})
	o.entries = append(o.entries, nil)
	copy(o.entries[i+1:], o.entries[i:])
	o.entries[i] = e
}

func (o *sortOp) remove(id agg.RowID) bool {
	for i, e := range o.entries {
		if e.id == id {
			o.entries = append(o.entries[:i], o.entries[i+1:]...)
			return true
		}
	}
	return false
}

func (o *sortOp) OnAdd(ctx *agg.Context, d agg.Delta) ([]agg.Delta, error) {
	doc, err := o.input.Doc(ctx, d.Row)
	if err != nil {
		return nil, err
	}
	o.insert(o.entryOf(d.Row, doc))
	return nil, nil
}

func (o *sortOp) OnRemove(_ *agg.Context, d agg.Delta) ([]agg.Delta, error) {
	if !o.remove(d.Row) {
		return nil, agg.ErrInvariantViolation.New("sort remove for untracked row")
	}
	return nil, nil
}

func (o *sortOp) Snapshot(*agg.Context) ([]agg.Value, error) {
	out := make([]agg.Value, len(o.entries))
	for i, e := range o.entries {
		out[i] = e.doc
	}
	return out, nil
}

func (o *sortOp) Doc(*agg.Context, agg.RowID) (*agg.Document, error) {
	return nil, agg.ErrInvariantViolation.New("row-id doc request on $sort")
}

func (o *sortOp) ApplyBatch(_ *agg.Context, vals []agg.Value) ([]agg.Value, error) {
	docs, err := asDocuments(vals)
	if err != nil {
		return nil, err
	}
	entries := make([]*sortEntry, len(docs))
	for i, doc := range docs {
		entries[i] = o.entryOf(agg.RowID(i), doc)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return compareEntries(o.fields, entries[i], entries[j]) < 0
	})
	out := make([]agg.Value, len(entries))
	for i, e := range entries {
		out[i] = e.doc
	}
	return out, nil
}

func (o *sortOp) Barrier() bool      { return true }
func (o *sortOp) CanIncrement() bool { return true }
func (o *sortOp) CanDecrement() bool { return true }
func (o *sortOp) Reset()             { o.entries = nil }
