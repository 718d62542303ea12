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

// limitSkipOp implements standalone $limit and $skip. It tracks its input
// set and slices the deterministic upstream order (ascending row id) at
// snapshot. After a $sort the planner fuses $limit into Top-K instead.
type limitSkipOp struct {
	stageIdx int
	input    docSource
	limit    int64 // -1: no limit
	skip     int64
	rows     map[agg.RowID]*agg.Document
}

func newLimitSkipOp(stageIdx int, input docSource, stage *plan.Stage) *limitSkipOp {
	o := &limitSkipOp{
		stageIdx: stageIdx,
		input:    input,
		limit:    -1,
		rows:     map[agg.RowID]*agg.Document{},
	}
	n := stage.Spec.(int64)
	if stage.Kind == plan.StageLimit {
		o.limit = n
	} else {
		o.skip = n
	}
	return o
}

func (o *limitSkipOp) Name() string {
	if o.limit >= 0 {
		return "$limit"
	}
	return "$skip"
}

func (o *limitSkipOp) OnAdd(ctx *agg.Context, d agg.Delta) ([]agg.Delta, error) {
	doc, err := o.input.Doc(ctx, d.Row)
	if err != nil {
		return nil, err
	}
	o.rows[d.Row] = doc
	return nil, nil
}

func (o *limitSkipOp) OnRemove(_ *agg.Context, d agg.Delta) ([]agg.Delta, error) {
	delete(o.rows, d.Row)
	return nil, nil
}

func (o *limitSkipOp) Snapshot(*agg.Context) ([]agg.Value, error) {
	ids := make([]agg.RowID, 0, len(o.rows))
	for id := range o.rows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	docs := make([]agg.Value, len(ids))
	for i, id := range ids {
		docs[i] = o.rows[id]
	}
	return o.slice(docs), nil
}

func (o *limitSkipOp) slice(docs []agg.Value) []agg.Value {
	if o.skip > 0 {
		if o.skip >= int64(len(docs)) {
			return []agg.Value{}
		}
		docs = docs[o.skip:]
	}
	if o.limit >= 0 && o.limit < int64(len(docs)) {
		docs = docs[:o.limit]
	}
	return docs
}

func (o *limitSkipOp) Doc(*agg.Context, agg.RowID) (*agg.Document, error) {
	return nil, agg.ErrInvariantViolation.New("row-id doc request on limit/skip")
}

func (o *limitSkipOp) ApplyBatch(_ *agg.Context, docs []agg.Value) ([]agg.Value, error) {
	return o.slice(docs), nil
}

func (o *limitSkipOp) Barrier() bool      { return true }
func (o *limitSkipOp) CanIncrement() bool { return true }
func (o *limitSkipOp) CanDecrement() bool { return true }
func (o *limitSkipOp) Reset()             { o.rows = map[agg.RowID]*agg.Document{} }
