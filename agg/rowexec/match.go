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
	"github.com/dolthub/go-agg-engine/agg"
	"github.com/dolthub/go-agg-engine/agg/expression"
	"github.com/dolthub/go-agg-engine/agg/prefilter"
)

// matchOp forwards exactly the deltas whose document satisfies the
// predicate. It is stateless; removals re-evaluate the predicate on the
// immutable stored document, which must produce the same verdict as the
// original add.
type matchOp struct {
	stageIdx int
	input    docSource
	pred     expression.Expr
	info     *expression.MatchInfo

	// pre restricts first-stage evaluation to prefilter candidates; it is
	// nil unless this operator reads real rows straight off the store.
	// Rows allocated after the index was built (id >= preBound) bypass it.
	pre      *prefilter.Set
	preBound agg.RowID
}

func (o *matchOp) Name() string { return "$match" }

func (o *matchOp) matches(ctx *agg.Context, id agg.RowID) (bool, error) {
	if o.pre != nil && id < o.preBound && !o.pre.MayMatch(uint32(id)) {
		return false, nil
	}
	doc, err := o.input.Doc(ctx, id)
	if err != nil {
		return false, err
	}
	env := &expression.Env{Doc: doc, Root: doc, Now: ctx.Now, Vars: ctx.Vars}
	return agg.Truthy(expression.Evaluate(o.pred, env)), nil
}

func (o *matchOp) OnAdd(ctx *agg.Context, d agg.Delta) ([]agg.Delta, error) {
	ok, err := o.matches(ctx, d.Row)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return []agg.Delta{d}, nil
}

func (o *matchOp) OnRemove(ctx *agg.Context, d agg.Delta) ([]agg.Delta, error) {
	ok, err := o.matches(ctx, d.Row)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return []agg.Delta{d}, nil
}

func (o *matchOp) Snapshot(*agg.Context) ([]agg.Value, error) { return nil, nil }

func (o *matchOp) Doc(ctx *agg.Context, id agg.RowID) (*agg.Document, error) {
	return o.input.Doc(ctx, id)
}

// ApplyBatch filters with the vector evaluator; the selection vector keeps
// matching lanes.
func (o *matchOp) ApplyBatch(ctx *agg.Context, vals []agg.Value) ([]agg.Value, error) {
	docs, err := asDocuments(vals)
	if err != nil {
		return nil, err
	}
	env := &expression.Env{Now: ctx.Now, Vars: ctx.Vars}
	sel := expression.EvalPredicateBatch(o.pred, docs, env)
	out := make([]agg.Value, 0, sel.Popcount())
	for _, i := range sel.SetBits() {
		out = append(out, docs[i])
	}
	return out, nil
}

func (o *matchOp) Barrier() bool      { return false }
func (o *matchOp) CanIncrement() bool { return true }
func (o *matchOp) CanDecrement() bool { return true }
func (o *matchOp) Reset()             { o.pre = nil }
