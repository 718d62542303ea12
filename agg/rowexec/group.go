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
	"github.com/dolthub/go-agg-engine/agg/plan"
)

type groupState int

const (
	groupEmpty groupState = iota
	groupNonEmpty
	groupPruned
)

// groupEntry is the accumulator record for one group key.
type groupEntry struct {
	key   agg.Value
	count int64
	accs  []accumulator
	state groupState
}

// groupOp maintains one accumulator record per canonicalized group key.
// State persists across streaming runs; a group whose count reaches zero is
// pruned and re-initializes on the next add with the same key.
type groupOp struct {
	stageIdx int
	input    docSource
	stage    *plan.Stage

	idExpr   *expression.Compiled
	accNames []string
	accOps   []string
	accExprs []*expression.Compiled

	table map[string]*groupEntry
	order []string

	// toggle-mode dimension cache: evaluated key and accumulator inputs per
	// real row, so removals skip re-evaluation.
	toggle  bool
	rowDims map[agg.RowID]*rowDim
}

type rowDim struct {
	key  string
	vals []agg.Value
	rank int64
}

func newGroupOp(stageIdx int, input docSource, stage *plan.Stage, compiler *expression.Compiler, sample []*agg.Document, mode agg.Mode) *groupOp {
	o := &groupOp{
		stageIdx: stageIdx,
		input:    input,
		stage:    stage,
		idExpr:   compiler.Compile(stage.Exprs["_id"], sample),
		table:    map[string]*groupEntry{},
		toggle:   mode == agg.ModeToggle,
		rowDims:  map[agg.RowID]*rowDim{},
	}
	for _, name := range stage.Fields {
		o.accNames = append(o.accNames, name)
		o.accOps = append(o.accOps, stage.AccOps[name])
		o.accExprs = append(o.accExprs, compiler.Compile(stage.Exprs[name], sample))
	}
	return o
}

func (o *groupOp) Name() string { return "$group" }

// evalRow computes the group key and accumulator operands for one document.
func (o *groupOp) evalRow(ctx *agg.Context, doc *agg.Document) (string, agg.Value, []agg.Value) {
	env := &expression.Env{Doc: doc, Root: doc, Now: ctx.Now, Vars: ctx.Vars}
	key := o.idExpr.Eval(doc, env)
	vals := make([]agg.Value, len(o.accExprs))
	for i, e := range o.accExprs {
		if o.accOps[i] == "$count" {
			continue
		}
		vals[i] = e.Eval(doc, env)
	}
	return agg.CanonicalKey(key), key, vals
}

func (o *groupOp) entryFor(canon string, key agg.Value) *groupEntry {
	entry, ok := o.table[canon]
	if !ok {
		entry = &groupEntry{key: key, state: groupEmpty}
		o.table[canon] = entry
		o.order = append(o.order, canon)
	}
	if entry.state != groupNonEmpty {
		// empty -> nonEmpty, or pruned -> nonEmpty with fresh partials
		entry.accs = make([]accumulator, len(o.accOps))
		for i, op := range o.accOps {
			entry.accs[i] = newAccumulator(op)
		}
		entry.count = 0
		entry.state = groupNonEmpty
		entry.key = key
	}
	return entry
}

func (o *groupOp) OnAdd(ctx *agg.Context, d agg.Delta) ([]agg.Delta, error) {
	doc, err := o.input.Doc(ctx, d.Row)
	if err != nil {
		return nil, err
	}
	canon, key, vals := o.evalRow(ctx, doc)
	rank := ctx.Scratch(o.stageIdx).Rank(d.Row)
	if o.toggle && !d.Row.IsVirtual() {
		o.rowDims[d.Row] = &rowDim{key: canon, vals: vals, rank: rank}
	}
	entry := o.entryFor(canon, key)
	entry.count++
	for i, acc := range entry.accs {
		acc.Add(vals[i], rank)
	}
	return nil, nil
}

func (o *groupOp) OnRemove(ctx *agg.Context, d agg.Delta) ([]agg.Delta, error) {
	var canon string
	var vals []agg.Value
	var rank int64
	if dim, ok := o.rowDims[d.Row]; o.toggle && ok {
		canon, vals, rank = dim.key, dim.vals, dim.rank
		delete(o.rowDims, d.Row)
	} else {
		doc, err := o.input.Doc(ctx, d.Row)
		if err != nil {
			return nil, err
		}
		canon, _, vals = o.evalRow(ctx, doc)
		rank = ctx.Scratch(o.stageIdx).Rank(d.Row)
	}
	entry, ok := o.table[canon]
	if !ok || entry.state != groupNonEmpty {
		return nil, agg.ErrInvariantViolation.New("remove for unknown group " + canon)
	}
	entry.count--
	for i, acc := range entry.accs {
		acc.Remove(vals[i], rank)
	}
	if entry.count == 0 {
		entry.state = groupPruned
	}
	return nil, nil
}

// Snapshot materializes one document per non-pruned group: {_id, accs...}.
// Order is group-creation order, which downstream $sort treats as
// unspecified.
func (o *groupOp) Snapshot(*agg.Context) ([]agg.Value, error) {
	out := make([]agg.Value, 0, len(o.order))
	for _, canon := range o.order {
		entry := o.table[canon]
		if entry.state != groupNonEmpty {
			continue
		}
		doc := agg.NewDocument()
		doc.Set("_id", entry.key)
		for i, name := range o.accNames {
			doc.Set(name, entry.accs[i].Result())
		}
		out = append(out, doc)
	}
	return out, nil
}

func (o *groupOp) Doc(*agg.Context, agg.RowID) (*agg.Document, error) {
	return nil, agg.ErrInvariantViolation.New("row-id doc request on $group")
}

// ApplyBatch runs an ephemeral grouping over a materialized list, used when
// $group sits downstream of another barrier.
func (o *groupOp) ApplyBatch(ctx *agg.Context, vals []agg.Value) ([]agg.Value, error) {
	docs, err := asDocuments(vals)
	if err != nil {
		return nil, err
	}
	tmp := &groupOp{
		stageIdx: o.stageIdx,
		input:    docListSource{docs},
		stage:    o.stage,
		idExpr:   o.idExpr,
		accNames: o.accNames,
		accOps:   o.accOps,
		accExprs: o.accExprs,
		table:    map[string]*groupEntry{},
		rowDims:  map[agg.RowID]*rowDim{},
	}
	for i := range docs {
		if _, err := tmp.OnAdd(ctx, agg.Add(agg.RowID(i))); err != nil {
			return nil, err
		}
	}
	return tmp.Snapshot(ctx)
}

func (o *groupOp) Barrier() bool      { return true }
func (o *groupOp) CanIncrement() bool { return true }
func (o *groupOp) CanDecrement() bool { return true }

func (o *groupOp) Reset() {
	o.table = map[string]*groupEntry{}
	o.order = nil
	o.rowDims = map[agg.RowID]*rowDim{}
}
