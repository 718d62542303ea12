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
	"context"
	"sort"

	"github.com/dolthub/go-agg-engine/agg"
	"github.com/dolthub/go-agg-engine/agg/expression"
	"github.com/dolthub/go-agg-engine/agg/plan"
	"github.com/dolthub/go-agg-engine/agg/prefilter"
)

// Executor drives a compiled plan's operators over the row store. Operator
// state (group tables, sort multisets) persists across streaming runs; all
// per-run scratch lives in the run context and dies with it.
type Executor struct {
	store agg.Store
	plan  *plan.Plan
	opts  *agg.Options

	ops        []Operator
	firstBarrier int // index into ops, -1 when fully forwarding

	// outSet is the executor's ledger of deltas that exited the last
	// operator, used to materialize barrier-free pipelines.
	outSet map[agg.RowID]struct{}

	// replayPerRun marks pipelines whose operators carry per-run state
	// (virtual rows); streaming runs rebuild them from the live set.
	replayPerRun bool

	// needRebuild is set when a delta could not be decremented
	// incrementally; the next materialization replays from scratch.
	needRebuild bool

	primed bool
}

// NewExecutor builds the operator chain for a hot-path plan.
func NewExecutor(store agg.Store, p *plan.Plan, opts *agg.Options, sample []*agg.Document) (*Executor, error) {
	e := &Executor{
		store:        store,
		plan:         p,
		opts:         opts.Sanitize(),
		firstBarrier: -1,
		outSet:       map[agg.RowID]struct{}{},
	}
	compiler := expression.DefaultCompiler

	var input docSource = storeSource{store}
	for gi, group := range p.Groups {
		op, err := makeOperator(gi, group, p.Stages, input, compiler, sample, e.opts)
		if err != nil {
			return nil, err
		}
		e.ops = append(e.ops, op)
		if op.Barrier() && e.firstBarrier < 0 {
			e.firstBarrier = gi
		}
		for _, s := range p.Stages[group.Start:group.End] {
			if s.Kind == plan.StageUnwind || s.Kind == plan.StageLookup {
				e.replayPerRun = true
			}
		}
		input = op
	}
	return e, nil
}

func makeOperator(stageIdx int, group plan.FusionGroup, stages []*plan.Stage, input docSource, compiler *expression.Compiler, sample []*agg.Document, opts *agg.Options) (Operator, error) {
	if group.TopK {
		return newTopKOp(stageIdx, input, stages[group.Start], group.K)
	}
	if group.Size() > 1 {
		return newFusedOp(stageIdx, input, stages[group.Start:group.End], compiler, sample)
	}
	s := stages[group.Start]
	switch s.Kind {
	case plan.StageMatch:
		return &matchOp{stageIdx: stageIdx, input: input, pred: s.Predicate, info: s.MatchInfo}, nil
	case plan.StageProject, plan.StageAddFields, plan.StageSet, plan.StageUnset:
		return newProjectOp(stageIdx, input, s, compiler, sample)
	case plan.StageGroup:
		return newGroupOp(stageIdx, input, s, compiler, sample, opts.Mode), nil
	case plan.StageSort:
		return newSortOp(stageIdx, input, s)
	case plan.StageLimit, plan.StageSkip:
		return newLimitSkipOp(stageIdx, input, s), nil
	case plan.StageUnwind:
		return newUnwindOp(stageIdx, input, s)
	case plan.StageLookup:
		return newLookupOp(stageIdx, input, s, opts)
	default:
		return nil, agg.ErrUnsupportedOperator.New(string(s.Kind))
	}
}

// ApplyStageBatch runs one compiled stage over a materialized document
// list, the building block of the compatibility shim and the free stage
// functions.
func ApplyStageBatch(ctx *agg.Context, s *plan.Stage, docs []agg.Value, opts *agg.Options, sample []*agg.Document) ([]agg.Value, error) {
	op, err := makeOperator(0, plan.FusionGroup{Start: 0, End: 1}, []*plan.Stage{s}, docListSource{nil}, expression.DefaultCompiler, sample, opts.Sanitize())
	if err != nil {
		return nil, err
	}
	return op.ApplyBatch(ctx, docs)
}

// NewRunContext allocates the per-run context with one scratch slot per
// operator.
func (e *Executor) NewRunContext(parent context.Context) *agg.Context {
	return agg.NewContext(parent, len(e.ops))
}

// ReplayPerRun reports whether streaming runs must rebuild operator state.
func (e *Executor) ReplayPerRun() bool { return e.replayPerRun }

// Primed reports whether the initial rows have been pumped.
func (e *Executor) Primed() bool { return e.primed }

// Prime pumps a +1 delta for every live row through the chain, attaching
// prefilters first when the collection qualifies.
func (e *Executor) Prime(ctx *agg.Context) error {
	span, ctx := ctx.Span("aggregation.prime")
	defer span.Finish()

	e.attachPrefilters(ctx)
	for _, b := range e.store.Live().SetBits() {
		if err := e.Apply(ctx, agg.Add(agg.RowID(b))); err != nil {
			return err
		}
	}
	e.primed = true
	return nil
}

// Apply drives one delta through the chain until it is absorbed by a
// barrier or exits the last operator into the ledger.
func (e *Executor) Apply(ctx *agg.Context, d agg.Delta) error {
	cur := []agg.Delta{d}
	for _, op := range e.ops {
		if len(cur) == 0 {
			return nil
		}
		var next []agg.Delta
		for _, cd := range cur {
			var out []agg.Delta
			var err error
			if cd.Sign > 0 {
				out, err = op.OnAdd(ctx, cd)
			} else {
				if !op.CanDecrement() {
					e.needRebuild = true
					return nil
				}
				out, err = op.OnRemove(ctx, cd)
			}
			if err != nil {
				return err
			}
			next = append(next, out...)
		}
		if op.Barrier() {
			return nil
		}
		cur = next
	}
	for _, cd := range cur {
		if cd.Sign > 0 {
			e.outSet[cd.Row] = struct{}{}
		} else {
			delete(e.outSet, cd.Row)
		}
	}
	return nil
}

// Rebuild drops all operator state and the ledger and re-primes from the
// live set.
func (e *Executor) Rebuild(ctx *agg.Context) error {
	for _, op := range e.ops {
		op.Reset()
	}
	e.outSet = map[agg.RowID]struct{}{}
	e.needRebuild = false
	e.primed = false
	return e.Prime(ctx)
}

// NeedsRebuild reports whether a non-decrementable delta was observed.
func (e *Executor) NeedsRebuild() bool { return e.needRebuild }

// Materialize produces the pipeline output: the first barrier's snapshot
// pushed through the remaining stages batch-wise, or the ledger's documents
// for barrier-free pipelines.
func (e *Executor) Materialize(ctx *agg.Context) ([]agg.Value, error) {
	span, ctx := ctx.Span("aggregation.materialize")
	defer span.Finish()

	if e.needRebuild {
		if err := e.Rebuild(ctx); err != nil {
			return nil, err
		}
	}

	var docs []agg.Value
	start := 0
	if e.firstBarrier >= 0 {
		snap, err := e.ops[e.firstBarrier].Snapshot(ctx)
		if err != nil {
			return nil, err
		}
		docs = snap
		start = e.firstBarrier + 1
	} else {
		ids := make([]agg.RowID, 0, len(e.outSet))
		for id := range e.outSet {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		docs = make([]agg.Value, 0, len(ids))
		if len(e.ops) == 0 {
			for _, id := range ids {
				doc, err := e.store.Get(id)
				if err != nil {
					return nil, err
				}
				docs = append(docs, doc.DeepClone())
			}
			return docs, nil
		}
		last := e.ops[len(e.ops)-1]
		for _, id := range ids {
			doc, err := last.Doc(ctx, id)
			if err != nil {
				return nil, err
			}
			docs = append(docs, doc)
		}
		return docs, nil
	}

	for _, op := range e.ops[start:] {
		var err error
		docs, err = op.ApplyBatch(ctx, docs)
		if err != nil {
			return nil, err
		}
	}
	return docs, nil
}

// attachPrefilters wires trigram and Bloom candidate sets onto a
// first-stage $match when the collection is large enough. All failures
// degrade silently to the full scan.
func (e *Executor) attachPrefilters(ctx *agg.Context) {
	if len(e.ops) == 0 || e.store.Size() < e.opts.MinCollectionSize {
		return
	}
	m, ok := e.ops[0].(*matchOp)
	if !ok || m.info == nil {
		return
	}
	ids := make([]uint32, 0, e.store.Size())
	for _, b := range e.store.Live().SetBits() {
		ids = append(ids, uint32(b))
	}
	get := func(id uint32) *agg.Document {
		doc, err := e.store.Get(agg.RowID(id))
		if err != nil {
			return nil
		}
		return doc
	}

	if len(m.info.RegexFields) > 0 {
		fields := make([]string, 0, len(m.info.RegexFields))
		for f := range m.info.RegexFields {
			fields = append(fields, f)
		}
		ix := prefilter.BuildTrigramIndex(ids, get, fields)
		for f, pattern := range m.info.RegexFields {
			if set, ok := ix.Candidates(f, pattern); ok {
				m.pre = set
				m.preBound = agg.RowID(e.store.Live().Len())
				ctx.Log().WithField("field", f).
					WithField("candidates", set.Count()).
					Debug("trigram prefilter attached")
				break
			}
		}
	}

	if e.opts.EnableBloomFilter && len(m.info.TextQueries) > 0 {
		var fields []string
		for _, q := range m.info.TextQueries {
			if q.Field != "" {
				fields = append(fields, q.Field)
			}
		}
		ix := prefilter.BuildBloomIndex(ids, get, fields, expression.Tokenize)
		for _, q := range m.info.TextQueries {
			if !ix.MayMatchAll(q.Field, expression.Tokenize(q.Search)) {
				// provably no matches: empty candidate set
				m.pre = emptyCandidates()
				m.preBound = agg.RowID(e.store.Live().Len())
				ctx.Log().Debug("bloom prefilter proved text query unsatisfiable")
				break
			}
		}
	}
}

func emptyCandidates() *prefilter.Set {
	return prefilter.EmptySet()
}
