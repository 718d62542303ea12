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
	"fmt"

	"github.com/dolthub/go-agg-engine/agg"
	"github.com/dolthub/go-agg-engine/agg/expression"
	"github.com/dolthub/go-agg-engine/agg/plan"
)

// fusedStep is one stage inside a fusion group: a predicate or a
// projection.
type fusedStep struct {
	pred *matchOp    // non-nil for $match steps
	proj *projector  // non-nil for projection steps
	kind plan.StageKind
}

// fusedOp executes a fusion group as a single row-at-a-time function that
// either emits the transformed row or drops it.
type fusedOp struct {
	stageIdx int
	input    docSource
	steps    []fusedStep
}

func newFusedOp(stageIdx int, input docSource, stages []*plan.Stage, compiler *expression.Compiler, sample []*agg.Document) (*fusedOp, error) {
	o := &fusedOp{stageIdx: stageIdx, input: input}
	for _, s := range stages {
		switch s.Kind {
		case plan.StageMatch:
			o.steps = append(o.steps, fusedStep{
				kind: s.Kind,
				pred: &matchOp{pred: s.Predicate, info: s.MatchInfo},
			})
		case plan.StageProject, plan.StageAddFields, plan.StageSet, plan.StageUnset:
			proj, err := newProjector(s, compiler, sample)
			if err != nil {
				return nil, err
			}
			o.steps = append(o.steps, fusedStep{kind: s.Kind, proj: proj})
		default:
			return nil, agg.ErrInvariantViolation.New(fmt.Sprintf("stage %s in fusion group", s.Kind))
		}
	}
	return o, nil
}

func (o *fusedOp) Name() string { return "fused" }

// run pushes one document through every step; the boolean reports whether
// the row survived.
func (o *fusedOp) run(ctx *agg.Context, doc *agg.Document) (*agg.Document, bool) {
	for _, step := range o.steps {
		if step.pred != nil {
			env := &expression.Env{Doc: doc, Root: doc, Now: ctx.Now, Vars: ctx.Vars}
			if !agg.Truthy(expression.Evaluate(step.pred.pred, env)) {
				return nil, false
			}
			continue
		}
		doc = step.proj.apply(ctx, doc)
	}
	return doc, true
}

func (o *fusedOp) OnAdd(ctx *agg.Context, d agg.Delta) ([]agg.Delta, error) {
	in, err := o.input.Doc(ctx, d.Row)
	if err != nil {
		return nil, err
	}
	out, ok := o.run(ctx, in)
	if !ok {
		return nil, nil
	}
	ctx.Scratch(o.stageIdx).PutDoc(d.Row, out)
	return []agg.Delta{d}, nil
}

func (o *fusedOp) OnRemove(ctx *agg.Context, d agg.Delta) ([]agg.Delta, error) {
	in, err := o.input.Doc(ctx, d.Row)
	if err != nil {
		return nil, err
	}
	if _, ok := o.run(ctx, in); !ok {
		return nil, nil
	}
	return []agg.Delta{d}, nil
}

func (o *fusedOp) Snapshot(*agg.Context) ([]agg.Value, error) { return nil, nil }

func (o *fusedOp) Doc(ctx *agg.Context, id agg.RowID) (*agg.Document, error) {
	if doc, ok := ctx.Scratch(o.stageIdx).Doc(id); ok {
		return doc, nil
	}
	in, err := o.input.Doc(ctx, id)
	if err != nil {
		return nil, err
	}
	out, ok := o.run(ctx, in)
	if !ok {
		return nil, agg.ErrInvariantViolation.New(fmt.Sprintf("doc request for filtered row %d", id))
	}
	ctx.Scratch(o.stageIdx).PutDoc(id, out)
	return out, nil
}

func (o *fusedOp) ApplyBatch(ctx *agg.Context, vals []agg.Value) ([]agg.Value, error) {
	docs, err := asDocuments(vals)
	if err != nil {
		return nil, err
	}
	out := make([]agg.Value, 0, len(docs))
	for _, doc := range docs {
		if res, ok := o.run(ctx, doc); ok {
			out = append(out, res)
		}
	}
	return out, nil
}

func (o *fusedOp) Barrier() bool      { return false }
func (o *fusedOp) CanIncrement() bool { return true }
func (o *fusedOp) CanDecrement() bool { return true }
func (o *fusedOp) Reset()             {}
