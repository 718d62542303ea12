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

type projMode int

const (
	projInclude projMode = iota
	projExclude
	projCompute
)

type projField struct {
	name string
	path agg.Path
	mode projMode
	expr *expression.Compiled
}

// projector materializes the derived document for $project, $addFields and
// $unset. Output field order is the stage spec's key insertion order, with
// _id first unless suppressed.
type projector struct {
	kind       plan.StageKind
	fields     []projField
	inclusive  bool
	suppressID bool
}

func newProjector(stage *plan.Stage, compiler *expression.Compiler, sample []*agg.Document) (*projector, error) {
	p := &projector{kind: stage.Kind}
	if stage.Kind == plan.StageUnset {
		for _, f := range stage.Fields {
			path, err := agg.ParsePath(f)
			if err != nil {
				return nil, err
			}
			p.fields = append(p.fields, projField{name: f, path: path, mode: projExclude})
		}
		return p, nil
	}

	spec, ok := stage.Spec.(*agg.Document)
	if !ok {
		return nil, agg.ErrInvariantViolation.New("projection stage without document spec")
	}
	sawInclude, sawExclude := false, false
	for _, name := range stage.Fields {
		raw, _ := spec.Get(name)
		path, err := agg.ParsePath(name)
		if err != nil {
			return nil, err
		}
		f := projField{name: name, path: path}
		if e, isExpr := stage.Exprs[name]; isExpr {
			f.mode = projCompute
			f.expr = compiler.Compile(e, sample)
		} else if flagTruthy(raw) {
			f.mode = projInclude
			sawInclude = true
		} else {
			f.mode = projExclude
			if name == "_id" {
				p.suppressID = true
			} else {
				sawExclude = true
			}
		}
		p.fields = append(p.fields, f)
	}
	if stage.Kind == plan.StageProject {
		if sawInclude && sawExclude {
			return nil, agg.ErrParse.New("$project cannot mix inclusion and exclusion")
		}
		p.inclusive = sawInclude || !sawExclude
	}
	return p, nil
}

func flagTruthy(v agg.Value) bool {
	switch t := v.(type) {
	case bool:
		return t
	case int64:
		return t != 0
	case float64:
		return t != 0
	default:
		return false
	}
}

// apply computes the derived document. The input is never mutated.
func (p *projector) apply(ctx *agg.Context, in *agg.Document) *agg.Document {
	env := &expression.Env{Doc: in, Root: in, Now: ctx.Now, Vars: ctx.Vars}
	switch p.kind {
	case plan.StageUnset:
		out := in.DeepClone()
		for _, f := range p.fields {
			f.path.Remove(out)
		}
		return out
	case plan.StageAddFields, plan.StageSet:
		out := in.DeepClone()
		for _, f := range p.fields {
			if f.mode != projCompute {
				continue
			}
			v := f.expr.Eval(in, env)
			f.path.Store(out, v)
		}
		return out
	}

	// $project
	if !p.inclusive {
		out := in.DeepClone()
		for _, f := range p.fields {
			if f.mode == projExclude {
				f.path.Remove(out)
			} else if f.mode == projCompute {
				v := f.expr.Eval(in, env)
				f.path.Store(out, v)
			}
		}
		return out
	}

	out := agg.NewDocument()
	if !p.suppressID {
		if id, ok := in.Get("_id"); ok {
			out.Set("_id", id)
		}
	}
	for _, f := range p.fields {
		switch f.mode {
		case projInclude:
			if f.name == "_id" {
				continue // already emitted first
			}
			v := f.path.Resolve(in)
			if agg.IsMissing(v) {
				continue
			}
			f.path.Store(out, agg.DeepCloneValue(v))
		case projCompute:
			v := f.expr.Eval(in, env)
			if agg.IsMissing(v) {
				continue
			}
			f.path.Store(out, v)
		}
	}
	return out
}

// projectOp is the standalone projection operator. It is stateless: the
// derived document is cached in run scratch keyed by (stage, rowId) and
// recomputed on demand.
type projectOp struct {
	stageIdx int
	input    docSource
	proj     *projector
}

func newProjectOp(stageIdx int, input docSource, stage *plan.Stage, compiler *expression.Compiler, sample []*agg.Document) (*projectOp, error) {
	proj, err := newProjector(stage, compiler, sample)
	if err != nil {
		return nil, err
	}
	return &projectOp{stageIdx: stageIdx, input: input, proj: proj}, nil
}

func (o *projectOp) Name() string { return string(o.proj.kind) }

func (o *projectOp) OnAdd(ctx *agg.Context, d agg.Delta) ([]agg.Delta, error) {
	in, err := o.input.Doc(ctx, d.Row)
	if err != nil {
		return nil, err
	}
	ctx.Scratch(o.stageIdx).PutDoc(d.Row, o.proj.apply(ctx, in))
	return []agg.Delta{d}, nil
}

func (o *projectOp) OnRemove(ctx *agg.Context, d agg.Delta) ([]agg.Delta, error) {
	return []agg.Delta{d}, nil
}

func (o *projectOp) Snapshot(*agg.Context) ([]agg.Value, error) { return nil, nil }

func (o *projectOp) Doc(ctx *agg.Context, id agg.RowID) (*agg.Document, error) {
	if doc, ok := ctx.Scratch(o.stageIdx).Doc(id); ok {
		return doc, nil
	}
	in, err := o.input.Doc(ctx, id)
	if err != nil {
		return nil, err
	}
	doc := o.proj.apply(ctx, in)
	ctx.Scratch(o.stageIdx).PutDoc(id, doc)
	return doc, nil
}

func (o *projectOp) ApplyBatch(ctx *agg.Context, vals []agg.Value) ([]agg.Value, error) {
	docs, err := asDocuments(vals)
	if err != nil {
		return nil, err
	}
	out := make([]agg.Value, len(docs))
	for i, doc := range docs {
		out[i] = o.proj.apply(ctx, doc)
	}
	return out, nil
}

func (o *projectOp) Barrier() bool      { return false }
func (o *projectOp) CanIncrement() bool { return true }
func (o *projectOp) CanDecrement() bool { return true }
func (o *projectOp) Reset()             {}
