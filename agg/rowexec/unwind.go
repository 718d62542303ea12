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
	"github.com/dolthub/go-agg-engine/agg/plan"
)

// unwindOp expands one input row into one virtual row per array element.
// Virtual numbering is local to this operator instance and this run; it
// lives in run scratch and can never leak across runs.
type unwindOp struct {
	stageIdx      int
	input         docSource
	path          agg.Path
	preserveEmpty bool
	indexField    string
}

func newUnwindOp(stageIdx int, input docSource, stage *plan.Stage) (*unwindOp, error) {
	o := &unwindOp{stageIdx: stageIdx, input: input}
	path, err := agg.ParsePath(stage.Fields[0])
	if err != nil {
		return nil, err
	}
	o.path = path
	if doc, ok := stage.Spec.(*agg.Document); ok {
		if v, ok := doc.Get("preserveNullAndEmptyArrays"); ok {
			o.preserveEmpty = agg.Truthy(v)
		}
		if v, ok := doc.Get("includeArrayIndex"); ok {
			if s, ok := v.(string); ok {
				o.indexField = s
			}
		}
	}
	return o, nil
}

func (o *unwindOp) Name() string { return "$unwind" }

func (o *unwindOp) OnAdd(ctx *agg.Context, d agg.Delta) ([]agg.Delta, error) {
	in, err := o.input.Doc(ctx, d.Row)
	if err != nil {
		return nil, err
	}
	return o.expand(ctx, in, d)
}

func (o *unwindOp) expand(ctx *agg.Context, in *agg.Document, d agg.Delta) ([]agg.Delta, error) {
	scratch := ctx.Scratch(o.stageIdx)
	emit := func(doc *agg.Document, sub int) (agg.Delta, error) {
		id, err := scratch.AllocVirtual(d.Row, sub)
		if err != nil {
			return agg.Delta{}, err
		}
		scratch.PutDoc(id, doc)
		return agg.Add(id), nil
	}

	v := o.path.Resolve(in)
	switch t := v.(type) {
	case []agg.Value:
		if len(t) == 0 {
			if !o.preserveEmpty {
				return nil, nil
			}
			doc := in.DeepClone()
			o.path.Remove(doc)
			o.setIndex(doc, nil)
			d2, err := emit(doc, 0)
			if err != nil {
				return nil, err
			}
			return []agg.Delta{d2}, nil
		}
		out := make([]agg.Delta, 0, len(t))
		for i, elem := range t {
			doc := in.DeepClone()
			o.path.Store(doc, agg.DeepCloneValue(elem))
			o.setIndex(doc, int64(i))
			d2, err := emit(doc, i)
			if err != nil {
				return nil, err
			}
			out = append(out, d2)
		}
		return out, nil
	case nil:
		if !o.preserveEmpty {
			return nil, nil
		}
		doc := in.DeepClone()
		o.setIndex(doc, nil)
		d2, err := emit(doc, 0)
		if err != nil {
			return nil, err
		}
		return []agg.Delta{d2}, nil
	default:
		if agg.IsMissing(v) {
			if !o.preserveEmpty {
				return nil, nil
			}
			doc := in.DeepClone()
			o.path.Remove(doc)
			o.setIndex(doc, nil)
			d2, err := emit(doc, 0)
			if err != nil {
				return nil, err
			}
			return []agg.Delta{d2}, nil
		}
		// non-array scalar behaves as a singleton array
		doc := in.DeepClone()
		o.setIndex(doc, nil)
		d2, err := emit(doc, 0)
		if err != nil {
			return nil, err
		}
		return []agg.Delta{d2}, nil
	}
}

func (o *unwindOp) setIndex(doc *agg.Document, idx agg.Value) {
	if o.indexField == "" {
		return
	}
	agg.MustPath(o.indexField).Store(doc, idx)
}

func (o *unwindOp) OnRemove(ctx *agg.Context, d agg.Delta) ([]agg.Delta, error) {
	scratch := ctx.Scratch(o.stageIdx)
	children := scratch.Children(d.Row)
	out := make([]agg.Delta, 0, len(children))
	for _, id := range children {
		out = append(out, agg.Remove(id))
	}
	scratch.DropChildren(d.Row)
	return out, nil
}

func (o *unwindOp) Snapshot(*agg.Context) ([]agg.Value, error) { return nil, nil }

func (o *unwindOp) Doc(ctx *agg.Context, id agg.RowID) (*agg.Document, error) {
	doc, ok := ctx.Scratch(o.stageIdx).Doc(id)
	if !ok {
		return nil, agg.ErrInvariantViolation.New("unknown virtual row")
	}
	return doc, nil
}

func (o *unwindOp) ApplyBatch(ctx *agg.Context, vals []agg.Value) ([]agg.Value, error) {
	docs, err := asDocuments(vals)
	if err != nil {
		return nil, err
	}
	var out []agg.Value
	for i, doc := range docs {
		deltas, err := o.expand(ctx, doc, agg.Add(agg.RowID(i)))
		if err != nil {
			return nil, err
		}
		for _, d := range deltas {
			child, err := o.Doc(ctx, d.Row)
			if err != nil {
				return nil, err
			}
			out = append(out, child)
		}
	}
	return out, nil
}

func (o *unwindOp) Barrier() bool      { return false }
func (o *unwindOp) CanIncrement() bool { return true }
func (o *unwindOp) CanDecrement() bool { return true }
func (o *unwindOp) Reset()             {}
