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

// lookupOp is the simple localField/foreignField variant. The foreign index
// is built once at operator construction; the advanced let/pipeline variant
// is routed to the compatibility shim by the planner.
type lookupOp struct {
	stageIdx   int
	input      docSource
	localPath  agg.Path
	asPath     agg.Path
	index      map[string][]*agg.Document
}

func newLookupOp(stageIdx int, input docSource, stage *plan.Stage, opts *agg.Options) (*lookupOp, error) {
	spec := stage.Spec.(*agg.Document)
	fromV, _ := spec.Get("from")
	localV, _ := spec.Get("localField")
	foreignV, _ := spec.Get("foreignField")
	asV, _ := spec.Get("as")
	from, _ := fromV.(string)
	local, _ := localV.(string)
	foreign, _ := foreignV.(string)
	as, _ := asV.(string)
	if from == "" || local == "" || foreign == "" || as == "" {
		return nil, agg.ErrParse.New("$lookup fields must be non-empty strings")
	}

	localPath, err := agg.ParsePath(local)
	if err != nil {
		return nil, err
	}
	foreignPath, err := agg.ParsePath(foreign)
	if err != nil {
		return nil, err
	}
	asPath, err := agg.ParsePath(as)
	if err != nil {
		return nil, err
	}

	o := &lookupOp{
		stageIdx:  stageIdx,
		input:     input,
		localPath: localPath,
		asPath:    asPath,
		index:     map[string][]*agg.Document{},
	}
	for _, doc := range opts.Collections[from] {
		v := foreignPath.Resolve(doc)
		if agg.IsMissing(v) {
			v = nil
		}
		key := agg.CanonicalKey(v)
		o.index[key] = append(o.index[key], doc)
	}
	return o, nil
}

func (o *lookupOp) Name() string { return "$lookup" }

func (o *lookupOp) join(in *agg.Document) *agg.Document {
	v := o.localPath.Resolve(in)
	if agg.IsMissing(v) {
		v = nil
	}
	var matches []*agg.Document
	if arr, ok := v.([]agg.Value); ok {
		seen := map[*agg.Document]bool{}
		for _, elem := range arr {
			for _, m := range o.index[agg.CanonicalKey(elem)] {
				if !seen[m] {
					seen[m] = true
					matches = append(matches, m)
				}
			}
		}
	} else {
		matches = o.index[agg.CanonicalKey(v)]
	}

	out := in.DeepClone()
	joined := make([]agg.Value, len(matches))
	for i, m := range matches {
		joined[i] = m.DeepClone()
	}
	o.asPath.Store(out, joined)
	return out
}

func (o *lookupOp) OnAdd(ctx *agg.Context, d agg.Delta) ([]agg.Delta, error) {
	in, err := o.input.Doc(ctx, d.Row)
	if err != nil {
		return nil, err
	}
	ctx.Scratch(o.stageIdx).PutDoc(d.Row, o.join(in))
	return []agg.Delta{d}, nil
}

func (o *lookupOp) OnRemove(ctx *agg.Context, d agg.Delta) ([]agg.Delta, error) {
	return []agg.Delta{d}, nil
}

func (o *lookupOp) Snapshot(*agg.Context) ([]agg.Value, error) { return nil, nil }

func (o *lookupOp) Doc(ctx *agg.Context, id agg.RowID) (*agg.Document, error) {
	if doc, ok := ctx.Scratch(o.stageIdx).Doc(id); ok {
		return doc, nil
	}
	in, err := o.input.Doc(ctx, id)
	if err != nil {
		return nil, err
	}
	doc := o.join(in)
	ctx.Scratch(o.stageIdx).PutDoc(id, doc)
	return doc, nil
}

func (o *lookupOp) ApplyBatch(ctx *agg.Context, vals []agg.Value) ([]agg.Value, error) {
	docs, err := asDocuments(vals)
	if err != nil {
		return nil, err
	}
	out := make([]agg.Value, len(docs))
	for i, doc := range docs {
		out[i] = o.join(doc)
	}
	return out, nil
}

func (o *lookupOp) Barrier() bool      { return false }
func (o *lookupOp) CanIncrement() bool { return true }
func (o *lookupOp) CanDecrement() bool { return true }
func (o *lookupOp) Reset()             {}
