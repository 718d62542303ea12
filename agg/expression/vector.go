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

package expression

import (
	"github.com/dolthub/go-agg-engine/agg"
	"github.com/dolthub/go-agg-engine/internal/bitset"
)

// Batch is a contiguous column of evaluation results with a null mask.
type Batch struct {
	Values []agg.Value
	Nulls  *bitset.NullMask
}

// NewBatch allocates a batch of the given size with all lanes non-null.
func NewBatch(size int) *Batch {
	return &Batch{
		Values: make([]agg.Value, size),
		Nulls:  bitset.NewNullMask(size),
	}
}

// Len returns the lane count.
func (b *Batch) Len() int { return len(b.Values) }

// SetNull nulls lane i.
func (b *Batch) SetNull(i int) {
	b.Values[i] = nil
	b.Nulls.SetNull(i)
}

// EvalBatch evaluates an expression over a batch of documents, producing a
// same-sized output column. Boolean connectives run word-at-a-time over
// bitsets with three-valued logic; other operators evaluate lanewise with
// null propagation. This is the fallback path for megamorphic expressions
// and heterogeneous batches.
func EvalBatch(e Expr, docs []*agg.Document, env *Env) *Batch {
	switch t := e.(type) {
	case *OpExpr:
		switch t.Name {
		case "$and":
			return evalBoolBatch(t.Args, docs, env, bitset.AndVec, true)
		case "$or":
			return evalBoolBatch(t.Args, docs, env, bitset.OrVec, false)
		case "$not":
			return evalNotBatch(t.Args[0], docs, env)
		}
	}
	return evalLanewise(e, docs, env)
}

func evalLanewise(e Expr, docs []*agg.Document, env *Env) *Batch {
	out := NewBatch(len(docs))
	for i, doc := range docs {
		frame := *env
		frame.Doc = doc
		if frame.Root == nil {
			frame.Root = doc
		}
		v := Evaluate(e, &frame)
		if agg.IsNullOrMissing(v) {
			out.SetNull(i)
			continue
		}
		out.Values[i] = v
	}
	return out
}

type vecOp func(av, an, bv, bn, rv, rn *bitset.Vector)

// evalBoolBatch folds operand columns pairwise with a word-level
// three-valued kernel.
func evalBoolBatch(args []Expr, docs []*agg.Document, env *Env, op vecOp, isAnd bool) *Batch {
	n := len(docs)
	accV, accN := boolColumn(args[0], docs, env)
	for _, arg := range args[1:] {
		bv, bn := boolColumn(arg, docs, env)
		rv := bitset.NewVector(n)
		rn := bitset.NewVector(n)
		op(accV, accN, bv, bn, rv, rn)
		accV, accN = rv, rn
	}
	return boolBatch(accV, accN, n)
}

func evalNotBatch(arg Expr, docs []*agg.Document, env *Env) *Batch {
	n := len(docs)
	v, nulls := boolColumn(arg, docs, env)
	v.Not()
	// null lanes stay null; their value bits are meaningless
	return boolBatch(v, nulls, n)
}

// boolColumn renders an operand as (truth bits, null bits).
func boolColumn(e Expr, docs []*agg.Document, env *Env) (*bitset.Vector, *bitset.Vector) {
	n := len(docs)
	vals := bitset.NewVector(n)
	nulls := bitset.NewVector(n)
	inner := EvalBatch(e, docs, env)
	for i := 0; i < n; i++ {
		if inner.Nulls.IsNull(i) {
			nulls.Set(i)
			continue
		}
		if agg.Truthy(inner.Values[i]) {
			vals.Set(i)
		}
	}
	return vals, nulls
}

func boolBatch(v, nulls *bitset.Vector, n int) *Batch {
	out := NewBatch(n)
	for i := 0; i < n; i++ {
		if nulls.Get(i) {
			out.SetNull(i)
			continue
		}
		out.Values[i] = v.Get(i)
	}
	return out
}

// EvalPredicateBatch evaluates a predicate over documents and returns the
// selection vector of matching lanes. Null lanes do not match.
func EvalPredicateBatch(e Expr, docs []*agg.Document, env *Env) *bitset.Vector {
	batch := EvalBatch(e, docs, env)
	sel := bitset.NewVector(len(docs))
	for i, v := range batch.Values {
		if batch.Nulls.IsNull(i) {
			continue
		}
		if agg.Truthy(v) {
			sel.Set(i)
		}
	}
	return sel
}
