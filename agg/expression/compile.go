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
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/dolthub/go-agg-engine/agg"
)

// megamorphicThreshold is the number of distinct type vectors after which
// an AST abandons specialization and pins the interpreter.
const megamorphicThreshold = 5

// maxTypeSample bounds how many documents feed a type vector.
const maxTypeSample = 10

// EvalFunc is a compiled evaluator. The document and the bound field getter
// are its only inputs; compiled code captures no run state.
type EvalFunc func(doc *agg.Document, env *Env) agg.Value

// Compiled is one cache entry: an evaluator specialized to a type vector.
type Compiled struct {
	AST         Expr
	CacheKey    uint64
	TypeVector  TypeVector
	Specialized bool
	hits        uint64
	fn          EvalFunc
}

// Eval runs the compiled evaluator. Panics inside evaluation surface as
// Null.
func (c *Compiled) Eval(doc *agg.Document, env *Env) (v agg.Value) {
	defer func() {
		if r := recover(); r != nil {
			v = nil
		}
	}()
	atomic.AddUint64(&c.hits, 1)
	return c.fn(doc, env)
}

// Hits returns how many times this entry has evaluated.
func (c *Compiled) Hits() uint64 { return atomic.LoadUint64(&c.hits) }

type astEntry struct {
	variants    *xsync.MapOf[uint64, *Compiled]
	megamorphic atomic.Bool
}

// Compiler holds the process-wide compilation cache, keyed by
// (astHash, typeVectorHash). It is safe for single-threaded interleaving
// across runs and for concurrent readers.
type Compiler struct {
	entries *xsync.MapOf[uint64, *astEntry]
}

// NewCompiler returns an empty compiler cache.
func NewCompiler() *Compiler {
	return &Compiler{entries: xsync.NewMapOf[uint64, *astEntry]()}
}

// DefaultCompiler is the shared process-wide cache.
var DefaultCompiler = NewCompiler()

// Megamorphic reports whether the AST has seen too many type vectors.
func (c *Compiler) Megamorphic(astHash uint64) bool {
	e, ok := c.entries.Load(astHash)
	return ok && e.megamorphic.Load()
}

// Compile returns an evaluator for the AST, specialized to the types
// observed in the sample when a monomorphic variant exists. Entries
// transition fresh -> hot -> megamorphic as distinct type vectors appear;
// megamorphic ASTs always take the interpreter path.
func (c *Compiler) Compile(ast Expr, sample []*agg.Document) *Compiled {
	astHash := HashAST(ast)
	tv := SampleTypeVector(ast, sample, maxTypeSample)
	tvHash := HashTypeVector(tv)

	entry, _ := c.entries.LoadOrCompute(astHash, func() *astEntry {
		return &astEntry{variants: xsync.NewMapOf[uint64, *Compiled]()}
	})
	if entry.megamorphic.Load() {
		return interpreted(ast, astHash^tvHash, tv)
	}
	if existing, ok := entry.variants.Load(tvHash); ok {
		return existing
	}
	compiled := specialize(ast, tv)
	if compiled == nil {
		compiled = interpreted(ast, astHash^tvHash, tv)
	} else {
		compiled.CacheKey = astHash ^ tvHash
		compiled.TypeVector = tv
	}
	entry.variants.Store(tvHash, compiled)
	if entry.variants.Size() >= megamorphicThreshold {
		entry.megamorphic.Store(true)
		agg.Logger().WithField("astHash", astHash).
			Debug("expression went megamorphic; pinning interpreter")
	}
	return compiled
}

func interpreted(ast Expr, key uint64, tv TypeVector) *Compiled {
	return &Compiled{
		AST:        ast,
		CacheKey:   key,
		TypeVector: tv,
		fn: func(doc *agg.Document, env *Env) agg.Value {
			frame := *env
			frame.Doc = doc
			if frame.Root == nil {
				frame.Root = doc
			}
			out, err := ast.Eval(&frame)
			if err != nil || agg.IsMissing(out) {
				return nil
			}
			return out
		},
	}
}

// specialize builds a closure-free monomorphic evaluator for the shapes
// worth the trouble: comparison or arithmetic of one field reference
// against one literal under a stable scalar type. Everything else returns
// nil and takes the interpreter.
func specialize(ast Expr, tv TypeVector) *Compiled {
	op, ok := ast.(*OpExpr)
	if !ok || len(op.Args) != 2 {
		return nil
	}
	field, fok := op.Args[0].(*FieldRef)
	lit, lok := op.Args[1].(*Literal)
	if !fok || !lok {
		return nil
	}
	ftype := tv[field.Path.String()]
	getField := field.Path.Resolve // bound once; the generated code closes over nothing else

	switch op.Name {
	case "$eq", "$ne", "$gt", "$gte", "$lt", "$lte":
		return specializeCompare(op.Name, getField, ftype, lit.V)
	case "$add", "$subtract", "$multiply":
		return specializeArith(op.Name, getField, ftype, lit.V)
	default:
		return nil
	}
}

func specializeCompare(name string, getField func(*agg.Document) agg.Value, ftype agg.Type, target agg.Value) *Compiled {
	test := func(c int) bool { return false }
	switch name {
	case "$eq":
		test = func(c int) bool { return c == 0 }
	case "$ne":
		test = func(c int) bool { return c != 0 }
	case "$gt":
		test = func(c int) bool { return c > 0 }
	case "$gte":
		test = func(c int) bool { return c >= 0 }
	case "$lt":
		test = func(c int) bool { return c < 0 }
	case "$lte":
		test = func(c int) bool { return c <= 0 }
	}
	eqLike := name != "$ne"
	slow := func(v agg.Value) agg.Value { return compareSlow(test, eqLike, v, target) }
	switch ftype {
	case agg.TypeInt64:
		switch t := target.(type) {
		case int64:
			return monomorphic(func(doc *agg.Document, _ *Env) agg.Value {
				raw := getField(doc)
				v, ok := raw.(int64)
				if !ok {
					return slow(raw)
				}
				return test(intCompare(v, t))
			})
		case float64:
			return monomorphic(func(doc *agg.Document, _ *Env) agg.Value {
				raw := getField(doc)
				v, ok := raw.(int64)
				if !ok {
					return slow(raw)
				}
				return test(floatCompare(float64(v), t))
			})
		}
	case agg.TypeFloat64:
		f, ok := agg.AsFloat(target)
		if !ok {
			return nil
		}
		return monomorphic(func(doc *agg.Document, _ *Env) agg.Value {
			raw := getField(doc)
			v, ok := raw.(float64)
			if !ok {
				return slow(raw)
			}
			return test(floatCompare(v, f))
		})
	case agg.TypeString:
		s, ok := target.(string)
		if !ok {
			return nil
		}
		return monomorphic(func(doc *agg.Document, _ *Env) agg.Value {
			raw := getField(doc)
			v, ok := raw.(string)
			if !ok {
				return slow(raw)
			}
			return test(stringCompare(v, s))
		})
	}
	return nil
}

// compareSlow is the out-of-profile path of a specialized comparison; it
// mirrors the interpreter exactly.
func compareSlow(test func(int) bool, eqLike bool, v, target agg.Value) agg.Value {
	if agg.IsNullOrMissing(v) || target == nil {
		return nil
	}
	if !agg.SameRank(v, target) {
		return !eqLike
	}
	return test(agg.Compare(v, target))
}

func specializeArith(name string, getField func(*agg.Document) agg.Value, ftype agg.Type, target agg.Value) *Compiled {
	if ftype != agg.TypeInt64 && ftype != agg.TypeFloat64 {
		return nil
	}
	tf, ok := agg.AsFloat(target)
	if !ok {
		return nil
	}
	_, targetIsInt := target.(int64)
	intFast := ftype == agg.TypeInt64 && targetIsInt
	ti := int64(0)
	if targetIsInt {
		ti = target.(int64)
	}
	switch name {
	case "$add":
		if intFast {
			return monomorphic(func(doc *agg.Document, _ *Env) agg.Value {
				v, ok := getField(doc).(int64)
				if !ok {
					return nil
				}
				return v + ti
			})
		}
		return monomorphic(func(doc *agg.Document, _ *Env) agg.Value {
			v, ok := agg.AsFloat(getField(doc))
			if !ok {
				return nil
			}
			return v + tf
		})
	case "$subtract":
		if intFast {
			return monomorphic(func(doc *agg.Document, _ *Env) agg.Value {
				v, ok := getField(doc).(int64)
				if !ok {
					return nil
				}
				return v - ti
			})
		}
		return monomorphic(func(doc *agg.Document, _ *Env) agg.Value {
			v, ok := agg.AsFloat(getField(doc))
			if !ok {
				return nil
			}
			return v - tf
		})
	case "$multiply":
		if intFast {
			return monomorphic(func(doc *agg.Document, _ *Env) agg.Value {
				v, ok := getField(doc).(int64)
				if !ok {
					return nil
				}
				return v * ti
			})
		}
		return monomorphic(func(doc *agg.Document, _ *Env) agg.Value {
			v, ok := agg.AsFloat(getField(doc))
			if !ok {
				return nil
			}
			return v * tf
		})
	}
	return nil
}

func monomorphic(fn EvalFunc) *Compiled {
	return &Compiled{Specialized: true, fn: fn}
}

func intCompare(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func floatCompare(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func stringCompare(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
