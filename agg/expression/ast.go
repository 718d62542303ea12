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

// Package expression parses aggregation expressions into an AST, compiles
// them into monomorphic evaluators with a type-vector-keyed cache, and
// provides the interpreter and batch evaluator fallbacks.
package expression

import (
	"time"

	"github.com/dolthub/go-agg-engine/agg"
)

// Env carries the variable bindings for one expression evaluation: the
// current document, $$ROOT, the iteration variables of $map/$filter/$reduce
// and the run-stable $$NOW.
type Env struct {
	Doc  *agg.Document
	Root *agg.Document
	Now  time.Time
	Vars map[string]agg.Value
}

// NewEnv binds an environment over a document. Root defaults to the
// document itself.
func NewEnv(doc *agg.Document, now time.Time) *Env {
	return &Env{Doc: doc, Root: doc, Now: now}
}

// WithVar returns a child environment with one extra variable bound.
func (e *Env) WithVar(name string, v agg.Value) *Env {
	child := *e
	child.Vars = make(map[string]agg.Value, len(e.Vars)+1)
	for k, val := range e.Vars {
		child.Vars[k] = val
	}
	child.Vars[name] = v
	return &child
}

// Expr is a parsed expression node. Eval never aborts a pipeline: runtime
// failures inside an expression surface as a nil (Null) value.
type Expr interface {
	Eval(env *Env) (agg.Value, error)
}

// Evaluate runs an expression, converting any panic out of the evaluation
// into a Null result per the engine's failure policy.
func Evaluate(e Expr, env *Env) (v agg.Value) {
	defer func() {
		if r := recover(); r != nil {
			v = nil
		}
	}()
	out, err := e.Eval(env)
	if err != nil {
		return nil
	}
	return out
}

// Literal is a constant value.
type Literal struct {
	V agg.Value
}

func (l *Literal) Eval(*Env) (agg.Value, error) { return l.V, nil }

// FieldRef resolves a dotted path against the current document.
type FieldRef struct {
	Path agg.Path
}

func (f *FieldRef) Eval(env *Env) (agg.Value, error) {
	if env.Doc == nil {
		return agg.Missing, nil
	}
	return f.Path.Resolve(env.Doc), nil
}

// SystemVar resolves $$ROOT, $$CURRENT, $$NOW, $$this, $$value and any
// let-bound variable, with an optional trailing path ($$this.a.b).
type SystemVar struct {
	Name string
	Rest []string
}

func (s *SystemVar) Eval(env *Env) (agg.Value, error) {
	var base agg.Value
	switch s.Name {
	case "ROOT":
		base = env.Root
	case "CURRENT":
		base = env.Doc
	case "NOW":
		base = env.Now
	default:
		if v, ok := env.Vars[s.Name]; ok {
			base = v
		} else {
			base = agg.Missing
		}
	}
	for _, seg := range s.Rest {
		doc, ok := base.(*agg.Document)
		if !ok {
			return agg.Missing, nil
		}
		v, ok := doc.Get(seg)
		if !ok {
			return agg.Missing, nil
		}
		base = v
	}
	return base, nil
}

// ArrayExpr is a literal array whose elements are expressions.
type ArrayExpr struct {
	Elems []Expr
}

func (a *ArrayExpr) Eval(env *Env) (agg.Value, error) {
	out := make([]agg.Value, len(a.Elems))
	for i, e := range a.Elems {
		v, err := e.Eval(env)
		if err != nil {
			return nil, err
		}
		if agg.IsMissing(v) {
			v = nil
		}
		out[i] = v
	}
	return out, nil
}

// DocExpr constructs a document; field order follows the spec order.
type DocExpr struct {
	Keys  []string
	Exprs []Expr
}

func (d *DocExpr) Eval(env *Env) (agg.Value, error) {
	out := agg.NewDocument()
	for i, k := range d.Keys {
		v, err := d.Exprs[i].Eval(env)
		if err != nil {
			return nil, err
		}
		if agg.IsMissing(v) {
			continue
		}
		out.Set(k, v)
	}
	return out, nil
}

// OpExpr applies a registered operator to its operands.
type OpExpr struct {
	Name string
	Args []Expr
	fn   builtinFn
}

func (o *OpExpr) Eval(env *Env) (agg.Value, error) {
	return o.fn(env, o.Args)
}

// CondExpr is $cond{if,then,else}.
type CondExpr struct {
	If, Then, Else Expr
}

func (c *CondExpr) Eval(env *Env) (agg.Value, error) {
	cond, err := c.If.Eval(env)
	if err != nil {
		return nil, err
	}
	if agg.Truthy(cond) {
		return c.Then.Eval(env)
	}
	if c.Else == nil {
		return nil, nil
	}
	return c.Else.Eval(env)
}

// SwitchBranch is one case of a $switch.
type SwitchBranch struct {
	Case Expr
	Then Expr
}

// SwitchExpr is $switch{branches,default}: first truthy case wins; no
// matching branch and no default yields Null.
type SwitchExpr struct {
	Branches []SwitchBranch
	Default  Expr
}

func (s *SwitchExpr) Eval(env *Env) (agg.Value, error) {
	for _, b := range s.Branches {
		cond, err := b.Case.Eval(env)
		if err != nil {
			return nil, err
		}
		if agg.Truthy(cond) {
			return b.Then.Eval(env)
		}
	}
	if s.Default == nil {
		return nil, nil
	}
	return s.Default.Eval(env)
}

// Walk visits e and every subexpression in depth-first order.
func Walk(e Expr, visit func(Expr)) {
	visit(e)
	switch t := e.(type) {
	case *ArrayExpr:
		for _, c := range t.Elems {
			Walk(c, visit)
		}
	case *DocExpr:
		for _, c := range t.Exprs {
			Walk(c, visit)
		}
	case *OpExpr:
		for _, c := range t.Args {
			Walk(c, visit)
		}
	case *CondExpr:
		Walk(t.If, visit)
		Walk(t.Then, visit)
		if t.Else != nil {
			Walk(t.Else, visit)
		}
	case *SwitchExpr:
		for _, b := range t.Branches {
			Walk(b.Case, visit)
			Walk(b.Then, visit)
		}
		if t.Default != nil {
			Walk(t.Default, visit)
		}
	}
}

// FieldRefs returns the distinct field paths referenced by e, in first-seen
// order.
func FieldRefs(e Expr) []agg.Path {
	var out []agg.Path
	seen := map[string]bool{}
	Walk(e, func(n Expr) {
		if f, ok := n.(*FieldRef); ok && !seen[f.Path.String()] {
			seen[f.Path.String()] = true
			out = append(out, f.Path)
		}
	})
	return out
}
