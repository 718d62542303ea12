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

// Package shim is the minimal non-streaming evaluator for pipelines the hot
// path cannot run: $function, $where, $merge, $out and advanced $lookup.
// Stages compose as whole-array closures; every invocation is counted in
// the fallback registry.
package shim

import (
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/dolthub/go-agg-engine/agg"
	"github.com/dolthub/go-agg-engine/agg/expression"
	"github.com/dolthub/go-agg-engine/agg/fallback"
	"github.com/dolthub/go-agg-engine/agg/plan"
	"github.com/dolthub/go-agg-engine/agg/rowexec"
)

// Run evaluates a raw pipeline over the full live document list and returns
// the materialized result.
func Run(ctx *agg.Context, docs []*agg.Document, pipeline []agg.Value, opts *agg.Options) ([]agg.Value, error) {
	opts = opts.Sanitize()
	sample := docs
	if len(sample) > 10 {
		sample = sample[:10]
	}

	cur := make([]agg.Value, len(docs))
	for i, d := range docs {
		cur[i] = d.DeepClone()
	}

	for _, raw := range pipeline {
		kind, arg, err := plan.StageKindOf(raw)
		if err != nil {
			return nil, err
		}
		switch kind {
		case plan.StageFunction:
			fallback.Record("unsupported-operator:$function")
			cur, err = applyFunction(ctx, arg, cur)
		case plan.StageWhere:
			fallback.Record("unsupported-operator:$where")
			cur, err = applyWhere(arg, cur)
		case plan.StageOut:
			fallback.Record("unsupported-operator:$out")
			cur, err = applyOut(arg, cur, opts)
		case plan.StageMerge:
			fallback.Record("unsupported-operator:$merge")
			cur, err = applyMerge(arg, cur, opts)
		case plan.StageLookup:
			if isAdvancedLookup(arg) {
				fallback.Record("advanced-lookup")
				cur, err = applyAdvancedLookup(ctx, arg, cur, opts)
				break
			}
			cur, err = applyHotStage(ctx, kind, arg, cur, opts, sample)
		case plan.StageMatch:
			cur, err = applyMatch(ctx, arg, cur, opts, sample)
		case plan.StageCount, plan.StageSortByCount:
			var stages []*plan.Stage
			stages, err = plan.DesugarStage(kind, arg, sample)
			if err != nil {
				break
			}
			for _, s := range stages {
				cur, err = rowexec.ApplyStageBatch(ctx, s, cur, opts, sample)
				if err != nil {
					break
				}
			}
		default:
			cur, err = applyHotStage(ctx, kind, arg, cur, opts, sample)
		}
		if err != nil {
			return nil, err
		}
	}
	return cur, nil
}

func applyHotStage(ctx *agg.Context, kind plan.StageKind, arg agg.Value, cur []agg.Value, opts *agg.Options, sample []*agg.Document) ([]agg.Value, error) {
	s, err := plan.CompileStage(kind, arg, sample)
	if err != nil {
		return nil, err
	}
	return rowexec.ApplyStageBatch(ctx, s, cur, opts, sample)
}

// applyMatch handles $where nested inside $match before delegating the rest
// of the query to the hot-path predicate.
func applyMatch(ctx *agg.Context, arg agg.Value, cur []agg.Value, opts *agg.Options, sample []*agg.Document) ([]agg.Value, error) {
	if doc, ok := agg.Normalize(arg).(*agg.Document); ok {
		if whereSpec, ok := doc.Get("$where"); ok {
			fallback.Record("unsupported-operator:$where")
			filtered, err := applyWhere(whereSpec, cur)
			if err != nil {
				return nil, err
			}
			rest := doc.Clone()
			rest.Delete("$where")
			if rest.Len() == 0 {
				return filtered, nil
			}
			return applyHotStage(ctx, plan.StageMatch, rest, filtered, opts, sample)
		}
	}
	return applyHotStage(ctx, plan.StageMatch, arg, cur, opts, sample)
}

func isAdvancedLookup(arg agg.Value) bool {
	doc, ok := agg.Normalize(arg).(*agg.Document)
	if !ok {
		return false
	}
	if _, ok := doc.Get("let"); ok {
		return true
	}
	_, ok = doc.Get("pipeline")
	return ok
}

// compileBody compiles a $function/$where body with expr-lang. The document
// fields are the expression's environment.
func compileBody(body string) (*vm.Program, error) {
	prog, err := expr.Compile(body, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, agg.ErrParse.New("cannot compile body: " + err.Error())
	}
	return prog, nil
}

// docEnv flattens a document into an expr-lang environment.
func docEnv(doc *agg.Document) map[string]interface{} {
	env := make(map[string]interface{}, doc.Len()+1)
	for _, k := range doc.Keys() {
		v, _ := doc.Get(k)
		env[k] = exprValue(v)
	}
	env["this"] = docToMap(doc)
	return env
}

func docToMap(doc *agg.Document) map[string]interface{} {
	out := make(map[string]interface{}, doc.Len())
	for _, k := range doc.Keys() {
		v, _ := doc.Get(k)
		out[k] = exprValue(v)
	}
	return out
}

func exprValue(v agg.Value) interface{} {
	switch t := v.(type) {
	case *agg.Document:
		return docToMap(t)
	case []agg.Value:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = exprValue(e)
		}
		return out
	default:
		return t
	}
}

// applyFunction evaluates {$function: {body, as}} per document, adding the
// result under the `as` field.
func applyFunction(_ *agg.Context, arg agg.Value, cur []agg.Value) ([]agg.Value, error) {
	doc, ok := agg.Normalize(arg).(*agg.Document)
	if !ok {
		return nil, agg.ErrParse.New("$function requires a document")
	}
	bodyV, ok := doc.Get("body")
	if !ok {
		return nil, agg.ErrParse.New("$function requires 'body'")
	}
	body, ok := bodyV.(string)
	if !ok {
		return nil, agg.ErrParse.New("$function body must be a string")
	}
	asV, ok := doc.Get("as")
	as, _ := asV.(string)
	if !ok || as == "" {
		return nil, agg.ErrParse.New("$function requires 'as'")
	}
	prog, err := compileBody(body)
	if err != nil {
		return nil, err
	}
	out := make([]agg.Value, len(cur))
	for i, v := range cur {
		d := v.(*agg.Document).DeepClone()
		res, runErr := expr.Run(prog, docEnv(d))
		if runErr != nil {
			d.Set(as, nil)
		} else {
			d.Set(as, agg.Normalize(res))
		}
		out[i] = d
	}
	return out, nil
}

// applyWhere filters by an expr-lang predicate over each document.
func applyWhere(arg agg.Value, cur []agg.Value) ([]agg.Value, error) {
	body, ok := agg.Normalize(arg).(string)
	if !ok {
		return nil, agg.ErrParse.New("$where requires a string predicate")
	}
	prog, err := compileBody(body)
	if err != nil {
		return nil, err
	}
	out := []agg.Value{}
	for _, v := range cur {
		d := v.(*agg.Document)
		res, runErr := expr.Run(prog, docEnv(d))
		if runErr != nil {
			continue
		}
		if agg.Truthy(agg.Normalize(res)) {
			out = append(out, d)
		}
	}
	return out, nil
}

// applyOut replaces the named collection with the pipeline result. The
// stage yields no documents to the caller.
func applyOut(arg agg.Value, cur []agg.Value, opts *agg.Options) ([]agg.Value, error) {
	name, ok := agg.Normalize(arg).(string)
	if !ok || name == "" {
		return nil, agg.ErrParse.New("$out requires a collection name")
	}
	if opts.Collections == nil {
		return nil, agg.ErrParse.New("$out requires a collection registry in options")
	}
	stored := make([]*agg.Document, len(cur))
	for i, v := range cur {
		stored[i] = v.(*agg.Document).DeepClone()
	}
	opts.Collections[name] = stored
	return []agg.Value{}, nil
}

// applyMerge upserts the pipeline result into the named collection by _id.
func applyMerge(arg agg.Value, cur []agg.Value, opts *agg.Options) ([]agg.Value, error) {
	var name string
	switch t := agg.Normalize(arg).(type) {
	case string:
		name = t
	case *agg.Document:
		intoV, ok := t.Get("into")
		if !ok {
			return nil, agg.ErrParse.New("$merge requires 'into'")
		}
		name, _ = intoV.(string)
	}
	if name == "" {
		return nil, agg.ErrParse.New("$merge requires a collection name")
	}
	if opts.Collections == nil {
		return nil, agg.ErrParse.New("$merge requires a collection registry in options")
	}
	target := opts.Collections[name]
	byID := map[string]int{}
	for i, d := range target {
		if id, ok := d.Get("_id"); ok {
			byID[agg.CanonicalKey(id)] = i
		}
	}
	for _, v := range cur {
		d := v.(*agg.Document).DeepClone()
		id, ok := d.Get("_id")
		if !ok {
			target = append(target, d)
			continue
		}
		if i, exists := byID[agg.CanonicalKey(id)]; exists {
			target[i] = d
		} else {
			byID[agg.CanonicalKey(id)] = len(target)
			target = append(target, d)
		}
	}
	opts.Collections[name] = target
	return []agg.Value{}, nil
}

// applyAdvancedLookup runs the inner pipeline once per outer row with its
// let-bindings in scope.
func applyAdvancedLookup(ctx *agg.Context, arg agg.Value, cur []agg.Value, opts *agg.Options) ([]agg.Value, error) {
	doc, ok := agg.Normalize(arg).(*agg.Document)
	if !ok {
		return nil, agg.ErrParse.New("$lookup requires a document")
	}
	fromV, _ := doc.Get("from")
	from, _ := fromV.(string)
	asV, _ := doc.Get("as")
	as, _ := asV.(string)
	if from == "" || as == "" {
		return nil, agg.ErrParse.New("$lookup requires 'from' and 'as'")
	}
	pipelineV, ok := doc.Get("pipeline")
	inner, _ := pipelineV.([]agg.Value)
	if !ok {
		return nil, agg.ErrParse.New("advanced $lookup requires 'pipeline'")
	}

	var letKeys []string
	var letExprs []expression.Expr
	if letV, ok := doc.Get("let"); ok {
		letDoc, ok := letV.(*agg.Document)
		if !ok {
			return nil, agg.ErrParse.New("$lookup 'let' must be a document")
		}
		for _, k := range letDoc.Keys() {
			spec, _ := letDoc.Get(k)
			e, err := expression.Parse(spec)
			if err != nil {
				return nil, err
			}
			letKeys = append(letKeys, k)
			letExprs = append(letExprs, e)
		}
	}

	foreign := opts.Collections[from]
	out := make([]agg.Value, len(cur))
	for i, v := range cur {
		d := v.(*agg.Document)
		vars := make(map[string]agg.Value, len(letKeys))
		env := &expression.Env{Doc: d, Root: d, Now: ctx.Now}
		for j, k := range letKeys {
			vars[k] = expression.Evaluate(letExprs[j], env)
		}
		subCtx := agg.NewContext(ctx.Context, len(inner))
		subCtx.Vars = vars
		joined, err := Run(subCtx, foreign, inner, opts)
		subCtx.Release()
		if err != nil {
			return nil, err
		}
		outDoc := d.DeepClone()
		outDoc.Set(as, joined)
		out[i] = outDoc
	}
	return out, nil
}
