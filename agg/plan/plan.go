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

package plan

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/dolthub/go-agg-engine/agg"
	"github.com/dolthub/go-agg-engine/agg/expression"
)

// Route is the planner's execution decision.
type Route int

const (
	RouteHotPath Route = iota
	RouteShim
)

func (r Route) String() string {
	if r == RouteShim {
		return "compatibilityShim"
	}
	return "hotPath"
}

// exprComplexityThreshold routes a megamorphic $expr to the shim once its
// AST outgrows cheap re-interpretation.
const exprComplexityThreshold = 32

// Accumulator operators $group accepts.
var groupAccumulators = map[string]bool{
	"$sum": true, "$avg": true, "$min": true, "$max": true,
	"$first": true, "$last": true, "$push": true, "$addToSet": true,
	"$count": true, "$mergeObjects": true,
}

// Plan is a compiled pipeline: immutable after Build; all per-run mutation
// lives in the executor context.
type Plan struct {
	Stages      []*Stage
	Groups      []FusionGroup
	Route       Route
	ShimReasons []string
	// Hash identifies the pipeline for plan caching.
	Hash uint64
}

// Build validates and compiles a pipeline against a sample of input
// documents. A malformed pipeline returns ErrParse and no partial plan.
func Build(pipeline []agg.Value, sample []*agg.Document, opts *agg.Options) (*Plan, error) {
	opts = opts.Sanitize()
	p := &Plan{Hash: hashPipeline(pipeline)}
	for _, raw := range pipeline {
		kind, arg, err := stageKindOf(agg.Normalize(raw))
		if err != nil {
			return nil, err
		}
		if !hotKinds[kind] && !shimKinds[kind] {
			return nil, agg.ErrUnsupportedOperator.New(string(kind))
		}
		if op, found := nestedShimOperator(arg); found {
			// $function/$where buried inside the stage spec: the shim
			// evaluates the raw pipeline, so detailed compilation is skipped.
			p.Route = RouteShim
			p.ShimReasons = append(p.ShimReasons, "unsupported-operator:"+op)
			p.Stages = append(p.Stages, &Stage{Kind: kind, Spec: arg})
			continue
		}
		if kind == StageCount || kind == StageSortByCount {
			desugared, err := desugar(kind, arg, sample)
			if err != nil {
				return nil, err
			}
			p.Stages = append(p.Stages, desugared...)
			continue
		}
		stage, err := buildStage(kind, arg, sample)
		if err != nil {
			return nil, err
		}
		if shimKinds[kind] {
			p.Route = RouteShim
			p.ShimReasons = append(p.ShimReasons, "unsupported-operator:"+string(kind))
		}
		if kind == StageLookup && lookupIsAdvanced(arg) {
			p.Route = RouteShim
			p.ShimReasons = append(p.ShimReasons, "advanced-lookup")
		}
		if kind == StageMatch && stage.MatchInfo != nil && stage.MatchInfo.HasExpr {
			if megamorphicExpr(stage.MatchInfo.ExprAST) {
				p.Route = RouteShim
				p.ShimReasons = append(p.ShimReasons, "megamorphic-expr")
			}
		}
		p.Stages = append(p.Stages, stage)
	}
	p.Groups = fuse(p.Stages, opts.Fusion)
	return p, nil
}

func megamorphicExpr(ast expression.Expr) bool {
	if ast == nil {
		return false
	}
	nodes := 0
	expression.Walk(ast, func(expression.Expr) { nodes++ })
	return nodes > exprComplexityThreshold &&
		expression.DefaultCompiler.Megamorphic(expression.HashAST(ast))
}

// CompileStage compiles a single stage outside full pipeline planning, for
// the compatibility shim and the free stage functions.
func CompileStage(kind StageKind, arg agg.Value, sample []*agg.Document) (*Stage, error) {
	if kind == StageCount || kind == StageSortByCount {
		return nil, agg.ErrParse.New(string(kind) + " must be desugared first")
	}
	if !hotKinds[kind] {
		return nil, agg.ErrUnsupportedOperator.New(string(kind))
	}
	return buildStage(kind, arg, sample)
}

// DesugarStage exposes the $count/$sortByCount rewrite.
func DesugarStage(kind StageKind, arg agg.Value, sample []*agg.Document) ([]*Stage, error) {
	return desugar(kind, arg, sample)
}

// StageKindOf splits a raw pipeline stage into kind and argument.
func StageKindOf(spec agg.Value) (StageKind, agg.Value, error) {
	return stageKindOf(agg.Normalize(spec))
}

// nestedShimOperator scans a stage spec for $function/$where buried below
// the stage level.
func nestedShimOperator(spec agg.Value) (string, bool) {
	switch t := spec.(type) {
	case *agg.Document:
		for _, k := range t.Keys() {
			if k == "$function" || k == "$where" {
				return k, true
			}
			v, _ := t.Get(k)
			if op, found := nestedShimOperator(v); found {
				return op, true
			}
		}
	case []agg.Value:
		for _, e := range t {
			if op, found := nestedShimOperator(e); found {
				return op, true
			}
		}
	}
	return "", false
}

// desugar rewrites $count and $sortByCount into their group-based forms.
func desugar(kind StageKind, arg agg.Value, sample []*agg.Document) ([]*Stage, error) {
	switch kind {
	case StageCount:
		name, ok := arg.(string)
		if !ok || name == "" {
			return nil, agg.ErrParse.New("$count requires a non-empty field name")
		}
		group, err := buildStage(StageGroup, agg.Normalize(agg.D{
			{Key: "_id", Val: nil},
			{Key: name, Val: agg.D{{Key: "$sum", Val: int64(1)}}},
		}), sample)
		if err != nil {
			return nil, err
		}
		project, err := buildStage(StageProject, agg.Normalize(agg.D{
			{Key: name, Val: int64(1)},
			{Key: "_id", Val: int64(0)},
		}), sample)
		if err != nil {
			return nil, err
		}
		return []*Stage{group, project}, nil
	case StageSortByCount:
		group, err := buildStage(StageGroup, agg.Normalize(agg.D{
			{Key: "_id", Val: arg},
			{Key: "count", Val: agg.D{{Key: "$sum", Val: int64(1)}}},
		}), sample)
		if err != nil {
			return nil, err
		}
		sortStage, err := buildStage(StageSort, agg.Normalize(agg.D{
			{Key: "count", Val: int64(-1)},
		}), sample)
		if err != nil {
			return nil, err
		}
		return []*Stage{group, sortStage}, nil
	}
	return nil, agg.ErrInvariantViolation.New("desugar of non-sugar stage")
}

func lookupIsAdvanced(arg agg.Value) bool {
	doc, ok := arg.(*agg.Document)
	if !ok {
		return false
	}
	if _, ok := doc.Get("let"); ok {
		return true
	}
	_, ok = doc.Get("pipeline")
	return ok
}

func buildStage(kind StageKind, arg agg.Value, sample []*agg.Document) (*Stage, error) {
	s := &Stage{Kind: kind, Spec: arg, CanIncrement: true, CanDecrement: true}
	switch kind {
	case StageMatch:
		pred, info, err := expression.ParseMatch(arg)
		if err != nil {
			return nil, err
		}
		s.Predicate = pred
		s.MatchInfo = info
		if doc, ok := arg.(*agg.Document); ok {
			s.Fields = append(s.Fields, doc.Keys()...)
		}
	case StageProject, StageAddFields, StageSet:
		doc, ok := arg.(*agg.Document)
		if !ok || doc.Len() == 0 {
			return nil, agg.ErrParse.New(string(kind) + " requires a non-empty document")
		}
		s.Exprs = map[string]expression.Expr{}
		for _, k := range doc.Keys() {
			v, _ := doc.Get(k)
			s.Fields = append(s.Fields, k)
			if isProjectionFlag(v) {
				continue
			}
			e, err := expression.Parse(v)
			if err != nil {
				return nil, err
			}
			s.Exprs[k] = e
		}
	case StageUnset:
		switch t := arg.(type) {
		case string:
			s.Fields = []string{t}
		case []agg.Value:
			for _, f := range t {
				fs, ok := f.(string)
				if !ok {
					return nil, agg.ErrParse.New("$unset takes field path strings")
				}
				s.Fields = append(s.Fields, fs)
			}
		default:
			return nil, agg.ErrParse.New("$unset takes a string or array of strings")
		}
	case StageGroup:
		doc, ok := arg.(*agg.Document)
		if !ok {
			return nil, agg.ErrParse.New("$group requires a document")
		}
		idSpec, ok := doc.Get("_id")
		if !ok {
			return nil, agg.ErrParse.New("$group requires _id")
		}
		idExpr, err := expression.Parse(idSpec)
		if err != nil {
			return nil, err
		}
		s.Exprs = map[string]expression.Expr{"_id": idExpr}
		s.AccOps = map[string]string{}
		for _, k := range doc.Keys() {
			if k == "_id" {
				continue
			}
			s.Fields = append(s.Fields, k)
			accDoc, ok := mustDoc(doc, k)
			if !ok || accDoc.Len() != 1 {
				return nil, agg.ErrParse.New("$group accumulator for " + k + " must be a single-operator document")
			}
			op := accDoc.Keys()[0]
			if !groupAccumulators[op] {
				return nil, agg.ErrUnsupportedOperator.New(op)
			}
			argSpec, _ := accDoc.Get(op)
			argExpr, err := expression.Parse(argSpec)
			if err != nil {
				return nil, err
			}
			s.AccOps[k] = op
			s.Exprs[k] = argExpr
		}
	case StageSort:
		doc, ok := arg.(*agg.Document)
		if !ok || doc.Len() == 0 {
			return nil, agg.ErrParse.New("$sort requires a non-empty document")
		}
		for _, k := range doc.Keys() {
			v, _ := doc.Get(k)
			dir, ok := v.(int64)
			if !ok || (dir != 1 && dir != -1) {
				return nil, agg.ErrParse.New("$sort direction for " + k + " must be 1 or -1")
			}
			s.Fields = append(s.Fields, k)
		}
	case StageLimit, StageSkip:
		n, ok := arg.(int64)
		if !ok || n < 0 {
			return nil, agg.ErrParse.New(string(kind) + " requires a non-negative integer")
		}
		if kind == StageLimit {
			s.CanDecrement = false
		}
	case StageUnwind:
		switch t := arg.(type) {
		case string:
			if !strings.HasPrefix(t, "$") {
				return nil, agg.ErrParse.New("$unwind path must start with $")
			}
			s.Fields = []string{strings.TrimPrefix(t, "$")}
		case *agg.Document:
			pathV, ok := t.Get("path")
			if !ok {
				return nil, agg.ErrParse.New("$unwind requires 'path'")
			}
			pathS, ok := pathV.(string)
			if !ok || !strings.HasPrefix(pathS, "$") {
				return nil, agg.ErrParse.New("$unwind path must start with $")
			}
			s.Fields = []string{strings.TrimPrefix(pathS, "$")}
		default:
			return nil, agg.ErrParse.New("$unwind takes a path or a document")
		}
	case StageLookup:
		doc, ok := arg.(*agg.Document)
		if !ok {
			return nil, agg.ErrParse.New("$lookup requires a document")
		}
		if !lookupIsAdvanced(arg) {
			for _, req := range []string{"from", "localField", "foreignField", "as"} {
				if _, ok := doc.Get(req); !ok {
					return nil, agg.ErrParse.New("$lookup requires '" + req + "'")
				}
			}
		}
		if asV, ok := doc.Get("as"); ok {
			if asS, ok := asV.(string); ok {
				s.Fields = []string{asS}
			}
		}
	case StageFunction, StageWhere, StageMerge, StageOut:
		// validated by the shim
	}
	return s, nil
}

// isProjectionFlag reports whether a projection value is an include/exclude
// marker rather than an expression.
func isProjectionFlag(v agg.Value) bool {
	switch t := v.(type) {
	case bool:
		return true
	case int64:
		return t == 0 || t == 1
	case float64:
		return t == 0 || t == 1
	default:
		return false
	}
}

func mustDoc(doc *agg.Document, key string) (*agg.Document, bool) {
	v, ok := doc.Get(key)
	if !ok {
		return nil, false
	}
	d, ok := v.(*agg.Document)
	return d, ok
}

// HashPipeline returns the cache key for a raw pipeline.
func HashPipeline(pipeline []agg.Value) uint64 {
	return hashPipeline(pipeline)
}

func hashPipeline(pipeline []agg.Value) uint64 {
	var b strings.Builder
	for _, s := range pipeline {
		b.WriteString(agg.CanonicalKey(agg.Normalize(s)))
		b.WriteByte('|')
	}
	return xxhash.Sum64String(b.String())
}

// Describe renders the plan for --explain output and debug logs.
func (p *Plan) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "route: %s\n", p.Route)
	for _, r := range p.ShimReasons {
		fmt.Fprintf(&b, "  reason: %s\n", r)
	}
	for i, s := range p.Stages {
		role := "forward"
		if s.Barrier() {
			role = "barrier"
		}
		fmt.Fprintf(&b, "stage %d: %s (%s, cost %d)\n", i, s.Kind, role, s.Cost())
	}
	for _, g := range p.Groups {
		if g.End-g.Start > 1 || g.TopK {
			fmt.Fprintf(&b, "fused: stages %d..%d", g.Start, g.End-1)
			if g.TopK {
				fmt.Fprintf(&b, " (top-k, k=%d)", g.K)
			}
			b.WriteByte('\n')
		}
	}
	return b.String()
}
