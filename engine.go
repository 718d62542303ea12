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

// Package aggle is an in-process aggregation engine that evaluates
// MongoDB-style pipelines over in-memory document collections, maintaining
// results incrementally under add/remove deltas.
package aggle

import (
	"context"

	"github.com/dolthub/go-agg-engine/agg"
	"github.com/dolthub/go-agg-engine/agg/expression"
	"github.com/dolthub/go-agg-engine/agg/plan"
	"github.com/dolthub/go-agg-engine/agg/rowexec"
	"github.com/dolthub/go-agg-engine/memory"
)

// Options re-exports the engine options.
type Options = agg.Options

// NewStreamingCollection ingests the initial documents into a fresh
// streaming collection.
func NewStreamingCollection(docs []interface{}, opts *Options) (*memory.StreamingCollection, error) {
	converted, err := toDocuments(docs)
	if err != nil {
		return nil, err
	}
	return memory.NewStreamingCollection(converted, opts), nil
}

// Aggregate evaluates a pipeline over the documents and returns the
// materialized result. It is equivalent to creating a streaming collection,
// streaming once and destroying it.
func Aggregate(docs []interface{}, pipeline []interface{}, opts *Options) ([]agg.Value, error) {
	coll, err := NewStreamingCollection(docs, opts)
	if err != nil {
		return nil, err
	}
	defer coll.Destroy()
	return coll.Stream(normalizePipeline(pipeline))
}

// Count returns the number of documents matching the query.
func Count(docs []interface{}, query interface{}) (int, error) {
	out, err := Aggregate(docs, []interface{}{agg.D{{Key: "$match", Val: query}}}, nil)
	if err != nil {
		return 0, err
	}
	return len(out), nil
}

// Expression evaluates a single aggregation expression against a document.
// Runtime failures yield nil per the engine's expression failure policy.
func Expression(doc interface{}, spec interface{}) (agg.Value, error) {
	d, err := toDocument(doc)
	if err != nil {
		return nil, err
	}
	e, err := expression.Parse(agg.Normalize(spec))
	if err != nil {
		return nil, err
	}
	ctx := agg.NewContext(context.Background(), 0)
	defer ctx.Release()
	env := expression.NewEnv(d, ctx.Now)
	return expression.Evaluate(e, env), nil
}

// Match applies a single $match stage, exposed for unit testing.
func Match(docs []interface{}, query interface{}) ([]agg.Value, error) {
	return applyStage(plan.StageMatch, query, docs, nil)
}

// Project applies a single $project stage.
func Project(docs []interface{}, spec interface{}) ([]agg.Value, error) {
	return applyStage(plan.StageProject, spec, docs, nil)
}

// AddFields applies a single $addFields stage.
func AddFields(docs []interface{}, spec interface{}) ([]agg.Value, error) {
	return applyStage(plan.StageAddFields, spec, docs, nil)
}

// Unset applies a single $unset stage.
func Unset(docs []interface{}, spec interface{}) ([]agg.Value, error) {
	return applyStage(plan.StageUnset, spec, docs, nil)
}

// Group applies a single $group stage.
func Group(docs []interface{}, spec interface{}) ([]agg.Value, error) {
	return applyStage(plan.StageGroup, spec, docs, nil)
}

// Sort applies a single $sort stage.
func Sort(docs []interface{}, spec interface{}) ([]agg.Value, error) {
	return applyStage(plan.StageSort, spec, docs, nil)
}

// Limit applies a single $limit stage.
func Limit(docs []interface{}, n int64) ([]agg.Value, error) {
	return applyStage(plan.StageLimit, n, docs, nil)
}

// Skip applies a single $skip stage.
func Skip(docs []interface{}, n int64) ([]agg.Value, error) {
	return applyStage(plan.StageSkip, n, docs, nil)
}

// Unwind applies a single $unwind stage.
func Unwind(docs []interface{}, spec interface{}) ([]agg.Value, error) {
	return applyStage(plan.StageUnwind, spec, docs, nil)
}

// Lookup applies a single simple $lookup stage; the foreign collection is
// resolved from opts.Collections.
func Lookup(docs []interface{}, spec interface{}, opts *Options) ([]agg.Value, error) {
	return applyStage(plan.StageLookup, spec, docs, opts)
}

func applyStage(kind plan.StageKind, spec interface{}, docs []interface{}, opts *Options) ([]agg.Value, error) {
	converted, err := toDocuments(docs)
	if err != nil {
		return nil, err
	}
	sample := converted
	if len(sample) > 10 {
		sample = sample[:10]
	}
	stage, err := plan.CompileStage(kind, agg.Normalize(spec), sample)
	if err != nil {
		return nil, err
	}
	ctx := agg.NewContext(context.Background(), 1)
	defer ctx.Release()
	vals := make([]agg.Value, len(converted))
	for i, d := range converted {
		vals[i] = d.DeepClone()
	}
	return rowexec.ApplyStageBatch(ctx, stage, vals, opts, sample)
}

func normalizePipeline(pipeline []interface{}) []agg.Value {
	out := make([]agg.Value, len(pipeline))
	for i, s := range pipeline {
		out[i] = agg.Normalize(s)
	}
	return out
}

func toDocuments(docs []interface{}) ([]*agg.Document, error) {
	out := make([]*agg.Document, len(docs))
	for i, d := range docs {
		doc, err := toDocument(d)
		if err != nil {
			return nil, err
		}
		out[i] = doc
	}
	return out, nil
}

func toDocument(v interface{}) (*agg.Document, error) {
	doc, ok := agg.Normalize(v).(*agg.Document)
	if !ok {
		return nil, agg.ErrParse.New("input is not a document")
	}
	return doc, nil
}
