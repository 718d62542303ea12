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

package memory

import (
	"context"

	"github.com/google/uuid"

	"github.com/dolthub/go-agg-engine/agg"
	"github.com/dolthub/go-agg-engine/agg/fallback"
	"github.com/dolthub/go-agg-engine/agg/plan"
	"github.com/dolthub/go-agg-engine/agg/rowexec"
	"github.com/dolthub/go-agg-engine/agg/shim"
)

// StreamingCollection is the public handle for push updates and
// materialization. Compiled plans and their operator state are cached per
// pipeline and maintained by deltas; every run gets a fresh context.
//
// A collection is not safe for concurrent mutation; independent collections
// may be driven from separate goroutines.
type StreamingCollection struct {
	ID    string
	store *RowStore
	opts  *agg.Options

	plans   map[uint64]*planInstance
	history []agg.Delta

	destroyed bool
}

type planInstance struct {
	pipeline []agg.Value
	plan     *plan.Plan
	exec     *rowexec.Executor
	applied  int // prefix of history already driven through exec
	result   []agg.Value
	fresh    bool
}

// NewStreamingCollection ingests the initial documents.
func NewStreamingCollection(docs []*agg.Document, opts *agg.Options) *StreamingCollection {
	c := &StreamingCollection{
		ID:    uuid.NewString(),
		store: NewRowStore(),
		opts:  opts.Sanitize(),
		plans: map[uint64]*planInstance{},
	}
	for _, d := range docs {
		c.store.AddDocument(d)
	}
	return c
}

// Store exposes the underlying row store, read-only during runs.
func (c *StreamingCollection) Store() *RowStore { return c.store }

// Add ingests one document and returns its row id.
func (c *StreamingCollection) Add(doc *agg.Document) (agg.RowID, error) {
	if c.destroyed {
		return 0, agg.ErrInvariantViolation.New("add on destroyed collection")
	}
	id := c.store.AddDocument(doc)
	c.history = append(c.history, agg.Add(id))
	c.invalidate()
	return id, nil
}

// AddBulk ingests documents in array order.
func (c *StreamingCollection) AddBulk(docs []*agg.Document) ([]agg.RowID, error) {
	ids := make([]agg.RowID, 0, len(docs))
	for _, d := range docs {
		id, err := c.Add(d)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Remove clears the row's live bit and queues the removal delta. Removing a
// dead row is a no-op.
func (c *StreamingCollection) Remove(id agg.RowID) error {
	if c.destroyed {
		return agg.ErrInvariantViolation.New("remove on destroyed collection")
	}
	if !c.store.IsLive(id) {
		return c.store.RemoveRow(id) // validates allocation, no-op otherwise
	}
	if err := c.store.RemoveRow(id); err != nil {
		return err
	}
	c.history = append(c.history, agg.Remove(id))
	c.invalidate()
	return nil
}

func (c *StreamingCollection) invalidate() {
	for _, inst := range c.plans {
		inst.fresh = false
	}
}

// Stream runs the pipeline incrementally: the compiled plan and operator
// state are reused, pending deltas are driven through the operators, and
// only barrier stages re-materialize.
func (c *StreamingCollection) Stream(pipeline []agg.Value) ([]agg.Value, error) {
	if c.destroyed {
		return nil, agg.ErrInvariantViolation.New("stream on destroyed collection")
	}
	inst, err := c.instance(pipeline)
	if err != nil {
		return nil, err
	}

	if inst.plan.Route == plan.RouteShim {
		// The shim records per-stage reasons itself; plan-level routing
		// causes are counted here.
		for _, reason := range inst.plan.ShimReasons {
			if reason == "megamorphic-expr" {
				fallback.Record(reason)
			}
		}
		ctx := agg.NewContext(context.Background(), len(pipeline))
		defer ctx.Release()
		result, err := shim.Run(ctx, c.liveDocs(), pipeline, c.opts)
		if err != nil {
			return nil, err
		}
		inst.result, inst.fresh, inst.applied = result, true, len(c.history)
		return result, nil
	}

	ctx := inst.exec.NewRunContext(context.Background())
	defer ctx.Release()

	switch {
	case inst.exec.ReplayPerRun() || inst.exec.NeedsRebuild():
		if err := inst.exec.Rebuild(ctx); err != nil {
			return nil, err
		}
	case !inst.exec.Primed():
		if err := inst.exec.Prime(ctx); err != nil {
			return nil, err
		}
	default:
		for _, d := range c.history[inst.applied:] {
			if err := inst.exec.Apply(ctx, d); err != nil {
				return nil, err
			}
		}
	}
	inst.applied = len(c.history)

	result, err := inst.exec.Materialize(ctx)
	if err != nil {
		return nil, err
	}
	inst.result, inst.fresh = result, true
	ctx.Log().WithField("collection", c.ID).
		WithField("rows", c.store.Size()).
		WithField("out", len(result)).
		Debug("stream run complete")
	return result, nil
}

// GetStreamingResult returns the last materialized result, recomputing only
// if deltas arrived since.
func (c *StreamingCollection) GetStreamingResult(pipeline []agg.Value) ([]agg.Value, error) {
	if inst, ok := c.plans[planHash(pipeline)]; ok && inst.fresh {
		return inst.result, nil
	}
	return c.Stream(pipeline)
}

// Destroy releases plan state. The collection is unusable afterwards.
func (c *StreamingCollection) Destroy() {
	c.plans = nil
	c.history = nil
	c.destroyed = true
}

func planHash(pipeline []agg.Value) uint64 {
	return plan.HashPipeline(pipeline)
}

func (c *StreamingCollection) instance(pipeline []agg.Value) (*planInstance, error) {
	hash := planHash(pipeline)
	if inst, ok := c.plans[hash]; ok {
		return inst, nil
	}
	sample := c.sampleDocs(10)
	p, err := plan.Build(pipeline, sample, c.opts)
	if err != nil {
		return nil, err
	}
	inst := &planInstance{pipeline: pipeline, plan: p}
	if p.Route == plan.RouteHotPath {
		exec, err := rowexec.NewExecutor(c.store, p, c.opts, sample)
		if err != nil {
			return nil, err
		}
		inst.exec = exec
	}
	c.plans[hash] = inst
	return inst, nil
}

func (c *StreamingCollection) sampleDocs(n int) []*agg.Document {
	out := make([]*agg.Document, 0, n)
	for _, id := range c.store.LiveIDs() {
		if len(out) == n {
			break
		}
		doc, err := c.store.Get(id)
		if err == nil {
			out = append(out, doc)
		}
	}
	return out
}

func (c *StreamingCollection) liveDocs() []*agg.Document {
	ids := c.store.LiveIDs()
	out := make([]*agg.Document, 0, len(ids))
	for _, id := range ids {
		doc, err := c.store.Get(id)
		if err == nil {
			out = append(out, doc)
		}
	}
	return out
}
