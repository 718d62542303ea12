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

package agg

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
	"github.com/sirupsen/logrus"
)

var runCounter uint64

// MaxVirtualRows caps how many virtual rows a single expansion operator may
// allocate in one run.
const MaxVirtualRows = 1 << 24

var logger = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	if os.Getenv("DEBUG_IVM") == "1" {
		l.SetLevel(logrus.DebugLevel)
	} else {
		l.SetLevel(logrus.WarnLevel)
	}
	return l
}

// Logger returns the engine logger. DEBUG_IVM=1 raises it to debug level.
func Logger() *logrus.Logger { return logger }

// Context owns all per-run state: the run id, the pipeline-start timestamp
// behind $$NOW, and one scratch slot per stage. It is created when a run
// begins and destroyed when it ends; nothing in it survives into the next
// run.
type Context struct {
	context.Context

	RunID uint64
	// Now is captured once at run start and is identical for every $$NOW
	// evaluation in the run.
	Now time.Time

	// Vars carries let-bound variables for sub-pipeline evaluation
	// (advanced $lookup in the shim). Nil for ordinary runs.
	Vars map[string]Value

	logEntry *logrus.Entry
	scratch  []*StageScratch
	pool     *ScratchPool
}

// NewContext allocates a fresh run context with one scratch slot per stage.
func NewContext(parent context.Context, stages int) *Context {
	return newContext(parent, stages, defaultPool)
}

// NewContextWithPool is NewContext with a caller-owned scratch pool.
func NewContextWithPool(parent context.Context, stages int, pool *ScratchPool) *Context {
	return newContext(parent, stages, pool)
}

func newContext(parent context.Context, stages int, pool *ScratchPool) *Context {
	if parent == nil {
		parent = context.Background()
	}
	runID := atomic.AddUint64(&runCounter, 1)
	ctx := &Context{
		Context: parent,
		RunID:   runID,
		Now:     time.Now().UTC(),
		logEntry: logger.WithFields(logrus.Fields{
			"run":    runID,
			"corrID": uuid.NewString(),
		}),
		scratch: make([]*StageScratch, stages),
		pool:    pool,
	}
	return ctx
}

// Log returns the structured log entry for this run.
func (ctx *Context) Log() *logrus.Entry { return ctx.logEntry }

// Span starts an opentracing span as a child of any span on the parent
// context and returns a context carrying it.
func (ctx *Context) Span(name string) (opentracing.Span, *Context) {
	span, goCtx := opentracing.StartSpanFromContext(ctx.Context, name)
	child := *ctx
	child.Context = goCtx
	return span, &child
}

// Scratch returns stage i's scratch slot, allocating it on first use.
func (ctx *Context) Scratch(stage int) *StageScratch {
	if stage >= len(ctx.scratch) {
		grown := make([]*StageScratch, stage+1)
		copy(grown, ctx.scratch)
		ctx.scratch = grown
	}
	if ctx.scratch[stage] == nil {
		ctx.scratch[stage] = ctx.pool.get()
	}
	return ctx.scratch[stage]
}

// Release tears the context down, returning scratch buffers to the pool.
// Buffers are cleared here so no value can leak into a later run.
func (ctx *Context) Release() {
	for i, s := range ctx.scratch {
		if s != nil {
			ctx.pool.put(s)
			ctx.scratch[i] = nil
		}
	}
}

// StageScratch is one stage's per-run scratch: derived documents keyed by
// row id, virtual-row numbering and the parent map for expansion operators.
type StageScratch struct {
	docs        map[RowID]*Document
	virtualNext RowID
	children    map[RowID][]RowID
	ranks       map[RowID]int64
}

// PutDoc stores the derived document for a row id.
func (s *StageScratch) PutDoc(id RowID, doc *Document) { s.docs[id] = doc }

// Doc returns the derived document for a row id, if present.
func (s *StageScratch) Doc(id RowID) (*Document, bool) {
	d, ok := s.docs[id]
	return d, ok
}

// AllocVirtual assigns the next virtual row id for (parent, subIndex) and
// records parentage. It fails with ErrResourceExhausted past MaxVirtualRows.
func (s *StageScratch) AllocVirtual(parent RowID, sub int) (RowID, error) {
	if s.virtualNext >= VirtualBase+MaxVirtualRows {
		return 0, ErrResourceExhausted.New("virtual row budget")
	}
	id := s.virtualNext
	s.virtualNext++
	s.children[parent] = append(s.children[parent], id)
	s.ranks[id] = rankOf(parent)*1_000_000 + int64(sub)
	return id, nil
}

// Children returns the virtual rows emitted for a parent this run.
func (s *StageScratch) Children(parent RowID) []RowID { return s.children[parent] }

// DropChildren forgets the virtual rows for a parent.
func (s *StageScratch) DropChildren(parent RowID) { delete(s.children, parent) }

// Rank returns the pipeline-order rank of a row: real rows rank by id,
// virtual rows by (parent, subIndex) as assigned at allocation.
func (s *StageScratch) Rank(id RowID) int64 {
	if r, ok := s.ranks[id]; ok {
		return r
	}
	return rankOf(id)
}

func rankOf(id RowID) int64 { return int64(id) }

func (s *StageScratch) reset() {
	for k := range s.docs {
		delete(s.docs, k)
	}
	for k := range s.children {
		delete(s.children, k)
	}
	for k := range s.ranks {
		delete(s.ranks, k)
	}
	s.virtualNext = VirtualBase
}

// ScratchPool recycles stage scratch between runs. Buffers are cleared on
// checkout as well as on return, so pool reuse can never leak values across
// runs.
type ScratchPool struct {
	pool sync.Pool
}

var defaultPool = NewScratchPool()

// NewScratchPool returns an empty pool.
func NewScratchPool() *ScratchPool {
	return &ScratchPool{
		pool: sync.Pool{
			New: func() interface{} {
				return &StageScratch{
					docs:        make(map[RowID]*Document),
					children:    make(map[RowID][]RowID),
					ranks:       make(map[RowID]int64),
					virtualNext: VirtualBase,
				}
			},
		},
	}
}

func (p *ScratchPool) get() *StageScratch {
	s := p.pool.Get().(*StageScratch)
	s.reset()
	return s
}

func (p *ScratchPool) put(s *StageScratch) {
	s.reset()
	p.pool.Put(s)
}
