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

// Package rowexec contains the per-stage IVM operators and the executor
// that drives them.
package rowexec

import (
	"github.com/dolthub/go-agg-engine/agg"
)

// Operator is one executable pipeline stage. Forwarding operators translate
// input deltas to output deltas; barrier operators absorb deltas into their
// state and materialize it at Snapshot.
type Operator interface {
	Name() string

	// OnAdd processes a row-became-visible delta and returns the deltas to
	// forward downstream. Barrier operators return nil.
	OnAdd(ctx *agg.Context, d agg.Delta) ([]agg.Delta, error)

	// OnRemove processes a row-became-invisible delta.
	OnRemove(ctx *agg.Context, d agg.Delta) ([]agg.Delta, error)

	// Snapshot materializes the operator's current output. Only barrier
	// operators implement it; forwarding operators are materialized by the
	// executor from its output ledger.
	Snapshot(ctx *agg.Context) ([]agg.Value, error)

	// Doc resolves the operator's output document for a row id flowing out
	// of it. Used by downstream operators.
	Doc(ctx *agg.Context, id agg.RowID) (*agg.Document, error)

	// ApplyBatch runs the operator over a materialized document list, the
	// execution mode for stages downstream of the first barrier.
	ApplyBatch(ctx *agg.Context, docs []agg.Value) ([]agg.Value, error)

	// Barrier reports whether the operator absorbs deltas.
	Barrier() bool

	CanIncrement() bool
	CanDecrement() bool

	// Reset drops all persistent operator state.
	Reset()
}

// docSource resolves the input document for a row id: the row store for the
// first stage, the upstream operator otherwise.
type docSource interface {
	Doc(ctx *agg.Context, id agg.RowID) (*agg.Document, error)
}

// storeSource adapts the row store as a docSource.
type storeSource struct {
	store agg.Store
}

func (s storeSource) Doc(_ *agg.Context, id agg.RowID) (*agg.Document, error) {
	return s.store.Get(id)
}

// docListSource serves a materialized document list under sequential ids,
// used for ephemeral barrier replays in the post-barrier suffix.
type docListSource struct {
	docs []*agg.Document
}

func (s docListSource) Doc(_ *agg.Context, id agg.RowID) (*agg.Document, error) {
	if int(id) >= len(s.docs) {
		return nil, agg.ErrInvariantViolation.New("doc list index out of range")
	}
	return s.docs[id], nil
}

// asDocuments narrows a materialized value list to documents.
func asDocuments(vals []agg.Value) ([]*agg.Document, error) {
	out := make([]*agg.Document, len(vals))
	for i, v := range vals {
		doc, ok := v.(*agg.Document)
		if !ok {
			return nil, agg.ErrInvariantViolation.New("non-document value in stage input")
		}
		out[i] = doc
	}
	return out, nil
}
