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

// Package memory provides the in-memory row store and the streaming
// collection handle built on top of it.
package memory

import (
	"fmt"

	"github.com/dolthub/go-agg-engine/agg"
	"github.com/dolthub/go-agg-engine/internal/bitset"
)

// RowStore is an append-only arena of documents keyed by dense row ids with
// a live-set bitset. Documents are immutable once ingested; an update is a
// remove plus an add.
type RowStore struct {
	docs []*agg.Document
	live *bitset.Vector
}

// NewRowStore returns an empty store.
func NewRowStore() *RowStore {
	return &RowStore{live: bitset.NewVector(0)}
}

// AddDocument ingests a document and returns its row id. Mutable
// substructure is cloned so later host mutation cannot reach the arena;
// scalars are shared.
func (s *RowStore) AddDocument(doc *agg.Document) agg.RowID {
	id := agg.RowID(len(s.docs))
	s.docs = append(s.docs, doc.DeepClone())
	s.live.Set(int(id))
	return id
}

// RemoveRow clears the live bit for id. Removing an already-dead id is a
// no-op; indices never shift.
func (s *RowStore) RemoveRow(id agg.RowID) error {
	if int(id) >= len(s.docs) {
		return agg.ErrInvariantViolation.New(fmt.Sprintf("remove of unallocated row %d", id))
	}
	s.live.Clear(int(id))
	return nil
}

// Get returns the ingested document for id.
func (s *RowStore) Get(id agg.RowID) (*agg.Document, error) {
	if int(id) >= len(s.docs) {
		return nil, agg.ErrInvariantViolation.New(fmt.Sprintf("unknown row id %d", id))
	}
	return s.docs[id], nil
}

// IsLive reports whether id is currently visible.
func (s *RowStore) IsLive(id agg.RowID) bool {
	return s.live.Get(int(id))
}

// Live returns the live-set bitset.
func (s *RowStore) Live() *bitset.Vector { return s.live }

// LiveIDs returns the visible row ids in ascending order.
func (s *RowStore) LiveIDs() []agg.RowID {
	bits := s.live.SetBits()
	out := make([]agg.RowID, len(bits))
	for i, b := range bits {
		out[i] = agg.RowID(b)
	}
	return out
}

// Size returns the number of live rows.
func (s *RowStore) Size() int { return s.live.Popcount() }

// Allocated returns the total number of row ids ever assigned.
func (s *RowStore) Allocated() int { return len(s.docs) }
