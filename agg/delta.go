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

import "github.com/dolthub/go-agg-engine/internal/bitset"

// RowID is a dense row identifier. Real rows are assigned monotonically on
// ingest and never reused; virtual rows produced by expansion operators live
// in the high half of the space.
type RowID uint32

// VirtualBase is the first virtual row id. Ids at or above it are synthetic
// per-run identities and must never survive a run.
const VirtualBase RowID = 1 << 31

// IsVirtual reports whether id names a virtual row.
func (id RowID) IsVirtual() bool { return id >= VirtualBase }

// Delta signals a visibility change for one row: +1 became visible,
// -1 became invisible.
type Delta struct {
	Row  RowID
	Sign int
}

// Add returns a +1 delta for id.
func Add(id RowID) Delta { return Delta{Row: id, Sign: +1} }

// Remove returns a -1 delta for id.
func Remove(id RowID) Delta { return Delta{Row: id, Sign: -1} }

// Store is the read surface operators use during a run. The row store is
// read-only while a run is in flight; mutation happens between runs through
// the streaming collection.
type Store interface {
	// Get returns the ingested document for a real row id. Asking for an id
	// that was never allocated is an ErrInvariantViolation.
	Get(id RowID) (*Document, error)
	// Live returns the live-set bitset over all assigned row ids.
	Live() *bitset.Vector
	// Size returns the number of live rows.
	Size() int
}
