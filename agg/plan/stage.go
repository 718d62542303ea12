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

// Package plan validates pipelines, compiles them into stage descriptors,
// decides hot-path versus shim routing and fuses linear stage runs.
package plan

import (
	"fmt"
	"strings"

	"github.com/dolthub/go-agg-engine/agg"
	"github.com/dolthub/go-agg-engine/agg/expression"
)

// StageKind names a pipeline stage.
type StageKind string

const (
	StageMatch       StageKind = "$match"
	StageProject     StageKind = "$project"
	StageAddFields   StageKind = "$addFields"
	StageSet         StageKind = "$set"
	StageUnset       StageKind = "$unset"
	StageGroup       StageKind = "$group"
	StageSort        StageKind = "$sort"
	StageLimit       StageKind = "$limit"
	StageSkip        StageKind = "$skip"
	StageUnwind      StageKind = "$unwind"
	StageLookup      StageKind = "$lookup"
	StageCount       StageKind = "$count"
	StageSortByCount StageKind = "$sortByCount"

	// shim-only stages
	StageFunction StageKind = "$function"
	StageWhere    StageKind = "$where"
	StageMerge    StageKind = "$merge"
	StageOut      StageKind = "$out"
)

// hotKinds are the stages the streaming engine executes natively.
var hotKinds = map[StageKind]bool{
	StageMatch: true, StageProject: true, StageAddFields: true,
	StageSet: true, StageUnset: true, StageGroup: true, StageSort: true,
	StageLimit: true, StageSkip: true, StageUnwind: true, StageLookup: true,
	StageCount: true, StageSortByCount: true,
}

// shimKinds are executable only by the compatibility shim.
var shimKinds = map[StageKind]bool{
	StageFunction: true, StageWhere: true, StageMerge: true, StageOut: true,
}

// barrierKinds cannot forward per-row deltas and materialize at snapshot.
var barrierKinds = map[StageKind]bool{
	StageGroup: true, StageSort: true, StageLimit: true, StageSkip: true,
	StageCount: true, StageSortByCount: true,
}

// linearKinds may join a fusion group.
var linearKinds = map[StageKind]bool{
	StageMatch: true, StageProject: true, StageAddFields: true,
	StageSet: true, StageUnset: true,
}

// baseCost is each stage's contribution to a fusion group's complexity
// estimate, before the per-field charge.
var baseCost = map[StageKind]int{
	StageMatch:     5,
	StageProject:   3,
	StageAddFields: 4,
	StageSet:       4,
	StageUnset:     1,
	StageSort:      15,
	StageLimit:     1,
	StageSkip:      1,
}

// Stage is one compiled pipeline stage: its kind, the parsed spec, any
// pre-compiled expressions and its delta capabilities.
type Stage struct {
	Kind StageKind
	Spec agg.Value

	// Predicate and MatchInfo are set for $match.
	Predicate expression.Expr
	MatchInfo *expression.MatchInfo

	// Exprs holds the stage's compiled sub-expressions keyed by output
	// field, for $project/$addFields/$group accumulator arguments.
	Exprs map[string]expression.Expr

	// AccOps maps $group output fields to their accumulator operator.
	AccOps map[string]string

	// Fields is the declared output field list in spec order.
	Fields []string

	// CanIncrement and CanDecrement summarize whether the stage handles
	// positive and negative deltas incrementally.
	CanIncrement bool
	CanDecrement bool
}

// Barrier reports whether the stage materializes at snapshot.
func (s *Stage) Barrier() bool { return barrierKinds[s.Kind] }

// Linear reports whether the stage is fusible.
func (s *Stage) Linear() bool { return linearKinds[s.Kind] }

// Cost is the stage's complexity estimate: base cost plus 2 per declared
// field.
func (s *Stage) Cost() int {
	return baseCost[s.Kind] + 2*len(s.Fields)
}

func (s *Stage) String() string {
	return string(s.Kind)
}

// stageKindOf extracts the single $-key of a pipeline stage document.
func stageKindOf(spec agg.Value) (StageKind, agg.Value, error) {
	doc, ok := spec.(*agg.Document)
	if !ok || doc.Len() != 1 {
		return "", nil, agg.ErrParse.New("pipeline stage must be a single-key document")
	}
	key := doc.Keys()[0]
	if !strings.HasPrefix(key, "$") {
		return "", nil, agg.ErrParse.New(fmt.Sprintf("stage name %q must start with $", key))
	}
	arg, _ := doc.Get(key)
	return StageKind(key), arg, nil
}
