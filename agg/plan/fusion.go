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

import "github.com/dolthub/go-agg-engine/agg"

// FusionGroup is a half-open stage range [Start, End) executed as a single
// row-at-a-time function. A TopK group is the fused $sort+$limit pair.
type FusionGroup struct {
	Start int
	End   int
	TopK  bool
	K     int64
}

// Size returns the number of stages in the group.
func (g FusionGroup) Size() int { return g.End - g.Start }

// fuse greedily accumulates linear stages left to right, closing a group at
// every barrier or when a limit trips. $sort immediately followed by $limit
// becomes a Top-K group when enabled.
func fuse(stages []*Stage, opts agg.FusionOptions) []FusionGroup {
	var groups []FusionGroup
	i := 0
	for i < len(stages) {
		s := stages[i]

		if s.Kind == StageSort && opts.EnableSortLimitFusion && i+1 < len(stages) &&
			stages[i+1].Kind == StageLimit {
			k, _ := stages[i+1].Spec.(int64)
			groups = append(groups, FusionGroup{Start: i, End: i + 2, TopK: true, K: k})
			i += 2
			continue
		}

		if !s.Linear() {
			groups = append(groups, FusionGroup{Start: i, End: i + 1})
			i++
			continue
		}

		// accumulate a linear run
		start := i
		cost := 0
		for i < len(stages) {
			cur := stages[i]
			if !cur.Linear() {
				break
			}
			if i > start {
				if !chainAllowed(stages[i-1].Kind, cur.Kind, opts) {
					break
				}
				if i-start >= opts.MaxStagesPerGroup {
					break
				}
				if cost+cur.Cost() > opts.MaxComplexity {
					break
				}
			}
			cost += cur.Cost()
			i++
		}
		groups = append(groups, FusionGroup{Start: start, End: i})
	}
	return groups
}

// chainAllowed applies the per-pattern fusion switches.
func chainAllowed(prev, next StageKind, opts agg.FusionOptions) bool {
	projectish := func(k StageKind) bool {
		return k == StageProject || k == StageAddFields || k == StageSet || k == StageUnset
	}
	switch {
	case prev == StageMatch && projectish(next):
		return opts.EnableMatchProjectFusion
	case projectish(prev) && projectish(next):
		return opts.EnableProjectChainFusion
	default:
		return true
	}
}
