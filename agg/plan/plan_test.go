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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dolthub/go-agg-engine/agg"
)

func pipelineOf(stages ...interface{}) []agg.Value {
	out := make([]agg.Value, len(stages))
	for i, s := range stages {
		out[i] = agg.Normalize(s)
	}
	return out
}

func TestBuildRoutesHotPath(t *testing.T) {
	require := require.New(t)

	p, err := Build(pipelineOf(
		agg.D{{Key: "$match", Val: agg.D{{Key: "a", Val: 1}}}},
		agg.D{{Key: "$group", Val: agg.D{{Key: "_id", Val: "$a"}, {Key: "n", Val: agg.D{{Key: "$sum", Val: 1}}}}}},
	), nil, nil)
	require.NoError(err)
	require.Equal(RouteHotPath, p.Route)
	require.Len(p.Stages, 2)
	require.True(p.Stages[1].Barrier())
}

func TestBuildRoutesShim(t *testing.T) {
	require := require.New(t)

	var cases = []struct {
		name   string
		stage  interface{}
		reason string
	}{
		{"$out", agg.D{{Key: "$out", Val: "target"}}, "unsupported-operator:$out"},
		{"$merge", agg.D{{Key: "$merge", Val: "target"}}, "unsupported-operator:$merge"},
		{"$function", agg.D{{Key: "$function", Val: agg.D{{Key: "body", Val: "a"}, {Key: "as", Val: "x"}}}}, "unsupported-operator:$function"},
		{"nested $where", agg.D{{Key: "$match", Val: agg.D{{Key: "$where", Val: "a > 1"}}}}, "unsupported-operator:$where"},
		{"advanced lookup", agg.D{{Key: "$lookup", Val: agg.D{
			{Key: "from", Val: "other"},
			{Key: "let", Val: agg.D{{Key: "v", Val: "$a"}}},
			{Key: "pipeline", Val: []interface{}{}},
			{Key: "as", Val: "joined"},
		}}}, "advanced-lookup"},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Build(pipelineOf(tt.stage), nil, nil)
			require.NoError(err)
			require.Equal(RouteShim, p.Route)
			require.Contains(p.ShimReasons, tt.reason)
		})
	}
}

func TestBuildRejectsUnknownStage(t *testing.T) {
	require := require.New(t)

	_, err := Build(pipelineOf(agg.D{{Key: "$frobnicate", Val: 1}}), nil, nil)
	require.True(agg.ErrUnsupportedOperator.Is(err))

	_, err = Build(pipelineOf("not a stage"), nil, nil)
	require.True(agg.ErrParse.Is(err))

	_, err = Build(pipelineOf(agg.D{{Key: "$sort", Val: agg.D{{Key: "a", Val: 7}}}}), nil, nil)
	require.True(agg.ErrParse.Is(err))
}

func TestFusionLinearChain(t *testing.T) {
	require := require.New(t)

	p, err := Build(pipelineOf(
		agg.D{{Key: "$match", Val: agg.D{{Key: "a", Val: 1}}}},
		agg.D{{Key: "$project", Val: agg.D{{Key: "a", Val: 1}}}},
		agg.D{{Key: "$addFields", Val: agg.D{{Key: "b", Val: 2}}}},
		agg.D{{Key: "$group", Val: agg.D{{Key: "_id", Val: "$a"}}}},
		agg.D{{Key: "$match", Val: agg.D{{Key: "_id", Val: 1}}}},
	), nil, nil)
	require.NoError(err)

	// match+project+addFields fuse; $group is a barrier; trailing match alone
	require.Len(p.Groups, 3)
	require.Equal(3, p.Groups[0].Size())
	require.Equal(1, p.Groups[1].Size())
	require.Equal(1, p.Groups[2].Size())
}

func TestFusionSortLimitTopK(t *testing.T) {
	require := require.New(t)

	p, err := Build(pipelineOf(
		agg.D{{Key: "$sort", Val: agg.D{{Key: "a", Val: -1}}}},
		agg.D{{Key: "$limit", Val: 5}},
	), nil, nil)
	require.NoError(err)
	require.Len(p.Groups, 1)
	require.True(p.Groups[0].TopK)
	require.Equal(int64(5), p.Groups[0].K)

	// disabled by options
	opts := agg.DefaultOptions()
	opts.Fusion.EnableSortLimitFusion = false
	p, err = Build(pipelineOf(
		agg.D{{Key: "$sort", Val: agg.D{{Key: "a", Val: -1}}}},
		agg.D{{Key: "$limit", Val: 5}},
	), nil, opts)
	require.NoError(err)
	require.Len(p.Groups, 2)
	require.False(p.Groups[0].TopK)
}

func TestFusionGroupSizeLimit(t *testing.T) {
	require := require.New(t)

	stages := make([]interface{}, 0, 7)
	for i := 0; i < 7; i++ {
		stages = append(stages, agg.D{{Key: "$unset", Val: "x"}})
	}
	p, err := Build(pipelineOf(stages...), nil, nil)
	require.NoError(err)
	require.Len(p.Groups, 2)
	require.Equal(5, p.Groups[0].Size())
	require.Equal(2, p.Groups[1].Size())
}

func TestStageCosts(t *testing.T) {
	require := require.New(t)

	p, err := Build(pipelineOf(
		agg.D{{Key: "$match", Val: agg.D{{Key: "a", Val: 1}}}},
		agg.D{{Key: "$project", Val: agg.D{{Key: "a", Val: 1}, {Key: "b", Val: 1}}}},
	), nil, nil)
	require.NoError(err)
	require.Equal(5+2, p.Stages[0].Cost())
	require.Equal(3+4, p.Stages[1].Cost())
}

func TestDesugarCount(t *testing.T) {
	require := require.New(t)

	p, err := Build(pipelineOf(agg.D{{Key: "$count", Val: "total"}}), nil, nil)
	require.NoError(err)
	require.Len(p.Stages, 2)
	require.Equal(StageGroup, p.Stages[0].Kind)
	require.Equal(StageProject, p.Stages[1].Kind)
}

func TestDesugarSortByCount(t *testing.T) {
	require := require.New(t)

	p, err := Build(pipelineOf(agg.D{{Key: "$sortByCount", Val: "$cat"}}), nil, nil)
	require.NoError(err)
	require.Len(p.Stages, 2)
	require.Equal(StageGroup, p.Stages[0].Kind)
	require.Equal(StageSort, p.Stages[1].Kind)
}

func TestPipelineHashStable(t *testing.T) {
	require := require.New(t)

	p1 := pipelineOf(agg.D{{Key: "$match", Val: agg.D{{Key: "a", Val: 1}}}})
	p2 := pipelineOf(agg.D{{Key: "$match", Val: agg.D{{Key: "a", Val: 1}}}})
	p3 := pipelineOf(agg.D{{Key: "$match", Val: agg.D{{Key: "a", Val: 2}}}})
	require.Equal(HashPipeline(p1), HashPipeline(p2))
	require.NotEqual(HashPipeline(p1), HashPipeline(p3))
}

func TestPlanDescribe(t *testing.T) {
	require := require.New(t)

	p, err := Build(pipelineOf(
		agg.D{{Key: "$sort", Val: agg.D{{Key: "a", Val: 1}}}},
		agg.D{{Key: "$limit", Val: 3}},
	), nil, nil)
	require.NoError(err)
	desc := p.Describe()
	require.Contains(desc, "hotPath")
	require.Contains(desc, "top-k")
}
