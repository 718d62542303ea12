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

package expression

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dolthub/go-agg-engine/agg"
)

func TestEvalBatchLanewise(t *testing.T) {
	require := require.New(t)

	docs := docsOf(t, `{"a":1}`, `{"a":2}`, `{"b":3}`)
	ast, err := Parse(agg.Normalize(agg.D{{Key: "$add", Val: []interface{}{"$a", 10}}}))
	require.NoError(err)

	batch := EvalBatch(ast, docs, &Env{Now: testNow})
	require.Equal(3, batch.Len())
	require.Equal(int64(11), batch.Values[0])
	require.Equal(int64(12), batch.Values[1])
	require.True(batch.Nulls.IsNull(2)) // missing field propagates as null
}

func TestEvalBatchBooleanKernels(t *testing.T) {
	require := require.New(t)

	docs := docsOf(t,
		`{"x":true,"y":true}`,
		`{"x":true,"y":false}`,
		`{"y":false}`, // x missing: null
		`{"y":true}`,  // x missing: null
	)
	and, err := Parse(agg.Normalize(agg.D{{Key: "$and", Val: []interface{}{"$x", "$y"}}}))
	require.NoError(err)

	batch := EvalBatch(and, docs, &Env{Now: testNow})
	require.Equal(true, batch.Values[0])
	require.Equal(false, batch.Values[1])
	// NULL AND FALSE = FALSE
	require.False(batch.Nulls.IsNull(2))
	require.Equal(false, batch.Values[2])
	// NULL AND TRUE = NULL
	require.True(batch.Nulls.IsNull(3))

	or, err := Parse(agg.Normalize(agg.D{{Key: "$or", Val: []interface{}{"$x", "$y"}}}))
	require.NoError(err)
	batch = EvalBatch(or, docs, &Env{Now: testNow})
	require.Equal(true, batch.Values[0])
	require.Equal(true, batch.Values[1])
	// NULL OR FALSE = NULL
	require.True(batch.Nulls.IsNull(2))
	// NULL OR TRUE = TRUE
	require.False(batch.Nulls.IsNull(3))
	require.Equal(true, batch.Values[3])
}

func TestEvalPredicateBatchSelection(t *testing.T) {
	require := require.New(t)

	docs := docsOf(t, `{"a":1}`, `{"a":5}`, `{"a":9}`, `{}`)
	pred, err := Parse(agg.Normalize(agg.D{{Key: "$gte", Val: []interface{}{"$a", 5}}}))
	require.NoError(err)

	sel := EvalPredicateBatch(pred, docs, &Env{Now: testNow})
	require.Equal([]int{1, 2}, sel.SetBits())
}
