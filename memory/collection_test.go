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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dolthub/go-agg-engine/agg"
)

func docsFrom(t *testing.T, jsons ...string) []*agg.Document {
	t.Helper()
	out := make([]*agg.Document, len(jsons))
	for i, j := range jsons {
		doc, err := agg.ParseDocument([]byte(j))
		require.NoError(t, err)
		out[i] = doc
	}
	return out
}

func sumPipeline() []agg.Value {
	return []agg.Value{agg.Normalize(agg.D{{Key: "$group", Val: agg.D{
		{Key: "_id", Val: nil},
		{Key: "sum", Val: agg.D{{Key: "$sum", Val: "$x"}}},
	}}})}
}

func TestRowStoreInvariants(t *testing.T) {
	require := require.New(t)

	s := NewRowStore()
	id0 := s.AddDocument(docsFrom(t, `{"a":1}`)[0])
	id1 := s.AddDocument(docsFrom(t, `{"a":2}`)[0])
	require.Equal(agg.RowID(0), id0)
	require.Equal(agg.RowID(1), id1)
	require.Equal(2, s.Size())

	// removal clears the bit but never shifts indices
	require.NoError(s.RemoveRow(id0))
	require.False(s.IsLive(id0))
	require.Equal(1, s.Size())
	doc, err := s.Get(id1)
	require.NoError(err)
	a, _ := doc.Get("a")
	require.Equal(int64(2), a)

	// removing an already-dead id is a no-op
	require.NoError(s.RemoveRow(id0))

	// an id that was never allocated is an invariant violation
	_, err = s.Get(99)
	require.True(agg.ErrInvariantViolation.Is(err))
	require.True(agg.ErrInvariantViolation.Is(s.RemoveRow(99)))

	// row ids are never reused
	id2 := s.AddDocument(docsFrom(t, `{"a":3}`)[0])
	require.Equal(agg.RowID(2), id2)
}

func TestRowStoreClonesIngestedDocuments(t *testing.T) {
	require := require.New(t)

	s := NewRowStore()
	original := docsFrom(t, `{"arr":[1,2]}`)[0]
	id := s.AddDocument(original)

	arr, _ := original.Get("arr")
	arr.([]agg.Value)[0] = "mutated"

	stored, err := s.Get(id)
	require.NoError(err)
	storedArr, _ := stored.Get("arr")
	require.Equal(int64(1), storedArr.([]agg.Value)[0])
}

func TestStreamIncrementalSum(t *testing.T) {
	require := require.New(t)

	c := NewStreamingCollection(docsFrom(t, `{"x":1}`), nil)
	defer c.Destroy()

	out, err := c.Stream(sumPipeline())
	require.NoError(err)
	require.Len(out, 1)
	sum, _ := out[0].(*agg.Document).Get("sum")
	require.Equal(int64(1), sum)

	_, err = c.AddBulk(docsFrom(t, `{"x":2}`, `{"x":3}`))
	require.NoError(err)
	out, err = c.Stream(sumPipeline())
	require.NoError(err)
	sum, _ = out[0].(*agg.Document).Get("sum")
	require.Equal(int64(6), sum)

	require.NoError(c.Remove(0))
	out, err = c.Stream(sumPipeline())
	require.NoError(err)
	sum, _ = out[0].(*agg.Document).Get("sum")
	require.Equal(int64(5), sum)
}

func TestStreamTwiceIsStable(t *testing.T) {
	require := require.New(t)

	c := NewStreamingCollection(docsFrom(t, `{"x":1}`, `{"x":2}`), nil)
	defer c.Destroy()

	first, err := c.Stream(sumPipeline())
	require.NoError(err)
	second, err := c.Stream(sumPipeline())
	require.NoError(err)
	require.Equal(first, second)
}

func TestGetStreamingResultCaches(t *testing.T) {
	require := require.New(t)

	c := NewStreamingCollection(docsFrom(t, `{"x":1}`), nil)
	defer c.Destroy()

	out1, err := c.GetStreamingResult(sumPipeline())
	require.NoError(err)
	out2, err := c.GetStreamingResult(sumPipeline())
	require.NoError(err)
	require.Equal(out1, out2)

	// a delta invalidates the cached result
	_, err = c.Add(docsFrom(t, `{"x":9}`)[0])
	require.NoError(err)
	out3, err := c.GetStreamingResult(sumPipeline())
	require.NoError(err)
	sum, _ := out3[0].(*agg.Document).Get("sum")
	require.Equal(int64(10), sum)
}

func TestStreamUnwindReplaysPerRun(t *testing.T) {
	require := require.New(t)

	pipeline := []agg.Value{agg.Normalize(agg.D{{Key: "$unwind", Val: "$tags"}})}
	c := NewStreamingCollection(docsFrom(t, `{"_id":1,"tags":["a","b"]}`), nil)
	defer c.Destroy()

	out, err := c.Stream(pipeline)
	require.NoError(err)
	require.Len(out, 2)

	_, err = c.Add(docsFrom(t, `{"_id":2,"tags":["c"]}`)[0])
	require.NoError(err)
	out, err = c.Stream(pipeline)
	require.NoError(err)
	require.Len(out, 3)
}

func TestStreamAfterDestroyFails(t *testing.T) {
	require := require.New(t)

	c := NewStreamingCollection(nil, nil)
	c.Destroy()
	_, err := c.Stream(sumPipeline())
	require.True(agg.ErrInvariantViolation.Is(err))
	_, err = c.Add(agg.NewDocument())
	require.True(agg.ErrInvariantViolation.Is(err))
}

func TestStreamParseErrorKeepsNoPartialPlan(t *testing.T) {
	require := require.New(t)

	c := NewStreamingCollection(docsFrom(t, `{"x":1}`), nil)
	defer c.Destroy()

	bad := []agg.Value{agg.Normalize(agg.D{{Key: "$sort", Val: agg.D{{Key: "a", Val: 3}}}})}
	_, err := c.Stream(bad)
	require.True(agg.ErrParse.Is(err))

	// the collection stays usable
	out, err := c.Stream(sumPipeline())
	require.NoError(err)
	require.Len(out, 1)
}
