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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPathResolve(t *testing.T) {
	require := require.New(t)

	doc, err := ParseDocument([]byte(`{"a":{"b":{"c":7}},"n":null,"arr":[{"x":1},{"x":2}]}`))
	require.NoError(err)

	require.Equal(int64(7), MustPath("a.b.c").Resolve(doc))
	require.Nil(MustPath("n").Resolve(doc))

	// missing leaf and missing intermediate both yield Missing, not null
	require.True(IsMissing(MustPath("a.b.z").Resolve(doc)))
	require.True(IsMissing(MustPath("a.z.c").Resolve(doc)))

	// numeric segments index arrays
	require.Equal(int64(2), MustPath("arr.1.x").Resolve(doc))
	require.True(IsMissing(MustPath("arr.5.x").Resolve(doc)))
}

func TestPathStoreCreatesIntermediates(t *testing.T) {
	require := require.New(t)

	doc := NewDocument()
	MustPath("a.b.c").Store(doc, int64(1))
	require.Equal(int64(1), MustPath("a.b.c").Resolve(doc))

	MustPath("a.b.d").Store(doc, int64(2))
	inner := MustPath("a.b").Resolve(doc).(*Document)
	require.Equal([]string{"c", "d"}, inner.Keys())
}

func TestPathRemove(t *testing.T) {
	require := require.New(t)

	doc, err := ParseDocument([]byte(`{"a":{"b":1,"c":2},"d":3}`))
	require.NoError(err)

	MustPath("a.b").Remove(doc)
	require.True(IsMissing(MustPath("a.b").Resolve(doc)))
	require.Equal(int64(2), MustPath("a.c").Resolve(doc))

	// removing through a missing intermediate is a no-op
	MustPath("x.y").Remove(doc)
	require.Equal(int64(3), MustPath("d").Resolve(doc))
}

func TestParsePathErrors(t *testing.T) {
	require := require.New(t)

	_, err := ParsePath("")
	require.True(ErrParse.Is(err))
	_, err = ParsePath("a..b")
	require.True(ErrParse.Is(err))
}

func TestCompareAndEqual(t *testing.T) {
	require := require.New(t)

	require.Equal(0, Compare(int64(2), 2.0))
	require.Equal(-1, Compare(int64(1), 2.0))
	require.True(Equal(int64(2), 2.0))

	// equality across unrelated tags is false
	require.False(Equal("2", int64(2)))
	require.False(Equal(nil, int64(0)))
	require.True(Equal(nil, nil))

	// arrays compare elementwise then by length
	require.Equal(-1, Compare([]Value{int64(1)}, []Value{int64(1), int64(2)}))
	require.Equal(1, Compare([]Value{int64(3)}, []Value{int64(1), int64(2)}))
}

func TestCanonicalKey(t *testing.T) {
	require := require.New(t)

	// numeric normalization: 2 and 2.0 collide
	require.Equal(CanonicalKey(int64(2)), CanonicalKey(2.0))
	require.NotEqual(CanonicalKey(int64(2)), CanonicalKey(2.5))

	// object keys sort
	a := NewDocumentFrom(D{{Key: "b", Val: 1}, {Key: "a", Val: 2}})
	b := NewDocumentFrom(D{{Key: "a", Val: 2}, {Key: "b", Val: 1}})
	require.Equal(CanonicalKey(a), CanonicalKey(b))

	require.Equal("null", CanonicalKey(nil))
	require.Equal(CanonicalKey(nil), CanonicalKey(Missing))
}
