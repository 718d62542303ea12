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

func TestDocumentInsertionOrder(t *testing.T) {
	require := require.New(t)

	doc := NewDocument()
	doc.Set("z", int64(1))
	doc.Set("a", int64(2))
	doc.Set("m", int64(3))
	require.Equal([]string{"z", "a", "m"}, doc.Keys())

	// overwriting keeps the original position
	doc.Set("a", int64(9))
	require.Equal([]string{"z", "a", "m"}, doc.Keys())
	v, ok := doc.Get("a")
	require.True(ok)
	require.Equal(int64(9), v)

	doc.Delete("z")
	require.Equal([]string{"a", "m"}, doc.Keys())
	doc.Delete("nope")
	require.Equal(2, doc.Len())
}

func TestParseDocumentPreservesOrder(t *testing.T) {
	require := require.New(t)

	doc, err := ParseDocument([]byte(`{"b":1,"a":{"y":2,"x":3},"arr":[1,2.5,"s",null,true]}`))
	require.NoError(err)
	require.Equal([]string{"b", "a", "arr"}, doc.Keys())

	nested, _ := doc.Get("a")
	require.Equal([]string{"y", "x"}, nested.(*Document).Keys())

	arr, _ := doc.Get("arr")
	require.Equal([]Value{int64(1), 2.5, "s", nil, true}, arr.([]Value))

	out, err := doc.MarshalJSON()
	require.NoError(err)
	require.Equal(`{"b":1,"a":{"y":2,"x":3},"arr":[1,2.5,"s",null,true]}`, string(out))
}

func TestParseDocumentNumbers(t *testing.T) {
	require := require.New(t)

	doc, err := ParseDocument([]byte(`{"i":42,"f":42.0,"e":1e3,"big":9007199254740993}`))
	require.NoError(err)

	i, _ := doc.Get("i")
	require.Equal(int64(42), i)
	f, _ := doc.Get("f")
	require.Equal(42.0, f)
	e, _ := doc.Get("e")
	require.Equal(1000.0, e)
	big, _ := doc.Get("big")
	require.Equal(int64(9007199254740993), big)
}

func TestDeepCloneIsolation(t *testing.T) {
	require := require.New(t)

	doc, err := ParseDocument([]byte(`{"a":{"b":[1,2]}}`))
	require.NoError(err)

	clone := doc.DeepClone()
	inner, _ := clone.Get("a")
	inner.(*Document).Set("b", "mutated")

	orig, _ := doc.Get("a")
	v, _ := orig.(*Document).Get("b")
	require.Equal([]Value{int64(1), int64(2)}, v)
}

func TestNormalize(t *testing.T) {
	require := require.New(t)

	require.Equal(int64(3), Normalize(3))
	require.Equal(3.5, Normalize(float32(3.5)))

	doc := Normalize(D{{Key: "b", Val: 1}, {Key: "a", Val: 2}}).(*Document)
	require.Equal([]string{"b", "a"}, doc.Keys())

	// maps normalize with sorted keys for determinism
	m := Normalize(map[string]interface{}{"z": 1, "a": 2}).(*Document)
	require.Equal([]string{"a", "z"}, m.Keys())
}
