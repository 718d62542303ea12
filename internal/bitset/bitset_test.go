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

package bitset

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVectorBasicOps(t *testing.T) {
	require := require.New(t)

	v := NewVector(130)
	require.Equal(130, v.Len())
	require.Equal(0, v.Popcount())
	require.Equal(-1, v.FirstSet())

	v.Set(0)
	v.Set(63)
	v.Set(64)
	v.Set(129)
	require.Equal(4, v.Popcount())
	require.Equal(0, v.FirstSet())
	require.Equal([]int{0, 63, 64, 129}, v.SetBits())

	v.Clear(0)
	require.False(v.Get(0))
	require.Equal(63, v.FirstSet())

	v.ClearAll()
	require.Equal(0, v.Popcount())
}

func TestVectorTailMasking(t *testing.T) {
	require := require.New(t)

	v := NewVector(65)
	v.SetAll()
	require.Equal(65, v.Popcount())

	v.Not()
	require.Equal(0, v.Popcount())

	// NOT again must not resurrect bits past the length
	v.Not()
	require.Equal(65, v.Popcount())
	require.False(v.Get(66))
	require.False(v.Get(127))
}

func TestVectorWordOps(t *testing.T) {
	require := require.New(t)

	a := NewVector(70)
	b := NewVector(70)
	for _, i := range []int{1, 3, 5, 69} {
		a.Set(i)
	}
	for _, i := range []int{3, 5, 7} {
		b.Set(i)
	}

	and := a.Clone()
	and.And(b)
	require.Equal([]int{3, 5}, and.SetBits())

	or := a.Clone()
	or.Or(b)
	require.Equal([]int{1, 3, 5, 7, 69}, or.SetBits())

	xor := a.Clone()
	xor.Xor(b)
	require.Equal([]int{1, 7, 69}, xor.SetBits())
}

func TestVectorGrowth(t *testing.T) {
	require := require.New(t)

	v := NewVector(0)
	v.Set(200)
	require.True(v.Get(200))
	require.Equal(201, v.Len())
	require.Equal(1, v.Popcount())
}

func TestThreeValuedKernels(t *testing.T) {
	require := require.New(t)

	// NULL AND FALSE = FALSE
	val, null := And3(false, true, false, false)
	require.False(null)
	require.False(val)

	// NULL AND TRUE = NULL
	_, null = And3(false, true, true, false)
	require.True(null)

	// NULL OR TRUE = TRUE
	val, null = Or3(false, true, true, false)
	require.False(null)
	require.True(val)

	// NULL OR FALSE = NULL
	_, null = Or3(false, true, false, false)
	require.True(null)

	// NOT NULL = NULL
	_, null = Not3(false, true)
	require.True(null)

	val, null = Not3(true, false)
	require.False(null)
	require.False(val)
}

func TestThreeValuedVectors(t *testing.T) {
	require := require.New(t)

	n := 8
	av, an := NewVector(n), NewVector(n)
	bv, bn := NewVector(n), NewVector(n)

	// lane 0: T and T, lane 1: T and F, lane 2: NULL and F, lane 3: NULL and T
	av.Set(0)
	av.Set(1)
	bv.Set(0)
	bv.Set(3)
	an.Set(2)
	an.Set(3)

	rv, rn := NewVector(n), NewVector(n)
	AndVec(av, an, bv, bn, rv, rn)
	require.True(rv.Get(0))
	require.False(rv.Get(1))
	require.False(rn.Get(2)) // NULL AND FALSE = FALSE
	require.False(rv.Get(2))
	require.True(rn.Get(3)) // NULL AND TRUE = NULL

	rv, rn = NewVector(n), NewVector(n)
	OrVec(av, an, bv, bn, rv, rn)
	require.True(rv.Get(0))
	require.True(rv.Get(1))
	require.True(rn.Get(2)) // NULL OR FALSE = NULL
	require.True(rv.Get(3)) // NULL OR TRUE = TRUE
	require.False(rn.Get(3))
}
