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

// NullMask marks null lanes in a batch: a set bit means the lane is null.
type NullMask struct {
	Vector
}

// NewNullMask returns a mask of the given length with no lanes null.
func NewNullMask(length int) *NullMask {
	return &NullMask{Vector: *NewVector(length)}
}

// SetNull marks lane i null.
func (m *NullMask) SetNull(i int) { m.Set(i) }

// IsNull reports whether lane i is null.
func (m *NullMask) IsNull(i int) bool { return m.Get(i) }

// AnyNull reports whether any lane is null.
func (m *NullMask) AnyNull() bool { return m.FirstSet() >= 0 }

// Merge ORs the other mask into m, the usual null propagation for
// elementwise arithmetic.
func (m *NullMask) Merge(other *NullMask) {
	if other == nil {
		return
	}
	m.Or(&other.Vector)
}

// And3 computes the three-valued AND of two boolean lanes:
// NULL AND FALSE = FALSE, otherwise NULL AND x = NULL.
// Inputs and outputs are (value, null) pairs.
func And3(a bool, aNull bool, b bool, bNull bool) (val bool, null bool) {
	switch {
	case !aNull && !bNull:
		return a && b, false
	case aNull && !bNull && !b:
		return false, false
	case bNull && !aNull && !a:
		return false, false
	default:
		return false, true
	}
}

// Or3 computes the three-valued OR of two boolean lanes:
// NULL OR TRUE = TRUE, otherwise NULL OR x = NULL.
func Or3(a bool, aNull bool, b bool, bNull bool) (val bool, null bool) {
	switch {
	case !aNull && !bNull:
		return a || b, false
	case aNull && !bNull && b:
		return true, false
	case bNull && !aNull && a:
		return true, false
	default:
		return false, true
	}
}

// Not3 computes the three-valued NOT: NOT NULL = NULL.
func Not3(a bool, aNull bool) (val bool, null bool) {
	if aNull {
		return false, true
	}
	return !a, false
}

// AndVec computes lanewise three-valued AND over whole vectors. The result
// vectors must be sized to the operand length by the caller.
func AndVec(av, an, bv, bn, rv, rn *Vector) {
	n := len(rv.words)
	for i := 0; i < n; i++ {
		aw, anw := av.word(i), an.word(i)
		bw, bnw := bv.word(i), bn.word(i)
		// false wins over null, null wins over true
		falseA := ^aw & ^anw
		falseB := ^bw & ^bnw
		anyFalse := falseA | falseB
		anyNull := (anw | bnw) &^ anyFalse
		rv.words[i] = aw & bw &^ anyNull &^ anyFalse
		rn.words[i] = anyNull
	}
	rv.maskTail()
	rn.maskTail()
}

// OrVec computes lanewise three-valued OR over whole vectors.
func OrVec(av, an, bv, bn, rv, rn *Vector) {
	n := len(rv.words)
	for i := 0; i < n; i++ {
		aw, anw := av.word(i), an.word(i)
		bw, bnw := bv.word(i), bn.word(i)
		trueA := aw & ^anw
		trueB := bw & ^bnw
		anyTrue := trueA | trueB
		anyNull := (anw | bnw) &^ anyTrue
		rv.words[i] = anyTrue
		rn.words[i] = anyNull
	}
	rv.maskTail()
	rn.maskTail()
}
