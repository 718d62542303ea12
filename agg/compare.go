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
	"strings"
	"time"
)

// typeRank orders values of unrelated types for sorting. Missing sorts
// before null, null before everything else.
func typeRank(v Value) int {
	switch TypeOf(v) {
	case TypeMissing:
		return 0
	case TypeNull:
		return 1
	case TypeInt64, TypeFloat64:
		return 2
	case TypeString:
		return 3
	case TypeDocument:
		return 4
	case TypeArray:
		return 5
	case TypeBool:
		return 6
	case TypeDate:
		return 7
	default:
		return 8
	}
}

// Compare imposes a total order on values: first by type rank, then within
// a type. Int64 and Float64 compare numerically across tags.
func Compare(a, b Value) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		return intCmp(ra, rb)
	}
	switch ra {
	case 0, 1: // missing, null
		return 0
	case 2:
		fa, _ := AsFloat(a)
		fb, _ := AsFloat(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	case 3:
		return strings.Compare(a.(string), b.(string))
	case 4:
		return compareDocuments(a.(*Document), b.(*Document))
	case 5:
		return compareArrays(a.([]Value), b.([]Value))
	case 6:
		ba, bb := a.(bool), b.(bool)
		switch {
		case ba == bb:
			return 0
		case !ba:
			return -1
		default:
			return 1
		}
	case 7:
		ta, tb := a.(time.Time), b.(time.Time)
		switch {
		case ta.Before(tb):
			return -1
		case ta.After(tb):
			return 1
		default:
			return 0
		}
	}
	return 0
}

func compareArrays(a, b []Value) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if c := Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return intCmp(len(a), len(b))
}

func compareDocuments(a, b *Document) int {
	n := a.Len()
	if b.Len() < n {
		n = b.Len()
	}
	for i := 0; i < n; i++ {
		ka, kb := a.keys[i], b.keys[i]
		if c := strings.Compare(ka, kb); c != 0 {
			return c
		}
		if c := Compare(a.vals[ka], b.vals[kb]); c != 0 {
			return c
		}
	}
	return intCmp(a.Len(), b.Len())
}

func intCmp(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Equal reports value equality. Numbers compare across Int64/Float64;
// equality across unrelated tags is false. Null equals null; Missing equals
// Missing.
func Equal(a, b Value) bool {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		return false
	}
	return Compare(a, b) == 0
}

// SameRank reports whether two values share a type rank, i.e. are mutually
// comparable for ordering purposes.
func SameRank(a, b Value) bool {
	return typeRank(a) == typeRank(b)
}
