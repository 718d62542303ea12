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

// Package agg defines the value model, document representation and run
// context shared by every part of the aggregation engine.
package agg

import (
	"math"
	"time"

	"github.com/spf13/cast"
)

// Value is the universal document value: nil, bool, int64, float64, string,
// time.Time, []Value or *Document. Anything else must be passed through
// Normalize before it enters the engine.
type Value = interface{}

// Type tags the runtime type of a Value.
type Type uint8

const (
	TypeMissing Type = iota
	TypeNull
	TypeBool
	TypeInt64
	TypeFloat64
	TypeString
	TypeDate
	TypeArray
	TypeDocument
)

type missing struct{}

// Missing is the sentinel returned by field-path resolution when a path does
// not exist. It is distinct from an explicit null: `$exists` sees the
// difference, predicates treat both as compare-false.
var Missing Value = missing{}

// IsMissing reports whether v is the Missing sentinel.
func IsMissing(v Value) bool {
	_, ok := v.(missing)
	return ok
}

// IsNullOrMissing reports whether v is nil or Missing.
func IsNullOrMissing(v Value) bool {
	return v == nil || IsMissing(v)
}

// TypeOf returns the type tag for a normalized value.
func TypeOf(v Value) Type {
	switch v.(type) {
	case missing:
		return TypeMissing
	case nil:
		return TypeNull
	case bool:
		return TypeBool
	case int64:
		return TypeInt64
	case float64:
		return TypeFloat64
	case string:
		return TypeString
	case time.Time:
		return TypeDate
	case []Value:
		return TypeArray
	case *Document:
		return TypeDocument
	default:
		return TypeNull
	}
}

// TypeName returns the `$type` name of a value: one of null, bool, number,
// string, date, array, object.
func TypeName(v Value) string {
	switch TypeOf(v) {
	case TypeBool:
		return "bool"
	case TypeInt64, TypeFloat64:
		return "number"
	case TypeString:
		return "string"
	case TypeDate:
		return "date"
	case TypeArray:
		return "array"
	case TypeDocument:
		return "object"
	default:
		return "null"
	}
}

// IsNumber reports whether v is a numeric value. NaN is not a number.
func IsNumber(v Value) bool {
	switch n := v.(type) {
	case int64:
		return true
	case float64:
		return !math.IsNaN(n)
	default:
		return false
	}
}

// AsFloat returns the float64 form of a numeric value.
func AsFloat(v Value) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// Truthy implements expression-context truthiness: false, null, missing and
// numeric zero are falsy, everything else is truthy.
func Truthy(v Value) bool {
	switch t := v.(type) {
	case nil, missing:
		return false
	case bool:
		return t
	case int64:
		return t != 0
	case float64:
		return t != 0
	default:
		return true
	}
}

// Normalize converts arbitrary host values (JSON decode output, test
// literals) into the engine's value model. Maps become Documents with keys
// in sorted order; use D pairs where insertion order matters.
func Normalize(v interface{}) Value {
	switch t := v.(type) {
	case nil, bool, int64, float64, string, time.Time, missing:
		return t
	case *Document:
		return t
	case D:
		doc := NewDocument()
		for _, e := range t {
			doc.Set(e.Key, Normalize(e.Val))
		}
		return doc
	case int:
		return int64(t)
	case int8:
		return int64(t)
	case int16:
		return int64(t)
	case int32:
		return int64(t)
	case uint:
		return int64(t)
	case uint8:
		return int64(t)
	case uint16:
		return int64(t)
	case uint32:
		return int64(t)
	case uint64:
		return int64(t)
	case float32:
		return float64(t)
	case []Value:
		out := make([]Value, len(t))
		for i, e := range t {
			out[i] = Normalize(e)
		}
		return out
	case map[string]interface{}:
		doc := NewDocument()
		for _, k := range sortedKeys(t) {
			doc.Set(k, Normalize(t[k]))
		}
		return doc
	default:
		// Last resort for odd host scalars.
		if s, err := cast.ToStringE(t); err == nil {
			return s
		}
		return nil
	}
}

// E is a single ordered document entry.
type E struct {
	Key string
	Val interface{}
}

// D is an ordered document literal, the bson.D analogue for building
// pipelines and documents in Go code.
type D []E

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j] < keys[j-1]; j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
	return keys
}
