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
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dolthub/go-agg-engine/agg"
)

var testNow = time.Date(2024, 6, 15, 10, 30, 0, 0, time.UTC)

func evalOn(t *testing.T, docJSON string, spec interface{}) agg.Value {
	t.Helper()
	doc, err := agg.ParseDocument([]byte(docJSON))
	require.NoError(t, err)
	e, err := Parse(agg.Normalize(spec))
	require.NoError(t, err)
	return Evaluate(e, NewEnv(doc, testNow))
}

func TestArithmeticOperators(t *testing.T) {
	doc := `{"a":10,"b":3,"f":2.5,"n":null}`
	var cases = []struct {
		name string
		spec interface{}
		exp  agg.Value
	}{
		{"add ints", agg.D{{Key: "$add", Val: []interface{}{"$a", "$b"}}}, int64(13)},
		{"add widens", agg.D{{Key: "$add", Val: []interface{}{"$a", "$f"}}}, 12.5},
		{"add null", agg.D{{Key: "$add", Val: []interface{}{"$a", "$n"}}}, nil},
		{"add missing", agg.D{{Key: "$add", Val: []interface{}{"$a", "$zz"}}}, nil},
		{"subtract", agg.D{{Key: "$subtract", Val: []interface{}{"$a", "$b"}}}, int64(7)},
		{"multiply", agg.D{{Key: "$multiply", Val: []interface{}{"$a", "$b"}}}, int64(30)},
		{"divide", agg.D{{Key: "$divide", Val: []interface{}{"$a", 4}}}, 2.5},
		{"divide by zero", agg.D{{Key: "$divide", Val: []interface{}{"$a", 0}}}, nil},
		{"mod", agg.D{{Key: "$mod", Val: []interface{}{"$a", "$b"}}}, int64(1)},
		{"mod zero", agg.D{{Key: "$mod", Val: []interface{}{"$a", 0}}}, nil},
		{"abs", agg.D{{Key: "$abs", Val: -5}}, int64(5)},
		{"sqrt", agg.D{{Key: "$sqrt", Val: 16}}, int64(4)},
		{"sqrt negative", agg.D{{Key: "$sqrt", Val: -1}}, nil},
		{"log10", agg.D{{Key: "$log10", Val: 1000}}, int64(3)},
		{"log10 nonpositive", agg.D{{Key: "$log10", Val: 0}}, nil},
		{"trunc", agg.D{{Key: "$trunc", Val: 2.9}}, 2.0},
		{"round", agg.D{{Key: "$round", Val: 2.5}}, 3.0},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.exp, evalOn(t, doc, tt.spec))
		})
	}
}

func TestComparisonOperators(t *testing.T) {
	doc := `{"a":2,"s":"x","n":null}`
	var cases = []struct {
		name string
		spec interface{}
		exp  agg.Value
	}{
		{"eq true", agg.D{{Key: "$eq", Val: []interface{}{"$a", 2}}}, true},
		{"eq promotes", agg.D{{Key: "$eq", Val: []interface{}{"$a", 2.0}}}, true},
		{"eq cross-tag", agg.D{{Key: "$eq", Val: []interface{}{"$a", "2"}}}, false},
		{"ne cross-tag", agg.D{{Key: "$ne", Val: []interface{}{"$a", "2"}}}, true},
		{"gt", agg.D{{Key: "$gt", Val: []interface{}{"$a", 1}}}, true},
		{"lte", agg.D{{Key: "$lte", Val: []interface{}{"$a", 2}}}, true},
		{"null operand", agg.D{{Key: "$gt", Val: []interface{}{"$n", 1}}}, nil},
		{"missing operand", agg.D{{Key: "$eq", Val: []interface{}{"$zz", 1}}}, nil},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.exp, evalOn(t, doc, tt.spec))
		})
	}
}

func TestLogicThreeValued(t *testing.T) {
	doc := `{"t":true,"f":false,"n":null}`
	var cases = []struct {
		name string
		spec interface{}
		exp  agg.Value
	}{
		{"and false wins over null", agg.D{{Key: "$and", Val: []interface{}{"$n", "$f"}}}, false},
		{"and null", agg.D{{Key: "$and", Val: []interface{}{"$n", "$t"}}}, nil},
		{"and true", agg.D{{Key: "$and", Val: []interface{}{"$t", "$t"}}}, true},
		{"or true wins over null", agg.D{{Key: "$or", Val: []interface{}{"$n", "$t"}}}, true},
		{"or null", agg.D{{Key: "$or", Val: []interface{}{"$n", "$f"}}}, nil},
		{"not null", agg.D{{Key: "$not", Val: "$n"}}, nil},
		{"not true", agg.D{{Key: "$not", Val: "$t"}}, false},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.exp, evalOn(t, doc, tt.spec))
		})
	}
}

func TestStringOperators(t *testing.T) {
	doc := `{"s":"Hello","w":"a,b,c"}`
	var cases = []struct {
		name string
		spec interface{}
		exp  agg.Value
	}{
		{"concat", agg.D{{Key: "$concat", Val: []interface{}{"$s", " ", "World"}}}, "Hello World"},
		{"concat null", agg.D{{Key: "$concat", Val: []interface{}{"$s", "$zz"}}}, nil},
		{"toLower", agg.D{{Key: "$toLower", Val: "$s"}}, "hello"},
		{"toUpper", agg.D{{Key: "$toUpper", Val: "$s"}}, "HELLO"},
		{"substr", agg.D{{Key: "$substr", Val: []interface{}{"$s", 1, 3}}}, "ell"},
		{"strLen", agg.D{{Key: "$strLen", Val: "$s"}}, int64(5)},
		{"split", agg.D{{Key: "$split", Val: []interface{}{"$w", ","}}}, []agg.Value{"a", "b", "c"}},
		{"toString int", agg.D{{Key: "$toString", Val: 42}}, "42"},
		{"toString bool", agg.D{{Key: "$toString", Val: true}}, "true"},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.exp, evalOn(t, doc, tt.spec))
		})
	}
}

func TestArrayOperators(t *testing.T) {
	doc := `{"arr":[1,2,3,2],"nested":[[1],[2]]}`
	var cases = []struct {
		name string
		spec interface{}
		exp  agg.Value
	}{
		{"size", agg.D{{Key: "$size", Val: "$arr"}}, int64(4)},
		{"size non-array", agg.D{{Key: "$size", Val: 3}}, nil},
		{"elemAt", agg.D{{Key: "$arrayElemAt", Val: []interface{}{"$arr", 1}}}, int64(2)},
		{"elemAt negative", agg.D{{Key: "$arrayElemAt", Val: []interface{}{"$arr", -1}}}, int64(2)},
		{"elemAt out of range", agg.D{{Key: "$arrayElemAt", Val: []interface{}{"$arr", 9}}}, nil},
		{"slice", agg.D{{Key: "$slice", Val: []interface{}{"$arr", 2}}}, []agg.Value{int64(1), int64(2)}},
		{"slice skip", agg.D{{Key: "$slice", Val: []interface{}{"$arr", 1, 2}}}, []agg.Value{int64(2), int64(3)}},
		{"indexOf", agg.D{{Key: "$indexOfArray", Val: []interface{}{"$arr", 2}}}, int64(1)},
		{"indexOf absent", agg.D{{Key: "$indexOfArray", Val: []interface{}{"$arr", 9}}}, int64(-1)},
		{"concatArrays", agg.D{{Key: "$concatArrays", Val: []interface{}{"$nested.0", "$nested.1"}}}, []agg.Value{int64(1), int64(2)}},
		{"push", agg.D{{Key: "$push", Val: []interface{}{"$arr", 9}}}, []agg.Value{int64(1), int64(2), int64(3), int64(2), int64(9)}},
		{"addToSet present", agg.D{{Key: "$addToSet", Val: []interface{}{"$arr", 2}}}, []agg.Value{int64(1), int64(2), int64(3), int64(2)}},
		{"in", agg.D{{Key: "$in", Val: []interface{}{2, "$arr"}}}, true},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.exp, evalOn(t, doc, tt.spec))
		})
	}
}

func TestMapFilterReduce(t *testing.T) {
	require := require.New(t)
	doc := `{"arr":[1,2,3]}`

	mapped := evalOn(t, doc, agg.D{{Key: "$map", Val: agg.D{
		{Key: "input", Val: "$arr"},
		{Key: "in", Val: agg.D{{Key: "$multiply", Val: []interface{}{"$$this", 10}}}},
	}}})
	require.Equal([]agg.Value{int64(10), int64(20), int64(30)}, mapped)

	filtered := evalOn(t, doc, agg.D{{Key: "$filter", Val: agg.D{
		{Key: "input", Val: "$arr"},
		{Key: "cond", Val: agg.D{{Key: "$gte", Val: []interface{}{"$$this", 2}}}},
	}}})
	require.Equal([]agg.Value{int64(2), int64(3)}, filtered)

	reduced := evalOn(t, doc, agg.D{{Key: "$reduce", Val: agg.D{
		{Key: "input", Val: "$arr"},
		{Key: "initialValue", Val: 0},
		{Key: "in", Val: agg.D{{Key: "$add", Val: []interface{}{"$$value", "$$this"}}}},
	}}})
	require.Equal(int64(6), reduced)

	// named iteration variable via "as"
	aliased := evalOn(t, doc, agg.D{{Key: "$map", Val: agg.D{
		{Key: "input", Val: "$arr"},
		{Key: "as", Val: "item"},
		{Key: "in", Val: agg.D{{Key: "$add", Val: []interface{}{"$$item", 1}}}},
	}}})
	require.Equal([]agg.Value{int64(2), int64(3), int64(4)}, aliased)
}

func TestTypeOperators(t *testing.T) {
	doc := `{"i":1,"f":1.5,"s":"x","b":true,"n":null,"arr":[],"o":{}}`
	var cases = []struct {
		name string
		spec interface{}
		exp  agg.Value
	}{
		{"type number", agg.D{{Key: "$type", Val: "$i"}}, "number"},
		{"type string", agg.D{{Key: "$type", Val: "$s"}}, "string"},
		{"type bool", agg.D{{Key: "$type", Val: "$b"}}, "bool"},
		{"type null", agg.D{{Key: "$type", Val: "$n"}}, "null"},
		{"type array", agg.D{{Key: "$type", Val: "$arr"}}, "array"},
		{"type object", agg.D{{Key: "$type", Val: "$o"}}, "object"},
		{"isNumber int", agg.D{{Key: "$isNumber", Val: "$i"}}, true},
		{"isNumber string", agg.D{{Key: "$isNumber", Val: "$s"}}, false},
		{"isArray", agg.D{{Key: "$isArray", Val: "$arr"}}, true},
		{"ifNull hit", agg.D{{Key: "$ifNull", Val: []interface{}{"$n", "fallback"}}}, "fallback"},
		{"ifNull pass", agg.D{{Key: "$ifNull", Val: []interface{}{"$i", "fallback"}}}, int64(1)},
		{"coalesce", agg.D{{Key: "$coalesce", Val: []interface{}{"$n", "$zz", "$s"}}}, "x"},
		{"coalesce all null", agg.D{{Key: "$coalesce", Val: []interface{}{"$n", "$zz"}}}, nil},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.exp, evalOn(t, doc, tt.spec))
		})
	}
}

func TestMergeObjects(t *testing.T) {
	require := require.New(t)

	out := evalOn(t, `{"a":{"x":1,"y":2},"b":{"y":3},"s":"nope"}`,
		agg.D{{Key: "$mergeObjects", Val: []interface{}{"$a", "$s", "$b"}}})
	doc := out.(*agg.Document)
	require.Equal([]string{"x", "y"}, doc.Keys())
	y, _ := doc.Get("y")
	require.Equal(int64(3), y)
}

func TestConditionals(t *testing.T) {
	require := require.New(t)
	doc := `{"a":5}`

	out := evalOn(t, doc, agg.D{{Key: "$cond", Val: agg.D{
		{Key: "if", Val: agg.D{{Key: "$gt", Val: []interface{}{"$a", 3}}}},
		{Key: "then", Val: "big"},
		{Key: "else", Val: "small"},
	}}})
	require.Equal("big", out)

	out = evalOn(t, doc, agg.D{{Key: "$switch", Val: agg.D{
		{Key: "branches", Val: []interface{}{
			agg.D{{Key: "case", Val: agg.D{{Key: "$lt", Val: []interface{}{"$a", 3}}}}, {Key: "then", Val: "low"}},
			agg.D{{Key: "case", Val: agg.D{{Key: "$lt", Val: []interface{}{"$a", 10}}}}, {Key: "then", Val: "mid"}},
		}},
		{Key: "default", Val: "high"},
	}}})
	require.Equal("mid", out)

	// no branch matches and no default: Null
	out = evalOn(t, doc, agg.D{{Key: "$switch", Val: agg.D{
		{Key: "branches", Val: []interface{}{
			agg.D{{Key: "case", Val: false}, {Key: "then", Val: "never"}},
		}},
	}}})
	require.Nil(out)
}

func TestDateOperators(t *testing.T) {
	require := require.New(t)

	doc := agg.NewDocumentFrom(agg.D{{Key: "d", Val: time.Date(2023, 11, 5, 14, 0, 0, 0, time.UTC)}})
	e, err := Parse(agg.Normalize(agg.D{{Key: "$year", Val: "$d"}}))
	require.NoError(err)
	require.Equal(int64(2023), Evaluate(e, NewEnv(doc, testNow)))

	e, err = Parse(agg.Normalize(agg.D{{Key: "$month", Val: "$d"}}))
	require.NoError(err)
	require.Equal(int64(11), Evaluate(e, NewEnv(doc, testNow)))

	e, err = Parse(agg.Normalize(agg.D{{Key: "$hour", Val: "$d"}}))
	require.NoError(err)
	require.Equal(int64(14), Evaluate(e, NewEnv(doc, testNow)))

	// 2023-11-05 is a Sunday: dayOfWeek is 1
	e, err = Parse(agg.Normalize(agg.D{{Key: "$dayOfWeek", Val: "$d"}}))
	require.NoError(err)
	require.Equal(int64(1), Evaluate(e, NewEnv(doc, testNow)))
}

func TestSystemVariables(t *testing.T) {
	require := require.New(t)

	doc, err := agg.ParseDocument([]byte(`{"a":1}`))
	require.NoError(err)

	e, err := Parse("$$NOW")
	require.NoError(err)
	require.Equal(testNow, Evaluate(e, NewEnv(doc, testNow)))

	e, err = Parse("$$ROOT")
	require.NoError(err)
	require.Equal(doc, Evaluate(e, NewEnv(doc, testNow)))

	e, err = Parse("$$CURRENT.a")
	require.NoError(err)
	require.Equal(int64(1), Evaluate(e, NewEnv(doc, testNow)))
}

func TestLiteralEscape(t *testing.T) {
	require := require.New(t)

	out := evalOn(t, `{}`, agg.D{{Key: "$literal", Val: "$notAField"}})
	require.Equal("$notAField", out)
}

func TestParseErrors(t *testing.T) {
	require := require.New(t)

	_, err := Parse(agg.Normalize(agg.D{{Key: "$noSuchOp", Val: 1}}))
	require.True(agg.ErrUnsupportedOperator.Is(err))

	_, err = Parse(agg.Normalize(agg.D{{Key: "$divide", Val: []interface{}{1}}}))
	require.True(agg.ErrParse.Is(err))
}
