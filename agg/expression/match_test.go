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

func matches(t *testing.T, docJSON string, query interface{}) bool {
	t.Helper()
	doc, err := agg.ParseDocument([]byte(docJSON))
	require.NoError(t, err)
	pred, _, err := ParseMatch(agg.Normalize(query))
	require.NoError(t, err)
	return agg.Truthy(Evaluate(pred, NewEnv(doc, testNow)))
}

func TestMatchEquality(t *testing.T) {
	var cases = []struct {
		name  string
		doc   string
		query interface{}
		exp   bool
	}{
		{"scalar eq", `{"a":2}`, agg.D{{Key: "a", Val: 2}}, true},
		{"scalar eq promotes", `{"a":2}`, agg.D{{Key: "a", Val: 2.0}}, true},
		{"scalar ne", `{"a":3}`, agg.D{{Key: "a", Val: 2}}, false},
		{"array contains", `{"tags":["x","y"]}`, agg.D{{Key: "tags", Val: "y"}}, true},
		{"dotted path", `{"a":{"b":5}}`, agg.D{{Key: "a.b", Val: 5}}, true},
		{"null matches null", `{"a":null}`, agg.D{{Key: "a", Val: nil}}, true},
		{"null matches missing", `{}`, agg.D{{Key: "a", Val: nil}}, true},
		{"null vs value", `{"a":1}`, agg.D{{Key: "a", Val: nil}}, false},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.exp, matches(t, tt.doc, tt.query))
		})
	}
}

func TestMatchComparisons(t *testing.T) {
	var cases = []struct {
		name  string
		doc   string
		query interface{}
		exp   bool
	}{
		{"gte", `{"a":2}`, agg.D{{Key: "a", Val: agg.D{{Key: "$gte", Val: 2}}}}, true},
		{"gt fails", `{"a":2}`, agg.D{{Key: "a", Val: agg.D{{Key: "$gt", Val: 2}}}}, false},
		{"lt", `{"a":2}`, agg.D{{Key: "a", Val: agg.D{{Key: "$lt", Val: 3}}}}, true},
		{"null is compare-false", `{"a":null}`, agg.D{{Key: "a", Val: agg.D{{Key: "$gt", Val: 0}}}}, false},
		{"missing is compare-false", `{}`, agg.D{{Key: "a", Val: agg.D{{Key: "$gt", Val: 0}}}}, false},
		{"cross-type is false", `{"a":"5"}`, agg.D{{Key: "a", Val: agg.D{{Key: "$gt", Val: 0}}}}, false},
		{"array any-element", `{"a":[1,10]}`, agg.D{{Key: "a", Val: agg.D{{Key: "$gt", Val: 5}}}}, true},
		{"ne on missing", `{}`, agg.D{{Key: "a", Val: agg.D{{Key: "$ne", Val: 2}}}}, true},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.exp, matches(t, tt.doc, tt.query))
		})
	}
}

func TestMatchExists(t *testing.T) {
	var cases = []struct {
		name  string
		doc   string
		query interface{}
		exp   bool
	}{
		{"present", `{"a":1}`, agg.D{{Key: "a", Val: agg.D{{Key: "$exists", Val: true}}}}, true},
		{"present and null", `{"a":null}`, agg.D{{Key: "a", Val: agg.D{{Key: "$exists", Val: true}}}}, true},
		{"missing", `{}`, agg.D{{Key: "a", Val: agg.D{{Key: "$exists", Val: true}}}}, false},
		{"absent wanted", `{}`, agg.D{{Key: "a", Val: agg.D{{Key: "$exists", Val: false}}}}, true},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.exp, matches(t, tt.doc, tt.query))
		})
	}
}

func TestMatchInNin(t *testing.T) {
	require := require.New(t)

	in := agg.D{{Key: "a", Val: agg.D{{Key: "$in", Val: []interface{}{1, 2, 3}}}}}
	require.True(matches(t, `{"a":2}`, in))
	require.False(matches(t, `{"a":9}`, in))
	require.True(matches(t, `{"a":[9,3]}`, in))

	nin := agg.D{{Key: "a", Val: agg.D{{Key: "$nin", Val: []interface{}{1, 2}}}}}
	require.False(matches(t, `{"a":2}`, nin))
	require.True(matches(t, `{"a":9}`, nin))
	// $nin matches missing fields as well
	require.True(matches(t, `{}`, nin))
}

func TestMatchRegex(t *testing.T) {
	require := require.New(t)

	q := agg.D{{Key: "s", Val: agg.D{{Key: "$regex", Val: "^foo.*bar$"}}}}
	require.True(matches(t, `{"s":"foo-middle-bar"}`, q))
	require.False(matches(t, `{"s":"barfoo"}`, q))
	require.False(matches(t, `{"s":7}`, q))

	ci := agg.D{{Key: "s", Val: agg.D{{Key: "$regex", Val: "^foo"}, {Key: "$options", Val: "i"}}}}
	require.True(matches(t, `{"s":"FOObar"}`, ci))
}

func TestMatchLogicalConnectives(t *testing.T) {
	require := require.New(t)

	or := agg.D{{Key: "$or", Val: []interface{}{
		agg.D{{Key: "a", Val: 1}},
		agg.D{{Key: "b", Val: 2}},
	}}}
	require.True(matches(t, `{"a":1}`, or))
	require.True(matches(t, `{"b":2}`, or))
	require.False(matches(t, `{"a":9,"b":9}`, or))

	nor := agg.D{{Key: "$nor", Val: []interface{}{
		agg.D{{Key: "a", Val: 1}},
		agg.D{{Key: "b", Val: 2}},
	}}}
	require.False(matches(t, `{"a":1}`, nor))
	require.True(matches(t, `{"a":9,"b":9}`, nor))

	and := agg.D{{Key: "$and", Val: []interface{}{
		agg.D{{Key: "a", Val: agg.D{{Key: "$gte", Val: 1}}}},
		agg.D{{Key: "a", Val: agg.D{{Key: "$lt", Val: 5}}}},
	}}}
	require.True(matches(t, `{"a":3}`, and))
	require.False(matches(t, `{"a":7}`, and))

	not := agg.D{{Key: "a", Val: agg.D{{Key: "$not", Val: agg.D{{Key: "$gt", Val: 5}}}}}}
	require.True(matches(t, `{"a":3}`, not))
	require.False(matches(t, `{"a":7}`, not))
}

func TestMatchExpr(t *testing.T) {
	require := require.New(t)

	q := agg.D{{Key: "$expr", Val: agg.D{{Key: "$gt", Val: []interface{}{"$spent", "$budget"}}}}}
	require.True(matches(t, `{"spent":10,"budget":5}`, q))
	require.False(matches(t, `{"spent":1,"budget":5}`, q))

	_, info, err := ParseMatch(agg.Normalize(q))
	require.NoError(err)
	require.True(info.HasExpr)
}

func TestMatchInfoCollectsRegexAndText(t *testing.T) {
	require := require.New(t)

	_, info, err := ParseMatch(agg.Normalize(agg.D{
		{Key: "s", Val: agg.D{{Key: "$regex", Val: "abc.*"}}},
		{Key: "$text", Val: agg.D{{Key: "$search", Val: "hello world"}}},
	}))
	require.NoError(err)
	require.Equal("abc.*", info.RegexFields["s"])
	require.Len(info.TextQueries, 1)
	require.Equal("hello world", info.TextQueries[0].Search)
}

func TestTokenize(t *testing.T) {
	require := require.New(t)
	require.Equal([]string{"hello", "world", "42"}, Tokenize("Hello, WORLD! 42"))
	require.Empty(Tokenize("--- !!"))
}
