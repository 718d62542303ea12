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

package prefilter

import (
	"fmt"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dolthub/go-agg-engine/agg"
)

func corpus(t *testing.T, values []string) ([]uint32, func(uint32) *agg.Document) {
	t.Helper()
	docs := make([]*agg.Document, len(values))
	ids := make([]uint32, len(values))
	for i, v := range values {
		docs[i] = agg.NewDocumentFrom(agg.D{{Key: "s", Val: v}})
		ids[i] = uint32(i)
	}
	return ids, func(id uint32) *agg.Document { return docs[id] }
}

func TestExtractLiterals(t *testing.T) {
	var cases = []struct {
		pattern string
		exp     []string
	}{
		{"hello", []string{"hello"}},
		{"^hello world$", []string{"hello world"}},
		{"foo.*bar", []string{"foo", "bar"}},
		{"foo+baz", []string{"foo", "baz"}},
		{"ab", nil},              // too short for a trigram
		{"a|b", nil},             // alternation defeats extraction
		{"colou?r", []string{"colo"}}, // the optional atom truncates the run
		{"[abc]xyzw", []string{"xyzw"}},
		{"foo\\.bar", []string{"foo.bar"}},
		{"abc(def)*ghi", []string{"abc", "ghi"}}, // group contents are opaque
	}
	for _, tt := range cases {
		t.Run(tt.pattern, func(t *testing.T) {
			require.Equal(t, tt.exp, ExtractLiterals(tt.pattern))
		})
	}
}

func TestTrigramCandidatesSuperset(t *testing.T) {
	require := require.New(t)

	values := []string{
		"the quick brown fox", "lazy dog sleeps", "quick silver",
		"brown bread", "foxtrot dance", "nothing here",
	}
	ids, get := corpus(t, values)
	ix := BuildTrigramIndex(ids, get, []string{"s"})

	pattern := "quick.*fox"
	set, ok := ix.Candidates("s", pattern)
	require.True(ok)

	// zero false negatives: every true match is in the candidate set
	re := regexp.MustCompile(pattern)
	for i, v := range values {
		if re.MatchString(v) {
			require.True(set.MayMatch(uint32(i)), "row %d (%q) wrongly excluded", i, v)
		}
	}
	// and the obvious non-candidates are excluded
	require.False(set.MayMatch(5))
}

func TestTrigramUnusablePatternFallsBack(t *testing.T) {
	require := require.New(t)

	ids, get := corpus(t, []string{"aaa", "bbb"})
	ix := BuildTrigramIndex(ids, get, []string{"s"})

	_, ok := ix.Candidates("s", "a|b")
	require.False(ok)
	_, ok = ix.Candidates("s", "..")
	require.False(ok)
	_, ok = ix.Candidates("missing", "hello")
	require.False(ok)
}

func TestTrigramAbsentLiteralProvesEmpty(t *testing.T) {
	require := require.New(t)

	ids, get := corpus(t, []string{"alpha", "beta"})
	ix := BuildTrigramIndex(ids, get, []string{"s"})

	set, ok := ix.Candidates("s", "gamma")
	require.True(ok)
	require.Equal(uint64(0), set.Count())
}

func TestBloomFilterMembership(t *testing.T) {
	require := require.New(t)

	f := NewBloomFilter(1000)
	for i := 0; i < 500; i++ {
		f.Add(fmt.Sprintf("token%d", i))
	}
	for i := 0; i < 500; i++ {
		require.True(f.MayContain(fmt.Sprintf("token%d", i)))
	}
	misses := 0
	for i := 0; i < 1000; i++ {
		if !f.MayContain(fmt.Sprintf("absent%d", i)) {
			misses++
		}
	}
	// false positives allowed but must be rare
	require.Greater(misses, 900)
}

func TestBloomIndexProvesUnsatisfiable(t *testing.T) {
	require := require.New(t)

	tokenize := func(s string) []string { return strings.Fields(strings.ToLower(s)) }
	ids, get := corpus(t, []string{"hello world", "other text"})
	ix := BuildBloomIndex(ids, get, []string{"s"}, tokenize)

	require.True(ix.MayMatchAll("s", []string{"hello"}))
	require.False(ix.MayMatchAll("s", []string{"zebra"}))
	require.False(ix.MayMatchAll("s", []string{"hello", "zebra"}))

	// unknown fields degrade to the full scan
	require.True(ix.MayMatchAll("nope", []string{"zebra"}))

	// field-less queries consult the whole-document filter
	require.True(ix.MayMatchAll("", []string{"world"}))
	require.False(ix.MayMatchAll("", []string{"zebra"}))
}
