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

// Package prefilter accelerates $regex and $text predicates with trigram
// posting lists and Bloom filters. A prefilter restricts the candidate set;
// it must never exclude a true match, and under any failure it degrades
// silently to the full scan.
package prefilter

import (
	"strings"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/cespare/xxhash/v2"

	"github.com/dolthub/go-agg-engine/agg"
)

// Set is a candidate row-id set produced by a prefilter.
type Set struct {
	bm *roaring.Bitmap
}

// MayMatch reports whether the row can possibly match. False means the
// predicate is definitely false for this row.
func (s *Set) MayMatch(id uint32) bool {
	return s.bm.Contains(id)
}

// Count returns the candidate count, for debug logs.
func (s *Set) Count() uint64 { return s.bm.GetCardinality() }

// EmptySet returns a candidate set that matches nothing, used when a
// prefilter proves a predicate unsatisfiable.
func EmptySet() *Set {
	return &Set{bm: roaring.New()}
}

// TrigramIndex holds per-field trigram posting lists over a collection.
type TrigramIndex struct {
	fields map[string]map[uint64]*roaring.Bitmap
}

// BuildTrigramIndex indexes the given fields of every live row.
func BuildTrigramIndex(ids []uint32, get func(uint32) *agg.Document, fields []string) *TrigramIndex {
	ix := &TrigramIndex{fields: map[string]map[uint64]*roaring.Bitmap{}}
	paths := map[string]agg.Path{}
	for _, f := range fields {
		p, err := agg.ParsePath(f)
		if err != nil {
			continue
		}
		paths[f] = p
		ix.fields[f] = map[uint64]*roaring.Bitmap{}
	}
	for _, id := range ids {
		doc := get(id)
		if doc == nil {
			continue
		}
		for f, p := range paths {
			s, ok := p.Resolve(doc).(string)
			if !ok {
				continue
			}
			postings := ix.fields[f]
			for _, tg := range trigramsOf(s) {
				bm, ok := postings[tg]
				if !ok {
					bm = roaring.New()
					postings[tg] = bm
				}
				bm.Add(id)
			}
		}
	}
	return ix
}

// Candidates intersects the posting lists of the literal trigrams extracted
// from the pattern. The second return is false when the pattern yields no
// usable trigrams, meaning the caller must fall back to the full scan.
func (ix *TrigramIndex) Candidates(field, pattern string) (*Set, bool) {
	postings, ok := ix.fields[field]
	if !ok {
		return nil, false
	}
	literals := ExtractLiterals(pattern)
	var acc *roaring.Bitmap
	usable := false
	for _, lit := range literals {
		for _, tg := range trigramsOf(lit) {
			usable = true
			bm, ok := postings[tg]
			if !ok {
				// a required trigram appears nowhere: no row can match
				return &Set{bm: roaring.New()}, true
			}
			if acc == nil {
				acc = bm.Clone()
			} else {
				acc.And(bm)
			}
		}
	}
	if !usable || acc == nil {
		return nil, false
	}
	return &Set{bm: acc}, true
}

func trigramsOf(s string) []uint64 {
	s = strings.ToLower(s)
	if len(s) < 3 {
		return nil
	}
	out := make([]uint64, 0, len(s)-2)
	for i := 0; i+3 <= len(s); i++ {
		out = append(out, xxhash.Sum64String(s[i:i+3]))
	}
	return out
}

// ExtractLiterals pulls the literal runs out of a regex pattern. Runs
// shorter than three bytes contribute no trigrams. Alternation disables
// extraction entirely: a pattern like `a|b` requires no single literal.
func ExtractLiterals(pattern string) []string {
	if strings.ContainsAny(pattern, "|") {
		return nil
	}
	var out []string
	var run strings.Builder
	flush := func() {
		if run.Len() >= 3 {
			out = append(out, run.String())
		}
		run.Reset()
	}
	i := 0
	for i < len(pattern) {
		c := pattern[i]
		switch c {
		case '\\':
			// escaped metacharacter: literal only for punctuation escapes
			if i+1 < len(pattern) && strings.IndexByte(`.+*?()[]{}^$\|`, pattern[i+1]) >= 0 {
				run.WriteByte(pattern[i+1])
				i += 2
				continue
			}
			flush()
			i += 2
		case '*', '?':
			// the preceding atom is optional: it cannot anchor a literal
			if run.Len() > 0 {
				s := run.String()
				run.Reset()
				if len(s) > 1 {
					run.WriteString(s[:len(s)-1])
				}
			}
			flush()
			i++
		case '.', '+', '^', '$':
			flush()
			i++
		case '{':
			// a count may have a zero minimum, so the preceding atom is not
			// guaranteed either
			if run.Len() > 0 {
				s := run.String()
				run.Reset()
				if len(s) > 1 {
					run.WriteString(s[:len(s)-1])
				}
			}
			flush()
			for i < len(pattern) && pattern[i] != '}' {
				i++
			}
			i++
		case '(':
			// groups are opaque: a trailing quantifier could make the whole
			// group optional, so nothing inside may anchor a literal
			flush()
			depth := 0
			for i < len(pattern) {
				switch pattern[i] {
				case '(':
					depth++
				case ')':
					depth--
				}
				i++
				if depth == 0 {
					break
				}
			}
		case ')', ']', '}':
			flush()
			i++
		case '[':
			flush()
			for i < len(pattern) && pattern[i] != ']' {
				i++
			}
			i++
		default:
			run.WriteByte(c)
			i++
		}
	}
	flush()
	return out
}
