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
	"github.com/spaolacci/murmur3"

	"github.com/dolthub/go-agg-engine/agg"
)

const (
	bloomBitsPerToken = 10
	bloomHashes       = 7
)

// BloomFilter is a per-field token filter: a token that tests negative
// appears in no live row, so an all-token AND can prove a $text query
// unsatisfiable without scanning.
type BloomFilter struct {
	bits  []uint64
	nbits uint64
}

// NewBloomFilter sizes the filter for the expected token count.
func NewBloomFilter(expectedTokens int) *BloomFilter {
	if expectedTokens < 64 {
		expectedTokens = 64
	}
	nbits := uint64(expectedTokens * bloomBitsPerToken)
	return &BloomFilter{
		bits:  make([]uint64, (nbits+63)/64),
		nbits: nbits,
	}
}

// Add inserts a token using double hashing over two murmur3 halves.
func (f *BloomFilter) Add(token string) {
	h1, h2 := murmur3.Sum128([]byte(token))
	for i := uint64(0); i < bloomHashes; i++ {
		bit := (h1 + i*h2) % f.nbits
		f.bits[bit/64] |= 1 << (bit % 64)
	}
}

// MayContain reports whether the token was possibly added.
func (f *BloomFilter) MayContain(token string) bool {
	h1, h2 := murmur3.Sum128([]byte(token))
	for i := uint64(0); i < bloomHashes; i++ {
		bit := (h1 + i*h2) % f.nbits
		if f.bits[bit/64]&(1<<(bit%64)) == 0 {
			return false
		}
	}
	return true
}

// BloomIndex holds one token filter per indexed field plus a whole-document
// filter for field-less $text queries.
type BloomIndex struct {
	fields map[string]*BloomFilter
	all    *BloomFilter
}

// BuildBloomIndex tokenizes every string value of the given fields across
// the live rows. An empty field list indexes all top-level string fields
// into the whole-document filter.
func BuildBloomIndex(ids []uint32, get func(uint32) *agg.Document, fields []string, tokenize func(string) []string) *BloomIndex {
	ix := &BloomIndex{
		fields: map[string]*BloomFilter{},
		all:    NewBloomFilter(len(ids) * 8),
	}
	paths := map[string]agg.Path{}
	for _, f := range fields {
		if p, err := agg.ParsePath(f); err == nil {
			paths[f] = p
			ix.fields[f] = NewBloomFilter(len(ids) * 4)
		}
	}
	for _, id := range ids {
		doc := get(id)
		if doc == nil {
			continue
		}
		for f, p := range paths {
			if s, ok := p.Resolve(doc).(string); ok {
				for _, tok := range tokenize(s) {
					ix.fields[f].Add(tok)
				}
			}
		}
		for _, k := range doc.Keys() {
			if v, _ := doc.Get(k); v != nil {
				if s, ok := v.(string); ok {
					for _, tok := range tokenize(s) {
						ix.all.Add(tok)
					}
				}
			}
		}
	}
	return ix
}

// MayMatchAll ANDs the per-token membership tests: false proves that no
// row can satisfy the query.
func (ix *BloomIndex) MayMatchAll(field string, tokens []string) bool {
	filter := ix.all
	if field != "" {
		f, ok := ix.fields[field]
		if !ok {
			return true // unknown field: degrade to full scan
		}
		filter = f
	}
	for _, tok := range tokens {
		if !filter.MayContain(tok) {
			return false
		}
	}
	return true
}
