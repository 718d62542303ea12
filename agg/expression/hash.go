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
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/mitchellh/hashstructure/v2"

	"github.com/dolthub/go-agg-engine/agg"
)

// HashAST returns a stable 64-bit hash of an expression tree, the first
// half of the compilation cache key.
func HashAST(e Expr) uint64 {
	var b strings.Builder
	writeASTKey(&b, e)
	return xxhash.Sum64String(b.String())
}

func writeASTKey(b *strings.Builder, e Expr) {
	switch t := e.(type) {
	case *Literal:
		b.WriteString("L(")
		b.WriteString(agg.CanonicalKey(t.V))
		b.WriteString(")")
	case *FieldRef:
		b.WriteString("F(")
		b.WriteString(t.Path.String())
		b.WriteString(")")
	case *SystemVar:
		b.WriteString("V(")
		b.WriteString(t.Name)
		for _, r := range t.Rest {
			b.WriteString("." + r)
		}
		b.WriteString(")")
	case *ArrayExpr:
		b.WriteString("A[")
		for _, c := range t.Elems {
			writeASTKey(b, c)
			b.WriteString(",")
		}
		b.WriteString("]")
	case *DocExpr:
		b.WriteString("D{")
		for i, k := range t.Keys {
			b.WriteString(k + ":")
			writeASTKey(b, t.Exprs[i])
			b.WriteString(",")
		}
		b.WriteString("}")
	case *OpExpr:
		b.WriteString(t.Name + "(")
		for _, c := range t.Args {
			writeASTKey(b, c)
			b.WriteString(",")
		}
		b.WriteString(")")
	case *CondExpr:
		b.WriteString("$cond(")
		writeASTKey(b, t.If)
		b.WriteString(",")
		writeASTKey(b, t.Then)
		b.WriteString(",")
		if t.Else != nil {
			writeASTKey(b, t.Else)
		}
		b.WriteString(")")
	case *SwitchExpr:
		b.WriteString("$switch(")
		for _, br := range t.Branches {
			writeASTKey(b, br.Case)
			b.WriteString("=>")
			writeASTKey(b, br.Then)
			b.WriteString(",")
		}
		if t.Default != nil {
			b.WriteString("default=>")
			writeASTKey(b, t.Default)
		}
		b.WriteString(")")
	case *mapExpr:
		b.WriteString("$map(")
		writeASTKey(b, t.input)
		b.WriteString(",as=" + t.varName + ",")
		writeASTKey(b, t.body)
		b.WriteString(")")
	case *filterExpr:
		b.WriteString("$filter(")
		writeASTKey(b, t.input)
		b.WriteString(",as=" + t.varName + ",")
		writeASTKey(b, t.cond)
		b.WriteString(")")
	case *reduceExpr:
		b.WriteString("$reduce(")
		writeASTKey(b, t.input)
		b.WriteString(",")
		writeASTKey(b, t.init)
		b.WriteString(",")
		writeASTKey(b, t.body)
		b.WriteString(")")
	default:
		// Match predicates and any future node hash by their Go value.
		fmt.Fprintf(b, "?%T@%p", e, e)
	}
}

// TypeVector maps each referenced field path to its most common observed
// runtime type over the sample.
type TypeVector map[string]agg.Type

// HashTypeVector returns the second half of the compilation cache key.
func HashTypeVector(tv TypeVector) uint64 {
	h, err := hashstructure.Hash(tv, hashstructure.FormatV2, nil)
	if err != nil {
		return 0
	}
	return h
}

// SampleTypeVector observes up to maxSample documents and records the most
// common type per referenced field.
func SampleTypeVector(e Expr, sample []*agg.Document, maxSample int) TypeVector {
	paths := FieldRefs(e)
	tv := make(TypeVector, len(paths))
	if len(sample) > maxSample {
		sample = sample[:maxSample]
	}
	for _, p := range paths {
		counts := map[agg.Type]int{}
		for _, doc := range sample {
			counts[agg.TypeOf(p.Resolve(doc))]++
		}
		best, bestN := agg.TypeMissing, -1
		for t, n := range counts {
			if n > bestN {
				best, bestN = t, n
			}
		}
		tv[p.String()] = best
	}
	return tv
}
