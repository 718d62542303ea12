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
	"strconv"
	"strings"
)

// Path is a parsed dotted field path, e.g. "a.b.c".
type Path struct {
	raw   string
	parts []string
}

// ParsePath splits a dotted path. An empty path or empty segment is a parse
// error.
func ParsePath(raw string) (Path, error) {
	if raw == "" {
		return Path{}, ErrParse.New("empty field path")
	}
	parts := strings.Split(raw, ".")
	for _, p := range parts {
		if p == "" {
			return Path{}, ErrParse.New("empty segment in field path " + strconv.Quote(raw))
		}
	}
	return Path{raw: raw, parts: parts}, nil
}

// MustPath is ParsePath for compile-time-known paths.
func MustPath(raw string) Path {
	p, err := ParsePath(raw)
	if err != nil {
		panic(err)
	}
	return p
}

// String returns the original dotted form.
func (p Path) String() string { return p.raw }

// Head returns the first segment.
func (p Path) Head() string { return p.parts[0] }

// Parts returns the segments. The slice is shared.
func (p Path) Parts() []string { return p.parts }

// Resolve walks the document graph. A missing intermediate or leaf yields
// Missing; an explicit null stays null. Numeric segments index arrays.
func (p Path) Resolve(doc *Document) Value {
	var cur Value = doc
	for _, seg := range p.parts {
		switch t := cur.(type) {
		case *Document:
			v, ok := t.Get(seg)
			if !ok {
				return Missing
			}
			cur = v
		case []Value:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(t) {
				return Missing
			}
			cur = t[idx]
		default:
			return Missing
		}
	}
	return cur
}

// Store writes v at the path inside doc, creating intermediate documents as
// needed. Intermediate non-document values are replaced.
func (p Path) Store(doc *Document, v Value) {
	cur := doc
	for i, seg := range p.parts {
		if i == len(p.parts)-1 {
			cur.Set(seg, v)
			return
		}
		next, ok := cur.Get(seg)
		sub, isDoc := next.(*Document)
		if !ok || !isDoc {
			sub = NewDocument()
			cur.Set(seg, sub)
		}
		cur = sub
	}
}

// Remove deletes the path from doc. Missing intermediates are a no-op.
func (p Path) Remove(doc *Document) {
	cur := doc
	for i, seg := range p.parts {
		if i == len(p.parts)-1 {
			cur.Delete(seg)
			return
		}
		next, ok := cur.Get(seg)
		if !ok {
			return
		}
		sub, isDoc := next.(*Document)
		if !isDoc {
			return
		}
		cur = sub
	}
}
