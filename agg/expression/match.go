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
	"regexp"
	"strings"

	"github.com/dolthub/go-agg-engine/agg"
)

// Match semantics differ from expression semantics: null or missing on
// either side of a comparison is compare-false, `{field: null}` matches
// both present-null and missing, and `$exists` distinguishes the two.

// MatchInfo carries planner-relevant facts extracted while parsing a $match
// spec: regex literals for the trigram prefilter, text queries for the
// Bloom prefilter, and whether $expr is present.
type MatchInfo struct {
	RegexFields map[string]string // field -> pattern
	TextQueries []TextQuery
	HasExpr     bool
	ExprAST     Expr
}

// TextQuery is a parsed $text predicate.
type TextQuery struct {
	Search string
	Field  string // empty: search all string fields
}

// ParseMatch compiles a $match query document into a boolean expression
// with match-context semantics.
func ParseMatch(spec agg.Value) (Expr, *MatchInfo, error) {
	info := &MatchInfo{RegexFields: map[string]string{}}
	e, err := parseMatchDoc(agg.Normalize(spec), info)
	if err != nil {
		return nil, nil, err
	}
	return e, info, nil
}

func parseMatchDoc(spec agg.Value, info *MatchInfo) (Expr, error) {
	doc, ok := spec.(*agg.Document)
	if !ok {
		return nil, agg.ErrParse.New("$match requires a document")
	}
	var conj []Expr
	for _, k := range doc.Keys() {
		v, _ := doc.Get(k)
		switch k {
		case "$and", "$or", "$nor":
			arr, ok := v.([]agg.Value)
			if !ok {
				return nil, agg.ErrParse.New(k + " requires an array")
			}
			var subs []Expr
			for _, sub := range arr {
				se, err := parseMatchDoc(sub, info)
				if err != nil {
					return nil, err
				}
				subs = append(subs, se)
			}
			switch k {
			case "$and":
				conj = append(conj, &matchAll{subs})
			case "$or":
				conj = append(conj, &matchAny{subs})
			case "$nor":
				conj = append(conj, &matchNone{subs})
			}
		case "$expr":
			inner, err := Parse(v)
			if err != nil {
				return nil, err
			}
			info.HasExpr = true
			info.ExprAST = inner
			conj = append(conj, &matchExprPred{inner})
		case "$text":
			tq, err := parseTextQuery(v)
			if err != nil {
				return nil, err
			}
			info.TextQueries = append(info.TextQueries, tq)
			conj = append(conj, &matchText{tq})
		default:
			if strings.HasPrefix(k, "$") {
				return nil, agg.ErrParse.New("unknown top-level match operator " + k)
			}
			pred, err := parseFieldPred(k, v, info)
			if err != nil {
				return nil, err
			}
			conj = append(conj, pred)
		}
	}
	if len(conj) == 1 {
		return conj[0], nil
	}
	return &matchAll{conj}, nil
}

func parseTextQuery(v agg.Value) (TextQuery, error) {
	doc, ok := v.(*agg.Document)
	if !ok {
		return TextQuery{}, agg.ErrParse.New("$text requires a document")
	}
	searchV, ok := doc.Get("$search")
	if !ok {
		return TextQuery{}, agg.ErrParse.New("$text requires $search")
	}
	search, ok := searchV.(string)
	if !ok {
		return TextQuery{}, agg.ErrParse.New("$text $search must be a string")
	}
	tq := TextQuery{Search: search}
	if fieldV, ok := doc.Get("$field"); ok {
		if f, ok := fieldV.(string); ok {
			tq.Field = f
		}
	}
	return tq, nil
}

func parseFieldPred(field string, v agg.Value, info *MatchInfo) (Expr, error) {
	path, err := agg.ParsePath(field)
	if err != nil {
		return nil, err
	}
	if doc, ok := v.(*agg.Document); ok && isOperatorDoc(doc) {
		var preds []Expr
		var regexPattern string
		var regexOptions string
		for _, op := range doc.Keys() {
			arg, _ := doc.Get(op)
			switch op {
			case "$regex":
				s, ok := arg.(string)
				if !ok {
					return nil, agg.ErrParse.New("$regex must be a string")
				}
				regexPattern = s
			case "$options":
				s, _ := arg.(string)
				regexOptions = s
			case "$exists":
				preds = append(preds, &matchExists{path: path, want: agg.Truthy(arg)})
			case "$in", "$nin":
				arr, ok := arg.([]agg.Value)
				if !ok {
					return nil, agg.ErrParse.New(op + " requires an array")
				}
				preds = append(preds, &matchIn{path: path, set: arr, negate: op == "$nin"})
			case "$eq", "$ne", "$gt", "$gte", "$lt", "$lte":
				preds = append(preds, &matchCompare{path: path, op: op, target: arg})
			case "$not":
				inner, err := parseFieldPred(field, arg, info)
				if err != nil {
					return nil, err
				}
				preds = append(preds, &matchNone{[]Expr{inner}})
			default:
				return nil, agg.ErrParse.New(fmt.Sprintf("unknown match operator %s on field %s", op, field))
			}
		}
		if regexPattern != "" {
			re, err := compileRegex(regexPattern, regexOptions)
			if err != nil {
				return nil, err
			}
			info.RegexFields[field] = regexPattern
			preds = append(preds, &matchRegex{path: path, re: re})
		}
		if len(preds) == 1 {
			return preds[0], nil
		}
		return &matchAll{preds}, nil
	}
	return &matchCompare{path: path, op: "$eq", target: v}, nil
}

func isOperatorDoc(doc *agg.Document) bool {
	keys := doc.Keys()
	if len(keys) == 0 {
		return false
	}
	for _, k := range keys {
		if !strings.HasPrefix(k, "$") {
			return false
		}
	}
	return true
}

func compileRegex(pattern, options string) (*regexp.Regexp, error) {
	var flags string
	if strings.Contains(options, "i") {
		flags += "i"
	}
	if strings.Contains(options, "s") {
		flags += "s"
	}
	if strings.Contains(options, "m") {
		flags += "m"
	}
	if flags != "" {
		pattern = "(?" + flags + ")" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, agg.ErrParse.New("invalid $regex: " + err.Error())
	}
	return re, nil
}

type matchAll struct{ preds []Expr }

func (m *matchAll) Eval(env *Env) (agg.Value, error) {
	for _, p := range m.preds {
		v, err := p.Eval(env)
		if err != nil {
			return nil, err
		}
		if !agg.Truthy(v) {
			return false, nil
		}
	}
	return true, nil
}

type matchAny struct{ preds []Expr }

func (m *matchAny) Eval(env *Env) (agg.Value, error) {
	for _, p := range m.preds {
		v, err := p.Eval(env)
		if err != nil {
			return nil, err
		}
		if agg.Truthy(v) {
			return true, nil
		}
	}
	return false, nil
}

type matchNone struct{ preds []Expr }

func (m *matchNone) Eval(env *Env) (agg.Value, error) {
	for _, p := range m.preds {
		v, err := p.Eval(env)
		if err != nil {
			return nil, err
		}
		if agg.Truthy(v) {
			return false, nil
		}
	}
	return true, nil
}

// matchCompare implements {field: value} and the $eq..$lte family. The
// predicate matches the field itself or, for array fields, any element.
type matchCompare struct {
	path   agg.Path
	op     string
	target agg.Value
}

func (m *matchCompare) Eval(env *Env) (agg.Value, error) {
	v := m.path.Resolve(env.Doc)
	switch m.op {
	case "$eq":
		return matchEq(v, m.target), nil
	case "$ne":
		return !matchEq(v, m.target), nil
	}
	ok := compareMatches(v, m.target, m.op)
	if !ok {
		if arr, isArr := v.([]agg.Value); isArr {
			for _, e := range arr {
				if compareMatches(e, m.target, m.op) {
					return true, nil
				}
			}
		}
	}
	return ok, nil
}

func matchEq(v, target agg.Value) bool {
	if target == nil {
		// {field: null} matches present-null and missing
		return agg.IsNullOrMissing(v)
	}
	if agg.Equal(v, target) {
		return true
	}
	if arr, ok := v.([]agg.Value); ok {
		for _, e := range arr {
			if agg.Equal(e, target) {
				return true
			}
		}
	}
	return false
}

func compareMatches(v, target agg.Value, op string) bool {
	if agg.IsNullOrMissing(v) || agg.IsNullOrMissing(target) {
		return false
	}
	if !agg.SameRank(v, target) {
		return false
	}
	c := agg.Compare(v, target)
	switch op {
	case "$gt":
		return c > 0
	case "$gte":
		return c >= 0
	case "$lt":
		return c < 0
	case "$lte":
		return c <= 0
	}
	return false
}

type matchExists struct {
	path agg.Path
	want bool
}

func (m *matchExists) Eval(env *Env) (agg.Value, error) {
	present := !agg.IsMissing(m.path.Resolve(env.Doc))
	return present == m.want, nil
}

type matchIn struct {
	path   agg.Path
	set    []agg.Value
	negate bool
}

func (m *matchIn) Eval(env *Env) (agg.Value, error) {
	v := m.path.Resolve(env.Doc)
	found := false
	for _, member := range m.set {
		if matchEq(v, member) {
			found = true
			break
		}
	}
	return found != m.negate, nil
}

type matchRegex struct {
	path agg.Path
	re   *regexp.Regexp
}

func (m *matchRegex) Eval(env *Env) (agg.Value, error) {
	v := m.path.Resolve(env.Doc)
	switch t := v.(type) {
	case string:
		return m.re.MatchString(t), nil
	case []agg.Value:
		for _, e := range t {
			if s, ok := e.(string); ok && m.re.MatchString(s) {
				return true, nil
			}
		}
	}
	return false, nil
}

// matchExprPred adapts an aggregation expression into a predicate via
// truthiness.
type matchExprPred struct{ inner Expr }

func (m *matchExprPred) Eval(env *Env) (agg.Value, error) {
	v, err := m.inner.Eval(env)
	if err != nil {
		return nil, err
	}
	return agg.Truthy(v), nil
}

// matchText is a naive all-token containment check; the Bloom prefilter in
// front of it is the fast path.
type matchText struct{ q TextQuery }

func (m *matchText) Eval(env *Env) (agg.Value, error) {
	tokens := Tokenize(m.q.Search)
	if len(tokens) == 0 {
		return false, nil
	}
	var haystack []string
	if m.q.Field != "" {
		if v := agg.MustPath(m.q.Field).Resolve(env.Doc); !agg.IsMissing(v) {
			if s, ok := v.(string); ok {
				haystack = append(haystack, strings.ToLower(s))
			}
		}
	} else {
		for _, k := range env.Doc.Keys() {
			if v, _ := env.Doc.Get(k); v != nil {
				if s, ok := v.(string); ok {
					haystack = append(haystack, strings.ToLower(s))
				}
			}
		}
	}
	for _, tok := range tokens {
		found := false
		for _, h := range haystack {
			if strings.Contains(h, tok) {
				found = true
				break
			}
		}
		if !found {
			return false, nil
		}
	}
	return true, nil
}

// Tokenize lower-cases and splits a text query on non-alphanumeric runes.
func Tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	out := fields[:0]
	for _, f := range fields {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
