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

	"github.com/dolthub/go-agg-engine/agg"
)

// Parse turns a pipeline expression spec into an AST. Strings starting with
// $ are field references, $$ are system variables, arrays are element-wise
// expressions, documents with a single $-operator key are operator calls and
// any other document is a document constructor.
func Parse(spec agg.Value) (Expr, error) {
	spec = agg.Normalize(spec)
	switch t := spec.(type) {
	case string:
		if strings.HasPrefix(t, "$$") {
			return parseSystemVar(t)
		}
		if strings.HasPrefix(t, "$") {
			path, err := agg.ParsePath(strings.TrimPrefix(t, "$"))
			if err != nil {
				return nil, err
			}
			return &FieldRef{Path: path}, nil
		}
		return &Literal{V: t}, nil
	case []agg.Value:
		elems := make([]Expr, len(t))
		for i, e := range t {
			sub, err := Parse(e)
			if err != nil {
				return nil, err
			}
			elems[i] = sub
		}
		return &ArrayExpr{Elems: elems}, nil
	case *agg.Document:
		return parseDoc(t)
	default:
		return &Literal{V: t}, nil
	}
}

func parseSystemVar(s string) (Expr, error) {
	name := strings.TrimPrefix(s, "$$")
	if name == "" {
		return nil, agg.ErrParse.New("empty system variable")
	}
	parts := strings.Split(name, ".")
	return &SystemVar{Name: parts[0], Rest: parts[1:]}, nil
}

func parseDoc(doc *agg.Document) (Expr, error) {
	keys := doc.Keys()
	if len(keys) == 1 && strings.HasPrefix(keys[0], "$") {
		op := keys[0]
		arg, _ := doc.Get(op)
		switch op {
		case "$literal":
			return &Literal{V: arg}, nil
		case "$cond":
			return parseCond(arg)
		case "$switch":
			return parseSwitch(arg)
		case "$map":
			return parseMap(arg)
		case "$filter":
			return parseFilter(arg)
		case "$reduce":
			return parseReduce(arg)
		default:
			return parseOp(op, arg)
		}
	}
	// document constructor
	exprs := make([]Expr, len(keys))
	for i, k := range keys {
		if strings.HasPrefix(k, "$") {
			return nil, agg.ErrParse.New(fmt.Sprintf("operator %s mixed into document constructor", k))
		}
		v, _ := doc.Get(k)
		sub, err := Parse(v)
		if err != nil {
			return nil, err
		}
		exprs[i] = sub
	}
	return &DocExpr{Keys: append([]string(nil), keys...), Exprs: exprs}, nil
}

func parseOp(name string, arg agg.Value) (Expr, error) {
	b, ok := builtins[name]
	if !ok {
		return nil, agg.ErrUnsupportedOperator.New(name)
	}
	var args []Expr
	switch t := arg.(type) {
	case []agg.Value:
		args = make([]Expr, len(t))
		for i, e := range t {
			sub, err := Parse(e)
			if err != nil {
				return nil, err
			}
			args[i] = sub
		}
	default:
		sub, err := Parse(arg)
		if err != nil {
			return nil, err
		}
		args = []Expr{sub}
	}
	if len(args) < b.minArgs || (b.maxArgs >= 0 && len(args) > b.maxArgs) {
		return nil, agg.ErrParse.New(fmt.Sprintf("%s takes %d..%d operands, got %d", name, b.minArgs, b.maxArgs, len(args)))
	}
	return &OpExpr{Name: name, Args: args, fn: b.fn}, nil
}

func parseCond(arg agg.Value) (Expr, error) {
	switch t := arg.(type) {
	case *agg.Document:
		ifSpec, ok := t.Get("if")
		if !ok {
			return nil, agg.ErrParse.New("$cond requires 'if'")
		}
		thenSpec, ok := t.Get("then")
		if !ok {
			return nil, agg.ErrParse.New("$cond requires 'then'")
		}
		ifE, err := Parse(ifSpec)
		if err != nil {
			return nil, err
		}
		thenE, err := Parse(thenSpec)
		if err != nil {
			return nil, err
		}
		var elseE Expr
		if elseSpec, ok := t.Get("else"); ok {
			if elseE, err = Parse(elseSpec); err != nil {
				return nil, err
			}
		}
		return &CondExpr{If: ifE, Then: thenE, Else: elseE}, nil
	case []agg.Value:
		if len(t) != 3 {
			return nil, agg.ErrParse.New("$cond array form takes exactly 3 operands")
		}
		ifE, err := Parse(t[0])
		if err != nil {
			return nil, err
		}
		thenE, err := Parse(t[1])
		if err != nil {
			return nil, err
		}
		elseE, err := Parse(t[2])
		if err != nil {
			return nil, err
		}
		return &CondExpr{If: ifE, Then: thenE, Else: elseE}, nil
	default:
		return nil, agg.ErrParse.New("$cond requires a document or 3-element array")
	}
}

func parseSwitch(arg agg.Value) (Expr, error) {
	doc, ok := arg.(*agg.Document)
	if !ok {
		return nil, agg.ErrParse.New("$switch requires a document")
	}
	branchesSpec, ok := doc.Get("branches")
	if !ok {
		return nil, agg.ErrParse.New("$switch requires 'branches'")
	}
	arr, ok := branchesSpec.([]agg.Value)
	if !ok {
		return nil, agg.ErrParse.New("$switch branches must be an array")
	}
	out := &SwitchExpr{}
	for _, b := range arr {
		bd, ok := b.(*agg.Document)
		if !ok {
			return nil, agg.ErrParse.New("$switch branch must be a document")
		}
		caseSpec, ok := bd.Get("case")
		if !ok {
			return nil, agg.ErrParse.New("$switch branch requires 'case'")
		}
		thenSpec, ok := bd.Get("then")
		if !ok {
			return nil, agg.ErrParse.New("$switch branch requires 'then'")
		}
		caseE, err := Parse(caseSpec)
		if err != nil {
			return nil, err
		}
		thenE, err := Parse(thenSpec)
		if err != nil {
			return nil, err
		}
		out.Branches = append(out.Branches, SwitchBranch{Case: caseE, Then: thenE})
	}
	if defSpec, ok := doc.Get("default"); ok {
		defE, err := Parse(defSpec)
		if err != nil {
			return nil, err
		}
		out.Default = defE
	}
	return out, nil
}

// iterSpec parses the shared {input, as?, in/cond} shape of $map and
// $filter.
func iterSpec(arg agg.Value, bodyKey, opName string) (input Expr, varName string, body Expr, err error) {
	doc, ok := arg.(*agg.Document)
	if !ok {
		return nil, "", nil, agg.ErrParse.New(opName + " requires a document")
	}
	inputSpec, ok := doc.Get("input")
	if !ok {
		return nil, "", nil, agg.ErrParse.New(opName + " requires 'input'")
	}
	if input, err = Parse(inputSpec); err != nil {
		return nil, "", nil, err
	}
	varName = "this"
	if asSpec, ok := doc.Get("as"); ok {
		s, isStr := asSpec.(string)
		if !isStr || s == "" {
			return nil, "", nil, agg.ErrParse.New(opName + " 'as' must be a non-empty string")
		}
		varName = s
	}
	bodySpec, ok := doc.Get(bodyKey)
	if !ok {
		return nil, "", nil, agg.ErrParse.New(opName + " requires '" + bodyKey + "'")
	}
	if body, err = Parse(bodySpec); err != nil {
		return nil, "", nil, err
	}
	return input, varName, body, nil
}

func parseMap(arg agg.Value) (Expr, error) {
	input, varName, body, err := iterSpec(arg, "in", "$map")
	if err != nil {
		return nil, err
	}
	return &mapExpr{input: input, varName: varName, body: body}, nil
}

func parseFilter(arg agg.Value) (Expr, error) {
	input, varName, cond, err := iterSpec(arg, "cond", "$filter")
	if err != nil {
		return nil, err
	}
	return &filterExpr{input: input, varName: varName, cond: cond}, nil
}

func parseReduce(arg agg.Value) (Expr, error) {
	doc, ok := arg.(*agg.Document)
	if !ok {
		return nil, agg.ErrParse.New("$reduce requires a document")
	}
	inputSpec, ok := doc.Get("input")
	if !ok {
		return nil, agg.ErrParse.New("$reduce requires 'input'")
	}
	initSpec, ok := doc.Get("initialValue")
	if !ok {
		return nil, agg.ErrParse.New("$reduce requires 'initialValue'")
	}
	inSpec, ok := doc.Get("in")
	if !ok {
		return nil, agg.ErrParse.New("$reduce requires 'in'")
	}
	input, err := Parse(inputSpec)
	if err != nil {
		return nil, err
	}
	init, err := Parse(initSpec)
	if err != nil {
		return nil, err
	}
	body, err := Parse(inSpec)
	if err != nil {
		return nil, err
	}
	return &reduceExpr{input: input, init: init, body: body}, nil
}
