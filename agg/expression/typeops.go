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

import "github.com/dolthub/go-agg-engine/agg"

func init() {
	register("$type", 1, 1, evalType)
	register("$isNumber", 1, 1, evalIsNumber)
	register("$isArray", 1, 1, evalIsArray)
	register("$ifNull", 2, -1, evalIfNull)
	register("$coalesce", 1, -1, evalCoalesce)
	register("$mergeObjects", 1, -1, evalMergeObjects)
}

func evalType(env *Env, args []Expr) (agg.Value, error) {
	v, err := args[0].Eval(env)
	if err != nil {
		return nil, err
	}
	if agg.IsMissing(v) {
		return "null", nil
	}
	return agg.TypeName(v), nil
}

func evalIsNumber(env *Env, args []Expr) (agg.Value, error) {
	v, err := args[0].Eval(env)
	if err != nil {
		return nil, err
	}
	return agg.IsNumber(v), nil
}

func evalIsArray(env *Env, args []Expr) (agg.Value, error) {
	v, err := args[0].Eval(env)
	if err != nil {
		return nil, err
	}
	_, ok := v.([]agg.Value)
	return ok, nil
}

// evalIfNull returns the first non-null operand; if every operand is null,
// the last operand's value (null) is returned.
func evalIfNull(env *Env, args []Expr) (agg.Value, error) {
	for _, a := range args {
		v, err := a.Eval(env)
		if err != nil {
			return nil, err
		}
		if !agg.IsNullOrMissing(v) {
			return v, nil
		}
	}
	return nil, nil
}

// evalCoalesce returns the first non-null operand, else Null.
func evalCoalesce(env *Env, args []Expr) (agg.Value, error) {
	return evalIfNull(env, args)
}

// evalMergeObjects merges document operands left to right; a non-object
// operand contributes nothing.
func evalMergeObjects(env *Env, args []Expr) (agg.Value, error) {
	vals, err := evalArgs(env, args)
	if err != nil {
		return nil, err
	}
	out := agg.NewDocument()
	merge := func(v agg.Value) {
		doc, ok := v.(*agg.Document)
		if !ok {
			return
		}
		for _, k := range doc.Keys() {
			fv, _ := doc.Get(k)
			out.Set(k, fv)
		}
	}
	for _, v := range vals {
		// A single array operand merges its elements, the accumulator form.
		if arr, ok := v.([]agg.Value); ok && len(vals) == 1 {
			for _, e := range arr {
				merge(e)
			}
			continue
		}
		merge(v)
	}
	return out, nil
}
