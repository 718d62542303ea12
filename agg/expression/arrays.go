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
	register("$size", 1, 1, evalSize)
	register("$arrayElemAt", 2, 2, evalArrayElemAt)
	register("$slice", 2, 3, evalSlice)
	register("$indexOfArray", 2, 4, evalIndexOfArray)
	register("$concatArrays", 1, -1, evalConcatArrays)
	register("$push", 2, 2, evalPushExpr)
	register("$addToSet", 2, 2, evalAddToSetExpr)
	register("$in", 2, 2, evalInExpr)
}

func evalSize(env *Env, args []Expr) (agg.Value, error) {
	vals, err := evalArgs(env, args)
	if err != nil {
		return nil, err
	}
	arr, ok := vals[0].([]agg.Value)
	if !ok {
		return nil, nil
	}
	return int64(len(arr)), nil
}

func evalArrayElemAt(env *Env, args []Expr) (agg.Value, error) {
	vals, err := evalArgs(env, args)
	if err != nil {
		return nil, err
	}
	arr, ok := vals[0].([]agg.Value)
	idx, ok2 := vals[1].(int64)
	if !ok || !ok2 {
		return nil, nil
	}
	if idx < 0 {
		idx += int64(len(arr))
	}
	if idx < 0 || idx >= int64(len(arr)) {
		return nil, nil
	}
	return arr[idx], nil
}

// evalSlice is $slice[arr, n] or $slice[arr, skip, n].
func evalSlice(env *Env, args []Expr) (agg.Value, error) {
	vals, err := evalArgs(env, args)
	if err != nil {
		return nil, err
	}
	arr, ok := vals[0].([]agg.Value)
	if !ok {
		return nil, nil
	}
	if len(vals) == 2 {
		n, ok := vals[1].(int64)
		if !ok {
			return nil, nil
		}
		if n < 0 {
			start := int64(len(arr)) + n
			if start < 0 {
				start = 0
			}
			return append([]agg.Value(nil), arr[start:]...), nil
		}
		if n > int64(len(arr)) {
			n = int64(len(arr))
		}
		return append([]agg.Value(nil), arr[:n]...), nil
	}
	skip, ok1 := vals[1].(int64)
	n, ok2 := vals[2].(int64)
	if !ok1 || !ok2 || n <= 0 {
		return nil, nil
	}
	if skip < 0 {
		skip += int64(len(arr))
		if skip < 0 {
			skip = 0
		}
	}
	if skip >= int64(len(arr)) {
		return []agg.Value{}, nil
	}
	end := skip + n
	if end > int64(len(arr)) {
		end = int64(len(arr))
	}
	return append([]agg.Value(nil), arr[skip:end]...), nil
}

func evalIndexOfArray(env *Env, args []Expr) (agg.Value, error) {
	vals, err := evalArgs(env, args)
	if err != nil {
		return nil, err
	}
	arr, ok := vals[0].([]agg.Value)
	if !ok {
		return nil, nil
	}
	target := vals[1]
	start, end := int64(0), int64(len(arr))
	if len(vals) >= 3 {
		if s, ok := vals[2].(int64); ok {
			start = s
		}
	}
	if len(vals) == 4 {
		if e, ok := vals[3].(int64); ok && e < end {
			end = e
		}
	}
	for i := start; i < end && i < int64(len(arr)); i++ {
		if agg.Equal(arr[i], target) {
			return i, nil
		}
	}
	return int64(-1), nil
}

func evalConcatArrays(env *Env, args []Expr) (agg.Value, error) {
	vals, err := evalArgs(env, args)
	if err != nil {
		return nil, err
	}
	if anyNull(vals) {
		return nil, nil
	}
	var out []agg.Value
	for _, v := range vals {
		arr, ok := v.([]agg.Value)
		if !ok {
			return nil, nil
		}
		out = append(out, arr...)
	}
	if out == nil {
		out = []agg.Value{}
	}
	return out, nil
}

// evalPushExpr appends a value to an array, the expression-context
// counterpart of the $push accumulator.
func evalPushExpr(env *Env, args []Expr) (agg.Value, error) {
	vals, err := evalArgs(env, args)
	if err != nil {
		return nil, err
	}
	arr, ok := vals[0].([]agg.Value)
	if !ok {
		if vals[0] == nil {
			arr = nil
		} else {
			return nil, nil
		}
	}
	out := make([]agg.Value, len(arr), len(arr)+1)
	copy(out, arr)
	return append(out, vals[1]), nil
}

// evalAddToSetExpr appends a value only if no equal member exists.
func evalAddToSetExpr(env *Env, args []Expr) (agg.Value, error) {
	vals, err := evalArgs(env, args)
	if err != nil {
		return nil, err
	}
	arr, ok := vals[0].([]agg.Value)
	if !ok {
		if vals[0] == nil {
			arr = nil
		} else {
			return nil, nil
		}
	}
	for _, e := range arr {
		if agg.Equal(e, vals[1]) {
			return arr, nil
		}
	}
	out := make([]agg.Value, len(arr), len(arr)+1)
	copy(out, arr)
	return append(out, vals[1]), nil
}

func evalInExpr(env *Env, args []Expr) (agg.Value, error) {
	vals, err := evalArgs(env, args)
	if err != nil {
		return nil, err
	}
	arr, ok := vals[1].([]agg.Value)
	if !ok {
		return nil, nil
	}
	for _, e := range arr {
		if agg.Equal(e, vals[0]) {
			return true, nil
		}
	}
	return false, nil
}

// mapExpr is $map{input, as, in}.
type mapExpr struct {
	input   Expr
	varName string
	body    Expr
}

func (m *mapExpr) Eval(env *Env) (agg.Value, error) {
	in, err := m.input.Eval(env)
	if err != nil {
		return nil, err
	}
	arr, ok := in.([]agg.Value)
	if !ok {
		return nil, nil
	}
	out := make([]agg.Value, len(arr))
	for i, e := range arr {
		v, err := m.body.Eval(env.WithVar(m.varName, e))
		if err != nil {
			return nil, err
		}
		if agg.IsMissing(v) {
			v = nil
		}
		out[i] = v
	}
	return out, nil
}

// filterExpr is $filter{input, as, cond}.
type filterExpr struct {
	input   Expr
	varName string
	cond    Expr
}

func (f *filterExpr) Eval(env *Env) (agg.Value, error) {
	in, err := f.input.Eval(env)
	if err != nil {
		return nil, err
	}
	arr, ok := in.([]agg.Value)
	if !ok {
		return nil, nil
	}
	out := []agg.Value{}
	for _, e := range arr {
		c, err := f.cond.Eval(env.WithVar(f.varName, e))
		if err != nil {
			return nil, err
		}
		if agg.Truthy(c) {
			out = append(out, e)
		}
	}
	return out, nil
}

// reduceExpr is $reduce{input, initialValue, in} with $$value and $$this.
type reduceExpr struct {
	input Expr
	init  Expr
	body  Expr
}

func (r *reduceExpr) Eval(env *Env) (agg.Value, error) {
	in, err := r.input.Eval(env)
	if err != nil {
		return nil, err
	}
	if agg.IsNullOrMissing(in) {
		return nil, nil
	}
	arr, ok := in.([]agg.Value)
	if !ok {
		return nil, nil
	}
	acc, err := r.init.Eval(env)
	if err != nil {
		return nil, err
	}
	for _, e := range arr {
		child := env.WithVar("value", acc)
		child.Vars["this"] = e
		acc, err = r.body.Eval(child)
		if err != nil {
			return nil, err
		}
	}
	return acc, nil
}
