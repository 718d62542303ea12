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
	register("$and", 1, -1, evalAnd)
	register("$or", 1, -1, evalOr)
	register("$not", 1, 1, evalNot)
}

// evalAnd is three-valued: any false operand decides false, otherwise any
// null decides Null. Operands evaluate left to right with short-circuit on
// false.
func evalAnd(env *Env, args []Expr) (agg.Value, error) {
	sawNull := false
	for _, a := range args {
		v, err := a.Eval(env)
		if err != nil {
			return nil, err
		}
		if agg.IsNullOrMissing(v) {
			sawNull = true
			continue
		}
		if !agg.Truthy(v) {
			return false, nil
		}
	}
	if sawNull {
		return nil, nil
	}
	return true, nil
}

// evalOr is three-valued: any true operand decides true, otherwise any null
// decides Null.
func evalOr(env *Env, args []Expr) (agg.Value, error) {
	sawNull := false
	for _, a := range args {
		v, err := a.Eval(env)
		if err != nil {
			return nil, err
		}
		if agg.IsNullOrMissing(v) {
			sawNull = true
			continue
		}
		if agg.Truthy(v) {
			return true, nil
		}
	}
	if sawNull {
		return nil, nil
	}
	return false, nil
}

// evalNot is three-valued: NOT NULL = NULL.
func evalNot(env *Env, args []Expr) (agg.Value, error) {
	v, err := args[0].Eval(env)
	if err != nil {
		return nil, err
	}
	if agg.IsNullOrMissing(v) {
		return nil, nil
	}
	return !agg.Truthy(v), nil
}
