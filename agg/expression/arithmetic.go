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
	"math"
	"time"

	"github.com/dolthub/go-agg-engine/agg"
)

func init() {
	register("$add", 1, -1, evalAdd)
	register("$subtract", 2, 2, evalSubtract)
	register("$multiply", 1, -1, evalMultiply)
	register("$divide", 2, 2, evalDivide)
	register("$mod", 2, 2, evalMod)
	register("$abs", 1, 1, unaryNumeric(func(f float64) (float64, bool) { return math.Abs(f), true }))
	register("$sqrt", 1, 1, unaryNumeric(func(f float64) (float64, bool) {
		if f < 0 {
			return 0, false
		}
		return math.Sqrt(f), true
	}))
	register("$log10", 1, 1, unaryNumeric(func(f float64) (float64, bool) {
		if f <= 0 {
			return 0, false
		}
		return math.Log10(f), true
	}))
	register("$trunc", 1, 2, roundLike(math.Trunc))
	register("$round", 1, 2, roundLike(math.Round))
}

// evalAdd sums numbers; a single date operand shifts by the numeric sum of
// the rest. Any null operand nulls the result.
func evalAdd(env *Env, args []Expr) (agg.Value, error) {
	vals, err := evalArgs(env, args)
	if err != nil {
		return nil, err
	}
	if anyNull(vals) {
		return nil, nil
	}
	var date *time.Time
	sumInt := int64(0)
	sumFloat := float64(0)
	isFloat := false
	for _, v := range vals {
		switch t := v.(type) {
		case int64:
			sumInt += t
		case float64:
			sumFloat += t
			isFloat = true
		case time.Time:
			if date != nil {
				return nil, nil
			}
			d := t
			date = &d
		default:
			return nil, nil
		}
	}
	if date != nil {
		ms := sumInt + int64(sumFloat)
		return date.Add(time.Duration(ms) * time.Millisecond), nil
	}
	if isFloat {
		return sumFloat + float64(sumInt), nil
	}
	return sumInt, nil
}

func evalSubtract(env *Env, args []Expr) (agg.Value, error) {
	vals, err := evalArgs(env, args)
	if err != nil {
		return nil, err
	}
	if anyNull(vals) {
		return nil, nil
	}
	if d, ok := vals[0].(time.Time); ok {
		switch r := vals[1].(type) {
		case time.Time:
			return d.Sub(r).Milliseconds(), nil
		case int64:
			return d.Add(-time.Duration(r) * time.Millisecond), nil
		case float64:
			return d.Add(-time.Duration(int64(r)) * time.Millisecond), nil
		default:
			return nil, nil
		}
	}
	a, aok := vals[0].(int64)
	b, bok := vals[1].(int64)
	if aok && bok {
		return a - b, nil
	}
	fa, faok := agg.AsFloat(vals[0])
	fb, fbok := agg.AsFloat(vals[1])
	if !faok || !fbok {
		return nil, nil
	}
	return fa - fb, nil
}

func evalMultiply(env *Env, args []Expr) (agg.Value, error) {
	vals, err := evalArgs(env, args)
	if err != nil {
		return nil, err
	}
	if anyNull(vals) {
		return nil, nil
	}
	prodInt := int64(1)
	prodFloat := float64(1)
	isFloat := false
	for _, v := range vals {
		switch t := v.(type) {
		case int64:
			prodInt *= t
		case float64:
			prodFloat *= t
			isFloat = true
		default:
			return nil, nil
		}
	}
	if isFloat {
		return prodFloat * float64(prodInt), nil
	}
	return prodInt, nil
}

// evalDivide divides as Float64; division by zero yields Null.
func evalDivide(env *Env, args []Expr) (agg.Value, error) {
	vals, err := evalArgs(env, args)
	if err != nil {
		return nil, err
	}
	if anyNull(vals) {
		return nil, nil
	}
	fa, aok := agg.AsFloat(vals[0])
	fb, bok := agg.AsFloat(vals[1])
	if !aok || !bok || fb == 0 {
		return nil, nil
	}
	return fa / fb, nil
}

func evalMod(env *Env, args []Expr) (agg.Value, error) {
	vals, err := evalArgs(env, args)
	if err != nil {
		return nil, err
	}
	if anyNull(vals) {
		return nil, nil
	}
	if a, aok := vals[0].(int64); aok {
		if b, bok := vals[1].(int64); bok {
			if b == 0 {
				return nil, nil
			}
			return a % b, nil
		}
	}
	fa, aok := agg.AsFloat(vals[0])
	fb, bok := agg.AsFloat(vals[1])
	if !aok || !bok || fb == 0 {
		return nil, nil
	}
	return math.Mod(fa, fb), nil
}

func unaryNumeric(f func(float64) (float64, bool)) builtinFn {
	return func(env *Env, args []Expr) (agg.Value, error) {
		vals, err := evalArgs(env, args)
		if err != nil {
			return nil, err
		}
		if anyNull(vals) {
			return nil, nil
		}
		if i, ok := vals[0].(int64); ok {
			out, valid := f(float64(i))
			if !valid {
				return nil, nil
			}
			if out == math.Trunc(out) && math.Abs(out) < float64(math.MaxInt64) {
				return int64(out), nil
			}
			return out, nil
		}
		fv, ok := agg.AsFloat(vals[0])
		if !ok {
			return nil, nil
		}
		out, valid := f(fv)
		if !valid {
			return nil, nil
		}
		return out, nil
	}
}

// roundLike implements $trunc/$round with an optional decimal place.
func roundLike(f func(float64) float64) builtinFn {
	return func(env *Env, args []Expr) (agg.Value, error) {
		vals, err := evalArgs(env, args)
		if err != nil {
			return nil, err
		}
		if anyNull(vals) {
			return nil, nil
		}
		place := int64(0)
		if len(vals) == 2 {
			p, ok := vals[1].(int64)
			if !ok {
				return nil, nil
			}
			place = p
		}
		scale := math.Pow(10, float64(place))
		if i, ok := vals[0].(int64); ok {
			if place >= 0 {
				return i, nil
			}
			return int64(f(float64(i)*scale) / scale), nil
		}
		fv, ok := agg.AsFloat(vals[0])
		if !ok {
			return nil, nil
		}
		return f(fv*scale) / scale, nil
	}
}
