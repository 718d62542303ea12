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
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/dolthub/go-agg-engine/agg"
)

func init() {
	register("$concat", 1, -1, evalConcat)
	register("$toLower", 1, 1, stringUnary(strings.ToLower))
	register("$toUpper", 1, 1, stringUnary(strings.ToUpper))
	register("$substr", 3, 3, evalSubstr)
	register("$split", 2, 2, evalSplit)
	register("$strLen", 1, 1, evalStrLen)
	register("$toString", 1, 1, evalToString)
}

func evalConcat(env *Env, args []Expr) (agg.Value, error) {
	vals, err := evalArgs(env, args)
	if err != nil {
		return nil, err
	}
	if anyNull(vals) {
		return nil, nil
	}
	var b strings.Builder
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			return nil, nil
		}
		b.WriteString(s)
	}
	return b.String(), nil
}

func stringUnary(f func(string) string) builtinFn {
	return func(env *Env, args []Expr) (agg.Value, error) {
		vals, err := evalArgs(env, args)
		if err != nil {
			return nil, err
		}
		if anyNull(vals) {
			return nil, nil
		}
		s, ok := vals[0].(string)
		if !ok {
			coerced, cerr := cast.ToStringE(vals[0])
			if cerr != nil {
				return nil, nil
			}
			s = coerced
		}
		return f(s), nil
	}
}

// evalSubstr indexes by rune, clamping out-of-range offsets.
func evalSubstr(env *Env, args []Expr) (agg.Value, error) {
	vals, err := evalArgs(env, args)
	if err != nil {
		return nil, err
	}
	if anyNull(vals) {
		return nil, nil
	}
	s, ok := vals[0].(string)
	if !ok {
		return nil, nil
	}
	start, ok1 := vals[1].(int64)
	length, ok2 := vals[2].(int64)
	if !ok1 || !ok2 {
		return nil, nil
	}
	runes := []rune(s)
	if start < 0 || start >= int64(len(runes)) {
		return "", nil
	}
	end := start + length
	if length < 0 || end > int64(len(runes)) {
		end = int64(len(runes))
	}
	return string(runes[start:end]), nil
}

func evalSplit(env *Env, args []Expr) (agg.Value, error) {
	vals, err := evalArgs(env, args)
	if err != nil {
		return nil, err
	}
	if anyNull(vals) {
		return nil, nil
	}
	s, ok1 := vals[0].(string)
	sep, ok2 := vals[1].(string)
	if !ok1 || !ok2 || sep == "" {
		return nil, nil
	}
	parts := strings.Split(s, sep)
	out := make([]agg.Value, len(parts))
	for i, p := range parts {
		out[i] = p
	}
	return out, nil
}

func evalStrLen(env *Env, args []Expr) (agg.Value, error) {
	vals, err := evalArgs(env, args)
	if err != nil {
		return nil, err
	}
	if anyNull(vals) {
		return nil, nil
	}
	s, ok := vals[0].(string)
	if !ok {
		return nil, nil
	}
	return int64(len([]rune(s))), nil
}

func evalToString(env *Env, args []Expr) (agg.Value, error) {
	vals, err := evalArgs(env, args)
	if err != nil {
		return nil, err
	}
	if anyNull(vals) {
		return nil, nil
	}
	switch t := vals[0].(type) {
	case string:
		return t, nil
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano), nil
	case bool, int64, float64:
		s, cerr := cast.ToStringE(t)
		if cerr != nil {
			return nil, nil
		}
		return s, nil
	default:
		return nil, nil
	}
}
