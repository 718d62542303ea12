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
	register("$eq", 2, 2, comparisonFn(func(c int) bool { return c == 0 }, true))
	register("$ne", 2, 2, comparisonFn(func(c int) bool { return c != 0 }, false))
	register("$gt", 2, 2, comparisonFn(func(c int) bool { return c > 0 }, true))
	register("$gte", 2, 2, comparisonFn(func(c int) bool { return c >= 0 }, true))
	register("$lt", 2, 2, comparisonFn(func(c int) bool { return c < 0 }, true))
	register("$lte", 2, 2, comparisonFn(func(c int) bool { return c <= 0 }, true))
	register("$cmp", 2, 2, evalCmp)
}

// comparisonFn builds a comparison operator. In expression context a null
// on either side yields Null. Equality across unrelated tags is false; for
// $eq that means false, for $ne true.
func comparisonFn(test func(int) bool, eqLike bool) builtinFn {
	return func(env *Env, args []Expr) (agg.Value, error) {
		vals, err := evalArgs(env, args)
		if err != nil {
			return nil, err
		}
		if anyNull(vals) {
			return nil, nil
		}
		if !agg.SameRank(vals[0], vals[1]) {
			return !eqLike, nil
		}
		return test(agg.Compare(vals[0], vals[1])), nil
	}
}

func evalCmp(env *Env, args []Expr) (agg.Value, error) {
	vals, err := evalArgs(env, args)
	if err != nil {
		return nil, err
	}
	if anyNull(vals) {
		return nil, nil
	}
	return int64(agg.Compare(vals[0], vals[1])), nil
}
