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
	"time"

	"github.com/dolthub/go-agg-engine/agg"
)

func init() {
	register("$year", 1, 1, datePart(func(t time.Time) int64 { return int64(t.Year()) }))
	register("$month", 1, 1, datePart(func(t time.Time) int64 { return int64(t.Month()) }))
	register("$hour", 1, 1, datePart(func(t time.Time) int64 { return int64(t.Hour()) }))
	// $dayOfWeek is 1 (Sunday) through 7 (Saturday).
	register("$dayOfWeek", 1, 1, datePart(func(t time.Time) int64 { return int64(t.Weekday()) + 1 }))
}

func datePart(f func(time.Time) int64) builtinFn {
	return func(env *Env, args []Expr) (agg.Value, error) {
		vals, err := evalArgs(env, args)
		if err != nil {
			return nil, err
		}
		if anyNull(vals) {
			return nil, nil
		}
		t, ok := vals[0].(time.Time)
		if !ok {
			return nil, nil
		}
		return f(t.UTC()), nil
	}
}
