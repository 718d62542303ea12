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

// builtinFn evaluates an operator call. Soft failures (type mismatch,
// division by zero) return a nil value, never an error; errors are reserved
// for conditions that should abort the run.
type builtinFn func(env *Env, args []Expr) (agg.Value, error)

type builtin struct {
	fn      builtinFn
	minArgs int
	maxArgs int // -1 for variadic
}

var builtins = map[string]builtin{}

func register(name string, minArgs, maxArgs int, fn builtinFn) {
	builtins[name] = builtin{fn: fn, minArgs: minArgs, maxArgs: maxArgs}
}

// IsOperator reports whether name is a registered expression operator.
func IsOperator(name string) bool {
	_, ok := builtins[name]
	return ok
}

// evalArgs evaluates all operand expressions, mapping Missing to nil.
func evalArgs(env *Env, args []Expr) ([]agg.Value, error) {
	out := make([]agg.Value, len(args))
	for i, a := range args {
		v, err := a.Eval(env)
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

// anyNull reports whether any evaluated operand is null.
func anyNull(vals []agg.Value) bool {
	for _, v := range vals {
		if v == nil {
			return true
		}
	}
	return false
}
