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

package agg

import "gopkg.in/src-d/go-errors.v1"

var (
	// ErrParse is returned for a malformed pipeline or expression. It
	// surfaces at plan time; no partial plan is retained.
	ErrParse = errors.NewKind("cannot parse: %s")

	// ErrUnsupportedOperator is returned when a pipeline uses an operator
	// implemented by neither the streaming engine nor the shim.
	ErrUnsupportedOperator = errors.NewKind("unsupported operator: %s")

	// ErrInvariantViolation signals an internal consistency breach. The run
	// aborts; the collection remains usable because all run state lives in
	// the context.
	ErrInvariantViolation = errors.NewKind("invariant violation: %s")

	// ErrResourceExhausted is returned when a configured bound is exceeded,
	// such as the $unwind expansion cap.
	ErrResourceExhausted = errors.NewKind("resource bound exceeded: %s")
)
