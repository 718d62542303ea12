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

package fallback

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRegistryRecordAndAnalyze(t *testing.T) {
	require := require.New(t)

	r := NewRegistry()
	require.Equal(int64(0), r.Count())

	r.Record("unsupported-operator:$out")
	r.Record("unsupported-operator:$out")
	r.Record("advanced-lookup")

	require.Equal(int64(3), r.Count())
	a := r.Analysis()
	require.Equal(int64(3), a.TotalFallbacks)
	require.Equal(int64(2), a.ByReason["unsupported-operator:$out"])
	require.Equal(int64(1), a.ByReason["advanced-lookup"])

	r.Reset()
	require.Equal(int64(0), r.Count())
	require.Empty(r.Analysis().ByReason)
}

func TestDefaultRegistryHelpers(t *testing.T) {
	require := require.New(t)

	Reset()
	Record("megamorphic-expr")
	require.Equal(int64(1), Count())
	require.Equal(int64(1), Analyze().ByReason["megamorphic-expr"])
	Reset()
}

func TestPrometheusCollector(t *testing.T) {
	require := require.New(t)

	r := NewRegistry()
	r.Record("advanced-lookup")

	reg := prometheus.NewRegistry()
	require.NoError(reg.Register(r.Collector()))

	expected := `
# HELP agg_engine_shim_fallbacks_total Total compatibility-shim fallbacks.
# TYPE agg_engine_shim_fallbacks_total counter
agg_engine_shim_fallbacks_total 1
`
	require.NoError(testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"agg_engine_shim_fallbacks_total"))
}
