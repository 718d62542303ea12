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

// Mode selects the incremental-view-maintenance flavour.
type Mode string

const (
	// ModeStream is the default delta-streaming engine.
	ModeStream Mode = "stream"
	// ModeToggle keys group state by dimension with refcounts, tuned for
	// repeated evaluation of one pipeline under changing predicates. Its
	// observable output is identical to ModeStream.
	ModeToggle Mode = "toggle"
)

// FusionOptions bound the planner's stage fusion.
type FusionOptions struct {
	MaxComplexity            int  `yaml:"maxComplexity"`
	MaxStagesPerGroup        int  `yaml:"maxStagesPerGroup"`
	EnableMatchProjectFusion bool `yaml:"enableMatchProjectFusion"`
	EnableProjectChainFusion bool `yaml:"enableProjectChainFusion"`
	EnableSortLimitFusion    bool `yaml:"enableSortLimitFusion"`
}

// DefaultFusion returns the fusion limits used when none are configured.
func DefaultFusion() FusionOptions {
	return FusionOptions{
		MaxComplexity:            100,
		MaxStagesPerGroup:        5,
		EnableMatchProjectFusion: true,
		EnableProjectChainFusion: true,
		EnableSortLimitFusion:    true,
	}
}

// Options configure one aggregation or streaming collection.
type Options struct {
	Mode Mode `yaml:"mode"`

	// EnableBloomFilter turns on the $text Bloom prefilter.
	EnableBloomFilter bool `yaml:"enableBloomFilter"`
	// MinCollectionSize gates both prefilters; collections below it always
	// take the full scan.
	MinCollectionSize int `yaml:"minCollectionSize"`

	Fusion FusionOptions `yaml:"fusion"`

	// Collections resolves $lookup `from` names (and receives $merge/$out
	// output in the shim).
	Collections map[string][]*Document `yaml:"-"`
}

// DefaultOptions returns the engine defaults.
func DefaultOptions() *Options {
	return &Options{
		Mode:              ModeStream,
		MinCollectionSize: 500,
		Fusion:            DefaultFusion(),
	}
}

// Sanitize fills zero values with defaults.
func (o *Options) Sanitize() *Options {
	if o == nil {
		return DefaultOptions()
	}
	out := *o
	if out.Mode == "" {
		out.Mode = ModeStream
	}
	if out.MinCollectionSize == 0 {
		out.MinCollectionSize = 500
	}
	if out.Fusion.MaxComplexity == 0 {
		out.Fusion = DefaultFusion()
	}
	return &out
}
