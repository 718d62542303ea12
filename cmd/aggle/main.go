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

// aggle evaluates a JSON aggregation pipeline over JSONL documents.
//
//	cat docs.jsonl | aggle '[{"$match":{"a":{"$gte":2}}}]'
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/dolthub/go-agg-engine/agg"
	"github.com/dolthub/go-agg-engine/agg/fallback"
	"github.com/dolthub/go-agg-engine/agg/plan"
	aggle "github.com/dolthub/go-agg-engine"
)

var (
	filePath   = flag.String("file", "", "read JSONL documents from this file instead of stdin")
	configPath = flag.String("config", "", "YAML file with engine options")
	pretty     = flag.Bool("pretty", false, "emit indented JSON instead of JSONL")
	stats      = flag.Bool("stats", false, "print timing to stderr")
	explain    = flag.Bool("explain", false, "print the compiled plan to stderr")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		logrus.WithError(err).Error("aggregation failed")
		os.Exit(1)
	}
}

func run() error {
	if flag.NArg() != 1 {
		return fmt.Errorf("usage: aggle [flags] '<pipeline JSON>'")
	}

	opts := agg.DefaultOptions()
	if *configPath != "" {
		raw, err := os.ReadFile(*configPath)
		if err != nil {
			return err
		}
		if err := yaml.Unmarshal(raw, opts); err != nil {
			return fmt.Errorf("bad config: %w", err)
		}
	}

	pipelineVal, err := agg.ParseValue([]byte(flag.Arg(0)))
	if err != nil {
		return err
	}
	pipeline, ok := pipelineVal.([]agg.Value)
	if !ok {
		return fmt.Errorf("pipeline must be a JSON array")
	}

	docs, err := readDocs()
	if err != nil {
		return err
	}

	if *explain {
		sample := docs
		if len(sample) > 10 {
			sample = sample[:10]
		}
		p, err := plan.Build(pipeline, sample, opts)
		if err != nil {
			return err
		}
		fmt.Fprint(os.Stderr, p.Describe())
	}

	converted := make([]interface{}, len(docs))
	for i, d := range docs {
		converted[i] = d
	}
	start := time.Now()
	coll, err := aggle.NewStreamingCollection(converted, opts)
	if err != nil {
		return err
	}
	defer coll.Destroy()
	result, err := coll.Stream(pipeline)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	if err := writeResult(result); err != nil {
		return err
	}
	if *stats {
		fmt.Fprintf(os.Stderr, "%d documents in, %d out, %s\n", len(docs), len(result), elapsed)
		if a := fallback.Analyze(); a.TotalFallbacks > 0 {
			fmt.Fprintf(os.Stderr, "shim fallbacks: %d\n", a.TotalFallbacks)
		}
	}
	return nil
}

func readDocs() ([]*agg.Document, error) {
	var r io.Reader = os.Stdin
	if *filePath != "" {
		f, err := os.Open(*filePath)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	var docs []*agg.Document
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		doc, err := agg.ParseDocument(line)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, scanner.Err()
}

func writeResult(result []agg.Value) error {
	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()
	if *pretty {
		var arr []json.RawMessage
		for _, v := range result {
			b, err := marshalValue(v)
			if err != nil {
				return err
			}
			arr = append(arr, b)
		}
		out, err := json.MarshalIndent(arr, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(out))
		return err
	}
	for _, v := range result {
		b, err := marshalValue(v)
		if err != nil {
			return err
		}
		if _, err := w.Write(append(b, '\n')); err != nil {
			return err
		}
	}
	return nil
}

func marshalValue(v agg.Value) ([]byte, error) {
	if doc, ok := v.(*agg.Document); ok {
		return doc.MarshalJSON()
	}
	return json.Marshal(v)
}
