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

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Document is an insertion-ordered string-keyed value mapping. Key order is
// preserved through every transformation and in materialized output.
type Document struct {
	keys []string
	vals map[string]Value
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{vals: make(map[string]Value)}
}

// NewDocumentFrom builds a document from ordered pairs.
func NewDocumentFrom(pairs D) *Document {
	doc := NewDocument()
	for _, e := range pairs {
		doc.Set(e.Key, Normalize(e.Val))
	}
	return doc
}

// Len returns the number of fields.
func (d *Document) Len() int { return len(d.keys) }

// Keys returns the field names in insertion order. The returned slice is
// shared; callers must not mutate it.
func (d *Document) Keys() []string { return d.keys }

// Get returns the value for key and whether the key is present.
func (d *Document) Get(key string) (Value, bool) {
	v, ok := d.vals[key]
	return v, ok
}

// Set stores key=value, appending the key if it is new and keeping its
// original position if it is not.
func (d *Document) Set(key string, v Value) {
	if _, ok := d.vals[key]; !ok {
		d.keys = append(d.keys, key)
	}
	d.vals[key] = v
}

// Delete removes key. Unknown keys are a no-op.
func (d *Document) Delete(key string) {
	if _, ok := d.vals[key]; !ok {
		return
	}
	delete(d.vals, key)
	for i, k := range d.keys {
		if k == key {
			d.keys = append(d.keys[:i], d.keys[i+1:]...)
			break
		}
	}
}

// Clone returns a shallow copy: field order and the mapping are copied,
// values are shared.
func (d *Document) Clone() *Document {
	out := &Document{
		keys: append([]string(nil), d.keys...),
		vals: make(map[string]Value, len(d.vals)),
	}
	for k, v := range d.vals {
		out.vals[k] = v
	}
	return out
}

// DeepClone copies the document and every mutable substructure below it.
// Scalars are shared; arrays and nested documents are duplicated.
func (d *Document) DeepClone() *Document {
	out := &Document{
		keys: append([]string(nil), d.keys...),
		vals: make(map[string]Value, len(d.vals)),
	}
	for k, v := range d.vals {
		out.vals[k] = DeepCloneValue(v)
	}
	return out
}

// DeepCloneValue duplicates arrays and documents recursively; scalars are
// returned as-is.
func DeepCloneValue(v Value) Value {
	switch t := v.(type) {
	case []Value:
		out := make([]Value, len(t))
		for i, e := range t {
			out[i] = DeepCloneValue(e)
		}
		return out
	case *Document:
		return t.DeepClone()
	default:
		return t
	}
}

// MarshalJSON encodes the document preserving field order.
func (d *Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeValue(&buf, d); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (d *Document) String() string {
	b, err := d.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("document<error: %v>", err)
	}
	return string(b)
}

func encodeValue(buf *bytes.Buffer, v Value) error {
	switch t := v.(type) {
	case nil, missing:
		buf.WriteString("null")
	case bool:
		if t {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case int64:
		buf.WriteString(strconv.FormatInt(t, 10))
	case float64:
		b, err := json.Marshal(t)
		if err != nil {
			return err
		}
		buf.Write(b)
	case string:
		b, err := json.Marshal(t)
		if err != nil {
			return err
		}
		buf.Write(b)
	case time.Time:
		buf.WriteByte('"')
		buf.WriteString(t.UTC().Format(time.RFC3339Nano))
		buf.WriteByte('"')
	case []Value:
		buf.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeValue(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case *Document:
		buf.WriteByte('{')
		for i, k := range t.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := encodeValue(buf, t.vals[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return ErrParse.New(fmt.Sprintf("unencodable value of type %T", v))
	}
	return nil
}

// ParseDocument decodes a single JSON object into a Document, preserving key
// order. Numbers without a fraction or exponent decode as int64.
func ParseDocument(data []byte) (*Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeNext(dec)
	if err != nil {
		return nil, ErrParse.New(err.Error())
	}
	doc, ok := v.(*Document)
	if !ok {
		return nil, ErrParse.New("top-level JSON value is not an object")
	}
	return doc, nil
}

// ParseValue decodes any JSON value into the engine value model, preserving
// object key order.
func ParseValue(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeNext(dec)
	if err != nil {
		return nil, ErrParse.New(err.Error())
	}
	return v, nil
}

func decodeNext(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	return decodeToken(dec, tok)
}

func decodeToken(dec *json.Decoder, tok json.Token) (Value, error) {
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			doc := NewDocument()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("object key is not a string: %v", keyTok)
				}
				val, err := decodeNext(dec)
				if err != nil {
					return nil, err
				}
				doc.Set(key, val)
			}
			if _, err := dec.Token(); err != nil { // consume '}'
				return nil, err
			}
			return doc, nil
		case '[':
			arr := []Value{}
			for dec.More() {
				val, err := decodeNext(dec)
				if err != nil {
					return nil, err
				}
				arr = append(arr, val)
			}
			if _, err := dec.Token(); err != nil { // consume ']'
				return nil, err
			}
			return arr, nil
		default:
			return nil, fmt.Errorf("unexpected delimiter %q", t)
		}
	case json.Number:
		s := t.String()
		if !strings.ContainsAny(s, ".eE") {
			if i, err := t.Int64(); err == nil {
				return i, nil
			}
		}
		f, err := t.Float64()
		if err != nil {
			return nil, err
		}
		return f, nil
	case string:
		return t, nil
	case bool:
		return t, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("unexpected token %v", tok)
	}
}
