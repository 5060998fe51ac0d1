// Copyright 2019 Tamás Gulácsi
//
//
//    Licensed under the Apache License, Version 2.0 (the "License");
//    you may not use this file except in compliance with the License.
//    You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
//    Unless required by applicable law or agreed to in writing, software
//    distributed under the License is distributed on an "AS IS" BASIS,
//    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//    See the License for the specific language governing permissions and
//    limitations under the License.

// Package model holds the data models building blocks are resolved against:
// JSON trees addressed by slash separated paths, named contexts pointing into
// them, and the temporary object store.
package model

import (
	"io"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

// Well-known model names.
const (
	MetaModel      = "metaModel"
	ConverterModel = "converterContext"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Model is a read-only tree addressed by paths.
type Model interface {
	GetObject(path string) interface{}
}

// Setter is implemented by writable models (the staging model).
type Setter interface {
	SetProperty(path string, value interface{}) bool
}

// JSONModel is an in-memory tree of map[string]interface{} and []interface{}.
type JSONModel struct {
	data interface{}
}

// NewJSONModel returns a model over data. A nil data starts an empty object.
func NewJSONModel(data interface{}) *JSONModel {
	if data == nil {
		data = make(map[string]interface{})
	}
	return &JSONModel{data: data}
}

// LoadJSONModel decodes a JSON document into a new model.
func LoadJSONModel(r io.Reader) (*JSONModel, error) {
	var data interface{}
	if err := json.NewDecoder(r).Decode(&data); err != nil {
		return nil, errors.Wrap(err, "decode JSON model")
	}
	return NewJSONModel(data), nil
}

// Data returns the root of the tree.
func (M *JSONModel) Data() interface{} { return M.data }

// GetObject returns the value at path, or nil.
// Both "/a/b" and "a/b" address the same node; a trailing slash is ignored.
func (M *JSONModel) GetObject(path string) interface{} {
	if M == nil {
		return nil
	}
	cur := M.data
	for _, seg := range splitPath(path) {
		switch x := cur.(type) {
		case map[string]interface{}:
			v, ok := x[seg]
			if !ok {
				return nil
			}
			cur = v
		case []interface{}:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(x) {
				return nil
			}
			cur = x[i]
		default:
			return nil
		}
	}
	return cur
}

// SetProperty sets the value at path, creating intermediate objects.
// It returns false if an intermediate node is not an object.
func (M *JSONModel) SetProperty(path string, value interface{}) bool {
	segs := splitPath(path)
	if len(segs) == 0 {
		M.data = value
		return true
	}
	cur, ok := M.data.(map[string]interface{})
	if !ok {
		return false
	}
	for _, seg := range segs[:len(segs)-1] {
		next, ok := cur[seg]
		if !ok {
			m := make(map[string]interface{})
			cur[seg] = m
			cur = m
			continue
		}
		if cur, ok = next.(map[string]interface{}); !ok {
			return false
		}
	}
	cur[segs[len(segs)-1]] = value
	return true
}

func splitPath(path string) []string {
	parts := strings.Split(path, "/")
	segs := parts[:0]
	for _, p := range parts {
		if p != "" {
			segs = append(segs, p)
		}
	}
	return segs
}

// JoinPath resolves rel against base: absolute rel wins, otherwise it is
// appended to base with exactly one slash between.
func JoinPath(base, rel string) string {
	if strings.HasPrefix(rel, "/") || base == "" {
		return rel
	}
	if rel == "" {
		return base
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + rel
}

// DeepCopy clones maps and slices recursively; other values are returned as is.
func DeepCopy(v interface{}) interface{} {
	switch x := v.(type) {
	case map[string]interface{}:
		m := make(map[string]interface{}, len(x))
		for k, v := range x {
			m[k] = DeepCopy(v)
		}
		return m
	case []interface{}:
		s := make([]interface{}, len(x))
		for i, v := range x {
			s[i] = DeepCopy(v)
		}
		return s
	case []map[string]interface{}:
		s := make([]map[string]interface{}, len(x))
		for i, v := range x {
			s[i] = DeepCopy(v).(map[string]interface{})
		}
		return s
	case map[string]string:
		m := make(map[string]string, len(x))
		for k, v := range x {
			m[k] = v
		}
		return m
	case []string:
		return append([]string(nil), x...)
	}
	return v
}
