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

// Package trace records which contexts and properties building blocks and
// controls were rendered with, for developer tooling.
package trace

import (
	"net/url"
	"strconv"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/beevik/etree"
	"go.uber.org/zap"

	"github.com/UNO-SOFT/bbtemplate/xmlbuild"
)

// QueryParam switches tracing on when "true" in the page query string.
const QueryParam = "sap-ui-xx-feTraceInfo"

// ActiveFromQuery reports whether rawQuery switches tracing on.
func ActiveFromQuery(rawQuery string) bool {
	q, err := url.ParseQuery(rawQuery)
	if err != nil {
		return false
	}
	return q.Get(QueryParam) == "true"
}

// ContextInfo is a resolved metadata context, reduced to name and path.
type ContextInfo struct {
	Name  string `json:"name,omitempty"`
	Model string `json:"model,omitempty"`
	Path  string `json:"path"`
}

// MacroInfo links a record to the building block call it happened in.
// Zero means "top level".
type MacroInfo struct {
	MacroID       int `json:"macroID"`
	ParentMacroID int `json:"parentMacroID"`
}

// AttrTrace is one traced control attribute.
type AttrTrace struct {
	Original string      `json:"originalValue"`
	Resolved interface{} `json:"resolvedValue"`
}

// Runtime marks bindings that can only be resolved at runtime.
var Runtime = map[string]string{"bindingFor": "Runtime"}

// Record is one entry of the trace buffer.
type Record struct {
	TraceID          int                    `json:"traceID"`
	Control          string                 `json:"control,omitempty"`
	Macro            string                 `json:"macro,omitempty"`
	MetadataContexts []ContextInfo          `json:"metaDataContexts,omitempty"`
	Properties       map[string]interface{} `json:"properties,omitempty"`
	ViewInfo         interface{}            `json:"viewInfo,omitempty"`
	MacroInfo        MacroInfo              `json:"macroInfo"`
	Error            string                 `json:"error,omitempty"`
}

// Recorder is an append-only trace buffer. A nil *Recorder is inactive.
type Recorder struct {
	// Namespaces whose controls are traced.
	Namespaces map[string]struct{}
	Logger     *zap.Logger

	mu      sync.Mutex
	records []*Record
}

// New returns an active recorder tracing controls of the given namespace URIs.
func New(logger *zap.Logger, namespaces ...string) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	R := Recorder{Logger: logger, Namespaces: make(map[string]struct{}, len(namespaces))}
	for _, ns := range namespaces {
		R.Namespaces[ns] = struct{}{}
	}
	return &R
}

// Active reports whether tracing is on.
func (R *Recorder) Active() bool { return R != nil }

func (R *Recorder) push(rec *Record) *Record {
	R.mu.Lock()
	R.records = append(R.records, rec)
	rec.TraceID = len(R.records)
	if rec.Macro != "" {
		rec.MacroInfo.MacroID = rec.TraceID
	}
	R.mu.Unlock()
	return rec
}

// TraceMacroCalls records a building block call and writes its id back as
// trace:macroID onto el.
func (R *Recorder) TraceMacroCalls(el *etree.Element, name string, contexts []ContextInfo, props map[string]interface{}, viewInfo interface{}, parent int) *Record {
	if R == nil {
		return nil
	}
	rec := R.push(&Record{
		Macro:            name,
		MetadataContexts: contexts,
		Properties:       props,
		ViewInfo:         viewInfo,
		MacroInfo:        MacroInfo{ParentMacroID: parent},
	})
	if el != nil {
		setAttr(el, "macroID", strconv.Itoa(rec.TraceID))
	}
	R.Logger.Debug("macro call", zap.String("macro", name), zap.Int("macroID", rec.TraceID), zap.Int("parent", parent))
	return rec
}

// Resolver resolves one attribute value, returning the referenced contexts.
type Resolver func(value string) (resolved interface{}, refs []ContextInfo, err error)

// TraceControl records the attributes of a control in a traced namespace.
// It is persisted only when at least one binding context was referenced.
func (R *Recorder) TraceControl(el *etree.Element, resolve Resolver, viewInfo interface{}, macro int) *Record {
	if R == nil || el == nil {
		return nil
	}
	if _, ok := R.Namespaces[el.NamespaceURI()]; !ok {
		return nil
	}
	if r, _ := utf8.DecodeRuneInString(el.Tag); !unicode.IsUpper(r) {
		return nil
	}
	props := make(map[string]interface{}, len(el.Attr))
	var refs []ContextInfo
	for _, a := range el.Attr {
		if a.Space == "xmlns" || (a.Space == "" && a.Key == "xmlns") || a.Space == "trace" {
			continue
		}
		at := AttrTrace{Original: a.Value, Resolved: Runtime}
		if resolve != nil {
			if v, rs, err := resolve(a.Value); err == nil {
				at.Resolved = v
				refs = append(refs, rs...)
			}
		}
		props[a.FullKey()] = at
	}
	if len(refs) == 0 {
		return nil
	}
	rec := R.push(&Record{
		Control:          el.FullTag(),
		MetadataContexts: refs,
		Properties:       props,
		ViewInfo:         viewInfo,
		MacroInfo:        MacroInfo{MacroID: macro},
	})
	setAttr(el, "traceID", strconv.Itoa(rec.TraceID))
	return rec
}

// SetError flags the record with id.
func (R *Recorder) SetError(id int, err error) {
	if R == nil || err == nil {
		return
	}
	R.mu.Lock()
	defer R.mu.Unlock()
	if id > 0 && id <= len(R.records) {
		R.records[id-1].Error = err.Error()
	}
}

// Get returns a copy of the record with id.
func (R *Recorder) Get(id int) (*Record, bool) {
	if R == nil {
		return nil, false
	}
	R.mu.Lock()
	defer R.mu.Unlock()
	if id <= 0 || id > len(R.records) {
		return nil, false
	}
	rec := *R.records[id-1]
	return &rec, true
}

// TraceInfo returns the records flagged with an error, or all records if none failed.
func (R *Recorder) TraceInfo() []*Record {
	if R == nil {
		return nil
	}
	R.mu.Lock()
	defer R.mu.Unlock()
	var errs []*Record
	for _, rec := range R.records {
		if rec.Error != "" {
			cp := *rec
			errs = append(errs, &cp)
		}
	}
	if len(errs) != 0 {
		return errs
	}
	all := make([]*Record, len(R.records))
	for i, rec := range R.records {
		cp := *rec
		all[i] = &cp
	}
	return all
}

func setAttr(el *etree.Element, key, value string) {
	declare(el, "trace", xmlbuild.TraceNS)
	el.CreateAttr("trace:"+key, value)
}

// declare adds xmlns:prefix to el unless an ancestor already binds prefix.
func declare(el *etree.Element, prefix, uri string) {
	for e := el; e != nil; e = e.Parent() {
		if a := e.SelectAttr("xmlns:" + prefix); a != nil {
			return
		}
	}
	el.CreateAttr("xmlns:"+prefix, uri)
}
