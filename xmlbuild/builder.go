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

// Package xmlbuild assembles XML strings from literal fragments and typed values.
package xmlbuild

import (
	"sort"
	"strings"

	"github.com/beevik/etree"
	"github.com/pkg/errors"

	"github.com/UNO-SOFT/bbtemplate/model"
)

// Namespace URIs used by generated fragments.
const (
	TemplateNS   = "http://schemas.sap.com/sapui5/extension/sap.ui.core.template/1"
	CustomDataNS = "http://schemas.sap.com/sapui5/extension/sap.ui.core.CustomData/1"
	TraceNS      = "http://schemas.sap.com/sapui5/preprocessorextension/sap.fe.unittesting/1"
)

// DefaultNamespaces are declared on the synthetic root every fragment is parsed in.
var DefaultNamespaces = map[string]string{
	"m":          "sap.m",
	"macros":     "sap.fe.macros",
	"core":       "sap.ui.core",
	"mdc":        "sap.ui.mdc",
	"customData": CustomDataNS,
	"template":   TemplateNS,
	"trace":      TraceNS,
	"code":       "sap.ui.codeeditor",
	"grid":       "sap.ui.layout",
}

// Builder assembles XML strings. The zero value is usable.
type Builder struct {
	Store *model.Store
	// TraceRender validates every assembled string, replacing broken
	// output with a diagnostic block.
	TraceRender bool
	// Namespaces are declared in addition to DefaultNamespaces when validating.
	Namespaces map[string]string
}

func (B *Builder) store() *model.Store {
	if B.Store == nil {
		B.Store = model.NewStore()
	}
	return B.Store
}

// XML concatenates parts, which alternate between literal fragments (even
// positions, written as is) and values (odd positions, converted with ValueOf).
//
//	B.XML(`<m:Text text="`, s, `"/>`)
func (B *Builder) XML(parts ...interface{}) string {
	var buf strings.Builder
	for i, p := range parts {
		if i%2 == 0 {
			if s, ok := p.(string); ok {
				buf.WriteString(s)
				continue
			}
		}
		buf.WriteString(ValueOf(p).insert(B))
	}
	s := strings.TrimSpace(buf.String())
	if B.TraceRender {
		if err := Check(s, B.Namespaces); err != nil {
			return Diagnostic{
				Messages: []string{"Error! Invalid XML: " + err.Error()},
				Caller:   s,
			}.Render()
		}
	}
	return s
}

// Wrap surrounds s with a root element declaring the default and extra namespaces.
func Wrap(s string, extra map[string]string) string {
	ns := make(map[string]string, len(DefaultNamespaces)+len(extra))
	for k, v := range DefaultNamespaces {
		ns[k] = v
	}
	for k, v := range extra {
		ns[k] = v
	}
	keys := make([]string, 0, len(ns))
	for k := range ns {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf strings.Builder
	buf.WriteString("<root")
	for _, k := range keys {
		buf.WriteString(" xmlns")
		if k != "" {
			buf.WriteString(":" + k)
		}
		buf.WriteString(`="` + EscapeAttr(ns[k]) + `"`)
	}
	buf.WriteString(">")
	buf.WriteString(s)
	buf.WriteString("</root>")
	return buf.String()
}

// Parse parses s inside a Wrap root.
func Parse(s string, extra map[string]string) (*etree.Document, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(Wrap(s, extra)); err != nil {
		return nil, errors.Wrap(err, "parse")
	}
	if doc.Root() == nil {
		return nil, errors.New("parse: no root")
	}
	return doc, nil
}

// Check reports whether s parses as XML content.
func Check(s string, extra map[string]string) error {
	_, err := Parse(s, extra)
	return err
}
