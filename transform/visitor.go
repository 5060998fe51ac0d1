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

package transform

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"github.com/pkg/errors"

	"github.com/UNO-SOFT/bbtemplate/model"
	"github.com/UNO-SOFT/bbtemplate/trace"
	"github.com/UNO-SOFT/bbtemplate/xmlbuild"
)

// errRuntimeBinding marks bindings only the runtime can resolve.
var errRuntimeBinding = errors.New("runtime binding")

var rEmbedded = regexp.MustCompile(`\{[A-Za-z_/@][^{}\s'"]*\}`)

// Visitor walks a document, expanding building blocks with the variables
// in scope. Visitors are immutable: With derives a new one.
type Visitor struct {
	run   *run
	vars  map[string]*model.Context
	macro int
	depth int
}

// Settings returns the ambient settings of the run.
func (V *Visitor) Settings() *Settings { return &V.run.Settings }

// ViewInfo describes the view being processed, for traces.
func (V *Visitor) ViewInfo() map[string]interface{} {
	m := make(map[string]interface{}, len(V.run.Settings.ViewInfo)+1)
	for k, v := range V.run.Settings.ViewInfo {
		m[k] = v
	}
	if V.run.Settings.AppComponent != "" {
		m["appComponent"] = V.run.Settings.AppComponent
	}
	return m
}

// With returns a visitor seeing vars. When replace is set, the current
// variables are dropped, otherwise vars extend them.
func (V *Visitor) With(vars map[string]*model.Context, replace bool) *Visitor {
	W := *V
	W.vars = make(map[string]*model.Context, len(V.vars)+len(vars))
	if !replace {
		for k, v := range V.vars {
			W.vars[k] = v
		}
	}
	for k, v := range vars {
		W.vars[k] = v
	}
	return &W
}

// GetContext returns the context for "name>path", "name" or a plain path
// (which is relative to the metadata model).
func (V *Visitor) GetContext(path string) (*model.Context, bool) {
	var b model.Binding
	if i := strings.IndexByte(path, '>'); i >= 0 {
		b = model.Binding{Model: path[:i], Path: path[i+1:]}
	} else if _, ok := V.vars[path]; ok {
		b = model.Binding{Model: path}
	} else {
		b = model.Binding{Model: model.MetaModel, Path: path}
	}
	return V.contextFor(b)
}

// contextFor resolves a binding against the variables and template-time models.
// Bindings without a model name belong to the runtime.
func (V *Visitor) contextFor(b model.Binding) (*model.Context, bool) {
	if b.Model == "" {
		return nil, false
	}
	if c, ok := V.vars[b.Model]; ok && c != nil {
		return c.Sub(b.Path), true
	}
	if m, ok := V.run.models[b.Model]; ok && m != nil {
		return model.NewContext(b.Model, m, b.Path), true
	}
	return nil, false
}

// GetResult resolves the bindings of value. A value that is a single binding
// yields the bound object; embedded bindings are substituted as text.
func (V *Visitor) GetResult(value string) (interface{}, []trace.ContextInfo, error) {
	if b, ok := model.ParseBinding(value); ok {
		c, ok := V.contextFor(b)
		if !ok {
			return nil, nil, errors.Wrap(errRuntimeBinding, value)
		}
		return c.Object(), []trace.ContextInfo{{Model: b.Model, Path: c.Path}}, nil
	}
	if !strings.Contains(value, "{") {
		return value, nil, nil
	}
	var refs []trace.ContextInfo
	s := rEmbedded.ReplaceAllStringFunc(value, func(m string) string {
		b, ok := model.ParseBinding(m)
		if !ok {
			return m
		}
		c, ok := V.contextFor(b)
		if !ok {
			return m
		}
		s, ok := scalarString(c.Object())
		if !ok {
			return m
		}
		refs = append(refs, trace.ContextInfo{Model: b.Model, Path: c.Path})
		return s
	})
	return s, refs, nil
}

func scalarString(v interface{}) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case bool:
		return strconv.FormatBool(x), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case int:
		return strconv.Itoa(x), true
	case *model.Context:
		return x.GetPath(), x != nil
	}
	return "", false
}

// Visit expands el if it is a registered building block, otherwise resolves
// its attributes and visits its children.
func (V *Visitor) Visit(ctx context.Context, el *etree.Element) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if D, ok := V.run.Registry.Lookup(el.NamespaceURI(), el.Tag); ok {
		return V.expand(ctx, D, el)
	}
	if R := V.run.Recorder; R.Active() {
		R.TraceControl(el, V.GetResult, V.ViewInfo(), V.macro)
	}
	V.VisitAttributes(el)
	return V.VisitChildNodes(ctx, el)
}

// VisitAttributes replaces template-time bindings in el's attributes.
// Attributes bound to nothing are removed; object values keep their binding.
func (V *Visitor) VisitAttributes(el *etree.Element) {
	for i := 0; i < len(el.Attr); i++ {
		a := el.Attr[i]
		if isXMLNS(a) || !strings.Contains(a.Value, "{") {
			continue
		}
		if b, ok := model.ParseBinding(a.Value); ok {
			c, ok := V.contextFor(b)
			if !ok {
				continue
			}
			v := c.Object()
			if v == nil {
				el.Attr = append(el.Attr[:i], el.Attr[i+1:]...)
				i--
				continue
			}
			if s, ok := scalarString(v); ok {
				el.Attr[i].Value = s
			}
			continue
		}
		if v, _, err := V.GetResult(a.Value); err == nil {
			if s, ok := v.(string); ok {
				el.Attr[i].Value = s
			}
		}
	}
}

// VisitChildNodes visits the child elements of el.
func (V *Visitor) VisitChildNodes(ctx context.Context, el *etree.Element) error {
	for _, c := range el.ChildElements() {
		if err := V.Visit(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (V *Visitor) insertFragment(ctx context.Context, name string, el *etree.Element, st *state) error {
	s, ok := V.run.Settings.Fragments[name]
	if !ok {
		return errors.Errorf("fragment %q not found", name)
	}
	doc, err := xmlbuild.Parse(s, V.namespaces(el))
	if err != nil {
		return errors.Wrapf(ErrMalformedOutput, "fragment %q: %v", name, err)
	}
	return V.splice(ctx, el, doc.Root(), st)
}

// namespaces returns the extra declarations block output is parsed with:
// the configured ones and those in scope at the caller.
func (V *Visitor) namespaces(el *etree.Element) map[string]string {
	ns := namespacesInScope(el)
	for k, v := range V.run.Settings.Namespaces {
		ns[k] = v
	}
	return ns
}
