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
	"fmt"
	"sort"
	"strings"

	"github.com/beevik/etree"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/UNO-SOFT/bbtemplate/model"
	"github.com/UNO-SOFT/bbtemplate/trace"
	"github.com/UNO-SOFT/bbtemplate/xmlbuild"
)

// expand replaces the building block call el with the expansion of D.
// Errors other than cancellation are rendered in place of el.
func (V *Visitor) expand(ctx context.Context, D *Definition, el *etree.Element) (err error) {
	R := V.run
	st := newState(V, D, el)
	key := st.exp.Key()
	R.calls[key]++
	caller := elementString(el)
	// own is the trace id of this call, zero until it is recorded
	var own int
	logger := st.logger()

	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("%s: panic: %v", el.FullTag(), r)
		}
		if err == nil || isCanceled(ctx, err) {
			return
		}
		if Rec := R.Recorder; Rec.Active() && own == 0 {
			own = Rec.TraceMacroCalls(nil, key, contextInfos(st.contexts), st.initial, V.ViewInfo(), V.macro).TraceID
		}
		err = V.renderError(st, caller, own, err)
	}()

	maxDepth := R.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	if V.depth >= maxDepth {
		return errors.Errorf("%s: building blocks nested deeper than %d", el.FullTag(), maxDepth)
	}

	st.processProperties()
	st.processChildren()
	st.processContexts()
	if len(st.missing) != 0 {
		logger.Debug("unresolved contexts", zap.Strings("missing", st.missingContexts()))
	}
	st.normalize()

	props := make(Props, len(st.props)+len(st.aggregations))
	for k, v := range st.props {
		props[k] = v
	}
	for k, w := range st.aggregations {
		if _, ok := props[k]; !ok {
			props[k] = w
		}
	}
	block, err := D.New(props, R.Settings.ControlConfig[getAttr(el.Attr, "id")], &R.Settings)
	if err != nil {
		return errors.WithMessage(err, el.FullTag())
	}
	eff := block.Properties()
	if eff == nil {
		eff = props
	}
	st.promote(eff)

	this := thisData(eff)
	vars := make(map[string]*model.Context, len(st.contexts)+1)
	for k, c := range st.contexts {
		vars[k] = c
	}
	vars["this"] = model.NewContext("this", model.NewJSONModel(this), "")

	macro := V.macro
	if Rec := R.Recorder; Rec.Active() {
		own = Rec.TraceMacroCalls(el, key, contextInfos(st.contexts), this, V.ViewInfo(), V.macro).TraceID
		macro = own
	}

	if err := ValidateSignature(el.FullTag(), D.Metadata, st.contexts, el, logger); err != nil {
		return err
	}

	child := V.With(vars, !st.exp.IsOpen)
	child.depth = V.depth + 1
	child.macro = macro

	if st.exp.Fragment != "" {
		return child.insertFragment(ctx, st.exp.Fragment, el, st)
	}
	T, ok := block.(Templater)
	if !ok {
		st.dropImplicit()
		removeElement(el)
		return nil
	}
	ns := V.namespaces(el)
	B := &xmlbuild.Builder{Store: R.store, Namespaces: ns}
	s, err := T.Template(ctx, el, B)
	if err != nil {
		return errors.WithMessage(err, el.FullTag()+": template")
	}
	if st.exp.IsRuntime {
		R.store.Flush(R.converter)
	}
	if strings.TrimSpace(s) == "" {
		st.dropImplicit()
		removeElement(el)
		return nil
	}
	doc, perr := xmlbuild.Parse(s, ns)
	if perr != nil {
		logger.Warn("malformed output, rendering again in trace mode", zap.Error(perr))
		B.TraceRender = true
		if s, err = T.Template(ctx, el, B); err != nil {
			return errors.WithMessage(err, el.FullTag()+": template")
		}
		if st.exp.IsRuntime {
			R.store.Flush(R.converter)
		}
		if doc, err = xmlbuild.Parse(s, ns); err != nil {
			return errors.Wrapf(ErrMalformedOutput, "%s: %v", el.FullTag(), perr)
		}
	}
	if text := trailingText(doc.Root()); text != "" {
		logger.Warn("text outside of elements", zap.String("text", text))
		msg := "Error! The building block produced text outside of any element: " + text
		R.Recorder.SetError(own, errors.New(msg))
		return V.replaceWith(el, xmlbuild.Diagnostic{
			Messages: []string{msg},
			Caller:   caller,
		}.Render())
	}
	return child.splice(ctx, el, doc.Root(), st)
}

// normalize runs the Validate callbacks and dereferences contexts that do
// not point into the metadata model.
func (st *state) normalize() {
	names := make([]string, 0, len(st.exp.propNames)+len(st.exp.contextNames))
	names = append(append(names, st.exp.propNames...), st.exp.contextNames...)
	for _, name := range names {
		pd := st.exp.properties[name]
		if pd == nil {
			pd = st.exp.contexts[name]
		}
		v, ok := st.props[name]
		if pd.Validate != nil {
			if nv := pd.Validate(v); nv != nil || ok {
				st.props[name] = nv
			}
		}
		if c, ok := st.props[name].(*model.Context); ok && c.ModelName != model.MetaModel {
			st.props[name] = c.Object()
		}
	}
}

// promote registers the context-typed effective properties as contexts.
// Plain objects are staged in the converter model through the store.
func (st *state) promote(eff Props) {
	R := st.V.run
	for _, name := range st.exp.contextNames {
		if _, ok := st.contexts[name]; ok {
			continue
		}
		switch v := eff[name].(type) {
		case nil, string:
		case *model.Context:
			st.addContext(name, v.Named(name))
		default:
			key := R.store.Put(v)
			obj, _ := R.store.Take(key)
			R.converter.SetProperty(key, obj)
			c := model.NewContext(model.ConverterModel, R.converter, key)
			c.Name = name
			st.addContext(name, c)
		}
	}
}

// thisData is the content of the "this" model: the effective properties with
// contexts reduced to their paths.
func thisData(eff Props) map[string]interface{} {
	m := make(map[string]interface{}, len(eff))
	for k, v := range eff {
		switch x := v.(type) {
		case *etree.Element:
		case *model.Context:
			m[k] = x.GetPath()
		default:
			m[k] = x
		}
	}
	return m
}

func contextInfos(contexts map[string]*model.Context) []trace.ContextInfo {
	infos := make([]trace.ContextInfo, 0, len(contexts))
	for k, c := range contexts {
		infos = append(infos, trace.ContextInfo{Name: k, Model: c.ModelName, Path: c.GetPath()})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

func trailingText(root *etree.Element) string {
	var parts []string
	for _, t := range root.Child {
		if cd, ok := t.(*etree.CharData); ok {
			if s := strings.TrimSpace(cd.Data); s != "" {
				parts = append(parts, s)
			}
		}
	}
	return strings.Join(parts, " ")
}

func isCanceled(ctx context.Context, err error) bool {
	if ctx.Err() == nil {
		return false
	}
	cause := errors.Cause(err)
	return cause == context.Canceled || cause == context.DeadlineExceeded
}

// renderError replaces the failed call with a diagnostic block and flags
// its trace record.
func (V *Visitor) renderError(st *state, caller string, own int, err error) error {
	R := V.run
	tag := st.el.FullTag()
	st.logger().Error("building block failed", zap.Error(err))
	if own != 0 {
		R.Recorder.SetError(own, err)
	}
	resolved := make(map[string]interface{}, len(st.props))
	for k, v := range st.props {
		switch x := v.(type) {
		case *etree.Element:
			resolved[k] = elementString(x)
		case *model.Context:
			resolved[k] = map[string]interface{}{"path": x.GetPath(), "value": x.Object()}
		default:
			resolved[k] = x
		}
	}
	D := xmlbuild.Diagnostic{
		Messages: []string{"Error! While processing building block " + tag, err.Error()},
		Caller:   caller,
		TraceInfo: map[string]interface{}{
			"initialProperties":  st.initial,
			"resolvedProperties": resolved,
			"missingContexts":    st.missingContexts(),
			"call":               R.calls[st.exp.Key()],
		},
		Stack: fmt.Sprintf("%+v", err),
	}
	if rerr := V.replaceWith(st.el, D.Render()); rerr != nil {
		return errors.WithMessage(rerr, tag)
	}
	return nil
}

// replaceWith puts the parsed fragment s in place of el without visiting it.
func (V *Visitor) replaceWith(el *etree.Element, s string) error {
	p := el.Parent()
	if p == nil {
		return nil
	}
	doc, err := xmlbuild.Parse(s, nil)
	if err != nil {
		return errors.Wrapf(ErrMalformedOutput, "diagnostic: %v", err)
	}
	i := el.Index()
	p.RemoveChildAt(i)
	for _, n := range doc.Root().ChildElements() {
		p.InsertChildAt(i, n)
		declareFrom(n, doc.Root())
		i++
	}
	return nil
}

func removeElement(el *etree.Element) {
	if p := el.Parent(); p != nil {
		p.RemoveChild(el)
	}
}
