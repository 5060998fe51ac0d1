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

package transform_test

import (
	"strings"
	"testing"

	"github.com/beevik/etree"
	"github.com/google/go-cmp/cmp"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/UNO-SOFT/bbtemplate/model"
	"github.com/UNO-SOFT/bbtemplate/trace"
	"github.com/UNO-SOFT/bbtemplate/transform"
	"github.com/UNO-SOFT/bbtemplate/xmlbuild"
)

func (f *fixture) register(t *testing.T, M *transform.Metadata, New transform.Factory) *transform.Definition {
	t.Helper()
	if M.Namespace == "" {
		M.Namespace = myNS
	}
	D := &transform.Definition{Metadata: M, New: New}
	if err := f.P.Registry.Register(D); err != nil {
		t.Fatal(err)
	}
	return D
}

func textsOf(doc *etree.Document) []string {
	var texts []string
	for _, el := range doc.FindElements("//Text") {
		texts = append(texts, el.SelectAttrValue("text", ""))
	}
	return texts
}

// traceInfos decodes the JSON trace panels of the rendered diagnostics.
func traceInfos(t *testing.T, doc *etree.Document) []map[string]interface{} {
	t.Helper()
	var infos []map[string]interface{}
	for _, el := range doc.FindElements("//CodeEditor[@type='json']") {
		s, ok := xmlbuild.DecodePanel(el.SelectAttrValue("value", ""))
		if !ok {
			t.Fatalf("undecodable panel %q", el.SelectAttrValue("value", ""))
		}
		var m map[string]interface{}
		if err := jsoniter.UnmarshalFromString(s, &m); err != nil {
			t.Fatalf("%s: %v", s, err)
		}
		infos = append(infos, m)
	}
	return infos
}

func TestTraceFailingCall(t *testing.T) {
	f := newFixture()
	f.P.Recorder = trace.New(nil, "sap.m")
	f.define(t, &transform.Metadata{Name: "Outer"}, func(B *xmlbuild.Builder, _ transform.Props) string {
		return B.XML(`<my:Inner id="in"/>`)
	})
	f.register(t, &transform.Metadata{
		Name:       "Inner",
		Properties: map[string]*transform.Property{"id": {Type: transform.TypeString}},
	}, func(transform.Props, map[string]interface{}, *transform.Settings) (transform.Block, error) {
		return nil, errors.New("inner factory failed")
	})
	f.process(t, `<my:Outer/>`)

	outer, ok := f.P.Recorder.Get(1)
	if !ok || outer.Macro != myNS+".Outer" || outer.Error != "" {
		t.Errorf("outer: %+v", outer)
	}
	inner, ok := f.P.Recorder.Get(2)
	if !ok {
		t.Fatal("no record for the failing call")
	}
	if d := cmp.Diff(trace.MacroInfo{MacroID: 2, ParentMacroID: 1}, inner.MacroInfo); d != "" {
		t.Error(d)
	}
	if inner.Macro != myNS+".Inner" || !strings.Contains(inner.Error, "inner factory failed") {
		t.Errorf("inner: %+v", inner)
	}
	if d := cmp.Diff(map[string]interface{}{"id": "in"}, inner.Properties); d != "" {
		t.Error(d)
	}
	failed := f.P.Recorder.TraceInfo()
	if len(failed) != 1 || failed[0].TraceID != 2 {
		t.Errorf("TraceInfo=%+v", failed)
	}
}

func TestTraceDepthLimit(t *testing.T) {
	f := newFixture()
	f.P.Recorder = trace.New(nil)
	f.P.MaxDepth = 2
	f.define(t, &transform.Metadata{Name: "Loop"}, func(B *xmlbuild.Builder, _ transform.Props) string {
		return B.XML(`<my:Loop/>`)
	})
	f.process(t, `<my:Loop/>`)
	failed := f.P.Recorder.TraceInfo()
	if len(failed) != 1 {
		t.Fatalf("TraceInfo=%+v", failed)
	}
	if d := cmp.Diff(trace.MacroInfo{MacroID: 3, ParentMacroID: 2}, failed[0].MacroInfo); d != "" {
		t.Error(d)
	}
	if !strings.Contains(failed[0].Error, "nested deeper than 2") {
		t.Errorf("error=%q", failed[0].Error)
	}
}

func TestDiagnosticTraceInfo(t *testing.T) {
	f := newFixture()
	f.define(t, &transform.Metadata{
		Name:       "Req",
		Properties: map[string]*transform.Property{"foo": {Type: transform.TypeString, Required: true}},
	}, textOf)
	doc, out := f.process(t, `<my:Req/><my:Req foo="x"/><my:Req bar="y"/>`)
	infos := traceInfos(t, doc)
	if len(infos) != 2 {
		t.Fatalf("got %d diagnostics:\n%s", len(infos), out)
	}
	var calls []interface{}
	var initial []interface{}
	for _, m := range infos {
		calls = append(calls, m["call"])
		initial = append(initial, m["initialProperties"])
	}
	if d := cmp.Diff([]interface{}{1.0, 3.0}, calls); d != "" {
		t.Error(d)
	}
	want := []interface{}{map[string]interface{}{}, map[string]interface{}{"bar": "y"}}
	if d := cmp.Diff(want, initial); d != "" {
		t.Error(d)
	}
}

func TestNormalize(t *testing.T) {
	f := newFixture()
	f.P.Settings.Models["cfg"] = model.NewJSONModel(map[string]interface{}{
		"settings": map[string]interface{}{"theme": "dark"},
	})
	f.define(t, &transform.Metadata{
		Name: "Norm",
		Properties: map[string]*transform.Property{
			"size": {Type: transform.TypeString, Validate: func(v interface{}) interface{} {
				if s, ok := v.(string); ok {
					return strings.ToUpper(s)
				}
				return "M"
			}},
			"data": {Type: transform.TypeObject},
			"meta": {Type: transform.TypeContext},
		},
	}, nil)
	f.process(t, `<my:Norm size="s" data="{cfg>/settings}" meta="/Products"/><my:Norm/>`)

	got := f.got["Norm"]
	if len(got) != 2 {
		t.Fatalf("got %d calls", len(got))
	}
	if d := cmp.Diff(map[string]interface{}{"theme": "dark"}, got[0]["data"]); d != "" {
		t.Error(d)
	}
	if c, ok := got[0]["meta"].(*model.Context); !ok || c.String() != "metaModel>/Products" {
		t.Errorf("meta context was dereferenced: %#v", got[0]["meta"])
	}
	var sizes []interface{}
	for _, p := range got {
		sizes = append(sizes, p["size"])
	}
	if d := cmp.Diff([]interface{}{"S", "M"}, sizes); d != "" {
		t.Error(d)
	}
}

func TestPromote(t *testing.T) {
	f := newFixture()
	f.register(t, &transform.Metadata{
		Name:       "Promo",
		Properties: map[string]*transform.Property{"data": {Type: transform.TypeObject}},
	}, func(props transform.Props, _ map[string]interface{}, _ *transform.Settings) (transform.Block, error) {
		eff := transform.Props{"data": map[string]interface{}{"x": "y"}}
		return tmplBlock{Props: eff, tmpl: func(B *xmlbuild.Builder, _ transform.Props) string {
			return B.XML(`<m:Text text="{data>x}"/>`)
		}}, nil
	})
	doc, out := f.process(t, `<my:Promo/>`)
	if d := cmp.Diff([]string{"y"}, textsOf(doc)); d != "" {
		t.Errorf("%s\n%s", d, out)
	}
	if n := f.logs.FilterMessage("unconsumed temporary objects").Len(); n != 0 {
		t.Errorf("%d leaks", n)
	}
}

func TestOpenScope(t *testing.T) {
	f := newFixture()
	f.define(t, &transform.Metadata{
		Name:       "Outer",
		Properties: map[string]*transform.Property{"contextPath": {Type: transform.TypeContext}},
	}, func(B *xmlbuild.Builder, _ transform.Props) string {
		return B.XML(`<my:Open/><my:Closed/>`)
	})
	kind := func(B *xmlbuild.Builder, _ transform.Props) string {
		return B.XML(`<m:Text text="{contextPath>$kind}"/>`)
	}
	f.define(t, &transform.Metadata{Name: "Open", IsOpen: true}, kind)
	f.define(t, &transform.Metadata{Name: "Closed"}, kind)

	doc, out := f.process(t, `<my:Outer contextPath="/Products"/>`)
	if d := cmp.Diff([]string{"EntitySet", "{contextPath>$kind}"}, textsOf(doc)); d != "" {
		t.Errorf("%s\n%s", d, out)
	}
}

func TestRuntimeFlush(t *testing.T) {
	data := map[string]interface{}{"a": "b"}
	f := newFixture()
	f.define(t, &transform.Metadata{Name: "Runtime", IsRuntime: true}, func(B *xmlbuild.Builder, _ transform.Props) string {
		return B.XML(`<m:Text text="`, data, `"/><my:Inner data="`, data, `"/>`)
	})
	f.define(t, &transform.Metadata{
		Name:       "Inner",
		Properties: map[string]*transform.Property{"data": {Type: transform.TypeObject}},
	}, nil)
	f.define(t, &transform.Metadata{Name: "Plain"}, func(B *xmlbuild.Builder, _ transform.Props) string {
		return B.XML(`<m:Text text="`, data, `"/>`)
	})

	doc, out := f.process(t, `<my:Runtime/>`)
	texts := textsOf(doc)
	if len(texts) != 1 || !model.IsStoreKey(texts[0]) {
		t.Errorf("got %q\n%s", texts, out)
	}
	if len(f.got["Inner"]) != 1 {
		t.Fatalf("Inner called %d times", len(f.got["Inner"]))
	}
	if d := cmp.Diff(data, f.got["Inner"][0]["data"]); d != "" {
		t.Error(d)
	}
	if n := f.logs.FilterMessage("unconsumed temporary objects").Len(); n != 0 {
		t.Errorf("%d leaks after a runtime block", n)
	}

	f.process(t, `<my:Plain/>`)
	if n := f.logs.FilterMessage("unconsumed temporary objects").Len(); n != 1 {
		t.Errorf("%d leaks after a plain block", n)
	}
}

func TestResolveEntitySet(t *testing.T) {
	f := newFixture()
	f.define(t, &transform.Metadata{
		Name: "Table",
		Properties: map[string]*transform.Property{
			"entitySet": {Type: transform.TypeContext},
			"property":  {Type: transform.TypeContext},
			"absolute":  {Type: transform.TypeContext},
		},
	}, nil)
	f.process(t, `<my:Table entitySet="/Products" property="Name" absolute="/Container"/>`)
	got := f.got["Table"][0]
	paths := make(map[string]string, len(got))
	for k, v := range got {
		c, ok := v.(*model.Context)
		if !ok {
			t.Fatalf("%s is %T", k, v)
		}
		paths[k] = c.String()
	}
	want := map[string]string{
		"entitySet": "metaModel>/Products",
		"property":  "metaModel>/Products/Name",
		"absolute":  "metaModel>/Container",
	}
	if d := cmp.Diff(want, paths); d != "" {
		t.Error(d)
	}
}

func TestUnregister(t *testing.T) {
	f := newFixture()
	D := f.register(t, &transform.Metadata{
		Name:            "Text",
		PublicNamespace: "my.public",
		Properties:      map[string]*transform.Property{"value": {Type: transform.TypeString}},
	}, func(props transform.Props, _ map[string]interface{}, _ *transform.Settings) (transform.Block, error) {
		return tmplBlock{Props: props, tmpl: textOf}, nil
	})
	const in = `<my:Text value="a"/><pub:Text xmlns:pub="my.public" value="b"/>`
	doc, out := f.process(t, in)
	if d := cmp.Diff([]string{"a", "b"}, textsOf(doc)); d != "" {
		t.Errorf("%s\n%s", d, out)
	}

	f.P.Registry.Unregister(D)
	for _, space := range []string{myNS, "my.public"} {
		if _, ok := f.P.Registry.Lookup(space, "Text"); ok {
			t.Errorf("%s:Text is still registered", space)
		}
	}
	doc, out = f.process(t, in)
	if n := len(doc.FindElements("//Text[@value]")); n != 2 {
		t.Errorf("got %d unexpanded calls:\n%s", n, out)
	}
}
