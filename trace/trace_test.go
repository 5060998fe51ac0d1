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

package trace_test

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/beevik/etree"
	"github.com/google/go-cmp/cmp"

	"github.com/UNO-SOFT/bbtemplate/trace"
)

func parse(t *testing.T, s string) *etree.Element {
	t.Helper()
	doc := etree.NewDocument()
	if err := doc.ReadFromString(s); err != nil {
		t.Fatal(err)
	}
	return doc.Root()
}

func TestActiveFromQuery(t *testing.T) {
	for q, want := range map[string]bool{
		"sap-ui-xx-feTraceInfo=true":         true,
		"a=b&sap-ui-xx-feTraceInfo=true":     true,
		"sap-ui-xx-feTraceInfo=false":        false,
		"":                                   false,
		"sap-ui-xx-feTraceInfo=true&x=%zz%%": false,
	} {
		if got := trace.ActiveFromQuery(q); got != want {
			t.Errorf("%q: got %t", q, got)
		}
	}
	var R *trace.Recorder
	if R.Active() {
		t.Error("nil recorder is active")
	}
	if R.TraceMacroCalls(nil, "x", nil, nil, nil, 0) != nil {
		t.Error("nil recorder recorded")
	}
}

func TestTraceMacroCalls(t *testing.T) {
	R := trace.New(nil)
	root := parse(t, `<View xmlns:macros="sap.fe.macros"><macros:Table/><macros:Field/></View>`)
	tbl, fld := root.ChildElements()[0], root.ChildElements()[1]
	r1 := R.TraceMacroCalls(tbl, "sap.fe.macros.Table",
		[]trace.ContextInfo{{Name: "contextPath", Path: "/Products"}},
		map[string]interface{}{"id": "t1"}, nil, 0)
	r2 := R.TraceMacroCalls(fld, "sap.fe.macros.Field", nil, nil, nil, r1.MacroInfo.MacroID)

	if d := cmp.Diff(trace.MacroInfo{MacroID: 2, ParentMacroID: 1}, r2.MacroInfo); d != "" {
		t.Error(d)
	}
	if got := tbl.SelectAttrValue("trace:macroID", ""); got != "1" {
		t.Errorf("macroID attribute=%q", got)
	}
	got, ok := R.Get(2)
	if !ok {
		t.Fatal("Get(2) failed")
	}
	if d := cmp.Diff(*r2, *got); d != "" {
		t.Error(d)
	}
	got.Error = "changed"
	if again, _ := R.Get(2); again.Error != "" {
		t.Errorf("Get returned the stored record: %q", again.Error)
	}
	if _, ok := R.Get(3); ok {
		t.Error("Get(3) should fail")
	}
	if got := R.TraceInfo(); len(got) != 2 {
		t.Errorf("TraceInfo=%d records", len(got))
	}
	R.SetError(2, errors.New("boom"))
	if got := R.TraceInfo(); len(got) != 1 || got[0].TraceID != 2 || got[0].Error != "boom" {
		t.Errorf("TraceInfo with error=%v", got)
	}
}

func TestConcurrentReads(t *testing.T) {
	R := trace.New(nil)
	for i := 0; i < 10; i++ {
		R.TraceMacroCalls(nil, "sap.fe.macros.Field", nil, map[string]interface{}{"i": i}, nil, 0)
	}
	var wg sync.WaitGroup
	for i := 1; i <= 10; i++ {
		wg.Add(2)
		go func(id int) {
			defer wg.Done()
			R.SetError(id, errors.New("boom"))
		}(i)
		go func(id int) {
			defer wg.Done()
			if rec, ok := R.Get(id); ok {
				_ = rec.Error
			}
			for _, rec := range R.TraceInfo() {
				_ = rec.Error
			}
		}(i)
	}
	wg.Wait()
	for _, rec := range R.TraceInfo() {
		if rec.MacroInfo.MacroID != rec.TraceID {
			t.Errorf("record %d has macroID %d", rec.TraceID, rec.MacroInfo.MacroID)
		}
	}
	if n := len(R.TraceInfo()); n != 10 {
		t.Errorf("got %d failed records", n)
	}
}

func TestTraceControl(t *testing.T) {
	R := trace.New(nil, "sap.m")
	root := parse(t, `<View xmlns:m="sap.m" xmlns:x="other">`+
		`<m:Text text="{this>id}" width="10"/><m:Text text="plain"/><m:items/><x:Text text="{a>b}"/></View>`)
	resolve := func(v string) (interface{}, []trace.ContextInfo, error) {
		if strings.HasPrefix(v, "{this>") {
			return "resolved", []trace.ContextInfo{{Model: "this", Path: "id"}}, nil
		}
		if strings.HasPrefix(v, "{") {
			return nil, nil, errors.New("runtime")
		}
		return v, nil, nil
	}
	var recs []*trace.Record
	for _, el := range root.ChildElements() {
		if rec := R.TraceControl(el, resolve, nil, 7); rec != nil {
			recs = append(recs, rec)
		}
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records, wanted 1", len(recs))
	}
	rec := recs[0]
	want := map[string]interface{}{
		"text":  trace.AttrTrace{Original: "{this>id}", Resolved: "resolved"},
		"width": trace.AttrTrace{Original: "10", Resolved: "10"},
	}
	if d := cmp.Diff(want, rec.Properties); d != "" {
		t.Error(d)
	}
	if rec.MacroInfo.MacroID != 7 || rec.Control != "m:Text" {
		t.Errorf("record: %+v", rec)
	}
	if got := root.ChildElements()[0].SelectAttrValue("trace:traceID", ""); got != "1" {
		t.Errorf("traceID=%q", got)
	}
}
