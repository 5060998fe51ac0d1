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

package model_test

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/UNO-SOFT/bbtemplate/model"
)

const metadata = `{
  "$kind": "EntityContainer",
  "Products": {"$kind": "EntitySet", "$Type": "Product",
    "@UI.LineItem": [{"Value": "Name"}, {"Value": "Price"}]},
  "Product": {"$kind": "EntityType", "Name": {"$Type": "Edm.String"}}
}`

func TestJSONModel(t *testing.T) {
	M, err := model.LoadJSONModel(strings.NewReader(metadata))
	if err != nil {
		t.Fatal(err)
	}
	for _, tc := range []struct {
		Path string
		Want interface{}
	}{
		{"/Products/$kind", "EntitySet"},
		{"Products/$Type", "Product"},
		{"/Products/@UI.LineItem/1/Value", "Price"},
		{"/Products/@UI.LineItem/9/Value", nil},
		{"/Product/Name/", map[string]interface{}{"$Type": "Edm.String"}},
		{"/Nope", nil},
	} {
		if d := cmp.Diff(tc.Want, M.GetObject(tc.Path)); d != "" {
			t.Errorf("%s: %s", tc.Path, d)
		}
	}

	S := model.NewJSONModel(nil)
	if !S.SetProperty("/a/b/c", 1) {
		t.Fatal("SetProperty /a/b/c failed")
	}
	if S.SetProperty("/a/b/c/d", 2) {
		t.Error("SetProperty below a scalar should fail")
	}
	if got := S.GetObject("/a/b/c"); got != 1 {
		t.Errorf("got %v, wanted 1", got)
	}
}

func TestJoinPath(t *testing.T) {
	for _, tc := range [][3]string{
		{"/Products", "Name", "/Products/Name"},
		{"/Products/", "Name", "/Products/Name"},
		{"/Products", "/Orders", "/Orders"},
		{"", "Name", "Name"},
		{"/Products", "", "/Products"},
	} {
		if got := model.JoinPath(tc[0], tc[1]); got != tc[2] {
			t.Errorf("JoinPath(%q, %q)=%q, wanted %q", tc[0], tc[1], got, tc[2])
		}
	}
}

func TestParseBinding(t *testing.T) {
	for _, tc := range []struct {
		In   string
		Want model.Binding
		OK   bool
	}{
		{"{/Products}", model.Binding{Path: "/Products"}, true},
		{"{metaModel>/Products/Name}", model.Binding{Model: "metaModel", Path: "/Products/Name"}, true},
		{"{path: '/Products', model: 'metaModel'}", model.Binding{Model: "metaModel", Path: "/Products"}, true},
		{"{path:'this>id'}", model.Binding{Model: "this", Path: "id"}, true},
		{"{= ${a} + 1}", model.Binding{}, false},
		{"Hello {this>name}", model.Binding{}, false},
		{"/Products", model.Binding{}, false},
		{"{>x}", model.Binding{}, false},
	} {
		got, ok := model.ParseBinding(tc.In)
		if ok != tc.OK {
			t.Errorf("%q: ok=%t, wanted %t", tc.In, ok, tc.OK)
			continue
		}
		if d := cmp.Diff(tc.Want, got); d != "" {
			t.Errorf("%q: %s", tc.In, d)
		}
	}
}

func TestContext(t *testing.T) {
	M, err := model.LoadJSONModel(strings.NewReader(metadata))
	if err != nil {
		t.Fatal(err)
	}
	c := model.NewContext(model.MetaModel, M, "/Products")
	if got := c.Object().(map[string]interface{})["$kind"]; got != "EntitySet" {
		t.Errorf("$kind=%v", got)
	}
	if got := c.Sub("$Type").Object(); got != "Product" {
		t.Errorf("sub=%v", got)
	}
	if got := c.Named("entitySet").String(); got != "metaModel>/Products" {
		t.Errorf("String=%q", got)
	}
	var nilCtx *model.Context
	if nilCtx.Object() != nil || nilCtx.GetPath() != "" {
		t.Error("nil context should be empty")
	}
}
