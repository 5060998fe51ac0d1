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

func TestStoreRoundTrip(t *testing.T) {
	S := model.NewStore()
	orig := map[string]interface{}{
		"a": "b",
		"n": []interface{}{1.0, map[string]interface{}{"x": true}},
	}
	key := S.Put(orig)
	if !strings.HasPrefix(key, model.UIDPrefix) || !model.IsStoreKey(key) {
		t.Fatalf("bad key %q", key)
	}
	if !S.Has(key) {
		t.Fatalf("%q is not pending", key)
	}
	// mutating the original must not leak into the store
	orig["a"] = "changed"

	got, ok := S.Take(key)
	if !ok {
		t.Fatal("first Take failed")
	}
	want := map[string]interface{}{
		"a": "b",
		"n": []interface{}{1.0, map[string]interface{}{"x": true}},
	}
	if d := cmp.Diff(want, got); d != "" {
		t.Error(d)
	}
	if S.Has(key) {
		t.Errorf("%q is still pending after Take", key)
	}
	if v, ok := S.Take(key); ok || v != nil {
		t.Errorf("second Take returned %v, %t", v, ok)
	}
}

func TestStoreFlushSweep(t *testing.T) {
	S := model.NewStore()
	var n int
	S.NewID = func() string { n++; return string(rune('a' + n)) }
	k1 := S.Put("one")
	k2 := S.Put(map[string]interface{}{"two": 2})
	if S.Len() != 2 {
		t.Fatalf("Len=%d", S.Len())
	}
	M := model.NewJSONModel(nil)
	if got := S.Flush(M); got != 2 {
		t.Errorf("Flush=%d", got)
	}
	if M.GetObject(k1) != "one" || M.GetObject(k2+"/two") != 2 {
		t.Errorf("flushed model: %#v", M.Data())
	}
	if S.Len() != 0 {
		t.Errorf("Len after flush=%d", S.Len())
	}

	S.Put("leak")
	if swept := S.Sweep(); len(swept) != 1 || S.Len() != 0 {
		t.Errorf("Sweep=%v Len=%d", swept, S.Len())
	}
}
