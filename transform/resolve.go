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
	"strings"

	"github.com/UNO-SOFT/bbtemplate/model"
)

// resolveContext maps the attribute name of st.el to a metadata context.
// Failures are not errors: the caller records the name as missing.
func (st *state) resolveContext(name string) (*model.Context, bool) {
	R := st.V.run
	i := findAttr(st.el.Attr, name)
	if i < 0 {
		// pass-through of a binding context of the same name
		if c, ok := st.bindings[name]; ok && c != nil {
			return c.Named(name), true
		}
		if pd := st.exp.contexts[name]; pd != nil {
			if s, ok := pd.DefaultValue.(string); ok && s != "" {
				return st.resolvePath(name, s)
			}
		}
		if st.exp.IsOpen {
			if c, ok := st.V.GetContext(name); ok {
				return c.Named(name), true
			}
		}
		return nil, false
	}
	value := st.el.Attr[i].Value
	if b, ok := model.ParseBinding(value); ok {
		c, ok := st.V.contextFor(b)
		if !ok {
			return nil, false
		}
		return c.Named(name), true
	}
	if model.IsStoreKey(value) {
		if R.store.Has(value) {
			v, _ := R.store.Take(value)
			R.converter.SetProperty(value, v)
		} else if R.converter.GetObject(value) == nil {
			return nil, false
		}
		c := model.NewContext(model.ConverterModel, R.converter, value)
		c.Name = name
		return c, true
	}
	return st.resolvePath(name, value)
}

func (st *state) resolvePath(name, value string) (*model.Context, bool) {
	meta, ok := st.V.run.models[model.MetaModel]
	if !ok || meta == nil {
		return nil, false
	}
	var path string
	switch {
	case (name == "metaPath" && st.contextPath != "") || name == "contextPath":
		path = model.JoinPath(st.contextPath, value)
	case strings.HasPrefix(value, "/"):
		path = value
	default:
		if es, ok := st.bindings["entitySet"]; ok && es != nil {
			return es.Sub(value).Named(name), true
		}
		path = value
	}
	c := model.NewContext(model.MetaModel, meta, path)
	c.Name = name
	return c, true
}
