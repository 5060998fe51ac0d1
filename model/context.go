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

package model

import "strings"

// Context is a named pointer into one model.
type Context struct {
	Name      string
	ModelName string
	Path      string
	Model     Model
}

// NewContext returns a context over m at path.
func NewContext(modelName string, m Model, path string) *Context {
	return &Context{ModelName: modelName, Model: m, Path: path}
}

// GetPath returns the path of the context.
func (c *Context) GetPath() string {
	if c == nil {
		return ""
	}
	return c.Path
}

// Object dereferences the context.
func (c *Context) Object() interface{} {
	if c == nil || c.Model == nil {
		return nil
	}
	return c.Model.GetObject(c.Path)
}

// Sub returns a context relative to c.
func (c *Context) Sub(rel string) *Context {
	return &Context{ModelName: c.ModelName, Model: c.Model, Path: JoinPath(c.Path, rel)}
}

// Named returns a copy of c carrying name.
func (c *Context) Named(name string) *Context {
	d := *c
	d.Name = name
	return &d
}

func (c *Context) String() string {
	if c == nil {
		return "<nil>"
	}
	if c.ModelName == "" {
		return c.Path
	}
	return c.ModelName + ">" + c.Path
}

// Binding is a parsed simple binding: {model>path} or {path}.
type Binding struct {
	Model string
	Path  string
}

func (b Binding) String() string {
	if b.Model == "" {
		return "{" + b.Path + "}"
	}
	return "{" + b.Model + ">" + b.Path + "}"
}

// ParseBinding parses s as a single binding.
// Accepted forms are "{path}", "{model>path}" and the object form
// "{path: 'p', model: 'm'}". Expression bindings ("{= ...}") and strings
// with text around the braces are not bindings.
func ParseBinding(s string) (Binding, bool) {
	s = strings.TrimSpace(s)
	if len(s) < 3 || s[0] != '{' || s[len(s)-1] != '}' {
		return Binding{}, false
	}
	inner := strings.TrimSpace(s[1 : len(s)-1])
	if inner == "" || inner[0] == '=' || strings.ContainsAny(inner, "{}") {
		return Binding{}, false
	}
	if strings.Contains(inner, ":") && strings.ContainsAny(inner, `'"`) {
		return parseObjectBinding(inner)
	}
	if strings.ContainsAny(inner, " \t\r\n,'\"") {
		return Binding{}, false
	}
	if i := strings.IndexByte(inner, '>'); i >= 0 {
		if i == 0 {
			return Binding{}, false
		}
		return Binding{Model: inner[:i], Path: inner[i+1:]}, true
	}
	return Binding{Path: inner}, true
}

func parseObjectBinding(inner string) (Binding, bool) {
	var b Binding
	for _, part := range strings.Split(inner, ",") {
		i := strings.IndexByte(part, ':')
		if i < 0 {
			return Binding{}, false
		}
		k := strings.TrimSpace(part[:i])
		v := strings.Trim(strings.TrimSpace(part[i+1:]), `'"`)
		switch k {
		case "path":
			b.Path = v
		case "model":
			b.Model = v
		}
	}
	if b.Path == "" {
		return Binding{}, false
	}
	if i := strings.IndexByte(b.Path, '>'); i > 0 && b.Model == "" {
		b.Model, b.Path = b.Path[:i], b.Path[i+1:]
	}
	return b, true
}
