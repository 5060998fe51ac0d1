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

package xmlbuild

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/UNO-SOFT/bbtemplate/model"
)

// UndefinedBinding is inserted for missing values, keeping the output parseable.
const UndefinedBinding = "{this>undefinedValue}"

// Value is something that can be interleaved with literal XML fragments.
type Value interface {
	insert(B *Builder) string
}

// Literal is a plain string. It is attribute-escaped unless it already looks like markup.
type Literal string

func (s Literal) insert(*Builder) string {
	if looksLikeMarkup(string(s)) {
		return string(s)
	}
	return EscapeAttr(string(s))
}

func looksLikeMarkup(s string) bool {
	s = strings.TrimLeft(s, " \t\r\n")
	return strings.HasPrefix(s, "<") || strings.HasPrefix(s, "&lt;")
}

// Lines is a list of pre-built fragments, joined with newlines.
type Lines []string

func (ss Lines) insert(*Builder) string { return strings.Join(ss, "\n") }

// Lazy is called at build time; its result is spliced in unescaped.
type Lazy func() string

func (f Lazy) insert(*Builder) string {
	if f == nil {
		return ""
	}
	return f()
}

// LazyList is a list of lazily built fragments, joined with newlines.
type LazyList []func() string

func (fs LazyList) insert(*Builder) string {
	ss := make([]string, 0, len(fs))
	for _, f := range fs {
		ss = append(ss, f())
	}
	return strings.Join(ss, "\n")
}

// Expression is compiled to binding syntax.
type Expression interface {
	CompileBinding() string
}

// Expr inserts a compiled, escaped expression.
type Expr struct{ Expression }

func (e Expr) insert(*Builder) string {
	if e.Expression == nil {
		return UndefinedBinding
	}
	return EscapeAttr(e.CompileBinding())
}

// PathBinding is the simplest Expression: {model>path}.
type PathBinding struct {
	Model, Path string
}

func (b PathBinding) CompileBinding() string {
	return model.Binding{Model: b.Model, Path: b.Path}.String()
}

// Constant compiles to an expression binding returning a constant.
type Constant struct{ V interface{} }

func (c Constant) CompileBinding() string {
	switch x := c.V.(type) {
	case string:
		return "{= '" + strings.ReplaceAll(x, "'", `\'`) + "'}"
	case nil:
		return "{= undefined}"
	}
	return fmt.Sprintf("{= %v}", c.V)
}

// ContextRef inserts the path of a context, unescaped.
type ContextRef struct{ *model.Context }

func (c ContextRef) insert(*Builder) string {
	if c.Context == nil {
		return UndefinedBinding
	}
	return c.GetPath()
}

// ObjectRef stores V in the temporary object store and inserts the key.
type ObjectRef struct{ V interface{} }

func (o ObjectRef) insert(B *Builder) string {
	return B.store().Put(o.V)
}

// Undefined inserts UndefinedBinding.
type Undefined struct{}

func (Undefined) insert(*Builder) string { return UndefinedBinding }

// ValueOf chooses the Value variant for a Go value.
func ValueOf(v interface{}) Value {
	switch x := v.(type) {
	case nil:
		return Undefined{}
	case Value:
		return x
	case string:
		return Literal(x)
	case []string:
		return Lines(x)
	case func() string:
		return Lazy(x)
	case []func() string:
		return LazyList(x)
	case Expression:
		return Expr{x}
	case *model.Context:
		if x == nil {
			return Undefined{}
		}
		return ContextRef{x}
	case bool:
		return Literal(strconv.FormatBool(x))
	case int:
		return Literal(strconv.Itoa(x))
	case int64:
		return Literal(strconv.FormatInt(x, 10))
	case float64:
		return Literal(strconv.FormatFloat(x, 'f', -1, 64))
	case fmt.Stringer:
		return Literal(x.String())
	}
	return ObjectRef{v}
}

var attrEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
	"\n", "&#xa;",
	"\r", "&#xd;",
	"\t", "&#x9;",
)

// EscapeAttr escapes s for use inside an attribute value.
func EscapeAttr(s string) string { return attrEscaper.Replace(s) }
