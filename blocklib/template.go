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

package blocklib

import (
	"strings"

	"github.com/beevik/etree"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/UNO-SOFT/bbtemplate/model"
	"github.com/UNO-SOFT/bbtemplate/xmlbuild"
)

// Placeholder modifiers.
const (
	// ModBind writes a {this>name} binding instead of the value.
	ModBind = "bind"
	// ModJSON writes the value as escaped JSON.
	ModJSON = "json"
	// ModPath writes the path of a context value.
	ModPath = "path"
)

type placeholder struct {
	Name, Mod string
}

// Template is a compiled block template: literal XML with ${name} or
// ${name|modifier} placeholders. "$${" stands for a literal "${".
type Template struct {
	literals []string
	refs     []placeholder
}

// Compile parses s.
func Compile(s string) (*Template, error) {
	var T Template
	var lit strings.Builder
	for {
		i := strings.Index(s, "${")
		if i < 0 {
			lit.WriteString(s)
			break
		}
		if i > 0 && s[i-1] == '$' {
			lit.WriteString(s[:i-1] + "${")
			s = s[i+2:]
			continue
		}
		lit.WriteString(s[:i])
		j := strings.IndexByte(s[i:], '}')
		if j < 0 {
			return nil, errors.Errorf("unclosed placeholder at %q", s[i:])
		}
		ref := placeholder{Name: strings.TrimSpace(s[i+2 : i+j])}
		if k := strings.IndexByte(ref.Name, '|'); k >= 0 {
			ref.Name, ref.Mod = strings.TrimSpace(ref.Name[:k]), strings.TrimSpace(ref.Name[k+1:])
			switch ref.Mod {
			case ModBind, ModJSON, ModPath:
			default:
				return nil, errors.Errorf("%s: unknown modifier %q", ref.Name, ref.Mod)
			}
		}
		if ref.Name == "" {
			return nil, errors.Errorf("empty placeholder at %q", s[i:i+j+1])
		}
		T.literals = append(T.literals, lit.String())
		T.refs = append(T.refs, ref)
		lit.Reset()
		s = s[i+j+1:]
	}
	T.literals = append(T.literals, lit.String())
	return &T, nil
}

// Names returns the referenced property names.
func (T *Template) Names() []string {
	names := make([]string, 0, len(T.refs))
	seen := make(map[string]struct{}, len(T.refs))
	for _, r := range T.refs {
		if _, ok := seen[r.Name]; ok {
			continue
		}
		seen[r.Name] = struct{}{}
		names = append(names, r.Name)
	}
	return names
}

// Render fills the placeholders from props through B.
func (T *Template) Render(B *xmlbuild.Builder, props map[string]interface{}) (string, error) {
	parts := make([]interface{}, 0, 2*len(T.refs)+1)
	for i, r := range T.refs {
		parts = append(parts, T.literals[i])
		v, err := r.value(props)
		if err != nil {
			return "", err
		}
		parts = append(parts, v)
	}
	parts = append(parts, T.literals[len(T.literals)-1])
	return B.XML(parts...), nil
}

func (r placeholder) value(props map[string]interface{}) (interface{}, error) {
	v := props[r.Name]
	switch r.Mod {
	case ModBind:
		return xmlbuild.PathBinding{Model: "this", Path: r.Name}, nil
	case ModJSON:
		b, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(v)
		if err != nil {
			return nil, errors.Wrap(err, r.Name)
		}
		return xmlbuild.Literal(b), nil
	case ModPath:
		if c, ok := v.(*model.Context); ok {
			return xmlbuild.Literal(c.GetPath()), nil
		}
		return xmlbuild.Undefined{}, nil
	}
	if el, ok := v.(*etree.Element); ok {
		return childrenXML(el)
	}
	return v, nil
}

// childrenXML serializes the content of an aggregation wrapper as markup.
// The wrapper itself stays untouched for slot substitution.
func childrenXML(el *etree.Element) (xmlbuild.Value, error) {
	doc := etree.NewDocument()
	for _, c := range el.ChildElements() {
		doc.AddChild(c.Copy())
	}
	s, err := doc.WriteToString()
	if err != nil {
		return nil, errors.Wrap(err, el.Tag)
	}
	return xmlbuild.Lines{s}, nil
}
