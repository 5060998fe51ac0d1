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

// Package blocklib loads building block definitions from YAML files.
//
//	fragments:
//	  my.Header: '<m:Title text="{this>title}"/>'
//	blocks:
//	  - name: Field
//	    namespace: my.macros
//	    properties:
//	      contextPath: {type: sap.ui.model.Context, required: true}
//	      label: {type: string, defaultValue: Name}
//	    template: '<m:Label text="${label}"/><m:Text text="${contextPath|path}"/>'
package blocklib

import (
	"context"
	"io"
	"os"

	"github.com/beevik/etree"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/UNO-SOFT/bbtemplate/transform"
	"github.com/UNO-SOFT/bbtemplate/xmlbuild"
)

// Block is a declarative building block.
type Block struct {
	transform.Metadata `yaml:",inline"`
	Template           string `yaml:"template"`

	compiled *Template
}

// Library is the content of one or more block library files.
type Library struct {
	Blocks    []*Block          `yaml:"blocks"`
	Fragments map[string]string `yaml:"fragments"`
}

// Load reads a library and compiles its templates.
func Load(r io.Reader) (*Library, error) {
	var L Library
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&L); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "decode")
	}
	for i, b := range L.Blocks {
		if b == nil || b.Tag() == "" {
			return nil, errors.Errorf("block #%d has no name", i)
		}
		if b.Template == "" {
			continue
		}
		if b.Fragment != "" {
			return nil, errors.Errorf("%s: both template and fragment given", b.Key())
		}
		var err error
		if b.compiled, err = Compile(b.Template); err != nil {
			return nil, errors.WithMessage(err, b.Key())
		}
	}
	return &L, nil
}

// LoadFiles loads and merges the given files; later files win.
func LoadFiles(paths ...string) (*Library, error) {
	L := Library{Fragments: make(map[string]string)}
	for _, fn := range paths {
		fh, err := os.Open(fn)
		if err != nil {
			return nil, errors.Wrap(err, "open "+fn)
		}
		l, err := Load(fh)
		fh.Close()
		if err != nil {
			return nil, errors.WithMessage(err, fn)
		}
		L.Merge(l)
	}
	return &L, nil
}

// Merge adds the blocks and fragments of other to L.
func (L *Library) Merge(other *Library) {
	if L.Fragments == nil {
		L.Fragments = make(map[string]string, len(other.Fragments))
	}
	for k, v := range other.Fragments {
		L.Fragments[k] = v
	}
	L.Blocks = append(L.Blocks, other.Blocks...)
}

// Register installs the blocks into reg and their fragments into settings.
func (L *Library) Register(reg *transform.Registry, settings *transform.Settings) error {
	if settings != nil && len(L.Fragments) != 0 {
		if settings.Fragments == nil {
			settings.Fragments = make(map[string]string, len(L.Fragments))
		}
		for k, v := range L.Fragments {
			settings.Fragments[k] = v
		}
	}
	for _, b := range L.Blocks {
		b := b
		D := transform.Definition{Metadata: &b.Metadata}
		if b.compiled != nil {
			D.New = func(props transform.Props, _ map[string]interface{}, _ *transform.Settings) (transform.Block, error) {
				return &instance{props: props, tmpl: b.compiled}, nil
			}
		}
		if err := reg.Register(&D); err != nil {
			return errors.WithMessage(err, b.Key())
		}
	}
	return nil
}

type instance struct {
	props transform.Props
	tmpl  *Template
}

func (I *instance) Properties() transform.Props { return I.props }

func (I *instance) Template(_ context.Context, _ *etree.Element, B *xmlbuild.Builder) (string, error) {
	return I.tmpl.Render(B, I.props)
}
