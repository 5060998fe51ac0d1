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
	"sort"

	"github.com/beevik/etree"
)

// Property types.
const (
	TypeString  = "string"
	TypeBoolean = "boolean"
	TypeNumber  = "number"
	TypeObject  = "object"
	TypeArray   = "array"
	TypeContext = "sap.ui.model.Context"
)

// Implicit aggregations every building block accepts.
const (
	AggDependents = "dependents"
	AggCustomData = "customData"
	AggLayoutData = "layoutData"
)

func isImplicit(name string) bool {
	switch name {
	case AggDependents, AggCustomData, AggLayoutData:
		return true
	}
	return false
}

// Property describes one attribute of a building block.
type Property struct {
	Type         string      `yaml:"type"`
	Required     bool        `yaml:"required"`
	DefaultValue interface{} `yaml:"defaultValue"`
	// IsPublic allows the property on public call sites.
	IsPublic                bool     `yaml:"isPublic"`
	ExpectedTypes           []string `yaml:"expectedTypes"`
	ExpectedAnnotationTypes []string `yaml:"expectedAnnotationTypes"`
	// Validate may normalize the resolved value.
	Validate func(v interface{}) interface{} `yaml:"-"`
}

func (p *Property) isContext() bool {
	switch p.Type {
	case TypeContext, TypeObject, TypeArray:
		return true
	}
	return false
}

// Aggregation describes a child slot of a building block.
type Aggregation struct {
	Type      string `yaml:"type"`
	Slot      string `yaml:"slot"`
	IsDefault bool   `yaml:"isDefault"`
	// Process replaces the default sub-aggregation records.
	Process func(el *etree.Element) interface{} `yaml:"-"`
}

// Metadata is the static schema of one building block kind.
type Metadata struct {
	Name            string                  `yaml:"name"`
	Namespace       string                  `yaml:"namespace"`
	PublicNamespace string                  `yaml:"publicNamespace"`
	XMLTag          string                  `yaml:"xmlTag"`
	Fragment        string                  `yaml:"fragment"`
	IsOpen          bool                    `yaml:"isOpen"`
	IsRuntime       bool                    `yaml:"isRuntime"`
	Properties      map[string]*Property    `yaml:"properties"`
	Aggregations    map[string]*Aggregation `yaml:"aggregations"`
}

// Tag returns the XML tag name the block is called with.
func (M *Metadata) Tag() string {
	if M.XMLTag != "" {
		return M.XMLTag
	}
	return M.Name
}

// Key returns the fragment name: the explicit fragment, or namespace.tag.
func (M *Metadata) Key() string {
	if M.Fragment != "" {
		return M.Fragment
	}
	return M.Namespace + "." + M.Tag()
}

// expanded splits the properties into plain ones and metadata contexts and
// adds the implicit aggregations.
type expanded struct {
	*Metadata
	properties   map[string]*Property
	contexts     map[string]*Property
	aggregations map[string]*Aggregation
	propNames    []string
	contextNames []string
	defaultAgg   string
}

func expand(M *Metadata) *expanded {
	X := expanded{
		Metadata:     M,
		properties:   make(map[string]*Property),
		contexts:     make(map[string]*Property),
		aggregations: make(map[string]*Aggregation, len(M.Aggregations)+3),
	}
	for k, p := range M.Properties {
		if p == nil {
			p = &Property{Type: TypeString}
		}
		if p.isContext() {
			X.contexts[k] = p
			X.contextNames = append(X.contextNames, k)
		} else {
			X.properties[k] = p
			X.propNames = append(X.propNames, k)
		}
	}
	sort.Strings(X.propNames)
	// contextPath first: other paths may be relative to it
	sort.Slice(X.contextNames, func(i, j int) bool {
		a, b := X.contextNames[i], X.contextNames[j]
		if (a == "contextPath") != (b == "contextPath") {
			return a == "contextPath"
		}
		return a < b
	})

	for k, a := range M.Aggregations {
		if a == nil {
			a = &Aggregation{}
		}
		X.aggregations[k] = a
	}
	for _, k := range []string{AggDependents, AggCustomData, AggLayoutData} {
		if _, ok := X.aggregations[k]; !ok {
			X.aggregations[k] = &Aggregation{Type: "sap.ui.core.Element", Slot: k}
		}
	}
	names := make([]string, 0, len(X.aggregations))
	for k := range X.aggregations {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		if X.aggregations[k].IsDefault {
			X.defaultAgg = k
			break
		}
	}
	return &X
}

func (X *expanded) declared(name string) bool {
	if _, ok := X.properties[name]; ok {
		return true
	}
	_, ok := X.contexts[name]
	return ok
}

func (X *expanded) slotOf(name string) string {
	if a := X.aggregations[name]; a != nil && a.Slot != "" {
		return a.Slot
	}
	return name
}
