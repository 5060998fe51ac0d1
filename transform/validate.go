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
	"fmt"
	"strings"

	"github.com/beevik/etree"
	"go.uber.org/zap"

	"github.com/UNO-SOFT/bbtemplate/model"
)

// ValidateSignature checks the call el of the block M against its declaration.
// Violations are returned as *SchemaError; unknown attributes are only logged.
func ValidateSignature(tag string, M *Metadata, contexts map[string]*model.Context, el *etree.Element, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	X := expand(M)
	for _, name := range X.contextNames {
		pd := X.contexts[name]
		c := contexts[name]
		var obj interface{}
		if c != nil {
			obj = c.Object()
		}
		if obj == nil {
			if pd.Required {
				return &SchemaError{Tag: tag, Key: name, Path: c.GetPath(),
					Msg: fmt.Sprintf("Required metadataContext '%s' is missing", name)}
			}
			continue
		}
		if err := checkKind(tag, name, pd, c.GetPath(), obj); err != nil {
			return err
		}
	}

	for _, name := range X.propNames {
		pd := X.properties[name]
		if pd.Required && pd.DefaultValue == nil && !hasAttr(el, name) {
			return &SchemaError{Tag: tag, Key: name,
				Msg: fmt.Sprintf("Required property '%s' is missing", name)}
		}
	}

	for _, a := range el.Attr {
		if a.Space != "" || isXMLNS(a) || X.declared(a.Key) {
			continue
		}
		logger.Warn("unchecked attribute", zap.String("tag", tag), zap.String("attribute", a.Key))
	}
	return nil
}

// checkKind matches $kind against ExpectedTypes and $Type against
// ExpectedAnnotationTypes. Either match is enough when both are declared.
func checkKind(tag, name string, pd *Property, path string, obj interface{}) error {
	if len(pd.ExpectedTypes) == 0 && len(pd.ExpectedAnnotationTypes) == 0 {
		return nil
	}
	m, _ := obj.(map[string]interface{})
	kind, _ := m["$kind"].(string)
	typ, _ := m["$Type"].(string)
	if len(pd.ExpectedTypes) != 0 && contains(pd.ExpectedTypes, kind) {
		return nil
	}
	if len(pd.ExpectedAnnotationTypes) != 0 && contains(pd.ExpectedAnnotationTypes, typ) {
		return nil
	}
	expected, actual := pd.ExpectedTypes, kind
	if len(expected) == 0 || (kind == "" && typ != "" && len(pd.ExpectedAnnotationTypes) != 0) {
		expected, actual = pd.ExpectedAnnotationTypes, typ
	}
	return &SchemaError{Tag: tag, Key: name, Path: path,
		Msg: fmt.Sprintf("'%s' must be '%s' but is '%s'", name, strings.Join(expected, "' or '"), actual)}
}

func contains(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}
