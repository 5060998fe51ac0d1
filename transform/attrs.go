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
	"unicode"
	"unicode/utf8"

	"github.com/beevik/etree"
)

// findAttr returns the index of the unprefixed attribute name, or -1.
func findAttr(attrs []etree.Attr, name string) int {
	for i, a := range attrs {
		if a.Space == "" && a.Key == name {
			return i
		}
	}
	return -1
}

func getAttr(attrs []etree.Attr, name string) string {
	if i := findAttr(attrs, name); i >= 0 {
		return attrs[i].Value
	}
	return ""
}

func hasAttr(el *etree.Element, name string) bool { return findAttr(el.Attr, name) >= 0 }

func delAttrs(el *etree.Element, names ...string) {
	for _, nm := range names {
		if i := findAttr(el.Attr, nm); i >= 0 {
			el.Attr = append(el.Attr[:i], el.Attr[i+1:]...)
		}
	}
}

func isXMLNS(a etree.Attr) bool {
	return a.Space == "xmlns" || (a.Space == "" && a.Key == "xmlns")
}

// attrMap returns the plain attributes of el.
func attrMap(el *etree.Element) map[string]interface{} {
	m := make(map[string]interface{}, len(el.Attr))
	for _, a := range el.Attr {
		if a.Space != "" || isXMLNS(a) {
			continue
		}
		m[a.Key] = a.Value
	}
	return m
}

func startsUpper(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsUpper(r)
}

// namespacesInScope collects the prefix declarations visible at el.
func namespacesInScope(el *etree.Element) map[string]string {
	ns := make(map[string]string)
	for e := el; e != nil; e = e.Parent() {
		for _, a := range e.Attr {
			if a.Space != "xmlns" {
				continue
			}
			if _, ok := ns[a.Key]; !ok {
				ns[a.Key] = a.Value
			}
		}
	}
	return ns
}

// usedPrefixes lists the namespace prefixes of el's subtree.
func usedPrefixes(el *etree.Element, seen map[string]struct{}) map[string]struct{} {
	if seen == nil {
		seen = make(map[string]struct{})
	}
	if el.Space != "" {
		seen[el.Space] = struct{}{}
	}
	for _, a := range el.Attr {
		if a.Space != "" && a.Space != "xmlns" && a.Space != "xml" {
			seen[a.Space] = struct{}{}
		}
	}
	for _, c := range el.ChildElements() {
		usedPrefixes(c, seen)
	}
	return seen
}

// declareFrom copies the declarations of from that el needs but does not
// see, or sees bound to another URI, at its new position.
func declareFrom(el, from *etree.Element) {
	used := usedPrefixes(el, nil)
	scope := namespacesInScope(el)
	for _, a := range from.Attr {
		if a.Space != "xmlns" {
			continue
		}
		if _, ok := used[a.Key]; !ok {
			continue
		}
		if uri, ok := scope[a.Key]; ok && uri == a.Value {
			continue
		}
		el.CreateAttr("xmlns:"+a.Key, a.Value)
	}
}

func elementString(el *etree.Element) string {
	if el == nil {
		return ""
	}
	doc := etree.NewDocument()
	doc.SetRoot(el.Copy())
	s, err := doc.WriteToString()
	if err != nil {
		return "<" + el.FullTag() + "/>"
	}
	return s
}
