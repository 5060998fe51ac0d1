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
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/UNO-SOFT/bbtemplate/model"
	"github.com/UNO-SOFT/bbtemplate/xmlbuild"
)

// InlineKeyPrefix starts the generated keys of unkeyed sub-aggregation entries.
const InlineKeyPrefix = "InlineXML_"

// state is one building block call being expanded.
type state struct {
	V   *Visitor
	D   *Definition
	exp *expanded
	el  *etree.Element
	// public is set for calls through the public namespace of a public document.
	public bool

	props    Props
	initial  map[string]interface{}
	contexts map[string]*model.Context
	// bindings are the binding contexts visible to the resolver.
	bindings    map[string]*model.Context
	contextPath string
	missing     map[string]struct{}

	aggregations map[string]*etree.Element
	consumed     map[string]bool
}

func newState(V *Visitor, D *Definition, el *etree.Element) *state {
	exp := D.expanded()
	st := state{
		V: V, D: D, exp: exp, el: el,
		public:       V.run.Settings.IsPublic && exp.PublicNamespace != "" && el.NamespaceURI() == exp.PublicNamespace,
		props:        make(Props, len(exp.properties)+len(exp.contexts)),
		initial:      attrMap(el),
		contexts:     make(map[string]*model.Context, len(exp.contexts)),
		bindings:     make(map[string]*model.Context, len(V.run.Settings.BindingContexts)+len(V.vars)),
		missing:      make(map[string]struct{}),
		aggregations: make(map[string]*etree.Element),
		consumed:     make(map[string]bool),
	}
	for k, c := range V.run.Settings.BindingContexts {
		st.bindings[k] = c
	}
	for k, c := range V.vars {
		if k != "this" {
			st.bindings[k] = c
		}
	}
	if c := st.bindings["contextPath"]; c != nil {
		st.contextPath = c.GetPath()
	}
	return &st
}

func (st *state) logger() *zap.Logger {
	return st.V.run.logger.With(zap.String("tag", st.el.FullTag()))
}

// processProperties fills the plain properties from defaults and attributes.
func (st *state) processProperties() {
	for _, name := range st.exp.propNames {
		pd := st.exp.properties[name]
		if pd.DefaultValue != nil {
			st.props[name] = model.DeepCopy(pd.DefaultValue)
		}
		i := findAttr(st.el.Attr, name)
		if i < 0 {
			continue
		}
		if st.public && !pd.IsPublic {
			st.logger().Warn("property is not for public use", zap.String("property", name))
			continue
		}
		st.props[name] = st.coerce(pd, st.el.Attr[i].Value)
	}
}

// coerce converts an attribute value by the declared type. Bindings only
// the runtime can resolve are kept as strings.
func (st *state) coerce(pd *Property, s string) interface{} {
	R := st.V.run
	if model.IsStoreKey(s) {
		if v, ok := R.store.Take(s); ok {
			return v
		}
		if v := R.converter.GetObject(s); v != nil {
			return v
		}
		return s
	}
	if _, ok := model.ParseBinding(s); ok {
		v, _, err := st.V.GetResult(s)
		if err != nil || v == nil {
			return s
		}
		if t, ok := v.(string); ok {
			return st.coerceLiteral(pd, t)
		}
		return v
	}
	if strings.HasPrefix(strings.TrimSpace(s), "{") {
		return s
	}
	return st.coerceLiteral(pd, s)
}

func (st *state) coerceLiteral(pd *Property, s string) interface{} {
	switch pd.Type {
	case TypeBoolean:
		switch s {
		case "true":
			return true
		case "false":
			return false
		}
	case TypeNumber:
		if f, ok := parseNumber(s); ok {
			return f
		}
	}
	return s
}

// parseNumber reads s the way a JavaScript Number() call does: blank is
// zero, 0x/0o/0b prefixes are integers, and Infinity is spelled out.
func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, true
	}
	if len(s) > 2 && s[0] == '0' {
		base := 0
		switch s[1] {
		case 'x', 'X':
			base = 16
		case 'o', 'O':
			base = 8
		case 'b', 'B':
			base = 2
		}
		if base != 0 {
			n, err := strconv.ParseUint(s[2:], base, 64)
			return float64(n), err == nil
		}
	}
	switch s {
	case "Infinity", "+Infinity":
		return math.Inf(1), true
	case "-Infinity":
		return math.Inf(-1), true
	}
	// ParseFloat also takes hex floats, underscores, inf and nan
	if strings.ContainsAny(s, "_xXpPiInN") {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}

// processChildren sorts the child elements of st.el into structured
// properties and aggregations, then removes them.
func (st *state) processChildren() {
	var defaults []*etree.Element
	for _, c := range st.el.ChildElements() {
		space := c.NamespaceURI()
		st.el.RemoveChild(c)
		if space == xmlbuild.TemplateNS {
			continue
		}
		if startsUpper(c.Tag) {
			defaults = append(defaults, c)
			continue
		}
		if pd := st.exp.contexts[c.Tag]; pd != nil && (pd.Type == TypeObject || pd.Type == TypeArray) {
			st.props[c.Tag] = flatten(c, pd.Type == TypeArray)
			continue
		}
		ad, ok := st.exp.aggregations[c.Tag]
		if !ok {
			st.logger().Warn("unknown child element", zap.String("child", c.FullTag()))
			continue
		}
		if ad.Slot == "" {
			st.subAggregation(c.Tag, ad, c)
			continue
		}
		st.addToSlot(ad.Slot, c.ChildElements()...)
	}
	if len(defaults) != 0 {
		if st.exp.defaultAgg == "" {
			for _, c := range defaults {
				st.logger().Warn("no default aggregation", zap.String("child", c.FullTag()))
			}
			return
		}
		st.addToSlot(st.exp.slotOf(st.exp.defaultAgg), defaults...)
	}
}

// addToSlot moves elements into the wrapper of slot, synthesizing it if needed.
func (st *state) addToSlot(slot string, elements ...*etree.Element) {
	w := st.aggregations[slot]
	if w == nil {
		w = etree.NewElement(strings.ReplaceAll(slot, ":", ""))
		st.aggregations[slot] = w
	}
	for _, e := range elements {
		if p := e.Parent(); p != nil {
			p.RemoveChild(e)
		}
		delAttrs(e, "key")
		w.AddChild(e)
	}
}

// subAggregation parses labeled entries like
//
//	<actions><Action key="a" placement="Before" anchor="b">...</Action></actions>
//
// into slot records, keeping each entry's content as its own aggregation.
func (st *state) subAggregation(name string, ad *Aggregation, c *etree.Element) {
	if ad.Process != nil {
		st.props[name] = ad.Process(c)
		return
	}
	entries := c.ChildElements()
	records := make(map[string]interface{}, len(entries))
	for _, e := range entries {
		key := getAttr(e.Attr, "key")
		if key == "" {
			key = InlineKeyPrefix + uuid.NewString()
			e.CreateAttr("key", key)
		}
		rec := attrMap(e)
		placement := getAttr(e.Attr, "placement")
		if placement == "" {
			placement = "After"
		}
		delete(rec, "placement")
		delete(rec, "anchor")
		rec["key"] = key
		rec["type"] = "Slot"
		rec["position"] = map[string]interface{}{
			"placement": placement,
			"anchor":    getAttr(e.Attr, "anchor"),
		}
		records[key] = rec
		c.RemoveChild(e)
		w := etree.NewElement(strings.ReplaceAll(key, ":", ""))
		for _, g := range e.ChildElements() {
			e.RemoveChild(g)
			w.AddChild(g)
		}
		st.aggregations[key] = w
	}
	st.props[name] = records
}

// flatten turns <item a="1"><sub b="2"/></item> into {a: 1, sub: {b: 2}}.
func flatten(el *etree.Element, array bool) interface{} {
	if array {
		list := make([]interface{}, 0, len(el.ChildElements()))
		for _, c := range el.ChildElements() {
			list = append(list, attrMap(c))
		}
		return list
	}
	m := attrMap(el)
	for _, c := range el.ChildElements() {
		m[c.Tag] = attrMap(c)
	}
	return m
}

// processContexts resolves the declared metadata contexts, contextPath first.
func (st *state) processContexts() {
	for _, name := range st.exp.contextNames {
		if _, ok := st.props[name]; ok {
			// satisfied by a structured child
			continue
		}
		c, ok := st.resolveContext(name)
		if !ok {
			st.missing[name] = struct{}{}
			continue
		}
		st.addContext(name, c)
	}
}

// addContext registers c under name; the first registration wins.
func (st *state) addContext(name string, c *model.Context) bool {
	if _, ok := st.contexts[name]; ok {
		return false
	}
	st.contexts[name] = c
	st.props[name] = c
	switch name {
	case "entitySet":
		st.bindings[name] = c
	case "contextPath":
		st.bindings[name] = c
		st.contextPath = c.GetPath()
	}
	return true
}

func (st *state) missingContexts() []string {
	names := make([]string, 0, len(st.missing))
	for k := range st.missing {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
