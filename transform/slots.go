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
	"context"
	"sort"

	"github.com/beevik/etree"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// SlotTag is the placeholder element aggregations are substituted for.
const SlotTag = "slot"

// splice replaces el with the child elements of root, grafts the aggregations
// of st into them and visits them. st is nil for plain fragments.
func (V *Visitor) splice(ctx context.Context, el, root *etree.Element, st *state) error {
	p := el.Parent()
	if p == nil {
		return errors.Errorf("%s: detached element", el.FullTag())
	}
	nodes := root.ChildElements()
	i := el.Index()
	p.RemoveChildAt(i)
	for _, n := range nodes {
		p.InsertChildAt(i, n)
		declareFrom(n, root)
		i++
	}

	final := make([]*etree.Element, 0, len(nodes))
	for _, n := range nodes {
		if st != nil {
			st.applySlots(n, false)
		}
		if n.Parent() != p {
			continue
		}
		idx, before := n.Index(), len(p.Child)
		if err := V.Visit(ctx, n); err != nil {
			return err
		}
		// n is replaced by its own expansion when it is a building block
		end := idx + 1 + len(p.Child) - before
		for _, t := range p.Child[idx:end] {
			if e, ok := t.(*etree.Element); ok {
				final = append(final, e)
			}
		}
	}
	if st != nil {
		if len(final) != 0 {
			st.applySlots(final[0], true)
		} else {
			st.dropImplicit()
		}
	}
	for _, n := range final {
		removeSlots(n)
	}
	return nil
}

// applySlots replaces the <slot name="..."/> placeholders under root with the
// captured aggregations. With inject set, the implicit aggregations are
// appended to root itself.
func (st *state) applySlots(root *etree.Element, inject bool) {
	names := make([]string, 0, len(st.aggregations))
	for k := range st.aggregations {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, name := range names {
		if st.consumed[name] {
			continue
		}
		w := st.aggregations[name]
		if isImplicit(name) {
			if !inject {
				continue
			}
			for _, c := range w.ChildElements() {
				root.AddChild(c)
			}
			st.consumed[name] = true
			continue
		}
		slot := findSlot(root, st.exp.slotOf(name))
		if slot == nil {
			continue
		}
		p, i := slot.Parent(), slot.Index()
		p.RemoveChildAt(i)
		for _, c := range w.ChildElements() {
			p.InsertChildAt(i, c)
			i++
		}
		st.consumed[name] = true
	}
}

// dropImplicit logs the implicit aggregations left without an element to
// attach to.
func (st *state) dropImplicit() {
	for _, name := range []string{AggCustomData, AggDependents, AggLayoutData} {
		w := st.aggregations[name]
		if w == nil || st.consumed[name] || len(w.ChildElements()) == 0 {
			continue
		}
		st.logger().Warn("implicit aggregation dropped: the building block rendered no element",
			zap.String("aggregation", name), zap.Int("children", len(w.ChildElements())))
		st.consumed[name] = true
	}
}

func findSlot(el *etree.Element, name string) *etree.Element {
	if el.Space == "" && el.Tag == SlotTag && getAttr(el.Attr, "name") == name {
		return el
	}
	for _, c := range el.ChildElements() {
		if s := findSlot(c, name); s != nil {
			return s
		}
	}
	return nil
}

// removeSlots drops the unfilled placeholders of el's subtree, el included.
func removeSlots(el *etree.Element) {
	if el.Space == "" && el.Tag == SlotTag {
		removeElement(el)
		return
	}
	for _, c := range el.ChildElements() {
		removeSlots(c)
	}
}
