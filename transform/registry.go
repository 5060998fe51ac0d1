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
	"sync"

	"github.com/beevik/etree"
	"github.com/pkg/errors"

	"github.com/UNO-SOFT/bbtemplate/xmlbuild"
)

// Props maps property and aggregation names to values.
type Props map[string]interface{}

// Properties lets a plain Props be used as a Block.
func (p Props) Properties() Props { return p }

// Block is an instantiated building block.
type Block interface {
	// Properties returns the effective, possibly normalized properties.
	Properties() Props
}

// Templater is implemented by blocks producing their own XML.
// An empty result removes the tag.
type Templater interface {
	Template(ctx context.Context, el *etree.Element, B *xmlbuild.Builder) (string, error)
}

// Factory instantiates a block from its resolved properties and aggregations.
type Factory func(props Props, controlConfig map[string]interface{}, settings *Settings) (Block, error)

// Definition binds a descriptor to its factory.
type Definition struct {
	Metadata *Metadata
	New      Factory

	once sync.Once
	exp  *expanded
}

func (D *Definition) expanded() *expanded {
	D.once.Do(func() { D.exp = expand(D.Metadata) })
	return D.exp
}

type regKey struct{ Space, Tag string }

// Registry dispatches namespace URI + tag name to building block definitions.
type Registry struct {
	mu sync.RWMutex
	m  map[regKey]*Definition
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{m: make(map[regKey]*Definition)}
}

func (D *Definition) keys() []regKey {
	M := D.Metadata
	keys := []regKey{{Space: M.Namespace, Tag: M.Tag()}}
	if M.PublicNamespace != "" && M.PublicNamespace != M.Namespace {
		keys = append(keys, regKey{Space: M.PublicNamespace, Tag: M.Tag()})
	}
	return keys
}

// Register installs D under its namespace and public namespace.
func (R *Registry) Register(D *Definition) error {
	if D == nil || D.Metadata == nil {
		return errors.New("register: nil definition")
	}
	if D.Metadata.Tag() == "" {
		return errors.New("register: no tag name")
	}
	if D.New == nil {
		D.New = func(props Props, _ map[string]interface{}, _ *Settings) (Block, error) { return props, nil }
	}
	R.mu.Lock()
	defer R.mu.Unlock()
	for _, k := range D.keys() {
		R.m[k] = D
	}
	return nil
}

// Unregister removes D.
func (R *Registry) Unregister(D *Definition) {
	R.mu.Lock()
	defer R.mu.Unlock()
	for _, k := range D.keys() {
		if R.m[k] == D {
			delete(R.m, k)
		}
	}
}

// Lookup returns the definition for the namespace URI and tag.
func (R *Registry) Lookup(space, tag string) (*Definition, bool) {
	if R == nil {
		return nil, false
	}
	R.mu.RLock()
	D, ok := R.m[regKey{Space: space, Tag: tag}]
	R.mu.RUnlock()
	return D, ok
}
