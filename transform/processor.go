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

// Package transform expands building block tags of XML views into the
// framework-native XML they stand for.
package transform

import (
	"context"
	"io"

	"github.com/beevik/etree"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/UNO-SOFT/bbtemplate/model"
	"github.com/UNO-SOFT/bbtemplate/trace"
)

// DefaultMaxDepth limits building blocks nested into each other's output.
const DefaultMaxDepth = 64

// Settings are the ambient inputs of a processing run.
type Settings struct {
	// Models by name; model.MetaModel is the primary metadata model.
	// model.ConverterModel is replaced by a fresh staging model on every run.
	Models          map[string]model.Model
	BindingContexts map[string]*model.Context
	// IsPublic marks the document as a public call site.
	IsPublic      bool
	AppComponent  string
	ControlConfig map[string]map[string]interface{}
	// Fragments are named XML fragments for blocks declaring a fragment.
	Fragments map[string]string
	// Namespaces are declared, besides the defaults, when parsing block output.
	Namespaces map[string]string
	ViewInfo   map[string]interface{}
}

// Processor expands the registered building blocks of XML documents.
// It is safe for concurrent use as long as Settings is not modified.
type Processor struct {
	Registry *Registry
	Settings Settings
	Recorder *trace.Recorder
	Logger   *zap.Logger
	MaxDepth int
}

// run is the state of one Process call.
type run struct {
	*Processor
	logger    *zap.Logger
	models    map[string]model.Model
	converter *model.JSONModel
	store     *model.Store
	// calls counts the expansions per block key; diagnostics report the ordinal
	calls map[string]int
}

func (P *Processor) newRun() *run {
	R := run{
		Processor: P,
		logger:    P.Logger,
		models:    make(map[string]model.Model, len(P.Settings.Models)+1),
		converter: model.NewJSONModel(nil),
		store:     model.NewStore(),
		calls:     make(map[string]int),
	}
	if R.logger == nil {
		R.logger = zap.NewNop()
	}
	for k, v := range P.Settings.Models {
		R.models[k] = v
	}
	R.models[model.ConverterModel] = R.converter
	return &R
}

// ProcessStream reads an XML document from r, expands it and writes it to w.
func (P *Processor) ProcessStream(ctx context.Context, w io.Writer, r io.Reader) error {
	doc := etree.NewDocument()
	if _, err := doc.ReadFrom(r); err != nil {
		return errors.Wrap(err, "read")
	}
	if err := P.Process(ctx, doc); err != nil {
		return err
	}
	doc.Indent(2)
	if _, err := doc.WriteTo(w); err != nil {
		return errors.Wrap(err, "write")
	}
	return nil
}

// Process expands doc in place. Failing building blocks are replaced by
// diagnostics; only cancellation aborts the run.
func (P *Processor) Process(ctx context.Context, doc *etree.Document) error {
	root := doc.Root()
	if root == nil {
		return errors.New("no root element")
	}
	R := P.newRun()
	V := &Visitor{run: R, vars: make(map[string]*model.Context)}
	err := V.Visit(ctx, root)
	if leaked := R.store.Sweep(); len(leaked) != 0 {
		R.logger.Warn("unconsumed temporary objects", zap.Int("count", len(leaked)), zap.Strings("keys", leaked))
	}
	return err
}
