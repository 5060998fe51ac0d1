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

package main

import (
	"context"
	"io"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/UNO-SOFT/bbtemplate/blocklib"
	"github.com/UNO-SOFT/bbtemplate/model"
	"github.com/UNO-SOFT/bbtemplate/trace"
	"github.com/UNO-SOFT/bbtemplate/transform"
	"github.com/UNO-SOFT/bbtemplate/xmlbuild"
)

// Config is the content of the YAML config file. Flags override it.
type Config struct {
	Blocks           []string          `yaml:"blocks"`
	Metadata         string            `yaml:"metadata"`
	Public           bool              `yaml:"public"`
	Trace            bool              `yaml:"trace"`
	TracedNamespaces []string          `yaml:"tracedNamespaces"`
	Namespaces       map[string]string `yaml:"namespaces"`
	AppComponent     string            `yaml:"appComponent"`
	Concurrency      int               `yaml:"concurrency"`
	Suffix           string            `yaml:"suffix"`
	MaxDepth         int               `yaml:"maxDepth"`
}

var defaultTracedNamespaces = []string{"sap.m", "sap.ui.mdc", "sap.ui.core", "sap.fe.macros"}

func loadConfig(fn string) (Config, error) {
	cfg := Config{Concurrency: 4, Suffix: ".expanded"}
	if fn == "" {
		return cfg, nil
	}
	fh, err := os.Open(fn)
	if err != nil {
		return cfg, errors.Wrap(err, "open "+fn)
	}
	defer fh.Close()
	dec := yaml.NewDecoder(fh)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return cfg, errors.Wrap(err, "decode "+fn)
	}
	return cfg, nil
}

// newProcessor builds the processor from cfg. The recorder is only set when
// tracing is on.
func newProcessor(ctx context.Context, cfg Config, logger *zap.Logger) (*transform.Processor, error) {
	P := transform.Processor{
		Registry: transform.NewRegistry(),
		Logger:   logger,
		MaxDepth: cfg.MaxDepth,
		Settings: transform.Settings{
			Models:       make(map[string]model.Model),
			IsPublic:     cfg.Public,
			AppComponent: cfg.AppComponent,
			Namespaces:   cfg.Namespaces,
		},
	}
	lib, err := blocklib.LoadFiles(cfg.Blocks...)
	if err != nil {
		return nil, err
	}
	if err := lib.Register(P.Registry, &P.Settings); err != nil {
		return nil, err
	}
	logger.Info("block library loaded", zap.Int("blocks", len(lib.Blocks)), zap.Int("fragments", len(lib.Fragments)))

	if cfg.Metadata != "" {
		meta, err := loadMetadata(ctx, cfg.Metadata, logger)
		if err != nil {
			return nil, err
		}
		P.Settings.Models[model.MetaModel] = meta
	}
	if cfg.Trace {
		P.Recorder = newRecorder(cfg, logger)
	}
	return &P, nil
}

func newRecorder(cfg Config, logger *zap.Logger) *trace.Recorder {
	names := cfg.TracedNamespaces
	if len(names) == 0 {
		names = defaultTracedNamespaces
	}
	uris := make([]string, 0, len(names))
	for _, nm := range names {
		uris = append(uris, namespaceURI(cfg, nm))
	}
	return trace.New(logger, uris...)
}

// namespaceURI resolves a configured prefix like "m" to its URI.
// Anything else is taken as an URI.
func namespaceURI(cfg Config, prefix string) string {
	if uri, ok := cfg.Namespaces[prefix]; ok {
		return uri
	}
	if uri, ok := xmlbuild.DefaultNamespaces[prefix]; ok {
		return uri
	}
	return prefix
}
