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
	"bytes"
	"net/http"
	"strconv"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/UNO-SOFT/bbtemplate/trace"
	"github.com/UNO-SOFT/bbtemplate/transform"
)

const maxRequestSize = 16 << 20

// server expands the POSTed XML views.
// Tracing is switched on per request by the query string, or for every
// request when the processor already has a recorder.
type server struct {
	*transform.Processor
	recorder *trace.Recorder
	logger   *zap.Logger
}

func newServer(P *transform.Processor, cfg Config, logger *zap.Logger) *server {
	srv := server{Processor: P, recorder: P.Recorder, logger: logger}
	if srv.recorder == nil {
		srv.recorder = newRecorder(cfg, logger)
	}
	return &srv
}

func (srv *server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/trace" {
		srv.serveTrace(w, r)
		return
	}
	if r.Method != "POST" {
		http.Error(w, "only POST is allowed", http.StatusMethodNotAllowed)
		return
	}
	P := *srv.Processor
	if P.Recorder == nil && trace.ActiveFromQuery(r.URL.RawQuery) {
		P.Recorder = srv.recorder
	}
	if view := r.URL.Query().Get("view"); view != "" {
		P.Settings.ViewInfo = map[string]interface{}{"viewName": view}
	}
	logger := srv.logger.With(zap.String("remote", r.RemoteAddr), zap.Bool("trace", P.Recorder.Active()))
	P.Logger = logger

	var buf bytes.Buffer
	if err := P.ProcessStream(r.Context(), &buf, http.MaxBytesReader(w, r.Body, maxRequestSize)); err != nil {
		logger.Error("process", zap.Error(err))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	if _, err := w.Write(buf.Bytes()); err != nil {
		logger.Warn("write", zap.Error(err))
	}
}

// serveTrace returns the record with the "id" query parameter,
// or the trace info of the whole buffer.
func (srv *server) serveTrace(w http.ResponseWriter, r *http.Request) {
	var v interface{}
	if s := r.URL.Query().Get("id"); s != "" {
		id, err := strconv.Atoi(s)
		if err != nil {
			http.Error(w, "id: "+err.Error(), http.StatusBadRequest)
			return
		}
		rec, ok := srv.recorder.Get(id)
		if !ok {
			http.Error(w, "trace "+s+" not found", http.StatusNotFound)
			return
		}
		v = rec
	} else {
		v = srv.recorder.TraceInfo()
	}
	w.Header().Set("Content-Type", "application/json")
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(w).Encode(v); err != nil {
		srv.logger.Warn("encode trace", zap.Error(err))
	}
}
