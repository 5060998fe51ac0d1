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
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/UNO-SOFT/bbtemplate/model"
)

// loadMetadata reads the JSON metadata model from a file or an http(s) URL.
func loadMetadata(ctx context.Context, src string, logger *zap.Logger) (*model.JSONModel, error) {
	if !(strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://")) {
		fh, err := os.Open(src)
		if err != nil {
			return nil, errors.Wrap(err, "open "+src)
		}
		defer fh.Close()
		m, err := model.LoadJSONModel(fh)
		return m, errors.WithMessage(err, src)
	}

	mc := newMetadataClient(logger, 3)
	resp, err := mc.do(ctx, func() (*retryablehttp.Request, error) {
		req, err := retryablehttp.NewRequestWithContext(ctx, "GET", src, nil)
		if err != nil {
			return nil, errors.Wrap(err, src)
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	logger.Info("metadata", zap.String("url", src), zap.String("status", resp.Status))
	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return nil, errors.Wrap(errors.New(resp.Status), string(b))
	}
	m, err := model.LoadJSONModel(resp.Body)
	return m, errors.WithMessage(err, src)
}

type metadataClient struct {
	*retryablehttp.Client
	MaxRetries int
	Pause      time.Duration
	logger     *zap.Logger
}

func newMetadataClient(logger *zap.Logger, maxRetries int) *metadataClient {
	if maxRetries == 0 {
		maxRetries = 3
	}
	cl := retryablehttp.NewClient()
	cl.RetryMax = 1
	cl.Logger = leveledLogger{logger.Sugar()}
	cl.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, nth int) {
		if nth > 0 {
			logger.Info("request", zap.Int("retry", nth), zap.Stringer("url", req.URL))
		}
	}
	return &metadataClient{Client: cl, MaxRetries: maxRetries, Pause: time.Second, logger: logger}
}

func (mc *metadataClient) do(ctx context.Context, makeRequest func() (*retryablehttp.Request, error)) (*http.Response, error) {
	var err error
	var resp *http.Response
	for i := 0; i < mc.MaxRetries; i++ {
		var req *retryablehttp.Request
		if req, err = makeRequest(); err != nil {
			return nil, err
		}
		if resp, err = mc.Do(req); err == nil {
			return resp, nil
		}
		mc.logger.Warn("fetch", zap.Int("attempt", i+1), zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(mc.Pause):
		}
	}
	return nil, err
}

// leveledLogger adapts zap to retryablehttp.LeveledLogger.
type leveledLogger struct{ *zap.SugaredLogger }

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.Errorw(msg, keysAndValues...)
}
func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.Infow(msg, keysAndValues...)
}
func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.Debugw(msg, keysAndValues...)
}
func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.Warnw(msg, keysAndValues...)
}
