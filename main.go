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
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rjeczalik/notify"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/UNO-SOFT/bbtemplate/transform"
)

const viewSuffix = ".view.xml"

var eventsToWatch = []notify.Event{notify.Create, notify.Write, notify.Rename}

func main() {
	if err := Main(); err != nil {
		log.Fatalf("%+v", err)
	}
}

func Main() error {
	var configFile string
	var verbose bool
	var flagBlocks, flagTraced []string
	var flagMetadata, flagSuffix string
	var flagPublic, flagTrace bool
	var flagConcurrency int

	app := kingpin.New("bbtemplate", "Expand XML building blocks of views")
	app.Flag("config", "YAML config file").Short('c').StringVar(&configFile)
	app.Flag("verbose", "verbose logging").Short('v').BoolVar(&verbose)
	app.Flag("blocks", "block library YAML file (repeatable)").StringsVar(&flagBlocks)
	app.Flag("metadata", "JSON metadata model file or http(s) URL").StringVar(&flagMetadata)
	app.Flag("public", "the views are public call sites").BoolVar(&flagPublic)
	app.Flag("trace", "record the trace of building blocks and controls").BoolVar(&flagTrace)
	app.Flag("traced-ns", "namespace (prefix or URI) of traced controls (repeatable)").StringsVar(&flagTraced)

	cmdTransform := app.Command("transform", "expand the XML view").Default()
	tranSrc := cmdTransform.Arg("src", "source file").String()
	tranDst := cmdTransform.Arg("dst", "destination file").String()

	cmdServe := app.Command("serve", "expand POSTed XML views over HTTP")
	cmdServeAddress := cmdServe.Arg("address", "address to listen on").Required().String()

	var watchSrc, watchDst string
	cmdWatch := app.Command("watch", "watch a directory and expand all appearing views")
	cmdWatch.Arg("src", "source path to watch").Required().ExistingDirVar(&watchSrc)
	cmdWatch.Arg("dst", "destination path").ExistingDirVar(&watchDst)
	cmdWatch.Flag("suffix", "suffix of expanded files").StringVar(&flagSuffix)
	cmdWatch.Flag("concurrency", "maximum number of expansions running in parallel").IntVar(&flagConcurrency)
	watchServeAddress := cmdWatch.Flag("http", "HTTP address to listen on").String()

	cmd := kingpin.MustParse(app.Parse(os.Args[1:]))

	cfg, err := loadConfig(configFile)
	if err != nil {
		return err
	}
	if len(flagBlocks) != 0 {
		cfg.Blocks = append(cfg.Blocks, flagBlocks...)
	}
	if flagMetadata != "" {
		cfg.Metadata = flagMetadata
	}
	if len(flagTraced) != 0 {
		cfg.TracedNamespaces = flagTraced
	}
	if flagSuffix != "" {
		cfg.Suffix = flagSuffix
	}
	if flagConcurrency > 0 {
		cfg.Concurrency = flagConcurrency
	}
	cfg.Public = cfg.Public || flagPublic
	cfg.Trace = cfg.Trace || flagTrace

	var logger *zap.Logger
	if verbose {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return errors.Wrap(err, "logger")
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	go func() {
		<-sigCh
		cancel()
		time.Sleep(time.Second)
		os.Exit(1)
	}()
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	P, err := newProcessor(ctx, cfg, logger)
	if err != nil {
		return err
	}

	switch cmd {
	case cmdTransform.FullCommand():
		return transformFiles(ctx, P, *tranDst, *tranSrc)

	case cmdServe.FullCommand():
		http.Handle("/", newServer(P, cfg, logger))
		logger.Info("Listening", zap.String("address", *cmdServeAddress))
		return http.ListenAndServe(*cmdServeAddress, nil)

	case cmdWatch.FullCommand():
		if watchDst == "" {
			watchDst = watchSrc
		}
		grp, ctx := errgroup.WithContext(ctx)
		if *watchServeAddress != "" {
			http.Handle("/", newServer(P, cfg, logger))
			grp.Go(func() error {
				logger.Info("Listening", zap.String("address", *watchServeAddress))
				return http.ListenAndServe(*watchServeAddress, nil)
			})
		}
		grp.Go(func() error {
			return watchTransform(ctx, P, watchDst, watchSrc, cfg.Suffix, cfg.Concurrency)
		})
		return grp.Wait()
	}
	return nil
}

// watchTransform expands every view appearing in srcDir into dstDir.
func watchTransform(ctx context.Context, P *transform.Processor, dstDir, srcDir, suffix string, concurrency int) error {
	if concurrency < 1 {
		concurrency = 1
	}
	tokens := make(chan struct{}, concurrency)
	eventCh := make(chan notify.EventInfo, 16)
	if err := notify.Watch(srcDir, eventCh, eventsToWatch...); err != nil {
		return errors.Wrap(err, "watch")
	}
	defer notify.Stop(eventCh)
	logger := P.Logger.With(zap.String("dir", srcDir))
	logger.Info("watching")
	for {
		var evt notify.EventInfo
		select {
		case <-ctx.Done():
			return nil
		case evt = <-eventCh:
		}
		fn := evt.Path()
		bn := filepath.Base(fn)
		if !strings.HasSuffix(bn, viewSuffix) || (suffix != "" && strings.HasSuffix(bn, suffix+viewSuffix)) {
			continue
		}
		dst := filepath.Join(dstDir, strings.TrimSuffix(bn, viewSuffix)+suffix+viewSuffix)
		go func() {
			time.Sleep(time.Second)
			select {
			case <-ctx.Done():
				return
			case tokens <- struct{}{}:
			}
			defer func() { <-tokens }()
			for i := 0; i < 10; i++ {
				err := transformFiles(ctx, P, dst, fn)
				if err == nil {
					logger.Info("expanded", zap.String("src", fn), zap.String("dst", dst))
					return
				}
				logger.Error("expand", zap.String("src", fn), zap.Int("attempt", i+1), zap.Error(err))
				if ctx.Err() != nil {
					return
				}
				time.Sleep(time.Duration(i) * time.Second)
			}
		}()
	}
}

func transformFiles(ctx context.Context, P *transform.Processor, dst, src string) error {
	inp := os.Stdin
	if !(src == "" || src == "-") {
		var err error
		if inp, err = os.Open(src); err != nil {
			return errors.Wrap(err, "open "+src)
		}
		Q := *P
		Q.Settings.ViewInfo = map[string]interface{}{"viewName": viewName(src)}
		P = &Q
	}
	defer inp.Close()

	out := os.Stdout
	if !(dst == "" || dst == "-") {
		var err error
		if out, err = os.Create(dst); err != nil {
			return errors.Wrap(err, "create "+dst)
		}
	}
	defer out.Close()

	if err := P.ProcessStream(ctx, out, inp); err != nil {
		return errors.WithMessage(err, "processStream "+strconv.Quote(src))
	}
	return out.Close()
}

// viewName returns the file name without directory and view suffix.
func viewName(fn string) string {
	bn := filepath.Base(fn)
	if strings.HasSuffix(bn, viewSuffix) {
		return strings.TrimSuffix(bn, viewSuffix)
	}
	return strings.TrimSuffix(bn, filepath.Ext(bn))
}
