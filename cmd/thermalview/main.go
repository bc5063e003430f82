/*
NAME
  main.go

DESCRIPTION
  Thermalview is a bare bones program that opens the thermal camera's
  composite frame stream, live or from an offline capture directory, and
  logs a one-line summary of each frame as it arrives. It does not render,
  apply a false-color palette, or meter frame rate; see SPEC_FULL.md §5 for
  what's intentionally left to a downstream consumer.

LICENSE
  See the LICENSE file distributed with this repository.
*/

// Package main is the thermalview command.
package main

import (
	"errors"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ausocean/utils/logging"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/flirstream/thermalcore/config"
	"github.com/flirstream/thermalcore/stream"
)

// Logging related constants, mirrored from the audio looper command.
const (
	logPath      = "/var/log/thermalview/thermalview.log"
	logMaxSize   = 100 // MB
	logMaxBackup = 5
	logMaxAge    = 28 // days
	logVerbosity = logging.Debug
	logSuppress  = true
)

func main() {
	offlineDir := flag.String("offline-dir", "", "Replay captures from this directory instead of opening the live USB device.")
	recordDir := flag.String("record-dir", "", "Write-through every chunk from the live device into this directory.")
	repeat := flag.Int("repeat", 0, "Offline replay pass count: 0 means one pass, N means N passes, negative means loop forever.")
	async := flag.Bool("async", false, "Run the pipeline on a dedicated producer goroutine.")
	readTimeout := flag.Duration("read-timeout", config.DefaultReadTimeout, "Bulk IN read timeout for the live device.")
	emitIncomplete := flag.Bool("emit-incomplete-thermal", false, "Emit a thermal raster even when rows are missing at frame boundary.")
	flag.Parse()

	fileLog := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    logMaxSize,
		MaxBackups: logMaxBackup,
		MaxAge:     logMaxAge,
	}
	l := logging.New(logVerbosity, io.MultiWriter(fileLog, os.Stderr), logSuppress)

	cfg := config.Config{
		Logger:                l,
		ReadTimeout:           *readTimeout,
		RecordDir:             *recordDir,
		OfflineDir:            *offlineDir,
		Repeat:                *repeat,
		Async:                 *async,
		EmitIncompleteThermal: *emitIncomplete,
	}

	var s *stream.Stream
	var err error
	if *offlineDir != "" {
		s, err = stream.OpenOffline(cfg)
	} else {
		s, err = stream.OpenLive(cfg)
	}
	if err != nil {
		l.Fatal("could not open stream", "error", err.Error())
	}
	defer s.Close()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		l.Info("signal received, closing stream")
		s.Close()
	}()

	run(s, l)
}

func run(s *stream.Stream, l logging.Logger) {
	start := time.Now()
	for {
		cf, err := s.NextFrame()
		if err != nil {
			if errors.Is(err, stream.ErrEndOfStream) {
				l.Info("stream exhausted", "elapsed", time.Since(start).String())
				return
			}
			l.Error("stream terminated", "error", err.Error())
			return
		}
		logFrame(l, cf)
	}
}

func logFrame(l logging.Logger, cf *stream.CompositeFrame) {
	fields := []interface{}{"idx", cf.Idx}
	if cf.HasBoundaryID {
		fields = append(fields, "boundary", cf.BoundaryID)
	}
	fields = append(fields,
		"thermal", cf.Thermal != nil,
		"visible", cf.Visible != nil,
		"telemetry", cf.Telemetry != nil,
		"edgeMask", cf.EdgeMask != nil,
	)
	l.Info("frame", fields...)
}
