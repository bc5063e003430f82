/*
NAME
  stream.go

DESCRIPTION
  stream.go implements the public stream (C10): it owns the lifecycle of
  C1-C9, exposing a single pull operation, next_frame, that runs the
  pipeline far enough to either emit one CompositeFrame or reach a
  terminal condition. Modeled on revid.Revid's ownership of config, input
  device and processing routine (revid/revid.go), adapted from a
  push/write pipeline to a pull/read one.

LICENSE
  See the LICENSE file distributed with this repository.
*/

// Package stream exposes the pull-based sequence of composite frames that
// is the sole public surface of this module.
package stream

import (
	"errors"
	"fmt"
	"sync"

	"github.com/flirstream/thermalcore/chunk"
	"github.com/flirstream/thermalcore/config"
	"github.com/flirstream/thermalcore/container/frame"
	"github.com/flirstream/thermalcore/device/offline"
	"github.com/flirstream/thermalcore/device/usb"
	"github.com/flirstream/thermalcore/protocol/classify"
	"github.com/flirstream/thermalcore/protocol/handshake"
	"github.com/flirstream/thermalcore/recorder"
)

// ErrEndOfStream terminates a Stream non-fatally: the offline source has
// exhausted its requested passes (spec.md §7).
var ErrEndOfStream = chunk.ErrEndOfStream

// HandshakeError wraps a failed device bring-up; fatal to Open (spec.md §7).
type HandshakeError struct{ Err error }

func (e *HandshakeError) Error() string { return fmt.Sprintf("stream: handshake failed: %v", e.Err) }
func (e *HandshakeError) Unwrap() error { return e.Err }

// RecordingError wraps a failed write-through to the recorder directory;
// fatal to the open stream (spec.md §7).
type RecordingError struct{ Err error }

func (e *RecordingError) Error() string { return fmt.Sprintf("stream: recording failed: %v", e.Err) }
func (e *RecordingError) Unwrap() error { return e.Err }

// CompositeFrame re-exports container/frame.CompositeFrame as the public
// output type.
type CompositeFrame = frame.CompositeFrame

// Stats re-exports container/frame.Stats as the public diagnostics type.
type Stats = frame.Stats

// Stream is the public handle returned by OpenLive and OpenOffline. It
// owns the chunk source, optional recorder, and frame assembler for its
// lifetime; Close releases all three.
type Stream struct {
	cfg config.Config
	src chunk.Source
	rec *recorder.Recorder
	asm *frame.Assembler

	closed bool

	async   bool
	frameCh chan asyncMsg
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

type asyncMsg struct {
	frame *CompositeFrame
	err   error
}

// OpenLive opens the live USB device, runs the fixed bring-up handshake
// (C3), and returns a Stream ready to deliver composite frames. cfg.Backend
// is set to config.BackendLive regardless of its incoming value.
func OpenLive(cfg config.Config) (*Stream, error) {
	cfg.Backend = config.BackendLive
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dev, err := usb.Open(cfg.ReadTimeout, cfg.Logger)
	if err != nil {
		return nil, err
	}

	if err := handshake.Run(dev, cfg.Logger); err != nil {
		dev.Close()
		return nil, &HandshakeError{Err: err}
	}

	var rec *recorder.Recorder
	if cfg.RecordDir != "" {
		rec, err = recorder.New(cfg.RecordDir, cfg.Logger)
		if err != nil {
			dev.Close()
			return nil, err
		}
	}

	return newStream(cfg, dev, rec), nil
}

// OpenOffline opens an ordered directory of capture files and returns a
// Stream that replays it. cfg.Backend is set to config.BackendOffline
// regardless of its incoming value.
func OpenOffline(cfg config.Config) (*Stream, error) {
	cfg.Backend = config.BackendOffline
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	src, err := offline.New(cfg.OfflineDir, cfg.Repeat, cfg.Logger)
	if err != nil {
		return nil, err
	}

	return newStream(cfg, src, nil), nil
}

func newStream(cfg config.Config, src chunk.Source, rec *recorder.Recorder) *Stream {
	s := &Stream{
		cfg:   cfg,
		src:   src,
		rec:   rec,
		asm:   frame.New(cfg.Logger, cfg.EmitIncompleteThermal),
		async: cfg.Async,
	}
	if s.async {
		depth := cfg.HandoffDepth
		if depth <= 0 {
			depth = config.DefaultHandoffDepth
		}
		s.frameCh = make(chan asyncMsg, depth)
		s.stopCh = make(chan struct{})
		s.wg.Add(1)
		go s.produce()
	}
	return s
}

// NextFrame runs the pipeline until either one CompositeFrame is emitted
// or a terminal condition is reached: ErrEndOfStream (offline exhausted,
// non-error) or any other error, which is fatal to the Stream.
func (s *Stream) NextFrame() (*CompositeFrame, error) {
	if s.async {
		select {
		case msg, ok := <-s.frameCh:
			if !ok {
				return nil, ErrEndOfStream
			}
			return msg.frame, msg.err
		case <-s.stopCh:
			return nil, ErrEndOfStream
		}
	}
	return s.pump()
}

// pump drives C1 -> C4 -> (C5|C6|C7|C8) -> C9 on the calling goroutine
// until a frame is emitted or a terminal condition is reached.
func (s *Stream) pump() (*CompositeFrame, error) {
	for {
		// stopCh is nil outside threaded mode, so this never fires there.
		select {
		case <-s.stopCh:
			return nil, ErrEndOfStream
		default:
		}

		c, err := s.src.Next()
		if err != nil {
			if errors.Is(err, chunk.ErrEndOfStream) {
				return nil, ErrEndOfStream
			}
			return nil, err
		}

		if s.rec != nil {
			if err := s.rec.Record(c); err != nil {
				return nil, &RecordingError{Err: err}
			}
		}

		cls := classify.Classify(c, s.asm)
		cf, err := s.asm.Feed(c, cls)
		if err != nil {
			return nil, err
		}
		if cf != nil {
			return cf, nil
		}
	}
}

// produce runs pump continuously on a dedicated goroutine, handing
// finalized frames (or a terminal error) over the bounded frameCh, for
// Stream's optional threaded mode (spec.md §4.10, §5).
func (s *Stream) produce() {
	defer s.wg.Done()
	defer close(s.frameCh)
	for {
		cf, err := s.pump()
		select {
		case s.frameCh <- asyncMsg{frame: cf, err: err}:
		case <-s.stopCh:
			return
		}
		if err != nil {
			return
		}
	}
}

// Stats returns the diagnostic desync counters accumulated so far.
func (s *Stream) Stats() Stats { return s.asm.Stats() }

// Close releases the chunk source and recorder. Close is idempotent and
// returns promptly: in threaded mode it signals the producer goroutine via
// stopCh, which it observes at most one bulk-read timeout later
// (spec.md §5).
func (s *Stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	if s.async {
		close(s.stopCh)
		s.wg.Wait()
	}

	srcErr := s.src.Close()
	var recErr error
	if s.rec != nil {
		recErr = s.rec.Close()
	}
	if srcErr != nil {
		return fmt.Errorf("stream: error closing source: %w", srcErr)
	}
	if recErr != nil {
		return fmt.Errorf("stream: error closing recorder: %w", recErr)
	}
	return nil
}
