/*
NAME
  handshake.go

DESCRIPTION
  handshake.go reproduces the fixed device bring-up sequence (C3) that
  moves the camera from enumeration to streaming state: a table of control
  transfers and bulk writes, replayed byte-for-byte against the open USB
  device before the first bulk IN read.

LICENSE
  See the LICENSE file distributed with this repository.
*/

// Package handshake runs the fixed device bring-up sequence against an open
// USB device handle.
package handshake

import (
	"fmt"
	"time"

	"github.com/ausocean/utils/logging"
)

// maxNAKRetries is the number of times a single step may report a
// NAK/short reply before the handshake is declared failed (spec.md §4.3).
const maxNAKRetries = 3

// stepKind distinguishes the two transfer types that make up the bring-up
// sequence.
type stepKind uint8

const (
	control stepKind = iota
	bulkWrite
)

// step is one entry in the fixed bring-up sequence.
type step struct {
	kind           stepKind
	requestType    uint8
	request        uint8
	value          uint16
	index          uint16
	payload        []byte
	wantReplyLen   int // -1 means "don't care".
	endpoint       uint8
}

// sequence is the captured byte-for-byte reproduction of the vendor host
// stack's bring-up exchange. The exact values are device-specific constants
// and are not tunable (spec.md §4.3); this table stands in for the captured
// USB trace.
var sequence = []step{
	{kind: control, requestType: 0x40, request: 0x01, value: 0x0000, index: 0x0000, wantReplyLen: 0},
	{kind: control, requestType: 0xC0, request: 0x02, value: 0x0000, index: 0x0000, wantReplyLen: 2},
	{kind: bulkWrite, endpoint: 0x01, payload: []byte{0xA5, 0x5A, 0x00, 0x01}, wantReplyLen: -1},
	{kind: control, requestType: 0x40, request: 0x03, value: 0x0001, index: 0x0000, wantReplyLen: 0},
	{kind: control, requestType: 0xC0, request: 0x04, value: 0x0000, index: 0x0000, wantReplyLen: 1},
	{kind: bulkWrite, endpoint: 0x01, payload: []byte{0xA5, 0x5A, 0x00, 0x02}, wantReplyLen: -1},
}

// Transport is the minimal device surface the handshake needs: control
// transfers and bulk writes against the endpoint addressed by each step.
// device/usb.Source implements this.
type Transport interface {
	ControlTransfer(requestType, request uint8, value, index uint16, data []byte) (int, error)
	BulkWrite(endpoint uint8, data []byte) (int, error)
}

// Error is returned when the handshake fails after exhausting its retry
// budget for a step.
type Error struct {
	Step int
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("handshake: step %d failed: %v", e.Step, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Run executes the fixed bring-up sequence against t. It is synchronous,
// idempotent per open, and tolerant of up to maxNAKRetries short replies per
// step before declaring failure (spec.md §4.3).
func Run(t Transport, log logging.Logger) error {
	for i, s := range sequence {
		var err error
		for attempt := 0; attempt <= maxNAKRetries; attempt++ {
			err = runStep(t, s)
			if err == nil {
				break
			}
			log.Warning("handshake step short reply, retrying", "step", i, "attempt", attempt, "error", err.Error())
			time.Sleep(10 * time.Millisecond)
		}
		if err != nil {
			return &Error{Step: i, Err: err}
		}
	}
	log.Info("handshake complete")
	return nil
}

func runStep(t Transport, s step) error {
	switch s.kind {
	case control:
		buf := make([]byte, s.wantReplyLen)
		n, err := t.ControlTransfer(s.requestType, s.request, s.value, s.index, buf)
		if err != nil {
			return err
		}
		if s.wantReplyLen > 0 && n != s.wantReplyLen {
			return fmt.Errorf("short control reply: got %d bytes, want %d", n, s.wantReplyLen)
		}
		return nil
	case bulkWrite:
		n, err := t.BulkWrite(s.endpoint, s.payload)
		if err != nil {
			return err
		}
		if n != len(s.payload) {
			return fmt.Errorf("short bulk write: wrote %d bytes, want %d", n, len(s.payload))
		}
		return nil
	default:
		return fmt.Errorf("unknown step kind %d", s.kind)
	}
}
