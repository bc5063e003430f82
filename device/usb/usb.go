/*
NAME
  usb.go

DESCRIPTION
  usb.go implements chunk.Source against the live USB device: vendor
  0x09CB, product 0x1996, interface 0, bulk IN streaming endpoint. Modeled
  on device.AVDevice's Start/Read/Stop shape (device/device.go), adapted to
  the pull-based chunk.Source contract and backed by gousb instead of an
  external capture utility.

LICENSE
  See the LICENSE file distributed with this repository.
*/

// Package usb provides the live chunk.Source backend, reading fixed-size
// bulk transfers from the thermal camera's streaming endpoint.
package usb

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/gousb"

	"github.com/ausocean/utils/logging"

	"github.com/flirstream/thermalcore/chunk"
)

// Device identity, per spec.md §6.
const (
	VendorID  = 0x09CB
	ProductID = 0x1996

	interfaceNum = 0
	altSetting   = 0
	inEndpoint   = 0x81
	outEndpoint  = 0x01
)

// TransportError wraps a non-timeout bulk read failure or a vanished
// device; it is fatal to the stream (spec.md §7).
type TransportError struct{ Err error }

func (e *TransportError) Error() string { return fmt.Sprintf("usb: transport error: %v", e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// Source is the live chunk.Source backend.
type Source struct {
	ctx     *gousb.Context
	dev     *gousb.Device
	cfg     *gousb.Config
	intf    *gousb.Interface
	in      *gousb.InEndpoint
	timeout time.Duration
	log     logging.Logger
	seq     uint64
	closed  bool
}

// Open claims interface 0 of the first device matching VendorID/ProductID
// and prepares it for streaming. The caller must still run the handshake
// (protocol/handshake.Run) against the returned Source before calling Next.
func Open(readTimeout time.Duration, log logging.Logger) (*Source, error) {
	ctx := gousb.NewContext()

	dev, err := ctx.OpenDeviceWithVIDPID(gousb.ID(VendorID), gousb.ID(ProductID))
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("usb: could not open device: %w", err)
	}
	if dev == nil {
		ctx.Close()
		return nil, errors.New("usb: no matching device found")
	}

	if err := dev.SetAutoDetach(true); err != nil {
		log.Warning("could not enable auto kernel-driver detach", "error", err.Error())
	}

	cfg, err := dev.Config(1)
	if err != nil {
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("usb: could not claim config: %w", err)
	}

	intf, err := cfg.Interface(interfaceNum, altSetting)
	if err != nil {
		cfg.Close()
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("usb: could not claim interface: %w", err)
	}

	in, err := intf.InEndpoint(inEndpoint)
	if err != nil {
		intf.Close()
		cfg.Close()
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("usb: could not open in endpoint: %w", err)
	}

	return &Source{
		ctx:     ctx,
		dev:     dev,
		cfg:     cfg,
		intf:    intf,
		in:      in,
		timeout: readTimeout,
		log:     log,
	}, nil
}

// ControlTransfer satisfies handshake.Transport.
func (s *Source) ControlTransfer(requestType, request uint8, value, index uint16, data []byte) (int, error) {
	return s.dev.Control(requestType, request, value, index, data)
}

// BulkWrite satisfies handshake.Transport.
func (s *Source) BulkWrite(endpoint uint8, data []byte) (int, error) {
	out, err := s.intf.OutEndpoint(int(endpoint))
	if err != nil {
		return 0, err
	}
	return out.Write(data)
}

// Next performs one bulk IN read of up to chunk.NominalSize bytes. A read
// that times out yields a valid zero-length heartbeat chunk (spec.md
// §4.1); any other read error is a fatal TransportError.
func (s *Source) Next() (chunk.Chunk, error) {
	buf := make([]byte, chunk.NominalSize)

	stream, err := s.in.NewStream(chunk.NominalSize, 1)
	if err != nil {
		return chunk.Chunk{}, &TransportError{Err: err}
	}
	defer stream.Close()

	n, err := readWithTimeout(stream, buf, s.timeout)
	seq := s.seq
	s.seq++
	if err != nil {
		if errors.Is(err, errReadTimeout) {
			return chunk.Chunk{Seq: seq, Data: nil}, nil
		}
		return chunk.Chunk{}, &TransportError{Err: err}
	}
	return chunk.Chunk{Seq: seq, Data: buf[:n]}, nil
}

// Close releases the interface, device and context. Close is idempotent.
func (s *Source) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.intf.Close()
	s.cfg.Close()
	err := s.dev.Close()
	s.ctx.Close()
	if err != nil {
		return fmt.Errorf("usb: error closing device: %w", err)
	}
	return nil
}
