/*
NAME
  frame.go

DESCRIPTION
  frame.go implements the frame assembler (C9): it buffers whichever
  partial artifacts have been decoded since the last frame-boundary sync
  and emits a CompositeFrame when the next sync is observed. Modeled on
  container/mts.Encoder's role of multiplexing decoded access units into
  one container unit, adapted from PES/PSI multiplexing to sync-bounded
  composite frame assembly.

LICENSE
  See the LICENSE file distributed with this repository.
*/

// Package frame assembles composite frames from classified, decoded chunk
// artifacts.
package frame

import (
	"github.com/ausocean/utils/logging"

	"github.com/flirstream/thermalcore/chunk"
	"github.com/flirstream/thermalcore/codec/edgemask"
	"github.com/flirstream/thermalcore/codec/telemetry"
	"github.com/flirstream/thermalcore/codec/thermal"
	"github.com/flirstream/thermalcore/codec/visible"
	"github.com/flirstream/thermalcore/protocol/classify"
)

// CompositeFrame is the public output unit (spec.md §3): a monotonic
// index, an optional boundary timestamp, and whichever of
// thermal/visible/telemetry/edge accumulated between two sync boundaries.
// Invariant: at least one member is non-nil.
type CompositeFrame struct {
	Idx uint64

	BoundaryID    uint32
	HasBoundaryID bool

	Thermal   *thermal.Raster
	Visible   *visible.Image
	Telemetry *telemetry.Record
	EdgeMask  *edgemask.Mask
}

// Stats are the diagnostic desync counters spec.md §7 requires be exposed,
// modeled on revid.Revid.Bitrate's typed read-only accessor pattern.
type Stats struct {
	FramesEmitted    uint64
	FramesDropped    uint64
	UnknownChunks    uint64
	ThermalDesyncs   uint64
	JPEGDesyncs      uint64
	TelemetryDesyncs uint64
	EdgeDesyncs      uint64
}

// Assembler holds the per-frame partial state described in spec.md §4.9
// and turns classified chunks into CompositeFrames.
type Assembler struct {
	log logging.Logger

	emitIncomplete bool

	thermalPartial  *thermal.Partial
	jpegPartial     *visible.Partial
	visibleFinal    *visible.Image
	telemetryLatest *telemetry.Record
	edgeLatest      *edgemask.Mask

	boundaryID    uint32
	haveBoundary  bool
	sawFirstSync  bool

	nextIdx uint64
	stats   Stats
}

// New returns an empty Assembler. emitIncomplete implements the
// EmitIncompleteThermal config option (spec.md §3's "explicit opt-in").
func New(log logging.Logger, emitIncomplete bool) *Assembler {
	return &Assembler{log: log, emitIncomplete: emitIncomplete}
}

// JPEGInProgress satisfies classify.JPEGInProgress, letting the stateful
// classifier rule 3 query the assembler without any global state
// (spec.md §9).
func (a *Assembler) JPEGInProgress() bool {
	return a.jpegPartial != nil
}

// Stats returns a snapshot of the diagnostic counters.
func (a *Assembler) Stats() Stats { return a.stats }

// Feed processes one classified chunk. It returns a non-nil CompositeFrame
// when a FrameSync chunk caused one to be emitted; a FrameSync that
// produces no emittable frame (nothing accumulated, or it's the very
// first sync after handshake) returns (nil, nil).
func (a *Assembler) Feed(c chunk.Chunk, cls classify.Class) (*CompositeFrame, error) {
	switch cls.Kind {
	case classify.FrameSync:
		return a.handleSync(cls)

	case classify.ThermalPacket:
		a.handleThermal(c)
		return nil, nil

	case classify.VisibleJpeg:
		a.handleJPEG(c, cls)
		return nil, nil

	case classify.TelemetryJson:
		a.handleTelemetry(c)
		return nil, nil

	case classify.EdgeRle:
		a.handleEdge(c)
		return nil, nil

	case classify.AGCLegacy:
		// Unreachable on current hardware; classified and dropped
		// (spec.md §9).
		return nil, nil

	default: // Unknown.
		a.stats.UnknownChunks++
		return nil, nil
	}
}

func (a *Assembler) handleThermal(c chunk.Chunk) {
	if a.thermalPartial == nil {
		a.thermalPartial = thermal.NewPartial()
	}
	_, err := a.thermalPartial.FeedChunk(c.Data)
	if err != nil {
		a.log.Warning("thermal desync, dropping partial frame", "seq", c.Seq, "error", err.Error())
		a.stats.ThermalDesyncs++
		a.thermalPartial = nil
	}
}

func (a *Assembler) handleJPEG(c chunk.Chunk, cls classify.Class) {
	if cls.IsFirst {
		p, err := visible.NewPartial(c.Data)
		if err != nil {
			a.log.Warning("jpeg start desync", "seq", c.Seq, "error", err.Error())
			a.stats.JPEGDesyncs++
			return
		}
		a.jpegPartial = p
	} else {
		if a.jpegPartial == nil {
			// A continuation with no JPEG in progress is itself a desync
			// (e.g. an Unknown chunk was substituted for a real fragment).
			a.log.Warning("jpeg continuation with no partial in progress", "seq", c.Seq)
			a.stats.JPEGDesyncs++
			return
		}
		a.jpegPartial.Append(c.Data)
	}

	if cls.IsLast {
		raw, err := a.jpegPartial.Finalize()
		a.jpegPartial = nil
		if err != nil {
			a.log.Warning("jpeg finalize desync", "seq", c.Seq, "error", err.Error())
			a.stats.JPEGDesyncs++
			return
		}
		img := visible.NewImage(raw)
		a.visibleFinal = &img
	}
}

func (a *Assembler) handleTelemetry(c chunk.Chunk) {
	rec, err := telemetry.Decode(c.Data)
	if err != nil {
		a.log.Warning("telemetry desync", "seq", c.Seq, "error", err.Error())
		a.stats.TelemetryDesyncs++
		return
	}
	a.telemetryLatest = &rec
}

func (a *Assembler) handleEdge(c chunk.Chunk) {
	mask, err := edgemask.Decode(c.Data)
	if err != nil {
		a.log.Warning("edge mask desync", "seq", c.Seq, "error", err.Error())
		a.stats.EdgeDesyncs++
		return
	}
	a.edgeLatest = &mask
}

func (a *Assembler) handleSync(cls classify.Class) (*CompositeFrame, error) {
	if !a.sawFirstSync {
		// The very first FrameSync after handshake only establishes the
		// initial boundary; it emits nothing (spec.md §4.9).
		a.sawFirstSync = true
		a.reset()
		a.boundaryID = cls.BoundaryID
		a.haveBoundary = cls.HasBoundaryID
		return nil, nil
	}

	cf, emitted := a.finalize()

	a.reset()
	a.boundaryID = cls.BoundaryID
	a.haveBoundary = cls.HasBoundaryID

	if !emitted {
		a.stats.FramesDropped++
		return nil, nil
	}
	return cf, nil
}

// finalize builds a CompositeFrame from whatever accumulated this
// interval. emitted is false if nothing was successfully finalized, in
// which case the caller must not advance the public frame index.
func (a *Assembler) finalize() (*CompositeFrame, bool) {
	cf := &CompositeFrame{
		BoundaryID:    a.boundaryID,
		HasBoundaryID: a.haveBoundary,
	}
	any := false

	if a.thermalPartial != nil {
		raster, complete := a.thermalPartial.Finalize()
		if complete || a.emitIncomplete {
			cf.Thermal = &raster
			any = true
		}
	}

	if a.visibleFinal != nil {
		cf.Visible = a.visibleFinal
		any = true
	}

	if a.telemetryLatest != nil {
		cf.Telemetry = a.telemetryLatest
		any = true
	}

	if a.edgeLatest != nil {
		cf.EdgeMask = a.edgeLatest
		any = true
	}

	if !any {
		return nil, false
	}

	cf.Idx = a.nextIdx
	a.nextIdx++
	a.stats.FramesEmitted++
	return cf, true
}

// reset clears per-frame partial state ahead of a new boundary interval.
// Per spec.md §4.9, telemetry and edge mask are explicitly NOT carried
// across boundaries: absent telemetry in the next interval means None.
func (a *Assembler) reset() {
	a.thermalPartial = nil
	a.jpegPartial = nil
	a.visibleFinal = nil
	a.telemetryLatest = nil
	a.edgeLatest = nil
}

