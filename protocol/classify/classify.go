/*
NAME
  classify.go

DESCRIPTION
  classify.go implements the slice classifier (C4): given one chunk, it
  applies the fixed ordered rule set from spec.md §4.4 and returns the
  first matching SliceClass. Rule 3 (continuation JPEG fragment) is the
  only stateful rule; it consults a JPEGInProgress callback supplied by the
  frame assembler (container/frame) rather than any package-level state,
  per spec.md §9's note on avoiding hidden global coupling.

LICENSE
  See the LICENSE file distributed with this repository.
*/

// Package classify labels each chunk with the semantic class the rest of
// the pipeline dispatches on.
package classify

import (
	"bytes"
	"encoding/binary"
	"unicode/utf8"

	"github.com/flirstream/thermalcore/chunk"
)

// Kind is the tag of a classified slice.
type Kind uint8

const (
	Unknown Kind = iota
	FrameSync
	ThermalPacket
	VisibleJpeg
	TelemetryJson
	EdgeRle
	AGCLegacy
)

func (k Kind) String() string {
	switch k {
	case FrameSync:
		return "FrameSync"
	case ThermalPacket:
		return "ThermalPacket"
	case VisibleJpeg:
		return "VisibleJpeg"
	case TelemetryJson:
		return "TelemetryJson"
	case EdgeRle:
		return "EdgeRle"
	case AGCLegacy:
		return "AgcLegacy"
	default:
		return "Unknown"
	}
}

// Magic prefixes. Fixed, distinct 32-bit / 16-bit constants distinguishing
// frame boundaries and edge masks from the JPEG and JSON prefixes they're
// interleaved with on the wire.
var (
	frameSyncMagic = [4]byte{0xA5, 0x5A, 0xF0, 0x0D}
	jpegSOI        = [2]byte{0xFF, 0xD8}
	jpegEOI        = [2]byte{0xFF, 0xD9}
	edgeRLEMagic   = [2]byte{0x45, 0x52} // "ER"
)

// VoSPI packet shape constants (spec.md §4.5).
const (
	vospiPacketLen   = 164
	vospiRowCount    = 60
	vospiMinPackets  = 190
	vospiDiscardMark = 0xF
	vospiTelemetry   = 0xE
)

// Class is the classifier's output: a tagged variant over the fields
// relevant to whichever Kind was assigned. Only the fields documented for
// a given Kind are meaningful.
type Class struct {
	Kind Kind

	// FrameSync.
	BoundaryID    uint32
	HasBoundaryID bool

	// ThermalPacket.
	RowFirst, RowLast int

	// VisibleJpeg.
	IsFirst, IsLast bool

	// Unknown.
	Reason string
}

// JPEGInProgress reports whether the assembler currently has a partial
// JPEG open for the current frame. It lets rule 3 remain stateful without
// the classifier itself holding mutable package state.
type JPEGInProgress interface {
	JPEGInProgress() bool
}

// Classify assigns a Class to c by applying spec.md §4.4's rules in order
// and returning the first match.
func Classify(c chunk.Chunk, jpegState JPEGInProgress) Class {
	data := c.Data

	if len(data) == 0 {
		return Class{Kind: Unknown, Reason: "empty chunk (heartbeat)"}
	}

	// Rule 1: frame-sync magic. The boundary counter in the next 4 bytes
	// is optional.
	if len(data) >= 4 && bytes.Equal(data[:4], frameSyncMagic[:]) {
		if len(data) < 8 {
			return Class{Kind: FrameSync}
		}
		id := binary.BigEndian.Uint32(data[4:8])
		return Class{Kind: FrameSync, BoundaryID: id, HasBoundaryID: true}
	}

	// Rule 2: JPEG SOI.
	if len(data) >= 2 && data[0] == jpegSOI[0] && data[1] == jpegSOI[1] {
		return Class{Kind: VisibleJpeg, IsFirst: true, IsLast: containsEOI(data)}
	}

	// Rule 3: continuation of an in-progress JPEG, provided this chunk
	// doesn't match any other recognized magic.
	if jpegState != nil && jpegState.JPEGInProgress() && !matchesOtherMagic(data) {
		return Class{Kind: VisibleJpeg, IsFirst: false, IsLast: containsEOI(data)}
	}

	// Rule 4: telemetry JSON.
	if data[0] == '{' && looksLikeJSONObject(data) {
		return Class{Kind: TelemetryJson}
	}

	// Rule 5: edge-RLE magic.
	if len(data) >= 2 && data[0] == edgeRLEMagic[0] && data[1] == edgeRLEMagic[1] {
		return Class{Kind: EdgeRle}
	}

	// Rule 6: VoSPI packet shape.
	if first, last, ok := matchesVoSPIShape(data); ok {
		return Class{Kind: ThermalPacket, RowFirst: first, RowLast: last}
	}

	// Rule 7: legacy 8-bit AGC thermal pattern (unreachable on current
	// hardware; classified and dropped by the assembler per spec.md §9).
	if matchesAGCLegacy(data) {
		return Class{Kind: AGCLegacy}
	}

	return Class{Kind: Unknown, Reason: "no discriminator matched"}
}

func containsEOI(data []byte) bool {
	return bytes.Contains(data, jpegEOI[:])
}

func matchesOtherMagic(data []byte) bool {
	if len(data) >= 4 && bytes.Equal(data[:4], frameSyncMagic[:]) {
		return true
	}
	if len(data) >= 2 && data[0] == jpegSOI[0] && data[1] == jpegSOI[1] {
		return true
	}
	if len(data) >= 2 && data[0] == edgeRLEMagic[0] && data[1] == edgeRLEMagic[1] {
		return true
	}
	if data[0] == '{' && looksLikeJSONObject(data) {
		return true
	}
	return false
}

// looksLikeJSONObject checks that the whole of data is valid UTF-8 and
// contains a closing brace after position 0, per spec.md §4.4 rule 4. It
// doesn't fully validate JSON grammar; codec/telemetry does that.
func looksLikeJSONObject(data []byte) bool {
	if !utf8.Valid(data) {
		return false
	}
	close := bytes.LastIndexByte(data, '}')
	return close > 0
}

// matchesVoSPIShape reports whether data is shaped like a run of VoSPI
// packets: 164-byte packets whose header's high 4 bits are either the data
// discriminator with a row number in [0, vospiRowCount) in the low 12 bits,
// or the discard or telemetry discriminator, with at least vospiMinPackets
// such packets fitting in the chunk and at least one data row among them.
func matchesVoSPIShape(data []byte) (first, last int, ok bool) {
	if len(data) < vospiPacketLen {
		return 0, 0, false
	}
	n := len(data) / vospiPacketLen
	if n < vospiMinPackets && len(data) < chunk.NominalSize {
		return 0, 0, false
	}

	first, last = -1, -1
	validRows := 0
	for i := 0; i < n; i++ {
		hdr := data[i*vospiPacketLen : i*vospiPacketLen+2]
		id := binary.BigEndian.Uint16(hdr)
		discr := uint8(id >> 12)
		row := int(id & 0x0FFF)

		switch {
		case discr == 0x0 && row < vospiRowCount:
			if first == -1 {
				first = row
			}
			last = row
			validRows++
		case discr == vospiDiscardMark || discr == vospiTelemetry:
			// Recognized, non-raster packet kinds; shape is still consistent.
		default:
			return 0, 0, false
		}
	}
	if validRows == 0 {
		return 0, 0, false
	}
	return first, last, true
}

// agcHeader is the fixed 2-byte prefix of the legacy 8-bit AGC pattern.
var agcHeader = [2]byte{0x41, 0x47} // "AG"

func matchesAGCLegacy(data []byte) bool {
	return len(data) >= 2 && data[0] == agcHeader[0] && data[1] == agcHeader[1]
}
