/*
NAME
  visible.go

DESCRIPTION
  visible.go implements the visible-camera JPEG decoder (C6). Partial is
  the growing fragment buffer shared by both build variants; decode (in
  decode_cv.go / decode_stub.go, gated the way filter/mog.go and
  filter/filters_circleci.go gate gocv-dependent code on the withcv build
  tag) turns a finalized JPEG byte buffer into the BGR Raster that
  Image.Raster returns.

LICENSE
  See the LICENSE file distributed with this repository.
*/

// Package visible reassembles and decodes the visible-light camera's JPEG
// stream.
package visible

import (
	"bytes"
	"errors"
	"fmt"
)

// Raster dimensions (spec.md §3).
const (
	Height = 1080
	Width  = 1440
)

var (
	soi = [2]byte{0xFF, 0xD8}
	eoi = [2]byte{0xFF, 0xD9}
)

// CorruptionError marks a finalized JPEG buffer that failed well-formedness
// checks: no EOI found, or an SOI marker appearing after position 0
// (spec.md §4.6). It is always local; the caller drops the partial.
type CorruptionError struct{ Reason string }

func (e *CorruptionError) Error() string { return "visible: corrupt JPEG: " + e.Reason }

// Partial accumulates JPEG fragments across chunks in arrival order until
// the EOI marker is seen.
type Partial struct {
	buf    bytes.Buffer
	sawSOI bool
}

// NewPartial begins a Partial from the first fragment of a new JPEG,
// which must start with SOI.
func NewPartial(first []byte) (*Partial, error) {
	if len(first) < 2 || first[0] != soi[0] || first[1] != soi[1] {
		return nil, &CorruptionError{Reason: "first fragment missing SOI"}
	}
	p := &Partial{sawSOI: true}
	p.buf.Write(first)
	return p, nil
}

// Append adds a continuation fragment.
func (p *Partial) Append(fragment []byte) {
	p.buf.Write(fragment)
}

// Done reports whether the accumulated buffer already contains an EOI.
func (p *Partial) Done() bool {
	return bytes.Contains(p.buf.Bytes(), eoi[:])
}

// Finalize validates and returns the accumulated JPEG bytes. Per spec.md
// §4.6, a buffer with no EOI, or with SOI appearing again after position 0,
// is treated as corruption.
func (p *Partial) Finalize() ([]byte, error) {
	if !p.sawSOI {
		return nil, &CorruptionError{Reason: "no SOI seen"}
	}
	raw := p.buf.Bytes()
	if !bytes.HasSuffix(raw, eoi[:]) && !bytes.Contains(raw, eoi[:]) {
		return nil, &CorruptionError{Reason: "no EOI marker"}
	}
	if idx := bytes.Index(raw[2:], soi[:]); idx >= 0 {
		return nil, &CorruptionError{Reason: "duplicate SOI after position 0"}
	}
	out := make([]byte, len(raw))
	copy(out, raw)
	return out, nil
}

// Image is the public visible-camera artifact. Compressed always holds the
// validated JPEG bytes; the decoded raster is cached by the first
// successful call to Raster, which can only succeed when built with the
// withcv tag and gocv is available, per spec.md §3's "either the decoded
// raster or a handle that decodes it deterministically once."
type Image struct {
	Compressed []byte
	decoded    *Raster
}

// Raster is the decoded BGR raster (spec.md §3): Height x Width x 3,
// unsigned-8, row-major, channel order B, G, R.
type Raster struct {
	Pixels []byte // len == Height*Width*3
}

// ErrNotDecoded is returned by Image.Raster when the binary wasn't built
// with the withcv tag, so no pixel decode is available.
var ErrNotDecoded = errors.New("visible: built without withcv; only Compressed bytes are available")

// NewImage wraps validated, finalized JPEG bytes.
func NewImage(compressed []byte) Image {
	return Image{Compressed: compressed}
}

// Raster returns the decoded BGR raster, decoding lazily and caching the
// result on first call, as permitted by spec.md §3.
func (im *Image) Raster() (Raster, error) {
	if im.decoded != nil {
		return *im.decoded, nil
	}
	r, err := decode(im.Compressed)
	if errors.Is(err, ErrNotDecoded) {
		return Raster{}, err
	}
	if err != nil {
		return Raster{}, fmt.Errorf("visible: decode failed: %w", err)
	}
	im.decoded = &r
	return r, nil
}
