/*
NAME
  chunk.go

DESCRIPTION
  chunk.go defines Chunk, the fixed-size immutable byte buffer that is the
  unit of transport between a chunk Source and the rest of the pipeline, and
  the Source interface that both the live USB backend and the offline replay
  backend implement.

LICENSE
  See the LICENSE file distributed with this repository.
*/

// Package chunk defines the fixed-size buffer abstraction shared by the live
// USB transport and the offline capture replay transport.
package chunk

import "errors"

// NominalSize is the size in bytes of a single bulk transfer requested from
// the device. The final transfer before a stall may be shorter.
const NominalSize = 32 * 1024

// ErrEndOfStream is returned by Source.Next when the source is exhausted,
// e.g. an offline directory has been replayed its requested number of times.
// It is not an error condition; callers treat it as a terminal, non-error
// signal.
var ErrEndOfStream = errors.New("chunk: end of stream")

// Chunk is a single bulk transfer, tagged with a monotonically increasing
// sequence index. A Chunk is immutable once returned by a Source; it is
// borrowed by the classifier and decoders for the duration of one decode
// step and must not be retained past that without copying.
type Chunk struct {
	Seq  uint64
	Data []byte
}

// Source abstracts a sequence of Chunks, whether read live from a USB bulk
// IN endpoint or replayed from an ordered directory of capture files. A
// Source guarantees that Next returns chunks with strictly increasing,
// gap-free sequence indices until it is exhausted or fails.
type Source interface {
	// Next returns the next Chunk in the stream. It returns ErrEndOfStream
	// when the source is exhausted (offline only) and any other non-nil
	// error is fatal to the stream.
	Next() (Chunk, error)

	// Close releases any resources (device handle, open files) held by the
	// source. Close is idempotent.
	Close() error
}
