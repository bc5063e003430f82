/*
NAME
  recorder.go

DESCRIPTION
  recorder.go provides Recorder, an optional write-through tee that
  persists every chunk seen by the live chunk source to an ordered set of
  on-disk files, so that a live session can later be replayed byte-
  identically through the offline backend (device/offline).

LICENSE
  See the LICENSE file distributed with this repository.
*/

// Package recorder provides write-through persistence of the chunk stream
// to disk.
package recorder

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ausocean/utils/logging"

	"github.com/flirstream/thermalcore/chunk"
)

// filenameFormat matches the layout read back by device/offline:
// chunk_<seq:08d>.txt, hex-encoded bytes.
const filenameFormat = "chunk_%08d.txt"

// Recorder persists chunks to dir as they are observed. It is not safe for
// concurrent use by multiple goroutines.
type Recorder struct {
	dir     string
	log     logging.Logger
	written []string // paths written this session; never removed by Recorder.
}

// New returns a Recorder that writes into dir, creating it if necessary.
func New(dir string, log logging.Logger) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("recorder: could not create destination dir: %w", err)
	}
	return &Recorder{dir: dir, log: log}, nil
}

// Record writes c to disk synchronously. A write error is fatal to the
// stream (RecordingError in spec.md §7); on error, Record removes any
// partial file it created before returning.
func (r *Recorder) Record(c chunk.Chunk) error {
	path := filepath.Join(r.dir, fmt.Sprintf(filenameFormat, c.Seq))
	enc := make([]byte, hex.EncodedLen(len(c.Data)))
	hex.Encode(enc, c.Data)

	if err := os.WriteFile(path, enc, 0o644); err != nil {
		r.cleanupPartial(path)
		return fmt.Errorf("recorder: write failed for seq %d: %w", c.Seq, err)
	}
	r.written = append(r.written, path)
	r.log.Debug("recorded chunk", "seq", c.Seq, "path", path)
	return nil
}

func (r *Recorder) cleanupPartial(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		r.log.Warning("could not remove partial recording", "path", path, "error", err.Error())
	}
}

// Close is a no-op; Recorder holds no open file handles between writes.
// It exists so Recorder satisfies the same lifecycle shape as the rest of
// the pipeline's resources.
func (r *Recorder) Close() error { return nil }
