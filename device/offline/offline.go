/*
NAME
  offline.go

DESCRIPTION
  offline.go implements chunk.Source by replaying an ordered directory of
  capture files, each holding one hex-encoded chunk, exactly as written by
  recorder.Recorder. Modeled on device/file.AVFile's Start/Read/Stop shape,
  adapted to the pull-based chunk.Source contract.

LICENSE
  See the LICENSE file distributed with this repository.
*/

// Package offline provides a chunk.Source that replays a directory of
// captured chunk files on disk.
package offline

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"unicode"

	"github.com/ausocean/utils/logging"

	"github.com/flirstream/thermalcore/chunk"
)

// Source replays the chunk files found in a directory, in lexicographic
// filename order, optionally looping.
type Source struct {
	log   logging.Logger
	files []string // absolute paths, sorted.

	// remaining is the count of whole passes left to run, including the one
	// in progress. A negative value means infinite (spec.md §4.1).
	remaining int

	mu   sync.Mutex
	pass int // which pass we're on, 0-indexed.
	idx  int // index into files for the current pass.
	seq  uint64
	done bool
}

// New returns a Source that replays the chunk_*.txt files in dir. repeat
// follows spec.md §4.1 exactly: 0 means one pass total, N>0 means N passes
// total, negative means infinite.
func New(dir string, repeat int, log logging.Logger) (*Source, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("offline: could not read directory: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ok, _ := filepath.Match("chunk_*.txt", e.Name()); !ok {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	if len(files) == 0 {
		return nil, fmt.Errorf("offline: no capture files found in %s", dir)
	}
	total := repeat
	if total == 0 {
		total = 1
	}
	return &Source{log: log, files: files, remaining: total}, nil
}

// Next returns the next chunk in replay order, or chunk.ErrEndOfStream once
// all requested passes are exhausted.
func (s *Source) Next() (chunk.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done {
		return chunk.Chunk{}, chunk.ErrEndOfStream
	}

	if s.idx >= len(s.files) {
		if s.remaining > 0 {
			s.remaining--
			if s.remaining == 0 {
				s.done = true
				return chunk.Chunk{}, chunk.ErrEndOfStream
			}
		}
		s.pass++
		s.idx = 0
		s.log.Debug("offline source looping", "pass", s.pass)
	}

	path := s.files[s.idx]
	s.idx++

	data, err := readHexFile(path)
	if err != nil {
		return chunk.Chunk{}, fmt.Errorf("offline: could not decode %s: %w", path, err)
	}
	c := chunk.Chunk{Seq: s.seq, Data: data}
	s.seq++
	return c, nil
}

// Close is a no-op; Source holds no open file handles between reads.
func (s *Source) Close() error { return nil }

// readHexFile reads path and hex-decodes its contents, permitting
// whitespace between byte pairs as spec.md §6 requires.
func readHexFile(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	stripped := bytes.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)
	data := make([]byte, hex.DecodedLen(len(stripped)))
	n, err := hex.Decode(data, stripped)
	if err != nil {
		return nil, err
	}
	if n > chunk.NominalSize {
		return nil, fmt.Errorf("chunk exceeds nominal size: %d bytes", n)
	}
	return data[:n], nil
}
