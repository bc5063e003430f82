/*
NAME
  offline_test.go

DESCRIPTION
  offline_test.go tests the offline replay chunk.Source, including
  whitespace-tolerant hex decoding and the repeat semantics of spec.md
  §4.1.

LICENSE
  See the LICENSE file distributed with this repository.
*/

package offline

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ausocean/utils/logging"

	"github.com/flirstream/thermalcore/chunk"
)

func testLogger() logging.Logger {
	return logging.New(logging.Debug, &bytes.Buffer{}, true)
}

func writeChunkFile(t *testing.T, dir, name, hexContent string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(hexContent), 0o644); err != nil {
		t.Fatalf("could not write %s: %v", name, err)
	}
}

func TestOfflineSinglePass(t *testing.T) {
	dir := t.TempDir()
	writeChunkFile(t, dir, "chunk_00000000.txt", "deadbeef")
	writeChunkFile(t, dir, "chunk_00000001.txt", "ca fe ba be") // whitespace permitted.

	src, err := New(dir, 0, testLogger())
	if err != nil {
		t.Fatalf("could not create source: %v", err)
	}
	defer src.Close()

	c0, err := src.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(c0.Data, []byte{0xde, 0xad, 0xbe, 0xef}) {
		t.Fatalf("chunk 0 = %x, want deadbeef", c0.Data)
	}
	if c0.Seq != 0 {
		t.Fatalf("Seq = %d, want 0", c0.Seq)
	}

	c1, err := src.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(c1.Data, []byte{0xca, 0xfe, 0xba, 0xbe}) {
		t.Fatalf("chunk 1 = %x, want cafebabe", c1.Data)
	}
	if c1.Seq != 1 {
		t.Fatalf("Seq = %d, want 1", c1.Seq)
	}

	if _, err := src.Next(); !errors.Is(err, chunk.ErrEndOfStream) {
		t.Fatalf("expected ErrEndOfStream, got %v", err)
	}
}

func TestOfflineRepeatContinuesSequenceMonotonically(t *testing.T) {
	dir := t.TempDir()
	writeChunkFile(t, dir, "chunk_00000000.txt", "ab")

	src, err := New(dir, 2, testLogger()) // 2 passes total.
	if err != nil {
		t.Fatalf("could not create source: %v", err)
	}
	defer src.Close()

	var seqs []uint64
	for i := 0; i < 2; i++ {
		c, err := src.Next()
		if err != nil {
			t.Fatalf("unexpected error on read %d: %v", i, err)
		}
		seqs = append(seqs, c.Seq)
	}
	if seqs[0] != 0 || seqs[1] != 1 {
		t.Fatalf("sequence indices = %v, want [0 1] (monotonic across repeats)", seqs)
	}

	if _, err := src.Next(); !errors.Is(err, chunk.ErrEndOfStream) {
		t.Fatalf("expected ErrEndOfStream after exhausting repeats, got %v", err)
	}
}

func TestOfflineNoFilesIsError(t *testing.T) {
	dir := t.TempDir()
	if _, err := New(dir, 0, testLogger()); err == nil {
		t.Fatal("expected error for directory with no capture files")
	}
}
