/*
NAME
  frame_test.go

DESCRIPTION
  frame_test.go exercises the frame assembler against the seed scenarios
  from spec.md §8 (S1-S4): complete thermal frames, incomplete thermal
  frames, mixed-artifact frames, and desync isolation.

LICENSE
  See the LICENSE file distributed with this repository.
*/

package frame

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ausocean/utils/logging"

	"github.com/flirstream/thermalcore/chunk"
	"github.com/flirstream/thermalcore/codec/thermal"
	"github.com/flirstream/thermalcore/protocol/classify"
)

func testLogger() logging.Logger {
	return logging.New(logging.Debug, &bytes.Buffer{}, true)
}

func thermalChunk(rows ...int) chunk.Chunk {
	var data []byte
	for _, row := range rows {
		pkt := make([]byte, 164)
		binary.BigEndian.PutUint16(pkt[:2], uint16(row))
		for w := 0; w < thermal.Cols; w++ {
			binary.BigEndian.PutUint16(pkt[4+w*2:4+w*2+2], uint16(row))
		}
		data = append(data, pkt...)
	}
	return chunk.Chunk{Data: data}
}

func syncClass() classify.Class { return classify.Class{Kind: classify.FrameSync} }

// S1: sync, 60 thermal rows in order, sync -> one frame, thermal present.
func TestAssemblerS1CompleteThermal(t *testing.T) {
	a := New(testLogger(), false)

	if cf, err := a.Feed(chunk.Chunk{}, syncClass()); err != nil || cf != nil {
		t.Fatalf("opening sync should emit nothing, got cf=%v err=%v", cf, err)
	}

	rows := make([]int, thermal.Rows)
	for i := range rows {
		rows[i] = i
	}
	if _, err := a.Feed(thermalChunk(rows...), classify.Class{Kind: classify.ThermalPacket}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cf, err := a.Feed(chunk.Chunk{}, syncClass())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cf == nil {
		t.Fatal("expected a composite frame to be emitted")
	}
	if cf.Idx != 0 {
		t.Fatalf("Idx = %d, want 0", cf.Idx)
	}
	if cf.Thermal == nil {
		t.Fatal("expected thermal present")
	}
	if cf.Visible != nil || cf.Telemetry != nil || cf.EdgeMask != nil {
		t.Fatal("expected only thermal to be present")
	}

	var want thermal.Raster
	for row := 0; row < thermal.Rows; row++ {
		for col := 0; col < thermal.Cols; col++ {
			want.Pixels[row][col] = uint16(row)
		}
	}
	if diff := cmp.Diff(want, *cf.Thermal); diff != "" {
		t.Fatalf("Thermal mismatch (-want +got):\n%s", diff)
	}
}

// S2: sync, 59 thermal rows (row 37 missing), sync -> no frame emitted.
func TestAssemblerS2IncompleteThermalDropped(t *testing.T) {
	a := New(testLogger(), false)
	a.Feed(chunk.Chunk{}, syncClass())

	var rows []int
	for i := 0; i < thermal.Rows; i++ {
		if i == 37 {
			continue
		}
		rows = append(rows, i)
	}
	a.Feed(thermalChunk(rows...), classify.Class{Kind: classify.ThermalPacket})

	cf, err := a.Feed(chunk.Chunk{}, syncClass())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cf != nil {
		t.Fatalf("expected no frame emitted, got %+v", cf)
	}
	if a.Stats().FramesEmitted != 0 {
		t.Fatalf("FramesEmitted = %d, want 0", a.Stats().FramesEmitted)
	}
}

// S3: sync, full thermal, JPEG across 3 chunks, telemetry, sync -> one
// frame with all four present and correct telemetry value.
func TestAssemblerS3MixedArtifacts(t *testing.T) {
	a := New(testLogger(), false)
	a.Feed(chunk.Chunk{}, syncClass())

	rows := make([]int, thermal.Rows)
	for i := range rows {
		rows[i] = i
	}
	a.Feed(thermalChunk(rows...), classify.Class{Kind: classify.ThermalPacket})

	a.Feed(chunk.Chunk{Data: []byte{0xFF, 0xD8, 0x01}}, classify.Class{Kind: classify.VisibleJpeg, IsFirst: true})
	a.Feed(chunk.Chunk{Data: []byte{0x02, 0x03}}, classify.Class{Kind: classify.VisibleJpeg})
	a.Feed(chunk.Chunk{Data: []byte{0xFF, 0xD9}}, classify.Class{Kind: classify.VisibleJpeg, IsLast: true})

	a.Feed(chunk.Chunk{Data: []byte(`{"batt_pct":73}`)}, classify.Class{Kind: classify.TelemetryJson})

	cf, err := a.Feed(chunk.Chunk{}, syncClass())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cf == nil {
		t.Fatal("expected a composite frame")
	}
	if cf.Thermal == nil || cf.Visible == nil || cf.Telemetry == nil {
		t.Fatalf("expected thermal, visible and telemetry all present: %+v", cf)
	}
	if cf.EdgeMask != nil {
		t.Fatal("expected no edge mask")
	}
	if *cf.Telemetry.BatteryPercent != 73.0 {
		t.Fatalf("BatteryPercent = %v, want 73.0", *cf.Telemetry.BatteryPercent)
	}
	if cf.Telemetry.BatteryVoltage != nil {
		t.Fatal("expected BatteryVoltage unset")
	}
}

// S4: same as S3 but the middle JPEG chunk is an Unknown chunk instead of
// JPEG bytes -> visible dropped, thermal and telemetry survive, one
// Unknown chunk counted.
func TestAssemblerS4JPEGDesyncIsolated(t *testing.T) {
	a := New(testLogger(), false)
	a.Feed(chunk.Chunk{}, syncClass())

	rows := make([]int, thermal.Rows)
	for i := range rows {
		rows[i] = i
	}
	a.Feed(thermalChunk(rows...), classify.Class{Kind: classify.ThermalPacket})

	a.Feed(chunk.Chunk{Data: []byte{0xFF, 0xD8, 0x01}}, classify.Class{Kind: classify.VisibleJpeg, IsFirst: true})
	// Substitute an Unknown chunk for the middle JPEG fragment: the
	// assembler never sees a continuation, so jpegPartial stays open and
	// is simply dropped at frame-boundary time without finalizing.
	a.Feed(chunk.Chunk{Data: []byte{0x00}}, classify.Class{Kind: classify.Unknown, Reason: "corrupt"})

	a.Feed(chunk.Chunk{Data: []byte(`{"batt_pct":73}`)}, classify.Class{Kind: classify.TelemetryJson})

	cf, err := a.Feed(chunk.Chunk{}, syncClass())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cf == nil {
		t.Fatal("expected a composite frame")
	}
	if cf.Visible != nil {
		t.Fatal("expected visible to be absent")
	}
	if cf.Thermal == nil || cf.Telemetry == nil {
		t.Fatal("expected thermal and telemetry to survive")
	}
	if a.Stats().UnknownChunks != 1 {
		t.Fatalf("UnknownChunks = %d, want 1", a.Stats().UnknownChunks)
	}
}

// Duplicate thermal row before a sync must drop only the thermal partial,
// not the whole frame.
func TestAssemblerThermalDesyncIsolated(t *testing.T) {
	a := New(testLogger(), false)
	a.Feed(chunk.Chunk{}, syncClass())

	a.Feed(thermalChunk(0), classify.Class{Kind: classify.ThermalPacket})
	a.Feed(thermalChunk(0), classify.Class{Kind: classify.ThermalPacket}) // duplicate row 0.

	a.Feed(chunk.Chunk{Data: []byte(`{"batt_pct":50}`)}, classify.Class{Kind: classify.TelemetryJson})

	cf, err := a.Feed(chunk.Chunk{}, syncClass())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cf == nil {
		t.Fatal("expected a composite frame from the surviving telemetry")
	}
	if cf.Thermal != nil {
		t.Fatal("expected thermal to have been dropped by the desync")
	}
	if a.Stats().ThermalDesyncs != 1 {
		t.Fatalf("ThermalDesyncs = %d, want 1", a.Stats().ThermalDesyncs)
	}
}

func TestAssemblerMonotonicFrameIndices(t *testing.T) {
	a := New(testLogger(), false)
	a.Feed(chunk.Chunk{}, syncClass())

	for i := 0; i < 3; i++ {
		a.Feed(chunk.Chunk{Data: []byte(`{"batt_pct":1}`)}, classify.Class{Kind: classify.TelemetryJson})
		cf, err := a.Feed(chunk.Chunk{}, syncClass())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cf == nil {
			t.Fatalf("expected frame %d to be emitted", i)
		}
		if cf.Idx != uint64(i) {
			t.Fatalf("Idx = %d, want %d", cf.Idx, i)
		}
	}
}

func TestAssemblerNoTelemetryCarryAcrossBoundary(t *testing.T) {
	a := New(testLogger(), false)
	a.Feed(chunk.Chunk{}, syncClass())

	a.Feed(chunk.Chunk{Data: []byte(`{"batt_pct":1}`)}, classify.Class{Kind: classify.TelemetryJson})
	a.Feed(chunk.Chunk{}, syncClass()) // frame 0: telemetry present.

	// Frame 1: nothing arrives, so nothing should be emitted and telemetry
	// must not have carried over.
	cf, err := a.Feed(chunk.Chunk{}, syncClass())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cf != nil {
		t.Fatalf("expected no frame emitted for an empty interval, got %+v", cf)
	}
}
