/*
NAME
  telemetry.go

DESCRIPTION
  telemetry.go implements the telemetry decoder (C7): it parses the
  embedded JSON records described in spec.md §4.7 into a Record with
  explicit optional fields. A malformed payload is a local DecodeDesync
  that affects only the chunk it came from (spec.md §7).

LICENSE
  See the LICENSE file distributed with this repository.
*/

// Package telemetry decodes the camera's embedded JSON telemetry records.
package telemetry

import (
	"encoding/json"
	"fmt"
)

// ShutterState and FFCState are explicit enumerations over the string
// values spec.md §4.7 recognizes, plus "unknown" when the field is absent,
// per spec.md §3. Decode rejects any other string value.
type ShutterState string

const (
	ShutterUnknown ShutterState = "unknown"
	ShutterOpen    ShutterState = "open"
	ShutterClosed  ShutterState = "closed"
)

type FFCState string

const (
	FFCUnknown   FFCState = "unknown"
	FFCIdle      FFCState = "idle"
	FFCRunning   FFCState = "running"
	FFCComplete  FFCState = "complete"
)

// Record holds whichever telemetry fields were reported in one chunk; a
// nil pointer field means "not reported in this chunk" (spec.md §3).
type Record struct {
	BatteryVoltage    *float64
	BatteryPercent    *float64
	ShutterTempKelvin *float64
	AuxTempKelvin     *float64
	Shutter           ShutterState
	FFC               FFCState
}

// wireRecord mirrors the JSON keys spec.md §4.7 documents; unknown keys
// are ignored automatically by encoding/json.
type wireRecord struct {
	BattV        *float64 `json:"batt_v"`
	BattPct      *float64 `json:"batt_pct"`
	ShutterTempK *float64 `json:"shutter_tempK"`
	AuxTempK     *float64 `json:"aux_tempK"`
	Shutter      *string  `json:"shutter"`
	FFC          *string  `json:"ffc"`
}

// Decode parses one JSON telemetry chunk. A malformed payload, an
// out-of-range battery percent, or an unrecognized enum value for a field
// that was present returns an error; the caller (container/frame) treats
// this as a local desync for that chunk only.
func Decode(data []byte) (Record, error) {
	var w wireRecord
	if err := json.Unmarshal(data, &w); err != nil {
		return Record{}, fmt.Errorf("telemetry: invalid JSON: %w", err)
	}

	if w.BattPct != nil && (*w.BattPct < 0 || *w.BattPct > 100) {
		return Record{}, fmt.Errorf("telemetry: batt_pct out of range: %v", *w.BattPct)
	}

	rec := Record{
		BatteryVoltage:    w.BattV,
		BatteryPercent:    w.BattPct,
		ShutterTempKelvin: w.ShutterTempK,
		AuxTempKelvin:     w.AuxTempK,
		Shutter:           ShutterUnknown,
		FFC:               FFCUnknown,
	}

	if w.Shutter != nil {
		switch ShutterState(*w.Shutter) {
		case ShutterOpen, ShutterClosed:
			rec.Shutter = ShutterState(*w.Shutter)
		default:
			return Record{}, fmt.Errorf("telemetry: unrecognized shutter state %q", *w.Shutter)
		}
	}

	if w.FFC != nil {
		switch FFCState(*w.FFC) {
		case FFCIdle, FFCRunning, FFCComplete:
			rec.FFC = FFCState(*w.FFC)
		default:
			return Record{}, fmt.Errorf("telemetry: unrecognized ffc state %q", *w.FFC)
		}
	}

	return rec, nil
}
