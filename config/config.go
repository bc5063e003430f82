/*
NAME
  config.go

DESCRIPTION
  config.go contains the configuration settings shared across the
  thermalcore pipeline, modeled on revid's Config: a single struct carrying
  both transport options and the Logger every component is handed.

LICENSE
  See the LICENSE file distributed with this repository.
*/

// Package config contains the configuration settings for the thermalcore
// streaming pipeline.
package config

import (
	"errors"
	"time"

	"github.com/ausocean/utils/logging"
)

// Backend selects which chunk.Source implementation a Stream uses.
type Backend uint8

const (
	// BackendLive reads chunks from the live USB device.
	BackendLive Backend = iota
	// BackendOffline replays chunks from a directory of capture files.
	BackendOffline
)

// Defaults for fields that may be left zero by a caller.
const (
	DefaultReadTimeout  = time.Second
	DefaultHandoffDepth = 2
)

// Config carries the options relevant to a Stream, shared by both the live
// and offline backends. Fields that only apply to one backend are ignored
// by the other, the way revid.Config's Input-specific fields are ignored
// by outputs that don't need them.
type Config struct {
	// Backend selects the chunk source implementation.
	Backend Backend

	// Logger must be set; every component in the pipeline logs through it.
	Logger logging.Logger

	// LogLevel holds a verbosity value for Logger. No component reads it;
	// Logger.SetLevel is not called with it.
	LogLevel int8

	// ReadTimeout bounds a single live bulk-IN read. Zero defaults to
	// DefaultReadTimeout.
	ReadTimeout time.Duration

	// RecordDir, if non-empty, enables write-through recording of every
	// chunk seen on the live backend (C2).
	RecordDir string

	// OfflineDir is the directory of chunk_<seq:08d>.txt capture files used
	// by the offline backend.
	OfflineDir string

	// Repeat controls how many times the offline backend replays its
	// directory: 0 means one pass, N>0 means N passes, negative means
	// infinite.
	Repeat int

	// Async, when true, runs the pipeline on a dedicated producer goroutine
	// and hands finalized composite frames over a bounded channel instead of
	// running the pipeline on the calling goroutine.
	Async bool

	// HandoffDepth sets the capacity of the async handoff channel. Zero
	// defaults to DefaultHandoffDepth. Ignored unless Async is true.
	HandoffDepth int

	// EmitIncompleteThermal opts into retaining a thermal raster whose row
	// bitset was incomplete at frame-boundary time instead of the default
	// drop policy (spec.md §3, "default policy is to drop incomplete
	// thermals").
	EmitIncompleteThermal bool
}

// Validate checks for invalid combinations and fills in defaults, the way
// revid.Config.Validate does.
func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("config: Logger must be set")
	}
	switch c.Backend {
	case BackendLive:
		if c.ReadTimeout <= 0 {
			c.LogInvalidField("ReadTimeout", DefaultReadTimeout)
			c.ReadTimeout = DefaultReadTimeout
		}
	case BackendOffline:
		if c.OfflineDir == "" {
			return errors.New("config: OfflineDir must be set for offline backend")
		}
	default:
		return errors.New("config: unknown backend")
	}
	if c.Async && c.HandoffDepth <= 0 {
		c.LogInvalidField("HandoffDepth", DefaultHandoffDepth)
		c.HandoffDepth = DefaultHandoffDepth
	}
	return nil
}

// LogInvalidField logs that a field was bad or unset and what default was
// substituted, mirroring revid.Config.LogInvalidField.
func (c *Config) LogInvalidField(name string, def interface{}) {
	c.Logger.Info(name+" bad or unset, defaulting", name, def)
}
