package orchestrator

import (
	"time"
)

type Config struct {
	// SyncTickInterval is the cadence of copying the playback position of
	// the tracks into the transport state while playing.
	SyncTickInterval time.Duration

	// DriftThreshold is how far a track may drift from the transport
	// position before it is snapped back.
	DriftThreshold time.Duration

	// LoadTimeout limits the loading of each track.
	LoadTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		SyncTickInterval: time.Second / 60,
		DriftThreshold:   150 * time.Millisecond,
		LoadTimeout:      30 * time.Second,
	}
}
