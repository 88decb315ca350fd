package reconciler

import (
	"time"
)

type Config struct {
	// VideoPollInterval is the cadence of reading the position of the video.
	VideoPollInterval time.Duration

	// SeekJumpThreshold is the jump of the video position between two
	// polls which is treated as a seek made on the video.
	SeekJumpThreshold time.Duration

	// DriftCheckInterval is the cadence of comparing the video position
	// to the multitrack position.
	DriftCheckInterval time.Duration

	// DriftThreshold is how far the video may drift from the multitrack
	// before it is seeked.
	DriftThreshold time.Duration

	CrossfadeDuration time.Duration
	CrossfadeSteps    int
}

func DefaultConfig() Config {
	return Config{
		VideoPollInterval:  250 * time.Millisecond,
		SeekJumpThreshold:  2 * time.Second,
		DriftCheckInterval: 5 * time.Second,
		DriftThreshold:     time.Second,
		CrossfadeDuration:  500 * time.Millisecond,
		CrossfadeSteps:     10,
	}
}
