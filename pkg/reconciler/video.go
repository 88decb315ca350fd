package reconciler

import (
	"context"
	"time"
)

// MaxVideoVolume is the volume of VideoPlayer at full scale.
const MaxVideoVolume = 100

// VideoPlayer is the control surface of the external video player.
type VideoPlayer interface {
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	SeekTo(ctx context.Context, ts time.Duration) error
	CurrentTime(ctx context.Context) (time.Duration, error)

	// Volume is in [0, MaxVideoVolume].
	Volume(ctx context.Context) (float64, error)
	SetVolume(ctx context.Context, volume float64) error
	Mute(ctx context.Context) error
	UnMute(ctx context.Context) error
}

// Multitrack is the playback control of the multitrack audio.
type Multitrack interface {
	Play(ctx context.Context) error
	Pause(ctx context.Context)
	Stop(ctx context.Context)
	Seek(ctx context.Context, ts time.Duration) time.Duration
	CurrentTime() time.Duration
	Playing() bool
}
