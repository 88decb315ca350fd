// Package media provides the media elements of the tracks: decoded audio
// with a playback position, which the audio graph pulls from.
package media

import (
	"context"
	"errors"
	"time"

	"github.com/xaionaro-go/multitrack/pkg/audiograph"
)

var (
	ErrNotReady = errors.New("the media is not loaded yet")
	ErrClosed   = errors.New("the media element is closed")
)

// Element is a playable media handle.
type Element interface {
	audiograph.MediaStream

	// Play starts the playback from the current position; a finished
	// element starts over.
	Play(ctx context.Context) error
	Pause()
	Paused() bool

	CurrentTime() time.Duration
	SetCurrentTime(t time.Duration)

	// Duration is zero until the metadata is loaded.
	Duration() time.Duration

	// WaitMetadata blocks until the duration is known or the loading
	// failed.
	WaitMetadata(ctx context.Context) error

	Close() error
}

// Factory creates an Element for an URL; the loading continues in
// background, see Element.WaitMetadata.
type Factory interface {
	NewElement(ctx context.Context, url string) (Element, error)
}
