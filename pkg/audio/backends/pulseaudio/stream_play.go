package pulseaudio

import (
	"fmt"
	"sync"

	"github.com/jfreymuth/pulse"
	"github.com/xaionaro-go/multitrack/pkg/audio/types"
)

type PlayStream struct {
	*pulse.PlaybackStream

	closeOnce sync.Once
}

var _ types.PlayStream = (*PlayStream)(nil)

func newPlayStream(pulseStream *pulse.PlaybackStream) *PlayStream {
	return &PlayStream{
		PlaybackStream: pulseStream,
	}
}

// Drain waits until the reader is exhausted and the buffered audio is
// played.
func (stream *PlayStream) Drain() error {
	stream.PlaybackStream.Drain()
	if err := stream.Error(); err != nil {
		return fmt.Errorf("an error occurred during playback: %w", err)
	}
	if stream.Underflow() {
		return fmt.Errorf("underflow")
	}
	return nil
}

func (stream *PlayStream) Close() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("got a panic: %v", r)
		}
	}()
	stream.closeOnce.Do(func() {
		stream.PlaybackStream.Stop()
		stream.PlaybackStream.Close()
	})
	return
}
