package audio

import (
	"context"
	"io"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
)

// PlayerPCMDummy is the player used when no audio output is available:
// nothing is read from the reader, so whoever produces the audio has to
// pace itself.
type PlayerPCMDummy struct{}

var _ PlayerPCM = PlayerPCMDummy{}

func (PlayerPCMDummy) Close() error {
	return nil
}

func (PlayerPCMDummy) Ping(context.Context) error {
	return nil
}

func (PlayerPCMDummy) PlayPCM(
	ctx context.Context,
	sampleRate SampleRate,
	channels Channel,
	format PCMFormat,
	_ time.Duration,
	_ io.Reader,
) (PlayStream, error) {
	logger.Debugf(ctx, "discarding a playback of %d Hz %d ch %s", sampleRate, channels, format)
	return StreamDummy{}, nil
}

type StreamDummy struct{}

var _ PlayStream = StreamDummy{}

func (StreamDummy) Drain() error {
	return nil
}

func (StreamDummy) Close() error {
	return nil
}
