package portaudio

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/gordonklaus/portaudio"
	"github.com/xaionaro-go/multitrack/pkg/audio/types"
)

type PlayerPCM struct{}

var _ types.PlayerPCM = (*PlayerPCM)(nil)

func NewPlayerPCM() (*PlayerPCM, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("unable to initialize PortAudio: %w", err)
	}
	return &PlayerPCM{}, nil
}

func (*PlayerPCM) Close() error {
	return portaudio.Terminate()
}

func (*PlayerPCM) Ping(
	ctx context.Context,
) error {
	info, err := portaudio.DefaultOutputDevice()
	if err != nil {
		return fmt.Errorf("no default output device: %w", err)
	}
	logger.Debugf(ctx, "output device: '%s' (%d channels, %v Hz, latency %v)", info.Name, info.MaxOutputChannels, info.DefaultSampleRate, info.DefaultHighOutputLatency)
	if info.MaxOutputChannels < 1 {
		return fmt.Errorf("the device '%s' has no output channels", info.Name)
	}
	return nil
}

// PlayPCM supports the interleaved float32 and int16 formats.
func (*PlayerPCM) PlayPCM(
	ctx context.Context,
	sampleRate types.SampleRate,
	channels types.Channel,
	format types.PCMFormat,
	bufferSize time.Duration,
	reader io.Reader,
) (_ types.PlayStream, _err error) {
	logger.Tracef(ctx, "PlayPCM(%d, %d, %s, %v)", sampleRate, channels, format, bufferSize)
	defer func() { logger.Tracef(ctx, "/PlayPCM(%d, %d, %s, %v): %v", sampleRate, channels, format, bufferSize, _err) }()

	var (
		s   *PlayPCMStream
		err error
	)
	switch format {
	case types.PCMFormatFloat32LE:
		s, err = newPlayPCMStream[float32](ctx, sampleRate, channels, bufferSize)
	case types.PCMFormatS16LE:
		s, err = newPlayPCMStream[int16](ctx, sampleRate, channels, bufferSize)
	default:
		return nil, fmt.Errorf("PCM format %s is not supported", format)
	}
	if err != nil {
		return nil, err
	}

	if err := s.start(ctx, reader); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}
