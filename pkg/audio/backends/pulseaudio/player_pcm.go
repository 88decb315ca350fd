package pulseaudio

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/jfreymuth/pulse"
	"github.com/jfreymuth/pulse/proto"
	"github.com/xaionaro-go/multitrack/pkg/audio/types"
)

const clientName = "karaoke-mixer"

// PlayerPCM plays through the default sink of a PulseAudio (or PipeWire)
// server. Every stream shares the client of the player.
type PlayerPCM struct {
	PulseClient *pulse.Client

	closeOnce sync.Once
}

var _ types.PlayerPCM = (*PlayerPCM)(nil)

func NewPlayerPCM() (*PlayerPCM, error) {
	c, err := pulse.NewClient(pulse.ClientApplicationName(clientName))
	if err != nil {
		return nil, fmt.Errorf("unable to open a client to Pulse: %w", err)
	}
	return &PlayerPCM{
		PulseClient: c,
	}, nil
}

func (p *PlayerPCM) Close() error {
	p.closeOnce.Do(p.PulseClient.Close)
	return nil
}

func (p *PlayerPCM) Ping(ctx context.Context) error {
	sink, err := p.PulseClient.DefaultSink()
	if err != nil {
		return fmt.Errorf("unable to get the default sink: %w", err)
	}
	logger.Debugf(ctx, "default sink: '%s' (%d channels, %d Hz)", sink.Name(), sink.Channels(), sink.SampleRate())
	return nil
}

func (p *PlayerPCM) PlayPCM(
	ctx context.Context,
	sampleRate types.SampleRate,
	channels types.Channel,
	format types.PCMFormat,
	bufferSize time.Duration,
	reader io.Reader,
) (_ types.PlayStream, _err error) {
	logger.Tracef(ctx, "PlayPCM(%d, %d, %s, %v)", sampleRate, channels, format, bufferSize)
	defer func() { logger.Tracef(ctx, "/PlayPCM(%d, %d, %s, %v): %v", sampleRate, channels, format, bufferSize, _err) }()

	pulseFormat, err := toPulseFormat(format)
	if err != nil {
		return nil, err
	}
	chanMap, err := toChannelMap(channels)
	if err != nil {
		return nil, err
	}

	stream, err := p.PulseClient.NewPlayback(
		pulseReader{Reader: reader, format: pulseFormat},
		pulse.PlaybackLatency(bufferSize.Seconds()),
		pulse.PlaybackSampleRate(int(sampleRate)),
		pulse.PlaybackChannels(chanMap),
		pulse.PlaybackMediaName("multitrack mix"),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize a playback: %w", err)
	}

	stream.Start()
	if err := stream.Error(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("unable to start the playback: %w", err)
	}
	logger.Debugf(ctx, "started a playback of %d Hz %d ch %s with the buffer of %d frames", stream.SampleRate(), stream.Channels(), format, stream.BufferSize())
	return newPlayStream(stream), nil
}

func toPulseFormat(format types.PCMFormat) (byte, error) {
	switch format {
	case types.PCMFormatFloat32LE:
		return proto.FormatFloat32LE, nil
	case types.PCMFormatS16LE:
		return proto.FormatInt16LE, nil
	case types.PCMFormatS32LE:
		return proto.FormatInt32LE, nil
	default:
		return 0, fmt.Errorf("PCM format %s is not supported", format)
	}
}

func toChannelMap(channels types.Channel) (proto.ChannelMap, error) {
	switch channels {
	case 1:
		return proto.ChannelMap{proto.ChannelMono}, nil
	case 2:
		return proto.ChannelMap{proto.ChannelLeft, proto.ChannelRight}, nil
	default:
		return nil, fmt.Errorf("do not know how to configure %d channels", channels)
	}
}

// pulseReader passes raw bytes of a known format to Pulse.
type pulseReader struct {
	io.Reader
	format byte
}

var _ pulse.Reader = pulseReader{}

func (r pulseReader) Format() byte {
	return r.format
}
