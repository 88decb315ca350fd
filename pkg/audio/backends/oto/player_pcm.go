package oto

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/multitrack/pkg/audio/types"
)

type PlayerPCM struct {
	OtoCtx *oto.Context
}

var _ types.PlayerPCM = (*PlayerPCM)(nil)

func NewPlayerPCM() (*PlayerPCM, error) {
	otoCtx, err := getOtoContext()
	if err != nil {
		return nil, fmt.Errorf("unable to get an oto context: %w", err)
	}

	return &PlayerPCM{
		OtoCtx: otoCtx,
	}, nil
}

func (p *PlayerPCM) Close() error {
	return nil
}

func (p *PlayerPCM) Ping(context.Context) error {
	return p.OtoCtx.Err()
}

func (p *PlayerPCM) PlayPCM(
	ctx context.Context,
	sampleRate types.SampleRate,
	channels types.Channel,
	format types.PCMFormat,
	bufferSize time.Duration,
	reader io.Reader,
) (types.PlayStream, error) {
	// `oto` does not allow to initialize a context multiple times, so the
	// stream parameters are fixed for the whole process.
	if sampleRate != SampleRate || channels != Channels || format != Format {
		return nil, fmt.Errorf(
			"oto is initialized for %d Hz %d ch %s, but received a request for %d Hz %d ch %s",
			SampleRate, Channels, Format, sampleRate, channels, format,
		)
	}
	if bufferSize != BufferSize {
		logger.Debugf(ctx, "oto buffer size is fixed to %v; ignoring the requested %v", BufferSize, bufferSize)
	}

	player := p.OtoCtx.NewPlayer(reader)
	player.Play()

	return newStream(player), nil
}
