package audio

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/hashicorp/go-multierror"
	"github.com/xaionaro-go/multitrack/pkg/audio/registry"
)

const BufferSize = 100 * time.Millisecond

type Player struct {
	PlayerPCM
}

func NewPlayer(playerPCM PlayerPCM) *Player {
	return &Player{
		PlayerPCM: playerPCM,
	}
}

var (
	lastSuccessfulPlayerFactory       registry.PlayerPCMFactory
	lastSuccessfulPlayerFactoryLocker sync.Mutex
)

func getLastSuccessfulPlayerFactory() registry.PlayerPCMFactory {
	lastSuccessfulPlayerFactoryLocker.Lock()
	defer lastSuccessfulPlayerFactoryLocker.Unlock()
	return lastSuccessfulPlayerFactory
}

func setLastSuccessfulPlayerFactory(factory registry.PlayerPCMFactory) {
	lastSuccessfulPlayerFactoryLocker.Lock()
	defer lastSuccessfulPlayerFactoryLocker.Unlock()
	lastSuccessfulPlayerFactory = factory
}

// NewPlayerAuto returns a player backed by the highest-priority backend
// that could be initialized and pinged. If none could, then the returned
// player is backed by PlayerPCMDummy (see IsDummy).
func NewPlayerAuto(
	ctx context.Context,
) *Player {
	factory := getLastSuccessfulPlayerFactory()
	if factory != nil {
		player, err := factory.NewPlayerPCM()
		if err == nil {
			if err := player.Ping(ctx); err == nil {
				return NewPlayer(player)
			}
			_ = player.Close()
		}
	}

	var mErr *multierror.Error
	for _, factory := range registry.PlayerFactories() {
		player, err := factory.NewPlayerPCM()
		logger.Debugf(ctx, "initializing player %T result is %v", player, err)
		if err != nil {
			mErr = multierror.Append(mErr, fmt.Errorf("unable to initialize %T: %w", factory, err))
			continue
		}

		err = player.Ping(ctx)
		logger.Debugf(ctx, "pinging PCM player %T result is %v", player, err)
		if err != nil {
			mErr = multierror.Append(mErr, fmt.Errorf("unable to ping %T: %w", player, err))
			_ = player.Close()
			continue
		}

		setLastSuccessfulPlayerFactory(factory)
		return NewPlayer(player)
	}

	logger.Infof(ctx, "was unable to initialize any PCM player: %v", mErr.ErrorOrNil())
	return &Player{
		PlayerPCM: PlayerPCMDummy{},
	}
}

// IsDummy returns true if there is no real audio output behind the player.
func (a *Player) IsDummy() bool {
	_, ok := a.PlayerPCM.(PlayerPCMDummy)
	return ok
}

func (a *Player) PlayPCM(
	ctx context.Context,
	sampleRate SampleRate,
	channels Channel,
	pcmFormat PCMFormat,
	bufferSize time.Duration,
	pcmReader io.Reader,
) (PlayStream, error) {
	return a.PlayerPCM.PlayPCM(
		ctx,
		sampleRate,
		channels,
		pcmFormat,
		bufferSize,
		pcmReader,
	)
}
