package oto

import (
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/xaionaro-go/multitrack/pkg/audio/types"
)

const drainPollInterval = 10 * time.Millisecond

type PlayStream struct {
	Player *oto.Player
}

var _ types.PlayStream = (*PlayStream)(nil)

func newStream(player *oto.Player) *PlayStream {
	return &PlayStream{
		Player: player,
	}
}

func (s *PlayStream) Drain() error {
	for s.Player.IsPlaying() {
		time.Sleep(drainPollInterval)
	}
	return s.Player.Err()
}

func (s *PlayStream) Close() error {
	s.Player.Pause()
	return s.Player.Close()
}
