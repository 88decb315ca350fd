package portaudio

import (
	"github.com/xaionaro-go/multitrack/pkg/audio/registry"
	"github.com/xaionaro-go/multitrack/pkg/audio/types"
)

const (
	Priority = 60
)

func init() {
	registry.RegisterPlayerFactory(Priority, PlayerPCMFactory{})
}

type PlayerPCMFactory struct{}

func (PlayerPCMFactory) NewPlayerPCM() (types.PlayerPCM, error) {
	return NewPlayerPCM()
}
