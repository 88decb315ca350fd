package audio

import (
	"github.com/xaionaro-go/multitrack/pkg/audio/types"
)

type (
	SampleRate = types.SampleRate
	Channel    = types.Channel
	PCMFormat  = types.PCMFormat
	PlayerPCM  = types.PlayerPCM
	Stream     = types.Stream
	PlayStream = types.PlayStream
)

const (
	PCMFormatU8        = types.PCMFormatU8
	PCMFormatS16LE     = types.PCMFormatS16LE
	PCMFormatS32LE     = types.PCMFormatS32LE
	PCMFormatFloat32LE = types.PCMFormatFloat32LE
	PCMFormatFloat64LE = types.PCMFormatFloat64LE
)
