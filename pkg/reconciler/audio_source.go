package reconciler

import (
	"fmt"
)

// AudioSource is the side the user hears the audio from.
type AudioSource int

const (
	AudioSourceVideoOnly = AudioSource(iota)
	AudioSourceMultitrack
)

func (s AudioSource) String() string {
	switch s {
	case AudioSourceVideoOnly:
		return "video-only"
	case AudioSourceMultitrack:
		return "multitrack"
	default:
		return fmt.Sprintf("unknown_audio_source_%d", int(s))
	}
}
