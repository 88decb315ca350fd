package mixer

import (
	"maps"
	"time"
)

const (
	DefaultVolume = 1.0
	DefaultPan    = 0.0
)

// TrackState is the mixer state of a single track.
type TrackState struct {
	ID       TrackID
	URL      string
	Loaded   bool
	Loading  bool
	Error    error
	Duration time.Duration
	Volume   float64
	Muted    bool
	Solo     bool
	Pan      float64
	Effects  map[EffectType]EffectState
}

func newTrackState(id TrackID) *TrackState {
	effects := make(map[EffectType]EffectState, int(endOfEffectType))
	for _, t := range EffectTypes() {
		effects[t] = EffectState{Params: DefaultEffectParams(t)}
	}
	return &TrackState{
		ID:      id,
		Volume:  DefaultVolume,
		Pan:     DefaultPan,
		Effects: effects,
	}
}

func (s *TrackState) clone() TrackState {
	result := *s
	result.Effects = maps.Clone(s.Effects)
	return result
}

// Effect returns the state of the effect t of the track.
func (s TrackState) Effect(t EffectType) EffectState {
	effect, ok := s.Effects[t]
	if !ok || effect.Params == nil {
		effect.Params = DefaultEffectParams(t)
	}
	return effect
}

// TransportState is the shared playback state of all the tracks.
type TransportState struct {
	Playing     bool
	CurrentTime time.Duration
	Duration    time.Duration
	Seeking     bool
}

// TrackSettings are the user-controlled part of TrackState, as they are
// saved into and restored from preferences.
type TrackSettings struct {
	Volume  float64
	Muted   bool
	Solo    bool
	Effects map[EffectType]EffectState
}
