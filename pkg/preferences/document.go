package preferences

import (
	"time"

	"github.com/xaionaro-go/multitrack/pkg/mixer"
)

// Document is the saved form of the preferences of a session.
type Document struct {
	Tracks  map[mixer.TrackID]TrackPreferences `json:"tracks"`
	SavedAt time.Time                          `json:"savedAt"`
}

type TrackPreferences struct {
	Volume  float64                                `json:"volume"`
	Muted   bool                                   `json:"muted"`
	Solo    bool                                   `json:"solo"`
	Effects map[mixer.EffectType]EffectPreferences `json:"effects,omitempty"`
}

type EffectPreferences struct {
	Enabled bool               `json:"enabled"`
	Params  map[string]float64 `json:"params,omitempty"`
}

const (
	paramSemitones = "semitones"
	paramDecay     = "decay"
	paramWet       = "wet"
	paramThreshold = "threshold"
	paramRatio     = "ratio"
)

func newTrackPreferences(track mixer.TrackState) TrackPreferences {
	result := TrackPreferences{
		Volume:  track.Volume,
		Muted:   track.Muted,
		Solo:    track.Solo,
		Effects: map[mixer.EffectType]EffectPreferences{},
	}
	for _, t := range mixer.EffectTypes() {
		effect := track.Effect(t)
		result.Effects[t] = EffectPreferences{
			Enabled: effect.Enabled,
			Params:  encodeParams(effect.Params),
		}
	}
	return result
}

func (p TrackPreferences) settings() mixer.TrackSettings {
	result := mixer.TrackSettings{
		Volume:  p.Volume,
		Muted:   p.Muted,
		Solo:    p.Solo,
		Effects: map[mixer.EffectType]mixer.EffectState{},
	}
	for t, effect := range p.Effects {
		result.Effects[t] = mixer.EffectState{
			Enabled: effect.Enabled,
			Params:  decodeParams(t, effect.Params),
		}
	}
	return result
}

func encodeParams(params mixer.EffectParams) map[string]float64 {
	switch params := params.(type) {
	case mixer.PitchShiftParams:
		return map[string]float64{paramSemitones: params.Semitones}
	case mixer.ReverbParams:
		return map[string]float64{paramDecay: params.Decay.Seconds(), paramWet: params.Wet}
	case mixer.CompressorParams:
		return map[string]float64{paramThreshold: params.Threshold, paramRatio: params.Ratio}
	default:
		return nil
	}
}

// decodeParams returns nil if the parameters are incomplete; then the
// current parameters of the track are kept.
func decodeParams(t mixer.EffectType, params map[string]float64) mixer.EffectParams {
	get := func(keys ...string) ([]float64, bool) {
		values := make([]float64, 0, len(keys))
		for _, key := range keys {
			v, ok := params[key]
			if !ok {
				return nil, false
			}
			values = append(values, v)
		}
		return values, true
	}

	switch t {
	case mixer.EffectTypePitchShift:
		if v, ok := get(paramSemitones); ok {
			return mixer.PitchShiftParams{Semitones: v[0]}
		}
	case mixer.EffectTypeReverb:
		if v, ok := get(paramDecay, paramWet); ok {
			return mixer.ReverbParams{
				Decay: time.Duration(v[0] * float64(time.Second)),
				Wet:   v[1],
			}
		}
	case mixer.EffectTypeCompressor:
		if v, ok := get(paramThreshold, paramRatio); ok {
			return mixer.CompressorParams{Threshold: v[0], Ratio: v[1]}
		}
	}
	return nil
}
