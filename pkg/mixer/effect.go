package mixer

import (
	"fmt"
	"time"
)

// EffectType is an optional effect of a track. The numeric order of
// the values is the order in which enabled effects are chained.
type EffectType int

const (
	EffectTypePitchShift = EffectType(iota)
	EffectTypeReverb
	EffectTypeCompressor
	endOfEffectType
)

// EffectTypes returns every effect type in the chaining order.
func EffectTypes() []EffectType {
	result := make([]EffectType, 0, int(endOfEffectType))
	for t := EffectType(0); t < endOfEffectType; t++ {
		result = append(result, t)
	}
	return result
}

func (t EffectType) String() string {
	switch t {
	case EffectTypePitchShift:
		return "pitchShift"
	case EffectTypeReverb:
		return "reverb"
	case EffectTypeCompressor:
		return "compressor"
	default:
		return fmt.Sprintf("unknown_effect_%d", int(t))
	}
}

func ParseEffectType(s string) (EffectType, error) {
	for _, t := range EffectTypes() {
		if t.String() == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown effect type '%s'", s)
}

func (t EffectType) MarshalText() ([]byte, error) {
	if t < 0 || t >= endOfEffectType {
		return nil, fmt.Errorf("invalid effect type %d", int(t))
	}
	return []byte(t.String()), nil
}

func (t *EffectType) UnmarshalText(b []byte) error {
	parsed, err := ParseEffectType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// EffectParams is one of PitchShiftParams, ReverbParams or CompressorParams.
type EffectParams interface {
	EffectType() EffectType
	isEffectParams()
}

type PitchShiftParams struct {
	Semitones float64
}

func (PitchShiftParams) EffectType() EffectType { return EffectTypePitchShift }
func (PitchShiftParams) isEffectParams()        {}

type ReverbParams struct {
	// Decay is the time the reverb tail takes to fade by 60 dB.
	Decay time.Duration

	// Wet is the level of the reverberated signal in [0, 1].
	Wet float64
}

func (ReverbParams) EffectType() EffectType { return EffectTypeReverb }
func (ReverbParams) isEffectParams()        {}

type CompressorParams struct {
	// Threshold in dBFS.
	Threshold float64
	Ratio     float64
}

func (CompressorParams) EffectType() EffectType { return EffectTypeCompressor }
func (CompressorParams) isEffectParams()        {}

func DefaultEffectParams(t EffectType) EffectParams {
	switch t {
	case EffectTypePitchShift:
		return PitchShiftParams{Semitones: 0}
	case EffectTypeReverb:
		return ReverbParams{Decay: 2 * time.Second, Wet: 0.3}
	case EffectTypeCompressor:
		return CompressorParams{Threshold: -24, Ratio: 4}
	default:
		return nil
	}
}

type EffectState struct {
	Enabled bool
	Params  EffectParams
}
