package mixer

import (
	"fmt"
	"strings"
)

type Source string

const (
	SourceReference = Source("reference")
	SourceUser      = Source("user")
)

type TrackType string

const (
	TrackTypeVocals        = TrackType("vocals")
	TrackTypeInstrumentals = TrackType("instrumentals")
	TrackTypeOriginal      = TrackType("original")
)

// TrackID identifies a stem of a session.
type TrackID struct {
	Source Source
	Type   TrackType
}

// String returns the key of the track, e.g. "reference:vocals".
func (id TrackID) String() string {
	return string(id.Source) + ":" + string(id.Type)
}

func (id TrackID) Validate() error {
	switch id.Source {
	case SourceReference, SourceUser:
	default:
		return fmt.Errorf("unknown track source '%s'", id.Source)
	}
	switch id.Type {
	case TrackTypeVocals, TrackTypeInstrumentals, TrackTypeOriginal:
	default:
		return fmt.Errorf("unknown track type '%s'", id.Type)
	}
	return nil
}

// ParseTrackID is the reverse of TrackID.String.
func ParseTrackID(s string) (TrackID, error) {
	source, trackType, ok := strings.Cut(s, ":")
	if !ok {
		return TrackID{}, fmt.Errorf("invalid track key '%s': expected 'source:type'", s)
	}
	id := TrackID{
		Source: Source(source),
		Type:   TrackType(trackType),
	}
	if err := id.Validate(); err != nil {
		return TrackID{}, err
	}
	return id, nil
}

func (id TrackID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *TrackID) UnmarshalText(b []byte) error {
	parsed, err := ParseTrackID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
