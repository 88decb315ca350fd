package mixer

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	refVocals = TrackID{Source: SourceReference, Type: TrackTypeVocals}
	refInstr  = TrackID{Source: SourceReference, Type: TrackTypeInstrumentals}
	userVocal = TrackID{Source: SourceUser, Type: TrackTypeVocals}
)

func loadedStore(t *testing.T, ids ...TrackID) (*Store, *TransportWriter) {
	s, w := NewStore()
	for _, id := range ids {
		require.NoError(t, s.BeginLoad(id, "http://example.invalid/"+id.String()))
		require.NoError(t, s.SetLoaded(id, time.Minute))
	}
	return s, w
}

func TestTrackIDRoundTrip(t *testing.T) {
	id, err := ParseTrackID("reference:vocals")
	require.NoError(t, err)
	assert.Equal(t, refVocals, id)
	assert.Equal(t, "user:vocals", userVocal.String())

	_, err = ParseTrackID("reference")
	assert.Error(t, err)
	_, err = ParseTrackID("someone:vocals")
	assert.Error(t, err)
	_, err = ParseTrackID("user:drums")
	assert.Error(t, err)
}

func TestEffectTypesOrder(t *testing.T) {
	assert.Equal(t, []EffectType{EffectTypePitchShift, EffectTypeReverb, EffectTypeCompressor}, EffectTypes())
	for _, et := range EffectTypes() {
		parsed, err := ParseEffectType(et.String())
		require.NoError(t, err)
		assert.Equal(t, et, parsed)
		assert.Equal(t, et, DefaultEffectParams(et).EffectType())
	}
}

func TestEffectiveVolume(t *testing.T) {
	s, _ := loadedStore(t, refVocals, refInstr, userVocal)
	require.NoError(t, s.SetVolume(refVocals, 0.8))
	require.NoError(t, s.SetVolume(refInstr, 0.6))
	require.NoError(t, s.SetVolume(userVocal, 0.4))

	assert.Equal(t, 0.8, s.EffectiveVolume(refVocals))

	require.NoError(t, s.SetMuted(refVocals, true))
	assert.Equal(t, 0.0, s.EffectiveVolume(refVocals))
	assert.Equal(t, 0.6, s.EffectiveVolume(refInstr))

	require.NoError(t, s.SetSolo(userVocal, true))
	assert.Equal(t, 0.0, s.EffectiveVolume(refVocals))
	assert.Equal(t, 0.0, s.EffectiveVolume(refInstr))
	assert.Equal(t, 0.4, s.EffectiveVolume(userVocal))

	// solo overrides mute of the soloed track
	require.NoError(t, s.SetSolo(refVocals, true))
	assert.Equal(t, 0.8, s.EffectiveVolume(refVocals))
	assert.True(t, s.IsAudible(refVocals))
	assert.False(t, s.IsAudible(refInstr))

	require.NoError(t, s.SetSolo(refVocals, false))
	require.NoError(t, s.SetSolo(userVocal, false))
	assert.Equal(t, 0.0, s.EffectiveVolume(refVocals))
	assert.Equal(t, 0.6, s.EffectiveVolume(refInstr))

	assert.Equal(t, 0.0, s.EffectiveVolume(TrackID{Source: SourceUser, Type: TrackTypeOriginal}))
}

func TestClamping(t *testing.T) {
	s, _ := loadedStore(t, refVocals)
	require.NoError(t, s.SetVolume(refVocals, 3))
	require.NoError(t, s.SetPan(refVocals, -2))
	track, ok := s.Track(refVocals)
	require.True(t, ok)
	assert.Equal(t, 1.0, track.Volume)
	assert.Equal(t, -1.0, track.Pan)
}

func TestUnknownTrack(t *testing.T) {
	s, _ := NewStore()
	assert.ErrorIs(t, s.SetVolume(refVocals, 0.5), ErrUnknownTrack)
	assert.ErrorIs(t, s.SetLoaded(refVocals, time.Second), ErrUnknownTrack)
}

func TestLoadLifecycle(t *testing.T) {
	s, _ := NewStore()
	require.NoError(t, s.BeginLoad(refVocals, "u0"))
	require.NoError(t, s.BeginLoad(refInstr, "u1"))

	track, _ := s.Track(refVocals)
	assert.True(t, track.Loading)
	assert.False(t, track.Loaded)

	loadErr := errors.New("boom")
	require.NoError(t, s.SetLoadError(refVocals, loadErr))
	require.NoError(t, s.SetLoaded(refInstr, 3*time.Minute))

	track, _ = s.Track(refVocals)
	assert.False(t, track.Loading)
	assert.ErrorIs(t, track.Error, loadErr)
	assert.Equal(t, []TrackID{refInstr}, s.LoadedTracks())

	tracks := s.Tracks()
	require.Len(t, tracks, 2)
	assert.Equal(t, refVocals, tracks[0].ID)
	assert.Equal(t, 3*time.Minute, tracks[1].Duration)
}

func TestEffects(t *testing.T) {
	s, _ := loadedStore(t, refVocals)
	track, _ := s.Track(refVocals)
	assert.False(t, track.Effect(EffectTypeReverb).Enabled)

	require.NoError(t, s.SetEffect(refVocals, EffectTypeReverb, true, ReverbParams{Decay: time.Second, Wet: 0.5}))
	require.NoError(t, s.SetEffect(refVocals, EffectTypeReverb, false, nil))
	track, _ = s.Track(refVocals)
	assert.Equal(t, EffectState{Enabled: false, Params: ReverbParams{Decay: time.Second, Wet: 0.5}}, track.Effect(EffectTypeReverb))

	assert.Error(t, s.SetEffect(refVocals, EffectTypeReverb, true, CompressorParams{}))
}

func TestReadsAreCopies(t *testing.T) {
	s, _ := loadedStore(t, refVocals)
	track, _ := s.Track(refVocals)
	track.Effects[EffectTypeCompressor] = EffectState{Enabled: true}
	track.Volume = 0

	track, _ = s.Track(refVocals)
	assert.False(t, track.Effect(EffectTypeCompressor).Enabled)
	assert.Equal(t, DefaultVolume, track.Volume)
}

func TestApplySettings(t *testing.T) {
	s, _ := loadedStore(t, refVocals)
	require.NoError(t, s.BeginLoad(refInstr, "u"))

	settings := TrackSettings{
		Volume: 0.25,
		Muted:  true,
		Effects: map[EffectType]EffectState{
			EffectTypePitchShift: {Enabled: true, Params: PitchShiftParams{Semitones: -2}},
		},
	}
	require.NoError(t, s.ApplySettings(refVocals, settings))
	assert.Error(t, s.ApplySettings(refInstr, settings))

	track, _ := s.Track(refVocals)
	assert.Equal(t, 0.25, track.Volume)
	assert.True(t, track.Muted)
	assert.Equal(t, PitchShiftParams{Semitones: -2}, track.Effect(EffectTypePitchShift).Params)
	assert.Equal(t, DefaultEffectParams(EffectTypeReverb), track.Effect(EffectTypeReverb).Params)

	track, _ = s.Track(refInstr)
	assert.Equal(t, DefaultVolume, track.Volume)
}

func TestTransportWriter(t *testing.T) {
	s, w := loadedStore(t, refVocals)
	var changes []Change
	unsubscribe := s.Subscribe(func(c Change) {
		// reading from a subscriber must not deadlock
		_ = s.Transport()
		changes = append(changes, c)
	})

	w.SetDuration(time.Minute)
	w.SetPlaying(true)
	w.SetCurrentTime(time.Second)
	assert.Equal(t, TransportState{Playing: true, CurrentTime: time.Second, Duration: time.Minute}, s.Transport())

	w.Reset()
	assert.Equal(t, TransportState{}, s.Transport())
	assert.Empty(t, s.Tracks())
	require.Len(t, changes, 4)
	assert.True(t, changes[0].Transport)
	assert.True(t, changes[3].Reset)

	unsubscribe()
	w.SetSeeking(true)
	assert.Len(t, changes, 4)
}
