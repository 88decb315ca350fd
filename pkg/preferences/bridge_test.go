package preferences_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/multitrack/pkg/clock"
	"github.com/xaionaro-go/multitrack/pkg/mixer"
	"github.com/xaionaro-go/multitrack/pkg/preferences"
	"github.com/xaionaro-go/multitrack/pkg/preferences/storage/memory"
)

var (
	vocals        = mixer.TrackID{Source: mixer.SourceReference, Type: mixer.TrackTypeVocals}
	instrumentals = mixer.TrackID{Source: mixer.SourceReference, Type: mixer.TrackTypeInstrumentals}
)

type countingStorage struct {
	*memory.Storage
	locker sync.Mutex
	saves  int
}

func (s *countingStorage) Save(ctx context.Context, key string, value []byte) error {
	s.locker.Lock()
	s.saves++
	s.locker.Unlock()
	return s.Storage.Save(ctx, key, value)
}

func (s *countingStorage) Saves() int {
	s.locker.Lock()
	defer s.locker.Unlock()
	return s.saves
}

type fixture struct {
	clock   *clock.Fake
	storage *countingStorage
	store   *mixer.Store
	bridge  *preferences.Bridge
}

func newFixture(t *testing.T) *fixture {
	c := clock.NewFake(time.Unix(0, 0))
	storage := &countingStorage{Storage: memory.New()}
	store, _ := mixer.NewStore()
	require.NoError(t, store.BeginLoad(vocals, "mem://vocals"))
	require.NoError(t, store.SetLoaded(vocals, time.Minute))
	require.NoError(t, store.BeginLoad(instrumentals, "mem://instrumentals"))

	b := preferences.New(context.Background(), preferences.DefaultConfig(), storage, store, c)
	t.Cleanup(func() { b.Close(context.Background()) })
	return &fixture{
		clock:   c,
		storage: storage,
		store:   store,
		bridge:  b,
	}
}

const savedDocument = `{
	"tracks": {
		"reference:vocals": {
			"volume": 0.4,
			"muted": true,
			"solo": false,
			"effects": {
				"reverb": {"enabled": true, "params": {"decay": 3, "wet": 0.5}},
				"compressor": {"enabled": false}
			}
		},
		"reference:instrumentals": {"volume": 0.1, "muted": false, "solo": true}
	},
	"savedAt": "2026-01-02T03:04:05Z"
}`

func TestRestore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.storage.Storage.Save(ctx, "session-1", []byte(savedDocument)))
	require.NoError(t, f.bridge.SetKey(ctx, "session-1"))

	applied, err := f.bridge.Restore(ctx)
	require.NoError(t, err)
	require.Equal(t, []mixer.TrackID{vocals}, applied)

	track, _ := f.store.Track(vocals)
	require.Equal(t, 0.4, track.Volume)
	require.True(t, track.Muted)
	reverb := track.Effect(mixer.EffectTypeReverb)
	require.True(t, reverb.Enabled)
	require.Equal(t, mixer.ReverbParams{Decay: 3 * time.Second, Wet: 0.5}, reverb.Params)
	compressor := track.Effect(mixer.EffectTypeCompressor)
	require.False(t, compressor.Enabled)
	require.Equal(t, mixer.DefaultEffectParams(mixer.EffectTypeCompressor), compressor.Params)

	// not loaded tracks are not touched
	track, _ = f.store.Track(instrumentals)
	require.Equal(t, mixer.DefaultVolume, track.Volume)
	require.False(t, track.Solo)

	// restoring happens once per key
	require.NoError(t, f.store.SetVolume(vocals, 0.9))
	applied, err = f.bridge.Restore(ctx)
	require.NoError(t, err)
	require.Empty(t, applied)
	track, _ = f.store.Track(vocals)
	require.Equal(t, 0.9, track.Volume)

	f.bridge.Forget()
	applied, err = f.bridge.Restore(ctx)
	require.NoError(t, err)
	require.Equal(t, []mixer.TrackID{vocals}, applied)
}

func TestRestoreNothingSaved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.bridge.SetKey(ctx, "session-1"))
	applied, err := f.bridge.Restore(ctx)
	require.NoError(t, err)
	require.Empty(t, applied)
}

func TestSaveDebounce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.bridge.SetKey(ctx, "session-1"))

	// nothing is saved before the key is restored
	require.NoError(t, f.store.SetVolume(vocals, 0.5))
	f.clock.Advance(time.Second)
	require.Zero(t, f.storage.Saves())

	_, err := f.bridge.Restore(ctx)
	require.NoError(t, err)

	require.NoError(t, f.store.SetVolume(vocals, 0.6))
	f.clock.Advance(100 * time.Millisecond)
	require.NoError(t, f.store.SetSolo(vocals, true))
	f.clock.Advance(100 * time.Millisecond)
	require.NoError(t, f.store.SetEffect(vocals, mixer.EffectTypePitchShift, true, mixer.PitchShiftParams{Semitones: -2}))

	f.clock.Advance(499 * time.Millisecond)
	require.Zero(t, f.storage.Saves())
	f.clock.Advance(time.Millisecond)
	require.Equal(t, 1, f.storage.Saves())

	value, err := f.storage.Load(ctx, "session-1")
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(value, &doc))
	require.Contains(t, doc, "savedAt")
	tracks := doc["tracks"].(map[string]any)
	require.Len(t, tracks, 1, "only the loaded tracks are saved")
	saved := tracks["reference:vocals"].(map[string]any)
	require.Equal(t, 0.6, saved["volume"])
	require.Equal(t, true, saved["solo"])
	pitch := saved["effects"].(map[string]any)["pitchShift"].(map[string]any)
	require.Equal(t, true, pitch["enabled"])
	require.Equal(t, map[string]any{"semitones": -2.0}, pitch["params"])

	// the transport does not trigger saving
	f.clock.Advance(time.Second)
	require.Equal(t, 1, f.storage.Saves())
}

func TestFlush(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.bridge.SetKey(ctx, "session-1"))
	_, err := f.bridge.Restore(ctx)
	require.NoError(t, err)

	require.NoError(t, f.store.SetMuted(vocals, true))
	require.NoError(t, f.bridge.Flush(ctx))
	require.Equal(t, 1, f.storage.Saves())

	f.clock.Advance(time.Second)
	require.Equal(t, 1, f.storage.Saves())

	// the saved settings survive into the next session
	store, _ := mixer.NewStore()
	require.NoError(t, store.BeginLoad(vocals, "mem://vocals"))
	require.NoError(t, store.SetLoaded(vocals, time.Minute))
	next := preferences.New(ctx, preferences.DefaultConfig(), f.storage, store, f.clock)
	defer next.Close(ctx)
	require.NoError(t, next.SetKey(ctx, "session-1"))
	applied, err := next.Restore(ctx)
	require.NoError(t, err)
	require.Equal(t, []mixer.TrackID{vocals}, applied)
	track, _ := store.Track(vocals)
	require.True(t, track.Muted)
}
