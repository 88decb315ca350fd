package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/multitrack/pkg/audio"
	"github.com/xaionaro-go/multitrack/pkg/audiograph"
	"github.com/xaionaro-go/multitrack/pkg/clock"
	"github.com/xaionaro-go/multitrack/pkg/effects"
	"github.com/xaionaro-go/multitrack/pkg/media"
	"github.com/xaionaro-go/multitrack/pkg/mixer"
	"github.com/xaionaro-go/multitrack/pkg/preferences/storage/memory"
	"github.com/xaionaro-go/multitrack/pkg/reconciler"
)

const testSampleRate = 8000

var (
	vocals        = mixer.TrackID{Source: mixer.SourceReference, Type: mixer.TrackTypeVocals}
	instrumentals = mixer.TrackID{Source: mixer.SourceReference, Type: mixer.TrackTypeInstrumentals}
)

type silentFactory struct {
	clock    *clock.Fake
	duration time.Duration
}

func (f silentFactory) NewElement(context.Context, string) (media.Element, error) {
	e := media.NewPCMElement(f.clock, testSampleRate, nil)
	e.Load([][]float64{make([]float64, int(f.duration.Seconds()*testSampleRate))})
	return e, nil
}

type fakeVideo struct {
	clock *clock.Fake

	locker    sync.Mutex
	volume    float64
	muted     bool
	playing   bool
	position  time.Duration
	startedAt time.Time
}

var _ reconciler.VideoPlayer = (*fakeVideo)(nil)

func (v *fakeVideo) positionLocked() time.Duration {
	if !v.playing {
		return v.position
	}
	return v.position + v.clock.Now().Sub(v.startedAt)
}

func (v *fakeVideo) Play(context.Context) error {
	v.locker.Lock()
	defer v.locker.Unlock()
	if !v.playing {
		v.playing, v.startedAt = true, v.clock.Now()
	}
	return nil
}

func (v *fakeVideo) Pause(context.Context) error {
	v.locker.Lock()
	defer v.locker.Unlock()
	v.position = v.positionLocked()
	v.playing = false
	return nil
}

func (v *fakeVideo) SeekTo(_ context.Context, ts time.Duration) error {
	v.locker.Lock()
	defer v.locker.Unlock()
	v.position, v.startedAt = ts, v.clock.Now()
	return nil
}

func (v *fakeVideo) CurrentTime(context.Context) (time.Duration, error) {
	v.locker.Lock()
	defer v.locker.Unlock()
	return v.positionLocked(), nil
}

func (v *fakeVideo) Volume(context.Context) (float64, error) {
	v.locker.Lock()
	defer v.locker.Unlock()
	return v.volume, nil
}

func (v *fakeVideo) SetVolume(_ context.Context, volume float64) error {
	v.locker.Lock()
	defer v.locker.Unlock()
	v.volume = volume
	return nil
}

func (v *fakeVideo) Mute(context.Context) error {
	v.locker.Lock()
	defer v.locker.Unlock()
	v.muted = true
	return nil
}

func (v *fakeVideo) UnMute(context.Context) error {
	v.locker.Lock()
	defer v.locker.Unlock()
	v.muted = false
	return nil
}

func (v *fakeVideo) state() (volume float64, muted bool) {
	v.locker.Lock()
	defer v.locker.Unlock()
	return v.volume, v.muted
}

type fixture struct {
	clock   *clock.Fake
	storage *memory.Storage
	video   *fakeVideo
	session *Session
}

func newFixture(t *testing.T, loader *effects.Loader) *fixture {
	t.Helper()
	c := clock.NewFake(time.Unix(0, 0))

	audioCfg := audiograph.DefaultConfig()
	audioCfg.SampleRate = testSampleRate
	audioCfg.AllowSilentOutput = true
	audioCfg.OpenPlayer = func(context.Context) *audio.Player {
		return &audio.Player{PlayerPCM: audio.PlayerPCMDummy{}}
	}
	manager := audiograph.NewManager(audioCfg, c)
	t.Cleanup(func() { manager.Close() })

	storage := memory.New()
	s := New(context.Background(), DefaultConfig(), Dependencies{
		Audio:   manager,
		Effects: loader,
		Media:   silentFactory{clock: c, duration: time.Minute},
		Resolver: media.StaticResolver{
			vocals:        {StorageURL: "mem://vocals"},
			instrumentals: {APIURL: "mem://instrumentals"},
		},
		Scheduler:   c,
		Preferences: storage,
	})
	t.Cleanup(func() { s.Close(context.Background()) })
	return &fixture{
		clock:   c,
		storage: storage,
		video:   &fakeVideo{clock: c, volume: 80},
		session: s,
	}
}

func TestHandOffToMultitrack(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.session.BindVideo(ctx, f.video)
	require.NoError(t, f.session.Play(ctx))
	f.session.NotifyVideoState(true)
	f.clock.Advance(5 * time.Second)
	require.Equal(t, reconciler.AudioSourceVideoOnly, f.session.AudioSource())

	require.NoError(t, f.session.LoadTracks(ctx, "song-1", vocals, instrumentals))
	require.True(t, f.session.IsReady())
	require.Equal(t, reconciler.AudioSourceMultitrack, f.session.AudioSource())
	transport := f.session.Store().Transport()
	require.True(t, transport.Playing)
	require.Equal(t, 5*time.Second, transport.CurrentTime)

	f.clock.Advance(time.Second)
	require.InDelta(t, 6.0, f.session.Store().Transport().CurrentTime.Seconds(), 0.05)
	volume, muted := f.video.state()
	require.Zero(t, volume)
	require.True(t, muted)

	require.NoError(t, f.session.Pause(ctx))
	require.False(t, f.session.Store().Transport().Playing)
	require.NoError(t, f.session.Seek(ctx, 30*time.Second))
	require.Equal(t, 30*time.Second, f.session.Store().Transport().CurrentTime)
	pos, err := f.video.CurrentTime(ctx)
	require.NoError(t, err)
	require.Equal(t, 30*time.Second, pos)
}

func TestPreferencesRestoredOnLoad(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.storage.Save(ctx, "song-1", []byte(`{
		"tracks": {
			"reference:vocals": {
				"volume": 0.3,
				"muted": false,
				"solo": false,
				"effects": {"compressor": {"enabled": true, "params": {"threshold": -20, "ratio": 6}}}
			}
		},
		"savedAt": "2026-01-02T03:04:05Z"
	}`)))

	require.NoError(t, f.session.LoadTracks(ctx, "song-1", vocals, instrumentals))

	track, ok := f.session.Store().Track(vocals)
	require.True(t, ok)
	require.Equal(t, 0.3, track.Volume)
	proc, ok := f.session.Processor(vocals)
	require.True(t, ok)
	require.Equal(t, 0.3, proc.Volume())
	chain := proc.ExistingEffectChain()
	require.NotNil(t, chain)
	require.True(t, chain.Enabled(mixer.EffectTypeCompressor))
	params, ok := chain.Params(mixer.EffectTypeCompressor)
	require.True(t, ok)
	require.Equal(t, mixer.CompressorParams{Threshold: -20, Ratio: 6}, params)

	// changes are saved after the debounce window
	require.NoError(t, f.session.SetVolume(instrumentals, 0.7))
	f.clock.Advance(time.Second)
	value, err := f.storage.Load(ctx, "song-1")
	require.NoError(t, err)
	require.Contains(t, string(value), `"reference:instrumentals"`)
}

func TestEffects(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.session.LoadTracks(ctx, "song-1", vocals))
	proc, _ := f.session.Processor(vocals)

	require.NoError(t, f.session.EnableEffect(ctx, vocals, mixer.CompressorParams{Threshold: -10, Ratio: 4}))
	chain := proc.ExistingEffectChain()
	require.NotNil(t, chain)
	require.True(t, chain.Enabled(mixer.EffectTypeCompressor))

	require.NoError(t, f.session.UpdateEffectParams(ctx, vocals, mixer.CompressorParams{Threshold: -30, Ratio: 2}))
	require.True(t, chain.Enabled(mixer.EffectTypeCompressor))
	params, _ := chain.Params(mixer.EffectTypeCompressor)
	require.Equal(t, mixer.CompressorParams{Threshold: -30, Ratio: 2}, params)

	require.NoError(t, f.session.DisableEffect(ctx, vocals, mixer.EffectTypeCompressor))
	require.False(t, chain.Enabled(mixer.EffectTypeCompressor))
	track, _ := f.session.Store().Track(vocals)
	require.False(t, track.Effect(mixer.EffectTypeCompressor).Enabled)
	require.Equal(t, mixer.CompressorParams{Threshold: -30, Ratio: 2}, track.Effect(mixer.EffectTypeCompressor).Params)

	// updating the parameters of a disabled effect keeps it disabled
	require.NoError(t, f.session.UpdateEffectParams(ctx, vocals, mixer.CompressorParams{Threshold: -5, Ratio: 3}))
	require.False(t, chain.Enabled(mixer.EffectTypeCompressor))
}

func TestEffectUnavailable(t *testing.T) {
	f := newFixture(t, &effects.Loader{
		Init: func(context.Context, *audiograph.Context) error {
			return errors.New("no processing support")
		},
	})
	ctx := context.Background()
	require.NoError(t, f.session.LoadTracks(ctx, "song-1", vocals))

	err := f.session.EnableEffect(ctx, vocals, mixer.PitchShiftParams{Semitones: 3})
	require.ErrorIs(t, err, ErrEffectUnavailable)
	track, _ := f.session.Store().Track(vocals)
	require.False(t, track.Effect(mixer.EffectTypePitchShift).Enabled)

	// the playback is not affected
	require.NoError(t, f.session.Play(ctx))
	f.clock.Advance(time.Second)
	require.InDelta(t, 1.0, f.session.Store().Transport().CurrentTime.Seconds(), 0.05)
}

func TestReset(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.session.BindVideo(ctx, f.video)
	require.NoError(t, f.session.LoadTracks(ctx, "song-1", vocals))
	require.NoError(t, f.session.SetMuted(vocals, true))
	f.clock.Advance(100 * time.Millisecond)
	require.NoError(t, f.session.SetSolo(vocals, true))
	require.NoError(t, f.session.SetPan(vocals, -0.5))
	f.clock.Advance(time.Second)

	require.NoError(t, f.session.Reset(ctx))
	require.False(t, f.session.IsReady())
	require.Empty(t, f.session.Store().Tracks())
	require.Equal(t, reconciler.AudioSourceVideoOnly, f.session.AudioSource())
	volume, muted := f.video.state()
	require.Equal(t, 80.0, volume)
	require.False(t, muted)

	// the session may be loaded again, and gets its settings back
	require.NoError(t, f.session.LoadTracks(ctx, "song-1", vocals))
	require.Equal(t, reconciler.AudioSourceMultitrack, f.session.AudioSource())
	track, _ := f.session.Store().Track(vocals)
	require.True(t, track.Muted)
	require.True(t, track.Solo)
	require.Zero(t, track.Pan, "the pan is not persisted")
}

func TestPlayWithoutAnything(t *testing.T) {
	f := newFixture(t, nil)
	require.ErrorIs(t, f.session.Play(context.Background()), reconciler.ErrNoVideo)
}

func TestMasterVolume(t *testing.T) {
	f := newFixture(t, nil)
	f.session.SetMasterVolume(0.25)
	require.Equal(t, 0.25, f.session.MasterVolume())
}
