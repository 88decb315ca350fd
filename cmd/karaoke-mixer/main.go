package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/spf13/pflag"
	"github.com/xaionaro-go/multitrack/pkg/audiograph"
	_ "github.com/xaionaro-go/multitrack/pkg/audio/backends/oto"
	_ "github.com/xaionaro-go/multitrack/pkg/audio/backends/portaudio"
	_ "github.com/xaionaro-go/multitrack/pkg/audio/backends/pulseaudio"
	"github.com/xaionaro-go/multitrack/pkg/clock"
	"github.com/xaionaro-go/multitrack/pkg/interpolation"
	"github.com/xaionaro-go/multitrack/pkg/interpolation/fourier"
	"github.com/xaionaro-go/multitrack/pkg/media"
	"github.com/xaionaro-go/multitrack/pkg/mixer"
	"github.com/xaionaro-go/multitrack/pkg/preferences/storage/bolt"
	"github.com/xaionaro-go/multitrack/pkg/session"
	"github.com/xaionaro-go/observability"
)

func main() {
	loggerLevel := logger.LevelInfo
	pflag.Var(&loggerLevel, "log-level", "Log level")
	stems := pflag.StringArray("stem", nil, "a track to play, in the form 'source:type=url' (e.g. 'reference:vocals=https://example.com/vocals.mp3'); may be repeated")
	sessionKey := pflag.String("session", "", "the identifier the mixer settings are saved under (default: derived from the stems)")
	preferencesPath := pflag.String("preferences-db", "", "path to the database of the mixer settings; empty disables saving them")
	videoStart := pflag.Duration("video-start", 0, "the position the virtual video starts at")
	smoothSeams := pflag.Bool("smooth-seams", true, "fill the seek seams with a spectral interpolation instead of a linear one")
	pitchShift := pflag.Float64("pitch-shift", 0, "semitones to shift the pitch of the vocals by")
	masterVolume := pflag.Float64("master-volume", 1, "the master volume, in [0, 1]")
	playFor := pflag.Duration("play-for", 0, "stop after this time; zero plays until the end")
	statusInterval := pflag.Duration("status-interval", time.Second, "how often to log the status")
	allowSilent := pflag.Bool("allow-silent-output", false, "keep running (with the audio discarded) if no audio output is available")
	sampleRate := pflag.Float64("sample-rate", audiograph.DefaultSampleRate, "the sample rate of the audio graph")

	cfg := session.DefaultConfig()
	addConfigFlags(pflag.CommandLine, &cfg)
	pflag.Parse()

	l := logrus.Default().WithLevel(loggerLevel)
	ctx := logger.CtxWithLogger(context.Background(), l)
	logger.Default = func() logger.Logger {
		return l
	}
	defer belt.Flush(ctx)

	resolver, ids, err := parseStems(*stems)
	assertNoError(err)
	if len(ids) == 0 {
		panic("expected at least one --stem")
	}
	if *sessionKey == "" {
		*sessionKey = deriveSessionKey(resolver, ids)
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt)
	defer cancel()

	logger.Infof(ctx, "starting...")
	scheduler := clock.Real{}

	audioCfg := audiograph.DefaultConfig()
	audioCfg.SampleRate = *sampleRate
	audioCfg.AllowSilentOutput = *allowSilent
	audioManager := audiograph.NewManager(audioCfg, scheduler)
	defer func() {
		assertNoError(audioManager.Close())
	}()

	var seams interpolation.Interpolator = interpolation.Linear{}
	if *smoothSeams {
		seams = fourier.New()
	}

	deps := session.Dependencies{
		Audio: audioManager,
		Media: &media.HTTPFactory{
			Client:       http.DefaultClient,
			Scheduler:    scheduler,
			SampleRate:   audioCfg.SampleRate,
			Interpolator: seams,
		},
		Resolver:  resolver,
		Scheduler: scheduler,
	}
	if *preferencesPath != "" {
		storage, err := bolt.Open(*preferencesPath)
		assertNoError(err)
		defer func() {
			assertNoError(storage.Close())
		}()
		deps.Preferences = storage
	}

	s := session.New(ctx, cfg, deps)
	defer func() {
		assertNoError(s.Close(ctx))
	}()
	s.SetMasterVolume(*masterVolume)

	video := newVirtualVideo(scheduler, s.NotifyVideoState)
	s.BindVideo(ctx, video)
	assertNoError(video.SeekTo(ctx, *videoStart))
	assertNoError(s.Play(ctx))

	logger.Infof(ctx, "loading %d tracks of session '%s'", len(ids), *sessionKey)
	assertNoError(s.LoadTracks(ctx, *sessionKey, ids...))
	for _, track := range s.Store().Tracks() {
		if track.Error != nil {
			logger.Warnf(ctx, "track %s is not available: %v", track.ID, track.Error)
		}
	}

	if *pitchShift != 0 {
		for _, id := range s.Store().LoadedTracks() {
			if id.Type != mixer.TrackTypeVocals {
				continue
			}
			err := s.EnableEffect(ctx, id, mixer.PitchShiftParams{Semitones: *pitchShift})
			if err != nil {
				logger.Errorf(ctx, "unable to shift the pitch of %s: %v", id, err)
			}
		}
	}

	ended := make(chan struct{})
	var endedOnce sync.Once
	unsubscribe := s.Store().Subscribe(func(change mixer.Change) {
		if !change.Transport {
			return
		}
		transport := s.Store().Transport()
		if !transport.Playing && transport.Duration > 0 && transport.CurrentTime >= transport.Duration {
			endedOnce.Do(func() { close(ended) })
		}
	})
	defer unsubscribe()

	observability.Go(ctx, func() {
		logger.Tracef(ctx, "started the status printer loop")
		t := time.NewTicker(*statusInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				logStatus(ctx, s, video)
			}
		}
	})

	var deadline <-chan time.Time
	if *playFor > 0 {
		deadline = time.After(*playFor)
	}
	select {
	case <-ctx.Done():
		logger.Infof(ctx, "interrupted")
	case <-ended:
		logger.Infof(ctx, "reached the end")
	case <-deadline:
		logger.Infof(ctx, "played for %v", *playFor)
	}
	assertNoError(s.Stop(context.WithoutCancel(ctx)))
}

// addConfigFlags exposes the tunables of the session; the current values
// of cfg are the defaults.
func addConfigFlags(flags *pflag.FlagSet, cfg *session.Config) {
	flags.DurationVar(&cfg.Orchestrator.SyncTickInterval, "sync-tick", cfg.Orchestrator.SyncTickInterval, "how often the transport position is refreshed")
	flags.DurationVar(&cfg.Orchestrator.DriftThreshold, "track-drift-threshold", cfg.Orchestrator.DriftThreshold, "the drift of a track from the transport that triggers a correction")
	flags.DurationVar(&cfg.Orchestrator.LoadTimeout, "load-timeout", cfg.Orchestrator.LoadTimeout, "the time limit of loading a track")
	flags.DurationVar(&cfg.Reconciler.VideoPollInterval, "video-poll-interval", cfg.Reconciler.VideoPollInterval, "how often the position of the video is read")
	flags.DurationVar(&cfg.Reconciler.SeekJumpThreshold, "seek-jump-threshold", cfg.Reconciler.SeekJumpThreshold, "the jump of the video position between two polls that is treated as a seek")
	flags.DurationVar(&cfg.Reconciler.DriftCheckInterval, "video-drift-check-interval", cfg.Reconciler.DriftCheckInterval, "how often the video position is compared to the audio")
	flags.DurationVar(&cfg.Reconciler.DriftThreshold, "video-drift-threshold", cfg.Reconciler.DriftThreshold, "the drift of the video from the audio that triggers a correction")
	flags.DurationVar(&cfg.Reconciler.CrossfadeDuration, "crossfade", cfg.Reconciler.CrossfadeDuration, "the duration of fading out the video audio")
	flags.IntVar(&cfg.Reconciler.CrossfadeSteps, "crossfade-steps", cfg.Reconciler.CrossfadeSteps, "the number of volume steps of the crossfade")
	flags.DurationVar(&cfg.Preferences.DebounceWindow, "save-debounce", cfg.Preferences.DebounceWindow, "the changes within this window are saved at once")
}

func parseStems(stems []string) (media.StaticResolver, []mixer.TrackID, error) {
	resolver := media.StaticResolver{}
	var ids []mixer.TrackID
	for _, stem := range stems {
		key, url, ok := strings.Cut(stem, "=")
		if !ok {
			return nil, nil, fmt.Errorf("invalid stem '%s': expected 'source:type=url'", stem)
		}
		id, err := mixer.ParseTrackID(key)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid stem '%s': %w", stem, err)
		}
		if _, ok := resolver[id]; ok {
			return nil, nil, fmt.Errorf("stem %s is given more than once", id)
		}
		resolver[id] = media.TrackSource{StorageURL: url}
		ids = append(ids, id)
	}
	return resolver, ids, nil
}

func deriveSessionKey(resolver media.StaticResolver, ids []mixer.TrackID) string {
	var parts []string
	for _, id := range ids {
		parts = append(parts, id.String()+"="+resolver[id].StorageURL)
	}
	return strings.Join(parts, ";")
}

func logStatus(ctx context.Context, s *session.Session, video *virtualVideo) {
	transport := s.Store().Transport()
	var levels []string
	for _, id := range s.Store().LoadedTracks() {
		proc, ok := s.Processor(id)
		if !ok {
			continue
		}
		levels = append(levels, fmt.Sprintf("%s:%.3f", id, proc.AverageLevel()))
	}
	logger.Infof(ctx, "%v/%v playing:%v source:%s %s levels:[%s]",
		transport.CurrentTime.Truncate(time.Millisecond),
		transport.Duration.Truncate(time.Millisecond),
		transport.Playing,
		s.AudioSource(),
		video,
		strings.Join(levels, " "),
	)
}

func assertNoError(err error) {
	if err != nil {
		panic(err)
	}
}
