package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/datacounter"
	"github.com/xaionaro-go/multitrack/pkg/clock"
	"github.com/xaionaro-go/multitrack/pkg/interpolation"
	"github.com/xaionaro-go/observability"
)

const progressLogInterval = time.Second

// HTTPFactory creates PCMElements by downloading (or, for file:// URLs,
// reading) whole files, decoding them and converting them to the sample
// rate of the audio graph.
type HTTPFactory struct {
	Client       *http.Client
	Scheduler    clock.Scheduler
	SampleRate   float64
	Interpolator interpolation.Interpolator
}

var _ Factory = (*HTTPFactory)(nil)

func (f *HTTPFactory) NewElement(ctx context.Context, rawURL string) (Element, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse URL '%s': %w", rawURL, err)
	}
	switch u.Scheme {
	case "http", "https", "file":
	default:
		return nil, fmt.Errorf("unsupported URL scheme '%s'", u.Scheme)
	}

	e := NewPCMElement(f.Scheduler, f.SampleRate, f.Interpolator)
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	observability.Go(ctx, func() {
		defer cancel()
		samples, err := f.load(ctx, u)
		if err != nil {
			logger.Debugf(ctx, "unable to load '%s': %v", u.Redacted(), err)
			e.Fail(err)
			return
		}
		e.Load(samples)
	})
	return e, nil
}

func (f *HTTPFactory) load(ctx context.Context, u *url.URL) (_ [][]float64, _err error) {
	logger.Tracef(ctx, "load(%s)", u.Redacted())
	defer func() { logger.Tracef(ctx, "/load(%s): %v", u.Redacted(), _err) }()

	data, err := f.fetch(ctx, u)
	if err != nil {
		return nil, err
	}

	codec := DetectCodec(data, u.Path)
	logger.Debugf(ctx, "'%s' is %s (%d bytes)", u.Redacted(), codec, len(data))
	decoded, err := Decode(data, codec)
	if err != nil {
		return nil, fmt.Errorf("unable to decode '%s': %w", u.Redacted(), err)
	}
	decoded, err = decoded.Resample(f.SampleRate)
	if err != nil {
		return nil, err
	}
	return decoded.Channels, nil
}

func (f *HTTPFactory) fetch(ctx context.Context, u *url.URL) ([]byte, error) {
	if u.Scheme == "file" {
		data, err := os.ReadFile(u.Path)
		if err != nil {
			return nil, fmt.Errorf("unable to read '%s': %w", u.Path, err)
		}
		return data, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("unable to create a request: %w", err)
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("unable to request '%s': %w", u.Redacted(), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unable to download '%s': %s", u.Redacted(), resp.Status)
	}

	counter := datacounter.NewReaderCounter(resp.Body)
	if f.Scheduler != nil {
		stop := f.Scheduler.Every(progressLogInterval, func() {
			logger.Debugf(ctx, "'%s': downloaded %d of %d bytes", u.Redacted(), counter.Count(), resp.ContentLength)
		})
		defer stop()
	}
	data, err := io.ReadAll(counter)
	if err != nil {
		return nil, fmt.Errorf("unable to download '%s': %w", u.Redacted(), err)
	}
	return data, nil
}
