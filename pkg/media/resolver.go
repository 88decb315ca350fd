package media

import (
	"errors"
	"fmt"

	"github.com/xaionaro-go/multitrack/pkg/mixer"
)

var ErrNoURL = errors.New("no URL is known for the track")

// TrackSource are the URLs a track can be fetched from.
type TrackSource struct {
	// StorageURL is a direct link into the storage, if available.
	StorageURL string

	// APIURL is the session-scoped link served via the API.
	APIURL string
}

// URL returns the URL to fetch the track from, preferring StorageURL.
func (s TrackSource) URL() (string, error) {
	switch {
	case s.StorageURL != "":
		return s.StorageURL, nil
	case s.APIURL != "":
		return s.APIURL, nil
	default:
		return "", ErrNoURL
	}
}

type URLResolver interface {
	ResolveTrackURL(id mixer.TrackID) (string, error)
}

// StaticResolver resolves tracks from a fixed table.
type StaticResolver map[mixer.TrackID]TrackSource

var _ URLResolver = StaticResolver(nil)

func (r StaticResolver) ResolveTrackURL(id mixer.TrackID) (string, error) {
	src, ok := r[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoURL, id)
	}
	u, err := src.URL()
	if err != nil {
		return "", fmt.Errorf("%w: %s", err, id)
	}
	return u, nil
}
