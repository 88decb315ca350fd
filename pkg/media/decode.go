package media

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"path"
	"strings"

	"github.com/cwbudde/algo-dsp/dsp/resample"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	"github.com/thesyncim/gopus"
	"github.com/thesyncim/gopus/container/ogg"
	"github.com/youpy/go-wav"
)

type Codec int

const (
	CodecUnknown = Codec(iota)
	CodecMP3
	CodecVorbis
	CodecOpus
	CodecWAV
)

func (c Codec) String() string {
	switch c {
	case CodecUnknown:
		return "unknown"
	case CodecMP3:
		return "mp3"
	case CodecVorbis:
		return "vorbis"
	case CodecOpus:
		return "opus"
	case CodecWAV:
		return "wav"
	default:
		return fmt.Sprintf("unknown_codec_%d", int(c))
	}
}

var ErrUnsupportedCodec = errors.New("unsupported codec")

// DetectCodec recognizes the codec by the magic bytes of the data, falling
// back to the extension of the name.
func DetectCodec(data []byte, name string) Codec {
	switch {
	case bytes.HasPrefix(data, []byte("OggS")):
		if bytes.Contains(data[:min(len(data), 512)], []byte("OpusHead")) {
			return CodecOpus
		}
		return CodecVorbis
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")):
		return CodecWAV
	case bytes.HasPrefix(data, []byte("ID3")):
		return CodecMP3
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return CodecMP3
	}

	if idx := strings.IndexAny(name, "?#"); idx >= 0 {
		name = name[:idx]
	}
	switch strings.ToLower(path.Ext(name)) {
	case ".mp3":
		return CodecMP3
	case ".ogg", ".oga":
		return CodecVorbis
	case ".opus":
		return CodecOpus
	case ".wav":
		return CodecWAV
	}
	return CodecUnknown
}

// Decoded is a decoded signal indexed as [channel][frame].
type Decoded struct {
	SampleRate float64
	Channels   [][]float64
}

// Decode decodes the whole file.
func Decode(data []byte, codec Codec) (*Decoded, error) {
	switch codec {
	case CodecMP3:
		return decodeMP3(data)
	case CodecVorbis:
		return decodeVorbis(data)
	case CodecOpus:
		return decodeOpus(data)
	case CodecWAV:
		return decodeWAV(data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCodec, codec)
	}
}

// deinterleave splits interleaved samples into channels.
func deinterleave[T float32 | float64](interleaved []T, channels int) [][]float64 {
	frames := len(interleaved) / channels
	result := make([][]float64, channels)
	for ch := range result {
		result[ch] = make([]float64, frames)
		for i := range result[ch] {
			result[ch][i] = float64(interleaved[i*channels+ch])
		}
	}
	return result
}

func decodeMP3(data []byte) (*Decoded, error) {
	d, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("unable to initialize the MP3 decoder: %w", err)
	}
	raw, err := io.ReadAll(d)
	if err != nil {
		return nil, fmt.Errorf("unable to decode MP3: %w", err)
	}
	// go-mp3 always produces stereo S16LE
	samples := make([]float64, len(raw)/2)
	for i := range samples {
		samples[i] = float64(int16(binary.LittleEndian.Uint16(raw[i*2:]))) / math.MaxInt16
	}
	return &Decoded{
		SampleRate: float64(d.SampleRate()),
		Channels:   deinterleave(samples, 2),
	}, nil
}

func decodeVorbis(data []byte) (*Decoded, error) {
	samples, format, err := oggvorbis.ReadAll(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("unable to decode Vorbis: %w", err)
	}
	if format.Channels < 1 {
		return nil, fmt.Errorf("invalid amount of channels: %d", format.Channels)
	}
	return &Decoded{
		SampleRate: float64(format.SampleRate),
		Channels:   deinterleave(samples, format.Channels),
	}, nil
}

func decodeOpus(data []byte) (*Decoded, error) {
	r, err := ogg.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("unable to open the Ogg Opus stream: %w", err)
	}
	channels := min(max(int(r.Channels()), 1), 2)
	const opusSampleRate = 48000
	d, err := gopus.NewDecoder(opusSampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize the Opus decoder: %w", err)
	}

	var samples []float32
	for {
		packet, _, err := r.ReadPacket()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("unable to read an Opus packet: %w", err)
		}
		pcm, err := d.DecodeFloat32(packet)
		if err != nil {
			return nil, fmt.Errorf("unable to decode an Opus packet: %w", err)
		}
		samples = append(samples, pcm...)
	}

	skip := min(int(r.PreSkip())*channels, len(samples))
	return &Decoded{
		SampleRate: opusSampleRate,
		Channels:   deinterleave(samples[skip:], channels),
	}, nil
}

func decodeWAV(data []byte) (*Decoded, error) {
	r := wav.NewReader(bytes.NewReader(data))
	format, err := r.Format()
	if err != nil {
		return nil, fmt.Errorf("unable to read the WAV format: %w", err)
	}
	channels := int(format.NumChannels)
	if channels < 1 {
		return nil, fmt.Errorf("invalid amount of channels: %d", channels)
	}

	result := make([][]float64, min(channels, 2))
	for {
		samples, err := r.ReadSamples()
		for _, sample := range samples {
			for ch := range result {
				result[ch] = append(result[ch], r.FloatValue(sample, uint(ch)))
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("unable to read WAV samples: %w", err)
		}
		if len(samples) == 0 {
			break
		}
	}
	return &Decoded{
		SampleRate: float64(format.SampleRate),
		Channels:   result,
	}, nil
}

// Resample converts the signal to the sample rate.
func (d *Decoded) Resample(sampleRate float64) (*Decoded, error) {
	if d.SampleRate == sampleRate {
		return d, nil
	}
	result := &Decoded{
		SampleRate: sampleRate,
		Channels:   make([][]float64, len(d.Channels)),
	}
	for ch, samples := range d.Channels {
		r, err := resample.NewForRates(d.SampleRate, sampleRate)
		if err != nil {
			return nil, fmt.Errorf("unable to resample from %v to %v: %w", d.SampleRate, sampleRate, err)
		}
		result.Channels[ch] = r.Process(samples)
	}
	return result, nil
}
