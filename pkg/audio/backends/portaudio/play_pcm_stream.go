package portaudio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
	"unsafe"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/gordonklaus/portaudio"
	"github.com/xaionaro-go/multitrack/pkg/audio/types"
	"github.com/xaionaro-go/observability"
)

// PlayPCMStream writes the PCM read from a reader into a blocking
// PortAudio output stream, one buffer at a time.
type PlayPCMStream struct {
	PortAudioStream *portaudio.Stream

	// OutputBuffer is the byte view of the sample buffer registered in
	// PortAudioStream.
	OutputBuffer []byte
	Reader       io.Reader

	cancelFunc context.CancelFunc
	done       chan struct{}
	closeOnce  sync.Once

	locker     sync.Mutex
	err        error
	underflows uint64
}

var _ types.PlayStream = (*PlayPCMStream)(nil)

func newPlayPCMStream[T float32 | int16](
	ctx context.Context,
	sampleRate types.SampleRate,
	channels types.Channel,
	bufferSize time.Duration,
) (*PlayPCMStream, error) {
	frames := int(bufferSize.Seconds() * float64(sampleRate))
	if frames <= 0 {
		return nil, fmt.Errorf("the buffer of %v is too small for %d Hz", bufferSize, sampleRate)
	}

	// interleaved
	buf := make([]T, frames*int(channels))
	var sample T
	logger.Debugf(ctx, "newPlayPCMStream: %T, %d Hz, %d ch, %v (%d frames)", sample, sampleRate, channels, bufferSize, frames)
	stream, err := portaudio.OpenDefaultStream(0, int(channels), float64(sampleRate), frames, buf)
	if err != nil {
		return nil, fmt.Errorf("unable to open the default output stream: %w", err)
	}

	return &PlayPCMStream{
		PortAudioStream: stream,
		OutputBuffer:    unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(buf))), len(buf)*int(unsafe.Sizeof(sample))),
		done:            make(chan struct{}),
	}, nil
}

func (s *PlayPCMStream) start(
	ctx context.Context,
	reader io.Reader,
) error {
	s.Reader = reader
	if err := s.PortAudioStream.Start(); err != nil {
		return fmt.Errorf("unable to start the stream: %w", err)
	}

	ctx, s.cancelFunc = context.WithCancel(ctx)

	observability.Go(ctx, func() {
		defer close(s.done)
		err := s.playLoop(ctx)
		s.locker.Lock()
		s.err = err
		s.locker.Unlock()
	})
	return nil
}

func (s *PlayPCMStream) playLoop(
	ctx context.Context,
) (_err error) {
	logger.Debugf(ctx, "playLoop")
	defer func() { logger.Debugf(ctx, "/playLoop: %v", _err) }()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		_, err := io.ReadFull(s.Reader, s.OutputBuffer)
		switch {
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			return nil
		case err != nil:
			return fmt.Errorf("unable to read: %w", err)
		}

		err = s.PortAudioStream.Write()
		switch {
		case err == nil:
		case errors.Is(err, portaudio.OutputUnderflowed):
			s.locker.Lock()
			s.underflows++
			s.locker.Unlock()
			logger.Tracef(ctx, "output underflow")
		case ctx.Err() != nil:
			return nil
		default:
			return fmt.Errorf("unable to write: %w", err)
		}
	}
}

// Underflows returns how many times the device ran out of samples.
func (s *PlayPCMStream) Underflows() uint64 {
	s.locker.Lock()
	defer s.locker.Unlock()
	return s.underflows
}

// Drain waits until the reader is exhausted.
func (s *PlayPCMStream) Drain() error {
	<-s.done
	s.locker.Lock()
	defer s.locker.Unlock()
	return s.err
}

func (s *PlayPCMStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.cancelFunc != nil {
			s.cancelFunc()
		}
		if abortErr := s.PortAudioStream.Abort(); abortErr != nil {
			err = fmt.Errorf("unable to abort the stream: %w", abortErr)
		}
		if s.cancelFunc != nil {
			<-s.done
		}
		if closeErr := s.PortAudioStream.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("unable to close the stream: %w", closeErr)
		}
	})
	return err
}
