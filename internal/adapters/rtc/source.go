package rtc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/rtvoice/internal/core"
)

const (
	opusClockRate = 48000
	opusFrame     = 20 * time.Millisecond
)

// opusSilence is a single 20ms Opus frame of silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

func newCaptureTrack() (*webrtc.TrackLocalStaticSample, error) {
	return webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: opusClockRate, Channels: 2},
		"audio", "microphone",
	)
}

// localMedia is a capture track fed by a pump goroutine.
type localMedia struct {
	track  *webrtc.TrackLocalStaticSample
	cancel context.CancelFunc
	done   chan struct{}
	closer io.Closer
	once   sync.Once
}

func (m *localMedia) Track() webrtc.TrackLocal { return m.track }

func (m *localMedia) Stop() {
	m.once.Do(func() {
		m.cancel()
		<-m.done
		if m.closer != nil {
			_ = m.closer.Close()
		}
	})
}

// startPump runs step every opusFrame until Stop or until step fails.
// The pump outlives the context of the Acquire call.
func startPump(track *webrtc.TrackLocalStaticSample, closer io.Closer, logger zerolog.Logger, step func() error) *localMedia {
	ctx, cancel := context.WithCancel(context.Background())
	m := &localMedia{track: track, cancel: cancel, done: make(chan struct{}), closer: closer}
	go func() {
		defer close(m.done)
		ticker := time.NewTicker(opusFrame)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				logger.Debug().Msg("capture stopped")
				return
			case <-ticker.C:
				if err := step(); err != nil {
					logger.Error().Err(err).Msg("capture pump stopped")
					return
				}
			}
		}
	}()
	return m
}

func logConstraints(logger zerolog.Logger, c core.Constraints) {
	logger.Info().
		Bool("echo_cancellation", c.EchoCancellation).
		Bool("noise_suppression", c.NoiseSuppression).
		Bool("auto_gain_control", c.AutoGainControl).
		Msg("capture acquired")
}

// SilenceSource captures nothing: it keeps the outbound audio track alive
// with Opus silence.
type SilenceSource struct{}

func (SilenceSource) Acquire(ctx context.Context, c core.Constraints) (core.LocalMedia, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrMediaAcquisition, err)
	}
	track, err := newCaptureTrack()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrMediaAcquisition, err)
	}
	logger := log.With().Str("module", "capture").Str("source", "silence").Logger()
	logConstraints(logger, c)
	return startPump(track, nil, logger, func() error {
		return track.WriteSample(media.Sample{Data: opusSilence, Duration: opusFrame})
	}), nil
}

// FileSource captures from an Ogg/Opus file, looping at the end.
type FileSource struct {
	Path string
}

func (s FileSource) Acquire(ctx context.Context, c core.Constraints) (core.LocalMedia, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrMediaAcquisition, err)
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrMediaAcquisition, err)
	}
	ogg, _, err := oggreader.NewWith(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %s is not an ogg/opus file: %w", core.ErrMediaAcquisition, s.Path, err)
	}
	track, err := newCaptureTrack()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %w", core.ErrMediaAcquisition, err)
	}

	logger := log.With().Str("module", "capture").Str("source", s.Path).Logger()
	logConstraints(logger, c)

	var lastGranule uint64
	step := func() error {
		page, header, err := ogg.ParseNextPage()
		if errors.Is(err, io.EOF) {
			if _, err := f.Seek(0, io.SeekStart); err != nil {
				return err
			}
			if ogg, _, err = oggreader.NewWith(f); err != nil {
				return err
			}
			lastGranule = 0
			return track.WriteSample(media.Sample{Data: opusSilence, Duration: opusFrame})
		}
		if err != nil {
			return err
		}
		var samples uint64
		if header.GranulePosition > lastGranule {
			samples = header.GranulePosition - lastGranule
		}
		lastGranule = header.GranulePosition
		d := time.Duration(float64(samples) / opusClockRate * float64(time.Second))
		return track.WriteSample(media.Sample{Data: page, Duration: d})
	}
	return startPump(track, f, logger, step), nil
}
