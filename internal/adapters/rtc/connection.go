package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/rtvoice/internal/core"
	"github.com/dkeye/rtvoice/internal/domain"
)

const defaultGatherTimeout = 10 * time.Second

var errPeerFailed = errors.New("peer connection failed")

func DefaultWebRTCConfig(iceServers ...string) webrtc.Configuration {
	if len(iceServers) == 0 {
		iceServers = []string{"stun:stun.l.google.com:19302"}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: iceServers,
			},
		},
	}
}

// Transport negotiates media sessions with the realtime service: local
// capture, one peer connection, the event data channel and the SDP exchange.
type Transport struct {
	Source      core.MediaSource
	Sink        core.AudioSink
	Signaler    core.Signaler
	Constraints core.Constraints
	Config      webrtc.Configuration
	// GatherTimeout bounds ICE candidate gathering before the offer is sent.
	GatherTimeout time.Duration

	api *webrtc.API
}

var _ core.Negotiator = (*Transport)(nil)

func NewTransport(src core.MediaSource, sink core.AudioSink, sig core.Signaler, cfg webrtc.Configuration) (*Transport, error) {
	me := &webrtc.MediaEngine{}
	if err := me.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	se := webrtc.SettingEngine{LoggerFactory: NewLoggerFactory(log.Logger)}
	return &Transport{
		Source:        src,
		Sink:          sink,
		Signaler:      sig,
		Constraints:   core.DefaultConstraints(),
		Config:        cfg,
		GatherTimeout: defaultGatherTimeout,
		api:           webrtc.NewAPI(webrtc.WithMediaEngine(me), webrtc.WithSettingEngine(se)),
	}, nil
}

// Negotiate acquires capture, builds the peer connection and exchanges
// offer and answer. On any error everything acquired so far is released.
func (t *Transport) Negotiate(ctx context.Context, cfg domain.SessionConfig, h core.ChannelHandlers) (_ core.MediaSession, err error) {
	logger := log.With().Str("module", "webrtc").Str("model", cfg.Model).Logger()

	local, err := t.Source.Acquire(ctx, t.Constraints)
	if err != nil {
		return nil, wrap(core.ErrMediaAcquisition, err)
	}
	s := &mediaSession{local: local, logger: logger}
	defer func() {
		if err != nil {
			logger.Warn().Err(err).Msg("negotiation failed, rolling back")
			_ = s.Close()
		}
	}()

	pc, err := t.api.NewPeerConnection(t.Config)
	if err != nil {
		return nil, fmt.Errorf("%w: new peer connection: %w", core.ErrSignaling, err)
	}
	s.pc = pc
	sctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.start(sctx, t.Sink, h)

	sender, err := pc.AddTrack(local.Track())
	if err != nil {
		return nil, fmt.Errorf("%w: add local track: %w", core.ErrMediaAcquisition, err)
	}
	go drainRTCP(sender)

	dc, err := pc.CreateDataChannel(EventsLabel, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create data channel: %w", core.ErrSignaling, err)
	}
	s.events = newEventChannel(dc, h, logger)

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create offer: %w", core.ErrSignaling, err)
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		return nil, fmt.Errorf("%w: set local description: %w", core.ErrSignaling, err)
	}
	timeout := t.GatherTimeout
	if timeout <= 0 {
		timeout = defaultGatherTimeout
	}
	select {
	case <-gatherComplete:
	case <-time.After(timeout):
		return nil, fmt.Errorf("%w: ICE gathering timed out after %s", core.ErrSignaling, timeout)
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", core.ErrSignaling, ctx.Err())
	}

	answer, err := t.Signaler.Exchange(ctx, cfg, pc.LocalDescription().SDP)
	if err != nil {
		return nil, wrap(core.ErrSignaling, err)
	}
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer}); err != nil {
		return nil, fmt.Errorf("%w: apply answer: %w", core.ErrSignaling, err)
	}

	logger.Info().Msg("remote description applied")
	return s, nil
}

// mediaSession owns capture, the peer connection and the event channel of
// one negotiated session.
type mediaSession struct {
	pc     *webrtc.PeerConnection
	local  core.LocalMedia
	events *EventChannel
	cancel context.CancelFunc
	logger zerolog.Logger

	closing   atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func (s *mediaSession) start(ctx context.Context, sink core.AudioSink, h core.ChannelHandlers) {
	s.pc.OnConnectionStateChange(func(st webrtc.PeerConnectionState) {
		s.logger.Info().Str("peer_connection_state", st.String()).Msg("Peer state")
		if st == webrtc.PeerConnectionStateFailed && h.OnError != nil && !s.closing.Load() {
			h.OnError(errPeerFailed)
		}
	})

	s.pc.OnICEConnectionStateChange(func(st webrtc.ICEConnectionState) {
		s.logger.Debug().Str("ice_state", st.String()).Msg("ICE state")
	})

	s.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		s.logger.Info().
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		if track.Kind() == webrtc.RTPCodecTypeAudio && sink != nil {
			sink.Attach(ctx, track)
			return
		}
		drainTrack(track)
	})
}

func (s *mediaSession) Events() core.EventChannel {
	if s.events == nil {
		return nil
	}
	return s.events
}

// Close releases the event channel, the peer connection and local capture.
func (s *mediaSession) Close() error {
	s.closeOnce.Do(func() {
		s.closing.Store(true)
		if s.cancel != nil {
			s.cancel()
		}
		var errs []error
		if s.events != nil {
			errs = append(errs, s.events.Close())
		}
		if s.pc != nil {
			errs = append(errs, s.pc.Close())
		}
		if s.local != nil {
			s.local.Stop()
		}
		s.closeErr = errors.Join(errs...)
		if s.closeErr != nil {
			s.logger.Error().Err(s.closeErr).Msg("close error")
		} else {
			s.logger.Info().Msg("closed")
		}
	})
	return s.closeErr
}

func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

func drainTrack(track *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := track.Read(buf); err != nil {
			return
		}
	}
}

func wrap(sentinel, err error) error {
	if errors.Is(err, sentinel) {
		return err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}
