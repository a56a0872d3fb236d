package playback

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/rtvoice/internal/core"
)

// OutputFactory opens the outputs for a newly attached remote track.
type OutputFactory func(trackID string) (map[string]RTPWriter, error)

// Player is the AudioSink for the assistant's voice. It keeps one relay per
// attached track; attaching a new track replaces the previous relay.
type Player struct {
	Factory OutputFactory

	mu    sync.Mutex
	relay *Relay
	muted bool
}

var _ core.AudioSink = (*Player)(nil)

func NewPlayer(f OutputFactory) *Player {
	if f == nil {
		f = DiscardOutputs
	}
	return &Player{Factory: f}
}

func (p *Player) Attach(ctx context.Context, track *webrtc.TrackRemote) {
	p.attach(ctx, track.ID(), trackSource{t: track})
}

func (p *Player) attach(ctx context.Context, trackID string, src RTPSource) *Relay {
	logger := log.With().
		Str("module", "playback").
		Str("track_id", trackID).
		Logger()

	writers, err := p.Factory(trackID)
	if err != nil {
		logger.Error().Err(err).Msg("open outputs failed, discarding audio")
		writers = map[string]RTPWriter{"discard": Discard{}}
	}

	relayCtx, cancel := context.WithCancel(ctx)
	relay := NewRelay(src, cancel)
	for name, w := range writers {
		relay.AddOutput(name, NewOutput(w))
	}

	p.mu.Lock()
	if old := p.relay; old != nil {
		logger.Info().Msg("replacing existing relay")
		old.markAllDelete()
		old.cancel()
	}
	p.relay = relay
	if p.muted {
		relay.setMuted(true)
	}
	p.mu.Unlock()

	logger.Info().Int("outputs", len(writers)).Msg("starting relay loop")
	go relay.loop(relayCtx, &logger)
	return relay
}

func (p *Player) Mute()   { p.setMuted(true) }
func (p *Player) Unmute() { p.setMuted(false) }

func (p *Player) Muted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.muted
}

func (p *Player) setMuted(m bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.muted = m
	if p.relay != nil {
		p.relay.setMuted(m)
	}
	log.Info().Str("module", "playback").Bool("muted", m).Msg("playback mute changed")
}

// Stop cancels the current relay.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.relay != nil {
		p.relay.markAllDelete()
		p.relay.cancel()
		p.relay = nil
	}
}

func DiscardOutputs(string) (map[string]RTPWriter, error) {
	return map[string]RTPWriter{"discard": Discard{}}, nil
}

// OggRecorder records each attached track into dir as Ogg/Opus.
func OggRecorder(dir string) OutputFactory {
	return func(trackID string) (map[string]RTPWriter, error) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create record dir: %w", err)
		}
		name := fmt.Sprintf("%s-%d.ogg", trackID, time.Now().Unix())
		w, err := oggwriter.New(filepath.Join(dir, name), 48000, 2)
		if err != nil {
			return nil, fmt.Errorf("open recorder: %w", err)
		}
		return map[string]RTPWriter{"ogg": w}, nil
	}
}
