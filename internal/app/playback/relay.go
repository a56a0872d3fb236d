package playback

import (
	"context"
	"maps"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// RTPSource yields packets until it fails.
type RTPSource interface {
	ReadRTP() (*rtp.Packet, error)
}

type trackSource struct{ t *webrtc.TrackRemote }

func (s trackSource) ReadRTP() (*rtp.Packet, error) {
	pkt, _, err := s.t.ReadRTP()
	return pkt, err
}

// Relay forwards packets of one remote track to its outputs.
type Relay struct {
	Src RTPSource

	mu      sync.RWMutex
	outputs map[string]*Output

	cancel context.CancelFunc
	done   chan struct{}
}

func NewRelay(src RTPSource, cancel context.CancelFunc) *Relay {
	return &Relay{
		Src:     src,
		outputs: make(map[string]*Output),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// loop reads RTP packets from the source and forwards them to all outputs.
// Every output is closed when the loop exits.
func (r *Relay) loop(ctx context.Context, logger *zerolog.Logger) {
	defer close(r.done)
	defer r.closeAll(logger)
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("relay ctx done, marking all outputs for delete")
			r.markAllDelete()
			return
		default:
		}
		pkt, err := r.Src.ReadRTP()
		if err != nil {
			logger.Info().Err(err).Msg("relay read RTP stopped")
			r.markAllDelete()
			return
		}
		r.forward(pkt, logger)
	}
}

func (r *Relay) forward(pkt *rtp.Packet, logger *zerolog.Logger) {
	snapshot := make(map[string]*Output, len(r.outputs))
	r.mu.RLock()
	maps.Copy(snapshot, r.outputs)
	r.mu.RUnlock()

	dirty := make([]string, 0, len(snapshot))
	for name, o := range snapshot {
		switch o.State() {
		case OutputDelete:
			dirty = append(dirty, name)
		case OutputMuted:
		case OutputOk:
			if err := o.W.WriteRTP(pkt); err != nil {
				logger.Error().
					Err(err).
					Str("output", name).
					Msg("relay write RTP error, marking output as delete")
				o.MarkDelete()
				dirty = append(dirty, name)
			}
		}
	}

	// Cleanup is done outside the RLock.
	if len(dirty) > 0 {
		r.cleanupDeleted(dirty, logger)
	}
}

func (r *Relay) cleanupDeleted(dirty []string, logger *zerolog.Logger) {
	r.mu.Lock()
	removed := make([]*Output, 0, len(dirty))
	for _, name := range dirty {
		if o, ok := r.outputs[name]; ok {
			removed = append(removed, o)
			delete(r.outputs, name)
		}
	}
	r.mu.Unlock()
	for _, o := range removed {
		if err := o.W.Close(); err != nil {
			logger.Warn().Err(err).Msg("close output")
		}
	}
}

func (r *Relay) closeAll(logger *zerolog.Logger) {
	r.mu.Lock()
	names := make([]string, 0, len(r.outputs))
	for name := range r.outputs {
		names = append(names, name)
	}
	r.mu.Unlock()
	r.cleanupDeleted(names, logger)
}

func (r *Relay) markAllDelete() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, o := range r.outputs {
		o.MarkDelete()
	}
}

func (r *Relay) setMuted(muted bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, o := range r.outputs {
		if muted {
			o.MarkMuted()
		} else {
			o.MarkOk()
		}
	}
}

func (r *Relay) AddOutput(name string, o *Output) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outputs[name] = o
}

// Done is closed once the relay loop has exited and released its outputs.
func (r *Relay) Done() <-chan struct{} {
	return r.done
}
