package orch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/rtvoice/internal/app/session"
	"github.com/dkeye/rtvoice/internal/core"
	"github.com/dkeye/rtvoice/internal/domain"
	"github.com/dkeye/rtvoice/internal/protocol"
)

// Orchestrator runs one realtime session at a time: it fetches the session
// config, negotiates media, feeds channel events into the session machine
// and reclaims every resource on disconnect.
type Orchestrator struct {
	Config     core.ConfigProvider
	Negotiator core.Negotiator
	Observer   core.Observer
	Session    protocol.SessionOptions
	// Timeout bounds one negotiation. Zero means the caller's context only.
	Timeout time.Duration

	mu     sync.Mutex
	cfg    *domain.SessionConfig
	sm     *session.Machine
	media  core.MediaSession
	opened bool
	early  []protocol.ServerEvent
	// epoch changes on every connect and disconnect; callbacks and late
	// negotiations carrying an older epoch are ignored.
	epoch uint64

	logger zerolog.Logger
}

func New(cp core.ConfigProvider, n core.Negotiator, obs core.Observer, opts protocol.SessionOptions) *Orchestrator {
	o := &Orchestrator{
		Config:     cp,
		Negotiator: n,
		Observer:   obs,
		Session:    opts,
		logger:     log.With().Str("module", "orch").Logger(),
	}
	o.sm = session.New(obs, opts, log.Logger)
	return o
}

// Initialize fetches the session config. It must succeed before Connect.
func (o *Orchestrator) Initialize(ctx context.Context) error {
	if o.Config == nil {
		return fmt.Errorf("%w: no config provider", core.ErrConfiguration)
	}
	cfg, err := o.Config.Fetch(ctx)
	if err != nil {
		if errors.Is(err, core.ErrConfiguration) {
			return err
		}
		return fmt.Errorf("%w: %w", core.ErrConfiguration, err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %w", core.ErrConfiguration, err)
	}

	o.mu.Lock()
	o.cfg = &cfg
	o.mu.Unlock()
	o.logger.Info().Str("endpoint", cfg.SignalingEndpoint).Str("model", cfg.Model).Msg("configuration loaded")
	return nil
}

func (o *Orchestrator) State() domain.ConnectionState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sm.State()
}

// Err returns the error behind the current StateError, if any.
func (o *Orchestrator) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sm.Err()
}

// Send forwards v to the event channel. It is a no-op unless connected.
func (o *Orchestrator) Send(v any) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.media == nil || !o.sm.State().Live() {
		o.logger.Debug().Str("state", o.sm.State().String()).Msg("send while not connected dropped")
		return nil
	}
	return o.media.Events().Send(v)
}
