package orch

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/rtvoice/internal/app/session"
	"github.com/dkeye/rtvoice/internal/core"
	"github.com/dkeye/rtvoice/internal/domain"
)

// Connect negotiates a new session. It returns once the remote answer is
// applied; the event channel opens asynchronously. Any failure is cleaned
// up before it is returned.
func (o *Orchestrator) Connect(ctx context.Context) error {
	o.mu.Lock()
	if o.cfg == nil {
		o.mu.Unlock()
		return fmt.Errorf("%w: connect before initialize", core.ErrConfiguration)
	}
	if st := o.sm.State(); st.Live() || st == domain.StateConnecting {
		o.mu.Unlock()
		o.logger.Info().Str("state", st.String()).Msg("already connected")
		return nil
	}

	stale := o.detachLocked()
	o.epoch++
	epoch := o.epoch
	o.sm = session.New(o.Observer, o.Session, log.Logger)
	o.sm.Begin()
	cfg := *o.cfg
	o.mu.Unlock()
	closeMedia(stale)

	logger := o.logger.With().Uint64("epoch", epoch).Logger()
	logger.Info().Str("endpoint", cfg.SignalingEndpoint).Msg("connecting")

	nctx := ctx
	if o.Timeout > 0 {
		var cancel context.CancelFunc
		nctx, cancel = context.WithTimeout(ctx, o.Timeout)
		defer cancel()
	}

	media, err := o.Negotiator.Negotiate(nctx, cfg, o.handlers(epoch))
	if err != nil {
		logger.Error().Err(err).Msg("connect failed")
		o.fail(epoch, err)
		return err
	}

	o.mu.Lock()
	if o.epoch != epoch {
		o.mu.Unlock()
		logger.Warn().Msg("negotiation finished after disconnect, releasing")
		closeMedia(media)
		return core.ErrConnectAborted
	}
	// The transport may fail while the answer is still being applied.
	if o.sm.State().Terminal() {
		err := transportFailure(o.sm.Err())
		o.sm.Fail(err)
		o.detachLocked()
		o.epoch++
		o.sm.Close()
		o.mu.Unlock()
		logger.Error().Err(err).Msg("transport failed during connect")
		closeMedia(media)
		return err
	}
	o.media = media
	if media.Events().IsOpen() {
		o.openLocked()
	}
	o.mu.Unlock()

	logger.Info().Msg("connection established")
	return nil
}

func transportFailure(cause error) error {
	if cause == nil {
		return fmt.Errorf("%w: transport failed during connect", core.ErrSignaling)
	}
	if errors.Is(cause, core.ErrSignaling) {
		return cause
	}
	return fmt.Errorf("%w: %w", core.ErrSignaling, cause)
}

// fail reports a failed connect and runs the disconnect path, unless a
// disconnect already superseded this attempt.
func (o *Orchestrator) fail(epoch uint64, err error) {
	o.mu.Lock()
	if o.epoch != epoch {
		o.mu.Unlock()
		return
	}
	o.sm.Fail(err)
	media := o.detachLocked()
	o.epoch++
	o.sm.Close()
	o.mu.Unlock()
	closeMedia(media)
}
