package orch

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/rtvoice/internal/core"
)

// Disconnect releases the event channel, the peer transport and local
// capture, and moves the session to StateDisconnected. It is safe to call in
// any state and any number of times; an in-flight Connect is superseded.
func (o *Orchestrator) Disconnect() {
	o.mu.Lock()
	media := o.detachLocked()
	o.epoch++
	o.sm.Close()
	o.mu.Unlock()

	if media != nil {
		o.logger.Info().Msg("releasing media session")
	}
	closeMedia(media)
}

// detachLocked drops every reference to the current media session and
// returns it for closing outside the lock.
func (o *Orchestrator) detachLocked() core.MediaSession {
	media := o.media
	o.media = nil
	o.opened = false
	o.early = nil
	return media
}

func closeMedia(media core.MediaSession) {
	if media == nil {
		return
	}
	if ch := media.Events(); ch != nil {
		if err := ch.Close(); err != nil {
			log.Warn().Err(err).Str("module", "orch").Msg("event channel close")
		}
	}
	if err := media.Close(); err != nil {
		log.Warn().Err(err).Str("module", "orch").Msg("media session close")
	}
}
