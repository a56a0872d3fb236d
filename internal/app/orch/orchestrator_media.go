package orch

import (
	"github.com/dkeye/rtvoice/internal/core"
	"github.com/dkeye/rtvoice/internal/protocol"
)

func (o *Orchestrator) handlers(epoch uint64) core.ChannelHandlers {
	return core.ChannelHandlers{
		OnOpen:    func() { o.onOpen(epoch) },
		OnMessage: func(ev protocol.ServerEvent) { o.onMessage(epoch, ev) },
		OnClose:   func() { o.onClose(epoch) },
		OnError:   func(err error) { o.onError(epoch, err) },
	}
}

func (o *Orchestrator) onOpen(epoch uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	// Before Connect stores the session the open is picked up there.
	if o.epoch != epoch || o.media == nil {
		return
	}
	o.openLocked()
}

func (o *Orchestrator) openLocked() {
	if o.opened {
		return
	}
	o.opened = true
	o.logger.Info().Uint64("epoch", o.epoch).Msg("event channel open")
	o.sm.Open(o.media.Events())

	early := o.early
	o.early = nil
	for _, ev := range early {
		o.sm.Handle(ev)
	}
}

func (o *Orchestrator) onMessage(epoch uint64, ev protocol.ServerEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.epoch != epoch {
		return
	}
	if !o.opened {
		o.early = append(o.early, ev)
		return
	}
	o.sm.Handle(ev)
}

func (o *Orchestrator) onError(epoch uint64, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.epoch != epoch {
		return
	}
	o.logger.Error().Err(err).Uint64("epoch", epoch).Msg("event channel error")
	o.sm.ChannelError(err)
}

// onClose tears the session down when the channel closes underneath it.
// Transport callbacks must not block on closing their own transport, so the
// release runs on its own goroutine.
func (o *Orchestrator) onClose(epoch uint64) {
	o.mu.Lock()
	if o.epoch != epoch {
		o.mu.Unlock()
		return
	}
	o.logger.Info().Uint64("epoch", epoch).Msg("event channel closed")
	media := o.detachLocked()
	o.epoch++
	o.sm.Close()
	o.mu.Unlock()
	if media != nil {
		go closeMedia(media)
	}
}
