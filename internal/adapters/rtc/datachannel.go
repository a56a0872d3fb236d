package rtc

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/dkeye/rtvoice/internal/core"
	"github.com/dkeye/rtvoice/internal/protocol"
)

// EventsLabel names the data channel carrying session events.
const EventsLabel = "oai-events"

var _ core.EventChannel = (*EventChannel)(nil)

// EventChannel carries JSON session events over a WebRTC data channel.
type EventChannel struct {
	dc     *webrtc.DataChannel
	h      core.ChannelHandlers
	logger zerolog.Logger

	// local is set once Close was called here; the callbacks of a locally
	// closed channel are not forwarded.
	local     atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func newEventChannel(dc *webrtc.DataChannel, h core.ChannelHandlers, logger zerolog.Logger) *EventChannel {
	c := &EventChannel{dc: dc, h: h, logger: logger.With().Str("label", dc.Label()).Logger()}

	dc.OnOpen(func() {
		c.logger.Info().Msg("data channel opened")
		if h.OnOpen != nil {
			h.OnOpen()
		}
	})
	dc.OnClose(func() {
		c.logger.Info().Msg("data channel closed")
		if h.OnClose != nil && !c.local.Load() {
			h.OnClose()
		}
	})
	dc.OnError(func(err error) {
		c.logger.Error().Err(err).Msg("data channel error")
		if h.OnError != nil && !c.local.Load() {
			h.OnError(err)
		}
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		c.deliver(msg.Data)
	})
	return c
}

// deliver parses one frame. Malformed frames are logged and dropped.
func (c *EventChannel) deliver(data []byte) {
	ev, err := protocol.Parse(data)
	if err != nil {
		c.logger.Warn().Err(fmt.Errorf("%w: %w", core.ErrProtocol, err)).Int("size", len(data)).Msg("discarding frame")
		return
	}
	c.logger.Debug().Str("type", ev.Type).Msg("event received")
	if c.h.OnMessage != nil {
		c.h.OnMessage(ev)
	}
}

func (c *EventChannel) Send(v any) error {
	if !c.IsOpen() {
		c.logger.Debug().Str("ready_state", c.dc.ReadyState().String()).Msg("send on closed channel dropped")
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return c.dc.SendText(string(b))
}

func (c *EventChannel) IsOpen() bool {
	return c.dc.ReadyState() == webrtc.DataChannelStateOpen
}

func (c *EventChannel) Close() error {
	c.closeOnce.Do(func() {
		c.local.Store(true)
		c.closeErr = c.dc.Close()
	})
	return c.closeErr
}
