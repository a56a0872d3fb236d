package core

import (
	"context"

	"github.com/dkeye/rtvoice/internal/domain"
	"github.com/dkeye/rtvoice/internal/protocol"
)

// EventChannel is the open duplex event channel of one session.
// Owned by the adapter that created it; the adapter must Close() it.
type EventChannel interface {
	// Send serializes v and transmits it. Sends on a channel that is not
	// open are dropped without error.
	Send(v any) error
	IsOpen() bool
	Close() error
}

// ChannelHandlers receive event channel callbacks. OnMessage is called in
// arrival order and never concurrently with itself.
type ChannelHandlers struct {
	OnOpen    func()
	OnMessage func(protocol.ServerEvent)
	OnClose   func()
	OnError   func(error)
}

// MediaSession is the negotiated transport together with local capture.
type MediaSession interface {
	Events() EventChannel
	// Close stops local tracks and closes the transport. Safe to call more than once.
	Close() error
}

// Negotiator establishes a MediaSession. On error nothing it acquired is left open.
type Negotiator interface {
	Negotiate(ctx context.Context, cfg domain.SessionConfig, h ChannelHandlers) (MediaSession, error)
}

// ConfigProvider fetches the connection parameters of the next session.
type ConfigProvider interface {
	Fetch(ctx context.Context) (domain.SessionConfig, error)
}

// Observer renders session progress. Calls are serialized; an Observer must
// not call back into the session synchronously.
type Observer interface {
	OnStatus(domain.Status)
	OnMessage(domain.Message)
}
