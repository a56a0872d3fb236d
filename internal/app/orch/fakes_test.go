package orch

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/dkeye/rtvoice/internal/core"
	"github.com/dkeye/rtvoice/internal/domain"
)

type fakeChannel struct {
	mu     sync.Mutex
	open   bool
	sent   []any
	closes atomic.Int32
}

func (c *fakeChannel) Send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return nil
	}
	c.sent = append(c.sent, v)
	return nil
}

func (c *fakeChannel) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	c.open = false
	c.mu.Unlock()
	c.closes.Add(1)
	return nil
}

func (c *fakeChannel) Sent() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]any(nil), c.sent...)
}

type fakeMedia struct {
	ch     *fakeChannel
	closes atomic.Int32
}

func (m *fakeMedia) Events() core.EventChannel { return m.ch }
func (m *fakeMedia) Close() error              { m.closes.Add(1); return nil }

type fakeNegotiator struct {
	mu       sync.Mutex
	calls    int
	sessions []*fakeMedia
	handlers []core.ChannelHandlers

	openOnReturn bool
	err          error
	// entered and release make Negotiate block until the test lets it finish.
	entered chan struct{}
	release chan struct{}
	// beforeReturn runs with the handlers before Negotiate returns.
	beforeReturn func(h core.ChannelHandlers)
}

func (n *fakeNegotiator) Negotiate(ctx context.Context, _ domain.SessionConfig, h core.ChannelHandlers) (core.MediaSession, error) {
	n.mu.Lock()
	n.calls++
	n.handlers = append(n.handlers, h)
	n.mu.Unlock()

	if n.entered != nil {
		n.entered <- struct{}{}
	}
	if n.release != nil {
		<-n.release
	}
	if n.err != nil {
		return nil, n.err
	}
	m := &fakeMedia{ch: &fakeChannel{open: n.openOnReturn}}
	n.mu.Lock()
	n.sessions = append(n.sessions, m)
	n.mu.Unlock()
	if n.beforeReturn != nil {
		m.ch.mu.Lock()
		m.ch.open = true
		m.ch.mu.Unlock()
		n.beforeReturn(h)
	}
	return m, nil
}

func (n *fakeNegotiator) Calls() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls
}

func (n *fakeNegotiator) Session(i int) *fakeMedia {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sessions[i]
}

func (n *fakeNegotiator) Handlers(i int) core.ChannelHandlers {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.handlers[i]
}

type staticConfig struct {
	cfg domain.SessionConfig
	err error
}

func (s staticConfig) Fetch(context.Context) (domain.SessionConfig, error) { return s.cfg, s.err }

var testConfig = domain.SessionConfig{
	SignalingEndpoint: "https://example.test/v1/realtimertc",
	Model:             "gpt-4o-realtime-preview",
	Credential:        "ek_test",
}
