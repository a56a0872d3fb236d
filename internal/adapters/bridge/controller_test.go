package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/rtvoice/internal/app"
	"github.com/dkeye/rtvoice/internal/core"
	"github.com/dkeye/rtvoice/internal/domain"
)

type fakeSession struct {
	obs core.Observer

	mu          sync.Mutex
	state       domain.ConnectionState
	sent        []string
	inits       int
	disconnects atomic.Int32
	initErr     error
}

func (s *fakeSession) State() domain.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *fakeSession) Initialize(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inits++
	return s.initErr
}

func (s *fakeSession) Connect(context.Context) error {
	s.mu.Lock()
	s.state = domain.StateConnected
	s.mu.Unlock()
	s.obs.OnStatus(domain.Status{State: domain.StateConnected, Text: "Connected - Speak now!"})
	s.obs.OnMessage(domain.Message{Role: domain.RoleAssistant, Content: "Hel", Mode: domain.ModeAppend})
	return nil
}

func (s *fakeSession) Disconnect() { s.disconnects.Add(1) }

func (s *fakeSession) Send(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, string(b))
	return nil
}

func (s *fakeSession) Sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

type fakeMuter struct{ muted atomic.Bool }

func (m *fakeMuter) Mute()   { m.muted.Store(true) }
func (m *fakeMuter) Unmute() { m.muted.Store(false) }

type harness struct {
	reg   *app.Registry
	sess  *fakeSession
	muter *fakeMuter
	ws    *websocket.Conn
}

func newHarness(t *testing.T, factoryErr error) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h := &harness{reg: app.NewRegistry(), sess: &fakeSession{}, muter: &fakeMuter{}}
	ctl := &Controller{
		Registry: h.reg,
		Policy:   app.SimplePolicy{MaxDropped: 8},
		NewSession: func(obs core.Observer) (Session, Muter, error) {
			if factoryErr != nil {
				return nil, nil, factoryErr
			}
			h.sess.obs = obs
			return h.sess, h.muter, nil
		},
		ReadLimit: 4096,
	}

	r := gin.New()
	r.GET("/ws", func(c *gin.Context) {
		c.Set("client_token", "sid-1")
		ctl.Handle(context.Background(), c)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	h.ws = ws
	return h
}

func (h *harness) command(t *testing.T, v string) {
	t.Helper()
	require.NoError(t, h.ws.WriteMessage(websocket.TextMessage, []byte(v)))
}

func (h *harness) next(t *testing.T) map[string]any {
	t.Helper()
	require.NoError(t, h.ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var out map[string]any
	require.NoError(t, h.ws.ReadJSON(&out))
	return out
}

func TestConnectPushesStatusAndMessages(t *testing.T) {
	h := newHarness(t, nil)
	h.command(t, `{"type":"connect"}`)

	status := h.next(t)
	assert.Equal(t, "status", status["type"])
	assert.Equal(t, "connected", status["state"])
	assert.Equal(t, "Connected - Speak now!", status["text"])

	msg := h.next(t)
	assert.Equal(t, map[string]any{"type": "message", "role": "assistant", "content": "Hel", "mode": "append"}, msg)
	assert.Equal(t, 1, h.reg.Count())

	// already connected: nothing is fetched again
	h.command(t, `{"type":"connect"}`)
	h.command(t, `{"type":"ping"}`)
	assert.Equal(t, "pong", h.next(t)["type"])
	h.sess.mu.Lock()
	assert.Equal(t, 1, h.sess.inits)
	h.sess.mu.Unlock()
}

func TestInitializeFailureIsReported(t *testing.T) {
	h := newHarness(t, nil)
	h.sess.mu.Lock()
	h.sess.initErr = errors.New("configuration error: no key")
	h.sess.mu.Unlock()
	h.command(t, `{"type":"connect"}`)

	out := h.next(t)
	assert.Equal(t, "error", out["type"])
	assert.Equal(t, "configuration error: no key", out["error"])
}

func TestSendForwardsRawEvent(t *testing.T) {
	h := newHarness(t, nil)
	h.command(t, `{"type":"send","event":{"type":"response.create"}}`)
	h.command(t, `{"type":"send"}`)

	out := h.next(t)
	assert.Equal(t, "bad_event", out["error"])
	assert.Equal(t, []string{`{"type":"response.create"}`}, h.sess.Sent())
}

func TestMuteAndUnknownCommands(t *testing.T) {
	h := newHarness(t, nil)
	h.command(t, `{"type":"mute"}`)
	require.Eventually(t, h.muter.muted.Load, time.Second, 5*time.Millisecond)
	h.command(t, `{"type":"unmute"}`)
	require.Eventually(t, func() bool { return !h.muter.muted.Load() }, time.Second, 5*time.Millisecond)

	h.command(t, `{"type":"dance"}`)
	assert.Equal(t, "unknown_command", h.next(t)["error"])
	h.command(t, `not json`)
	assert.Equal(t, "bad_payload", h.next(t)["error"])
}

func TestSocketCloseDisconnects(t *testing.T) {
	h := newHarness(t, nil)
	h.command(t, `{"type":"disconnect"}`)
	require.Eventually(t, func() bool { return h.sess.disconnects.Load() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, h.ws.Close())
	require.Eventually(t, func() bool {
		return h.sess.disconnects.Load() == 2 && h.reg.Count() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestFactoryErrorClosesSocket(t *testing.T) {
	h := newHarness(t, errors.New("no capture"))
	out := h.next(t)
	assert.Equal(t, "error", out["type"])
	assert.Equal(t, "no capture", out["error"])

	_, _, err := h.ws.ReadMessage()
	require.Error(t, err)
	assert.Equal(t, 0, h.reg.Count())
}
