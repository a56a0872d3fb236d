// Package bridge exposes one voice session per UI client over a WebSocket:
// status and transcript notifications out, control commands in.
package bridge

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/rtvoice/internal/app"
	"github.com/dkeye/rtvoice/internal/core"
)

// Session is the voice session driven by one UI client.
type Session interface {
	app.Session
	Initialize(ctx context.Context) error
	Connect(ctx context.Context) error
	Send(v any) error
}

// Muter controls local playback of the assistant's voice.
type Muter interface {
	Mute()
	Unmute()
}

// Factory builds the session for a new UI client; obs receives its
// notifications.
type Factory func(obs core.Observer) (Session, Muter, error)

type Controller struct {
	Registry   *app.Registry
	Policy     app.Policy
	NewSession Factory

	ReadLimit  int64
	PingPeriod time.Duration
	SendBuffer int
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the request and serves the client until the socket closes
// or ctx is done. The client's session is disconnected on exit.
func (ctl *Controller) Handle(ctx context.Context, c *gin.Context) {
	sid := core.SessionID(c.GetString("client_token"))
	logger := log.With().Str("module", "bridge").Str("sid", string(sid)).Logger()
	logger.Info().Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Error().Err(err).Msg("ws upgrade")
		return
	}
	conn := newWSConn(ws, ctl.SendBuffer)

	obs := &pushObserver{sid: sid, conn: conn, policy: ctl.policy(), logger: &logger}
	sess, muter, err := ctl.NewSession(obs)
	if err != nil {
		logger.Error().Err(err).Msg("create session")
		_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
		_ = ws.WriteJSON(errorFrame{Type: "error", Error: err.Error()})
		conn.Close()
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	ctl.Registry.Bind(sid, sess, cancel)
	h := &handler{sid: sid, conn: conn, sess: sess, muter: muter, ctx: ctx, logger: &logger}

	// A replaced or canceled binding closes the socket.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	go conn.writePump(ctx, ctl.PingPeriod, &logger)
	go func() {
		conn.readPump(ctl.ReadLimit, ctl.PingPeriod, &logger, h.dispatch)
		cancel()
		sess.Disconnect()
		ctl.Registry.Unbind(sid, sess)
		logger.Info().Msg("client gone, session released")
	}()
}

func (ctl *Controller) policy() app.Policy {
	if ctl.Policy == nil {
		return app.SimplePolicy{MaxDropped: 64}
	}
	return ctl.Policy
}
