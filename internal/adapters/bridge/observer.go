package bridge

import (
	"errors"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/dkeye/rtvoice/internal/app"
	"github.com/dkeye/rtvoice/internal/core"
	"github.com/dkeye/rtvoice/internal/domain"
)

type statusFrame struct {
	Type   string `json:"type"`
	State  string `json:"state"`
	Turn   string `json:"turn"`
	Text   string `json:"text"`
	Detail string `json:"detail,omitempty"`
}

type messageFrame struct {
	Type    string             `json:"type"`
	Role    domain.Role        `json:"role"`
	Content string             `json:"content"`
	Mode    domain.MessageMode `json:"mode"`
}

// pushObserver forwards session notifications to the UI. It runs under the
// session lock, so it only ever enqueues.
type pushObserver struct {
	sid     core.SessionID
	conn    *wsConn
	policy  app.Policy
	logger  *zerolog.Logger
	dropped atomic.Int64
}

var _ core.Observer = (*pushObserver)(nil)

func (o *pushObserver) OnStatus(s domain.Status) {
	o.push(statusFrame{
		Type:   "status",
		State:  s.State.String(),
		Turn:   s.Turn.String(),
		Text:   s.Text,
		Detail: s.Detail,
	})
}

func (o *pushObserver) OnMessage(m domain.Message) {
	o.push(messageFrame{Type: "message", Role: m.Role, Content: m.Content, Mode: m.Mode})
}

func (o *pushObserver) push(v any) {
	err := o.conn.sendJSON(v, o.logger)
	if !errors.Is(err, ErrBackpressure) {
		return
	}
	dropped := int(o.dropped.Add(1))
	switch o.policy.OnBackPressure(o.sid, dropped) {
	case app.KickClient:
		o.logger.Warn().Int("dropped", dropped).Msg("backpressure: kicking client")
		o.conn.Close()
	case app.DropFrame:
		o.logger.Debug().Int("dropped", dropped).Msg("backpressure: frame dropped")
	case app.NoAction:
	}
}
