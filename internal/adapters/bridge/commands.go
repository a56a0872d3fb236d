package bridge

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog"

	"github.com/dkeye/rtvoice/internal/core"
	"github.com/dkeye/rtvoice/internal/domain"
)

type errorFrame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

type command struct {
	Type  string          `json:"type"`
	Event json.RawMessage `json:"event,omitempty"`
}

type handler struct {
	sid    core.SessionID
	conn   *wsConn
	sess   Session
	muter  Muter
	ctx    context.Context
	logger *zerolog.Logger
}

func (h *handler) dispatch(data []byte) {
	var cmd command
	if err := json.Unmarshal(data, &cmd); err != nil {
		h.logger.Warn().Err(err).Msg("bad json")
		h.replyError("bad_payload")
		return
	}

	switch cmd.Type {
	case "connect":
		go h.connect()
	case "disconnect":
		h.sess.Disconnect()
	case "send":
		h.send(cmd.Event)
	case "mute":
		h.muter.Mute()
	case "unmute":
		h.muter.Unmute()
	case "ping":
		h.reply(struct {
			Type string `json:"type"`
		}{Type: "pong"})
	default:
		h.logger.Warn().Str("type", cmd.Type).Msg("unknown command")
		h.replyError("unknown_command")
	}
}

// connect fetches a fresh configuration before every attempt: minted
// credentials are short-lived.
func (h *handler) connect() {
	if st := h.sess.State(); st.Live() || st == domain.StateConnecting {
		h.logger.Info().Str("state", st.String()).Msg("connect ignored")
		return
	}
	if err := h.sess.Initialize(h.ctx); err != nil {
		h.logger.Error().Err(err).Msg("initialize failed")
		h.replyError(err.Error())
		return
	}
	if err := h.sess.Connect(h.ctx); err != nil {
		if errors.Is(err, core.ErrConnectAborted) {
			h.logger.Info().Msg("connect aborted")
			return
		}
		h.logger.Warn().Err(err).Msg("connect failed")
	}
}

func (h *handler) send(event json.RawMessage) {
	if len(event) == 0 || !json.Valid(event) {
		h.replyError("bad_event")
		return
	}
	if err := h.sess.Send(event); err != nil {
		h.logger.Warn().Err(err).Msg("send failed")
		h.replyError(err.Error())
	}
}

func (h *handler) reply(v any) {
	if err := h.conn.sendJSON(v, h.logger); err != nil {
		h.logger.Debug().Err(err).Msg("reply dropped")
	}
}

func (h *handler) replyError(msg string) {
	h.reply(errorFrame{Type: "error", Error: msg})
}
