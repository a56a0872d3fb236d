// Package session interprets the realtime event protocol and owns the
// client-visible connection state.
package session

import (
	"github.com/rs/zerolog"

	"github.com/dkeye/rtvoice/internal/core"
	"github.com/dkeye/rtvoice/internal/domain"
	"github.com/dkeye/rtvoice/internal/protocol"
)

const (
	textConnecting   = "Connecting to the realtime service..."
	textReady        = "Connected - Speak now!"
	textListening    = "Listening to you..."
	textProcessing   = "Processing..."
	textResponding   = "AI is speaking..."
	textChannelError = "Connection error"
	textServerError  = "Error occurred"
	textDisconnected = "Disconnected"
)

// Machine is the state machine of one session. It is not safe for
// concurrent use; the owner serializes every call.
type Machine struct {
	state  domain.ConnectionState
	turn   domain.Turn
	status domain.Status
	buf    TranscriptBuffer
	err    error

	out    core.Observer
	opts   protocol.SessionOptions
	logger zerolog.Logger
}

func New(out core.Observer, opts protocol.SessionOptions, logger zerolog.Logger) *Machine {
	return &Machine{
		out:    out,
		opts:   opts,
		logger: logger.With().Str("module", "session").Logger(),
	}
}

func (m *Machine) State() domain.ConnectionState { return m.state }
func (m *Machine) Turn() domain.Turn             { return m.turn }

// Err returns the error that moved the machine to StateError, if any.
func (m *Machine) Err() error { return m.err }

// Transcript exposes the live utterance buffer for inspection.
func (m *Machine) Transcript() *TranscriptBuffer { return &m.buf }

func (m *Machine) Begin() {
	m.setState(domain.StateConnecting, domain.TurnNone, textConnecting, "")
}

// Open marks the event channel open and sends the session configuration.
// ch is used for this one send and is not retained.
func (m *Machine) Open(ch core.EventChannel) {
	if m.state.Terminal() {
		return
	}
	m.setState(domain.StateConnected, domain.TurnNone, textReady, "")
	upd := protocol.NewSessionUpdate(m.opts)
	if err := ch.Send(upd); err != nil {
		m.logger.Error().Err(err).Msg("send session.update")
		return
	}
	m.logger.Info().Str("event_id", upd.EventID).Msg("session.update sent")
}

// ChannelError records a transport level failure of the event channel.
func (m *Machine) ChannelError(err error) {
	if m.state.Terminal() {
		return
	}
	m.flush()
	m.err = err
	m.setState(domain.StateError, domain.TurnNone, textChannelError, errText(err))
}

// Fail records a failed connect attempt.
func (m *Machine) Fail(err error) {
	m.flush()
	m.err = err
	m.setState(domain.StateError, domain.TurnNone, "Error: "+errText(err), errText(err))
	m.system("Connection failed: " + errText(err))
}

// Close finalizes any live utterance and moves to StateDisconnected.
// Calling it again has no effect.
func (m *Machine) Close() {
	if m.state == domain.StateDisconnected {
		return
	}
	m.flush()
	m.setState(domain.StateDisconnected, domain.TurnNone, textDisconnected, "")
	m.system("Disconnected from the realtime service")
}

// Handle applies one inbound event.
func (m *Machine) Handle(ev protocol.ServerEvent) {
	if m.state.Terminal() {
		m.logger.Debug().Str("type", ev.Type).Str("state", m.state.String()).Msg("event after session end dropped")
		return
	}

	switch ev.Type {
	case protocol.TypeSessionCreated:
		m.system("Session created successfully")
	case protocol.TypeSessionUpdated:
		m.system("Session configured")

	case protocol.TypeSpeechStarted:
		m.setState(domain.StateSpeaking, domain.TurnListening, textListening, "")
		m.system("Listening...")
	case protocol.TypeSpeechStopped:
		m.setState(domain.StateConnected, domain.TurnNone, textProcessing, "")

	case protocol.TypeTextDelta, protocol.TypeAudioTranscriptDelta:
		if ev.Delta != "" {
			m.append(domain.RoleAssistant, ev.Delta)
		}
	case protocol.TypeTextDone:
		m.complete(domain.RoleAssistant, ev.Text)
	case protocol.TypeAudioTranscriptDone:
		m.complete(domain.RoleAssistant, ev.Transcript)

	case protocol.TypeAudioDelta:
		// Playback runs through the media transport; this only drives status.
		m.setState(domain.StateSpeaking, domain.TurnResponding, textResponding, "")
	case protocol.TypeAudioDone, protocol.TypeResponseDone:
		m.setState(domain.StateConnected, domain.TurnNone, textReady, "")

	case protocol.TypeInputTranscriptionDelta:
		if ev.Delta != "" {
			m.append(domain.RoleUser, ev.Delta)
		}
	case protocol.TypeInputTranscriptionDone, protocol.TypeBufferCommitted:
		if ev.Transcript != "" {
			m.complete(domain.RoleUser, ev.Transcript)
		}

	case protocol.TypeItemCreated:
		if ev.Item != nil && ev.Item.Type == "message" {
			m.logger.Debug().Str("item_id", ev.Item.ID).Str("role", ev.Item.Role).Msg("message item created")
		}
	case protocol.TypeResponseCreated, protocol.TypeRateLimitsUpdated:
		m.logger.Debug().Str("type", ev.Type).Msg("informational event")

	case protocol.TypeError:
		m.serverError(ev.Error)

	default:
		m.logger.Info().Str("type", ev.Type).Msg("unhandled event type")
	}
}

func (m *Machine) serverError(d *protocol.ErrorDetail) {
	se := &core.ServerError{}
	if d != nil {
		se.Type, se.Code, se.Message = d.Type, string(d.Code), d.Message
	}
	msg := se.Message
	if msg == "" {
		msg = "Unknown error"
	}
	m.logger.Error().Str("code", se.Code).Str("message", msg).Msg("server error")

	m.flush()
	m.err = se
	m.system("Error: " + msg)
	m.setState(domain.StateError, domain.TurnNone, textServerError, msg)
}

func (m *Machine) append(role domain.Role, fragment string) {
	if prev, ok := m.buf.Append(role, fragment); ok {
		m.emit(prev)
	}
	m.emit(domain.Message{Role: role, Content: fragment, Mode: domain.ModeAppend})
}

// complete finishes the utterance of role. A non-empty final text is
// authoritative over the accumulated fragments.
func (m *Machine) complete(role domain.Role, final string) {
	if m.buf.Live() && m.buf.Role() != role {
		m.flush()
	}
	acc, _ := m.buf.Flush()
	if final == "" {
		final = acc.Content
	}
	if final == "" {
		return
	}
	m.emit(domain.Message{Role: role, Content: final, Mode: domain.ModeComplete})
}

func (m *Machine) flush() {
	if msg, ok := m.buf.Flush(); ok {
		m.emit(msg)
	}
}

func (m *Machine) system(text string) {
	m.emit(domain.Message{Role: domain.RoleSystem, Content: text, Mode: domain.ModeComplete})
}

func (m *Machine) emit(msg domain.Message) {
	if m.out != nil {
		m.out.OnMessage(msg)
	}
}

func (m *Machine) setState(s domain.ConnectionState, t domain.Turn, text, detail string) {
	next := domain.Status{State: s, Turn: t, Text: text, Detail: detail}
	if next == m.status && s == m.state {
		return
	}
	prev := m.state
	m.state, m.turn, m.status = s, t, next
	m.logger.Info().Str("from", prev.String()).Str("to", s.String()).Str("turn", t.String()).Msg("state")
	if m.out != nil {
		m.out.OnStatus(next)
	}
}

func errText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
