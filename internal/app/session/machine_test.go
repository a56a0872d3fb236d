package session

import (
	"encoding/json"
	"errors"
	"math/rand"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/rtvoice/internal/core"
	"github.com/dkeye/rtvoice/internal/domain"
	"github.com/dkeye/rtvoice/internal/protocol"
)

type fakeChannel struct {
	open bool
	sent []any
}

func (c *fakeChannel) Send(v any) error {
	if !c.open {
		return nil
	}
	c.sent = append(c.sent, v)
	return nil
}
func (c *fakeChannel) IsOpen() bool { return c.open }
func (c *fakeChannel) Close() error { c.open = false; return nil }

func newOpenMachine(t *testing.T) (*Machine, *Recorder, *fakeChannel) {
	t.Helper()
	rec := NewRecorder()
	m := New(rec, protocol.DefaultSessionOptions(), zerolog.Nop())
	ch := &fakeChannel{open: true}
	m.Begin()
	m.Open(ch)
	require.Equal(t, domain.StateConnected, m.State())
	return m, rec, ch
}

func ev(typ string) protocol.ServerEvent { return protocol.ServerEvent{Type: typ} }

func delta(typ, d string) protocol.ServerEvent { return protocol.ServerEvent{Type: typ, Delta: d} }

func TestOpenSendsSingleSessionUpdate(t *testing.T) {
	_, _, ch := newOpenMachine(t)

	require.Len(t, ch.sent, 1)
	upd, ok := ch.sent[0].(protocol.SessionUpdate)
	require.True(t, ok)

	raw, err := json.Marshal(upd)
	require.NoError(t, err)
	var wire map[string]any
	require.NoError(t, json.Unmarshal(raw, &wire))

	assert.Equal(t, "session.update", wire["type"])
	session := wire["session"].(map[string]any)
	assert.Equal(t, []any{"text", "audio"}, session["modalities"])
	assert.Equal(t, "alloy", session["voice"])
	assert.Equal(t, "pcm16", session["input_audio_format"])
	assert.Equal(t, "pcm16", session["output_audio_format"])
	td := session["turn_detection"].(map[string]any)
	assert.Equal(t, "server_vad", td["type"])
	assert.Equal(t, 0.8, td["threshold"])
	assert.Equal(t, float64(300), td["prefix_padding_ms"])
	assert.Equal(t, float64(500), td["silence_duration_ms"])
	assert.NotContains(t, session, "input_audio_transcription")
}

func TestListeningThenStreamedAssistantText(t *testing.T) {
	m, rec, _ := newOpenMachine(t)
	before := len(rec.Statuses())

	m.Handle(ev(protocol.TypeSpeechStarted))
	m.Handle(delta(protocol.TypeTextDelta, "Hel"))
	m.Handle(delta(protocol.TypeTextDelta, "lo"))
	m.Handle(protocol.ServerEvent{Type: protocol.TypeTextDone, Text: "Hello"})

	assistant := rec.Messages(domain.RoleAssistant)
	require.Len(t, assistant, 1)
	assert.Equal(t, "Hello", assistant[0].Content)
	assert.Equal(t, domain.ModeComplete, assistant[0].Mode)

	var listening int
	for _, s := range rec.Statuses()[before:] {
		if s.Turn == domain.TurnListening {
			listening++
		}
	}
	assert.Equal(t, 1, listening)
	assert.Equal(t, domain.StateSpeaking, m.State())
	assert.False(t, m.Transcript().Live())
}

func TestDoneWithoutTextUsesAccumulatedFragments(t *testing.T) {
	m, rec, _ := newOpenMachine(t)

	m.Handle(delta(protocol.TypeAudioTranscriptDelta, "Good "))
	m.Handle(delta(protocol.TypeAudioTranscriptDelta, "morning"))
	m.Handle(ev(protocol.TypeAudioTranscriptDone))

	assistant := rec.Messages(domain.RoleAssistant)
	require.Len(t, assistant, 1)
	assert.Equal(t, "Good morning", assistant[0].Content)
}

func TestServerErrorSurfacesMessage(t *testing.T) {
	m, rec, _ := newOpenMachine(t)

	frame := []byte(`{"type":"error","error":{"message":"rate_limited"}}`)
	e, err := protocol.Parse(frame)
	require.NoError(t, err)
	m.Handle(e)

	assert.Equal(t, domain.StateError, m.State())
	require.ErrorIs(t, m.Err(), core.ErrServerReported)
	var se *core.ServerError
	require.True(t, errors.As(m.Err(), &se))
	assert.Equal(t, "rate_limited", se.Message)

	last, ok := rec.Last()
	require.True(t, ok)
	assert.Equal(t, "rate_limited", last.Detail)
	system := rec.Messages(domain.RoleSystem)
	assert.Contains(t, system[len(system)-1].Content, "rate_limited")
}

func TestServerErrorWithNumericCode(t *testing.T) {
	m, rec, _ := newOpenMachine(t)

	e, err := protocol.Parse([]byte(`{"type":"error","error":{"code":429,"message":"rate_limited"}}`))
	require.NoError(t, err)
	m.Handle(e)

	assert.Equal(t, domain.StateError, m.State())
	var se *core.ServerError
	require.True(t, errors.As(m.Err(), &se))
	assert.Equal(t, "429", se.Code)
	last, ok := rec.Last()
	require.True(t, ok)
	assert.Equal(t, "rate_limited", last.Detail)
}

func TestTerminalStateDropsEvents(t *testing.T) {
	m, rec, _ := newOpenMachine(t)
	m.Handle(protocol.ServerEvent{Type: protocol.TypeError, Error: &protocol.ErrorDetail{Message: "boom"}})
	n := len(rec.Messages())

	m.Handle(delta(protocol.TypeTextDelta, "ignored"))
	m.Handle(ev(protocol.TypeSpeechStarted))

	assert.Equal(t, domain.StateError, m.State())
	assert.Len(t, rec.Messages(), n)
}

func TestSpeechAndAudioTransitions(t *testing.T) {
	m, _, _ := newOpenMachine(t)

	m.Handle(ev(protocol.TypeSpeechStarted))
	assert.Equal(t, domain.StateSpeaking, m.State())
	assert.Equal(t, domain.TurnListening, m.Turn())

	m.Handle(ev(protocol.TypeSpeechStopped))
	assert.Equal(t, domain.StateConnected, m.State())

	m.Handle(ev(protocol.TypeAudioDelta))
	assert.Equal(t, domain.StateSpeaking, m.State())
	assert.Equal(t, domain.TurnResponding, m.Turn())

	m.Handle(ev(protocol.TypeResponseDone))
	assert.Equal(t, domain.StateConnected, m.State())
	assert.Equal(t, domain.TurnNone, m.Turn())
}

func TestRepeatedAudioDeltaNotifiesOnce(t *testing.T) {
	m, rec, _ := newOpenMachine(t)
	before := len(rec.Statuses())

	for range 10 {
		m.Handle(ev(protocol.TypeAudioDelta))
	}
	assert.Len(t, rec.Statuses(), before+1)
}

func TestUserTranscriptFlushesAssistantFirst(t *testing.T) {
	m, rec, _ := newOpenMachine(t)

	m.Handle(delta(protocol.TypeAudioTranscriptDelta, "Sure, "))
	m.Handle(protocol.ServerEvent{Type: protocol.TypeInputTranscriptionDone, Transcript: "wait"})

	convo := rec.Messages(domain.RoleAssistant, domain.RoleUser)
	require.Len(t, convo, 2)
	assert.Equal(t, domain.Message{Role: domain.RoleAssistant, Content: "Sure, ", Mode: domain.ModeComplete}, convo[0])
	assert.Equal(t, domain.Message{Role: domain.RoleUser, Content: "wait", Mode: domain.ModeComplete}, convo[1])
}

func TestCommittedWithoutTranscriptIsIgnored(t *testing.T) {
	m, rec, _ := newOpenMachine(t)
	m.Handle(ev(protocol.TypeBufferCommitted))
	assert.Empty(t, rec.Messages(domain.RoleUser))
}

func TestUnknownEventIsPassthrough(t *testing.T) {
	m, rec, _ := newOpenMachine(t)
	n, s := len(rec.Messages()), len(rec.Statuses())

	m.Handle(ev("response.output_item.added"))

	assert.Equal(t, domain.StateConnected, m.State())
	assert.Len(t, rec.Messages(), n)
	assert.Len(t, rec.Statuses(), s)
}

func TestCloseIsIdempotentAndFlushes(t *testing.T) {
	m, rec, _ := newOpenMachine(t)
	m.Handle(delta(protocol.TypeTextDelta, "partial"))

	m.Close()
	n := len(rec.Statuses())
	m.Close()

	assert.Equal(t, domain.StateDisconnected, m.State())
	assert.Len(t, rec.Statuses(), n)
	assistant := rec.Messages(domain.RoleAssistant)
	require.Len(t, assistant, 1)
	assert.Equal(t, domain.ModeComplete, assistant[0].Mode)
}

// streamChecker fails when a notification for one role arrives while an
// utterance of another role is still live.
type streamChecker struct {
	t        *testing.T
	live     bool
	liveRole domain.Role
}

func (c *streamChecker) OnStatus(domain.Status) {}

func (c *streamChecker) OnMessage(m domain.Message) {
	if m.Role == domain.RoleSystem {
		return
	}
	if c.live && c.liveRole != m.Role {
		c.t.Fatalf("%s %s while %s utterance live", m.Role, m.Mode, c.liveRole)
	}
	switch m.Mode {
	case domain.ModeAppend:
		c.live, c.liveRole = true, m.Role
	case domain.ModeComplete:
		c.live = false
	}
}

func TestRolesNeverInterleave(t *testing.T) {
	events := []protocol.ServerEvent{
		delta(protocol.TypeTextDelta, "a"),
		delta(protocol.TypeAudioTranscriptDelta, "b"),
		delta(protocol.TypeInputTranscriptionDelta, "u"),
		{Type: protocol.TypeTextDone, Text: "ab"},
		{Type: protocol.TypeAudioTranscriptDone},
		{Type: protocol.TypeInputTranscriptionDone, Transcript: "user said"},
		{Type: protocol.TypeBufferCommitted, Transcript: "committed"},
		ev(protocol.TypeSpeechStarted),
		ev(protocol.TypeSpeechStopped),
		ev(protocol.TypeAudioDelta),
		ev(protocol.TypeResponseDone),
	}

	rng := rand.New(rand.NewSource(7))
	for run := 0; run < 200; run++ {
		checker := &streamChecker{t: t}
		m := New(checker, protocol.DefaultSessionOptions(), zerolog.Nop())
		m.Begin()
		m.Open(&fakeChannel{open: true})

		var want string
		var wantRole domain.Role
		for i := 0; i < 40; i++ {
			e := events[rng.Intn(len(events))]
			m.Handle(e)

			buf := m.Transcript()
			if !buf.Live() {
				want, wantRole = "", ""
				continue
			}
			if buf.Role() != wantRole {
				want, wantRole = "", buf.Role()
			}
			want += e.Delta
			require.Equal(t, want, buf.String(), "run %d step %d", run, i)
		}
	}
}
