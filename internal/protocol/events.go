// Package protocol holds the JSON events exchanged over the session event channel.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const (
	TypeSessionUpdate = "session.update"

	TypeSessionCreated          = "session.created"
	TypeSessionUpdated          = "session.updated"
	TypeSpeechStarted           = "input_audio_buffer.speech_started"
	TypeSpeechStopped           = "input_audio_buffer.speech_stopped"
	TypeBufferCommitted         = "input_audio_buffer.committed"
	TypeItemCreated             = "conversation.item.created"
	TypeResponseCreated         = "response.created"
	TypeTextDelta               = "response.text.delta"
	TypeTextDone                = "response.text.done"
	TypeAudioTranscriptDelta    = "response.audio_transcript.delta"
	TypeAudioTranscriptDone     = "response.audio_transcript.done"
	TypeAudioDelta              = "response.audio.delta"
	TypeAudioDone               = "response.audio.done"
	TypeResponseDone            = "response.done"
	TypeInputTranscriptionDelta = "conversation.item.input_audio_transcription.delta"
	TypeInputTranscriptionDone  = "conversation.item.input_audio_transcription.completed"
	TypeRateLimitsUpdated       = "rate_limits.updated"
	TypeError                   = "error"
)

var (
	ErrEmptyFrame  = errors.New("empty frame")
	ErrMissingType = errors.New("event without type")
)

// ServerEvent is one inbound event. Only the fields the client reads are
// decoded; Raw keeps the whole frame for logging.
type ServerEvent struct {
	Type       string       `json:"type"`
	EventID    string       `json:"event_id,omitempty"`
	Delta      string       `json:"delta,omitempty"`
	Text       string       `json:"text,omitempty"`
	Transcript string       `json:"transcript,omitempty"`
	Item       *Item        `json:"item,omitempty"`
	Error      *ErrorDetail `json:"error,omitempty"`

	Raw json.RawMessage `json:"-"`
}

type Item struct {
	ID     string `json:"id,omitempty"`
	Type   string `json:"type,omitempty"`
	Role   string `json:"role,omitempty"`
	Status string `json:"status,omitempty"`
}

type ErrorDetail struct {
	Type    string    `json:"type,omitempty"`
	Code    ErrorCode `json:"code,omitempty"`
	Message string    `json:"message,omitempty"`
}

// Parse decodes one frame. A frame that is not a JSON object or lacks a
// type is rejected.
func Parse(data []byte) (ServerEvent, error) {
	if len(data) == 0 {
		return ServerEvent{}, ErrEmptyFrame
	}
	var ev ServerEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return ServerEvent{}, fmt.Errorf("decode event: %w", err)
	}
	if ev.Type == "" {
		return ServerEvent{}, ErrMissingType
	}
	ev.Raw = append(json.RawMessage(nil), data...)
	return ev, nil
}

func newEventID() string {
	return "evt_" + uuid.NewString()
}

// ErrorCode is the service error code. It is usually a string; any other
// JSON value is kept as its literal text.
type ErrorCode string

func (c *ErrorCode) UnmarshalJSON(b []byte) error {
	switch {
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = ErrorCode(s)
	case string(b) == "null":
		*c = ""
	default:
		*c = ErrorCode(b)
	}
	return nil
}
