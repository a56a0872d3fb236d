package protocol

import "time"

type TurnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold"`
	PrefixPaddingMs   int64   `json:"prefix_padding_ms"`
	SilenceDurationMs int64   `json:"silence_duration_ms"`
}

type Transcription struct {
	Model string `json:"model"`
}

type Session struct {
	Modalities              []string       `json:"modalities"`
	Instructions            string         `json:"instructions"`
	Voice                   string         `json:"voice"`
	InputAudioFormat        string         `json:"input_audio_format"`
	OutputAudioFormat       string         `json:"output_audio_format"`
	InputAudioTranscription *Transcription `json:"input_audio_transcription,omitempty"`
	TurnDetection           TurnDetection  `json:"turn_detection"`
}

// SessionUpdate is the configuration event sent once the channel opens.
type SessionUpdate struct {
	Type    string  `json:"type"`
	EventID string  `json:"event_id,omitempty"`
	Session Session `json:"session"`
}

// SessionOptions are the tunables behind a SessionUpdate.
type SessionOptions struct {
	Instructions       string
	Voice              string
	InputAudioFormat   string
	OutputAudioFormat  string
	TranscriptionModel string
	TurnDetectionType  string
	Threshold          float64
	PrefixPadding      time.Duration
	SilenceDuration    time.Duration
}

func DefaultSessionOptions() SessionOptions {
	return SessionOptions{
		Instructions:      "You are a helpful AI assistant. Respond naturally and conversationally.",
		Voice:             "alloy",
		InputAudioFormat:  "pcm16",
		OutputAudioFormat: "pcm16",
		TurnDetectionType: "server_vad",
		Threshold:         0.8,
		PrefixPadding:     300 * time.Millisecond,
		SilenceDuration:   500 * time.Millisecond,
	}
}

func NewSessionUpdate(o SessionOptions) SessionUpdate {
	s := Session{
		Modalities:        []string{"text", "audio"},
		Instructions:      o.Instructions,
		Voice:             o.Voice,
		InputAudioFormat:  o.InputAudioFormat,
		OutputAudioFormat: o.OutputAudioFormat,
		TurnDetection: TurnDetection{
			Type:              o.TurnDetectionType,
			Threshold:         o.Threshold,
			PrefixPaddingMs:   o.PrefixPadding.Milliseconds(),
			SilenceDurationMs: o.SilenceDuration.Milliseconds(),
		},
	}
	if o.TranscriptionModel != "" {
		s.InputAudioTranscription = &Transcription{Model: o.TranscriptionModel}
	}
	return SessionUpdate{
		Type:    TypeSessionUpdate,
		EventID: newEventID(),
		Session: s,
	}
}
