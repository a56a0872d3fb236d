package session

import (
	"strings"

	"github.com/dkeye/rtvoice/internal/domain"
)

// TranscriptBuffer accumulates the in-progress utterance of one role.
// At most one role is live at a time.
type TranscriptBuffer struct {
	role domain.Role
	text strings.Builder
	live bool
}

func (b *TranscriptBuffer) Live() bool        { return b.live }
func (b *TranscriptBuffer) Role() domain.Role { return b.role }
func (b *TranscriptBuffer) String() string    { return b.text.String() }

// Append adds a fragment for role. If another role was live its content is
// flushed first and returned with ok set.
func (b *TranscriptBuffer) Append(role domain.Role, fragment string) (flushed domain.Message, ok bool) {
	if b.live && b.role != role {
		flushed, ok = b.Flush()
	}
	if !b.live {
		b.role = role
		b.live = true
	}
	b.text.WriteString(fragment)
	return flushed, ok
}

// Flush ends the live utterance and returns it as a complete message.
// ok is false when nothing was live or the utterance was empty.
func (b *TranscriptBuffer) Flush() (domain.Message, bool) {
	if !b.live {
		return domain.Message{}, false
	}
	msg := domain.Message{Role: b.role, Content: b.text.String(), Mode: domain.ModeComplete}
	b.Reset()
	return msg, msg.Content != ""
}

func (b *TranscriptBuffer) Reset() {
	b.text.Reset()
	b.role = ""
	b.live = false
}
