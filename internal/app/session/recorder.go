package session

import (
	"sync"

	"github.com/dkeye/rtvoice/internal/domain"
)

// Recorder is an Observer that keeps every status and folds message
// notifications into the conversation a renderer would show.
type Recorder struct {
	mu       sync.Mutex
	statuses []domain.Status
	messages []domain.Message
	live     map[domain.Role]int
}

func NewRecorder() *Recorder {
	return &Recorder{live: make(map[domain.Role]int)}
}

func (r *Recorder) OnStatus(s domain.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s)
}

func (r *Recorder) OnMessage(m domain.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx, ok := r.live[m.Role]
	switch m.Mode {
	case domain.ModeAppend:
		if ok {
			r.messages[idx].Content += m.Content
			return
		}
		r.live[m.Role] = len(r.messages)
		r.messages = append(r.messages, domain.Message{Role: m.Role, Content: m.Content, Mode: domain.ModeAppend})
	default:
		delete(r.live, m.Role)
		if ok {
			r.messages[idx] = domain.Message{Role: m.Role, Content: m.Content, Mode: domain.ModeComplete}
			return
		}
		r.messages = append(r.messages, domain.Message{Role: m.Role, Content: m.Content, Mode: domain.ModeComplete})
	}
}

func (r *Recorder) Statuses() []domain.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Status(nil), r.statuses...)
}

// Messages returns the conversation, optionally filtered to roles.
func (r *Recorder) Messages(roles ...domain.Role) []domain.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(roles) == 0 {
		return append([]domain.Message(nil), r.messages...)
	}
	var out []domain.Message
	for _, m := range r.messages {
		for _, role := range roles {
			if m.Role == role {
				out = append(out, m)
				break
			}
		}
	}
	return out
}

// Last returns the most recent status, if any.
func (r *Recorder) Last() (domain.Status, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.statuses) == 0 {
		return domain.Status{}, false
	}
	return r.statuses[len(r.statuses)-1], true
}
