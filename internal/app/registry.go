package app

import (
	"context"
	"sync"

	"github.com/dkeye/rtvoice/internal/core"
	"github.com/dkeye/rtvoice/internal/domain"
	"github.com/rs/zerolog/log"
)

// Session is the part of a voice session the registry needs to manage it.
type Session interface {
	State() domain.ConnectionState
	Disconnect()
}

type sessionEntry struct {
	Session Session
	Cancel  context.CancelFunc
}

// Registry tracks the live UI clients by sid. A client opening a second
// bridge replaces (and cancels) its first one.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*sessionEntry
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[core.SessionID]*sessionEntry),
	}
}

func (r *Registry) Bind(sid core.SessionID, sess Session, cancel context.CancelFunc) {
	r.mu.Lock()
	old, replaced := r.sessions[sid]
	r.sessions[sid] = &sessionEntry{Session: sess, Cancel: cancel}
	r.mu.Unlock()

	if replaced && old.Cancel != nil {
		old.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Bool("replaced", replaced).Msg("bound session")
}

func (r *Registry) Get(sid core.SessionID) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[sid]; ok {
		return e.Session, true
	}
	return nil, false
}

// Unbind removes sid only while it is still bound to sess.
func (r *Registry) Unbind(sid core.SessionID, sess Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok || e.Session != sess {
		return false
	}
	delete(r.sessions, sid)
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("unbind session")
	return true
}

func (r *Registry) Cancel(sid core.SessionID) bool {
	r.mu.RLock()
	e, ok := r.sessions[sid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("canceled session")
	return true
}

// CancelAll cancels every bound client and disconnects its session.
func (r *Registry) CancelAll() {
	r.mu.Lock()
	entries := make([]*sessionEntry, 0, len(r.sessions))
	for sid, e := range r.sessions {
		entries = append(entries, e)
		delete(r.sessions, sid)
	}
	r.mu.Unlock()

	for _, e := range entries {
		if e.Cancel != nil {
			e.Cancel()
		}
		e.Session.Disconnect()
	}
	log.Info().Str("module", "app.registry").Int("count", len(entries)).Msg("canceled all sessions")
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
