package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/dmorgan81/bananaconsole/internal/console"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

const (
	sessionCookie = "session"

	DefaultIdleTimeout = 2 * time.Hour
	DefaultMaxSessions = 1000
)

type session struct {
	console *console.Console
	seen    time.Time
}

// Sessions maps browser sessions to their own console. Nothing is persisted:
// a restart starts every conversation over. Sessions idle for longer than
// IdleTimeout are dropped, and at MaxSessions the least recently seen one
// makes room for a new one. A console with a generation in flight is never
// dropped.
type Sessions struct {
	IdleTimeout time.Duration
	MaxSessions int

	generator console.Generator
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

func NewSessions(generator console.Generator) *Sessions {
	return &Sessions{
		IdleTimeout: DefaultIdleTimeout,
		MaxSessions: DefaultMaxSessions,
		generator:   generator,
		now:         time.Now,
		sessions:    map[string]*session{},
	}
}

// Console returns the console for the request's session cookie, creating a
// new session (and setting the cookie on w) when there is none.
func (s *Sessions) Console(w http.ResponseWriter, r *http.Request) *console.Console {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if cookie, err := r.Cookie(sessionCookie); err == nil {
		if sess, ok := s.sessions[cookie.Value]; ok && !s.expired(sess, now) {
			sess.seen = now
			return sess.console
		}
	}

	s.evictLocked(now)
	id := uuid.NewString()
	c := console.New(s.generator)
	s.sessions[id] = &session{console: c, seen: now}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return c
}

func (s *Sessions) expired(sess *session, now time.Time) bool {
	return now.Sub(sess.seen) > s.IdleTimeout && !sess.console.Busy()
}

// evictLocked makes room for one more session. Callers hold s.mu.
func (s *Sessions) evictLocked(now time.Time) {
	for id, sess := range s.sessions {
		if s.expired(sess, now) {
			delete(s.sessions, id)
		}
	}
	if len(s.sessions) < s.MaxSessions {
		return
	}

	idle := lo.PickBy(s.sessions, func(_ string, sess *session) bool {
		return !sess.console.Busy()
	})
	if len(idle) == 0 {
		return
	}
	oldest := lo.MinBy(lo.Keys(idle), func(a, b string) bool {
		return idle[a].seen.Before(idle[b].seen)
	})
	delete(s.sessions, oldest)
}

func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
