package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"quizroom-service/internal/domain"
)

// SessionStore is the in-process implementation of app.SessionStore: a keyed
// session map with per-session subscriber broadcast and a registry of
// disconnect-triggered cleanup operations keyed by connection id.
type SessionStore struct {
	log zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]domain.Session
	byCode   map[string]string
	subs     map[string]map[int]func(domain.Session)
	nextSub  int
	cleanups map[string]func(context.Context)
}

func NewSessionStore(log zerolog.Logger) *SessionStore {
	return &SessionStore{
		log:      log,
		sessions: make(map[string]domain.Session),
		byCode:   make(map[string]string),
		subs:     make(map[string]map[int]func(domain.Session)),
		cleanups: make(map[string]func(context.Context)),
	}
}

func (s *SessionStore) Get(_ context.Context, sessionID string) (domain.Session, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return domain.Session{}, false, nil
	}
	return sess.Clone(), true, nil
}

func (s *SessionStore) GetByCode(_ context.Context, joinCode string) (domain.Session, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byCode[strings.ToUpper(joinCode)]
	if !ok {
		return domain.Session{}, false, nil
	}
	sess, ok := s.sessions[id]
	if !ok {
		return domain.Session{}, false, nil
	}
	return sess.Clone(), true, nil
}

func (s *SessionStore) Create(_ context.Context, session domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session.Clone()
	s.byCode[strings.ToUpper(session.JoinCode)] = session.ID
	return nil
}

func (s *SessionStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if ok {
		delete(s.sessions, sessionID)
		delete(s.byCode, strings.ToUpper(sess.JoinCode))
		delete(s.subs, sessionID)
	}
	s.mu.Unlock()
	return nil
}

func (s *SessionStore) Update(_ context.Context, sessionID string, mutate func(*domain.Session) error) error {
	s.mu.Lock()
	current, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return domain.ErrSessionNotFound
	}

	// Mutate a working copy; nothing is committed or broadcast on error.
	working := current.Clone()
	if err := mutate(&working); err != nil {
		s.mu.Unlock()
		return err
	}
	s.sessions[sessionID] = working

	var fns []func(domain.Session)
	for _, fn := range s.subs[sessionID] {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	// Deliver outside the lock so a subscriber can call back into the store.
	for _, fn := range fns {
		fn(working.Clone())
	}
	return nil
}

func (s *SessionStore) Subscribe(sessionID string, fn func(domain.Session)) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return nil, domain.ErrSessionNotFound
	}
	if s.subs[sessionID] == nil {
		s.subs[sessionID] = make(map[int]func(domain.Session))
	}
	id := s.nextSub
	s.nextSub++
	s.subs[sessionID][id] = fn

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if subs, ok := s.subs[sessionID]; ok {
			delete(subs, id)
			if len(subs) == 0 {
				delete(s.subs, sessionID)
			}
		}
	}
	return cancel, nil
}

func (s *SessionStore) RegisterDisconnectCleanup(connID string, op func(ctx context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanups[connID] = op
}

func (s *SessionStore) CancelDisconnectCleanup(connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cleanups, connID)
}

func (s *SessionStore) FireDisconnect(connID string) {
	s.mu.Lock()
	op, ok := s.cleanups[connID]
	delete(s.cleanups, connID)
	s.mu.Unlock()
	if !ok {
		return
	}
	s.log.Debug().Str("conn", connID).Msg("running disconnect cleanup")
	op(context.Background())
}
