package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"quizroom-service/internal/app"
	"quizroom-service/internal/domain"
)

// SessionStore decorates an inner app.SessionStore with a Redis mirror.
// Notes:
//   - The inner (in-process) store stays the broadcast source of truth, so
//     subscriber and disconnect-cleanup semantics are unchanged.
//   - Redis holds a JSON snapshot per session plus a liveness TTL, so an
//     operator or a sibling instance can inspect live sessions.
//   - Mirror writes are best effort; a Redis hiccup never blocks a transition.
type SessionStore struct {
	inner  app.SessionStore
	client *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

func NewSessionStore(inner app.SessionStore, client *redis.Client, ttl time.Duration, log zerolog.Logger) *SessionStore {
	return &SessionStore{inner: inner, client: client, ttl: ttl, log: log}
}

func (s *SessionStore) Get(ctx context.Context, sessionID string) (domain.Session, bool, error) {
	return s.inner.Get(ctx, sessionID)
}

func (s *SessionStore) GetByCode(ctx context.Context, joinCode string) (domain.Session, bool, error) {
	return s.inner.GetByCode(ctx, joinCode)
}

func (s *SessionStore) Create(ctx context.Context, session domain.Session) error {
	if err := s.inner.Create(ctx, session); err != nil {
		return err
	}
	s.mirror(ctx, session)
	return nil
}

func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.inner.Delete(ctx, sessionID); err != nil {
		return err
	}
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		s.log.Warn().Err(err).Str("session", sessionID).Msg("redis mirror delete failed")
	}
	return nil
}

func (s *SessionStore) Update(ctx context.Context, sessionID string, mutate func(*domain.Session) error) error {
	if err := s.inner.Update(ctx, sessionID, mutate); err != nil {
		return err
	}
	if sess, ok, err := s.inner.Get(ctx, sessionID); err == nil && ok {
		s.mirror(ctx, sess)
	}
	return nil
}

func (s *SessionStore) Subscribe(sessionID string, fn func(domain.Session)) (func(), error) {
	return s.inner.Subscribe(sessionID, fn)
}

func (s *SessionStore) RegisterDisconnectCleanup(connID string, op func(ctx context.Context)) {
	s.inner.RegisterDisconnectCleanup(connID, op)
}

func (s *SessionStore) CancelDisconnectCleanup(connID string) {
	s.inner.CancelDisconnectCleanup(connID)
}

func (s *SessionStore) FireDisconnect(connID string) {
	s.inner.FireDisconnect(connID)
}

func (s *SessionStore) mirror(ctx context.Context, session domain.Session) {
	data, err := json.Marshal(session)
	if err != nil {
		s.log.Warn().Err(err).Str("session", session.ID).Msg("redis mirror marshal failed")
		return
	}
	if err := s.client.Set(ctx, s.key(session.ID), data, s.ttl).Err(); err != nil {
		s.log.Warn().Err(err).Str("session", session.ID).Msg("redis mirror write failed")
	}
}

func (s *SessionStore) key(sessionID string) string {
	return "quiz:session:" + sessionID
}
