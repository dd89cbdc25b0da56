package app

import (
	"context"

	"quizroom-service/internal/domain"
)

// SessionStore is the shared session record store the engine coordinates
// through. Implementations broadcast the full session to every subscriber on
// each successful update and run registered cleanup operations when a
// connection drops, so destructive cleanup happens even if the client process
// died outright.
type SessionStore interface {
	Get(ctx context.Context, sessionID string) (domain.Session, bool, error)
	GetByCode(ctx context.Context, joinCode string) (domain.Session, bool, error)
	Create(ctx context.Context, session domain.Session) error
	Delete(ctx context.Context, sessionID string) error

	// Update applies mutate atomically against the current session. If mutate
	// returns an error nothing is committed or broadcast. A missing session
	// yields domain.ErrSessionNotFound.
	Update(ctx context.Context, sessionID string, mutate func(*domain.Session) error) error

	// Subscribe delivers a snapshot of the session to fn after every committed
	// update. The returned cancel must be called to release the subscription.
	Subscribe(sessionID string, fn func(domain.Session)) (cancel func(), err error)

	// RegisterDisconnectCleanup installs op to run if the connection identified
	// by connID drops, replacing any previously installed op for that connID.
	RegisterDisconnectCleanup(connID string, op func(ctx context.Context))
	CancelDisconnectCleanup(connID string)
	// FireDisconnect runs and removes the pending cleanup for connID. The
	// transport calls it when the underlying socket closes.
	FireDisconnect(connID string)
}

// Notifier is a low-latency signal channel independent of the session store's
// change feed, used for soft signals such as kick notifications. The store
// mutation stays the source of truth; notifications are a courtesy.
type Notifier interface {
	Publish(ctx context.Context, sessionID, event string, payload any) error
	Subscribe(ctx context.Context, sessionID, event string, handler func(payload []byte)) (cancel func(), err error)
}
