package app

import (
	"context"

	"github.com/rs/zerolog"

	"quizroom-service/internal/domain"
)

// Notifier events. The store mutation is always authoritative; these signals
// only let affected clients find out promptly.
const (
	// EventKicked is published when a player is removed by the host.
	EventKicked = "kicked"
	// EventSessionEnded is published when the session is torn down.
	EventSessionEnded = "session_ended"
)

// KickedPayload is the notifier payload for EventKicked.
type KickedPayload struct {
	PlayerID string `json:"playerId"`
}

// Presence manages disconnect-triggered cleanup and host-authorized removal.
type Presence struct {
	store    SessionStore
	notifier Notifier
	log      zerolog.Logger
}

func NewPresence(store SessionStore, notifier Notifier, log zerolog.Logger) *Presence {
	return &Presence{store: store, notifier: notifier, log: log}
}

// RegisterCleanup installs the disconnect operation for a connection: hosts
// tear down the whole session, players remove only their own entry. It
// replaces any operation previously installed for the same connection.
func (p *Presence) RegisterCleanup(connID, sessionID, playerID string, isHost bool) {
	if isHost {
		p.store.RegisterDisconnectCleanup(connID, func(ctx context.Context) {
			if err := p.store.Delete(ctx, sessionID); err != nil {
				p.log.Error().Err(err).Str("session", sessionID).Msg("host disconnect cleanup failed")
				return
			}
			if err := p.notifier.Publish(ctx, sessionID, EventSessionEnded, struct{}{}); err != nil {
				p.log.Warn().Err(err).Str("session", sessionID).Msg("session end notification failed")
			}
			p.log.Info().Str("session", sessionID).Msg("session removed after host disconnect")
		})
		return
	}
	p.store.RegisterDisconnectCleanup(connID, func(ctx context.Context) {
		err := p.store.Update(ctx, sessionID, func(s *domain.Session) error {
			delete(s.Players, playerID)
			return nil
		})
		if err != nil {
			p.log.Error().Err(err).Str("session", sessionID).Str("player", playerID).Msg("player disconnect cleanup failed")
		}
	})
}

// CancelCleanup removes the pending disconnect operation. Called on any
// intentional departure so navigating away does not destroy state.
func (p *Presence) CancelCleanup(connID string) {
	p.store.CancelDisconnectCleanup(connID)
}

// Kick removes targetID from the session. Only the host may kick; kicking an
// absent player is an idempotent no-op. The removed player is additionally
// signalled out-of-band via the notifier.
func (p *Presence) Kick(ctx context.Context, sessionID, callerID, targetID string) error {
	removed := false
	err := p.store.Update(ctx, sessionID, func(s *domain.Session) error {
		if s.HostID != callerID {
			p.log.Warn().Str("session", sessionID).Str("caller", callerID).Msg("kick rejected, caller is not host")
			return domain.ErrNotHost
		}
		if _, ok := s.Players[targetID]; !ok {
			return nil
		}
		delete(s.Players, targetID)
		removed = true
		return nil
	})
	if err != nil || !removed {
		return err
	}
	if err := p.notifier.Publish(ctx, sessionID, EventKicked, KickedPayload{PlayerID: targetID}); err != nil {
		// The courtesy signal is best effort; the removal already committed.
		p.log.Warn().Err(err).Str("session", sessionID).Str("player", targetID).Msg("kick notification failed")
	}
	return nil
}
