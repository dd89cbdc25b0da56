package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"quizroom-service/internal/app"
	"quizroom-service/internal/domain"
	"quizroom-service/internal/infra/memory"
)

func newPresenceFixture(t *testing.T) (*app.Presence, *memory.SessionStore, *memory.Notifier) {
	t.Helper()
	store := memory.NewSessionStore(zerolog.Nop())
	notifier := memory.NewNotifier()
	presence := app.NewPresence(store, notifier, zerolog.Nop())

	session := domain.Session{
		ID:       "s1",
		JoinCode: "ABC234",
		Status:   domain.StatusWaiting,
		HostID:   testHostID,
		Players: map[string]domain.Player{
			testHostID:   {ID: testHostID, Nickname: "Host", IsHost: true},
			testPlayerID: {ID: testPlayerID, Nickname: "Alice"},
		},
	}
	if err := store.Create(context.Background(), session); err != nil {
		t.Fatalf("create session: %v", err)
	}
	return presence, store, notifier
}

func TestHostDisconnectDeletesSession(t *testing.T) {
	presence, store, notifier := newPresenceFixture(t)
	ctx := context.Background()

	ended := false
	if _, err := notifier.Subscribe(ctx, "s1", app.EventSessionEnded, func([]byte) {
		ended = true
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	presence.RegisterCleanup("conn-host", "s1", testHostID, true)
	store.FireDisconnect("conn-host")

	if _, ok, err := store.Get(ctx, "s1"); err != nil || ok {
		t.Fatalf("expected session gone, ok=%v err=%v", ok, err)
	}
	if !ended {
		t.Fatal("expected session end notification")
	}
}

func TestPlayerDisconnectRemovesOnlyThatPlayer(t *testing.T) {
	presence, store, _ := newPresenceFixture(t)
	ctx := context.Background()

	presence.RegisterCleanup("conn-alice", "s1", testPlayerID, false)
	store.FireDisconnect("conn-alice")

	s, ok, err := store.Get(ctx, "s1")
	if err != nil || !ok {
		t.Fatalf("expected session to survive, ok=%v err=%v", ok, err)
	}
	if _, present := s.Players[testPlayerID]; present {
		t.Fatal("expected player removed")
	}
	if _, present := s.Players[testHostID]; !present {
		t.Fatal("expected host untouched")
	}
}

func TestCancelCleanupDisablesDisconnectOp(t *testing.T) {
	presence, store, _ := newPresenceFixture(t)

	presence.RegisterCleanup("conn-alice", "s1", testPlayerID, false)
	presence.CancelCleanup("conn-alice")
	store.FireDisconnect("conn-alice")

	s := getSession(t, store, "s1")
	if _, present := s.Players[testPlayerID]; !present {
		t.Fatal("expected player still in session after cancelled cleanup")
	}
}

func TestRegisterCleanupReplacesPreviousOp(t *testing.T) {
	presence, store, _ := newPresenceFixture(t)

	// A reconnect reuses the connection slot with a player-scoped op; the
	// stale host-scoped op must not fire.
	presence.RegisterCleanup("conn-1", "s1", testHostID, true)
	presence.RegisterCleanup("conn-1", "s1", testPlayerID, false)
	store.FireDisconnect("conn-1")

	s := getSession(t, store, "s1")
	if s.ID != "s1" {
		t.Fatal("expected session to survive")
	}
	if _, present := s.Players[testPlayerID]; present {
		t.Fatal("expected the replacement op to remove the player")
	}
}

func TestKickRemovesPlayerAndNotifies(t *testing.T) {
	presence, store, notifier := newPresenceFixture(t)
	ctx := context.Background()

	var kicked app.KickedPayload
	if _, err := notifier.Subscribe(ctx, "s1", app.EventKicked, func(data []byte) {
		if err := json.Unmarshal(data, &kicked); err != nil {
			t.Errorf("decode kick payload: %v", err)
		}
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := presence.Kick(ctx, "s1", testHostID, testPlayerID); err != nil {
		t.Fatalf("kick: %v", err)
	}
	s := getSession(t, store, "s1")
	if _, present := s.Players[testPlayerID]; present {
		t.Fatal("expected player removed")
	}
	if kicked.PlayerID != testPlayerID {
		t.Fatalf("expected kick notification for %s, got %+v", testPlayerID, kicked)
	}
}

func TestKickByNonHostIsRejected(t *testing.T) {
	presence, store, _ := newPresenceFixture(t)

	err := presence.Kick(context.Background(), "s1", testPlayerID, testHostID)
	if !errors.Is(err, domain.ErrNotHost) {
		t.Fatalf("expected ErrNotHost, got %v", err)
	}
	s := getSession(t, store, "s1")
	if _, present := s.Players[testHostID]; !present {
		t.Fatal("expected host untouched")
	}
}

func TestKickAbsentPlayerIsIdempotent(t *testing.T) {
	presence, _, notifier := newPresenceFixture(t)
	ctx := context.Background()

	notified := false
	if _, err := notifier.Subscribe(ctx, "s1", app.EventKicked, func([]byte) {
		notified = true
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := presence.Kick(ctx, "s1", testHostID, "ghost"); err != nil {
		t.Fatalf("kick absent player: %v", err)
	}
	if notified {
		t.Fatal("expected no notification for an absent player")
	}
}
