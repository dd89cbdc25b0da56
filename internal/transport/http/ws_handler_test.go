package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"quizroom-service/internal/app"
	"quizroom-service/internal/domain"
	"quizroom-service/internal/infra/memory"
	"quizroom-service/internal/questions"
)

type wsFixture struct {
	service *app.Service
	store   app.SessionStore
	server  *httptest.Server
	session domain.Session
}

func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()
	log := zerolog.Nop()
	clock := clockwork.NewRealClock()
	store := memory.NewSessionStore(log)
	notifier := memory.NewNotifier()
	service := app.NewService(store, questions.NewStaticBank(), clock, log, app.DefaultServiceConfig())
	machine := app.NewMachine(store, clock, log)
	ledger := app.NewLedger(store, clock, log)
	presence := app.NewPresence(store, notifier, log)
	watcher := app.NewWatcher(machine, store, clock, log)
	handler := NewWSHandler(service, machine, ledger, presence, watcher, store, notifier, clock, log)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", handler.ServeWS)
	mux.HandleFunc("/sessions", handler.CreateSession)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	session, err := service.CreateSession(context.Background(), app.CreateSessionRequest{
		HostNickname:  "Host",
		Topic:         "general",
		Difficulty:    domain.DifficultyEasy,
		QuestionCount: 2,
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return &wsFixture{service: service, store: store, server: server, session: session}
}

func (f *wsFixture) dial(t *testing.T, name, playerID string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws?code=" + f.session.JoinCode + "&name=" + name
	if playerID != "" {
		u += "&playerId=" + playerID
	}
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", name, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readUntil skips unrelated frames (timers, interleaved snapshots) until one
// of the wanted type arrives.
func readUntil(conn *websocket.Conn, t *testing.T, want string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		var msg struct {
			Type    string         `json:"type"`
			Payload map[string]any `json:"payload"`
		}
		_ = conn.SetReadDeadline(deadline)
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read waiting for %s: %v", want, err)
		}
		if msg.Type == want {
			return msg.Payload
		}
	}
	t.Fatalf("timed out waiting for %s", want)
	return nil
}

// readUntilSessionStatus waits for a session snapshot with the given status.
func readUntilSessionStatus(conn *websocket.Conn, t *testing.T, status string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		payload := readUntil(conn, t, "session")
		if payload["status"] == status {
			return payload
		}
	}
	t.Fatalf("timed out waiting for session status %s", status)
	return nil
}

func TestWebSocketAnswerFlow(t *testing.T) {
	f := newWSFixture(t)

	host := f.dial(t, "Host", f.session.HostID)
	readUntil(host, t, "joined")

	player := f.dial(t, "Alice", "")
	joined := readUntil(player, t, "joined")
	playerID, _ := joined["playerId"].(string)
	if playerID == "" {
		t.Fatal("expected a player id in the joined frame")
	}

	if err := host.WriteJSON(map[string]any{"type": "start"}); err != nil {
		t.Fatalf("write start: %v", err)
	}
	readUntilSessionStatus(player, t, "active")

	correct := f.session.Questions[0].CorrectOption
	err := player.WriteJSON(map[string]any{
		"type":    "answer",
		"payload": map[string]any{"option": correct},
	})
	if err != nil {
		t.Fatalf("write answer: %v", err)
	}

	result := readUntil(player, t, "answerResult")
	if result["correct"] != true {
		t.Fatalf("expected a correct answer result, got %v", result)
	}
	score, _ := result["score"].(float64)
	if score < 1000 {
		t.Fatalf("expected at least the base score, got %v", result["score"])
	}
}

func TestWebSocketNonHostCommandsAreDropped(t *testing.T) {
	f := newWSFixture(t)

	host := f.dial(t, "Host", f.session.HostID)
	readUntil(host, t, "joined")
	player := f.dial(t, "Alice", "")
	readUntil(player, t, "joined")

	if err := player.WriteJSON(map[string]any{"type": "start"}); err != nil {
		t.Fatalf("write start: %v", err)
	}

	// No error frame, no transition: the command vanishes.
	_ = player.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	for {
		if err := player.ReadJSON(&msg); err != nil {
			break
		}
		if msg.Type == "error" {
			t.Fatalf("expected silence, got error frame %v", msg.Payload)
		}
		if msg.Type == "session" && msg.Payload["status"] == "active" {
			t.Fatal("non-host start transitioned the session")
		}
	}

	s, _, err := f.service.Join(context.Background(), app.JoinRequest{JoinCode: f.session.JoinCode, PlayerID: f.session.HostID, Nickname: "Host"})
	if err != nil {
		t.Fatalf("re-read session: %v", err)
	}
	if s.Status != domain.StatusWaiting {
		t.Fatalf("expected session still waiting, got %s", s.Status)
	}
}

func TestWebSocketKick(t *testing.T) {
	f := newWSFixture(t)

	host := f.dial(t, "Host", f.session.HostID)
	readUntil(host, t, "joined")
	player := f.dial(t, "Alice", "")
	joined := readUntil(player, t, "joined")
	playerID, _ := joined["playerId"].(string)

	err := host.WriteJSON(map[string]any{
		"type":    "kick",
		"payload": map[string]any{"playerId": playerID},
	})
	if err != nil {
		t.Fatalf("write kick: %v", err)
	}

	kicked := readUntil(player, t, "kicked")
	if kicked["playerId"] != playerID {
		t.Fatalf("expected kick notice for %s, got %v", playerID, kicked)
	}
}

func TestWebSocketHostLeaveEndsSession(t *testing.T) {
	f := newWSFixture(t)

	host := f.dial(t, "Host", f.session.HostID)
	readUntil(host, t, "joined")
	player := f.dial(t, "Alice", "")
	readUntil(player, t, "joined")

	if err := host.WriteJSON(map[string]any{"type": "leave"}); err != nil {
		t.Fatalf("write leave: %v", err)
	}

	readUntil(player, t, "sessionEnded")
}

// Broadcast callbacks from other connections' updates keep firing while a
// connection tears down; churning players against a busy session must never
// take the server down.
func TestWebSocketChurnDuringBroadcasts(t *testing.T) {
	f := newWSFixture(t)
	ctx := context.Background()

	host := f.dial(t, "Host", f.session.HostID)
	readUntil(host, t, "joined")

	stop := make(chan struct{})
	updaterDone := make(chan struct{})
	go func() {
		defer close(updaterDone)
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			_ = f.store.Update(ctx, f.session.ID, func(s *domain.Session) error {
				s.Topic = fmt.Sprintf("topic-%d", i)
				return nil
			})
		}
	}()

	for i := 0; i < 25; i++ {
		conn := f.dial(t, fmt.Sprintf("p%d", i), "")
		readUntil(conn, t, "joined")
		if i%2 == 0 {
			if err := conn.WriteJSON(map[string]any{"type": "leave"}); err != nil {
				t.Fatalf("write leave: %v", err)
			}
		}
		_ = conn.Close()
	}
	close(stop)
	<-updaterDone

	// The session and the host's connection survived the churn.
	if _, ok, err := f.store.Get(ctx, f.session.ID); err != nil || !ok {
		t.Fatalf("session lost during churn: ok=%v err=%v", ok, err)
	}
	if err := host.WriteJSON(map[string]any{"type": "start"}); err != nil {
		t.Fatalf("write start: %v", err)
	}
	readUntilSessionStatus(host, t, "active")
}

// trackingStore records disconnect-cleanup registry traffic and fails every
// subscription attempt.
type trackingStore struct {
	app.SessionStore
	mu         sync.Mutex
	registered []string
	cancelled  []string
}

func (s *trackingStore) Subscribe(string, func(domain.Session)) (func(), error) {
	return nil, errors.New("subscriptions unavailable")
}

func (s *trackingStore) RegisterDisconnectCleanup(connID string, op func(context.Context)) {
	s.mu.Lock()
	s.registered = append(s.registered, connID)
	s.mu.Unlock()
	s.SessionStore.RegisterDisconnectCleanup(connID, op)
}

func (s *trackingStore) CancelDisconnectCleanup(connID string) {
	s.mu.Lock()
	s.cancelled = append(s.cancelled, connID)
	s.mu.Unlock()
	s.SessionStore.CancelDisconnectCleanup(connID)
}

func TestWebSocketSubscribeFailureReleasesCleanup(t *testing.T) {
	log := zerolog.Nop()
	clock := clockwork.NewRealClock()
	store := &trackingStore{SessionStore: memory.NewSessionStore(log)}
	notifier := memory.NewNotifier()
	service := app.NewService(store, questions.NewStaticBank(), clock, log, app.DefaultServiceConfig())
	machine := app.NewMachine(store, clock, log)
	ledger := app.NewLedger(store, clock, log)
	presence := app.NewPresence(store, notifier, log)
	watcher := app.NewWatcher(machine, store, clock, log)
	handler := NewWSHandler(service, machine, ledger, presence, watcher, store, notifier, clock, log)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", handler.ServeWS)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	session, err := service.CreateSession(context.Background(), app.CreateSessionRequest{
		HostNickname:  "Host",
		Topic:         "general",
		Difficulty:    domain.DifficultyEasy,
		QuestionCount: 1,
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	u := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?code=" + session.JoinCode + "&name=Alice"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	readUntil(conn, t, "error")

	deadline := time.Now().Add(2 * time.Second)
	for {
		store.mu.Lock()
		registered, cancelled := len(store.registered), len(store.cancelled)
		store.mu.Unlock()
		if registered == 1 && cancelled == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("cleanup registration not released: registered=%d cancelled=%d", registered, cancelled)
		}
		time.Sleep(10 * time.Millisecond)
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.registered[0] != store.cancelled[0] {
		t.Fatalf("cancelled %q, registered %q", store.cancelled[0], store.registered[0])
	}
}

func TestCreateSessionEndpoint(t *testing.T) {
	f := newWSFixture(t)

	resp, err := http.Post(f.server.URL+"/sessions", "application/json",
		strings.NewReader(`{"hostNickname":"Host","topic":"general","difficulty":"easy","questionCount":3}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	bad, err := http.Post(f.server.URL+"/sessions", "application/json",
		strings.NewReader(`{"hostNickname":"","topic":"general","difficulty":"easy","questionCount":3}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank nickname, got %d", bad.StatusCode)
	}
}

func TestWebSocketRejectsUnknownCode(t *testing.T) {
	f := newWSFixture(t)

	u := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws?code=ZZZZZZ&name=Alice"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	readUntil(conn, t, "error")
}
