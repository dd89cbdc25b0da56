package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"quizroom-service/internal/app"
	"quizroom-service/internal/domain"
)

// WSHandler wires websocket connections into the session engine. Every
// participant (host included) subscribes to the shared store and receives the
// full session on each change; only the host's connection runs the auto-end
// watcher, and only answer submissions are accepted from players.
type WSHandler struct {
	service  *app.Service
	machine  *app.Machine
	ledger   *app.Ledger
	presence *app.Presence
	watcher  *app.Watcher
	store    app.SessionStore
	notifier app.Notifier
	clock    clockwork.Clock
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(
	service *app.Service,
	machine *app.Machine,
	ledger *app.Ledger,
	presence *app.Presence,
	watcher *app.Watcher,
	store app.SessionStore,
	notifier app.Notifier,
	clock clockwork.Clock,
	log zerolog.Logger,
) *WSHandler {
	return &WSHandler{
		service:  service,
		machine:  machine,
		ledger:   ledger,
		presence: presence,
		watcher:  watcher,
		store:    store,
		notifier: notifier,
		clock:    clock,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type answerPayload struct {
	Option string `json:"option"`
}

type kickPayload struct {
	PlayerID string `json:"playerId"`
}

type joinedPayload struct {
	PlayerID string         `json:"playerId"`
	Session  domain.Session `json:"session"`
}

type timerPayload struct {
	RemainingSec int `json:"remainingSec"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// CreateSession handles POST /sessions.
func (h *WSHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		HostNickname  string `json:"hostNickname"`
		Topic         string `json:"topic"`
		Difficulty    string `json:"difficulty"`
		QuestionCount int    `json:"questionCount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	session, err := h.service.CreateSession(r.Context(), app.CreateSessionRequest{
		HostNickname:  req.HostNickname,
		Topic:         req.Topic,
		Difficulty:    domain.Difficulty(req.Difficulty),
		QuestionCount: req.QuestionCount,
	})
	if err != nil {
		if domain.IsValidation(err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.log.Error().Err(err).Msg("create session failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		HostID  string         `json:"hostId"`
		Session domain.Session `json:"session"`
	}{HostID: session.HostID, Session: session})
}

// ServeWS upgrades HTTP requests to websockets and drives one participant's
// connection: join, live session snapshots, countdown frames, answer intake,
// host commands, and disconnect cleanup.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	nickname := r.URL.Query().Get("name")
	playerID := r.URL.Query().Get("playerId")
	if code == "" || nickname == "" {
		http.Error(w, "missing code or name", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	session, playerID, err := h.service.Join(r.Context(), app.JoinRequest{
		JoinCode: code,
		PlayerID: playerID,
		Nickname: nickname,
	})
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}

	sessionID := session.ID
	isHost := session.HostID == playerID
	connID := uuid.NewString()
	log := h.log.With().Str("session", sessionID).Str("player", playerID).Bool("host", isHost).Logger()

	ctx, cancelCtx := context.WithCancel(context.Background())
	defer cancelCtx()

	// send is never closed: subscription callbacks fire from other goroutines
	// (another connection's update broadcast) and can race shutdown, so the
	// writer exits on ctx instead and push drops frames once ctx is done.
	send := make(chan any, 16)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-send:
				if err := conn.WriteJSON(msg); err != nil {
					log.Debug().Err(err).Msg("ws write error")
					return
				}
			}
		}
	}()
	push := func(msg any) {
		select {
		case send <- msg:
		case <-ctx.Done():
		}
	}

	// Crash-safe cleanup: the store runs this if the socket drops without an
	// explicit leave.
	h.presence.RegisterCleanup(connID, sessionID, playerID, isHost)

	// Shared deadline for the local countdown; updated from every snapshot.
	var deadline atomic.Int64
	if session.Game != nil && session.Game.Phase == domain.PhaseAnswering {
		deadline.Store(session.Game.QuestionEndMs)
	}

	unsubscribe, err := h.store.Subscribe(sessionID, func(s domain.Session) {
		if s.Game != nil && s.Game.Phase == domain.PhaseAnswering {
			deadline.Store(s.Game.QuestionEndMs)
		} else {
			deadline.Store(0)
		}
		push(outboundMessage[domain.Session]{Type: "session", Payload: s})
	})
	if err != nil {
		h.presence.CancelCleanup(connID)
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer unsubscribe()

	cancelKicked, err := h.notifier.Subscribe(ctx, sessionID, app.EventKicked, func(payload []byte) {
		var p app.KickedPayload
		if json.Unmarshal(payload, &p) != nil || p.PlayerID != playerID {
			return
		}
		push(outboundMessage[kickPayload]{Type: "kicked", Payload: kickPayload{PlayerID: playerID}})
		_ = conn.Close()
	})
	if err != nil {
		log.Warn().Err(err).Msg("kick notification subscription failed")
	} else {
		defer cancelKicked()
	}

	cancelEnded, err := h.notifier.Subscribe(ctx, sessionID, app.EventSessionEnded, func([]byte) {
		push(outboundMessage[struct{}]{Type: "sessionEnded"})
		_ = conn.Close()
	})
	if err != nil {
		log.Warn().Err(err).Msg("session end notification subscription failed")
	} else {
		defer cancelEnded()
	}

	// Local, non-authoritative countdown between store updates.
	go app.NewCountdown(h.clock).Run(ctx, deadline.Load, func(remaining int) {
		push(outboundMessage[timerPayload]{Type: "timer", Payload: timerPayload{RemainingSec: remaining}})
	})

	// Only the host's process evaluates the auto-end triggers.
	if isHost {
		go func() {
			if err := h.watcher.Run(ctx, sessionID, playerID); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("session watcher stopped")
			}
		}()
	}

	push(outboundMessage[joinedPayload]{Type: "joined", Payload: joinedPayload{PlayerID: playerID, Session: session}})

	intentionalLeave := false
	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if h.handleMessage(ctx, log, push, inbound, sessionID, playerID, isHost) {
			intentionalLeave = true
			break
		}
	}

	cancelCtx()
	if intentionalLeave {
		h.presence.CancelCleanup(connID)
		if err := h.service.Leave(context.Background(), sessionID, playerID); err != nil {
			log.Error().Err(err).Msg("leave failed")
		}
		if isHost {
			_ = h.notifier.Publish(context.Background(), sessionID, app.EventSessionEnded, struct{}{})
		}
	} else {
		h.store.FireDisconnect(connID)
	}
	<-writerDone
}

// handleMessage dispatches one inbound frame; it returns true on an explicit
// leave.
func (h *WSHandler) handleMessage(ctx context.Context, log zerolog.Logger, push func(any), inbound inboundMessage, sessionID, playerID string, isHost bool) bool {
	var err error
	switch inbound.Type {
	case "start":
		err = h.machine.Start(ctx, sessionID, playerID)
	case "endQuestion":
		err = h.machine.EndQuestion(ctx, sessionID, playerID)
	case "showScoreboard":
		err = h.machine.ShowScoreboard(ctx, sessionID, playerID)
	case "hideScoreboard":
		err = h.machine.HideScoreboard(ctx, sessionID, playerID)
	case "advance":
		err = h.machine.Advance(ctx, sessionID, playerID)
	case "answer":
		var payload answerPayload
		if json.Unmarshal(inbound.Payload, &payload) != nil {
			push(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: "invalid answer payload"}})
			return false
		}
		var recorded *domain.Answer
		recorded, err = h.ledger.SubmitAnswer(ctx, sessionID, playerID, payload.Option)
		if err == nil && recorded != nil {
			push(outboundMessage[domain.Answer]{Type: "answerResult", Payload: *recorded})
		}
	case "kick":
		var payload kickPayload
		if json.Unmarshal(inbound.Payload, &payload) != nil {
			push(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: "invalid kick payload"}})
			return false
		}
		err = h.presence.Kick(ctx, sessionID, playerID, payload.PlayerID)
	case "leave":
		return true
	default:
		push(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}})
		return false
	}

	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotHost):
		// Silent at protocol level; a non-host poking host commands gets nothing.
		log.Warn().Str("type", inbound.Type).Bool("host", isHost).Msg("unauthorized command dropped")
	case domain.IsValidation(err):
		push(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
	default:
		log.Error().Err(err).Str("type", inbound.Type).Msg("command failed")
		push(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: "internal error"}})
	}
	return false
}
