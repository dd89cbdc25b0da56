package app

import (
	"context"
	"crypto/rand"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"quizroom-service/internal/domain"
	"quizroom-service/internal/questions"
)

// ServiceConfig bounds user input for session creation.
type ServiceConfig struct {
	MinQuestions int
	MaxQuestions int
	CodeLength   int
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		MinQuestions: 1,
		MaxQuestions: 20,
		CodeLength:   6,
	}
}

// Service holds the session lifecycle use cases around the engine: create,
// join, leave, teardown.
type Service struct {
	store    SessionStore
	provider questions.Provider
	clock    clockwork.Clock
	log      zerolog.Logger
	cfg      ServiceConfig
}

func NewService(store SessionStore, provider questions.Provider, clock clockwork.Clock, log zerolog.Logger, cfg ServiceConfig) *Service {
	if cfg.MinQuestions <= 0 {
		cfg.MinQuestions = 1
	}
	if cfg.MaxQuestions < cfg.MinQuestions {
		cfg.MaxQuestions = cfg.MinQuestions
	}
	if cfg.CodeLength <= 0 {
		cfg.CodeLength = 6
	}
	return &Service{store: store, provider: provider, clock: clock, log: log, cfg: cfg}
}

type CreateSessionRequest struct {
	HostNickname  string
	Topic         string
	Difficulty    domain.Difficulty
	QuestionCount int
}

// CreateSession provisions questions, mints a join code, and stores a Waiting
// session whose only player is the host. The host flag is fixed at creation
// and never reassigned.
func (s *Service) CreateSession(ctx context.Context, req CreateSessionRequest) (domain.Session, error) {
	nickname := strings.TrimSpace(req.HostNickname)
	if nickname == "" {
		return domain.Session{}, domain.Validationf("nickname", "must not be empty")
	}
	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		return domain.Session{}, domain.Validationf("topic", "must not be empty")
	}
	if !req.Difficulty.Valid() {
		return domain.Session{}, domain.Validationf("difficulty", "must be one of easy, medium, hard")
	}
	if req.QuestionCount < s.cfg.MinQuestions || req.QuestionCount > s.cfg.MaxQuestions {
		return domain.Session{}, domain.Validationf("questionCount", "must be between %d and %d", s.cfg.MinQuestions, s.cfg.MaxQuestions)
	}

	qs, err := s.provider.Generate(ctx, topic, req.Difficulty, req.QuestionCount)
	if err != nil {
		return domain.Session{}, err
	}
	if len(qs) == 0 {
		return domain.Session{}, domain.ErrNoQuestions
	}

	code, err := s.freeJoinCode(ctx)
	if err != nil {
		return domain.Session{}, err
	}

	hostID := uuid.NewString()
	now := s.clock.Now()
	session := domain.Session{
		ID:         uuid.NewString(),
		JoinCode:   code,
		Topic:      topic,
		Difficulty: req.Difficulty,
		Questions:  qs,
		Status:     domain.StatusWaiting,
		HostID:     hostID,
		CreatedAt:  now,
		Players: map[string]domain.Player{
			hostID: {
				ID:       hostID,
				Nickname: nickname,
				IsHost:   true,
				JoinedAt: now,
				Answers:  make(map[int]domain.Answer),
			},
		},
		TotalQuestions: len(qs),
	}
	if err := s.store.Create(ctx, session); err != nil {
		return domain.Session{}, err
	}
	s.log.Info().
		Str("session", session.ID).
		Str("code", session.JoinCode).
		Int("questions", session.TotalQuestions).
		Msg("session created")
	return session, nil
}

type JoinRequest struct {
	JoinCode string
	// PlayerID is the opaque per-device id; empty means mint a new one.
	PlayerID string
	Nickname string
}

// Join adds a player to the session behind the join code, or refreshes the
// nickname of a returning player id.
func (s *Service) Join(ctx context.Context, req JoinRequest) (domain.Session, string, error) {
	nickname := strings.TrimSpace(req.Nickname)
	if nickname == "" {
		return domain.Session{}, "", domain.Validationf("nickname", "must not be empty")
	}
	code := strings.ToUpper(strings.TrimSpace(req.JoinCode))
	if code == "" {
		return domain.Session{}, "", domain.Validationf("joinCode", "must not be empty")
	}

	found, ok, err := s.store.GetByCode(ctx, code)
	if err != nil {
		return domain.Session{}, "", err
	}
	if !ok {
		return domain.Session{}, "", domain.ErrSessionNotFound
	}
	if found.Status == domain.StatusFinished {
		return domain.Session{}, "", domain.ErrSessionFinished
	}

	playerID := req.PlayerID
	if playerID == "" {
		playerID = uuid.NewString()
	}

	var joined domain.Session
	err = s.store.Update(ctx, found.ID, func(sess *domain.Session) error {
		if player, ok := sess.Players[playerID]; ok {
			player.Nickname = nickname
			sess.Players[playerID] = player
		} else {
			sess.Players[playerID] = domain.Player{
				ID:       playerID,
				Nickname: nickname,
				JoinedAt: s.clock.Now(),
				Answers:  make(map[int]domain.Answer),
			}
		}
		joined = sess.Clone()
		return nil
	})
	if err != nil {
		return domain.Session{}, "", err
	}
	return joined, playerID, nil
}

// Leave removes the caller's own entry; a leaving host tears the whole
// session down, matching what disconnect cleanup would have done.
func (s *Service) Leave(ctx context.Context, sessionID, playerID string) error {
	found, ok, err := s.store.Get(ctx, sessionID)
	if err != nil || !ok {
		return err
	}
	if found.HostID == playerID {
		return s.store.Delete(ctx, sessionID)
	}
	return s.store.Update(ctx, sessionID, func(sess *domain.Session) error {
		delete(sess.Players, playerID)
		return nil
	})
}

// Teardown deletes the session on explicit host request.
func (s *Service) Teardown(ctx context.Context, sessionID, callerID string) error {
	found, ok, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if found.HostID != callerID {
		return domain.ErrNotHost
	}
	return s.store.Delete(ctx, sessionID)
}

// codeAlphabet avoids ambiguous characters in human-entered codes.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func (s *Service) freeJoinCode(ctx context.Context) (string, error) {
	for i := 0; i < 10; i++ {
		code, err := newJoinCode(s.cfg.CodeLength)
		if err != nil {
			return "", err
		}
		if _, taken, err := s.store.GetByCode(ctx, code); err != nil {
			return "", err
		} else if !taken {
			return code, nil
		}
	}
	return "", domain.Validationf("joinCode", "could not allocate a unique code")
}

func newJoinCode(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}
