package app

import (
	"context"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"quizroom-service/internal/domain"
)

const (
	// baseScore is awarded for any correct answer.
	baseScore = 1000
	// bonusDivisorMs converts remaining milliseconds into bonus points: one
	// point per 10ms left on the clock.
	bonusDivisorMs = 10
)

// Ledger validates and records one answer per player per question. Duplicate
// or late submissions from lagging clients are deliberately forgiven as silent
// no-ops rather than surfaced as errors.
type Ledger struct {
	store SessionStore
	clock clockwork.Clock
	log   zerolog.Logger
}

func NewLedger(store SessionStore, clock clockwork.Clock, log zerolog.Logger) *Ledger {
	return &Ledger{store: store, clock: clock, log: log}
}

// SubmitAnswer records the chosen option for playerID against the current
// question and credits the earned score. The answer record and the score
// increment are committed in one atomic update. The returned answer is nil
// when the submission was a guarded no-op.
func (l *Ledger) SubmitAnswer(ctx context.Context, sessionID, playerID, option string) (*domain.Answer, error) {
	var recorded *domain.Answer
	err := l.store.Update(ctx, sessionID, func(s *domain.Session) error {
		if s.Game == nil || s.Game.Phase != domain.PhaseAnswering {
			return nil
		}
		player, ok := s.Players[playerID]
		if !ok {
			return nil
		}
		if _, dup := player.Answers[s.CurrentIndex]; dup {
			return nil
		}
		question, ok := s.CurrentQuestion()
		if !ok {
			return nil
		}

		limitMs := int64(question.TimeLimitSec) * 1000
		usedMs := l.clock.Now().UnixMilli() - s.Game.QuestionStartMs
		if usedMs < 0 {
			usedMs = 0
		}
		if usedMs > limitMs {
			usedMs = limitMs
		}

		answer := domain.Answer{
			Option:  option,
			Correct: question.IsCorrect(option),
			TimeMs:  usedMs,
		}
		if answer.Correct {
			answer.Score = baseScore + int((limitMs-usedMs)/bonusDivisorMs)
		}

		if player.Answers == nil {
			player.Answers = make(map[int]domain.Answer)
		}
		player.Answers[s.CurrentIndex] = answer
		player.Score += answer.Score
		s.Players[playerID] = player
		recorded = &answer
		return nil
	})
	if err != nil {
		return nil, err
	}
	return recorded, nil
}
