package app

import (
	"context"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"quizroom-service/internal/domain"
)

// Machine owns the per-session phase transitions. Every operation requires the
// caller to be the session host; a non-host caller gets domain.ErrNotHost and
// the session is untouched. Phase guards make transitions idempotent: a call
// that arrives in the wrong phase is a silent no-op, because network races make
// arriving twice routine.
type Machine struct {
	store SessionStore
	clock clockwork.Clock
	log   zerolog.Logger
}

func NewMachine(store SessionStore, clock clockwork.Clock, log zerolog.Logger) *Machine {
	return &Machine{store: store, clock: clock, log: log}
}

// Start moves a waiting session into the first question's answering phase.
func (m *Machine) Start(ctx context.Context, sessionID, callerID string) error {
	return m.store.Update(ctx, sessionID, func(s *domain.Session) error {
		if err := m.requireHost(s, callerID, "start"); err != nil {
			return err
		}
		if s.Status != domain.StatusWaiting {
			return nil
		}
		if len(s.Questions) == 0 {
			return domain.ErrNoQuestions
		}
		s.Status = domain.StatusActive
		s.CurrentIndex = 0
		s.Game = m.answeringState(s.Questions[0])
		m.log.Debug().Str("session", s.ID).Msg("session started")
		return nil
	})
}

// EndQuestion terminates the answering phase. It is the single authoritative
// end-of-question signal; both the wall-clock expiry trigger and the
// all-players-answered shortcut funnel into it, and the phase guard absorbs
// the second firing.
func (m *Machine) EndQuestion(ctx context.Context, sessionID, callerID string) error {
	return m.store.Update(ctx, sessionID, func(s *domain.Session) error {
		if err := m.requireHost(s, callerID, "end question"); err != nil {
			return err
		}
		if s.Status != domain.StatusActive || s.Game == nil || s.Game.Phase != domain.PhaseAnswering {
			return nil
		}
		s.Game = &domain.GameState{
			Phase:              domain.PhaseShowingAnswer,
			QuestionStartMs:    s.Game.QuestionStartMs,
			QuestionEndMs:      m.clock.Now().UnixMilli(),
			AllPlayersAnswered: s.AllAnswered(),
			AwaitingHostAction: true,
		}
		m.log.Debug().Str("session", s.ID).Int("question", s.CurrentIndex).Msg("question ended")
		return nil
	})
}

// ShowScoreboard switches from the answer reveal to the scoreboard.
func (m *Machine) ShowScoreboard(ctx context.Context, sessionID, callerID string) error {
	return m.togglePhase(ctx, sessionID, callerID, domain.PhaseShowingAnswer, domain.PhaseShowingScoreboard)
}

// HideScoreboard switches back from the scoreboard to the answer reveal.
func (m *Machine) HideScoreboard(ctx context.Context, sessionID, callerID string) error {
	return m.togglePhase(ctx, sessionID, callerID, domain.PhaseShowingScoreboard, domain.PhaseShowingAnswer)
}

func (m *Machine) togglePhase(ctx context.Context, sessionID, callerID string, from, to domain.Phase) error {
	return m.store.Update(ctx, sessionID, func(s *domain.Session) error {
		if err := m.requireHost(s, callerID, "toggle scoreboard"); err != nil {
			return err
		}
		if s.Status != domain.StatusActive || s.Game == nil || s.Game.Phase != from {
			return nil
		}
		g := *s.Game
		g.Phase = to
		s.Game = &g
		return nil
	})
}

// Advance moves to the next question's answering phase, or finishes the
// session after the last question.
func (m *Machine) Advance(ctx context.Context, sessionID, callerID string) error {
	return m.store.Update(ctx, sessionID, func(s *domain.Session) error {
		if err := m.requireHost(s, callerID, "advance"); err != nil {
			return err
		}
		if s.Status != domain.StatusActive || s.Game == nil {
			return nil
		}
		if s.Game.Phase != domain.PhaseShowingAnswer && s.Game.Phase != domain.PhaseShowingScoreboard {
			return nil
		}
		if s.CurrentIndex+1 < s.TotalQuestions {
			s.CurrentIndex++
			s.Game = m.answeringState(s.Questions[s.CurrentIndex])
			m.log.Debug().Str("session", s.ID).Int("question", s.CurrentIndex).Msg("advanced to next question")
			return nil
		}
		s.Status = domain.StatusFinished
		s.Completed = true
		g := *s.Game
		g.AwaitingHostAction = false
		s.Game = &g
		m.log.Debug().Str("session", s.ID).Msg("session finished")
		return nil
	})
}

// answeringState builds a complete fresh GameState for a question; transitions
// always replace the whole value, never patch fields piecemeal.
func (m *Machine) answeringState(q domain.Question) *domain.GameState {
	now := m.clock.Now().UnixMilli()
	return &domain.GameState{
		Phase:           domain.PhaseAnswering,
		QuestionStartMs: now,
		QuestionEndMs:   now + int64(q.TimeLimitSec)*1000,
	}
}

func (m *Machine) requireHost(s *domain.Session, callerID, op string) error {
	if s.HostID != callerID {
		m.log.Warn().Str("session", s.ID).Str("caller", callerID).Str("op", op).Msg("host-only operation rejected")
		return domain.ErrNotHost
	}
	return nil
}
