package questions

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"quizroom-service/internal/domain"
)

// Provider produces an ordered question set for a session. Implementations may
// fail; callers are expected to substitute a fallback set rather than surface
// the failure to players.
type Provider interface {
	Generate(ctx context.Context, topic string, difficulty domain.Difficulty, count int) ([]domain.Question, error)
}

// Bank loads the full question pool for a topic and difficulty from a backing
// store (Postgres, a cache, a static map).
type Bank interface {
	LoadBank(ctx context.Context, topic string, difficulty domain.Difficulty) ([]domain.Question, error)
}

// WithFallback tries the primary provider first and substitutes the fallback
// on failure, threading the failure reason through the log. A fallback
// substitution is never fatal to the caller.
type WithFallback struct {
	primary  Provider
	fallback Provider
	log      zerolog.Logger
}

func NewWithFallback(primary, fallback Provider, log zerolog.Logger) *WithFallback {
	return &WithFallback{primary: primary, fallback: fallback, log: log}
}

func (w *WithFallback) Generate(ctx context.Context, topic string, difficulty domain.Difficulty, count int) ([]domain.Question, error) {
	if w.primary != nil {
		qs, err := w.primary.Generate(ctx, topic, difficulty, count)
		if err == nil {
			return qs, nil
		}
		w.log.Warn().Err(err).
			Str("topic", topic).
			Str("difficulty", string(difficulty)).
			Msg("primary question provider failed, using fallback")
	}
	return w.fallback.Generate(ctx, topic, difficulty, count)
}

// Sampler adapts a Bank into a Provider by shuffling the loaded pool and
// taking up to count questions.
type Sampler struct {
	bank Bank
	rnd  *rand.Rand
}

func NewSampler(bank Bank) *Sampler {
	return &Sampler{
		bank: bank,
		rnd:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *Sampler) Generate(ctx context.Context, topic string, difficulty domain.Difficulty, count int) ([]domain.Question, error) {
	pool, err := s.bank.LoadBank(ctx, topic, difficulty)
	if err != nil {
		return nil, err
	}
	if len(pool) == 0 {
		return nil, domain.ErrNoQuestions
	}

	shuffled := append([]domain.Question(nil), pool...)
	s.rnd.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	if count > len(shuffled) {
		count = len(shuffled)
	}
	return shuffled[:count], nil
}
