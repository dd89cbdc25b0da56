package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"quizroom-service/internal/domain"
)

// QuestionBank loads question pools from Postgres. It is the primary question
// source; the caller substitutes the static fallback when it fails or comes
// back empty.
type QuestionBank struct {
	pool *pgxpool.Pool
}

func NewQuestionBank(pool *pgxpool.Pool) *QuestionBank {
	return &QuestionBank{pool: pool}
}

func (b *QuestionBank) LoadBank(ctx context.Context, topic string, difficulty domain.Difficulty) ([]domain.Question, error) {
	rows, err := b.pool.Query(ctx,
		`SELECT text, options, correct_option, time_limit_sec
		   FROM questions
		  WHERE difficulty = $1 AND lower(topic) = lower($2)`,
		string(difficulty), topic)
	if err != nil {
		return nil, fmt.Errorf("load question bank: %w", err)
	}
	defer rows.Close()

	var pool []domain.Question
	for rows.Next() {
		var (
			q       domain.Question
			rawOpts []byte
		)
		if err := rows.Scan(&q.Text, &rawOpts, &q.CorrectOption, &q.TimeLimitSec); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		if err := json.Unmarshal(rawOpts, &q.Options); err != nil {
			return nil, fmt.Errorf("unmarshal options: %w", err)
		}
		pool = append(pool, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load question bank: %w", err)
	}
	if len(pool) == 0 {
		return nil, fmt.Errorf("no questions for topic %q at difficulty %s", topic, difficulty)
	}
	return pool, nil
}
