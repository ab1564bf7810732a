package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"quizarena/internal/domain"
	"quizarena/internal/questions"
)

// storedQuestion is the JSONB shape of a question row. It spells out the
// correct answer, which the domain type deliberately keeps off the wire.
type storedQuestion struct {
	ID            string          `json:"id"`
	Prompt        string          `json:"prompt"`
	Options       []domain.Option `json:"options"`
	CorrectAnswer string          `json:"correctAnswer"`
}

func (q storedQuestion) toDomain() domain.Question {
	return domain.Question{
		ID:            q.ID,
		Prompt:        q.Prompt,
		Options:       q.Options,
		CorrectAnswer: q.CorrectAnswer,
	}
}

// QuestionPool serves quiz questions from Postgres.
type QuestionPool struct {
	pool *pgxpool.Pool
}

var _ questions.Pool = (*QuestionPool)(nil)

func NewQuestionPool(pool *pgxpool.Pool) *QuestionPool {
	return &QuestionPool{pool: pool}
}

func (p *QuestionPool) Questions(ctx context.Context, topic string, difficulty domain.Difficulty, count int) ([]domain.Question, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT data FROM questions WHERE topic=$1 AND difficulty=$2 ORDER BY random() LIMIT $3`,
		topic, string(difficulty), count)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	var out []domain.Question
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		var stored storedQuestion
		if err := json.Unmarshal(raw, &stored); err != nil {
			return nil, fmt.Errorf("unmarshal question: %w", err)
		}
		out = append(out, stored.toDomain())
	}
	return out, rows.Err()
}
