package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"quizarena/internal/domain"
)

// storedChallenge is the JSONB shape of a challenge row, test cases included.
type storedChallenge struct {
	ID               string            `json:"id"`
	Title            string            `json:"title"`
	Description      string            `json:"description"`
	ProblemStatement string            `json:"problemStatement"`
	SampleIO         string            `json:"sampleIO"`
	Difficulty       string            `json:"difficulty"`
	TimeLimit        int               `json:"timeLimit"`
	TestCases        []domain.TestCase `json:"testCases"`
}

func (c storedChallenge) toDomain() domain.Challenge {
	return domain.Challenge{
		ID:               c.ID,
		Title:            c.Title,
		Description:      c.Description,
		ProblemStatement: c.ProblemStatement,
		SampleIO:         c.SampleIO,
		Difficulty:       domain.Difficulty(c.Difficulty),
		TimeLimit:        c.TimeLimit,
		TestCases:        c.TestCases,
	}
}

// ChallengeSource loads the coding challenge catalog from Postgres. The
// catalog is read once at startup and seeded into the in-memory store that
// the battle engines query.
type ChallengeSource struct {
	pool *pgxpool.Pool
}

func NewChallengeSource(pool *pgxpool.Pool) *ChallengeSource {
	return &ChallengeSource{pool: pool}
}

// All returns the full catalog.
func (s *ChallengeSource) All(ctx context.Context) ([]domain.Challenge, error) {
	rows, err := s.pool.Query(ctx, `SELECT data FROM challenges ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load challenges: %w", err)
	}
	defer rows.Close()

	var out []domain.Challenge
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan challenge: %w", err)
		}
		var stored storedChallenge
		if err := json.Unmarshal(raw, &stored); err != nil {
			return nil, fmt.Errorf("unmarshal challenge: %w", err)
		}
		out = append(out, stored.toDomain())
	}
	return out, rows.Err()
}
