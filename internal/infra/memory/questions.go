package memory

import (
	"context"
	"math/rand"
	"strings"
	"sync"

	"quizarena/internal/domain"
)

// QuestionPool keeps seeded questions keyed by topic and difficulty. It
// backs development setups and tests where no database is wired.
type QuestionPool struct {
	mu   sync.RWMutex
	pool map[string][]domain.Question
}

func NewQuestionPool() *QuestionPool {
	return &QuestionPool{pool: make(map[string][]domain.Question)}
}

func poolKey(topic string, difficulty domain.Difficulty) string {
	return strings.ToLower(topic) + "/" + string(difficulty)
}

func (q *QuestionPool) Seed(topic string, difficulty domain.Difficulty, questions []domain.Question) {
	q.mu.Lock()
	defer q.mu.Unlock()
	key := poolKey(topic, difficulty)
	q.pool[key] = append(q.pool[key], questions...)
}

// Questions returns up to count questions in random order; fewer when the
// pool is short, which the caller tops up from the generator.
func (q *QuestionPool) Questions(ctx context.Context, topic string, difficulty domain.Difficulty, count int) ([]domain.Question, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	stored := q.pool[poolKey(topic, difficulty)]
	out := append([]domain.Question(nil), stored...)
	rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	if len(out) > count {
		out = out[:count]
	}
	return out, nil
}
