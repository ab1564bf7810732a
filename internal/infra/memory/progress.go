package memory

import (
	"context"
	"sync"

	"quizarena/internal/app"
)

// PlayerStats accumulates a user's finished matches.
type PlayerStats struct {
	Matches    int `json:"matches"`
	TotalScore int `json:"totalScore"`
	BestScore  int `json:"bestScore"`
}

// ProgressTracker is the in-memory gamification counter.
type ProgressTracker struct {
	mu    sync.RWMutex
	stats map[string]PlayerStats
}

var _ app.ProgressTracker = (*ProgressTracker)(nil)

func NewProgressTracker() *ProgressTracker {
	return &ProgressTracker{stats: make(map[string]PlayerStats)}
}

func (t *ProgressTracker) RecordMatch(ctx context.Context, userID string, score int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.stats[userID]
	s.Matches++
	s.TotalScore += score
	if score > s.BestScore {
		s.BestScore = score
	}
	t.stats[userID] = s
	return nil
}

// Stats returns the accumulated totals for a user.
func (t *ProgressTracker) Stats(userID string) PlayerStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.stats[userID]
}
