package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"quizarena/internal/app"
)

// ProgressTracker persists per-user match totals and a daily play streak in
// Redis hashes.
type ProgressTracker struct {
	rdb   *redis.Client
	clock func() time.Time
}

var _ app.ProgressTracker = (*ProgressTracker)(nil)

func NewProgressTracker(rdb *redis.Client) *ProgressTracker {
	return &ProgressTracker{rdb: rdb, clock: time.Now}
}

// NewProgressTrackerWithClock pins the clock for streak tests.
func NewProgressTrackerWithClock(rdb *redis.Client, clock func() time.Time) *ProgressTracker {
	return &ProgressTracker{rdb: rdb, clock: clock}
}

func progressKey(userID string) string { return "progress:" + userID }

const dayFormat = "2006-01-02"

func (t *ProgressTracker) RecordMatch(ctx context.Context, userID string, score int) error {
	key := progressKey(userID)
	fields, err := t.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("load progress: %w", err)
	}
	today := t.clock().UTC().Format(dayFormat)
	streak := 1
	switch fields["last_played"] {
	case today:
		streak = atoi(fields["streak"], 1)
	case t.clock().UTC().AddDate(0, 0, -1).Format(dayFormat):
		streak = atoi(fields["streak"], 0) + 1
	}

	pipe := t.rdb.TxPipeline()
	pipe.HIncrBy(ctx, key, "matches", 1)
	pipe.HIncrBy(ctx, key, "total_score", int64(score))
	if score > atoi(fields["best_score"], 0) {
		pipe.HSet(ctx, key, "best_score", score)
	}
	pipe.HSet(ctx, key, "streak", streak, "last_played", today)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	return nil
}

// Stats reads back the stored totals.
func (t *ProgressTracker) Stats(ctx context.Context, userID string) (matches, totalScore, bestScore, streak int, err error) {
	fields, err := t.rdb.HGetAll(ctx, progressKey(userID)).Result()
	if err != nil {
		return 0, 0, 0, 0, err
	}
	return atoi(fields["matches"], 0), atoi(fields["total_score"], 0), atoi(fields["best_score"], 0), atoi(fields["streak"], 0), nil
}

func atoi(v string, def int) int {
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
