package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"quizarena/internal/domain"
	"quizarena/internal/questions"
)

// CachedPool caches question batches in Redis in front of a slower pool
// (Postgres). Concurrent misses for the same topic collapse into a single
// upstream load via singleflight.
type CachedPool struct {
	rdb    *redis.Client
	next   questions.Pool
	ttl    time.Duration
	group  singleflight.Group
	logger zerolog.Logger
}

var _ questions.Pool = (*CachedPool)(nil)

func NewCachedPool(rdb *redis.Client, next questions.Pool, ttl time.Duration, logger zerolog.Logger) *CachedPool {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CachedPool{rdb: rdb, next: next, ttl: ttl, logger: logger}
}

func cacheKey(topic string, difficulty domain.Difficulty) string {
	return fmt.Sprintf("quiz:questions:%s:%s", strings.ToLower(topic), difficulty)
}

// cachedQuestion spells out the correct answer, which the domain type keeps
// off the wire. Without it a cache round-trip would strip the answers.
type cachedQuestion struct {
	ID            string          `json:"id"`
	Prompt        string          `json:"prompt"`
	Options       []domain.Option `json:"options"`
	CorrectAnswer string          `json:"correctAnswer"`
}

func toCache(qs []domain.Question) []cachedQuestion {
	out := make([]cachedQuestion, len(qs))
	for i, q := range qs {
		out[i] = cachedQuestion{ID: q.ID, Prompt: q.Prompt, Options: q.Options, CorrectAnswer: q.CorrectAnswer}
	}
	return out
}

func fromCache(qs []cachedQuestion) []domain.Question {
	out := make([]domain.Question, len(qs))
	for i, q := range qs {
		out[i] = domain.Question{ID: q.ID, Prompt: q.Prompt, Options: q.Options, CorrectAnswer: q.CorrectAnswer}
	}
	return out
}

func (p *CachedPool) Questions(ctx context.Context, topic string, difficulty domain.Difficulty, count int) ([]domain.Question, error) {
	key := cacheKey(topic, difficulty)
	raw, err := p.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var cached []cachedQuestion
		if err := json.Unmarshal(raw, &cached); err == nil && len(cached) >= count {
			return fromCache(cached[:count]), nil
		}
	} else if err != redis.Nil {
		p.logger.Warn().Err(err).Str("key", key).Msg("question cache read failed")
	}

	v, err, _ := p.group.Do(key, func() (any, error) {
		loaded, err := p.next.Questions(ctx, topic, difficulty, count)
		if err != nil {
			return nil, err
		}
		if encoded, err := json.Marshal(toCache(loaded)); err == nil {
			if err := p.rdb.Set(ctx, key, encoded, p.ttl).Err(); err != nil {
				p.logger.Warn().Err(err).Str("key", key).Msg("question cache write failed")
			}
		}
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.Question), nil
}

// Invalidate drops the cached batch for a topic, e.g. after a reseed.
func (p *CachedPool) Invalidate(ctx context.Context, topic string, difficulty domain.Difficulty) error {
	return p.rdb.Del(ctx, cacheKey(topic, difficulty)).Err()
}
