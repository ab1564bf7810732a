package questions

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"quizarena/internal/app"
	"quizarena/internal/domain"
)

// Pool serves stored questions for a topic and difficulty.
type Pool interface {
	Questions(ctx context.Context, topic string, difficulty domain.Difficulty, count int) ([]domain.Question, error)
}

// Generator produces fresh questions when the pool runs dry.
type Generator interface {
	Generate(ctx context.Context, topic string, difficulty domain.Difficulty, count int) ([]domain.Question, error)
}

// Source fills quiz batches from the pool first and tops up from the
// generator. A batch is never silently under-filled: if neither source can
// cover the request the whole call fails.
type Source struct {
	pool    Pool
	gen     Generator
	retries int
	backoff time.Duration
	logger  zerolog.Logger
}

var _ app.QuestionSource = (*Source)(nil)

func NewSource(pool Pool, gen Generator, logger zerolog.Logger) *Source {
	return &Source{
		pool:    pool,
		gen:     gen,
		retries: 2,
		backoff: 500 * time.Millisecond,
		logger:  logger,
	}
}

func (s *Source) NextBatch(ctx context.Context, topic string, difficulty domain.Difficulty, count int) ([]domain.Question, error) {
	batch, err := s.pool.Questions(ctx, topic, difficulty, count)
	if err != nil {
		s.logger.Warn().Err(err).Str("topic", topic).Msg("question pool unavailable")
		batch = nil
	}
	if len(batch) >= count {
		return batch[:count], nil
	}
	if s.gen == nil {
		return nil, fmt.Errorf("pool has %d of %d questions: %w", len(batch), count, domain.ErrQuizNotFound)
	}
	missing := count - len(batch)
	generated, err := s.generate(ctx, topic, difficulty, missing)
	if err != nil {
		return nil, err
	}
	return append(batch, generated...), nil
}

// generate retries the generator with a flat backoff before giving up.
func (s *Source) generate(ctx context.Context, topic string, difficulty domain.Difficulty, count int) ([]domain.Question, error) {
	var lastErr error
	for attempt := 0; attempt <= s.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.backoff):
			}
		}
		qs, err := s.gen.Generate(ctx, topic, difficulty, count)
		if err != nil {
			lastErr = err
			s.logger.Warn().Err(err).Int("attempt", attempt+1).Msg("question generation failed")
			continue
		}
		if len(qs) < count {
			lastErr = fmt.Errorf("generator returned %d of %d questions", len(qs), count)
			continue
		}
		return qs[:count], nil
	}
	return nil, fmt.Errorf("generate questions: %w (%v)", domain.ErrUpstream, lastErr)
}
