package questions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"quizarena/internal/domain"
)

// GeneratorConfig points at the question generation service.
type GeneratorConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// HTTPGenerator asks a remote generation service for quiz questions.
type HTTPGenerator struct {
	cfg  GeneratorConfig
	http *http.Client
}

var _ Generator = (*HTTPGenerator)(nil)

func NewHTTPGenerator(cfg GeneratorConfig) *HTTPGenerator {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPGenerator{cfg: cfg, http: &http.Client{Timeout: timeout}}
}

type generateRequest struct {
	Topic      string `json:"topic"`
	Difficulty string `json:"difficulty"`
	Count      int    `json:"count"`
}

type generatedQuestion struct {
	Prompt  string `json:"prompt"`
	Options []struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"options"`
	CorrectAnswer string `json:"correct_answer"`
}

type generateResponse struct {
	Questions []generatedQuestion `json:"questions"`
}

func (g *HTTPGenerator) Generate(ctx context.Context, topic string, difficulty domain.Difficulty, count int) ([]domain.Question, error) {
	body, err := json.Marshal(generateRequest{
		Topic:      topic,
		Difficulty: string(difficulty),
		Count:      count,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+"/generate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	}
	resp, err := g.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("generator request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("generator returned %s: %w", resp.Status, domain.ErrUpstream)
	}
	var decoded generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode generator response: %w", err)
	}
	questions := make([]domain.Question, 0, len(decoded.Questions))
	for _, q := range decoded.Questions {
		question := domain.Question{
			ID:            uuid.NewString(),
			Prompt:        q.Prompt,
			CorrectAnswer: q.CorrectAnswer,
		}
		for _, o := range q.Options {
			question.Options = append(question.Options, domain.Option{ID: o.ID, Text: o.Text})
		}
		questions = append(questions, question)
	}
	return questions, nil
}
