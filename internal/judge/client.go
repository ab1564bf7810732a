package judge

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"quizarena/internal/app"
	"quizarena/internal/domain"
)

// Judge0 status ids we care about; everything above compileError is some
// flavor of runtime error.
const (
	statusInQueue      = 1
	statusProcessing   = 2
	statusAccepted     = 3
	statusWrongAnswer  = 4
	statusTimeLimit    = 5
	statusCompileError = 6
)

// languageIDs maps our language names to Judge0 ids.
var languageIDs = map[string]int{
	"python":     71,
	"javascript": 63,
	"java":       62,
	"cpp":        54,
	"c":          50,
	"go":         60,
}

// Config configures the remote judge. Zero values get sensible defaults.
type Config struct {
	BaseURL      string
	APIKey       string
	APIHost      string
	Timeout      time.Duration
	PollInterval time.Duration
	MaxPolls     int
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.MaxPolls <= 0 {
		c.MaxPolls = 30
	}
	return c
}

// Client executes code through a Judge0-compatible API. Any upstream failure
// degrades to the local simulator instead of surfacing an error, so a judge
// outage never dead-ends a battle.
type Client struct {
	cfg      Config
	http     *http.Client
	fallback app.JudgeClient
	logger   zerolog.Logger
}

var _ app.JudgeClient = (*Client)(nil)

// New builds a judge client; pass nil fallback to use the simulator.
func New(cfg Config, fallback app.JudgeClient, logger zerolog.Logger) *Client {
	cfg = cfg.withDefaults()
	if fallback == nil {
		fallback = NewSimulator()
	}
	return &Client{
		cfg:      cfg,
		http:     &http.Client{Timeout: cfg.Timeout},
		fallback: fallback,
		logger:   logger,
	}
}

type submissionRequest struct {
	SourceCode string `json:"source_code"`
	LanguageID int    `json:"language_id"`
	Stdin      string `json:"stdin,omitempty"`
}

type submissionToken struct {
	Token string `json:"token"`
}

type submissionStatus struct {
	Status struct {
		ID          int    `json:"id"`
		Description string `json:"description"`
	} `json:"status"`
	Stdout        string `json:"stdout"`
	Stderr        string `json:"stderr"`
	CompileOutput string `json:"compile_output"`
	Time          string `json:"time"`
	Memory        int    `json:"memory"`
}

// Run executes code once against the given stdin.
func (c *Client) Run(ctx context.Context, code, language, stdin string) (app.RunResult, error) {
	res, err := c.execute(ctx, code, language, stdin)
	if err != nil {
		c.logger.Warn().Err(err).Msg("judge unavailable, using simulator")
		return c.fallback.Run(ctx, code, language, stdin)
	}
	return res.runResult(), nil
}

// RunTestCases executes code against every test case and compares trimmed
// output with the expected output.
func (c *Client) RunTestCases(ctx context.Context, code, language string, cases []domain.TestCase) (app.TestRun, error) {
	run := app.TestRun{Total: len(cases), Details: make([]domain.TestResult, 0, len(cases))}
	for _, tc := range cases {
		res, err := c.execute(ctx, code, language, tc.Input)
		if err != nil {
			c.logger.Warn().Err(err).Msg("judge unavailable, using simulator")
			return c.fallback.RunTestCases(ctx, code, language, cases)
		}
		detail := domain.TestResult{
			Input:    tc.Input,
			Expected: tc.Output,
			Output:   strings.TrimSpace(res.Stdout),
			Time:     res.seconds(),
			Error:    res.failure(),
		}
		detail.Passed = detail.Error == "" && detail.Output == strings.TrimSpace(tc.Output)
		if detail.Passed {
			run.Passed++
		}
		run.Details = append(run.Details, detail)
	}
	return run, nil
}

// execute submits the code and polls until the submission leaves the queue
// or the poll budget runs out.
func (c *Client) execute(ctx context.Context, code, language, stdin string) (*submissionStatus, error) {
	langID, ok := languageIDs[strings.ToLower(language)]
	if !ok {
		langID = languageIDs["python"]
	}
	body, err := json.Marshal(submissionRequest{
		SourceCode: base64.StdEncoding.EncodeToString([]byte(code)),
		LanguageID: langID,
		Stdin:      base64.StdEncoding.EncodeToString([]byte(stdin)),
	})
	if err != nil {
		return nil, err
	}
	submitURL := c.cfg.BaseURL + "/submissions?" + url.Values{
		"base64_encoded": {"true"},
		"wait":           {"false"},
	}.Encode()
	var token submissionToken
	if err := c.do(ctx, http.MethodPost, submitURL, body, &token); err != nil {
		return nil, fmt.Errorf("submit: %w", err)
	}
	if token.Token == "" {
		return nil, fmt.Errorf("submit: %w", domain.ErrUpstream)
	}

	pollURL := c.cfg.BaseURL + "/submissions/" + token.Token + "?" + url.Values{
		"base64_encoded": {"true"},
		"fields":         {"status,stdout,stderr,compile_output,time,memory"},
	}.Encode()
	for i := 0; i < c.cfg.MaxPolls; i++ {
		var status submissionStatus
		if err := c.do(ctx, http.MethodGet, pollURL, nil, &status); err != nil {
			return nil, fmt.Errorf("poll: %w", err)
		}
		if status.Status.ID > statusProcessing {
			status.decode()
			return &status, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.cfg.PollInterval):
		}
	}
	return nil, fmt.Errorf("poll budget exhausted: %w", domain.ErrUpstream)
}

func (c *Client) do(ctx context.Context, method, rawURL string, body []byte, out any) error {
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("X-RapidAPI-Key", c.cfg.APIKey)
	}
	if c.cfg.APIHost != "" {
		req.Header.Set("X-RapidAPI-Host", c.cfg.APIHost)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("judge returned %s: %w", resp.Status, domain.ErrUpstream)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// decode unpacks the base64 payload fields in place.
func (s *submissionStatus) decode() {
	s.Stdout = decodeB64(s.Stdout)
	s.Stderr = decodeB64(s.Stderr)
	s.CompileOutput = decodeB64(s.CompileOutput)
}

func decodeB64(v string) string {
	if v == "" {
		return ""
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(v))
	if err != nil {
		return v
	}
	return string(raw)
}

func (s *submissionStatus) seconds() float64 {
	t, err := strconv.ParseFloat(s.Time, 64)
	if err != nil {
		return 0
	}
	return t
}

// failure summarizes a non-passing status for the test detail.
func (s *submissionStatus) failure() string {
	switch s.Status.ID {
	case statusAccepted, statusWrongAnswer:
		return ""
	case statusCompileError:
		return "Compilation Error: " + strings.TrimSpace(s.CompileOutput)
	case statusTimeLimit:
		return "Time Limit Exceeded"
	default:
		msg := strings.TrimSpace(s.Stderr)
		if msg == "" {
			msg = s.Status.Description
		}
		return "Runtime Error: " + msg
	}
}

func (s *submissionStatus) runResult() app.RunResult {
	out := strings.TrimSpace(s.Stdout)
	return app.RunResult{
		Output: out,
		Error:  s.failure(),
		Time:   s.seconds(),
		Memory: s.Memory,
	}
}
