package app_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"quizarena/internal/app"
	"quizarena/internal/domain"
	"quizarena/internal/infra/memory"
)

// fakeClock is a manually advanced clock shared by hub and test.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// stubQuestions serves a fixed question list.
type stubQuestions struct {
	questions []domain.Question
	err       error
}

func (s stubQuestions) NextBatch(ctx context.Context, topic string, difficulty domain.Difficulty, count int) ([]domain.Question, error) {
	if s.err != nil {
		return nil, s.err
	}
	if count > len(s.questions) {
		count = len(s.questions)
	}
	return s.questions[:count], nil
}

// stubJudge passes every test when the code contains "pass", charging the
// per-test runtime encoded after "t=" (e.g. "pass t=0.01"). Code containing
// "compile" reports a compile error.
type stubJudge struct{}

func (stubJudge) Run(ctx context.Context, code, language, stdin string) (app.RunResult, error) {
	return app.RunResult{Output: "ran", Time: 0.01}, nil
}

func (stubJudge) RunTestCases(ctx context.Context, code, language string, cases []domain.TestCase) (app.TestRun, error) {
	run := app.TestRun{Total: len(cases)}
	perTest := 0.01
	if i := strings.Index(code, "t="); i >= 0 {
		switch code[i+2:] {
		case "0.05":
			perTest = 0.05
		case "0.03":
			perTest = 0.03
		case "0.014":
			perTest = 0.014
		}
	}
	for _, tc := range cases {
		detail := domain.TestResult{Input: tc.Input, Expected: tc.Output, Time: perTest}
		switch {
		case strings.Contains(code, "compile"):
			detail.Error = "Compilation Error: syntax"
		case strings.Contains(code, "pass"):
			detail.Passed = true
			detail.Output = strings.TrimSpace(tc.Output)
			run.Passed++
		}
		run.Details = append(run.Details, detail)
	}
	return run, nil
}

func fastOptions(clk *fakeClock) app.Options {
	return app.Options{
		Tick:        20 * time.Millisecond,
		ReviewDelay: 15 * time.Millisecond,
		GraceDelay:  25 * time.Millisecond,
		Clock:       clk.Now,
	}
}

func newTestHub(t *testing.T, clk *fakeClock, questions []domain.Question) (*app.Hub, *memory.Store, *memory.ProgressTracker) {
	t.Helper()
	store := memory.NewStore()
	progress := memory.NewProgressTracker()
	hub := app.NewHub(store, stubJudge{}, stubQuestions{questions: questions}, progress, zerolog.Nop(), fastOptions(clk))
	return hub, store, progress
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{
			ID:     "q1",
			Prompt: "What is 2 + 2?",
			Options: []domain.Option{
				{ID: "a", Text: "3"},
				{ID: "b", Text: "4"},
			},
			CorrectAnswer: "b",
		},
		{
			ID:     "q2",
			Prompt: "Capital of France?",
			Options: []domain.Option{
				{ID: "a", Text: "Paris"},
				{ID: "b", Text: "Lyon"},
			},
			CorrectAnswer: "a",
		},
	}
}

// waitFor drains the connection until an event of type T arrives.
func waitFor[T app.Event](t *testing.T, conn *app.Conn) T {
	t.Helper()
	var zero T
	deadline := time.After(3 * time.Second)
	for {
		select {
		case e := <-conn.Events():
			if ev, ok := e.(T); ok {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %T", zero)
			return zero
		}
	}
}

// expectNo fails if an event of type T shows up within the window.
func expectNo[T app.Event](t *testing.T, conn *app.Conn, window time.Duration) {
	t.Helper()
	deadline := time.After(window)
	for {
		select {
		case e := <-conn.Events():
			if _, ok := e.(T); ok {
				t.Fatalf("unexpected %T event", e)
			}
		case <-deadline:
			return
		}
	}
}

// joinQuizRoom is the common two-player setup: alice hosts, bob joins.
func joinQuizRoom(t *testing.T, hub *app.Hub) (room *domain.Room, alice, bob *app.Conn) {
	t.Helper()
	ctx := context.Background()
	room, err := hub.CreateRoom(ctx, "alice", "general", domain.DifficultyEasy, 2, 4)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	alice = app.NewConn("alice")
	if err := hub.JoinRoom(ctx, room.Code, alice); err != nil {
		t.Fatalf("alice join: %v", err)
	}
	waitFor[app.RoomState](t, alice)

	bob = app.NewConn("bob")
	if err := hub.JoinRoom(ctx, room.Code, bob); err != nil {
		t.Fatalf("bob join: %v", err)
	}
	waitFor[app.RoomState](t, bob)
	waitFor[app.PlayerJoined](t, alice)
	return room, alice, bob
}

// startQuiz readies bob and lets alice start; both consume events up to the
// first new_question.
func startQuiz(t *testing.T, hub *app.Hub, alice, bob *app.Conn) app.NewQuestion {
	t.Helper()
	ctx := context.Background()
	hub.Dispatch(ctx, bob, app.ToggleReady{})
	waitFor[app.PlayerReady](t, alice)
	waitFor[app.PlayerReady](t, bob)

	hub.Dispatch(ctx, alice, app.StartGame{})
	waitFor[app.GameStarted](t, alice)
	waitFor[app.GameStarted](t, bob)
	q := waitFor[app.NewQuestion](t, alice)
	waitFor[app.NewQuestion](t, bob)
	return q
}
