package app

import (
	"context"

	"quizarena/internal/domain"
)

// RoomStore abstracts persistence for rooms, battles, players and
// submissions (in-memory, Postgres, etc). All writes for one room are issued
// from that room's actor, so implementations only need whole-store safety,
// never per-record coordination.
type RoomStore interface {
	CreateRoom(ctx context.Context, room *domain.Room) error
	RoomByCode(ctx context.Context, code string) (*domain.Room, error)
	SaveRoom(ctx context.Context, room *domain.Room) error
	DeleteRoom(ctx context.Context, roomID string) error
	RoomCodeExists(ctx context.Context, code string) (bool, error)

	CreatePlayer(ctx context.Context, player *domain.Player) error
	Players(ctx context.Context, roomID string) ([]*domain.Player, error)
	Player(ctx context.Context, roomID, userID string) (*domain.Player, error)
	SavePlayer(ctx context.Context, player *domain.Player) error
	DeletePlayer(ctx context.Context, roomID, userID string) error

	CreateBattle(ctx context.Context, battle *domain.Battle) error
	BattleByCode(ctx context.Context, code string) (*domain.Battle, error)
	// OpenBattleForChallenge matches a user into a waiting battle: their own
	// waiting battle first (rejoin), otherwise the oldest one with a free
	// seat. ErrBattleNotFound when nothing is waiting.
	OpenBattleForChallenge(ctx context.Context, challengeID, user string) (*domain.Battle, error)
	SaveBattle(ctx context.Context, battle *domain.Battle) error
	BattleCodeExists(ctx context.Context, code string) (bool, error)

	CreateSubmission(ctx context.Context, sub *domain.Submission) error
	SubmissionsFor(ctx context.Context, userID, challengeID string) ([]*domain.Submission, error)

	Challenge(ctx context.Context, challengeID string) (*domain.Challenge, error)
	ChallengesByLevel(ctx context.Context, level domain.Difficulty, count int) ([]domain.Challenge, error)
}

// RunResult is the outcome of executing code once against a single stdin.
type RunResult struct {
	Output string  `json:"output"`
	Error  string  `json:"error,omitempty"`
	Time   float64 `json:"time"`
	Memory int     `json:"memory"`
}

// TestRun is the outcome of judging code against a challenge's test cases.
type TestRun struct {
	Passed  int                 `json:"passed"`
	Total   int                 `json:"total"`
	Details []domain.TestResult `json:"details"`
}

// AvgTime is the mean per-test runtime in seconds (zero when no tests ran).
func (t TestRun) AvgTime() float64 {
	if len(t.Details) == 0 {
		return 0
	}
	var sum float64
	for _, d := range t.Details {
		sum += d.Time
	}
	return sum / float64(len(t.Details))
}

// JudgeClient executes untrusted code remotely. Implementations degrade to a
// local simulation instead of returning errors for upstream outages, so the
// engines can treat every call as eventually producing a result.
type JudgeClient interface {
	Run(ctx context.Context, code, language, stdin string) (RunResult, error)
	RunTestCases(ctx context.Context, code, language string, cases []domain.TestCase) (TestRun, error)
}

// QuestionSource supplies quiz questions (DB pool plus generator fallback).
type QuestionSource interface {
	NextBatch(ctx context.Context, topic string, difficulty domain.Difficulty, count int) ([]domain.Question, error)
}

// ProgressTracker records per-player totals and streaks once per finished
// match. Failures are logged, never surfaced to the room.
type ProgressTracker interface {
	RecordMatch(ctx context.Context, userID string, score int) error
}
