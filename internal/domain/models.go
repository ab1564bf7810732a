package domain

import "time"

// Difficulty selects the question pool and the per-question timer.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// TimerSeconds returns the per-question countdown length for a difficulty.
func (d Difficulty) TimerSeconds() int {
	switch d {
	case DifficultyEasy:
		return 30
	case DifficultyHard:
		return 60
	default:
		return 45
	}
}

type RoomStatus string

const (
	RoomWaiting  RoomStatus = "waiting"
	RoomActive   RoomStatus = "active"
	RoomFinished RoomStatus = "finished"
)

type RoundState string

const (
	RoundWaiting  RoundState = "waiting"
	RoundActive   RoundState = "active"
	RoundReview   RoundState = "review"
	RoundComplete RoundState = "complete"
)

// Room is one multiplayer quiz session, identified by a shareable code.
type Room struct {
	ID              string     `json:"id"`
	Code            string     `json:"code"`
	Host            string     `json:"host"`
	Status          RoomStatus `json:"status"`
	MaxPlayers      int        `json:"maxPlayers"`
	Topic           string     `json:"topic"`
	Difficulty      Difficulty `json:"difficulty"`
	NumQuestions    int        `json:"numQuestions"`
	TimerDuration   int        `json:"timerDuration"` // seconds
	CurrentQuestion int        `json:"currentQuestion"`
	RoundState      RoundState `json:"roundState"`
	RoundStartTime  *time.Time `json:"roundStartTime,omitempty"`
	QuizID          string     `json:"quizId,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	StartedAt       *time.Time `json:"startedAt,omitempty"`
}

// Player is a user's membership in a room. Answer slots reset every round.
type Player struct {
	UserID          string     `json:"userId"`
	Username        string     `json:"username"`
	RoomID          string     `json:"roomId"`
	Score           int        `json:"score"`
	IsReady         bool       `json:"isReady"`
	JoinedAt        time.Time  `json:"joinedAt"`
	CurrentAnswer   *string    `json:"-"`
	AnswerTimeUsed  int        `json:"-"`
	AnswerTimestamp *time.Time `json:"-"`
}

// Option is one choice of an MCQ question.
type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Question is read-only during a match; CorrectAnswer never goes on the wire.
type Question struct {
	ID            string   `json:"id"`
	Prompt        string   `json:"prompt"`
	Options       []Option `json:"options"`
	CorrectAnswer string   `json:"-"`
}

// Quiz is an ordered list of questions attached to a room once generated.
type Quiz struct {
	ID        string     `json:"id"`
	Topic     string     `json:"topic"`
	Questions []Question `json:"questions"`
}

type BattleStatus string

const (
	BattleWaiting    BattleStatus = "waiting"
	BattleInProgress BattleStatus = "in_progress"
	BattleCompleted  BattleStatus = "completed"
)

// WinnerTie marks a battle that ended level after the tie-break ladder.
const WinnerTie = "tie"

// Battle is a 1v1 coding competition across an ordered challenge list.
type Battle struct {
	ID              string         `json:"id"`
	Code            string         `json:"code"`
	Player1         string         `json:"player1"`
	Player2         string         `json:"player2,omitempty"`
	Player1Ready    bool           `json:"player1Ready"`
	Player2Ready    bool           `json:"player2Ready"`
	Status          BattleStatus   `json:"status"`
	Challenges      []Challenge    `json:"challenges"`
	CurrentIndex    int            `json:"currentChallengeIndex"`
	Scores          map[string]int `json:"scores"`
	QuestionWinners map[int]string `json:"questionWinners"` // set-once per index
	Winner          string         `json:"winner,omitempty"`
	NumQuestions    int            `json:"numQuestions"`
	Level           Difficulty     `json:"level"`
	StartedAt       *time.Time     `json:"startedAt,omitempty"`
	CompletedAt     *time.Time     `json:"completedAt,omitempty"`
}

// Players lists the filled seats in join order.
func (b *Battle) Players() []string {
	players := []string{b.Player1}
	if b.Player2 != "" {
		players = append(players, b.Player2)
	}
	return players
}

// TestCase is one input/expected-output pair of a challenge.
type TestCase struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

// Challenge is a coding problem; test cases stay server-side.
type Challenge struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	ProblemStatement string     `json:"problemStatement"`
	SampleIO         string     `json:"sampleIO,omitempty"`
	Difficulty       Difficulty `json:"difficulty"`
	TimeLimit        int        `json:"timeLimit"` // seconds
	TestCases        []TestCase `json:"-"`
}

type SubmissionStatus string

const (
	SubmissionPending          SubmissionStatus = "pending"
	SubmissionAccepted         SubmissionStatus = "accepted"
	SubmissionWrongAnswer      SubmissionStatus = "wrong_answer"
	SubmissionTimeLimit        SubmissionStatus = "time_limit"
	SubmissionMemoryLimit      SubmissionStatus = "memory_limit"
	SubmissionCompilationError SubmissionStatus = "compilation_error"
)

// Terminal reports whether the submission stops the player's work on a
// challenge (drives the all-finished auto-progress check).
func (s SubmissionStatus) Terminal() bool {
	return s == SubmissionAccepted || s == SubmissionTimeLimit
}

// TestResult is the per-test detail of a judged submission.
type TestResult struct {
	Input    string  `json:"input"`
	Expected string  `json:"expected"`
	Output   string  `json:"output"`
	Passed   bool    `json:"passed"`
	Error    string  `json:"error,omitempty"`
	Time     float64 `json:"time"` // seconds
}

// Submission is immutable once created.
type Submission struct {
	ID          string           `json:"id"`
	UserID      string           `json:"userId"`
	ChallengeID string           `json:"challengeId"`
	Code        string           `json:"code"`
	Language    string           `json:"language"`
	Status      SubmissionStatus `json:"status"`
	TestResults []TestResult     `json:"testResults"`
	SubmittedAt time.Time        `json:"submittedAt"`
}

// PassedCount sums the per-test passes.
func (s Submission) PassedCount() int {
	n := 0
	for _, tr := range s.TestResults {
		if tr.Passed {
			n++
		}
	}
	return n
}

// TotalTime sums per-test runtimes in seconds.
func (s Submission) TotalTime() float64 {
	var t float64
	for _, tr := range s.TestResults {
		t += tr.Time
	}
	return t
}

// LeaderboardEntry is one row of a score-ordered board.
type LeaderboardEntry struct {
	User  string `json:"user"`
	Score int    `json:"score"`
	Rank  int    `json:"rank,omitempty"`
}
