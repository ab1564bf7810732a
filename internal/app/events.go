package app

import (
	"sort"

	"quizarena/internal/domain"
)

// Event is the closed set of server-to-client events. Each variant knows its
// wire type; the gateway wraps it into the {type, payload} envelope.
type Event interface {
	EventType() string
}

// PlayerView is the per-player slice of a room snapshot.
type PlayerView struct {
	Username string `json:"username"`
	Score    int    `json:"score"`
	IsReady  bool   `json:"isReady"`
	IsHost   bool   `json:"isHost"`
}

// RoomView is the wire snapshot of a quiz room. Questions and correct
// answers never appear here.
type RoomView struct {
	domain.Room
	Players []PlayerView `json:"players"`
}

// NewRoomView builds a snapshot with players in join order.
func NewRoomView(room *domain.Room, players []*domain.Player) RoomView {
	view := RoomView{Room: *room, Players: make([]PlayerView, 0, len(players))}
	sort.SliceStable(players, func(i, j int) bool {
		return players[i].JoinedAt.Before(players[j].JoinedAt)
	})
	for _, p := range players {
		view.Players = append(view.Players, PlayerView{
			Username: p.Username,
			Score:    p.Score,
			IsReady:  p.IsReady,
			IsHost:   p.UserID == room.Host,
		})
	}
	return view
}

// BattleView is the wire snapshot of a battle. Challenge test cases are
// hidden by the domain JSON tags.
type BattleView struct {
	domain.Battle
	CurrentChallenge *domain.Challenge `json:"currentChallenge,omitempty"`
}

// NewBattleView builds a snapshot including the live challenge, if any. Maps
// are copied because the actor keeps mutating the originals while the
// gateway marshals the event.
func NewBattleView(battle *domain.Battle) BattleView {
	view := BattleView{Battle: *battle}
	view.Scores = copyScores(battle.Scores)
	winners := make(map[int]string, len(battle.QuestionWinners))
	for k, v := range battle.QuestionWinners {
		winners[k] = v
	}
	view.QuestionWinners = winners
	if battle.CurrentIndex < len(battle.Challenges) {
		ch := battle.Challenges[battle.CurrentIndex]
		view.CurrentChallenge = &ch
	}
	return view
}

func copyScores(scores map[string]int) map[string]int {
	out := make(map[string]int, len(scores))
	for k, v := range scores {
		out[k] = v
	}
	return out
}

// PlayerRoundResult is one player's outcome in a round_result event.
type PlayerRoundResult struct {
	User        string  `json:"user"`
	Selected    *string `json:"selected"`
	IsCorrect   bool    `json:"isCorrect"`
	AnswerTime  int     `json:"answerTime"`
	ScoreGained int     `json:"scoreGained"`
}

// BattleResults is the payload of battle_ended.
type BattleResults struct {
	Winner      string                    `json:"winner"`
	Scores      map[string]int            `json:"scores"`
	Leaderboard []domain.LeaderboardEntry `json:"leaderboard"`
}

// Quiz room events.

type RoomState struct {
	Room RoomView `json:"room"`
}

type PlayerJoined struct {
	Message string   `json:"message"`
	Room    RoomView `json:"room"`
}

type PlayerReady struct {
	Message string   `json:"message"`
	Room    RoomView `json:"room"`
}

type PlayerLeft struct {
	Message string   `json:"message"`
	Room    RoomView `json:"room"`
}

type GameStarted struct {
	Message string `json:"message"`
	QuizID  string `json:"quizId"`
}

type NewQuestion struct {
	QuestionIndex int             `json:"questionIndex"`
	Question      domain.Question `json:"question"`
	TimerDuration int             `json:"timerDuration"`
}

type Timer struct {
	Remaining int `json:"remaining"`
}

type TimerReduced struct {
	NewDuration int    `json:"newDuration"`
	TriggeredBy string `json:"triggeredBy"`
}

type PlayerAnswered struct {
	User          string `json:"user"`
	QuestionIndex int    `json:"questionIndex"`
	AnsweredCount int    `json:"answeredCount"`
	TotalPlayers  int    `json:"totalPlayers"`
	TimeUsed      int    `json:"timeUsed"`
}

type RoundResult struct {
	QuestionIndex  int                       `json:"questionIndex"`
	CorrectAnswer  string                    `json:"correctAnswer"`
	PlayerResults  []PlayerRoundResult       `json:"playerResults"`
	Leaderboard    []domain.LeaderboardEntry `json:"leaderboard"`
	ReviewDuration int                       `json:"reviewDuration"`
}

type ReviewStart struct {
	Duration int `json:"duration"`
}

type ReviewEnd struct{}

type QuizFinished struct {
	Message          string                    `json:"message"`
	FinalLeaderboard []domain.LeaderboardEntry `json:"finalLeaderboard"`
}

// Battle events.

type BattleJoined struct {
	Battle BattleView `json:"battle"`
}

type BattleStarted struct {
	Battle BattleView `json:"battle"`
}

type ReadyUpdate struct {
	Player string     `json:"player"`
	Ready  bool       `json:"ready"`
	Battle BattleView `json:"battle"`
}

type BattlePlayerJoined struct {
	Player string     `json:"player"`
	Battle BattleView `json:"battle"`
}

type BattlePlayerLeft struct {
	Player string `json:"player"`
}

type LeftBattle struct{}

type ChallengeLoaded struct {
	Challenge domain.Challenge `json:"challenge"`
}

type OpponentRunningCode struct {
	Username string `json:"username"`
}

type CodeResult struct {
	Result RunResult `json:"result"`
}

type SubmissionResult struct {
	Result  string                  `json:"result"`
	Status  domain.SubmissionStatus `json:"status"`
	Passed  int                     `json:"passed"`
	Total   int                     `json:"total"`
	Details []domain.TestResult     `json:"details"`
}

type OpponentSubmission struct {
	Username string         `json:"username"`
	Result   string         `json:"result"`
	Passed   int            `json:"passed"`
	Total    int            `json:"total"`
	Scores   map[string]int `json:"scores"`
}

type BattleUpdate struct {
	Scores map[string]int `json:"scores"`
}

type QuestionWinner struct {
	Username       string         `json:"username"`
	ChallengeIndex int            `json:"challengeIndex"`
	Scores         map[string]int `json:"scores"`
}

type NextChallenge struct {
	Battle BattleView `json:"battle"`
}

type BattleEnded struct {
	Results BattleResults `json:"results"`
}

type TypingEvent struct {
	Username string `json:"username"`
}

type StopTypingEvent struct {
	Username string `json:"username"`
}

type TabWarning struct {
	Username string `json:"username"`
}

// Shared events.

type ErrorEvent struct {
	Message string `json:"message"`
}

func (RoomState) EventType() string           { return "room_state" }
func (PlayerJoined) EventType() string        { return "player_joined" }
func (PlayerReady) EventType() string         { return "player_ready" }
func (PlayerLeft) EventType() string          { return "player_left" }
func (GameStarted) EventType() string         { return "game_started" }
func (NewQuestion) EventType() string         { return "new_question" }
func (Timer) EventType() string               { return "timer" }
func (TimerReduced) EventType() string        { return "timer_reduced" }
func (PlayerAnswered) EventType() string      { return "player_answered" }
func (RoundResult) EventType() string         { return "round_result" }
func (ReviewStart) EventType() string         { return "review_start" }
func (ReviewEnd) EventType() string           { return "review_end" }
func (QuizFinished) EventType() string        { return "quiz_finished" }
func (BattleJoined) EventType() string        { return "battle_joined" }
func (BattleStarted) EventType() string       { return "battle_started" }
func (ReadyUpdate) EventType() string         { return "player_ready" }
func (BattlePlayerJoined) EventType() string  { return "player_joined" }
func (BattlePlayerLeft) EventType() string    { return "player_left" }
func (LeftBattle) EventType() string          { return "left_battle" }
func (ChallengeLoaded) EventType() string     { return "challenge_loaded" }
func (OpponentRunningCode) EventType() string { return "opponent_running_code" }
func (CodeResult) EventType() string          { return "code_result" }
func (SubmissionResult) EventType() string    { return "submission_result" }
func (OpponentSubmission) EventType() string  { return "opponent_submission" }
func (BattleUpdate) EventType() string        { return "battle_update" }
func (QuestionWinner) EventType() string      { return "question_winner" }
func (NextChallenge) EventType() string       { return "next_challenge" }
func (BattleEnded) EventType() string         { return "battle_ended" }
func (TypingEvent) EventType() string         { return "typing" }
func (StopTypingEvent) EventType() string     { return "stop_typing" }
func (TabWarning) EventType() string          { return "tab_warning" }
func (ErrorEvent) EventType() string          { return "error" }
