package app

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"quizarena/internal/domain"
)

// battleEngine runs one 1v1 code battle. Like the quiz engine it executes
// entirely on the owning room's actor goroutine; judge calls block the actor
// for their bounded duration, which serializes submissions and makes the
// first-accepted-wins check race free.
type battleEngine struct {
	r      *room
	battle *domain.Battle
}

func newBattleEngine(r *room, b *domain.Battle) *battleEngine {
	return &battleEngine{r: r, battle: b}
}

func (e *battleEngine) dispatch(ctx context.Context, conn *Conn, msg Inbound) error {
	if !e.isPlayer(conn.User) {
		return domain.ErrPlayerNotFound
	}
	switch msg := msg.(type) {
	case SetReady:
		return e.setReady(ctx, conn, msg.Ready)
	case StartBattle:
		// Only the battle creator starts it.
		if conn.User != e.battle.Player1 {
			return domain.ErrNotHost
		}
		return e.start(ctx)
	case EndBattle:
		return e.end(ctx)
	case RunCode:
		return e.runCode(ctx, conn, msg)
	case SubmitCode:
		return e.submitCode(ctx, conn, msg)
	case LoadChallenge:
		e.r.hub.loadChallenge(ctx, conn, msg.ChallengeID)
		return nil
	case Typing:
		e.r.broadcastExcept(conn.User, TypingEvent{Username: conn.User})
		return nil
	case StopTyping:
		e.r.broadcastExcept(conn.User, StopTypingEvent{Username: conn.User})
		return nil
	case TabSwitchWarning:
		e.r.broadcastExcept(conn.User, TabWarning{Username: conn.User})
		return nil
	default:
		return fmt.Errorf("unexpected message %T in a battle", msg)
	}
}

func (e *battleEngine) isPlayer(user string) bool {
	return user == e.battle.Player1 || user == e.battle.Player2
}

// join seats the connection. Claiming the open seat happens here, on the
// actor goroutine, so two concurrent joiners cannot both win it and the
// engine's copy of the battle stays authoritative.
func (e *battleEngine) join(ctx context.Context, conn *Conn) error {
	announce := false
	if !e.isPlayer(conn.User) {
		if e.battle.Status != domain.BattleWaiting || e.battle.Player2 != "" {
			return domain.ErrBattleFull
		}
		e.battle.Player2 = conn.User
		if err := e.r.hub.store.SaveBattle(ctx, e.battle); err != nil {
			e.battle.Player2 = ""
			return err
		}
		announce = true
	}
	view := NewBattleView(e.battle)
	conn.Push(BattleJoined{Battle: view})
	if announce {
		e.r.broadcastExcept(conn.User, BattlePlayerJoined{Player: conn.User, Battle: view})
	}
	return nil
}

func (e *battleEngine) leave(ctx context.Context, conn *Conn, explicit bool) {
	if !explicit {
		return
	}
	conn.Push(LeftBattle{})
	e.r.broadcast(BattlePlayerLeft{Player: conn.User})
}

func (e *battleEngine) setReady(ctx context.Context, conn *Conn, ready bool) error {
	if e.battle.Status != domain.BattleWaiting {
		return domain.ErrGameInProgress
	}
	prev1, prev2 := e.battle.Player1Ready, e.battle.Player2Ready
	if conn.User == e.battle.Player1 {
		e.battle.Player1Ready = ready
	} else {
		e.battle.Player2Ready = ready
	}
	if err := e.r.hub.store.SaveBattle(ctx, e.battle); err != nil {
		e.battle.Player1Ready, e.battle.Player2Ready = prev1, prev2
		return err
	}
	e.r.broadcast(ReadyUpdate{Player: conn.User, Ready: ready, Battle: NewBattleView(e.battle)})
	return nil
}

func (e *battleEngine) start(ctx context.Context) error {
	if e.battle.Status != domain.BattleWaiting {
		return domain.ErrGameInProgress
	}
	if e.battle.Player2 == "" {
		return domain.ErrNotEnoughPlayers
	}
	if !e.battle.Player1Ready || !e.battle.Player2Ready {
		return domain.ErrPlayersNotReady
	}
	now := e.r.hub.opts.Clock()
	prev := *e.battle
	e.battle.Status = domain.BattleInProgress
	e.battle.StartedAt = &now
	e.battle.CurrentIndex = 0
	for _, p := range e.battle.Players() {
		e.battle.Scores[p] = 0
	}
	if err := e.r.hub.store.SaveBattle(ctx, e.battle); err != nil {
		*e.battle = prev
		return err
	}
	e.r.logger.Info().Int("challenges", len(e.battle.Challenges)).Msg("battle started")
	e.r.broadcast(BattleStarted{Battle: NewBattleView(e.battle)})
	return nil
}

func (e *battleEngine) runCode(ctx context.Context, conn *Conn, msg RunCode) error {
	if e.battle.Status != domain.BattleInProgress {
		return domain.ErrBattleFinished
	}
	e.r.broadcastExcept(conn.User, OpponentRunningCode{Username: conn.User})
	var stdin string
	if idx := e.battle.CurrentIndex; idx < len(e.battle.Challenges) && len(e.battle.Challenges[idx].TestCases) > 0 {
		stdin = e.battle.Challenges[idx].TestCases[0].Input
	}
	result, err := e.r.hub.judge.Run(ctx, msg.Code, msg.Language, stdin)
	if err != nil {
		return err
	}
	conn.Push(CodeResult{Result: result})
	return nil
}

func (e *battleEngine) submitCode(ctx context.Context, conn *Conn, msg SubmitCode) error {
	if e.battle.Status != domain.BattleInProgress {
		return domain.ErrBattleFinished
	}
	idx := e.battle.CurrentIndex
	if idx >= len(e.battle.Challenges) {
		return domain.ErrBattleFinished
	}
	ch := e.battle.Challenges[idx]

	run, err := e.r.hub.judge.RunTestCases(ctx, msg.Code, msg.Language, ch.TestCases)
	if err != nil {
		return err
	}
	status := statusFor(run, msg.IsTimeout)

	sub := &domain.Submission{
		ID:          uuid.NewString(),
		UserID:      conn.User,
		ChallengeID: ch.ID,
		Code:        msg.Code,
		Language:    msg.Language,
		Status:      status,
		TestResults: run.Details,
		SubmittedAt: e.r.hub.opts.Clock(),
	}
	if err := e.r.hub.store.CreateSubmission(ctx, sub); err != nil {
		return err
	}

	gained := run.Passed * 10
	if status == domain.SubmissionAccepted {
		bonus := 10 - int(run.AvgTime()*100)
		if bonus > 0 {
			gained += bonus
		}
	}
	e.battle.Scores[conn.User] += gained

	// First accepted submission claims the question; the check and the set
	// both happen on this goroutine, so the claim is exactly-once.
	wonNow := false
	if status == domain.SubmissionAccepted {
		if _, taken := e.battle.QuestionWinners[idx]; !taken {
			e.battle.QuestionWinners[idx] = conn.User
			wonNow = true
		}
	}
	if err := e.r.hub.store.SaveBattle(ctx, e.battle); err != nil {
		e.r.logger.Error().Err(err).Msg("save battle after submission failed")
	}

	conn.Push(SubmissionResult{
		Result:  string(status),
		Status:  status,
		Passed:  run.Passed,
		Total:   run.Total,
		Details: run.Details,
	})
	scores := copyScores(e.battle.Scores)
	e.r.broadcastExcept(conn.User, OpponentSubmission{
		Username: conn.User,
		Result:   string(status),
		Passed:   run.Passed,
		Total:    run.Total,
		Scores:   scores,
	})
	e.r.broadcast(BattleUpdate{Scores: scores})

	if wonNow {
		e.r.broadcast(QuestionWinner{
			Username:       conn.User,
			ChallengeIndex: idx,
			Scores:         scores,
		})
		// Give the opponent a short grace window before moving on; the
		// index recheck in graceDone drops the advance if the battle
		// progressed some other way first.
		e.r.after(e.r.hub.opts.GraceDelay, graceCmd{index: idx})
	}

	// An accepted submission always leaves the winner's grace window
	// running; only non-accepted outcomes can end the question early.
	if status == domain.SubmissionAccepted {
		return nil
	}
	done, err := e.allFinished(ctx, ch.ID)
	if err != nil {
		e.r.logger.Error().Err(err).Msg("finished check failed")
		return nil
	}
	if done {
		e.r.stopDelay()
		return e.advance(ctx)
	}
	return nil
}

// statusFor folds per-test outcomes into one submission status. A client
// reported timeout only sticks when the run did not fully pass.
func statusFor(run TestRun, isTimeout bool) domain.SubmissionStatus {
	if run.Total > 0 && run.Passed == run.Total {
		return domain.SubmissionAccepted
	}
	compiled := true
	timedOut := false
	for _, d := range run.Details {
		switch {
		case strings.Contains(strings.ToLower(d.Error), "compil"):
			compiled = false
		case strings.Contains(strings.ToLower(d.Error), "time limit"):
			timedOut = true
		}
	}
	switch {
	case isTimeout:
		return domain.SubmissionTimeLimit
	case !compiled:
		return domain.SubmissionCompilationError
	case timedOut:
		return domain.SubmissionTimeLimit
	default:
		return domain.SubmissionWrongAnswer
	}
}

// allFinished reports whether every player has a terminal submission for the
// challenge, which lets the battle advance without waiting out the grace.
func (e *battleEngine) allFinished(ctx context.Context, challengeID string) (bool, error) {
	players := e.battle.Players()
	if len(players) < 2 {
		return false, nil
	}
	for _, p := range players {
		subs, err := e.r.hub.store.SubmissionsFor(ctx, p, challengeID)
		if err != nil {
			return false, err
		}
		terminal := false
		for _, s := range subs {
			if s.Status.Terminal() {
				terminal = true
				break
			}
		}
		if !terminal {
			return false, nil
		}
	}
	return true, nil
}

func (e *battleEngine) graceDone(ctx context.Context, index int) {
	if e.battle.Status != domain.BattleInProgress || e.battle.CurrentIndex != index {
		return
	}
	if err := e.advance(ctx); err != nil {
		e.r.logger.Error().Err(err).Msg("advance after grace failed")
	}
}

func (e *battleEngine) advance(ctx context.Context) error {
	next := e.battle.CurrentIndex + 1
	if next >= len(e.battle.Challenges) {
		return e.end(ctx)
	}
	e.battle.CurrentIndex = next
	if err := e.r.hub.store.SaveBattle(ctx, e.battle); err != nil {
		e.battle.CurrentIndex = next - 1
		return err
	}
	e.r.broadcast(NextChallenge{Battle: NewBattleView(e.battle)})
	return nil
}

func (e *battleEngine) end(ctx context.Context) error {
	if e.battle.Status == domain.BattleCompleted {
		return nil
	}
	e.r.stopDelay()
	now := e.r.hub.opts.Clock()
	e.battle.Status = domain.BattleCompleted
	e.battle.CompletedAt = &now
	e.battle.Winner = e.decideWinner(ctx)
	if err := e.r.hub.store.SaveBattle(ctx, e.battle); err != nil {
		e.r.logger.Error().Err(err).Msg("save battle at end failed")
	}

	board := make([]domain.LeaderboardEntry, 0, 2)
	for _, p := range e.battle.Players() {
		board = append(board, domain.LeaderboardEntry{User: p, Score: e.battle.Scores[p]})
	}
	sort.Slice(board, func(i, j int) bool {
		if board[i].Score != board[j].Score {
			return board[i].Score > board[j].Score
		}
		return board[i].User < board[j].User
	})
	for i := range board {
		board[i].Rank = i + 1
	}
	e.r.broadcast(BattleEnded{Results: BattleResults{
		Winner:      e.battle.Winner,
		Scores:      copyScores(e.battle.Scores),
		Leaderboard: board,
	}})
	for _, p := range e.battle.Players() {
		e.r.hub.recordProgress(ctx, p, e.battle.Scores[p])
	}
	e.r.logger.Info().Str("winner", e.battle.Winner).Msg("battle ended")
	return nil
}

// playerTotals aggregates a player's submissions across the battle's
// challenges for tie breaking.
type playerTotals struct {
	passed int
	time   float64
	last   time.Time
}

func (e *battleEngine) totalsFor(ctx context.Context, user string) playerTotals {
	var t playerTotals
	for _, ch := range e.battle.Challenges {
		subs, err := e.r.hub.store.SubmissionsFor(ctx, user, ch.ID)
		if err != nil {
			e.r.logger.Warn().Err(err).Str("user", user).Msg("loading submissions for tie break failed")
			continue
		}
		for _, s := range subs {
			t.passed += s.PassedCount()
			t.time += s.TotalTime()
			if s.SubmittedAt.After(t.last) {
				t.last = s.SubmittedAt
			}
		}
	}
	return t
}

// decideWinner applies the tie-break ladder: score, then tests passed, then
// lower total runtime, then earlier final submission, then a declared tie.
func (e *battleEngine) decideWinner(ctx context.Context) string {
	players := e.battle.Players()
	if len(players) < 2 {
		return players[0]
	}
	p1, p2 := players[0], players[1]
	s1, s2 := e.battle.Scores[p1], e.battle.Scores[p2]
	if s1 != s2 {
		if s1 > s2 {
			return p1
		}
		return p2
	}
	t1, t2 := e.totalsFor(ctx, p1), e.totalsFor(ctx, p2)
	if t1.passed != t2.passed {
		if t1.passed > t2.passed {
			return p1
		}
		return p2
	}
	if t1.time != t2.time {
		if t1.time < t2.time {
			return p1
		}
		return p2
	}
	if !t1.last.Equal(t2.last) && !t1.last.IsZero() && !t2.last.IsZero() {
		if t1.last.Before(t2.last) {
			return p1
		}
		return p2
	}
	return domain.WinnerTie
}
