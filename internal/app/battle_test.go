package app_test

import (
	"context"
	"testing"
	"time"

	"quizarena/internal/app"
	"quizarena/internal/domain"
	"quizarena/internal/infra/memory"
)

func seedBattleChallenges(store *memory.Store, n int) {
	challenges := make([]domain.Challenge, 0, n)
	for i := 0; i < n; i++ {
		challenges = append(challenges, domain.Challenge{
			ID:         "ch-" + string(rune('a'+i)),
			Title:      "Challenge",
			Difficulty: domain.DifficultyEasy,
			TimeLimit:  300,
			TestCases: []domain.TestCase{
				{Input: "1", Output: "1"},
				{Input: "2", Output: "2"},
			},
		})
	}
	store.SeedChallenges(challenges)
}

// setupBattle creates a battle with alice and joins bob by code; both are in
// the battle room afterwards.
func setupBattle(t *testing.T, hub *app.Hub, store *memory.Store, numChallenges int) (alice, bob *app.Conn, code string) {
	t.Helper()
	ctx := context.Background()
	seedBattleChallenges(store, numChallenges)

	alice = app.NewConn("alice")
	hub.JoinLobby(alice)
	hub.Dispatch(ctx, alice, app.CreateBattle{NumQuestions: numChallenges, Level: "easy"})
	joined := waitFor[app.BattleJoined](t, alice)
	code = joined.Battle.Code
	if len(code) != domain.CodeLength {
		t.Fatalf("unexpected battle code %q", code)
	}

	bob = app.NewConn("bob")
	hub.JoinLobby(bob)
	hub.Dispatch(ctx, bob, app.JoinBattleByCode{BattleCode: code})
	waitFor[app.BattleJoined](t, bob)
	waitFor[app.BattlePlayerJoined](t, alice)
	return alice, bob, code
}

func startBattle(t *testing.T, hub *app.Hub, alice, bob *app.Conn) {
	t.Helper()
	ctx := context.Background()
	hub.Dispatch(ctx, alice, app.SetReady{Ready: true})
	hub.Dispatch(ctx, bob, app.SetReady{Ready: true})
	hub.Dispatch(ctx, alice, app.StartBattle{})
	waitFor[app.BattleStarted](t, alice)
	waitFor[app.BattleStarted](t, bob)
}

func TestBattleFirstAcceptedWinsQuestion(t *testing.T) {
	clk := newFakeClock()
	hub, store, _ := newTestHub(t, clk, nil)
	ctx := context.Background()
	alice, bob, _ := setupBattle(t, hub, store, 1)
	startBattle(t, hub, alice, bob)

	// Alice submits a full pass: 2 tests * 10 + speed bonus 9 = 29.
	hub.Dispatch(ctx, alice, app.SubmitCode{Code: "pass t=0.01", Language: "python"})
	res := waitFor[app.SubmissionResult](t, alice)
	if res.Status != domain.SubmissionAccepted || res.Passed != 2 {
		t.Fatalf("unexpected submission result: %+v", res)
	}
	winner := waitFor[app.QuestionWinner](t, bob)
	if winner.Username != "alice" || winner.ChallengeIndex != 0 {
		t.Fatalf("unexpected question winner: %+v", winner)
	}
	if winner.Scores["alice"] != 29 {
		t.Fatalf("expected alice score 29, got %d", winner.Scores["alice"])
	}

	// Bob also passes but the question is already claimed; his accepted
	// submission does not cut the grace window short, so the battle only
	// ends once it expires.
	hub.Dispatch(ctx, bob, app.SubmitCode{Code: "pass t=0.05", Language: "python"})
	waitFor[app.SubmissionResult](t, bob)
	expectNo[app.BattleEnded](t, bob, 10*time.Millisecond)
	expectNo[app.QuestionWinner](t, alice, 30*time.Millisecond)

	ended := waitFor[app.BattleEnded](t, bob)
	if ended.Results.Winner != "alice" {
		t.Fatalf("expected alice to win, got %q", ended.Results.Winner)
	}
	if ended.Results.Scores["alice"] != 29 || ended.Results.Scores["bob"] != 25 {
		t.Fatalf("unexpected final scores: %+v", ended.Results.Scores)
	}
}

func TestBattleGraceAdvancesChallenge(t *testing.T) {
	clk := newFakeClock()
	hub, store, _ := newTestHub(t, clk, nil)
	ctx := context.Background()
	alice, bob, _ := setupBattle(t, hub, store, 2)
	startBattle(t, hub, alice, bob)

	// Only alice finishes; bob never goes terminal, so the grace window
	// expires and the battle moves to the next challenge.
	hub.Dispatch(ctx, alice, app.SubmitCode{Code: "pass t=0.01", Language: "python"})
	waitFor[app.QuestionWinner](t, bob)
	next := waitFor[app.NextChallenge](t, bob)
	if next.Battle.CurrentIndex != 1 {
		t.Fatalf("expected challenge index 1, got %d", next.Battle.CurrentIndex)
	}
}

func TestBattleTimeoutSubmissionIsTerminal(t *testing.T) {
	clk := newFakeClock()
	hub, store, _ := newTestHub(t, clk, nil)
	ctx := context.Background()
	alice, bob, _ := setupBattle(t, hub, store, 2)
	startBattle(t, hub, alice, bob)

	hub.Dispatch(ctx, alice, app.SubmitCode{Code: "pass t=0.01", Language: "python"})
	waitFor[app.QuestionWinner](t, bob)

	// Bob times out; both players are terminal, so the advance happens
	// before the grace window would have fired.
	hub.Dispatch(ctx, bob, app.SubmitCode{Code: "fail", Language: "python", IsTimeout: true})
	res := waitFor[app.SubmissionResult](t, bob)
	if res.Status != domain.SubmissionTimeLimit {
		t.Fatalf("expected time_limit status, got %s", res.Status)
	}
	next := waitFor[app.NextChallenge](t, alice)
	if next.Battle.CurrentIndex != 1 {
		t.Fatalf("expected challenge index 1, got %d", next.Battle.CurrentIndex)
	}
}

func TestBattleCompileErrorStatus(t *testing.T) {
	clk := newFakeClock()
	hub, store, _ := newTestHub(t, clk, nil)
	ctx := context.Background()
	alice, bob, _ := setupBattle(t, hub, store, 1)
	startBattle(t, hub, alice, bob)

	hub.Dispatch(ctx, alice, app.SubmitCode{Code: "compile", Language: "python"})
	res := waitFor[app.SubmissionResult](t, alice)
	if res.Status != domain.SubmissionCompilationError {
		t.Fatalf("expected compilation_error, got %s", res.Status)
	}
	opp := waitFor[app.OpponentSubmission](t, bob)
	if opp.Username != "alice" || opp.Passed != 0 {
		t.Fatalf("unexpected opponent submission: %+v", opp)
	}
}

func TestBattleTieDeclaredWhenLadderExhausts(t *testing.T) {
	clk := newFakeClock()
	hub, store, _ := newTestHub(t, clk, nil)
	ctx := context.Background()
	alice, bob, _ := setupBattle(t, hub, store, 1)
	startBattle(t, hub, alice, bob)

	// Identical submissions: equal scores, passes, runtimes, and (with the
	// frozen clock) submission times, so the whole ladder exhausts.
	hub.Dispatch(ctx, alice, app.SubmitCode{Code: "pass t=0.01", Language: "python"})
	waitFor[app.SubmissionResult](t, alice)
	hub.Dispatch(ctx, bob, app.SubmitCode{Code: "pass t=0.01", Language: "python"})
	waitFor[app.SubmissionResult](t, bob)

	ended := waitFor[app.BattleEnded](t, alice)
	if ended.Results.Scores["alice"] != ended.Results.Scores["bob"] {
		t.Fatalf("expected equal scores, got %+v", ended.Results.Scores)
	}
	if ended.Results.Winner != domain.WinnerTie {
		t.Fatalf("expected tie, got %q", ended.Results.Winner)
	}
}

func TestBattleTieBreakPrefersLowerRuntime(t *testing.T) {
	clk := newFakeClock()
	hub, store, _ := newTestHub(t, clk, nil)
	ctx := context.Background()
	alice, bob, _ := setupBattle(t, hub, store, 1)
	startBattle(t, hub, alice, bob)

	// A per-test runtime of 0.014s earns the same speed bonus as 0.01s, so
	// scores and pass counts come out equal while bob's total runtime is
	// lower. Bob also submits later, so only the runtime rung can pick him.
	hub.Dispatch(ctx, alice, app.SubmitCode{Code: "pass t=0.014", Language: "python"})
	waitFor[app.SubmissionResult](t, alice)
	clk.Advance(2 * time.Second)
	hub.Dispatch(ctx, bob, app.SubmitCode{Code: "pass t=0.01", Language: "python"})
	waitFor[app.SubmissionResult](t, bob)

	ended := waitFor[app.BattleEnded](t, alice)
	if ended.Results.Scores["alice"] != ended.Results.Scores["bob"] {
		t.Fatalf("expected equal scores, got %+v", ended.Results.Scores)
	}
	if ended.Results.Winner != "bob" {
		t.Fatalf("expected bob to win on runtime, got %q", ended.Results.Winner)
	}
}

func TestBattleTieBreakPrefersEarlierSubmission(t *testing.T) {
	clk := newFakeClock()
	hub, store, _ := newTestHub(t, clk, nil)
	ctx := context.Background()
	alice, bob, _ := setupBattle(t, hub, store, 1)
	startBattle(t, hub, alice, bob)

	// Identical scores, passes, and runtimes; only the submission times
	// differ, so the last rung before a declared tie decides it.
	hub.Dispatch(ctx, alice, app.SubmitCode{Code: "pass t=0.01", Language: "python"})
	waitFor[app.SubmissionResult](t, alice)
	clk.Advance(2 * time.Second)
	hub.Dispatch(ctx, bob, app.SubmitCode{Code: "pass t=0.01", Language: "python"})
	waitFor[app.SubmissionResult](t, bob)

	ended := waitFor[app.BattleEnded](t, bob)
	if ended.Results.Winner != "alice" {
		t.Fatalf("expected alice to win on earlier submission, got %q", ended.Results.Winner)
	}
}

func TestBattleRunCodeNotifiesOpponent(t *testing.T) {
	clk := newFakeClock()
	hub, store, _ := newTestHub(t, clk, nil)
	ctx := context.Background()
	alice, bob, _ := setupBattle(t, hub, store, 1)
	startBattle(t, hub, alice, bob)

	hub.Dispatch(ctx, alice, app.RunCode{Code: "print(1)", Language: "python"})
	running := waitFor[app.OpponentRunningCode](t, bob)
	if running.Username != "alice" {
		t.Fatalf("unexpected running notification: %+v", running)
	}
	result := waitFor[app.CodeResult](t, alice)
	if result.Result.Output == "" {
		t.Fatalf("expected run output")
	}
}

func TestBattleTypingRelay(t *testing.T) {
	clk := newFakeClock()
	hub, store, _ := newTestHub(t, clk, nil)
	ctx := context.Background()
	alice, bob, _ := setupBattle(t, hub, store, 1)

	hub.Dispatch(ctx, alice, app.Typing{})
	typing := waitFor[app.TypingEvent](t, bob)
	if typing.Username != "alice" {
		t.Fatalf("unexpected typing event: %+v", typing)
	}
	expectNo[app.TypingEvent](t, alice, 20*time.Millisecond)
}

func TestJoinBattleByChallengeMatchmaking(t *testing.T) {
	clk := newFakeClock()
	hub, store, _ := newTestHub(t, clk, nil)
	ctx := context.Background()
	seedBattleChallenges(store, 1)

	alice := app.NewConn("alice")
	hub.JoinLobby(alice)
	hub.Dispatch(ctx, alice, app.JoinBattle{ChallengeID: "ch-a"})
	created := waitFor[app.BattleJoined](t, alice)
	if created.Battle.Player1 != "alice" || created.Battle.Player2 != "" {
		t.Fatalf("expected alice waiting alone, got %+v", created.Battle.Battle)
	}

	// Bob asks for the same challenge and lands in alice's battle.
	bob := app.NewConn("bob")
	hub.JoinLobby(bob)
	hub.Dispatch(ctx, bob, app.JoinBattle{ChallengeID: "ch-a"})
	joined := waitFor[app.BattleJoined](t, bob)
	if joined.Battle.Player1 != "alice" || joined.Battle.Player2 != "bob" {
		t.Fatalf("expected matchmaking into alice's battle, got %+v", joined.Battle.Battle)
	}
	waitFor[app.BattlePlayerJoined](t, alice)

	// The seat claim ran on the actor, so the persisted battle carries it.
	persisted, err := store.BattleByCode(ctx, joined.Battle.Code)
	if err != nil {
		t.Fatalf("battle lookup: %v", err)
	}
	if persisted.Player2 != "bob" {
		t.Fatalf("expected bob persisted as player2, got %q", persisted.Player2)
	}
}

func TestJoinFullBattleRejected(t *testing.T) {
	clk := newFakeClock()
	hub, store, _ := newTestHub(t, clk, nil)
	ctx := context.Background()
	_, _, code := setupBattle(t, hub, store, 1)

	carol := app.NewConn("carol")
	hub.JoinLobby(carol)
	hub.Dispatch(ctx, carol, app.JoinBattleByCode{BattleCode: code})
	errEvent := waitFor[app.ErrorEvent](t, carol)
	if errEvent.Message != domain.ErrBattleFull.Error() {
		t.Fatalf("expected battle-full error, got %q", errEvent.Message)
	}
}

func TestCreateBattleNeedsEnoughChallenges(t *testing.T) {
	clk := newFakeClock()
	hub, store, _ := newTestHub(t, clk, nil)
	ctx := context.Background()
	seedBattleChallenges(store, 1)

	alice := app.NewConn("alice")
	hub.JoinLobby(alice)
	hub.Dispatch(ctx, alice, app.CreateBattle{NumQuestions: 5, Level: "easy"})
	errEvent := waitFor[app.ErrorEvent](t, alice)
	if errEvent.Message != domain.ErrNoChallenges.Error() {
		t.Fatalf("expected no-challenges error, got %q", errEvent.Message)
	}
}

func TestStartBattleOnlyCreator(t *testing.T) {
	clk := newFakeClock()
	hub, store, _ := newTestHub(t, clk, nil)
	alice, bob, _ := setupBattle(t, hub, store, 1)
	ctx := context.Background()

	// Mutual readiness alone never starts the battle.
	hub.Dispatch(ctx, alice, app.SetReady{Ready: true})
	hub.Dispatch(ctx, bob, app.SetReady{Ready: true})
	expectNo[app.BattleStarted](t, alice, 30*time.Millisecond)

	hub.Dispatch(ctx, bob, app.StartBattle{})
	errEvent := waitFor[app.ErrorEvent](t, bob)
	if errEvent.Message != domain.ErrNotHost.Error() {
		t.Fatalf("expected not-host rejection, got %q", errEvent.Message)
	}

	hub.Dispatch(ctx, alice, app.StartBattle{})
	waitFor[app.BattleStarted](t, alice)
	waitFor[app.BattleStarted](t, bob)
}
