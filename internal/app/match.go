package app

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"quizarena/internal/domain"
)

// matchEngine runs one quiz room's round protocol. Every method executes on
// the owning room's actor goroutine, so the cached room and player records
// are mutated without locks; the store is written before state transitions
// take effect.
type matchEngine struct {
	r    *room
	room *domain.Room

	players map[string]*domain.Player
	quiz    []domain.Question

	// round increments on every new question; ticks, timeouts and review
	// expirations carry the round they were armed for and are dropped when
	// the token no longer matches.
	round      int
	roundStart time.Time
	// effective is the scoring denominator in seconds. It starts at the
	// room's timer duration and shrinks when the first answer truncates
	// the round.
	effective int
	// gained holds each player's points for the current round, frozen at
	// the moment they answered.
	gained map[string]int
}

func newMatchEngine(r *room, rm *domain.Room) *matchEngine {
	return &matchEngine{r: r, room: rm, players: make(map[string]*domain.Player)}
}

func (m *matchEngine) dispatch(ctx context.Context, conn *Conn, msg Inbound) error {
	switch msg := msg.(type) {
	case ToggleReady:
		return m.toggleReady(ctx, conn)
	case StartGame:
		return m.startGame(ctx, conn)
	case SubmitAnswer:
		return m.submitAnswer(ctx, conn, msg)
	case TimeUp:
		// Client countdowns are advisory; only act if the server still
		// considers the round open.
		if m.room.RoundState == domain.RoundActive {
			return m.endRound(ctx)
		}
		return nil
	default:
		return fmt.Errorf("unexpected message %T in a quiz room", msg)
	}
}

func (m *matchEngine) join(ctx context.Context, conn *Conn) error {
	if len(m.players) == 0 {
		if err := m.loadPlayers(ctx); err != nil {
			return err
		}
	}
	if _, ok := m.players[conn.User]; ok {
		// Reconnect: replay the snapshot, no announcement.
		conn.Push(RoomState{Room: m.view()})
		return nil
	}
	if m.room.Status != domain.RoomWaiting {
		return domain.ErrGameInProgress
	}
	if len(m.players) >= m.room.MaxPlayers {
		return domain.ErrRoomFull
	}
	p := &domain.Player{
		UserID:   conn.User,
		Username: conn.User,
		RoomID:   m.room.ID,
		JoinedAt: m.r.hub.opts.Clock(),
	}
	if err := m.r.hub.store.CreatePlayer(ctx, p); err != nil {
		return err
	}
	m.players[conn.User] = p
	view := m.view()
	conn.Push(RoomState{Room: view})
	m.r.broadcastExcept(conn.User, PlayerJoined{
		Message: fmt.Sprintf("%s joined the room", conn.User),
		Room:    view,
	})
	return nil
}

func (m *matchEngine) loadPlayers(ctx context.Context) error {
	players, err := m.r.hub.store.Players(ctx, m.room.ID)
	if err != nil {
		return err
	}
	for _, p := range players {
		m.players[p.UserID] = p
	}
	return nil
}

func (m *matchEngine) leave(ctx context.Context, conn *Conn, explicit bool) {
	if !explicit {
		// A dropped socket keeps the player's seat; it may finish the
		// current round for the rest though.
		if m.room.RoundState == domain.RoundActive {
			m.checkAllAnswered(ctx)
		}
		return
	}
	p, ok := m.players[conn.User]
	if !ok {
		return
	}
	if err := m.r.hub.store.DeletePlayer(ctx, m.room.ID, p.UserID); err != nil {
		m.r.logger.Error().Err(err).Str("user", p.UserID).Msg("delete player failed")
		return
	}
	delete(m.players, conn.User)
	if len(m.players) == 0 {
		if err := m.r.hub.store.DeleteRoom(ctx, m.room.ID); err != nil {
			m.r.logger.Error().Err(err).Msg("delete room failed")
		}
		return
	}
	if m.room.Host == p.UserID {
		m.reassignHost(ctx)
	}
	m.r.broadcast(PlayerLeft{
		Message: fmt.Sprintf("%s left the room", conn.User),
		Room:    m.view(),
	})
	if m.room.RoundState == domain.RoundActive {
		m.checkAllAnswered(ctx)
	}
}

// reassignHost promotes the earliest-joined remaining player.
func (m *matchEngine) reassignHost(ctx context.Context) {
	var next *domain.Player
	for _, p := range m.players {
		if next == nil || p.JoinedAt.Before(next.JoinedAt) {
			next = p
		}
	}
	m.room.Host = next.UserID
	if err := m.r.hub.store.SaveRoom(ctx, m.room); err != nil {
		m.r.logger.Error().Err(err).Msg("save room after host change failed")
	}
}

func (m *matchEngine) toggleReady(ctx context.Context, conn *Conn) error {
	p, ok := m.players[conn.User]
	if !ok {
		return domain.ErrPlayerNotFound
	}
	p.IsReady = !p.IsReady
	if err := m.r.hub.store.SavePlayer(ctx, p); err != nil {
		p.IsReady = !p.IsReady
		return err
	}
	state := "not ready"
	if p.IsReady {
		state = "ready"
	}
	m.r.broadcast(PlayerReady{
		Message: fmt.Sprintf("%s is %s", conn.User, state),
		Room:    m.view(),
	})
	return nil
}

func (m *matchEngine) startGame(ctx context.Context, conn *Conn) error {
	if conn.User != m.room.Host {
		return domain.ErrNotHost
	}
	if m.room.Status != domain.RoomWaiting {
		return domain.ErrGameInProgress
	}
	if len(m.players) < 2 {
		return domain.ErrNotEnoughPlayers
	}
	for _, p := range m.players {
		if p.UserID != m.room.Host && !p.IsReady {
			return domain.ErrPlayersNotReady
		}
	}
	questions, err := m.r.hub.questions.NextBatch(ctx, m.room.Topic, m.room.Difficulty, m.room.NumQuestions)
	if err != nil {
		return err
	}
	quizID := uuid.NewString()
	now := m.r.hub.opts.Clock()
	prev := *m.room
	m.room.Status = domain.RoomActive
	m.room.QuizID = quizID
	m.room.StartedAt = &now
	if err := m.r.hub.store.SaveRoom(ctx, m.room); err != nil {
		*m.room = prev
		return err
	}
	m.quiz = questions
	for _, p := range m.players {
		p.Score = 0
		if err := m.r.hub.store.SavePlayer(ctx, p); err != nil {
			m.r.logger.Error().Err(err).Str("user", p.UserID).Msg("reset score failed")
		}
	}
	m.r.logger.Info().Int("questions", len(questions)).Msg("game started")
	m.r.broadcast(GameStarted{Message: "game started", QuizID: quizID})
	return m.startQuestion(ctx, 0)
}

func (m *matchEngine) startQuestion(ctx context.Context, idx int) error {
	now := m.r.hub.opts.Clock()
	prev := *m.room
	m.room.CurrentQuestion = idx
	m.room.RoundState = domain.RoundActive
	m.room.RoundStartTime = &now
	if err := m.r.hub.store.SaveRoom(ctx, m.room); err != nil {
		*m.room = prev
		return err
	}
	m.round++
	for _, p := range m.players {
		p.CurrentAnswer = nil
		p.AnswerTimeUsed = 0
		p.AnswerTimestamp = nil
	}
	m.roundStart = now
	m.effective = m.room.TimerDuration
	m.gained = make(map[string]int)
	// Strip the answer before the question leaves the engine; the JSON tag
	// alone only protects the websocket path, not in-process consumers.
	question := m.quiz[idx]
	question.CorrectAnswer = ""
	m.r.broadcast(NewQuestion{
		QuestionIndex: idx,
		Question:      question,
		TimerDuration: m.room.TimerDuration,
	})
	m.r.startCountdown(m.round, m.room.TimerDuration)
	return nil
}

func (m *matchEngine) submitAnswer(ctx context.Context, conn *Conn, msg SubmitAnswer) error {
	if m.room.RoundState != domain.RoundActive || msg.QuestionIndex != m.room.CurrentQuestion {
		// Stale answer from a previous round; drop it silently.
		return nil
	}
	p, ok := m.players[conn.User]
	if !ok {
		return domain.ErrPlayerNotFound
	}
	if p.CurrentAnswer != nil {
		return nil
	}
	now := m.r.hub.opts.Clock()
	timeUsed := int(now.Sub(m.roundStart).Seconds())
	if timeUsed < 0 {
		timeUsed = 0
	}
	if timeUsed > m.effective {
		timeUsed = m.effective
	}
	question := m.quiz[m.room.CurrentQuestion]
	gained := 0
	if msg.Answer == question.CorrectAnswer {
		gained = scoreFor(timeUsed, m.effective)
	}
	answer := msg.Answer
	prevScore := p.Score
	p.CurrentAnswer = &answer
	p.AnswerTimeUsed = timeUsed
	p.AnswerTimestamp = &now
	p.Score += gained
	if err := m.r.hub.store.SavePlayer(ctx, p); err != nil {
		p.CurrentAnswer = nil
		p.AnswerTimestamp = nil
		p.Score = prevScore
		return err
	}
	m.gained[conn.User] = gained
	first := m.answeredCount() == 1
	m.r.broadcast(PlayerAnswered{
		User:          conn.User,
		QuestionIndex: m.room.CurrentQuestion,
		AnsweredCount: m.answeredCount(),
		TotalPlayers:  m.r.connectedUsers(),
		TimeUsed:      timeUsed,
	})
	if m.checkAllAnswered(ctx) {
		return nil
	}
	if first {
		// First answer truncates the round: the clock restarts with the
		// seconds already spent, so fast answers shorten the wait for
		// everyone else.
		remaining := timeUsed
		if remaining < 1 {
			remaining = 1
		}
		m.effective = timeUsed + remaining
		m.r.broadcast(TimerReduced{NewDuration: remaining, TriggeredBy: conn.User})
		m.r.startCountdown(m.round, remaining)
	}
	return nil
}

// scoreFor is 100 base points plus a speed bonus that decays linearly over
// the round's effective duration.
func scoreFor(timeUsed, effective int) int {
	if effective <= 0 {
		return 100
	}
	ratio := float64(timeUsed) / float64(effective)
	if ratio > 1 {
		ratio = 1
	}
	bonus := 100 - int(ratio*100)
	if bonus < 0 {
		bonus = 0
	}
	return 100 + bonus
}

func (m *matchEngine) answeredCount() int {
	n := 0
	for _, p := range m.players {
		if p.CurrentAnswer != nil {
			n++
		}
	}
	return n
}

// checkAllAnswered ends the round when every connected player has answered.
func (m *matchEngine) checkAllAnswered(ctx context.Context) bool {
	total := m.r.connectedUsers()
	if total == 0 || m.answeredCount() < total {
		return false
	}
	if err := m.endRound(ctx); err != nil {
		m.r.logger.Error().Err(err).Msg("end round failed")
		return false
	}
	return true
}

func (m *matchEngine) tick(round, remaining int) {
	if round != m.round || m.room.RoundState != domain.RoundActive {
		return
	}
	m.r.broadcast(Timer{Remaining: remaining})
}

func (m *matchEngine) timeout(ctx context.Context, round int) {
	if round != m.round || m.room.RoundState != domain.RoundActive {
		return
	}
	if err := m.endRound(ctx); err != nil {
		m.r.logger.Error().Err(err).Msg("end round on timeout failed")
	}
}

func (m *matchEngine) endRound(ctx context.Context) error {
	m.r.stopCountdown()
	prev := m.room.RoundState
	m.room.RoundState = domain.RoundReview
	if err := m.r.hub.store.SaveRoom(ctx, m.room); err != nil {
		m.room.RoundState = prev
		return err
	}
	question := m.quiz[m.room.CurrentQuestion]
	results := make([]PlayerRoundResult, 0, len(m.players))
	for _, p := range m.players {
		res := PlayerRoundResult{User: p.Username, Selected: p.CurrentAnswer}
		if p.CurrentAnswer != nil {
			res.IsCorrect = *p.CurrentAnswer == question.CorrectAnswer
			res.AnswerTime = p.AnswerTimeUsed
			res.ScoreGained = m.gained[p.UserID]
		}
		results = append(results, res)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].User < results[j].User })
	m.r.broadcast(RoundResult{
		QuestionIndex:  m.room.CurrentQuestion,
		CorrectAnswer:  question.CorrectAnswer,
		PlayerResults:  results,
		Leaderboard:    m.leaderboard(),
		ReviewDuration: reviewSeconds,
	})
	m.r.broadcast(ReviewStart{Duration: reviewSeconds})
	m.r.after(m.r.hub.opts.ReviewDelay, reviewDoneCmd{round: m.round})
	return nil
}

func (m *matchEngine) reviewDone(ctx context.Context, round int) {
	if round != m.round || m.room.RoundState != domain.RoundReview {
		return
	}
	m.r.broadcast(ReviewEnd{})
	next := m.room.CurrentQuestion + 1
	if next < len(m.quiz) {
		if err := m.startQuestion(ctx, next); err != nil {
			m.r.logger.Error().Err(err).Int("question", next).Msg("round start failed")
		}
		return
	}
	m.finishQuiz(ctx)
}

func (m *matchEngine) finishQuiz(ctx context.Context) {
	m.room.Status = domain.RoomFinished
	m.room.RoundState = domain.RoundComplete
	if err := m.r.hub.store.SaveRoom(ctx, m.room); err != nil {
		m.r.logger.Error().Err(err).Msg("save room at quiz end failed")
	}
	board := m.leaderboard()
	m.r.broadcast(QuizFinished{Message: "quiz finished", FinalLeaderboard: board})
	for _, p := range m.players {
		m.r.hub.recordProgress(ctx, p.UserID, p.Score)
	}
	m.r.logger.Info().Int("players", len(m.players)).Msg("quiz finished")
}

// leaderboard orders by score descending, username ascending on ties.
func (m *matchEngine) leaderboard() []domain.LeaderboardEntry {
	board := make([]domain.LeaderboardEntry, 0, len(m.players))
	for _, p := range m.players {
		board = append(board, domain.LeaderboardEntry{User: p.Username, Score: p.Score})
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
	return board
}

func (m *matchEngine) view() RoomView {
	players := make([]*domain.Player, 0, len(m.players))
	for _, p := range m.players {
		players = append(players, p)
	}
	return NewRoomView(m.room, players)
}
