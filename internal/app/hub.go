package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"quizarena/internal/domain"
)

// Options tunes the hub's timing. Tests shrink the durations; production
// uses the defaults.
type Options struct {
	Tick        time.Duration    // countdown tick interval
	ReviewDelay time.Duration    // pause after round_result
	GraceDelay  time.Duration    // pause after a question_winner
	Clock       func() time.Time // injectable for deterministic tests
}

func (o Options) withDefaults() Options {
	if o.Tick <= 0 {
		o.Tick = time.Second
	}
	if o.ReviewDelay <= 0 {
		o.ReviewDelay = 5 * time.Second
	}
	if o.GraceDelay <= 0 {
		o.GraceDelay = 5 * time.Second
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

// reviewSeconds is what clients are told to display regardless of the
// configured delay, matching the fixed five second review phase.
const reviewSeconds = 5

// Conn is one client connection. The gateway pushes inbound messages through
// the hub and drains Events; room actors push outbound events and never
// block on a slow connection.
type Conn struct {
	ID   string
	User string // username; empty means unauthenticated

	send chan Event
}

// NewConn allocates a connection handle with a bounded outbound buffer.
func NewConn(user string) *Conn {
	return &Conn{
		ID:   uuid.NewString(),
		User: user,
		send: make(chan Event, 32),
	}
}

// Events is the ordered outbound stream for this connection.
func (c *Conn) Events() <-chan Event { return c.send }

// Push delivers without blocking; a connection that cannot keep up loses its
// own events, never the room's broadcast.
func (c *Conn) Push(e Event) bool {
	select {
	case c.send <- e:
		return true
	default:
		return false
	}
}

// Hub owns the registry of live room actors and routes connections to them.
// It is the only holder of cross-room state; everything inside a room is
// mutated solely by that room's actor goroutine.
type Hub struct {
	store     RoomStore
	judge     JudgeClient
	questions QuestionSource
	progress  ProgressTracker
	opts      Options
	logger    zerolog.Logger

	mu     sync.RWMutex
	rooms  map[string]*room // room/battle id -> actor
	byConn map[string]*room // connection id -> actor (absent = lobby)
}

// NewHub wires the hub with its external collaborators.
func NewHub(store RoomStore, judge JudgeClient, questions QuestionSource, progress ProgressTracker, logger zerolog.Logger, opts Options) *Hub {
	return &Hub{
		store:     store,
		judge:     judge,
		questions: questions,
		progress:  progress,
		opts:      opts.withDefaults(),
		logger:    logger,
		rooms:     make(map[string]*room),
		byConn:    make(map[string]*room),
	}
}

// CreateRoom creates a quiz room with a fresh join code and registers the
// host as its first player.
func (h *Hub) CreateRoom(ctx context.Context, host, topic string, difficulty domain.Difficulty, numQuestions, maxPlayers int) (*domain.Room, error) {
	if host == "" {
		return nil, domain.ErrAuthRequired
	}
	code, err := domain.NewJoinCode(ctx, h.store.RoomCodeExists)
	if err != nil {
		return nil, err
	}
	if maxPlayers <= 0 {
		maxPlayers = 10
	}
	if numQuestions <= 0 {
		numQuestions = 10
	}
	now := h.opts.Clock()
	rm := &domain.Room{
		ID:            uuid.NewString(),
		Code:          code,
		Host:          host,
		Status:        domain.RoomWaiting,
		MaxPlayers:    maxPlayers,
		Topic:         topic,
		Difficulty:    difficulty,
		NumQuestions:  numQuestions,
		TimerDuration: difficulty.TimerSeconds(),
		RoundState:    domain.RoundWaiting,
		CreatedAt:     now,
	}
	if err := h.store.CreateRoom(ctx, rm); err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}
	if err := h.store.CreatePlayer(ctx, &domain.Player{
		UserID:   host,
		Username: host,
		RoomID:   rm.ID,
		JoinedAt: now,
	}); err != nil {
		return nil, fmt.Errorf("create host player: %w", err)
	}
	h.logger.Info().Str("room", code).Str("host", host).Msg("room created")
	return rm, nil
}

// RoomByCode resolves a join code for the REST join preview.
func (h *Hub) RoomByCode(ctx context.Context, code string) (*domain.Room, error) {
	return h.store.RoomByCode(ctx, strings.ToUpper(code))
}

// JoinRoom attaches a connection to the quiz room with the given code,
// registering the user as a player if they are new. The room_state snapshot
// is pushed to the connection on success.
func (h *Hub) JoinRoom(ctx context.Context, code string, conn *Conn) error {
	if conn.User == "" {
		return domain.ErrAuthRequired
	}
	rm, err := h.store.RoomByCode(ctx, strings.ToUpper(code))
	if err != nil {
		return err
	}
	actor, err := h.actorForRoom(rm)
	if err != nil {
		return err
	}
	reply := make(chan error, 1)
	if !actor.enqueue(joinCmd{conn: conn, reply: reply}) {
		return domain.ErrRoomNotFound
	}
	select {
	case err := <-reply:
		if err != nil {
			return err
		}
	case <-actor.done:
		// The actor wound down before handling the join.
		return domain.ErrRoomNotFound
	}
	h.mu.Lock()
	h.byConn[conn.ID] = actor
	h.mu.Unlock()
	return nil
}

// JoinLobby registers a battle-lobby connection. Lobby connections have no
// actor until they create or join a battle.
func (h *Hub) JoinLobby(conn *Conn) {
	h.mu.Lock()
	h.byConn[conn.ID] = nil
	h.mu.Unlock()
}

// Leave detaches a connection from whatever room it is in. It is idempotent
// and safe to call for lobby connections.
func (h *Hub) Leave(conn *Conn) {
	h.mu.Lock()
	actor, ok := h.byConn[conn.ID]
	delete(h.byConn, conn.ID)
	h.mu.Unlock()
	if !ok || actor == nil {
		return
	}
	actor.enqueue(leaveCmd{conn: conn, explicit: false})
}

// Dispatch routes one inbound message. Unknown or out-of-place messages are
// answered with an error event to the sender only; nothing here closes a
// connection.
func (h *Hub) Dispatch(ctx context.Context, conn *Conn, msg Inbound) {
	if conn.User == "" {
		conn.Push(ErrorEvent{Message: domain.ErrAuthRequired.Error()})
		return
	}
	h.mu.RLock()
	actor := h.byConn[conn.ID]
	h.mu.RUnlock()
	if actor != nil {
		actor.enqueue(msgCmd{conn: conn, msg: msg})
		return
	}
	h.dispatchLobby(ctx, conn, msg)
}

func (h *Hub) dispatchLobby(ctx context.Context, conn *Conn, msg Inbound) {
	switch m := msg.(type) {
	case CreateBattle:
		h.createBattle(ctx, conn, m)
	case JoinBattle:
		h.joinBattle(ctx, conn, m)
	case JoinBattleByCode:
		h.joinBattleByCode(ctx, conn, m)
	case LoadChallenge:
		h.loadChallenge(ctx, conn, m.ChallengeID)
	case Typing, StopTyping, TabSwitchWarning:
		// No opponents in the lobby to notify.
	default:
		h.logger.Debug().Str("conn", conn.ID).Type("msg", msg).Msg("ignoring lobby message")
		conn.Push(ErrorEvent{Message: "join a battle first"})
	}
}

func (h *Hub) loadChallenge(ctx context.Context, conn *Conn, challengeID string) {
	ch, err := h.store.Challenge(ctx, challengeID)
	if err != nil {
		conn.Push(ErrorEvent{Message: domain.ErrChallengeNotFound.Error()})
		return
	}
	conn.Push(ChallengeLoaded{Challenge: *ch})
}

func (h *Hub) createBattle(ctx context.Context, conn *Conn, m CreateBattle) {
	level := domain.Difficulty(m.Level)
	if level == "" {
		level = domain.DifficultyMedium
	}
	count := m.NumQuestions
	if count <= 0 {
		count = 5
	}
	challenges, err := h.store.ChallengesByLevel(ctx, level, count)
	if err != nil {
		conn.Push(ErrorEvent{Message: err.Error()})
		return
	}
	if len(challenges) < count {
		conn.Push(ErrorEvent{Message: domain.ErrNoChallenges.Error()})
		return
	}
	code, err := domain.NewJoinCode(ctx, h.store.BattleCodeExists)
	if err != nil {
		conn.Push(ErrorEvent{Message: err.Error()})
		return
	}
	battle := &domain.Battle{
		ID:              uuid.NewString(),
		Code:            code,
		Player1:         conn.User,
		Status:          domain.BattleWaiting,
		Challenges:      challenges,
		Scores:          map[string]int{},
		QuestionWinners: map[int]string{},
		NumQuestions:    count,
		Level:           level,
	}
	if err := h.store.CreateBattle(ctx, battle); err != nil {
		conn.Push(ErrorEvent{Message: err.Error()})
		return
	}
	h.attachToBattle(battle, conn)
	h.logger.Info().Str("battle", code).Str("player", conn.User).Msg("battle created")
}

func (h *Hub) joinBattle(ctx context.Context, conn *Conn, m JoinBattle) {
	if m.ChallengeID == "" {
		conn.Push(ErrorEvent{Message: "challenge id required"})
		return
	}
	ch, err := h.store.Challenge(ctx, m.ChallengeID)
	if err != nil {
		conn.Push(ErrorEvent{Message: domain.ErrChallengeNotFound.Error()})
		return
	}
	battle, err := h.store.OpenBattleForChallenge(ctx, ch.ID, conn.User)
	switch {
	case err == nil:
		// Waiting battle found; the actor seats the joiner (or replays
		// state if they are already in it).
	case errors.Is(err, domain.ErrBattleNotFound):
		code, cerr := domain.NewJoinCode(ctx, h.store.BattleCodeExists)
		if cerr != nil {
			conn.Push(ErrorEvent{Message: cerr.Error()})
			return
		}
		battle = &domain.Battle{
			ID:              uuid.NewString(),
			Code:            code,
			Player1:         conn.User,
			Status:          domain.BattleWaiting,
			Challenges:      []domain.Challenge{*ch},
			Scores:          map[string]int{},
			QuestionWinners: map[int]string{},
			NumQuestions:    1,
			Level:           ch.Difficulty,
		}
		if err := h.store.CreateBattle(ctx, battle); err != nil {
			conn.Push(ErrorEvent{Message: err.Error()})
			return
		}
	default:
		conn.Push(ErrorEvent{Message: err.Error()})
		return
	}
	h.attachToBattle(battle, conn)
}

func (h *Hub) joinBattleByCode(ctx context.Context, conn *Conn, m JoinBattleByCode) {
	if m.BattleCode == "" {
		conn.Push(ErrorEvent{Message: "battle code required"})
		return
	}
	battle, err := h.store.BattleByCode(ctx, strings.ToUpper(m.BattleCode))
	if err != nil {
		conn.Push(ErrorEvent{Message: domain.ErrBattleNotFound.Error()})
		return
	}
	h.attachToBattle(battle, conn)
}

// attachToBattle joins the connection to the battle's actor, creating the
// actor on first use, and pushes battle_joined to the joiner. Seat checks
// live in the engine so they run on the actor goroutine.
func (h *Hub) attachToBattle(battle *domain.Battle, conn *Conn) {
	actor := h.actorForBattle(battle)
	reply := make(chan error, 1)
	if !actor.enqueue(joinCmd{conn: conn, reply: reply}) {
		conn.Push(ErrorEvent{Message: domain.ErrBattleNotFound.Error()})
		return
	}
	select {
	case err := <-reply:
		if err != nil {
			conn.Push(ErrorEvent{Message: err.Error()})
			return
		}
	case <-actor.done:
		conn.Push(ErrorEvent{Message: domain.ErrBattleNotFound.Error()})
		return
	}
	h.mu.Lock()
	h.byConn[conn.ID] = actor
	h.mu.Unlock()
}

// moveToLobby is called by a battle actor when a player leaves back to the
// lobby but keeps the connection open.
func (h *Hub) moveToLobby(conn *Conn) {
	h.mu.Lock()
	h.byConn[conn.ID] = nil
	h.mu.Unlock()
}

func (h *Hub) actorForRoom(rm *domain.Room) (*room, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if actor, ok := h.rooms[rm.ID]; ok {
		return actor, nil
	}
	actor := newRoom(h, rm.ID, rm.Code, h.logger.With().Str("room", rm.Code).Logger())
	actor.match = newMatchEngine(actor, rm)
	h.rooms[rm.ID] = actor
	go actor.run()
	return actor, nil
}

func (h *Hub) actorForBattle(battle *domain.Battle) *room {
	h.mu.Lock()
	defer h.mu.Unlock()
	if actor, ok := h.rooms[battle.ID]; ok {
		return actor
	}
	actor := newRoom(h, battle.ID, battle.Code, h.logger.With().Str("battle", battle.Code).Logger())
	actor.battle = newBattleEngine(actor, battle)
	h.rooms[battle.ID] = actor
	go actor.run()
	return actor
}

// removeRoom drops a finished or emptied actor from the registry.
func (h *Hub) removeRoom(id string) {
	h.mu.Lock()
	delete(h.rooms, id)
	h.mu.Unlock()
}

// recordProgress updates gamification totals once per player; failures are
// logged and never surfaced into the room.
func (h *Hub) recordProgress(ctx context.Context, user string, score int) {
	if h.progress == nil {
		return
	}
	if err := h.progress.RecordMatch(ctx, user, score); err != nil {
		h.logger.Warn().Err(err).Str("user", user).Msg("progress update failed")
	}
}
