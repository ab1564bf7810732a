package domain

import "errors"

var (
	// ErrRoomNotFound is returned when no active room matches a code or id.
	ErrRoomNotFound = errors.New("room not found")
	// ErrRoomFull is returned when a join would exceed max players.
	ErrRoomFull = errors.New("room is full")
	// ErrAlreadyInRoom is returned on a duplicate join; the join is a no-op.
	ErrAlreadyInRoom = errors.New("already in room")
	// ErrPlayerNotFound is returned when a user acts before joining.
	ErrPlayerNotFound = errors.New("player not in room")
	// ErrNotHost is returned when a non-host attempts a host-only action.
	ErrNotHost = errors.New("only the host can do that")
	// ErrPlayersNotReady is returned when the game is started before all
	// players toggled ready.
	ErrPlayersNotReady = errors.New("all players must be ready to start")
	// ErrNotEnoughPlayers is returned when a start needs more players.
	ErrNotEnoughPlayers = errors.New("need at least 2 players to start")
	// ErrGameInProgress is returned when a new player joins or a start is
	// requested after the quiz already began.
	ErrGameInProgress = errors.New("game already in progress")
	// ErrBattleNotFound is returned when no battle matches a code or id.
	ErrBattleNotFound = errors.New("battle not found")
	// ErrBattleFull is returned when both seats are taken.
	ErrBattleFull = errors.New("battle is full")
	// ErrBattleFinished signals that the challenge list is exhausted.
	ErrBattleFinished = errors.New("battle has no more challenges")
	// ErrChallengeNotFound is returned for an unknown challenge id.
	ErrChallengeNotFound = errors.New("challenge not found")
	// ErrNoChallenges is returned when the pool cannot fill a battle;
	// battles are never silently under-filled.
	ErrNoChallenges = errors.New("not enough challenges for this level")
	// ErrQuizNotFound indicates quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrAuthRequired is returned for mutating messages from anonymous
	// connections; the connection stays open.
	ErrAuthRequired = errors.New("authentication required")
	// ErrUpstream marks judge/generator failures after retries; callers
	// degrade instead of failing the round.
	ErrUpstream = errors.New("upstream service unavailable")
)
