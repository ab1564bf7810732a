package memory

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"quizarena/internal/app"
	"quizarena/internal/domain"
)

// Store is the in-memory RoomStore used in development and tests. A single
// RWMutex guards all tables; records are cloned on the way in and out so
// callers can never alias live store state.
type Store struct {
	mu sync.RWMutex

	rooms     map[string]*domain.Room // by id
	roomCodes map[string]string       // code -> id
	players   map[string]map[string]*domain.Player

	battles     map[string]*domain.Battle
	battleCodes map[string]string
	battleOrder []string

	submissions map[string][]*domain.Submission // user/challenge

	challenges     map[string]*domain.Challenge
	challengeOrder []string
}

var _ app.RoomStore = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		rooms:       make(map[string]*domain.Room),
		roomCodes:   make(map[string]string),
		players:     make(map[string]map[string]*domain.Player),
		battles:     make(map[string]*domain.Battle),
		battleCodes: make(map[string]string),
		submissions: make(map[string][]*domain.Submission),
		challenges:  make(map[string]*domain.Challenge),
	}
}

func (s *Store) CreateRoom(ctx context.Context, room *domain.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roomCodes[room.Code]; ok {
		return fmt.Errorf("room code %s already taken", room.Code)
	}
	s.rooms[room.ID] = cloneRoom(room)
	s.roomCodes[room.Code] = room.ID
	return nil
}

func (s *Store) RoomByCode(ctx context.Context, code string) (*domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.roomCodes[code]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return cloneRoom(s.rooms[id]), nil
}

func (s *Store) SaveRoom(ctx context.Context, room *domain.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room.ID]; !ok {
		return domain.ErrRoomNotFound
	}
	s.rooms[room.ID] = cloneRoom(room)
	return nil
}

func (s *Store) DeleteRoom(ctx context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return domain.ErrRoomNotFound
	}
	delete(s.roomCodes, room.Code)
	delete(s.rooms, roomID)
	delete(s.players, roomID)
	return nil
}

func (s *Store) RoomCodeExists(ctx context.Context, code string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.roomCodes[code]
	return ok, nil
}

func (s *Store) CreatePlayer(ctx context.Context, player *domain.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[player.RoomID]; !ok {
		return domain.ErrRoomNotFound
	}
	byUser, ok := s.players[player.RoomID]
	if !ok {
		byUser = make(map[string]*domain.Player)
		s.players[player.RoomID] = byUser
	}
	if _, ok := byUser[player.UserID]; ok {
		return domain.ErrAlreadyInRoom
	}
	byUser[player.UserID] = clonePlayer(player)
	return nil
}

func (s *Store) Players(ctx context.Context, roomID string) ([]*domain.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byUser := s.players[roomID]
	out := make([]*domain.Player, 0, len(byUser))
	for _, p := range byUser {
		out = append(out, clonePlayer(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

func (s *Store) Player(ctx context.Context, roomID, userID string) (*domain.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[roomID][userID]
	if !ok {
		return nil, domain.ErrPlayerNotFound
	}
	return clonePlayer(p), nil
}

func (s *Store) SavePlayer(ctx context.Context, player *domain.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byUser, ok := s.players[player.RoomID]
	if !ok {
		return domain.ErrPlayerNotFound
	}
	if _, ok := byUser[player.UserID]; !ok {
		return domain.ErrPlayerNotFound
	}
	byUser[player.UserID] = clonePlayer(player)
	return nil
}

func (s *Store) DeletePlayer(ctx context.Context, roomID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byUser, ok := s.players[roomID]
	if !ok {
		return domain.ErrPlayerNotFound
	}
	if _, ok := byUser[userID]; !ok {
		return domain.ErrPlayerNotFound
	}
	delete(byUser, userID)
	return nil
}

func (s *Store) CreateBattle(ctx context.Context, battle *domain.Battle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.battleCodes[battle.Code]; ok {
		return fmt.Errorf("battle code %s already taken", battle.Code)
	}
	s.battles[battle.ID] = cloneBattle(battle)
	s.battleCodes[battle.Code] = battle.ID
	s.battleOrder = append(s.battleOrder, battle.ID)
	return nil
}

func (s *Store) BattleByCode(ctx context.Context, code string) (*domain.Battle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.battleCodes[code]
	if !ok {
		return nil, domain.ErrBattleNotFound
	}
	return cloneBattle(s.battles[id]), nil
}

// OpenBattleForChallenge prefers the user's own waiting battle, then the
// oldest waiting battle created by someone else with a free seat.
func (s *Store) OpenBattleForChallenge(ctx context.Context, challengeID, user string) (*domain.Battle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var oldest *domain.Battle
	for _, id := range s.battleOrder {
		b := s.battles[id]
		if b.Status != domain.BattleWaiting || len(b.Challenges) == 0 || b.Challenges[0].ID != challengeID {
			continue
		}
		if b.Player1 == user && b.Player2 == "" {
			return cloneBattle(b), nil
		}
		if oldest == nil && b.Player2 == "" && b.Player1 != user {
			oldest = b
		}
	}
	if oldest == nil {
		return nil, domain.ErrBattleNotFound
	}
	return cloneBattle(oldest), nil
}

func (s *Store) SaveBattle(ctx context.Context, battle *domain.Battle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.battles[battle.ID]; !ok {
		return domain.ErrBattleNotFound
	}
	s.battles[battle.ID] = cloneBattle(battle)
	return nil
}

func (s *Store) BattleCodeExists(ctx context.Context, code string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.battleCodes[code]
	return ok, nil
}

func (s *Store) CreateSubmission(ctx context.Context, sub *domain.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := sub.UserID + "/" + sub.ChallengeID
	clone := *sub
	clone.TestResults = append([]domain.TestResult(nil), sub.TestResults...)
	s.submissions[key] = append(s.submissions[key], &clone)
	return nil
}

func (s *Store) SubmissionsFor(ctx context.Context, userID, challengeID string) ([]*domain.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	subs := s.submissions[userID+"/"+challengeID]
	out := make([]*domain.Submission, 0, len(subs))
	for _, sub := range subs {
		clone := *sub
		clone.TestResults = append([]domain.TestResult(nil), sub.TestResults...)
		out = append(out, &clone)
	}
	return out, nil
}

// SeedChallenges loads the challenge pool, typically at startup.
func (s *Store) SeedChallenges(challenges []domain.Challenge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range challenges {
		ch := challenges[i]
		if _, ok := s.challenges[ch.ID]; !ok {
			s.challengeOrder = append(s.challengeOrder, ch.ID)
		}
		s.challenges[ch.ID] = &ch
	}
}

func (s *Store) Challenge(ctx context.Context, challengeID string) (*domain.Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.challenges[challengeID]
	if !ok {
		return nil, domain.ErrChallengeNotFound
	}
	clone := cloneChallenge(ch)
	return &clone, nil
}

// ChallengesByLevel returns up to count random challenges of the level.
func (s *Store) ChallengesByLevel(ctx context.Context, level domain.Difficulty, count int) ([]domain.Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pool := make([]domain.Challenge, 0, count)
	for _, id := range s.challengeOrder {
		if ch := s.challenges[id]; ch.Difficulty == level {
			pool = append(pool, cloneChallenge(ch))
		}
	}
	rand.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	if len(pool) > count {
		pool = pool[:count]
	}
	return pool, nil
}

func cloneRoom(r *domain.Room) *domain.Room {
	clone := *r
	return &clone
}

func clonePlayer(p *domain.Player) *domain.Player {
	clone := *p
	if p.CurrentAnswer != nil {
		answer := *p.CurrentAnswer
		clone.CurrentAnswer = &answer
	}
	return &clone
}

func cloneBattle(b *domain.Battle) *domain.Battle {
	clone := *b
	clone.Challenges = make([]domain.Challenge, len(b.Challenges))
	for i := range b.Challenges {
		clone.Challenges[i] = cloneChallenge(&b.Challenges[i])
	}
	clone.Scores = make(map[string]int, len(b.Scores))
	for k, v := range b.Scores {
		clone.Scores[k] = v
	}
	clone.QuestionWinners = make(map[int]string, len(b.QuestionWinners))
	for k, v := range b.QuestionWinners {
		clone.QuestionWinners[k] = v
	}
	return &clone
}

func cloneChallenge(ch *domain.Challenge) domain.Challenge {
	clone := *ch
	clone.TestCases = append([]domain.TestCase(nil), ch.TestCases...)
	return clone
}
