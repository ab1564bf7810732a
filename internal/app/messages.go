package app

// Inbound is the closed set of client messages. The gateway parses the wire
// envelope into exactly one of these variants; the hub and engines switch on
// the concrete type, never on raw strings.
type Inbound interface{ isInbound() }

// Quiz room messages.

type ToggleReady struct{}

type StartGame struct{}

type LeaveRoom struct{}

type SubmitAnswer struct {
	QuestionIndex int
	Answer        string
}

// TimeUp lets a client report its local countdown hit zero; the server
// remains authoritative and only acts if the round is still active.
type TimeUp struct{}

// Battle lobby messages.

type CreateBattle struct {
	NumQuestions int
	Level        string
}

type JoinBattle struct {
	ChallengeID string
}

type JoinBattleByCode struct {
	BattleCode string
}

type LoadChallenge struct {
	ChallengeID string
}

// Battle room messages.

type SetReady struct {
	Ready bool
}

type LeaveBattle struct{}

type StartBattle struct{}

type EndBattle struct{}

type RunCode struct {
	Code     string
	Language string
}

type SubmitCode struct {
	Code      string
	Language  string
	IsTimeout bool
}

type Typing struct{}

type StopTyping struct{}

type TabSwitchWarning struct{}

func (ToggleReady) isInbound()      {}
func (StartGame) isInbound()        {}
func (LeaveRoom) isInbound()        {}
func (SubmitAnswer) isInbound()     {}
func (TimeUp) isInbound()           {}
func (CreateBattle) isInbound()     {}
func (JoinBattle) isInbound()       {}
func (JoinBattleByCode) isInbound() {}
func (LoadChallenge) isInbound()    {}
func (SetReady) isInbound()         {}
func (LeaveBattle) isInbound()      {}
func (StartBattle) isInbound()      {}
func (EndBattle) isInbound()        {}
func (RunCode) isInbound()          {}
func (SubmitCode) isInbound()       {}
func (Typing) isInbound()           {}
func (StopTyping) isInbound()       {}
func (TabSwitchWarning) isInbound() {}
