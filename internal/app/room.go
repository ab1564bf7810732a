package app

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// command is a unit of work on a room actor's inbox. Everything that touches
// room state is expressed as one of these variants and handled by the single
// actor goroutine, so round state needs no locks.
type command interface{ isCommand() }

type joinCmd struct {
	conn  *Conn
	reply chan error
}

type leaveCmd struct {
	conn     *Conn
	explicit bool // leave_room / leave_battle as opposed to a dropped socket
}

type msgCmd struct {
	conn *Conn
	msg  Inbound
}

// tickCmd carries one countdown second. round guards against ticks from a
// superseded timer.
type tickCmd struct {
	round     int
	remaining int
}

type timeoutCmd struct{ round int }

// reviewDoneCmd ends the post-round review pause.
type reviewDoneCmd struct{ round int }

// graceCmd ends the post-winner grace period in a battle; index is the
// challenge index the grace was armed for.
type graceCmd struct{ index int }

func (joinCmd) isCommand()       {}
func (leaveCmd) isCommand()      {}
func (msgCmd) isCommand()        {}
func (tickCmd) isCommand()       {}
func (timeoutCmd) isCommand()    {}
func (reviewDoneCmd) isCommand() {}
func (graceCmd) isCommand()      {}

// room is one live session actor: a quiz room or a code battle. Exactly one
// of match/battle is set. All fields below inbox are owned by run().
type room struct {
	hub    *Hub
	id     string
	code   string
	logger zerolog.Logger

	inbox chan command
	done  chan struct{}

	conns  []*Conn // join order
	match  *matchEngine
	battle *battleEngine

	cancelCountdown context.CancelFunc
	cancelDelay     context.CancelFunc
}

func newRoom(h *Hub, id, code string, logger zerolog.Logger) *room {
	return &room{
		hub:    h,
		id:     id,
		code:   code,
		logger: logger,
		inbox:  make(chan command, 64),
		done:   make(chan struct{}),
	}
}

// enqueue submits a command unless the actor has already exited.
func (r *room) enqueue(c command) bool {
	select {
	case <-r.done:
		return false
	default:
	}
	select {
	case r.inbox <- c:
		return true
	case <-r.done:
		return false
	}
}

// run drains the inbox until the room empties out or its session finishes.
func (r *room) run() {
	defer func() {
		r.stopCountdown()
		r.stopDelay()
		r.hub.removeRoom(r.id)
		close(r.done)
	}()
	for cmd := range r.inbox {
		if r.handle(cmd) {
			return
		}
	}
}

// handle processes one command; returning true tears the actor down.
func (r *room) handle(cmd command) bool {
	ctx := context.Background()
	switch c := cmd.(type) {
	case joinCmd:
		err := r.join(ctx, c)
		c.reply <- err
		// A failed first join leaves a freshly created actor with no
		// connections; stop it instead of leaking the goroutine.
		if err != nil && len(r.conns) == 0 {
			return true
		}
	case leaveCmd:
		return r.leave(ctx, c)
	case msgCmd:
		return r.dispatch(ctx, c.conn, c.msg)
	case tickCmd:
		r.engineTick(c)
	case timeoutCmd:
		if r.match != nil {
			r.match.timeout(ctx, c.round)
		}
	case reviewDoneCmd:
		if r.match != nil {
			r.match.reviewDone(ctx, c.round)
		}
	case graceCmd:
		if r.battle != nil {
			r.battle.graceDone(ctx, c.index)
		}
	}
	return false
}

func (r *room) join(ctx context.Context, c joinCmd) error {
	if r.match != nil {
		if err := r.match.join(ctx, c.conn); err != nil {
			return err
		}
	} else if err := r.battle.join(ctx, c.conn); err != nil {
		return err
	}
	r.conns = append(r.conns, c.conn)
	return nil
}

func (r *room) leave(ctx context.Context, c leaveCmd) bool {
	if !r.removeConn(c.conn) && !c.explicit {
		return false
	}
	if r.match != nil {
		r.match.leave(ctx, c.conn, c.explicit)
	} else {
		r.battle.leave(ctx, c.conn, c.explicit)
	}
	if len(r.conns) == 0 {
		r.logger.Debug().Msg("room emptied, stopping actor")
		return true
	}
	return false
}

func (r *room) removeConn(conn *Conn) bool {
	for i, c := range r.conns {
		if c.ID == conn.ID {
			r.conns = append(r.conns[:i], r.conns[i+1:]...)
			return true
		}
	}
	return false
}

func (r *room) dispatch(ctx context.Context, conn *Conn, msg Inbound) bool {
	switch msg.(type) {
	case LeaveRoom, LeaveBattle:
		r.hub.moveToLobby(conn)
		return r.leave(ctx, leaveCmd{conn: conn, explicit: true})
	}
	var err error
	if r.match != nil {
		err = r.match.dispatch(ctx, conn, msg)
	} else {
		err = r.battle.dispatch(ctx, conn, msg)
	}
	if err != nil {
		conn.Push(ErrorEvent{Message: err.Error()})
	}
	return false
}

// engineTick forwards countdown seconds; only quiz rounds run a server
// countdown, battles keep time client-side.
func (r *room) engineTick(c tickCmd) {
	if r.match != nil {
		r.match.tick(c.round, c.remaining)
	}
}

// broadcast fans an event out to every connection in join order.
func (r *room) broadcast(e Event) {
	for _, c := range r.conns {
		if !c.Push(e) {
			r.logger.Warn().Str("conn", c.ID).Str("event", e.EventType()).Msg("dropping event for slow connection")
		}
	}
}

// broadcastExcept skips the named user, for opponent-only notifications.
func (r *room) broadcastExcept(user string, e Event) {
	for _, c := range r.conns {
		if c.User == user {
			continue
		}
		if !c.Push(e) {
			r.logger.Warn().Str("conn", c.ID).Str("event", e.EventType()).Msg("dropping event for slow connection")
		}
	}
}

// connectedUsers counts distinct authenticated users currently attached.
func (r *room) connectedUsers() int {
	seen := make(map[string]struct{}, len(r.conns))
	for _, c := range r.conns {
		seen[c.User] = struct{}{}
	}
	return len(seen)
}

func (r *room) hasUser(user string) bool {
	for _, c := range r.conns {
		if c.User == user {
			return true
		}
	}
	return false
}

// startCountdown launches a per-second countdown goroutine for the given
// round token, replacing any countdown already running. Every tick and the
// final timeout come back through the inbox so the actor handles them in
// order with everything else.
func (r *room) startCountdown(round, seconds int) {
	r.stopCountdown()
	ctx, cancel := context.WithCancel(context.Background())
	r.cancelCountdown = cancel
	tick := r.hub.opts.Tick
	go func() {
		for remaining := seconds; remaining > 0; remaining-- {
			if !r.enqueue(tickCmd{round: round, remaining: remaining}) {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(tick):
			}
		}
		r.enqueue(timeoutCmd{round: round})
	}()
}

func (r *room) stopCountdown() {
	if r.cancelCountdown != nil {
		r.cancelCountdown()
		r.cancelCountdown = nil
	}
}

// after schedules a one-shot command, replacing any pending delay.
func (r *room) after(d time.Duration, cmd command) {
	r.stopDelay()
	ctx, cancel := context.WithCancel(context.Background())
	r.cancelDelay = cancel
	go func() {
		select {
		case <-ctx.Done():
		case <-time.After(d):
			r.enqueue(cmd)
		}
	}()
}

func (r *room) stopDelay() {
	if r.cancelDelay != nil {
		r.cancelDelay()
		r.cancelDelay = nil
	}
}
