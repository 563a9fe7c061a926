// Package match runs one goroutine per live room. The actor owns the room,
// linearizes every mutation from its inbox, and fans versioned snapshots out
// to the attached clients in mutation order.
package match

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/jmpark-dev/chess-room-backend/internal/room"
)

var (
	ErrUnsupportedCommand = errors.New("unsupported command")

	// ErrClosed answers requests that reach a match after it tore down.
	ErrClosed = errors.New("room is closed")
)

type Msg interface{ isMatchMsg() }

type CommandType string

const (
	CmdSetReady  CommandType = "setReady"
	CmdMove      CommandType = "move"
	CmdResign    CommandType = "resign"
	CmdOfferDraw CommandType = "offerDraw"
)

// Command is one client intent, already bound to the attaching nickname.
type Command struct {
	Type     CommandType
	Nickname string
	Ready    *bool // nil toggles
	Move     string
}

// Join attaches a connection and enrolls its nickname in the room. The join
// outcome is reported on Reply before any snapshot is sent.
type Join struct {
	ClientID string
	Nickname string
	Outbox   chan Notice
	Reply    chan error
}

// Disconnect detaches a connection. The nickname leaves the room, which may
// end a live game in the opponent's favor.
type Disconnect struct {
	ClientID string
	Nickname string
}

type FromClient struct {
	ClientID string
	Cmd      Command
}

type GetState struct{ Reply chan View }

type Shutdown struct{}

func (Join) isMatchMsg()       {}
func (Disconnect) isMatchMsg() {}
func (FromClient) isMatchMsg() {}
func (GetState) isMatchMsg()   {}
func (Shutdown) isMatchMsg()   {}

// Notice is one outbound item for a single client: either a snapshot or an
// error that only the offending client should see.
type Notice struct {
	Version  int
	Snapshot *room.Snapshot
	Err      string
}

// View reflects internal state for tests and the HTTP room-info route.
type View struct {
	Version    int
	NumClients int
	Snapshot   room.Snapshot
}

// Hooks let the registry observe this match without an import cycle: the hub
// installs closures that post back into its own inbox.
type Hooks struct {
	// Announce is called after any mutation that may change joinability.
	Announce func(code string, joinable bool)
	// Closed is called exactly once when the match tears down on its own
	// (roster empty or game finished).
	Closed func(code string)
}

type Match struct {
	code    string
	inbox   chan Msg
	rm      *room.Room
	version int
	clients map[string]chan Notice
	hooks   Hooks
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

func New(parent context.Context, code string, rm *room.Room, hooks Hooks, log *zap.Logger) *Match {
	ctx, cancel := context.WithCancel(parent)
	m := &Match{
		code:    code,
		inbox:   make(chan Msg, 64),
		rm:      rm,
		clients: make(map[string]chan Notice),
		hooks:   hooks,
		log:     log.With(zap.String("room", code)),
		ctx:     ctx,
		cancel:  cancel,
	}
	go m.loop()
	return m
}

func (m *Match) Inbox() chan<- Msg { return m.inbox }

// Done closes once the actor has exited. The registry can hand out a match
// just before it tears down, so callers awaiting a reply select on Done
// rather than block on a loop that is gone.
func (m *Match) Done() <-chan struct{} { return m.ctx.Done() }

func (m *Match) loop() {
	for {
		select {
		case <-m.ctx.Done():
			m.teardown(false)
			return

		case msg := <-m.inbox:
			switch msg := msg.(type) {
			case Join:
				if done := m.handleJoin(msg); done {
					return
				}

			case Disconnect:
				if done := m.handleDisconnect(msg); done {
					return
				}

			case FromClient:
				if done := m.handleCommand(msg); done {
					return
				}

			case GetState:
				msg.Reply <- View{
					Version:    m.version,
					NumClients: len(m.clients),
					Snapshot:   m.rm.Snapshot(),
				}

			case Shutdown:
				m.teardown(false)
				return
			}
		}
	}
}

func (m *Match) handleJoin(msg Join) bool {
	snap, err := m.rm.Join(msg.Nickname)
	if err != nil {
		msg.Reply <- err
		return false
	}
	m.clients[msg.ClientID] = msg.Outbox
	msg.Reply <- nil
	m.log.Info("player joined", zap.String("nickname", msg.Nickname))
	m.publish(snap)
	return false
}

func (m *Match) handleDisconnect(msg Disconnect) bool {
	if out, ok := m.clients[msg.ClientID]; ok {
		delete(m.clients, msg.ClientID)
		close(out)
	}
	snap, changed := m.rm.Leave(msg.Nickname)
	if !changed {
		return false
	}
	m.log.Info("player left", zap.String("nickname", msg.Nickname))
	m.publish(snap)
	if snap.Phase == room.PhaseFinished || len(snap.Players) == 0 {
		m.teardown(true)
		return true
	}
	return false
}

func (m *Match) handleCommand(msg FromClient) bool {
	snap, err := m.apply(msg.Cmd)
	if err != nil {
		if errors.Is(err, room.ErrNoResult) {
			// Defect, not a client mistake. The room's phase is untouched.
			m.log.Error("finish without resolvable result", zap.Error(err))
		}
		m.sendTo(msg.ClientID, Notice{Err: err.Error()})
		if errors.Is(err, room.ErrNotFound) {
			// A command from a nickname no longer in the room is fatal to
			// that connection only.
			if out, ok := m.clients[msg.ClientID]; ok {
				delete(m.clients, msg.ClientID)
				close(out)
			}
		}
		return false
	}
	m.publish(snap)
	if snap.Phase == room.PhaseFinished {
		m.teardown(true)
		return true
	}
	return false
}

func (m *Match) apply(cmd Command) (room.Snapshot, error) {
	switch cmd.Type {
	case CmdSetReady:
		return m.rm.SetReady(cmd.Nickname, cmd.Ready)
	case CmdMove:
		return m.rm.ApplyMove(cmd.Nickname, cmd.Move)
	case CmdResign:
		return m.rm.Resign(cmd.Nickname)
	case CmdOfferDraw:
		snap, pending, err := m.rm.OfferDraw(cmd.Nickname)
		if pending {
			m.log.Info("draw offered", zap.String("nickname", cmd.Nickname))
		}
		return snap, err
	default:
		return room.Snapshot{}, ErrUnsupportedCommand
	}
}

// publish bumps the version, broadcasts the snapshot and re-announces
// joinability to the directory.
func (m *Match) publish(snap room.Snapshot) {
	m.version++
	for id := range m.clients {
		m.sendTo(id, Notice{Version: m.version, Snapshot: &snap})
	}
	if m.hooks.Announce != nil {
		m.hooks.Announce(m.code, m.rm.Joinable())
	}
}

// sendTo delivers without blocking the loop; a client that cannot keep up is
// dropped rather than allowed to stall the room.
func (m *Match) sendTo(clientID string, n Notice) {
	out, ok := m.clients[clientID]
	if !ok {
		return
	}
	select {
	case out <- n:
	default:
		m.log.Warn("dropping slow client", zap.String("client_id", clientID))
		delete(m.clients, clientID)
		close(out)
	}
}

func (m *Match) teardown(notifyHub bool) {
	for id, out := range m.clients {
		close(out)
		delete(m.clients, id)
	}
	if notifyHub && m.hooks.Closed != nil {
		m.hooks.Closed(m.code)
	}
	// Fail requests that raced into the inbox before the cancellation below
	// became observable. Anything arriving later is covered by the caller's
	// select on Done.
	for {
		select {
		case msg := <-m.inbox:
			switch msg := msg.(type) {
			case Join:
				msg.Reply <- ErrClosed
			case GetState:
				msg.Reply <- View{Version: m.version, Snapshot: m.rm.Snapshot()}
			}
		default:
			m.cancel()
			return
		}
	}
}
