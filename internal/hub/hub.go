// Package hub is the registry of live rooms and the directory of joinable
// ones. A single goroutine owns both maps, so racing creates for the same
// code resolve deterministically.
package hub

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/jmpark-dev/chess-room-backend/internal/match"
	"github.com/jmpark-dev/chess-room-backend/internal/room"
	"github.com/jmpark-dev/chess-room-backend/internal/rules"
)

var (
	ErrRoomExists   = errors.New("room already exists")
	ErrReservedCode = errors.New("room code is reserved")
)

// ReservedCode is the directory channel id. No room can be created under it.
const ReservedCode = "lobby"

type HubMsg interface{ isHubMsg() }

// CreateRoom allocates a room under Code, failing with ErrRoomExists on
// collision. An empty Code asks the hub to generate a unique one.
type CreateRoom struct {
	Code  string
	Reply chan CreateReply
}

type CreateReply struct {
	Code  string
	Match *match.Match
	Err   error
}

type GetRoom struct {
	Code  string
	Reply chan *match.Match // nil when absent
}

// EnsureRoom returns the room under Code, creating it first if needed. This
// backs the "first join to an unknown id creates the room" rule.
type EnsureRoom struct {
	Code  string
	Reply chan *match.Match
}

type RemoveRoom struct{ Code string }

// Announce is posted by a match after any mutation that may change whether
// the room is joinable.
type Announce struct {
	Code     string
	Joinable bool
}

// Watch subscribes a directory client. The current joinable list is pushed
// immediately, then again after every announcement.
type Watch struct {
	ClientID string
	Outbox   chan []string
}

type Unwatch struct{ ClientID string }

type ListJoinable struct{ Reply chan []string }

type ShutdownHub struct{}

func (CreateRoom) isHubMsg()   {}
func (GetRoom) isHubMsg()      {}
func (EnsureRoom) isHubMsg()   {}
func (RemoveRoom) isHubMsg()   {}
func (Announce) isHubMsg()     {}
func (Watch) isHubMsg()        {}
func (Unwatch) isHubMsg()      {}
func (ListJoinable) isHubMsg() {}
func (ShutdownHub) isHubMsg()  {}

type Hub struct {
	inbox     chan HubMsg
	matches   map[string]*match.Match
	joinable  map[string]bool
	watchers  map[string]chan []string
	newEngine func() rules.Engine
	log       *zap.Logger
	ctx       context.Context
	cancel    context.CancelFunc
}

func NewHub(parent context.Context, log *zap.Logger, newEngine func() rules.Engine) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:     make(chan HubMsg, 256),
		matches:   make(map[string]*match.Match),
		joinable:  make(map[string]bool),
		watchers:  make(map[string]chan []string),
		newEngine: newEngine,
		log:       log,
		ctx:       ctx,
		cancel:    cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case msg := <-h.inbox:
			switch msg := msg.(type) {
			case CreateRoom:
				code := msg.Code
				if code == ReservedCode {
					msg.Reply <- CreateReply{Err: ErrReservedCode}
					break
				}
				if code == "" {
					generated, err := h.generateCode()
					if err != nil {
						msg.Reply <- CreateReply{Err: err}
						break
					}
					code = generated
				} else if _, ok := h.matches[code]; ok {
					msg.Reply <- CreateReply{Err: ErrRoomExists}
					break
				}
				msg.Reply <- CreateReply{Code: code, Match: h.spawn(code)}

			case GetRoom:
				msg.Reply <- h.matches[msg.Code]

			case EnsureRoom:
				if m, ok := h.matches[msg.Code]; ok {
					msg.Reply <- m
					break
				}
				msg.Reply <- h.spawn(msg.Code)

			case RemoveRoom:
				h.remove(msg.Code)

			case Announce:
				if _, ok := h.matches[msg.Code]; !ok {
					break
				}
				h.joinable[msg.Code] = msg.Joinable
				h.broadcastDirectory()

			case Watch:
				h.watchers[msg.ClientID] = msg.Outbox
				h.sendDirectory(msg.ClientID, msg.Outbox)

			case Unwatch:
				if out, ok := h.watchers[msg.ClientID]; ok {
					delete(h.watchers, msg.ClientID)
					close(out)
				}

			case ListJoinable:
				msg.Reply <- h.listJoinable()

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) spawn(code string) *match.Match {
	rm := room.New(code, h.newEngine())
	hooks := match.Hooks{
		// Both hooks run on match goroutines; they post back into the hub
		// inbox instead of touching hub state directly.
		Announce: func(code string, joinable bool) {
			select {
			case h.inbox <- Announce{Code: code, Joinable: joinable}:
			case <-h.ctx.Done():
			}
		},
		Closed: func(code string) {
			select {
			case h.inbox <- RemoveRoom{Code: code}:
			case <-h.ctx.Done():
			}
		},
	}
	m := match.New(h.ctx, code, rm, hooks, h.log)
	h.matches[code] = m
	h.joinable[code] = true
	h.log.Info("room created", zap.String("room", code))
	h.broadcastDirectory()
	return m
}

const codeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// generateCode returns a 6-char code not held by any live room. Only called
// from the hub loop, so the uniqueness check cannot race.
func (h *Hub) generateCode() (string, error) {
	for {
		code := make([]byte, 6)
		for i := range code {
			n, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeCharset))))
			if err != nil {
				return "", err
			}
			code[i] = codeCharset[n.Int64()]
		}
		if _, ok := h.matches[string(code)]; !ok {
			return string(code), nil
		}
	}
}

func (h *Hub) remove(code string) {
	if _, ok := h.matches[code]; !ok {
		return
	}
	delete(h.matches, code)
	delete(h.joinable, code)
	h.log.Info("room removed", zap.String("room", code))
	h.broadcastDirectory()
}

// listJoinable returns codes in no guaranteed order.
func (h *Hub) listJoinable() []string {
	return lo.Keys(lo.PickBy(h.joinable, func(_ string, joinable bool) bool {
		return joinable
	}))
}

func (h *Hub) broadcastDirectory() {
	for id, out := range h.watchers {
		h.sendDirectory(id, out)
	}
}

func (h *Hub) sendDirectory(clientID string, out chan []string) {
	select {
	case out <- h.listJoinable():
	default:
		h.log.Warn("dropping slow directory watcher", zap.String("client_id", clientID))
		delete(h.watchers, clientID)
		close(out)
	}
}

func (h *Hub) shutdown() {
	for _, m := range h.matches {
		m.Inbox() <- match.Shutdown{}
	}
	clear(h.matches)
	clear(h.joinable)
	for id, out := range h.watchers {
		close(out)
		delete(h.watchers, id)
	}
	h.cancel()
}
