// Package room holds the state machine for one match: roster, readiness,
// color assignment, move application and end-of-game resolution. A Room is
// not safe for concurrent use; its owning actor serializes every call.
package room

import (
	"math/rand"
	"sort"

	"github.com/samber/lo"

	"github.com/jmpark-dev/chess-room-backend/internal/rules"
)

type Phase string

const (
	PhaseOpen     Phase = "open"
	PhasePlaying  Phase = "playing"
	PhaseFinished Phase = "finished"
)

type EndReason string

const (
	ReasonOpponentLeft         EndReason = "opponent_left"
	ReasonResignation          EndReason = "resignation"
	ReasonDrawAgreement        EndReason = "draw_agreement"
	ReasonCheckmate            EndReason = "checkmate"
	ReasonStalemate            EndReason = "stalemate"
	ReasonInsufficientMaterial EndReason = "insufficient_material"
	ReasonThreefoldRepetition  EndReason = "threefold_repetition"
	ReasonFiftyMoveRule        EndReason = "fifty_move_rule"
)

type Player struct {
	Nickname string     `json:"nickname"`
	Ready    bool       `json:"ready"`
	Side     rules.Side `json:"side,omitempty"`
}

// Result reports how a game ended. Winner is empty for drawn games.
type Result struct {
	Winner string    `json:"winner,omitempty"`
	Reason EndReason `json:"reason"`
}

// Snapshot is an immutable view of the room, returned by every successful
// mutation so the caller decides what to broadcast.
type Snapshot struct {
	ID         string     `json:"id"`
	Players    []Player   `json:"players"`
	Phase      Phase      `json:"phase"`
	Turn       rules.Side `json:"turn,omitempty"`
	FEN        string     `json:"fen,omitempty"`
	DrawOffers []string   `json:"draw_offers,omitempty"`
	Result     *Result    `json:"result,omitempty"`
}

// coinFlip picks which player gets white. Package var so tests can pin the
// assignment.
var coinFlip = func() bool { return rand.Intn(2) == 0 }

type Room struct {
	id         string
	players    []*Player
	phase      Phase
	drawOffers map[string]bool
	engine     rules.Engine
	result     *Result
}

func New(id string, engine rules.Engine) *Room {
	return &Room{
		id:         id,
		phase:      PhaseOpen,
		drawOffers: make(map[string]bool),
		engine:     engine,
	}
}

func (r *Room) ID() string { return r.id }

// Joinable reports whether the directory should advertise this room.
func (r *Room) Joinable() bool {
	return len(r.players) < 2 && r.phase == PhaseOpen
}

// Join adds a player. Joining again under the same nickname is an idempotent
// success so reconnect races do not error.
func (r *Room) Join(nickname string) (Snapshot, error) {
	if r.find(nickname) != nil {
		return r.Snapshot(), nil
	}
	if r.phase != PhaseOpen {
		return Snapshot{}, ErrInProgress
	}
	if len(r.players) >= 2 {
		return Snapshot{}, ErrFull
	}
	r.players = append(r.players, &Player{Nickname: nickname})
	return r.Snapshot(), nil
}

// Leave removes a player if present and reports whether anything changed.
// Leaving a live game ends it immediately in the opponent's favor; this
// outranks any pending draw offer.
func (r *Room) Leave(nickname string) (Snapshot, bool) {
	idx := -1
	for i, p := range r.players {
		if p.Nickname == nickname {
			idx = i
			break
		}
	}
	if idx < 0 {
		return r.Snapshot(), false
	}
	r.players = append(r.players[:idx], r.players[idx+1:]...)
	delete(r.drawOffers, nickname)

	if r.phase == PhasePlaying {
		winner := ""
		if len(r.players) == 1 {
			winner = r.players[0].Nickname
		}
		r.finish(winner, ReasonOpponentLeft)
	}
	return r.Snapshot(), true
}

// SetReady updates a player's ready flag; a nil desired value toggles it,
// an explicit value sets it idempotently. When both players are ready the
// game starts: flags reset, colors assigned by coin flip, engine reset.
func (r *Room) SetReady(nickname string, desired *bool) (Snapshot, error) {
	p := r.find(nickname)
	if p == nil {
		return Snapshot{}, ErrNotFound
	}
	if desired == nil {
		p.Ready = !p.Ready
	} else {
		p.Ready = *desired
	}
	r.maybeStart()
	return r.Snapshot(), nil
}

func (r *Room) maybeStart() {
	if r.phase != PhaseOpen || len(r.players) != 2 {
		return
	}
	if !r.players[0].Ready || !r.players[1].Ready {
		return
	}
	for _, p := range r.players {
		p.Ready = false
	}
	white, black := r.players[0], r.players[1]
	if !coinFlip() {
		white, black = black, white
	}
	white.Side = rules.SideWhite
	black.Side = rules.SideBlack
	r.engine.Reset()
	r.drawOffers = make(map[string]bool)
	r.phase = PhasePlaying
}

// ApplyMove plays a move for the named player. When the move ends the game
// the returned snapshot already carries the result; there is no intermediate
// state where the move is applied but the outcome unresolved.
func (r *Room) ApplyMove(nickname, san string) (Snapshot, error) {
	if r.phase != PhasePlaying {
		return Snapshot{}, ErrNotPlaying
	}
	p := r.find(nickname)
	if p == nil {
		return Snapshot{}, ErrNotFound
	}
	if p.Side != r.engine.Turn() {
		return Snapshot{}, ErrWrongTurn
	}
	if err := r.engine.ApplyMove(san); err != nil {
		return Snapshot{}, err
	}
	if r.engine.IsTerminal() {
		term := r.engine.Termination()
		reason, ok := reasonFor(term.Method)
		if !ok {
			return r.Snapshot(), ErrNoResult
		}
		r.finish(r.nicknameBySide(term.Winner), reason)
	}
	return r.Snapshot(), nil
}

// Resign ends the game in the opponent's favor.
func (r *Room) Resign(nickname string) (Snapshot, error) {
	if r.phase != PhasePlaying {
		return Snapshot{}, ErrNotPlaying
	}
	p := r.find(nickname)
	if p == nil {
		return Snapshot{}, ErrNotFound
	}
	winner := ""
	for _, other := range r.players {
		if other.Nickname != nickname {
			winner = other.Nickname
		}
	}
	r.finish(winner, ReasonResignation)
	return r.Snapshot(), nil
}

// OfferDraw records a draw offer. The game ends drawn once both players have
// offered; until then the offer stays pending in the snapshot. There is no
// decline: an unanswered offer simply dies with the game.
func (r *Room) OfferDraw(nickname string) (Snapshot, bool, error) {
	if r.phase != PhasePlaying {
		return Snapshot{}, false, ErrNotPlaying
	}
	if r.find(nickname) == nil {
		return Snapshot{}, false, ErrNotFound
	}
	r.drawOffers[nickname] = true
	if len(r.drawOffers) == 2 {
		r.finish("", ReasonDrawAgreement)
		return r.Snapshot(), false, nil
	}
	return r.Snapshot(), true, nil
}

func (r *Room) finish(winner string, reason EndReason) {
	r.phase = PhaseFinished
	r.result = &Result{Winner: winner, Reason: reason}
	r.drawOffers = make(map[string]bool)
}

func (r *Room) Snapshot() Snapshot {
	snap := Snapshot{
		ID:      r.id,
		Players: make([]Player, 0, len(r.players)),
		Phase:   r.phase,
		Result:  r.result,
	}
	for _, p := range r.players {
		snap.Players = append(snap.Players, *p)
	}
	if len(r.drawOffers) > 0 {
		snap.DrawOffers = lo.Keys(r.drawOffers)
		sort.Strings(snap.DrawOffers)
	}
	if r.phase == PhasePlaying || r.phase == PhaseFinished {
		snap.FEN = r.engine.Serialize()
	}
	if r.phase == PhasePlaying {
		snap.Turn = r.engine.Turn()
	}
	return snap
}

func (r *Room) find(nickname string) *Player {
	for _, p := range r.players {
		if p.Nickname == nickname {
			return p
		}
	}
	return nil
}

func (r *Room) nicknameBySide(side rules.Side) string {
	if side == rules.SideNone {
		return ""
	}
	for _, p := range r.players {
		if p.Side == side {
			return p.Nickname
		}
	}
	return ""
}

func reasonFor(method rules.Method) (EndReason, bool) {
	switch method {
	case rules.MethodCheckmate:
		return ReasonCheckmate, true
	case rules.MethodStalemate:
		return ReasonStalemate, true
	case rules.MethodInsufficientMaterial:
		return ReasonInsufficientMaterial, true
	case rules.MethodThreefoldRepetition:
		return ReasonThreefoldRepetition, true
	case rules.MethodFiftyMoveRule:
		return ReasonFiftyMoveRule, true
	default:
		return "", false
	}
}
