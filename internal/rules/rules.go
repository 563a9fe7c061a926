// Package rules defines the move-legality capability a room delegates to.
// The room never inspects a board itself; it only asks the engine whether a
// move is legal, whose turn it is, and how a finished position is classified.
package rules

import "errors"

var ErrIllegalMove = errors.New("illegal move")

type Side string

const (
	SideWhite Side = "white"
	SideBlack Side = "black"
	SideNone  Side = ""
)

// Opponent returns the other side. SideNone maps to itself.
func (s Side) Opponent() Side {
	switch s {
	case SideWhite:
		return SideBlack
	case SideBlack:
		return SideWhite
	default:
		return SideNone
	}
}

type Method string

const (
	MethodNone                 Method = ""
	MethodCheckmate            Method = "checkmate"
	MethodStalemate            Method = "stalemate"
	MethodInsufficientMaterial Method = "insufficient_material"
	MethodThreefoldRepetition  Method = "threefold_repetition"
	MethodFiftyMoveRule        Method = "fifty_move_rule"
)

// Termination classifies a finished position. Winner is SideNone for drawn
// endings.
type Termination struct {
	Method Method
	Winner Side
}

// Engine validates moves and classifies terminal positions for one game.
// Calls are synchronous and in-memory; the owning room serializes access.
type Engine interface {
	// Reset returns the engine to the starting position.
	Reset()
	// ApplyMove plays a move in standard algebraic notation, or returns
	// ErrIllegalMove leaving the position unchanged.
	ApplyMove(san string) error
	Turn() Side
	IsTerminal() bool
	// Termination reports why the game ended. Only meaningful once
	// IsTerminal returns true.
	Termination() Termination
	// Serialize renders the current position as a FEN string.
	Serialize() string
}
