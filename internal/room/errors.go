package room

import "errors"

var (
	// ErrFull is returned when a third player tries to join.
	ErrFull = errors.New("room is full")

	// ErrInProgress is returned when joining a room whose game has started.
	ErrInProgress = errors.New("game already in progress")

	// ErrNotFound is returned when an operation names a player who is not in
	// the room.
	ErrNotFound = errors.New("player not found")

	// ErrNotPlaying is returned for game actions outside an active game.
	ErrNotPlaying = errors.New("game is not in progress")

	// ErrWrongTurn is returned when a player moves out of turn.
	ErrWrongTurn = errors.New("not your turn")

	// ErrNoResult indicates a finish was triggered with no resolvable end
	// reason. This is a defect in the caller, never a client error.
	ErrNoResult = errors.New("game finished without a resolvable result")
)
