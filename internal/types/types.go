package types

import "github.com/jmpark-dev/chess-room-backend/internal/room"

// ClientMessage is one inbound intent. The acting nickname is bound at
// attach time, never trusted from the payload.
type ClientMessage struct {
	Type  string `json:"type"`
	Ready *bool  `json:"ready,omitempty"` // setReady: nil toggles
	Move  string `json:"move,omitempty"`  // move: SAN
	Name  string `json:"name,omitempty"`  // createRoom (lobby channel only)
}

type ServerMessage struct {
	Type    string         `json:"type"` // "StateSnapshot" | "LobbyUpdate" | "RoomCreated" | "Error"
	Version int            `json:"version,omitempty"`
	State   *room.Snapshot `json:"state,omitempty"`
	Rooms   []string       `json:"rooms,omitempty"`
	RoomID  string         `json:"room_id,omitempty"`
	Error   string         `json:"error,omitempty"`
}
