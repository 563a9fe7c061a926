package protocol

// Attach (ws query params):
//   room: string -- "lobby" is reserved for the directory channel
//   nickname: string -- required for every room except "lobby"

// Client -> Server
// setReady:
//   ready?: boolean // omitted toggles, supplied sets
//
// move:
//   move: string // standard algebraic notation
//
// resign: {}
//
// offerDraw: {}
//
// createRoom (lobby channel only):
//   name?: string // omitted generates a 6-char code

// Server -> Client
// StateSnapshot:
//   version: number // per-room, increments on every mutation
//   state:
//     id: string
//     players: [{ nickname, ready, side? }]
//     phase: "open" | "playing" | "finished"
//     turn?: "white" | "black"
//     fen?: string
//     draw_offers?: string[]
//     result?: { winner?: string, reason: string }
//
// LobbyUpdate:
//   rooms: string[] // joinable room ids, unordered
//
// RoomCreated:
//   room_id: string
//
// Error:
//   error: string // delivered only to the offending connection
