package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jmpark-dev/chess-room-backend/internal/hub"
	"github.com/jmpark-dev/chess-room-backend/internal/match"
	"github.com/jmpark-dev/chess-room-backend/internal/types"
)

// LobbyChannel is the reserved room id for directory subscribers. It can
// never name a match room; the hub refuses to create one under it.
const LobbyChannel = hub.ReservedCode

const writeTimeout = 3 * time.Second

// Handler attaches one websocket connection to either the lobby directory or
// a match room. Attach parameters travel as query params; a malformed attach
// is rejected before the upgrade with no retry.
func Handler(h *hub.Hub, log *zap.Logger, originPatterns []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("room")
		nickname := r.URL.Query().Get("nickname")
		if code == "" || (code != LobbyChannel && nickname == "") {
			http.Error(w, "missing room or nickname", http.StatusBadRequest)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: originPatterns,
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		if code == LobbyChannel {
			serveLobby(r, conn, h, log)
			return
		}
		serveRoom(r, conn, h, log, code, nickname)
	}
}

func serveRoom(r *http.Request, conn *websocket.Conn, h *hub.Hub, log *zap.Logger, code, nickname string) {
	reply := make(chan *match.Match, 1)
	h.Inbox() <- hub.EnsureRoom{Code: code, Reply: reply}
	m := <-reply

	clientID := uuid.NewString()
	out := make(chan match.Notice, 8)
	joinReply := make(chan error, 1)
	m.Inbox() <- match.Join{ClientID: clientID, Nickname: nickname, Outbox: out, Reply: joinReply}
	select {
	case err := <-joinReply:
		if err != nil {
			writeMessage(r.Context(), conn, types.ServerMessage{Type: "Error", Error: err.Error()})
			conn.Close(websocket.StatusPolicyViolation, err.Error())
			return
		}
	case <-m.Done():
		writeMessage(r.Context(), conn, types.ServerMessage{Type: "Error", Error: match.ErrClosed.Error()})
		conn.Close(websocket.StatusNormalClosure, "room closed")
		return
	}
	defer func() {
		select {
		case m.Inbox() <- match.Disconnect{ClientID: clientID, Nickname: nickname}:
		case <-m.Done():
		}
	}()

	log.Debug("room connection",
		zap.String("room", code),
		zap.String("nickname", nickname),
		zap.String("client_id", clientID))

	// Writer goroutine. The outbox closing means the match is gone; closing
	// the connection here unblocks the reader.
	writeCtx, writeCancel := context.WithCancel(context.Background())
	defer writeCancel()
	go func() {
		for n := range out {
			msg := types.ServerMessage{Type: "StateSnapshot", Version: n.Version, State: n.Snapshot}
			if n.Err != "" {
				msg = types.ServerMessage{Type: "Error", Error: n.Err}
			}
			writeMessage(writeCtx, conn, msg)
		}
		conn.Close(websocket.StatusNormalClosure, "room closed")
	}()

	for {
		_, data, err := conn.Read(r.Context())
		if err != nil {
			// Clean close or abrupt drop: either way the deferred
			// Disconnect carries the leave semantics.
			return
		}

		var cm types.ClientMessage
		if err := json.Unmarshal(data, &cm); err != nil {
			writeMessage(r.Context(), conn, types.ServerMessage{Type: "Error", Error: "bad json"})
			continue
		}

		cmd, ok := toCommand(cm, nickname)
		if !ok {
			writeMessage(r.Context(), conn, types.ServerMessage{Type: "Error", Error: "unknown type"})
			continue
		}

		select {
		case m.Inbox() <- match.FromClient{ClientID: clientID, Cmd: cmd}:
		case <-m.Done():
			return
		}
	}
}

func serveLobby(r *http.Request, conn *websocket.Conn, h *hub.Hub, log *zap.Logger) {
	clientID := uuid.NewString()
	out := make(chan []string, 8)
	h.Inbox() <- hub.Watch{ClientID: clientID, Outbox: out}
	defer func() { h.Inbox() <- hub.Unwatch{ClientID: clientID} }()

	log.Debug("lobby connection", zap.String("client_id", clientID))

	writeCtx, writeCancel := context.WithCancel(context.Background())
	defer writeCancel()
	go func() {
		for rooms := range out {
			writeMessage(writeCtx, conn, types.ServerMessage{Type: "LobbyUpdate", Rooms: rooms})
		}
	}()

	for {
		_, data, err := conn.Read(r.Context())
		if err != nil {
			return
		}

		var cm types.ClientMessage
		if err := json.Unmarshal(data, &cm); err != nil {
			writeMessage(r.Context(), conn, types.ServerMessage{Type: "Error", Error: "bad json"})
			continue
		}
		if cm.Type != "createRoom" {
			writeMessage(r.Context(), conn, types.ServerMessage{Type: "Error", Error: "unknown type"})
			continue
		}

		name, ok := roomName(cm.Name)
		if !ok {
			writeMessage(r.Context(), conn, types.ServerMessage{Type: "Error", Error: "invalid room name"})
			continue
		}

		reply := make(chan hub.CreateReply, 1)
		h.Inbox() <- hub.CreateRoom{Code: name, Reply: reply}
		res := <-reply
		if res.Err != nil {
			writeMessage(r.Context(), conn, types.ServerMessage{Type: "Error", Error: res.Err.Error()})
			continue
		}
		writeMessage(r.Context(), conn, types.ServerMessage{Type: "RoomCreated", RoomID: res.Code})
	}
}

// roomName normalizes a requested room name. An omitted name asks the hub to
// generate a code; a name that is all whitespace is rejected rather than
// silently treated as omitted, matching the HTTP create route.
func roomName(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if raw != "" && trimmed == "" {
		return "", false
	}
	return trimmed, true
}

func toCommand(m types.ClientMessage, nickname string) (match.Command, bool) {
	switch m.Type {
	case "setReady":
		return match.Command{Type: match.CmdSetReady, Nickname: nickname, Ready: m.Ready}, true
	case "move":
		if m.Move == "" {
			return match.Command{}, false
		}
		return match.Command{Type: match.CmdMove, Nickname: nickname, Move: m.Move}, true
	case "resign":
		return match.Command{Type: match.CmdResign, Nickname: nickname}, true
	case "offerDraw":
		return match.Command{Type: match.CmdOfferDraw, Nickname: nickname}, true
	default:
		return match.Command{}, false
	}
}

func writeMessage(ctx context.Context, conn *websocket.Conn, msg types.ServerMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_ = conn.Write(wctx, websocket.MessageText, payload)
}
