package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/jmpark-dev/chess-room-backend/internal/hub"
	"github.com/jmpark-dev/chess-room-backend/internal/match"
	"github.com/jmpark-dev/chess-room-backend/internal/room"
)

type createRoomRequest struct {
	Name string `json:"name,omitempty"`
}

type createRoomResponse struct {
	Success bool   `json:"success"`
	RoomID  string `json:"roomId,omitempty"`
	Message string `json:"message,omitempty"`
}

// CreateRoom handles POST /lobby/rooms. An omitted name asks the hub to
// generate a code; a supplied name that collides yields 409.
func CreateRoom(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createRoomRequest
		// An empty body means "generate a code for me".
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeJSON(w, http.StatusBadRequest, createRoomResponse{Message: "invalid request body"})
			return
		}

		name := strings.TrimSpace(req.Name)
		if req.Name != "" && name == "" {
			writeJSON(w, http.StatusBadRequest, createRoomResponse{Message: "invalid room name"})
			return
		}

		reply := make(chan hub.CreateReply, 1)
		h.Inbox() <- hub.CreateRoom{Code: name, Reply: reply}
		res := <-reply
		switch {
		case errors.Is(res.Err, hub.ErrReservedCode):
			writeJSON(w, http.StatusBadRequest, createRoomResponse{Message: "room name is reserved"})
		case errors.Is(res.Err, hub.ErrRoomExists):
			writeJSON(w, http.StatusConflict, createRoomResponse{Message: "room already exists"})
		case res.Err != nil:
			log.Error("room creation failed", zap.Error(res.Err))
			writeJSON(w, http.StatusInternalServerError, createRoomResponse{Message: "failed to create room"})
		default:
			writeJSON(w, http.StatusCreated, createRoomResponse{Success: true, RoomID: res.Code})
		}
	}
}

// ListRooms handles GET /lobby/rooms: the joinable directory snapshot, in no
// guaranteed order.
func ListRooms(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reply := make(chan []string, 1)
		h.Inbox() <- hub.ListJoinable{Reply: reply}
		rooms := <-reply
		writeJSON(w, http.StatusOK, struct {
			Success bool     `json:"success"`
			Rooms   []string `json:"rooms"`
			Count   int      `json:"count"`
		}{Success: true, Rooms: rooms, Count: len(rooms)})
	}
}

// RoomInfo handles GET /lobby/rooms/{roomID}.
func RoomInfo(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "roomID")

		notFound := func() {
			writeJSON(w, http.StatusNotFound, struct {
				Success bool   `json:"success"`
				Message string `json:"message"`
			}{Message: "room not found"})
		}

		reply := make(chan *match.Match, 1)
		h.Inbox() <- hub.GetRoom{Code: roomID, Reply: reply}
		m := <-reply
		if m == nil {
			notFound()
			return
		}

		// The match can tear down between the registry lookup and the state
		// query; a closed match reads as absent.
		view := make(chan match.View, 1)
		select {
		case m.Inbox() <- match.GetState{Reply: view}:
		case <-m.Done():
			notFound()
			return
		}
		select {
		case v := <-view:
			writeJSON(w, http.StatusOK, struct {
				Success  bool          `json:"success"`
				RoomInfo room.Snapshot `json:"roomInfo"`
			}{Success: true, RoomInfo: v.Snapshot})
		case <-m.Done():
			notFound()
		}
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
