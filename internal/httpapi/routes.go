package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/jmpark-dev/chess-room-backend/internal/config"
	"github.com/jmpark-dev/chess-room-backend/internal/hub"
	"github.com/jmpark-dev/chess-room-backend/internal/ws"
)

func SetupRoutes(cfg config.Config, h *hub.Hub, log *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))

	r.Post("/lobby/rooms", CreateRoom(h, log))
	r.Get("/lobby/rooms", ListRooms(h))
	r.Get("/lobby/rooms/{roomID}", RoomInfo(h))
	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(h, log, cfg.AllowedOrigins))
	return r
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(wrapped, r)
			log.Debug("http request",
				zap.String("method", r.Method),
				zap.String("url", r.URL.Path),
				zap.Int("status", wrapped.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote", r.RemoteAddr))
		})
	}
}
