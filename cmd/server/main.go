package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/jmpark-dev/chess-room-backend/internal/config"
	"github.com/jmpark-dev/chess-room-backend/internal/httpapi"
	"github.com/jmpark-dev/chess-room-backend/internal/hub"
	"github.com/jmpark-dev/chess-room-backend/internal/logging"
	"github.com/jmpark-dev/chess-room-backend/internal/rules"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := logging.New(cfg)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h := hub.NewHub(ctx, logger, func() rules.Engine { return rules.NewChessEngine() })

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: httpapi.SetupRoutes(cfg, h, logger),
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", zap.Error(err))
		}
	}()

	logger.Info("server started", zap.Int("port", cfg.Port), zap.String("env", cfg.Environment))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("listen", zap.Error(err))
	}
	logger.Info("server closed")
}
