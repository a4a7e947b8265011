package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"devlink-realtime/internal/auth"
	"devlink-realtime/internal/config"
	"devlink-realtime/internal/database"
	"devlink-realtime/internal/handlers"
	"devlink-realtime/internal/presence"
	"devlink-realtime/internal/supervisor"
	"devlink-realtime/internal/websocket"
	"devlink-realtime/pkg/logger"

	"github.com/redis/go-redis/v9"
)

func main() {
	// Load configuration
	cfg := config.Load()
	logger.Init(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize user store
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	store, err := database.Open(connectCtx, cfg.Store)
	cancel()
	if err != nil {
		logger.Fatal("Failed to connect to user store: %v", err)
	}
	defer store.Close()

	authService := auth.NewService(store, cfg)

	tree := supervisor.NewTree(supervisor.TreeConfig{ShutdownTimeout: cfg.Server.ShutdownTimeout})

	// Presence mirror is optional
	var mirror presence.Mirror = presence.NopMirror{}
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		redisMirror := presence.NewRedisMirror(client, cfg.Redis.PresenceKey)
		tree.AddRealtimeService(redisMirror)
		mirror = redisMirror
		logger.Info("Mirroring presence to redis %s key %s", cfg.Redis.Addr, cfg.Redis.PresenceKey)
	}

	hub := websocket.NewHub(presence.NewRegistry(), mirror)
	polling := websocket.NewPollingManager(hub, cfg.Socket.PollWait, cfg.Socket.Liveness())
	tree.AddCriticalService(hub)
	tree.AddRealtimeService(polling)

	router := handlers.NewRouter(cfg,
		handlers.NewWebSocketHandlers(authService, hub, cfg),
		handlers.NewPollingHandlers(authService, hub, polling, cfg),
		handlers.NewPresenceHandlers(authService, hub, cfg),
	)

	// Long polls hold a request open for up to PollWait
	writeTimeout := cfg.Server.WriteTimeout
	if floor := cfg.Socket.PollWait + 5*time.Second; writeTimeout < floor {
		writeTimeout = floor
	}

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: writeTimeout,
	}
	tree.AddAPIService(supervisor.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	logger.Info("Server started on http://localhost%s", cfg.Server.Port)
	logger.Info("WebSocket endpoint: ws://localhost%s/socket", cfg.Server.Port)
	logger.Info("Polling endpoint: http://localhost%s/socket/polling", cfg.Server.Port)

	serveErr := tree.Serve(ctx)
	if report, err := tree.UnstoppedServiceReport(); err == nil {
		for _, svc := range report {
			logger.Warn("Service %s did not stop within %s", svc.Name, cfg.Server.ShutdownTimeout)
		}
	}
	if serveErr != nil && !errors.Is(serveErr, context.Canceled) {
		logger.Error("Supervisor stopped: %v", serveErr)
		os.Exit(1)
	}
	logger.Info("Server shutting down...")
}
