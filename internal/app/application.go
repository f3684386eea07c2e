// Package app wires the components together and owns startup/shutdown order.
package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"coderoom/internal/api"
	"coderoom/internal/config"
	"coderoom/internal/executor"
	"coderoom/internal/hub"
	"coderoom/internal/member"
	"coderoom/internal/room"
	"coderoom/internal/router"
	"coderoom/internal/websocket"
)

type Application struct {
	config     *config.Config
	rooms      *room.Registry
	bans       *room.Bans
	registry   *websocket.Registry
	members    *member.Manager
	router     *router.Router
	hub        *hub.Hub
	executor   *executor.Executor
	apiServer  *api.Server
	httpServer *http.Server
}

// NewApplication builds the component graph in dependency order:
// registries → membership → router → hub → executor → API → HTTP.
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	rooms := room.NewRegistry()
	bans := room.NewBans()
	registry := websocket.NewRegistry()

	members := member.NewManager(rooms, bans, registry)
	messageRouter := router.New(registry)

	coordinator := hub.New(rooms, members, messageRouter, registry, hub.Options{
		EventBuffer: cfg.Room.EventBuffer,
		BanDuration: cfg.Room.BanDuration,
	})

	exec, err := executor.New(cfg.Executor.TempDir, cfg.Executor.Timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize executor: %w", err)
	}

	apiServer := api.NewServer(rooms, exec, registry)

	wsHandler := websocket.NewHandler(coordinator, websocket.Options{
		PingInterval: cfg.WebSocket.PingInterval,
		ReadTimeout:  cfg.WebSocket.ReadTimeout,
		WriteTimeout: cfg.WebSocket.WriteTimeout,
		BufferSize:   cfg.WebSocket.BufferSize,
	})

	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer)
	mux.Handle("/health", apiServer)
	mux.HandleFunc("/ws", wsHandler.HandleWebSocket)

	httpServer := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		rooms:      rooms,
		bans:       bans,
		registry:   registry,
		members:    members,
		router:     messageRouter,
		hub:        coordinator,
		executor:   exec,
		apiServer:  apiServer,
		httpServer: httpServer,
	}, nil
}

// Start launches the hub loop, then the HTTP server. The short startup wait
// catches immediate bind failures before we report success.
func (app *Application) Start(ctx context.Context) error {
	log.Printf("Starting coderoom on %s", app.httpServer.Addr)

	if err := app.hub.Start(ctx); err != nil {
		return fmt.Errorf("failed to start session coordinator: %w", err)
	}

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		app.hub.Stop()
		return err
	case <-time.After(100 * time.Millisecond):
		log.Printf("coderoom started")
		return nil
	case <-ctx.Done():
		app.hub.Stop()
		return ctx.Err()
	}
}

// Stop shuts down in reverse order: HTTP first so no new events arrive, then
// the coordination loop.
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("Shutting down coderoom")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	if err := app.hub.Stop(); err != nil {
		log.Printf("Session coordinator shutdown error: %v", err)
	}

	log.Printf("coderoom shutdown complete")
	return nil
}

// GetAddr returns the bound HTTP address.
func (app *Application) GetAddr() string {
	return app.httpServer.Addr
}
