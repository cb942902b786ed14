package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"reading-room/auth"
	"reading-room/infrastructure/server"
	"reading-room/infrastructure/websocket"
	"reading-room/internal"
	"reading-room/moderation"
	"reading-room/observability"
	"reading-room/repositories"
	"reading-room/runtime"
	"reading-room/runtime/workers"
	"reading-room/services"
	"reading-room/sink"
	"syscall"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component and owns the shutdown order, so deferred cleanups always execute.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	config, err := internal.LoadConfig()
	if err != nil {
		return err
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	censoredChar, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return err
	}

	// 2. Database (BadgerDB)
	options := badger.DefaultOptions(config.BadgerFilepath).WithLoggingLevel(badger.WARNING)
	if config.BadgerFilepath == "" {
		options = options.WithInMemory(true)
	}
	db, err := badger.Open(options)
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()
	messageRepository := repositories.NewMessageRepository(db, log, config.HistoryPageSize)
	roomRepository := repositories.NewRoomRepository(db)

	// 3. Moderation
	moderator, err := moderation.NewDefaultModerator(censoredChar, log)
	if err != nil {
		return fmt.Errorf("moderation setup failed: %w", err)
	}

	// 4. Supervision & Orchestration
	sup := workers.NewSupervisor(log, config.RestartInterval)
	registry := runtime.NewRegistry()
	monitoring := observability.NewMonitoringManager()
	diskSink := sink.NewDiskSink(config.ArchiveBufferSize, log)

	orchestrator := runtime.NewOrchestrator(log, sup, registry, roomRepository, moderator, runtime.Config{
		CommandBuffer:   config.RoomCommandBuffer,
		AutoCreateRooms: config.RoomAutoCreate,
		Room: workers.RoomConfig{
			TypingTTL:       config.TypingTTL,
			SweepInterval:   config.TypingSweepInterval,
			IdleTimeout:     config.RoomIdleTimeout,
			ChatLogCapacity: config.ChatLogCapacity,
			MaxMessageRunes: config.MaxMessageRunes,
			MaxSignalBytes:  config.MaxSignalBytes,
		},
	})
	orchestrator.Add(diskSink)
	sup.Add(
		workers.NewArchiveWorker(messageRepository, diskSink.Events(), log),
		workers.NewHeartbeatWorker(log, registry, monitoring, config.HeartbeatInterval),
		workers.NewChannelCapacityWorker(log, config.ChannelSampleInterval,
			workers.Static(workers.NamedChannel{Name: "archive", Channel: diskSink.Events()}),
			orchestrator.Channels),
	)

	// 5. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err = orchestrator.Start(ctx); err != nil {
		return fmt.Errorf("orchestrator failed to start: %w", err)
	}
	defer orchestrator.Stop()

	// 6. HTTP Server Setup
	socket := websocket.NewHandler(orchestrator, log, websocket.HandlerConfig{
		BufferSize:     config.ConnectionBufferSize,
		AllowedOrigins: config.Origins(),
	})
	router := server.NewRouter(server.Dependencies{
		Log:            log,
		Validator:      auth.NewTokenValidator(config.JWTSecret, config.JWTIssuer),
		Chat:           services.NewChatService(roomRepository, messageRepository, registry),
		Socket:         socket,
		Monitoring:     monitoring,
		AllowedOrigins: config.Origins(),
	})
	httpServer := &http.Server{
		Addr:              config.Address(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Use an error channel to capture ListenAndServe() issues
	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "address", config.Address(), "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// 7. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	// 8. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP server shutdown failed", "error", err)
	}
	log.Info("Program stopped cleanly")
	return nil
}
