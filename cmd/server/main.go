package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"chat-relay/internal"
	"chat-relay/moderation"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/services"
	"chat-relay/tcp"

	"github.com/Netflix/go-env"
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

// run initializes all components and manages the server lifecycle.
// Keeping it separate from main ensures defers (database cleanup) run
// before the process exits, and keeps the wiring testable.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Registry, repositories and protocol wiring
	registry := runtime.NewRegistry()
	userRepository := repositories.NewUserRepository(db)
	roomRepository := repositories.NewRoomRepository(db, log)
	authService := services.NewAuthService(userRepository, config.AuthTokenDuration)

	var moderator *moderation.Moderator
	if words := splitWords(config.CensoredWords); len(words) > 0 {
		moderator, err = moderation.NewModerator(words, '*', log)
		if err != nil {
			return fmt.Errorf("moderation dictionary error: %w", err)
		}
		log.Info("Moderation enabled", "words", len(words))
	}

	dispatcher := tcp.NewDispatcher(log, authService, roomRepository, registry, moderator)

	server := tcp.NewServer(log, dispatcher, tcp.Options{
		IdleTimeout:          config.ReadIdleTimeout,
		MaxFrameSize:         config.MaxFrameSize,
		ConnectionBufferSize: config.ConnectionBufferSize,
		MaxConnections:       config.MaxConnections,
	})
	if err := server.Listen(config.Host, config.Port, config.PortSearchRange); err != nil {
		return err
	}

	// 4. Operator endpoints
	if config.DebugPort > 0 {
		internal.StartDebugServer(db, config.DebugPort, nil, func() map[string]any {
			rooms, members := registry.Stats()
			return map[string]any{"rooms": rooms, "members": members}
		})
		log.Info("Debug server started", "port", config.DebugPort)
	}

	// 5. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 6. Supervised run: the listener and the heartbeat restart on crash,
	// and both stop when the signal context is canceled.
	sup := workers.NewSupervisor(log)
	sup.Add(server)
	sup.Add(workers.NewHeartbeatWorker(log, registry, config.HeartbeatInterval))
	sup.Run(ctx)

	log.Info("Program stopped cleanly")
	return nil
}

// splitWords turns the comma-separated blacklist into clean entries.
func splitWords(raw string) []string {
	var words []string
	for _, word := range strings.Split(raw, ",") {
		if word = strings.TrimSpace(word); word != "" {
			words = append(words, word)
		}
	}
	return words
}
