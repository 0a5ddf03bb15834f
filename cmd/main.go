package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"pet-chat/api"
	"pet-chat/auth"
	"pet-chat/contract"
	"pet-chat/errors"
	"pet-chat/gateway"
	"pet-chat/internal"
	"pet-chat/moderation"
	"pet-chat/presence"
	"pet-chat/repositories"
	"pet-chat/repositories/mongodb"
	"pet-chat/runtime"
	"pet-chat/runtime/workers"
	"pet-chat/services"
	"syscall"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/redis/go-redis/v9"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Chat terminated with error: %v\n", err)
	}
	os.Exit(code)
}

type stores struct {
	conversations contract.IConversationRepository
	messages      contract.IMessageRepository
	users         contract.IUserDirectory
	close         func()
}

// run initializes all components and owns their lifecycle, so every defer runs before exit.
func run() (int, error) {
	// 1. Configuration & Logger
	config, err := internal.LoadConfig()
	if err != nil {
		return exitConfig, err
	}
	censorChar, err := internal.CharacterRune(config.CensorCharacter)
	if err != nil {
		return exitConfig, err
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Storage & Presence
	store, err := openStores(ctx, config, log)
	if err != nil {
		return exitRuntime, err
	}
	defer store.close()

	presenceRegistry, closePresence, err := openPresence(ctx, config, log)
	if err != nil {
		return exitRuntime, err
	}
	defer closePresence()

	// 4. Use cases
	var opts []services.ChatServiceOption
	if config.ModerationEnabled {
		censor, err := newModerator(censorChar, log)
		if err != nil {
			return exitConfig, err
		}
		opts = append(opts, services.WithCensor(censor))
	}
	service := services.NewChatService(store.conversations, store.messages, store.users, presenceRegistry, log, opts...)
	authenticator := auth.NewAuthenticator(config.JWTSecret)

	// 5. Realtime gateway under supervision
	rooms := runtime.NewRegistry()
	realtime := gateway.NewGateway(presenceRegistry, rooms, log)
	dispatcher := workers.NewShardedDispatcher(config.WorkerShards, config.InboundBuffer, log)
	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(dispatcher.Workers(realtime)...)
	sup.Add(workers.NewChannelCapacityWorker(log, dispatcher.Channels(), config.MetricInterval, config.LowCapacityThreshold))
	supervised := make(chan struct{})
	go func() {
		defer close(supervised)
		sup.Run(ctx)
	}()

	wsOpts := []gateway.ServerOption{gateway.WithAllowedOrigins(config.Origins())}
	if config.WSRequireToken {
		wsOpts = append(wsOpts, gateway.WithTokenVerifier(authenticator))
	}
	ws := gateway.NewServer(ctx, realtime, dispatcher, log, wsOpts...)

	// 6. HTTP Server
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", config.Port),
		Handler:           api.NewRouter(api.NewHandler(service, log), authenticator, ws, config.Origins(), log),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "address", server.Addr, "store", config.StoreBackend, "presence", config.PresenceBackend)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 7. Wait for Stop or Error
	var serveErr error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case serveErr = <-errChan:
	}

	// 8. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP server shutdown", "error", err)
	}
	stop()
	sup.Stop()
	<-supervised
	if serveErr != nil {
		return exitRuntime, serveErr
	}
	log.Info("Program stopped cleanly")
	return exitOK, nil
}

func openStores(ctx context.Context, config internal.Config, log *slog.Logger) (stores, error) {
	switch config.StoreBackend {
	case internal.StoreMongo:
		client, db, err := mongodb.Connect(ctx, config.MongoURI, config.MongoDatabase, config.MongoTimeout)
		if err != nil {
			return stores{}, fmt.Errorf("mongo connection failed: %w", err)
		}
		if err := mongodb.EnsureIndexes(ctx, db); err != nil {
			_ = client.Disconnect(context.Background())
			return stores{}, fmt.Errorf("mongo indexes: %w", err)
		}
		return stores{
			conversations: mongodb.NewConversationRepository(db, log, config.MongoTimeout),
			messages:      mongodb.NewMessageRepository(db, log, config.MongoTimeout),
			users:         mongodb.NewUserRepository(db, config.MongoTimeout),
			close: func() {
				log.Info("Closing MongoDB...")
				_ = client.Disconnect(context.Background())
			},
		}, nil
	default:
		db, err := badger.Open(badger.DefaultOptions(config.BadgerPath).
			WithLoggingLevel(badger.WARNING))
		if err != nil {
			return stores{}, fmt.Errorf("database opening failed: %w", err)
		}
		return stores{
			conversations: repositories.NewConversationRepository(db, log),
			messages:      repositories.NewMessageRepository(db, log),
			users:         repositories.NewUserRepository(db),
			close: func() {
				log.Info("Closing BadgerDB...")
				_ = db.Close()
			},
		}, nil
	}
}

func openPresence(ctx context.Context, config internal.Config, log *slog.Logger) (contract.IPresenceRegistry, func(), error) {
	if config.PresenceBackend != internal.PresenceRedis {
		return presence.NewMemoryRegistry(), func() {}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
		DB:       config.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return presence.NewRedisRegistry(client, config.RedisPrefix, config.PresenceTTL), func() {
		log.Info("Closing Redis...")
		_ = client.Close()
	}, nil
}

func newModerator(censorChar rune, log *slog.Logger) (*moderation.Moderator, error) {
	data, err := moderation.NewCensoredLoader(moderation.Censored).LoadAll(moderation.CensoredDir)
	if err != nil {
		return nil, fmt.Errorf("censored words: %w", err)
	}
	log.Info("Moderation enabled", "words", len(data.Words), "languages", data.Languages)
	return moderation.NewModerator(data.Words, censorChar, log)
}
