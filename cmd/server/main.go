package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"notemv-server/internal/config"
	"notemv-server/internal/handler"
	"notemv-server/internal/logging"
	"notemv-server/internal/presence"
	"notemv-server/internal/repository"
	"notemv-server/internal/service"
	"notemv-server/internal/storage"
	"notemv-server/internal/store"
	"notemv-server/internal/store/couch"
	"notemv-server/internal/store/memory"
	"notemv-server/internal/websocket"

	_ "github.com/go-kivik/kivik/v4/couchdb"

	"github.com/go-kivik/kivik/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, logCloser, err := logging.Open(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	if err := run(cfg, logger); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		logCloser.Close()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openStore(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	tracker, trackerCloser, err := openTracker(ctx, cfg, db, logger)
	if err != nil {
		return err
	}
	defer trackerCloser.Close()

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go presence.RunSweeper(sweepCtx, tracker, cfg.Presence.SweepInterval, logger)

	userRepo := repository.NewUserRepository(db)
	noteRepo := repository.NewNoteRepository(db)
	versionRepo := repository.NewVersionRepository(db)
	projectRepo := repository.NewProjectRepository(db)
	folderRepo := repository.NewFolderRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	messageRepo := repository.NewMessageRepository(db)

	access := service.NewAccess(noteRepo, projectRepo)
	authService := service.NewAuthService(userRepo, cfg.JWT.Secret, cfg.JWT.Expiration, cfg.JWT.RefreshTokenExpiration)
	userService := service.NewUserService(userRepo)
	noteService := service.NewNoteService(noteRepo, versionRepo, access, logger)
	versionService := service.NewVersionService(versionRepo, noteRepo, access, service.Retention{
		KeepLast: cfg.Versioning.KeepLast,
		MaxAge:   cfg.Versioning.MaxAge,
	}, logger)
	projectService := service.NewProjectService(projectRepo, taskRepo, noteRepo, versionRepo, folderRepo, messageRepo, access, logger)
	folderService := service.NewFolderService(folderRepo, access)
	taskService := service.NewTaskService(taskRepo, access)
	chatService := service.NewChatService(messageRepo, access)
	editorService := service.NewEditorService(access, noteRepo, versionService, tracker, service.EditorOptions{
		Debounce:         cfg.Sync.Debounce,
		SnapshotInterval: cfg.Sync.SnapshotInterval,
		Heartbeat:        cfg.Presence.Heartbeat,
	}, logger)

	var presigner handler.Presigner
	s3cfg := storage.Config(cfg.S3)
	if s3cfg.Enabled() {
		p, err := storage.NewPresigner(ctx, s3cfg)
		if err != nil {
			return err
		}
		presigner = p
		logger.Info().Str("bucket", s3cfg.Bucket).Msg("uploads enabled")
	}

	wsManager := websocket.NewManager(cfg.WebSocket, logger)
	wsManager.SetMessageHandler(handler.NewWebSocketMessageHandler(editorService, noteService, versionService, projectService, chatService))

	router := handler.NewRouter(&handler.Handlers{
		Auth:      handler.NewAuthHandler(authService),
		User:      handler.NewUserHandler(userService),
		Note:      handler.NewNoteHandler(noteService, versionService, userService),
		Project:   handler.NewProjectHandler(projectService, noteService, userService),
		Folder:    handler.NewFolderHandler(folderService, userService),
		Task:      handler.NewTaskHandler(taskService, userService),
		Chat:      handler.NewChatHandler(chatService, userService),
		Upload:    handler.NewUploadHandler(presigner),
		WebSocket: handler.NewWebSocketHandler(wsManager, userService, cfg.WebSocket),
	}, cfg, logger)

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)

	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", addr).
			Str("env", cfg.Server.Env).
			Str("store", cfg.Database.Backend).
			Str("presence", cfg.Presence.Backend).
			Msg("starting notemv server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}
	// Hijacked websocket connections outlive srv.Shutdown; their sessions
	// still need to flush.
	wsManager.Shutdown(shutdownCtx)

	logger.Info().Msg("server stopped gracefully")
	return nil
}

type closableStore interface {
	store.Store
	Close() error
}

type memoryStore struct{ *memory.Store }

func (memoryStore) Close() error { return nil }

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func openStore(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (closableStore, error) {
	if cfg.Backend == "memory" {
		logger.Warn().Msg("using the in-memory store; data is lost on exit")
		return memoryStore{memory.New()}, nil
	}

	client, err := kivik.New("couch", cfg.URL())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to CouchDB: %w", err)
	}

	db, err := couch.Open(ctx, client, cfg.Name, logger)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("host", cfg.Host).Str("port", cfg.Port).Str("db", cfg.Name).Msg("connected to CouchDB")
	return db, nil
}

func openTracker(ctx context.Context, cfg *config.Config, db store.Store, logger zerolog.Logger) (presence.Tracker, io.Closer, error) {
	if cfg.Presence.Backend != "redis" {
		return presence.NewStoreTracker(repository.NewPresenceRepository(db), cfg.Presence.TTL), nopCloser{}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	logger.Info().Str("addr", cfg.Redis.Addr).Msg("presence backed by Redis")
	return presence.NewRedisTracker(client, cfg.Presence.TTL, logger), client, nil
}
