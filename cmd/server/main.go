package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"docchat/internal/app"
	"docchat/internal/chat"
	"docchat/internal/config"
	"docchat/internal/prompt"
	"docchat/internal/server"
	"docchat/internal/store"
	"docchat/internal/util"
	"docchat/pkg/ai"
	"docchat/pkg/auth"
	"docchat/pkg/storage"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	gateway, err := store.NewMongoGateway(cfg.DatabaseURI, cfg.DatabaseName)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	documents := store.New(gateway)

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
	}
	prompts := prompt.New(gateway, redisClient, cfg.DefaultChatPrompt)

	var aiOpts []ai.Option
	if cfg.OpenAIBaseURL != "" {
		aiOpts = append(aiOpts, ai.WithBaseURL(cfg.OpenAIBaseURL))
	}
	aiClient, err := ai.NewClient(cfg.OpenAIAPIKey, aiOpts...)
	if err != nil {
		log.Fatalf("failed to init provider client: %v", err)
	}

	var objects storage.ObjectStore
	staticDir := ""
	if cfg.MinioEndpoint != "" {
		objects, err = storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			log.Fatalf("failed to init object store: %v", err)
		}
	} else {
		fileStore, err := storage.NewFileStore(cfg.StaticDir)
		if err != nil {
			log.Fatalf("failed to init file store: %v", err)
		}
		objects = fileStore
		staticDir = fileStore.BasePath()
	}

	tokens, err := auth.NewTokenIssuer(cfg.JWTSecret, auth.DefaultTokenTTL)
	if err != nil {
		log.Fatalf("failed to init token issuer: %v", err)
	}

	appCore, err := app.New(app.Config{
		Store:        documents,
		Assistants:   aiClient,
		Objects:      objects,
		Tokens:       tokens,
		Model:        cfg.OpenAIModel,
		Instructions: cfg.OpenAIInstructions,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	sessions, err := chat.New(chat.Config{
		Store:   documents,
		Client:  chat.WrapClient(aiClient),
		Prompts: prompts,
	})
	if err != nil {
		log.Fatalf("failed to init chat sessions: %v", err)
	}

	httpServer, err := server.New(server.Config{
		App:                      appCore,
		Sessions:                 sessions,
		StaticDir:                staticDir,
		MaxUploadBytes:           cfg.MaxUploadBytes,
		Redis:                    redisClient,
		SignupRateLimitPerMinute: cfg.SignupRateLimitPerMinute,
		LoginRateLimitPerMinute:  cfg.LoginRateLimitPerMinute,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:        addr,
		Handler:     httpServer.Router(),
		ReadTimeout: 15 * time.Second,
		// No write timeout: streaming sessions hold connections open.
		IdleTimeout: 60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "err", err)
	}
	if err := gateway.Close(shutdownCtx); err != nil {
		logger.Error("close database", "err", err)
	}
}
