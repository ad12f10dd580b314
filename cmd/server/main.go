package main

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/ambulance-dispatch/internal/account"
	"github.com/iliyamo/ambulance-dispatch/internal/chat"
	"github.com/iliyamo/ambulance-dispatch/internal/config"
	"github.com/iliyamo/ambulance-dispatch/internal/database"
	"github.com/iliyamo/ambulance-dispatch/internal/dispatch"
	"github.com/iliyamo/ambulance-dispatch/internal/handler"
	"github.com/iliyamo/ambulance-dispatch/internal/logging"
	"github.com/iliyamo/ambulance-dispatch/internal/middleware"
	"github.com/iliyamo/ambulance-dispatch/internal/queue"
	"github.com/iliyamo/ambulance-dispatch/internal/repository"
	"github.com/iliyamo/ambulance-dispatch/internal/router"
)

func main() {
	config.LoadDotEnv()
	cfg := config.Load()

	logger, err := logging.New(cfg.Env, cfg.LogLevel, cfg.LogFile)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, tokens, db := openStore(ctx, cfg, logger)
	if db != nil {
		defer db.Close()
	}
	rdb := config.NewRedisClient(logger)
	if rdb != nil {
		defer rdb.Close()
	}

	var events dispatch.Publisher
	if cfg.AMQPURL != "" {
		pub := queue.NewPublisher(cfg.AMQPURL, logger.Named("events"))
		defer pub.Close()
		events = pub
	} else {
		logger.Info("RABBITMQ_URL not set, booking events disabled")
	}
	if cfg.BookingConsumer {
		sink := logging.RotatingFile("logs/booking.log")
		defer sink.Close()
		consumer := queue.NewConsumer(cfg.AMQPURL, sink, logger.Named("booking-consumer"))
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("booking consumer stopped", zap.Error(err))
			}
		}()
	}

	bot, history, closeChat := buildChat(ctx, rdb, logger)
	defer closeChat()

	accounts := account.NewService(store, cfg.BcryptCost, logger)
	dispatcher := dispatch.NewService(store, events, logger)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover(logger), middleware.RequestLogger(logger.Named("http")))

	authLimit := middleware.NewTokenBucket(config.LoadRateLimitConfig("auth"), rdb, logger)
	chatLimit := middleware.NewTokenBucket(config.LoadRateLimitConfig("chat"), rdb, logger)

	router.RegisterRoutes(e, cfg.JWTSecret)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, accounts, tokens, logger), cfg.JWTSecret, authLimit)
	dh := handler.NewDispatchHandler(dispatcher)
	router.RegisterPatient(e, dh, cfg.JWTSecret)
	router.RegisterDriver(e, dh, cfg.JWTSecret)
	router.RegisterMap(e, handler.NewMapHandler(dispatcher, cfg.LiveViewEvery, logger), cfg.JWTSecret)
	router.RegisterChat(e, handler.NewChatHandler(bot, history, cfg.SecureCookies, logger), cfg.JWTSecret, chatLimit)

	addr := ":" + cfg.Port
	go func() {
		logger.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env), zap.String("store", cfg.StoreDriver))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// openStore returns the configured Store and refresh-token store.  db is
// nil for the in-memory store.
func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (repository.Store, repository.TokenStore, *sql.DB) {
	if cfg.StoreDriver == "memory" {
		logger.Warn("using in-memory store, data is lost on restart")
		mem := repository.NewMemoryStore()
		return mem, mem, nil
	}
	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}
	if cfg.DBMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			logger.Fatal("migrate database", zap.Error(err))
		}
	}
	return repository.NewSQLStore(db), repository.NewTokenRepo(db), db
}

// buildChat wires the HealthMate gateway: knowledge index, language model,
// answer cache and per-caller history.  The returned func releases them.
func buildChat(ctx context.Context, rdb *redis.Client, logger *zap.Logger) (*chat.Gateway, chat.HistoryStore, func()) {
	chatCfg := config.LoadChatConfig()
	cacheCfg := config.LoadCacheConfig()

	kb, err := chat.OpenKnowledgeBase(chatCfg.KnowledgeDir, chatCfg.IndexPath)
	if err != nil {
		logger.Fatal("open knowledge base", zap.String("dir", chatCfg.KnowledgeDir), zap.Error(err))
	}
	if n, err := kb.Size(); err == nil {
		logger.Info("knowledge base ready", zap.Uint64("passages", n))
	}

	model, modelCloser, err := chat.NewModel(ctx, chatCfg)
	if err != nil {
		logger.Fatal("create chat model", zap.Error(err))
	}
	if chatCfg.APIKey == "" {
		logger.Warn("no chat API key configured, only small talk will be answered")
	}

	opts := []chat.Option{chat.WithTopK(chatCfg.TopK), chat.WithLogger(logger)}
	var history chat.HistoryStore
	if rdb != nil {
		history = chat.NewRedisHistory(rdb, chatCfg.HistoryTTL, chatCfg.HistoryTurns)
		if cacheCfg.Enabled {
			opts = append(opts, chat.WithAnswerCache(
				chat.NewRedisAnswerCache(rdb, cacheCfg.Prefix, cacheCfg.TTL, cacheCfg.MaxBytes, logger)))
		}
	} else {
		history = chat.NewLocalHistory(chatCfg.HistoryTTL, chatCfg.HistoryTurns)
	}

	closers := []io.Closer{modelCloser, kb}
	return chat.NewGateway(kb, model, opts...), history, func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}
}
