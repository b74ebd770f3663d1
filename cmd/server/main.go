package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	router "github.com/dkeye/Chat/internal/adapters/http"
	"github.com/dkeye/Chat/internal/app"
	"github.com/dkeye/Chat/internal/app/orch"
	"github.com/dkeye/Chat/internal/config"
	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/logging"
	"github.com/dkeye/Chat/internal/store"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Console logger until config decides the real level and format.
	logging.Setup(logging.Config{Level: "info", Pretty: true})

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
		os.Exit(1)
	}
	logging.Setup(logging.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})

	db, err := store.Open(cfg.Database, cfg.Mode == "debug")
	if err != nil {
		log.Error().Err(err).Msg("failed to open database")
		os.Exit(1)
	}

	var messages core.MessageStore = store.NewMessageStore(db)
	if cfg.Redis.Enabled {
		cache, err := store.NewRedisHistoryCache(cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("history cache disabled")
		} else {
			defer cache.Close()
			messages = store.NewCachedStore(messages, cache, cfg.Redis.TTL)
		}
	}

	o := &orch.Orchestrator{
		Registry:      app.NewRegistry(),
		Rooms:         app.NewRoomManager(cfg.Chat.RecentBuffer),
		Policy:        app.SimplePolicy{},
		Oracle:        store.NewMembership(db),
		Admins:        app.NewJWTAdminAuthorizer(cfg.Admin.JWTSecret, cfg.Admin.Role),
		Users:         store.NewUsers(db),
		Store:         messages,
		SendLimiter:   app.NewRateLimiter(cfg.Chat.SendRateLimit, cfg.Chat.SendRateInterval),
		TypingLimiter: app.NewRateLimiter(1, cfg.Chat.TypingRateInterval),
		Limits: orch.Limits{
			MaxContentLen: cfg.Chat.MaxContentLen,
		},
	}

	r := router.SetupRouter(ctx, cfg, o)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Chat server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info().Msg("Server exited gracefully")
}
