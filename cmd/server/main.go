package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/zento-ai/zento-server/internal/config"
	"github.com/zento-ai/zento-server/internal/db"
	"github.com/zento-ai/zento-server/internal/httpapi"
	"github.com/zento-ai/zento-server/internal/store/rabbitmq"
	"github.com/zento-ai/zento-server/internal/store/redisstore"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg := config.Load()

	gdb, err := db.Connect(cfg.DBDSN)
	if err != nil {
		logger.Fatal("database connect failed", zap.Error(err))
	}

	sessions := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer sessions.Close()
	{
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := sessions.Ping(ctx); err != nil {
			logger.Fatal("redis connect failed", zap.Error(err))
		}
		cancel()
	}

	// Async sends degrade to 503 when the broker is down; streaming sends
	// keep working.
	var rabbit *rabbitmq.Publisher
	if p, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue); err != nil {
		logger.Warn("rabbitmq unavailable, async sends disabled", zap.Error(err))
	} else {
		rabbit = p
		defer rabbit.Close()
	}

	router, err := httpapi.NewRouter(gdb, cfg, logger, sessions, rabbit)
	if err != nil {
		logger.Fatal("router init failed", zap.Error(err))
	}

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}

	go func() {
		logger.Info("server listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", zap.Error(err))
	}
}
