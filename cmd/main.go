package main

import (
	"context"
	logg "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jaam8/classpoll/internal/api"
	"github.com/jaam8/classpoll/internal/broadcast"
	"github.com/jaam8/classpoll/internal/chat"
	"github.com/jaam8/classpoll/internal/config"
	"github.com/jaam8/classpoll/internal/repository"
	"github.com/jaam8/classpoll/internal/roster"
	srv "github.com/jaam8/classpoll/internal/service"
	"github.com/jaam8/classpoll/internal/session"
	"github.com/jaam8/classpoll/pkg/logger"
	"github.com/jaam8/classpoll/pkg/tarantool"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()

	cfg, err := config.New()
	if err != nil {
		logg.Fatalf("failed to load config: %s", err)
	}
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		logg.Fatalf("failed to initalize logger: %s", err)
	}

	var store srv.HistoryStore
	if cfg.HistoryPersistence {
		conn, err := tarantool.New(cfg.Tarantool)
		if err != nil {
			logg.Fatalf("failed to connect to Tarantool: %s", err)
		}
		defer conn.CloseGraceful()
		repo := repository.New(conn, log)
		if polls, err := repo.GetPolls(10); err != nil {
			log.Warn("could not read stored poll history", zap.Error(err))
		} else {
			log.Info("poll history store ready", zap.Int("stored_polls", len(polls)))
		}
		store = repo
	}

	bus := broadcast.New(log)
	participants := roster.New(bus, log)
	polls := srv.New(participants, store, bus, log)
	gate := session.New(participants, polls, log)
	relay := chat.New(bus, log)
	handler := api.New(bus, participants, polls, gate, relay, log)

	mux := http.NewServeMux()
	mux.Handle("/ws", handler)

	server := &http.Server{
		Addr:    ":" + cfg.RestPort,
		Handler: mux,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.RestPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logg.Fatalf("server failed: %s", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown failed", zap.Error(err))
	}
	logg.Println("server graceful stopped")
}
