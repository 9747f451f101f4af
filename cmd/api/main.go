package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/justingibbs/crabgrass-2/internal/app"
	"github.com/justingibbs/crabgrass-2/internal/broker"
	"github.com/justingibbs/crabgrass-2/internal/config"
	"github.com/justingibbs/crabgrass-2/internal/gitrepo"
	"github.com/justingibbs/crabgrass-2/internal/llm"
	"github.com/justingibbs/crabgrass-2/internal/search"
	"github.com/justingibbs/crabgrass-2/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	if err := os.MkdirAll(cfg.ReposDir, 0o755); err != nil {
		log.Fatalf("failed to create repos dir: %v", err)
	}

	dataStore := store.NewPostgresStore(db)
	gitService := gitrepo.New(cfg.ReposDir)

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, pgfts)

	local := broker.New()
	var events interface {
		Subscribe(string) chan broker.Event
		Unsubscribe(string, chan broker.Event)
		Publish(string, broker.Event)
	} = local
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Relaying events through Redis")
		bridge, err := broker.NewRedisBridge(cfg.RedisURL, local)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer bridge.Close()
		events = bridge
	}

	geminiClient := llm.NewClient(cfg.GeminiBaseURL, cfg.GeminiAPIKey, cfg.GeminiModel)
	agentSet := app.DefaultAgents(geminiClient)

	service := app.New(cfg, dataStore, gitService, searchService, events, agentSet)
	if err := service.Bootstrap(ctx); err != nil {
		log.Printf("WARNING: bootstrap error (will retry on next restart): %v", err)
	}

	httpServer := app.NewHTTPServer(service, cfg)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// No WriteTimeout: SSE connections stay open indefinitely.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Printf("Crabgrass API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	service.Wait()
}
