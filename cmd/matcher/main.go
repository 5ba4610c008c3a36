package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/guftagu/campus-chat/internal/chat"
	"github.com/guftagu/campus-chat/internal/config"
	"github.com/guftagu/campus-chat/internal/matching"
	"github.com/guftagu/campus-chat/internal/messaging"
	"github.com/guftagu/campus-chat/internal/metrics"
	"github.com/guftagu/campus-chat/internal/migrate"
	"github.com/guftagu/campus-chat/internal/presence"
	"github.com/guftagu/campus-chat/internal/trust"
)

func main() {
	log.Println("Starting Guftagu matching service...")

	cfg := config.Load()

	// --- Postgres ---
	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("failed to open Postgres: %v", err)
	}
	if err := db.Ping(); err != nil {
		log.Fatalf("failed to connect to Postgres: %v", err)
	}
	if err := migrate.Up(db); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	// --- Redis ---
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(ctx).Err(); err != nil {
		cancel()
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	cancel()

	// --- NATS ---
	natsConfig := messaging.DefaultConfig()
	natsConfig.URL = cfg.NATSURL
	natsConfig.Name = "guftagu-matcher"
	natsClient, err := messaging.NewClient(natsConfig)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}

	// --- Matching actor ---
	trustStore := trust.NewStore(db, cfg.SuspendThreshold)
	registry := presence.NewRegistry(rdb, trustStore, "matcher")
	chats := chat.NewManager(chat.NewStore(rdb), natsClient)

	svc := matching.NewService(trustStore, chats, registry, natsClient)
	if err := svc.Start(); err != nil {
		log.Fatalf("failed to start matching service: %v", err)
	}

	// Metrics endpoint.
	metricsAddr := ":9091"
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		metricsAddr = v
	}
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			log.Printf("[matcher] metrics server: %v", err)
		}
	}()

	log.Printf("Guftagu matching service running")
	log.Printf("  redis_addr:   %s", cfg.RedisAddr)
	log.Printf("  nats_url:     %s", cfg.NATSURL)
	log.Printf("  metrics_addr: %s", metricsAddr)

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal %v, shutting down...", sig)

	svc.Stop()
	natsClient.Close()
	rdb.Close()
	db.Close()
}
