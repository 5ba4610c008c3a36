package main

import (
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/guftagu/campus-chat/internal/admin"
	"github.com/guftagu/campus-chat/internal/config"
	"github.com/guftagu/campus-chat/internal/identity"
	"github.com/guftagu/campus-chat/internal/metrics"
	"github.com/guftagu/campus-chat/internal/migrate"
	"github.com/guftagu/campus-chat/internal/trust"
)

func main() {
	log.Println("Starting Guftagu moderation API...")

	cfg := config.Load()

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

	trustStore := trust.NewStore(db, cfg.SuspendThreshold)
	verifier := identity.NewVerifier(cfg.AuthSecret)
	handler := admin.NewHandler(trustStore, verifier)

	listenAddr := ":8090"
	if v := os.Getenv("ADMIN_LISTEN_ADDR"); v != "" {
		listenAddr = v
	}

	mux := http.NewServeMux()
	mux.Handle("/", handler.Router())
	mux.Handle("/metrics", metrics.Handler())

	srv := &http.Server{Addr: listenAddr, Handler: mux}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		log.Printf("received signal %v, shutting down...", sig)
		srv.Close()
		db.Close()
	}()

	log.Printf("Guftagu moderation API running")
	log.Printf("  listen_addr:  %s", listenAddr)
	log.Printf("  postgres_dsn: set")

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}
