package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"shopfloor/internal/bootstrap"
	"shopfloor/internal/config"
	server "shopfloor/internal/http"
	"shopfloor/internal/jobs"
	"shopfloor/internal/metrics"
	"shopfloor/internal/migrate"
	"shopfloor/internal/store"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	role := flag.String("role", "all", "process role: api|worker|all")
	migrationsDir := flag.String("migrations", migrate.DefaultDir, "path to goose migrations")
	flag.Parse()

	cfg := config.Load(*configPath)

	// Set up logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{}))

	// Run migrations on a short-lived connection
	if err := migrate.Run(cfg.Database.DSN, *migrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	// Create a shared *sql.DB with pooling for the Store
	db, err := sql.Open("pgx", cfg.Database.DSN)
	if err != nil {
		log.Fatalf("open db failed: %v", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	st := store.New(db)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := bootstrap.Run(rootCtx, cfg, st, logger); err != nil {
		log.Fatalf("bootstrap failed: %v", err)
	}

	runner := jobs.NewRunner(jobs.RunnerConfig{
		PollInterval:     time.Duration(cfg.Worker.PollIntervalMs) * time.Millisecond,
		CleanupInterval:  time.Duration(cfg.Retention.CleanupIntervalMinutes) * time.Minute,
		RetentionEnabled: cfg.Retention.Enabled,
		Retention: jobs.RetentionPolicy{
			AuditDays:             cfg.Retention.AuditDays,
			ClosedTransactionDays: cfg.Retention.ClosedTransactionDays,
		},
		Location: cfg.Location(),
	}, st, metrics.Sink{}, logger)

	switch *role {
	case "api":
		serve(rootCtx, server.NewServer(cfg, st, logger))
	case "worker":
		// Worker-only: run the poll loop until interrupted.
		runner.Start(rootCtx)
	case "all":
		// Default: run both API and worker in one process.
		go runner.Start(rootCtx)
		serve(rootCtx, server.NewServer(cfg, st, logger))
	default:
		log.Fatalf("invalid role: %s (expected api|worker|all)", *role)
	}
}

func serve(ctx context.Context, s *server.Server) {
	go func() {
		<-ctx.Done()
		_ = s.Shutdown()
	}()
	if err := s.Listen(); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
