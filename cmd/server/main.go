package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kaamsetu/kaamsetu/api"
	dbfs "github.com/kaamsetu/kaamsetu/db"
	"github.com/kaamsetu/kaamsetu/internal/acceptance"
	"github.com/kaamsetu/kaamsetu/internal/attendance"
	"github.com/kaamsetu/kaamsetu/internal/bot"
	"github.com/kaamsetu/kaamsetu/internal/config"
	"github.com/kaamsetu/kaamsetu/internal/db"
	"github.com/kaamsetu/kaamsetu/internal/flow"
	"github.com/kaamsetu/kaamsetu/internal/intent"
	"github.com/kaamsetu/kaamsetu/internal/matching"
	"github.com/kaamsetu/kaamsetu/internal/notify"
	"github.com/kaamsetu/kaamsetu/internal/repository/sqlite"
	"github.com/kaamsetu/kaamsetu/pkg/ollama"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

// logSender stands in for the outbound WhatsApp transport, which runs as a
// separate process reading the notifications table. It only records deliveries.
type logSender struct {
	logger *slog.Logger
}

func (s *logSender) Send(ctx context.Context, recipient, body string) error {
	s.logger.Info("outbound message", "recipient", recipient, "body", body)
	return nil
}

func main() {
	var configPath = flag.String("config", "", "Path to config YAML file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)
	api.SetLogger(logger)
	ollama.SetLogger(logger)

	logger.Info("starting kaamsetu server", "version", version, "built", buildTime)

	ctx := context.Background()

	conn, err := db.New(ctx, cfg.DatabasePath, logger)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}

	if err := db.Migrate(ctx, conn, dbfs.Migrations, dbfs.SeedFiles); err != nil {
		log.Fatalf("Failed to migrate DB: %v", err)
	}

	repo := sqlite.New(conn, logger)

	// The intent engine is optional. Without it the bot still handles every
	// structured command through keyword routing.
	var intents bot.IntentDetector
	var idReader flow.IDReader
	var llm *ollama.Client
	if cfg.Engine.Model == "" {
		logger.Info("no engine model configured, keyword routing only")
	} else if llm, err = ollama.NewClient(cfg.Ollama, nil); err != nil {
		logger.Warn("ollama client unavailable, keyword routing only", "error", err)
		llm = nil
	} else {
		engine, err := intent.NewEngine(ctx, llm, cfg.Engine, repo, logger)
		if err != nil {
			logger.Warn("intent engine unavailable, keyword routing only", "error", err)
		} else {
			intents = engine
			idReader = engine
		}
	}

	notifyRepo := notify.NewRepository(conn, cfg.Notify.MaxAttempts)
	dispatcher := notify.NewDispatcher(notifyRepo, &logSender{logger: logger}, logger, cfg.Notify.PollInterval)
	dispatcher.Start(ctx)

	match := matching.NewEngine(repo, logger)
	accept := acceptance.NewService(repo, notifyRepo, cfg.OTPTTL, logger)
	attend := attendance.NewService(repo, repo, notifyRepo, logger)

	b := bot.New(repo, repo, repo, match, accept, attend, notifyRepo, intents, idReader, logger)

	handler := api.SetupRoutes(cfg, version, buildTime, repo, b)

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.APITimeout,
		WriteTimeout: cfg.APITimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	dispatcher.Stop()
	if llm != nil {
		llm.Close()
	}

	if err := conn.Close(); err != nil {
		logger.Error("error closing DB", "error", err)
	}

	logger.Info("server exited")
}
