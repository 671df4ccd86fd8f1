package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	dbfs "github.com/kaamsetu/kaamsetu/db"
	"github.com/kaamsetu/kaamsetu/internal/config"
	"github.com/kaamsetu/kaamsetu/internal/db"
	"github.com/kaamsetu/kaamsetu/internal/intent"
	"github.com/kaamsetu/kaamsetu/internal/repository/sqlite"
	"github.com/kaamsetu/kaamsetu/pkg/ollama"
)

var defaultClient = &http.Client{
	Transport: &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 15 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	},
}

// Sends one message through the intent engine and prints what came back.
// Useful for tuning the prompt template against a local model.
func main() {
	var text = flag.String("text", "need 2 masons in andheri tomorrow, 800 per day", "message to classify")
	flag.Parse()

	cfg, err := config.LoadConfig("")
	if err != nil {
		log.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}
	if cfg.Engine.Model == "" {
		log.Fatal("engine.model must be configured for the probe")
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ollama.SetLogger(logger)

	ctx := context.Background()

	conn, err := db.New(ctx, cfg.DatabasePath, logger)
	if err != nil {
		log.Fatal(err)
	}
	defer conn.Close()

	if err := db.Migrate(ctx, conn, dbfs.Migrations, dbfs.SeedFiles); err != nil {
		log.Fatal(err)
	}

	client, err := ollama.NewClient(cfg.Ollama, defaultClient)
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()

	repo := sqlite.New(conn, logger)
	engine, err := intent.NewEngine(ctx, client, cfg.Engine, repo, logger)
	if err != nil {
		log.Fatal(err)
	}

	it, err := engine.Detect(ctx, *text)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("intent: %s\n", it.Name)
	for k, v := range it.Slots {
		fmt.Printf("  %s = %s\n", k, v)
	}
	if it.Confidence != nil {
		fmt.Printf("confidence: %.2f\n", *it.Confidence)
	}
	fmt.Printf("raw: %s\n", it.Raw)
}
