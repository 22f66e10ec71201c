package main

import (
	"context"
	"flag"
	"os"
	"strings"
	"time"

	"github.com/okian/guildboard/internal/drill"
	"github.com/okian/guildboard/pkg/logger"
)

const defaultDrillTimeout = 10 * time.Minute

func main() {
	var (
		baseURL  = flag.String("url", "http://localhost:9080", "Base URL of the service")
		kind     = flag.String("kind", drill.DefaultKind, "Event kind to create")
		duration = flag.Duration("duration", drill.DefaultDuration, "Event duration (the drill ends it early)")
		players  = flag.String("players", "", "Comma-separated player UUIDs; random UUIDs when empty")
		count    = flag.Int("count", drill.DefaultPlayers, "Number of random players when -players is empty")
		workers  = flag.Int("workers", drill.DefaultWorkers, "Concurrent enrollment requests")
		timeout  = flag.Duration("timeout", drill.DefaultTimeout, "HTTP request timeout")
		wait     = flag.Duration("wait", drill.DefaultResultWait, "How long to wait for the result")
		jsonLogs = flag.Bool("json", false, "Log as JSON")
	)
	flag.Parse()

	format := logger.FormatText
	if *jsonLogs {
		format = logger.FormatJSON
	}
	if err := logger.Init(logger.WithFormat(format)); err != nil {
		_, _ = os.Stderr.WriteString("failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultDrillTimeout)
	defer cancel()

	cfg := drill.Config{
		BaseURL:    strings.TrimRight(*baseURL, "/"),
		Kind:       *kind,
		Duration:   *duration,
		NumPlayers: *count,
		Workers:    *workers,
		Timeout:    *timeout,
		ResultWait: *wait,
	}
	if *players != "" {
		for _, p := range strings.Split(*players, ",") {
			if p = strings.TrimSpace(p); p != "" {
				cfg.Players = append(cfg.Players, p)
			}
		}
	}

	if _, err := drill.Run(ctx, cfg, logger.Named("drill")); err != nil {
		logger.Get().Error(ctx, "drill failed", logger.Error(err))
		os.Exit(1)
	}
}
