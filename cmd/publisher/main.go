// Command publisher plays the kitchen side: it reads one status-change event
// or an array of them from stdin and publishes it as a single message on the
// status subject.
package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"

	"github.com/example/kitchen-order-service/internal/adapter/natsstan"
	"github.com/example/kitchen-order-service/internal/config"
	"github.com/example/kitchen-order-service/internal/domain"
	"github.com/example/kitchen-order-service/internal/logging"
)

func main() {
	cfg, err := config.Load(os.Getenv)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger := logging.New(os.Stderr, cfg.LogLevel)

	raw, err := io.ReadAll(os.Stdin)
	if err != nil {
		logger.Error("read stdin", "error", err)
		os.Exit(1)
	}
	events, err := domain.DecodeStatusChanges(raw)
	if err != nil {
		logger.Error("invalid status change payload", "error", err)
		os.Exit(1)
	}
	b, err := json.Marshal(events)
	if err != nil {
		logger.Error("marshal", "error", err)
		os.Exit(1)
	}

	clientID := cfg.Stan.ClientID
	if clientID == "" {
		clientID = "kitchen-publisher"
	}
	sc, _, err := natsstan.Connect(cfg.Stan.ClusterID, clientID, cfg.Stan.URL)
	if err != nil {
		logger.Error("connect", "error", err)
		os.Exit(1)
	}
	defer sc.Close()

	if err := sc.Publish(cfg.Stan.StatusSubject, b); err != nil {
		logger.Error("publish", "error", err)
		os.Exit(1)
	}
	logger.Info("published status changes", "events", len(events), "bytes", len(b), "subject", cfg.Stan.StatusSubject)
}
