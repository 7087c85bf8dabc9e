// Command reconcile removes blobs under a prefix that no document row references.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kirillkom/workspace-ingest/internal/bootstrap"
	"github.com/kirillkom/workspace-ingest/internal/config"
	"github.com/kirillkom/workspace-ingest/internal/observability/logging"
)

func main() {
	prefix := flag.String("prefix", "", "blob key prefix to scan, e.g. <owner>/<workspace>/")
	dryRun := flag.Bool("dry-run", false, "report orphans without deleting them")
	flag.Parse()

	cfg := config.Load()
	logger := logging.NewWithWriter(os.Stderr, "reconcile", cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{Service: "reconcile", WithoutQueue: true})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	report, err := app.ReconcileUC.Reconcile(ctx, *prefix, *dryRun)
	if report != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(report)
	}
	if err != nil {
		logger.Error("reconcile_failed", "prefix", *prefix, "error", err)
		app.Close()
		os.Exit(1)
	}
}
