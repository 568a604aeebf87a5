// Command aegis is the platform's CLI and service entrypoint:
// serve, ingest, verify-audit, list-sources, and replay.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aegis-health/core/pkg/config"
	"github.com/aegis-health/core/pkg/redact"
)

// Exit codes, per the CLI surface's documented contract.
const (
	exitSuccess        = 0
	exitUsage          = 64
	exitUpstream       = 69
	exitInternal       = 70
	exitRetryable      = 75
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, usage())
		return exitUsage
	}

	cfg := config.Load()
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx := context.Background()
	cmd, rest := args[0], args[1:]

	var err error
	switch cmd {
	case "serve":
		err = runServe(ctx, cfg, rest)
	case "ingest":
		err = runIngest(ctx, cfg, rest)
	case "verify-audit":
		err = runVerifyAudit(ctx, cfg, rest)
	case "list-sources":
		err = runListSources(ctx, cfg, rest)
	case "replay":
		err = runReplay(ctx, cfg, rest)
	case "-h", "--help", "help":
		fmt.Println(usage())
		return exitSuccess
	default:
		fmt.Fprintf(os.Stderr, "aegis: unknown command %q\n%s\n", cmd, usage())
		return exitUsage
	}

	if err == nil {
		return exitSuccess
	}

	code := exitCode(err)
	slog.ErrorContext(ctx, "command failed", "command", cmd, "error", err, "exit_code", code)
	return code
}

func usage() string {
	return `usage: aegis <command> [args]

commands:
  serve                                start the HTTP/WS service
  ingest <source_type> <path>          ingest a payload file through the pipeline
  verify-audit                         verify the audit log's hash chain
  list-sources                         list registered ingestion source types
  replay <execution_id> [--from-step N] --graph <path>  replay a durable workflow execution`
}

// newLogger builds the process-wide structured logger. Every sink is
// wrapped in redact.Handler so PHI never reaches a log line, matching
// the platform's blanket redaction requirement for log output.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	base := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(redact.NewHandler(base, redact.New(nil)))
}
