package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"realestate-ingest/config"
	"realestate-ingest/utils"
)

const usage = `usage: realestate-ingest <command> [flags]

commands:
  ingest    read raw files, normalize, merge, locate and store them
  backfill  re-geocode stored buildings that still use fallback coordinates
  rescan    run backfill periodically until interrupted
  nearby    count or list stored facilities around a point
  report    print the report over what is currently stored
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg := config.Load()
	logger := newLogger(cfg)
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "ingest":
		err = runIngest(ctx, cfg, logger, args)
	case "backfill":
		err = runBackfill(ctx, cfg, logger, args)
	case "rescan":
		err = runRescan(ctx, cfg, logger, args)
	case "nearby":
		err = runNearby(ctx, cfg, logger, args)
	case "report":
		err = runReport(ctx, cfg, logger, args)
	case "-h", "--help", "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}

	if err != nil {
		logger.Error("%s failed: %v", os.Args[1], err)
		logger.Close()
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) *utils.Logger {
	opts := utils.LoggerOptions{Level: utils.ParseLevel(cfg.LogLevel)}
	if !cfg.FluentEnable {
		return utils.NewLoggerWithOptions(opts)
	}

	client, err := utils.NewFluentClient(cfg.FluentHost, cfg.FluentPort, "realestate")
	if err != nil {
		logger := utils.NewLoggerWithOptions(opts)
		logger.Warn("[main] Fluent forwarding disabled: %v", err)
		return logger
	}
	opts.Fluent = client
	return utils.NewLoggerWithOptions(opts)
}
