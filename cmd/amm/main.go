package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"constantProduct/internal/config"
	"constantProduct/internal/service"
	"constantProduct/internal/storage"
)

func main() {
	root := &cobra.Command{
		Use:          "amm",
		Short:        "Constant-product liquidity pool engine",
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file path")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("backend", config.BackendMemory, "storage backend (memory, postgres)")
	flags.String("state-file", "./data/amm-state.json", "snapshot file for the memory backend, empty for none")
	flags.String("pg-dsn", "", "Postgres DSN for the postgres backend")
	flags.String("journal", "./data/events.jsonl", "pool event journal JSONL, empty to disable")

	root.AddCommand(
		newPoolCmd(),
		newLiquidityCmd(),
		newSwapCmd(),
		newQuoteCmd(),
		newAccountCmd(),
		newServeCmd(),
		newMigrateCmd(),
		newAggregateCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// app is the wiring shared by the engine commands.
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	backend  storage.Backend
	registry *prometheus.Registry
	svc      *service.Service
}

func newApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}

	var journal *storage.EventJournal
	if cfg.Journal != "" {
		journal = storage.NewEventJournal(cfg.Journal)
	}

	registry := prometheus.NewRegistry()
	svc := service.New(backend, journal, service.NewMetrics(cfg.MetricsNamespace, registry), service.Config{
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
	}, logger)

	logger.Debug("engine ready",
		zap.String("backend", cfg.Backend),
		zap.String("state_file", cfg.StateFile),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.String("journal", cfg.Journal),
	)

	return &app{cfg: cfg, logger: logger, backend: backend, registry: registry, svc: svc}, nil
}

func (a *app) Close() {
	a.backend.Close()
	_ = a.logger.Sync()
}

// runApp opens the engine for one command invocation.
func runApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func printJSON(cmd *cobra.Command, v any) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func parseAddress(name, value string) (common.Address, error) {
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("%s: invalid address %q", name, value)
	}
	return common.HexToAddress(value), nil
}

// parseAddresses parses positional address arguments in order.
func parseAddresses(args []string, names ...string) ([]common.Address, error) {
	out := make([]common.Address, len(names))
	for i, name := range names {
		addr, err := parseAddress(name, args[i])
		if err != nil {
			return nil, err
		}
		out[i] = addr
	}
	return out, nil
}

// amountFlag reads a uint64 flag given as a decimal string so the full range
// is accepted.
func amountFlag(cmd *cobra.Command, name string) (uint64, error) {
	raw, err := cmd.Flags().GetString(name)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("--%s: invalid amount %q", name, raw)
	}
	return v, nil
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
