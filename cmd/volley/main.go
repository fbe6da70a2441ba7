// Package main provides the entry point for the Volley query dispatcher.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/TFMV/volley/cmd/volley/config"
	"github.com/TFMV/volley/pkg/backends"
	"github.com/TFMV/volley/pkg/backends/clickhouse"
	"github.com/TFMV/volley/pkg/backends/duckdb"
	"github.com/TFMV/volley/pkg/backends/postgres"
	"github.com/TFMV/volley/pkg/dispatch"
	"github.com/TFMV/volley/pkg/metrics"
	"github.com/TFMV/volley/pkg/middleware"
	"github.com/TFMV/volley/pkg/models"
	"github.com/TFMV/volley/pkg/pool"
	"github.com/TFMV/volley/pkg/retry"
)

var (
	// Version information (set by build flags)
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "volley",
	Short: "Volley multi-backend query dispatcher",
	Long: `Volley dispatches one SQL query concurrently to multiple backends
and aggregates the per-backend outcomes, isolating failures so one slow or
broken backend never hides the others' results.`,
}

var queryCmd = &cobra.Command{
	Use:   "query [sql]",
	Short: "Execute a query across the configured backends",
	Long: `Execute a query across the configured backends and print the
per-backend outcomes as JSON.

Example:
  volley query "SELECT 42 AS answer"
  volley query --only duckdb "SELECT COUNT(*) FROM t"
  volley query --exclude clickhouse "SELECT 1"`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check backend connectivity",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(statusCmd)

	for _, cmd := range []*cobra.Command{queryCmd, statusCmd} {
		cmd.Flags().StringP("config", "c", "", "config file path")
		cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
		cmd.Flags().Duration("query-timeout", 0, "overall query timeout")
		cmd.Flags().String("duckdb-path", ":memory:", "DuckDB database path")
		cmd.Flags().StringSlice("clickhouse-addr", nil, "ClickHouse addresses")
		cmd.Flags().String("postgres-dsn", "", "PostgreSQL connection string")
		cmd.Flags().Int("retry-attempts", 3, "retry attempt budget per backend")
		cmd.Flags().Bool("metrics", false, "enable Prometheus metrics endpoint")
		cmd.Flags().String("metrics-address", ":9090", "metrics server address")
	}
	queryCmd.Flags().StringSlice("only", nil, "dispatch only to these backends")
	queryCmd.Flags().StringSlice("exclude", nil, "dispatch to all backends except these")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Volley query dispatcher\n")
			fmt.Printf("Version:    %s\n", version)
			fmt.Printf("Commit:     %s\n", commit)
			fmt.Printf("Build Date: %s\n", buildDate)
		},
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads config, builds the logger, registry, and orchestrator.
func setup(cmd *cobra.Command) (*config.Config, zerolog.Logger, *backends.Registry, *dispatch.Orchestrator, *metrics.PrometheusCollector, error) {
	v := viper.New()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, zerolog.Nop(), nil, nil, nil, fmt.Errorf("bind flags: %w", err)
	}
	v.SetEnvPrefix("VOLLEY")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	cfg, err := config.LoadFromViper(v)
	if err != nil {
		return nil, zerolog.Nop(), nil, nil, nil, err
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()

	registry := backends.NewRegistry()

	var collector *metrics.PrometheusCollector
	var mc metrics.Collector = metrics.NewNoOpCollector()
	if cfg.Metrics.Enabled {
		collector = metrics.NewPrometheusCollector()
		mc = collector
	}

	poolCfg := toPoolConfig(cfg.ConnectionPool)

	if cfg.Backends.DuckDB.Enabled {
		conn, err := duckdb.New(duckdb.Config{Path: cfg.Backends.DuckDB.Path, Pool: poolCfg}, logger)
		if err != nil {
			return nil, logger, nil, nil, nil, fmt.Errorf("duckdb backend: %w", err)
		}
		if err := registry.Register(middleware.Wrap(conn, logger, mc)); err != nil {
			return nil, logger, nil, nil, nil, err
		}
	}
	if cfg.Backends.ClickHouse.Enabled {
		conn, err := clickhouse.New(clickhouse.Config{
			Addr:        cfg.Backends.ClickHouse.Addr,
			Database:    cfg.Backends.ClickHouse.Database,
			Username:    cfg.Backends.ClickHouse.Username,
			Password:    cfg.Backends.ClickHouse.Password,
			DialTimeout: cfg.Backends.ClickHouse.DialTimeout,
			Pool:        poolCfg,
		}, logger)
		if err != nil {
			return nil, logger, nil, nil, nil, fmt.Errorf("clickhouse backend: %w", err)
		}
		if err := registry.Register(middleware.Wrap(conn, logger, mc)); err != nil {
			return nil, logger, nil, nil, nil, err
		}
	}
	if cfg.Backends.Postgres.Enabled {
		conn, err := postgres.New(postgres.Config{DSN: cfg.Backends.Postgres.DSN, Pool: poolCfg}, logger)
		if err != nil {
			return nil, logger, nil, nil, nil, fmt.Errorf("postgres backend: %w", err)
		}
		if err := registry.Register(middleware.Wrap(conn, logger, mc)); err != nil {
			return nil, logger, nil, nil, nil, err
		}
	}

	policy := retry.New(retry.Config{
		MaxAttempts:    cfg.Retry.MaxAttempts,
		BaseBackoff:    cfg.Retry.BaseBackoff,
		MaxBackoff:     cfg.Retry.MaxBackoff,
		JitterFraction: cfg.Retry.JitterFraction,
	}, nil, logger)

	orchestrator := dispatch.New(registry, policy, logger, mc)
	return cfg, logger, registry, orchestrator, collector, nil
}

func toPoolConfig(c config.ConnectionPoolConfig) pool.Config {
	return pool.Config{
		MaxOpenConnections: c.MaxOpenConnections,
		MaxIdleConnections: c.MaxIdleConnections,
		ConnMaxLifetime:    c.ConnMaxLifetime,
		ConnMaxIdleTime:    c.ConnMaxIdleTime,
		ConnectionTimeout:  c.ConnectionTimeout,
	}
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg, logger, registry, orchestrator, collector, err := setup(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := registry.Close(); cerr != nil {
			logger.Warn().Err(cerr).Msg("error closing backends")
		}
	}()

	if collector != nil {
		srv := metrics.NewMetricsServer(cfg.Metrics.Address, collector)
		go func() {
			if err := srv.Start(); err != nil {
				logger.Warn().Err(err).Msg("metrics server stopped")
			}
		}()
		defer func() { _ = srv.Stop() }()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.QueryTimeout)
		defer cancel()
	}

	selection, err := selectionFromFlags(cmd)
	if err != nil {
		return err
	}

	result, err := orchestrator.Execute(ctx, args[0], selection)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	fmt.Println(string(out))

	if len(result.Failed()) > 0 {
		logger.Warn().
			Interface("failed", result.Failed()).
			Msg("some backends failed")
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	_, logger, registry, _, _, err := setup(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := registry.Close(); cerr != nil {
			logger.Warn().Err(cerr).Msg("error closing backends")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	type backendStatus struct {
		Health string      `json:"health"`
		Pool   *pool.Stats `json:"pool,omitempty"`
	}

	status := make(map[string]backendStatus, registry.Len())
	for _, id := range registry.IDs() {
		conn, _ := registry.Get(id)
		entry := backendStatus{Health: "healthy"}
		if err := conn.HealthCheck(ctx); err != nil {
			entry.Health = err.Error()
		}
		if stats, ok := backends.PoolStats(conn); ok {
			entry.Pool = &stats
		}
		status[string(id)] = entry
	}

	out, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// selectionFromFlags maps --only/--exclude onto a Selection.
func selectionFromFlags(cmd *cobra.Command) (models.Selection, error) {
	only, _ := cmd.Flags().GetStringSlice("only")
	exclude, _ := cmd.Flags().GetStringSlice("exclude")
	if len(only) > 0 && len(exclude) > 0 {
		return models.Selection{}, fmt.Errorf("--only and --exclude are mutually exclusive")
	}
	switch {
	case len(only) > 0:
		return models.Include(toBackendIDs(only)...), nil
	case len(exclude) > 0:
		return models.Exclude(toBackendIDs(exclude)...), nil
	default:
		return models.All(), nil
	}
}

func toBackendIDs(names []string) []models.BackendID {
	ids := make([]models.BackendID, 0, len(names))
	for _, n := range names {
		ids = append(ids, models.BackendID(strings.TrimSpace(n)))
	}
	return ids
}
