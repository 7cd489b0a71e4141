package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/stakewatch/lake/admin/internal/admin"
	"github.com/stakewatch/lake/indexer/pkg/chain"
	"github.com/stakewatch/lake/indexer/pkg/clickhouse"
	"github.com/stakewatch/lake/indexer/pkg/indexer"
	"github.com/stakewatch/lake/indexer/pkg/onekv"
	"github.com/stakewatch/lake/utils/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")

	// ClickHouse configuration
	clickhouseAddrFlag := flag.String("clickhouse-addr", "", "ClickHouse address (host:port) (or set CLICKHOUSE_ADDR_TCP env var)")
	clickhouseDatabaseFlag := flag.String("clickhouse-database", "default", "ClickHouse database name (or set CLICKHOUSE_DATABASE env var)")
	clickhouseUsernameFlag := flag.String("clickhouse-username", "default", "ClickHouse username (or set CLICKHOUSE_USERNAME env var)")
	clickhousePasswordFlag := flag.String("clickhouse-password", "", "ClickHouse password (or set CLICKHOUSE_PASSWORD env var)")
	clickhouseSecureFlag := flag.Bool("clickhouse-secure", false, "Enable TLS for ClickHouse Cloud (or set CLICKHOUSE_SECURE=true env var)")

	// Upstreams (for --run-cycle)
	chainURLFlag := flag.String("chain-gateway-url", "", "chain gateway base URL (or set CHAIN_GATEWAY_URL env var)")
	onekvURLFlag := flag.String("onekv-url", "", "1KV backend base URL (or set ONEKV_URL env var)")
	maxConcurrencyFlag := flag.Int("max-concurrency", 8, "maximum validators derived concurrently during --run-cycle")
	skipFailedFlag := flag.Bool("skip-failed-validators", false, "skip failing validators during --run-cycle")

	// Commands
	clickhouseMigrateFlag := flag.Bool("clickhouse-migrate", false, "Run ClickHouse/indexer database migrations using goose")
	clickhouseMigrateStatusFlag := flag.Bool("clickhouse-migrate-status", false, "Show ClickHouse/indexer database migration status")
	clickhouseMigrateDownFlag := flag.Bool("clickhouse-migrate-down", false, "Roll back the most recent ClickHouse migration")
	resetDBFlag := flag.Bool("reset-db", false, "Drop all staking tables")
	resetMigrationsFlag := flag.Bool("reset-migrations", false, "With --reset-db, also drop the goose version table")
	runCycleFlag := flag.Bool("run-cycle", false, "Run one reconciliation cycle and exit")
	dryRunFlag := flag.Bool("dry-run", false, "Dry run mode - show what would be done without actually executing")
	yesFlag := flag.Bool("yes", false, "Skip confirmation prompt (use with caution)")
	timeoutFlag := flag.Duration("timeout", 30*time.Minute, "Maximum time a command may run")

	flag.Parse()

	log := logger.New(*verboseFlag)

	// Override flags with environment variables if set
	if envClickhouseAddr := os.Getenv("CLICKHOUSE_ADDR_TCP"); envClickhouseAddr != "" {
		*clickhouseAddrFlag = envClickhouseAddr
	}
	if envClickhouseDatabase := os.Getenv("CLICKHOUSE_DATABASE"); envClickhouseDatabase != "" {
		*clickhouseDatabaseFlag = envClickhouseDatabase
	}
	if envClickhouseUsername := os.Getenv("CLICKHOUSE_USERNAME"); envClickhouseUsername != "" {
		*clickhouseUsernameFlag = envClickhouseUsername
	}
	if envClickhousePassword := os.Getenv("CLICKHOUSE_PASSWORD"); envClickhousePassword != "" {
		*clickhousePasswordFlag = envClickhousePassword
	}
	if os.Getenv("CLICKHOUSE_SECURE") == "true" {
		*clickhouseSecureFlag = true
	}
	if envChainURL := os.Getenv("CHAIN_GATEWAY_URL"); envChainURL != "" {
		*chainURLFlag = envChainURL
	}
	if envOneKVURL := os.Getenv("ONEKV_URL"); envOneKVURL != "" {
		*onekvURLFlag = envOneKVURL
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, *timeoutFlag)
	defer cancelTimeout()

	chCfg := clickhouse.Config{
		Addr:     *clickhouseAddrFlag,
		Database: *clickhouseDatabaseFlag,
		Username: *clickhouseUsernameFlag,
		Password: *clickhousePasswordFlag,
		Secure:   *clickhouseSecureFlag,
	}

	// Execute commands
	switch {
	case *clickhouseMigrateFlag:
		if *clickhouseAddrFlag == "" {
			return fmt.Errorf("--clickhouse-addr is required for --clickhouse-migrate")
		}
		return clickhouse.RunMigrations(ctx, log, chCfg.MigrationConfig())

	case *clickhouseMigrateStatusFlag:
		if *clickhouseAddrFlag == "" {
			return fmt.Errorf("--clickhouse-addr is required for --clickhouse-migrate-status")
		}
		return clickhouse.MigrationStatus(ctx, log, chCfg.MigrationConfig())

	case *clickhouseMigrateDownFlag:
		if *clickhouseAddrFlag == "" {
			return fmt.Errorf("--clickhouse-addr is required for --clickhouse-migrate-down")
		}
		return clickhouse.Down(ctx, log, chCfg.MigrationConfig())

	case *resetDBFlag:
		if *clickhouseAddrFlag == "" {
			return fmt.Errorf("--clickhouse-addr is required for --reset-db")
		}
		db, err := clickhouse.NewClient(ctx, log, chCfg)
		if err != nil {
			return fmt.Errorf("failed to connect to ClickHouse: %w", err)
		}
		defer db.Close()
		return admin.ResetDB(ctx, log, db, admin.ResetDBConfig{
			Database:              *clickhouseDatabaseFlag,
			DryRun:                *dryRunFlag,
			SkipConfirm:           *yesFlag,
			IncludeMigrationState: *resetMigrationsFlag,
			In:                    os.Stdin,
			Out:                   os.Stdout,
		})

	case *runCycleFlag:
		if *clickhouseAddrFlag == "" {
			return fmt.Errorf("--clickhouse-addr is required for --run-cycle")
		}
		if *chainURLFlag == "" || *onekvURLFlag == "" {
			return fmt.Errorf("--chain-gateway-url and --onekv-url are required for --run-cycle")
		}
		db, err := clickhouse.NewClient(ctx, log, chCfg)
		if err != nil {
			return fmt.Errorf("failed to connect to ClickHouse: %w", err)
		}
		defer db.Close()

		chainClient, err := chain.NewClient(chain.ClientConfig{Logger: log, BaseURL: *chainURLFlag})
		if err != nil {
			return fmt.Errorf("failed to create chain client: %w", err)
		}
		onekvClient, err := onekv.NewClient(onekv.ClientConfig{Logger: log, BaseURL: *onekvURLFlag})
		if err != nil {
			return fmt.Errorf("failed to create 1KV client: %w", err)
		}
		return admin.RunCycle(ctx, log, indexer.Config{
			Logger:               log,
			ClickHouse:           db,
			Chain:                chainClient,
			OneKV:                onekvClient,
			MaxConcurrency:       *maxConcurrencyFlag,
			SkipFailedValidators: *skipFailedFlag,
		}, os.Stdout)
	}

	flag.Usage()
	return nil
}
