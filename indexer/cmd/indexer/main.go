package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/stakewatch/lake/indexer/pkg/chain"
	"github.com/stakewatch/lake/indexer/pkg/clickhouse"
	"github.com/stakewatch/lake/indexer/pkg/indexer"
	"github.com/stakewatch/lake/indexer/pkg/metrics"
	"github.com/stakewatch/lake/indexer/pkg/onekv"
	"github.com/stakewatch/lake/indexer/pkg/reconcile"
	"github.com/stakewatch/lake/indexer/pkg/server"
	"github.com/stakewatch/lake/utils/pkg/logger"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	defaultListenAddr  = "0.0.0.0:8080"
	defaultMetricsAddr = "0.0.0.0:0"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	logJSONFlag := flag.Bool("log-json", false, "emit logs as JSON")
	listenAddrFlag := flag.String("listen-addr", defaultListenAddr, "HTTP listen address for health and read API")
	metricsAddrFlag := flag.String("metrics-addr", defaultMetricsAddr, "address to listen on for prometheus metrics")
	corsOriginsFlag := flag.StringSlice("cors-origins", nil, "origins allowed to read the API (default any)")
	shutdownTimeoutFlag := flag.Duration("shutdown-timeout", 10*time.Second, "maximum time to wait for the HTTP server to drain")

	// ClickHouse configuration
	clickhouseAddrFlag := flag.String("clickhouse-addr", "", "ClickHouse address (host:port) (or set CLICKHOUSE_ADDR_TCP env var)")
	clickhouseDatabaseFlag := flag.String("clickhouse-database", "default", "ClickHouse database name (or set CLICKHOUSE_DATABASE env var)")
	clickhouseUsernameFlag := flag.String("clickhouse-username", "default", "ClickHouse username (or set CLICKHOUSE_USERNAME env var)")
	clickhousePasswordFlag := flag.String("clickhouse-password", "", "ClickHouse password (or set CLICKHOUSE_PASSWORD env var)")
	clickhouseSecureFlag := flag.Bool("clickhouse-secure", false, "enable TLS for ClickHouse Cloud (or set CLICKHOUSE_SECURE=true env var)")
	migrateFlag := flag.Bool("migrate", true, "run ClickHouse migrations at startup")

	// Upstreams
	chainURLFlag := flag.String("chain-gateway-url", "", "chain gateway base URL (or set CHAIN_GATEWAY_URL env var)")
	chainRPSFlag := flag.Float64("chain-rps", 20, "maximum requests per second to the chain gateway (0 = unlimited)")
	onekvURLFlag := flag.String("onekv-url", "", "1KV backend base URL (or set ONEKV_URL env var)")

	// Reconciliation
	scheduleFlag := flag.String("schedule", reconcile.DefaultSchedule, "cron schedule of reconciliation cycles (or set RECONCILE_SCHEDULE env var)")
	timezoneFlag := flag.String("timezone", reconcile.DefaultTimezone, "time zone the schedule is evaluated in (or set RECONCILE_TIMEZONE env var)")
	runOnStartFlag := flag.Bool("run-on-start", true, "run one cycle immediately at startup")
	maxConcurrencyFlag := flag.Int("max-concurrency", 8, "maximum validators derived concurrently")
	skipFailedFlag := flag.Bool("skip-failed-validators", false, "skip a validator whose pipeline fails instead of aborting the cycle")
	stuckWarningFlag := flag.Duration("stuck-cycle-warning", 30*time.Minute, "warn when a cycle runs longer than this (0 = disabled)")

	// Error reporting
	sentryDSNFlag := flag.String("sentry-dsn", "", "Sentry DSN (or set SENTRY_DSN env var)")
	sentryEnvFlag := flag.String("sentry-environment", "", "Sentry environment (or set SENTRY_ENVIRONMENT env var)")

	flag.Parse()

	// Override flags with environment variables if set
	overrideString(clickhouseAddrFlag, "CLICKHOUSE_ADDR_TCP")
	overrideString(clickhouseDatabaseFlag, "CLICKHOUSE_DATABASE")
	overrideString(clickhouseUsernameFlag, "CLICKHOUSE_USERNAME")
	overrideString(clickhousePasswordFlag, "CLICKHOUSE_PASSWORD")
	if os.Getenv("CLICKHOUSE_SECURE") == "true" {
		*clickhouseSecureFlag = true
	}
	overrideString(chainURLFlag, "CHAIN_GATEWAY_URL")
	overrideString(onekvURLFlag, "ONEKV_URL")
	overrideString(scheduleFlag, "RECONCILE_SCHEDULE")
	overrideString(timezoneFlag, "RECONCILE_TIMEZONE")
	overrideString(sentryDSNFlag, "SENTRY_DSN")
	overrideString(sentryEnvFlag, "SENTRY_ENVIRONMENT")
	if envOrigins := os.Getenv("CORS_ORIGINS"); envOrigins != "" {
		*corsOriginsFlag = strings.Split(envOrigins, ",")
	}
	if envConcurrency := os.Getenv("RECONCILE_MAX_CONCURRENCY"); envConcurrency != "" {
		n, err := strconv.Atoi(envConcurrency)
		if err != nil {
			return fmt.Errorf("invalid RECONCILE_MAX_CONCURRENCY: %w", err)
		}
		*maxConcurrencyFlag = n
	}

	log := logger.NewWithOptions(logger.Options{Verbose: *verboseFlag, JSON: *logJSONFlag})

	if *clickhouseAddrFlag == "" {
		return errors.New("--clickhouse-addr is required")
	}
	if *chainURLFlag == "" {
		return errors.New("--chain-gateway-url is required")
	}
	if *onekvURLFlag == "" {
		return errors.New("--onekv-url is required")
	}

	if *sentryDSNFlag != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         *sentryDSNFlag,
			Environment: *sentryEnvFlag,
			Release:     version,
		}); err != nil {
			return fmt.Errorf("failed to initialize sentry: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
		log.Info("sentry initialized", "environment", *sentryEnvFlag)
	}

	metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)
	if *metricsAddrFlag != "" {
		go serveMetrics(log, *metricsAddrFlag)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	chCfg := clickhouse.Config{
		Addr:     *clickhouseAddrFlag,
		Database: *clickhouseDatabaseFlag,
		Username: *clickhouseUsernameFlag,
		Password: *clickhousePasswordFlag,
		Secure:   *clickhouseSecureFlag,
	}
	if err := chCfg.Validate(); err != nil {
		return err
	}
	chClient, err := clickhouse.NewClient(ctx, log, chCfg)
	if err != nil {
		return fmt.Errorf("failed to create ClickHouse client: %w", err)
	}
	defer chClient.Close()

	chainClient, err := chain.NewClient(chain.ClientConfig{
		Logger:            log,
		BaseURL:           strings.TrimRight(*chainURLFlag, "/"),
		RequestsPerSecond: *chainRPSFlag,
		Burst:             max(int(*chainRPSFlag), 1),
	})
	if err != nil {
		return fmt.Errorf("failed to create chain client: %w", err)
	}

	onekvClient, err := onekv.NewClient(onekv.ClientConfig{
		Logger:  log,
		BaseURL: strings.TrimRight(*onekvURLFlag, "/"),
	})
	if err != nil {
		return fmt.Errorf("failed to create 1KV client: %w", err)
	}

	srv, err := server.New(ctx, server.Config{
		ListenAddr:      *listenAddrFlag,
		ShutdownTimeout: *shutdownTimeoutFlag,
		CORSOrigins:     *corsOriginsFlag,
		VersionInfo: server.VersionInfo{
			Version: version,
			Commit:  commit,
			Date:    date,
		},
		IndexerConfig: indexer.Config{
			Logger:               log,
			ClickHouse:           chClient,
			MigrationsEnable:     *migrateFlag,
			MigrationsConfig:     chCfg.MigrationConfig(),
			Chain:                chainClient,
			OneKV:                onekvClient,
			Schedule:             *scheduleFlag,
			Timezone:             *timezoneFlag,
			RunOnStart:           *runOnStartFlag,
			MaxConcurrency:       *maxConcurrencyFlag,
			SkipFailedValidators: *skipFailedFlag,
			StuckCycleWarning:    *stuckWarningFlag,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	log.Info("indexer starting", "version", version, "commit", commit, "date", date)
	return srv.Run(ctx)
}

func overrideString(flagVal *string, env string) {
	if v := os.Getenv(env); v != "" {
		*flagVal = v
	}
}

func serveMetrics(log *slog.Logger, addr string) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		log.Error("failed to start prometheus metrics server listener", "error", err)
		return
	}
	log.Info("prometheus metrics server listening", "address", listener.Addr().String())
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.Serve(listener, mux); err != nil {
		log.Error("failed to start prometheus metrics server", "error", err)
	}
}
