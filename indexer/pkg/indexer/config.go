package indexer

import (
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/stakewatch/lake/indexer/pkg/clickhouse"
	"github.com/stakewatch/lake/indexer/pkg/onekv"
	"github.com/stakewatch/lake/indexer/pkg/reconcile"
)

type Config struct {
	Logger     *slog.Logger
	Clock      clockwork.Clock
	ClickHouse clickhouse.Client

	MigrationsEnable bool
	MigrationsConfig clickhouse.MigrationConfig

	Chain reconcile.ChainSource
	OneKV onekv.Backend

	Schedule             string
	Timezone             string
	RunOnStart           bool
	MaxConcurrency       int
	SkipFailedValidators bool
	StuckCycleWarning    time.Duration
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.ClickHouse == nil {
		return errors.New("clickhouse connection is required")
	}
	if cfg.Chain == nil {
		return errors.New("chain source is required")
	}
	if cfg.OneKV == nil {
		return errors.New("onekv backend is required")
	}
	if cfg.MigrationsEnable && cfg.MigrationsConfig.Addr == "" {
		return errors.New("migrations config addr is required when migrations are enabled")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}
