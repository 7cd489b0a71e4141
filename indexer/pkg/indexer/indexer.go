package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/stakewatch/lake/indexer/pkg/cache"
	"github.com/stakewatch/lake/indexer/pkg/clickhouse"
	"github.com/stakewatch/lake/indexer/pkg/onekv"
	"github.com/stakewatch/lake/indexer/pkg/reconcile"
	"github.com/stakewatch/lake/indexer/pkg/staking"
	"github.com/stakewatch/lake/indexer/pkg/yield"
)

type Indexer struct {
	log *slog.Logger
	cfg Config

	store      *staking.Store
	cache      *cache.Cache
	reconciler *reconcile.Reconciler

	startedAt time.Time
}

func New(ctx context.Context, cfg Config) (*Indexer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.MigrationsEnable {
		if err := clickhouse.RunMigrations(ctx, cfg.Logger, cfg.MigrationsConfig); err != nil {
			return nil, fmt.Errorf("failed to run ClickHouse migrations: %w", err)
		}
		cfg.Logger.Info("ClickHouse migrations completed")
	}

	store, err := staking.NewStore(staking.StoreConfig{
		Logger:     cfg.Logger,
		Clock:      cfg.Clock,
		ClickHouse: cfg.ClickHouse,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create staking store: %w", err)
	}

	views, err := cache.New(cache.Config{
		Logger: cfg.Logger,
		Clock:  cfg.Clock,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}

	quality, err := onekv.NewEvaluator(onekv.EvaluatorConfig{
		Logger:  cfg.Logger,
		Backend: cfg.OneKV,
		Eras:    cfg.Chain,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create 1KV evaluator: %w", err)
	}

	reconciler, err := reconcile.New(reconcile.Config{
		Logger:               cfg.Logger,
		Clock:                cfg.Clock,
		Chain:                cfg.Chain,
		Store:                store,
		Cache:                views,
		Quality:              quality,
		APY:                  yield.APY,
		Schedule:             cfg.Schedule,
		Timezone:             cfg.Timezone,
		SkipInitialRun:       !cfg.RunOnStart,
		MaxConcurrency:       cfg.MaxConcurrency,
		SkipFailedValidators: cfg.SkipFailedValidators,
		StuckCycleWarning:    cfg.StuckCycleWarning,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create reconciler: %w", err)
	}

	return &Indexer{
		log: cfg.Logger,
		cfg: cfg,

		store:      store,
		cache:      views,
		reconciler: reconciler,
	}, nil
}

func (i *Indexer) Store() *staking.Store {
	return i.store
}

func (i *Indexer) Cache() *cache.Cache {
	return i.cache
}

func (i *Indexer) Reconciler() *reconcile.Reconciler {
	return i.reconciler
}

// Ready reports whether the cached views have been published at least once.
func (i *Indexer) Ready() bool {
	return i.reconciler.Ready()
}

func (i *Indexer) StartedAt() time.Time {
	return i.startedAt
}

func (i *Indexer) Start(ctx context.Context) {
	i.startedAt = i.cfg.Clock.Now()
	i.reconciler.Start(ctx)
	i.log.Info("indexer: started", "schedule", i.reconciler.Schedule().String(), "runOnStart", i.cfg.RunOnStart)
}

// Close waits for the schedule loop and any in-flight cycle to return. The
// context passed to Start must already be cancelled.
func (i *Indexer) Close() error {
	i.reconciler.Wait()
	return nil
}
