package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"

	"github.com/stakewatch/lake/indexer/pkg/chain"
	"github.com/stakewatch/lake/indexer/pkg/metrics"
	"github.com/stakewatch/lake/indexer/pkg/onekv"
	"github.com/stakewatch/lake/indexer/pkg/staking"
)

// ChainSource reads staking state from the chain.
type ChainSource interface {
	GetActiveEraIndex(ctx context.Context) (chain.Era, error)
	GetEraTotalReward(ctx context.Context, era chain.Era) (decimal.Decimal, error)
	GetCurrentValidatorCount(ctx context.Context) (uint32, error)
	GetValidatorWaitingInfo(ctx context.Context) (*chain.ValidatorWaitingInfo, error)
	GetNominators(ctx context.Context) ([]*chain.Nominator, error)
	GetStakerPoints(ctx context.Context, accountID string) ([]chain.StakerPoint, error)
}

// Store persists derived records.
type Store interface {
	SaveActiveEra(ctx context.Context, era chain.Era) error
	GetValidatorStatusOfEra(ctx context.Context, accountID string, era chain.Era) (*staking.ValidatorEraRecord, error)
	SaveValidatorUnclaimedEras(ctx context.Context, accountID string, eras []chain.Era) error
	SaveValidatorNominationData(ctx context.Context, accountID string, data staking.ValidatorEraRecord) error
}

// Cache receives the published views. Update replaces the whole value at key.
type Cache interface {
	Update(key string, value any) error
}

type QualityEvaluator interface {
	GetValidValidators(ctx context.Context, validators []*chain.Validator) (*onekv.Summary, error)
	GetNominators(ctx context.Context) (*onekv.NominatorSummary, error)
}

type APYFunc func(v *chain.Validator, scale, eraTotalReward decimal.Decimal, validatorCount uint32, precision int32) decimal.Decimal

type CycleState int32

const (
	Idle CycleState = iota
	Running
)

func (s CycleState) String() string {
	if s == Running {
		return "running"
	}
	return "idle"
}

type Config struct {
	Logger  *slog.Logger
	Clock   clockwork.Clock
	Chain   ChainSource
	Store   Store
	Cache   Cache
	Quality QualityEvaluator
	APY     APYFunc

	Schedule string
	Timezone string

	// SkipInitialRun disables the cycle Start triggers immediately.
	SkipInitialRun bool

	// MaxConcurrency bounds how many validators are derived at once.
	MaxConcurrency int

	// SkipFailedValidators logs and skips a validator whose pipeline fails
	// instead of aborting the cycle.
	SkipFailedValidators bool

	// StuckCycleWarning, when positive, logs a warning if a cycle runs longer.
	// The guard is left held.
	StuckCycleWarning time.Duration
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Chain == nil {
		return errors.New("chain source is required")
	}
	if cfg.Store == nil {
		return errors.New("store is required")
	}
	if cfg.Cache == nil {
		return errors.New("cache is required")
	}
	if cfg.Quality == nil {
		return errors.New("quality evaluator is required")
	}
	if cfg.APY == nil {
		return errors.New("apy func is required")
	}
	if cfg.MaxConcurrency < 0 {
		return errors.New("max concurrency must not be negative")
	}
	if cfg.StuckCycleWarning < 0 {
		return errors.New("stuck cycle warning must not be negative")
	}
	if cfg.MaxConcurrency == 0 {
		cfg.MaxConcurrency = 1
	}
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.Timezone == "" {
		cfg.Timezone = DefaultTimezone
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Reconciler runs the periodic reconciliation cycle. At most one cycle runs at a
// time.
type Reconciler struct {
	log      *slog.Logger
	cfg      Config
	schedule *Schedule

	state atomic.Int32
	wg    sync.WaitGroup

	readyOnce sync.Once
	readyCh   chan struct{}
}

func New(cfg Config) (*Reconciler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	schedule, err := ParseSchedule(cfg.Schedule, cfg.Timezone)
	if err != nil {
		return nil, err
	}
	return &Reconciler{
		log:      cfg.Logger,
		cfg:      cfg,
		schedule: schedule,
		readyCh:  make(chan struct{}),
	}, nil
}

func (r *Reconciler) State() CycleState {
	return CycleState(r.state.Load())
}

// Ready reports whether at least one cycle has completed successfully.
func (r *Reconciler) Ready() bool {
	select {
	case <-r.readyCh:
		return true
	default:
		return false
	}
}

func (r *Reconciler) WaitReady(ctx context.Context) error {
	select {
	case <-r.readyCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("context cancelled while waiting for first reconciliation: %w", ctx.Err())
	}
}

// Trigger runs one cycle unless one is already running, in which case it
// returns false immediately. Cycle errors and panics are logged and reported,
// never returned.
func (r *Reconciler) Trigger(ctx context.Context) bool {
	if !r.state.CompareAndSwap(int32(Idle), int32(Running)) {
		r.log.Warn("reconcile: previous cycle still running, skipping")
		metrics.CycleTotal.WithLabelValues("skipped").Inc()
		return false
	}
	defer r.state.Store(int32(Idle))

	r.safeRun(ctx)
	return true
}

// RunOnce runs one cycle under the guard and returns its error.
func (r *Reconciler) RunOnce(ctx context.Context) error {
	if !r.state.CompareAndSwap(int32(Idle), int32(Running)) {
		return ErrCycleInProgress
	}
	defer r.state.Store(int32(Idle))

	return r.runCycle(ctx, r.log.With("cycle", uuid.NewString()))
}

func (r *Reconciler) safeRun(ctx context.Context) {
	cycleID := uuid.NewString()
	log := r.log.With("cycle", cycleID)
	start := r.cfg.Clock.Now()
	status := "success"

	metrics.CycleInFlight.Set(1)
	if r.cfg.StuckCycleWarning > 0 {
		stuck := r.cfg.Clock.AfterFunc(r.cfg.StuckCycleWarning, func() {
			log.Warn("reconcile: cycle exceeded expected duration", "threshold", r.cfg.StuckCycleWarning)
			metrics.CycleStuckTotal.Inc()
		})
		defer stuck.Stop()
	}

	defer func() {
		if rec := recover(); rec != nil {
			status = "panic"
			log.Error("reconcile: cycle panicked", "panic", rec)
			r.report(cycleID, fmt.Errorf("reconcile: cycle panicked: %v", rec))
		}
		metrics.CycleInFlight.Set(0)
		metrics.CycleTotal.WithLabelValues(status).Inc()
		metrics.CycleDuration.Observe(r.cfg.Clock.Since(start).Seconds())
	}()

	if err := r.runCycle(ctx, log); err != nil {
		status = "error"
		if errors.Is(err, context.Canceled) {
			log.Info("reconcile: cycle cancelled")
			return
		}
		log.Error("reconcile: cycle failed", "error", err)
		r.report(cycleID, err)
	}
}

func (r *Reconciler) report(cycleID string, err error) {
	hub := sentry.CurrentHub().Clone()
	hub.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("component", "reconcile")
		scope.SetTag("cycle_id", cycleID)
	})
	hub.CaptureException(err)
}

func (r *Reconciler) runCycle(ctx context.Context, log *slog.Logger) error {
	start := r.cfg.Clock.Now()
	log.Info("reconcile: cycle started")

	// 1. Era context
	ec, err := r.buildEraContext(ctx)
	if err != nil {
		return err
	}
	log.Info("reconcile: era context", "era", ec.ActiveEra, "previousEraReward", ec.PreviousEraTotalReward, "validatorCount", ec.ValidatorCount)

	// 2. Validator and nominator snapshot
	snap, err := r.fetchSnapshot(ctx, log)
	if err != nil {
		return err
	}

	// 3. Per-validator derivation and writes
	if err := r.processValidators(ctx, log, ec, snap.validators); err != nil {
		return err
	}

	// 4. Publish
	if err := r.publish(ctx, ec, snap); err != nil {
		return err
	}

	r.readyOnce.Do(func() {
		close(r.readyCh)
		log.Info("reconcile: first cycle completed, ready")
	})
	log.Info("reconcile: cycle completed", "era", ec.ActiveEra, "validators", len(snap.validators), "duration", r.cfg.Clock.Since(start).String())
	return nil
}

func (r *Reconciler) buildEraContext(ctx context.Context) (EraContext, error) {
	era, err := r.cfg.Chain.GetActiveEraIndex(ctx)
	if err != nil {
		return EraContext{}, fmt.Errorf("failed to get active era: %w", err)
	}
	if err := r.cfg.Store.SaveActiveEra(ctx, era); err != nil {
		return EraContext{}, fmt.Errorf("failed to save active era: %w", err)
	}
	if era == 0 {
		return EraContext{}, &DerivationError{Era: era, Reason: "active era has no previous era"}
	}

	ec := EraContext{ActiveEra: era}
	ec.PreviousEraTotalReward, err = r.cfg.Chain.GetEraTotalReward(ctx, ec.PreviousEra())
	if err != nil {
		return EraContext{}, fmt.Errorf("failed to get total reward for era %d: %w", ec.PreviousEra(), err)
	}
	ec.ValidatorCount, err = r.cfg.Chain.GetCurrentValidatorCount(ctx)
	if err != nil {
		return EraContext{}, fmt.Errorf("failed to get validator count: %w", err)
	}
	return ec, nil
}
