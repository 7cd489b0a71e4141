package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/stakewatch/lake/indexer/pkg/cache"
	"github.com/stakewatch/lake/indexer/pkg/chain"
	"github.com/stakewatch/lake/indexer/pkg/metrics"
)

type snapshot struct {
	validators []*chain.Validator
	nominators []*chain.Nominator
}

// ValidatorsSummary is published under cache.KeyValidatorsSummary.
type ValidatorsSummary struct {
	ActiveEra chain.Era          `json:"activeEra"`
	Valid     []*chain.Validator `json:"valid"`
}

// NominatorsSummary is published under cache.KeyNominatorsSummary.
type NominatorsSummary struct {
	ActiveEra  chain.Era          `json:"activeEra"`
	Nominators []*chain.Nominator `json:"nominators"`
}

// fetchSnapshot reads the validator set and the nominators concurrently and
// drops entries the source could not resolve, keeping source order.
func (r *Reconciler) fetchSnapshot(ctx context.Context, log *slog.Logger) (*snapshot, error) {
	var info *chain.ValidatorWaitingInfo
	var nominators []*chain.Nominator

	g, gctx := errgroup.WithContext(ctx)
	goRecover(g, func() error {
		var err error
		info, err = r.cfg.Chain.GetValidatorWaitingInfo(gctx)
		if err != nil {
			return fmt.Errorf("failed to get validator waiting info: %w", err)
		}
		return nil
	})
	goRecover(g, func() error {
		var err error
		nominators, err = r.cfg.Chain.GetNominators(gctx)
		if err != nil {
			return fmt.Errorf("failed to get nominators: %w", err)
		}
		return nil
	})
	if err := repanic(g.Wait()); err != nil {
		return nil, err
	}

	snap := &snapshot{
		validators: []*chain.Validator{},
		nominators: []*chain.Nominator{},
	}
	var absentValidators, absentNominators int
	if info != nil {
		for _, v := range info.Validators {
			if v == nil {
				absentValidators++
				continue
			}
			snap.validators = append(snap.validators, v)
		}
	}
	for _, n := range nominators {
		if n == nil {
			absentNominators++
			continue
		}
		snap.nominators = append(snap.nominators, n)
	}
	if absentValidators > 0 || absentNominators > 0 {
		log.Debug("reconcile: skipped absent snapshot entries", "validators", absentValidators, "nominators", absentNominators)
	}
	return snap, nil
}

func (r *Reconciler) processValidators(ctx context.Context, log *slog.Logger, ec EraContext, validators []*chain.Validator) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.MaxConcurrency)

	for _, v := range validators {
		if gctx.Err() != nil {
			break
		}
		goRecover(g, func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := r.processValidator(gctx, ec, v); err != nil {
				if r.cfg.SkipFailedValidators && !errors.Is(err, context.Canceled) {
					log.Warn("reconcile: skipping validator", "account", v.AccountID, "error", err)
					metrics.ValidatorsProcessedTotal.WithLabelValues("skipped").Inc()
					return nil
				}
				metrics.ValidatorsProcessedTotal.WithLabelValues("error").Inc()
				return fmt.Errorf("failed to process validator %s: %w", v.AccountID, err)
			}
			metrics.ValidatorsProcessedTotal.WithLabelValues("success").Inc()
			return nil
		})
	}
	return repanic(g.Wait())
}

type workerPanic struct {
	value any
}

func (p *workerPanic) Error() string {
	return fmt.Sprintf("worker panicked: %v", p.value)
}

// goRecover runs fn on g, converting a panic into a workerPanic so it cancels
// the group like an error and can be raised again by repanic.
func goRecover(g *errgroup.Group, fn func() error) {
	g.Go(func() (err error) {
		defer func() {
			if rec := recover(); rec != nil {
				err = &workerPanic{value: rec}
			}
		}()
		return fn()
	})
}

// repanic re-raises a worker panic on the calling goroutine.
func repanic(err error) error {
	var p *workerPanic
	if errors.As(err, &p) {
		panic(p.value)
	}
	return err
}

// processValidator completes every read and the derivation before its first
// write, so a failure leaves nothing half-written for this validator.
func (r *Reconciler) processValidator(ctx context.Context, ec EraContext, v *chain.Validator) error {
	points, err := r.cfg.Chain.GetStakerPoints(ctx, v.AccountID)
	if err != nil {
		return fmt.Errorf("failed to get staker points: %w", err)
	}
	prior, err := r.cfg.Store.GetValidatorStatusOfEra(ctx, v.AccountID, ec.PreviousEra())
	if err != nil {
		return fmt.Errorf("failed to get status of era %d: %w", ec.PreviousEra(), err)
	}

	d, err := Derive(ec, v, points, prior, r.cfg.APY)
	if err != nil {
		return err
	}

	if err := r.cfg.Store.SaveValidatorUnclaimedEras(ctx, v.AccountID, d.Unclaimed); err != nil {
		return fmt.Errorf("failed to save unclaimed eras: %w", err)
	}
	if err := r.cfg.Store.SaveValidatorNominationData(ctx, v.AccountID, d.Record); err != nil {
		return fmt.Errorf("failed to save nomination data: %w", err)
	}
	return nil
}

// publish replaces the cache views in a fixed order once every validator write
// has returned.
func (r *Reconciler) publish(ctx context.Context, ec EraContext, snap *snapshot) error {
	if err := r.cfg.Cache.Update(cache.KeyValidatorsSummary, ValidatorsSummary{
		ActiveEra: ec.ActiveEra,
		Valid:     snap.validators,
	}); err != nil {
		return fmt.Errorf("failed to publish validators: %w", err)
	}
	if err := r.cfg.Cache.Update(cache.KeyNominatorsSummary, NominatorsSummary{
		ActiveEra:  ec.ActiveEra,
		Nominators: snap.nominators,
	}); err != nil {
		return fmt.Errorf("failed to publish nominators: %w", err)
	}

	summary, err := r.cfg.Quality.GetValidValidators(ctx, snap.validators)
	if err != nil {
		return fmt.Errorf("failed to evaluate quality programme validators: %w", err)
	}
	if err := r.cfg.Cache.Update(cache.KeyQualityProgramSummary, summary); err != nil {
		return fmt.Errorf("failed to publish quality programme summary: %w", err)
	}

	nominators, err := r.cfg.Quality.GetNominators(ctx)
	if err != nil {
		return fmt.Errorf("failed to evaluate quality programme nominators: %w", err)
	}
	if err := r.cfg.Cache.Update(cache.KeyQualityProgramNominators, nominators); err != nil {
		return fmt.Errorf("failed to publish quality programme nominators: %w", err)
	}
	return nil
}
