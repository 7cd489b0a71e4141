package onekv

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/stakewatch/lake/indexer/pkg/chain"
)

// Backend is the subset of the 1KV API the evaluator reads.
type Backend interface {
	Candidates(ctx context.Context) ([]Candidate, error)
	Nominators(ctx context.Context) ([]ProgramNominator, error)
}

type EraSource interface {
	GetActiveEraIndex(ctx context.Context) (chain.Era, error)
}

type EvaluatorConfig struct {
	Logger  *slog.Logger
	Backend Backend
	Eras    EraSource
}

func (cfg *EvaluatorConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Backend == nil {
		return errors.New("backend is required")
	}
	if cfg.Eras == nil {
		return errors.New("era source is required")
	}
	return nil
}

type Evaluator struct {
	log *slog.Logger
	cfg EvaluatorConfig
}

func NewEvaluator(cfg EvaluatorConfig) (*Evaluator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Evaluator{log: cfg.Logger, cfg: cfg}, nil
}

// GetValidValidators summarises the valid programme candidates found in
// validators, best rank first. Nil validators are ignored.
func (e *Evaluator) GetValidValidators(ctx context.Context, validators []*chain.Validator) (*Summary, error) {
	candidates, err := e.cfg.Backend.Candidates(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch candidates: %w", err)
	}
	era, err := e.cfg.Eras.GetActiveEraIndex(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch active era: %w", err)
	}

	byAccount := make(map[string]*chain.Validator, len(validators))
	for _, v := range validators {
		if v != nil {
			byAccount[v.AccountID] = v
		}
	}

	summary := &Summary{ActiveEra: era, Valid: []ValidatorSummary{}}
	for _, c := range candidates {
		if !c.Valid {
			continue
		}
		v, ok := byAccount[c.Stash]
		if !ok {
			continue
		}
		summary.Valid = append(summary.Valid, ValidatorSummary{
			AccountID:   v.AccountID,
			Name:        c.Name,
			Rank:        c.Rank,
			Faults:      c.Faults,
			Commission:  v.Commission,
			Elected:     v.Active,
			SelfStake:   v.Exposure.Own,
			TotalStake:  v.Exposure.Total,
			NominatedAt: c.NominatedAt,
		})
		if v.Active {
			summary.ElectedCount++
		}
	}
	slices.SortStableFunc(summary.Valid, func(a, b ValidatorSummary) int {
		if c := cmp.Compare(b.Rank, a.Rank); c != 0 {
			return c
		}
		return cmp.Compare(a.AccountID, b.AccountID)
	})

	summary.ValidatorCount = len(summary.Valid)
	summary.ElectionRate = decimal.Zero
	if summary.ValidatorCount > 0 {
		summary.ElectionRate = decimal.NewFromInt(int64(summary.ElectedCount)).
			DivRound(decimal.NewFromInt(int64(summary.ValidatorCount)), 4)
	}

	e.log.Debug("onekv: evaluated candidates", "candidates", len(candidates), "valid", summary.ValidatorCount, "elected", summary.ElectedCount)
	return summary, nil
}

func (e *Evaluator) GetNominators(ctx context.Context) (*NominatorSummary, error) {
	nominators, err := e.cfg.Backend.Nominators(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch nominators: %w", err)
	}
	era, err := e.cfg.Eras.GetActiveEraIndex(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch active era: %w", err)
	}
	if nominators == nil {
		nominators = []ProgramNominator{}
	}
	return &NominatorSummary{ActiveEra: era, Nominators: nominators}, nil
}
