package onekv

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/stakewatch/lake/indexer/pkg/chain"
	laketesting "github.com/stakewatch/lake/utils/pkg/testing"
)

type mockBackend struct {
	CandidatesFunc func(ctx context.Context) ([]Candidate, error)
	NominatorsFunc func(ctx context.Context) ([]ProgramNominator, error)
}

func (m *mockBackend) Candidates(ctx context.Context) ([]Candidate, error) {
	return m.CandidatesFunc(ctx)
}

func (m *mockBackend) Nominators(ctx context.Context) ([]ProgramNominator, error) {
	return m.NominatorsFunc(ctx)
}

type fixedEra chain.Era

func (f fixedEra) GetActiveEraIndex(ctx context.Context) (chain.Era, error) {
	return chain.Era(f), nil
}

func newTestEvaluator(t *testing.T, backend Backend) *Evaluator {
	t.Helper()
	e, err := NewEvaluator(EvaluatorConfig{
		Logger:  laketesting.NewLogger(),
		Backend: backend,
		Eras:    fixedEra(500),
	})
	require.NoError(t, err)
	return e
}

func TestLake_OneKV_EvaluatorConfig_Validate(t *testing.T) {
	t.Parallel()

	cfg := EvaluatorConfig{}
	require.EqualError(t, cfg.Validate(), "logger is required")
	cfg.Logger = laketesting.NewLogger()
	require.EqualError(t, cfg.Validate(), "backend is required")
	cfg.Backend = &mockBackend{}
	require.EqualError(t, cfg.Validate(), "era source is required")
	cfg.Eras = fixedEra(1)
	require.NoError(t, cfg.Validate())
}

func TestLake_OneKV_Evaluator_GetValidValidators(t *testing.T) {
	t.Parallel()

	t.Run("keeps valid candidates present in the validator set", func(t *testing.T) {
		t.Parallel()

		e := newTestEvaluator(t, &mockBackend{
			CandidatesFunc: func(ctx context.Context) ([]Candidate, error) {
				return []Candidate{
					{Name: "alpha", Stash: "a", Rank: 10, Valid: true},
					{Name: "bravo", Stash: "b", Rank: 30, Valid: true},
					{Name: "charlie", Stash: "c", Rank: 50, Valid: false},
					{Name: "delta", Stash: "d", Rank: 99, Valid: true},
				}, nil
			},
		})

		validators := []*chain.Validator{
			{AccountID: "a", Active: true, Commission: 30_000_000, Exposure: chain.Exposure{Total: decimal.NewFromInt(100), Own: decimal.NewFromInt(10)}},
			nil,
			{AccountID: "b", Active: false, Commission: 0},
			{AccountID: "c", Active: true},
		}

		summary, err := e.GetValidValidators(t.Context(), validators)
		require.NoError(t, err)
		require.Equal(t, chain.Era(500), summary.ActiveEra)
		require.Equal(t, 2, summary.ValidatorCount)
		require.Equal(t, 1, summary.ElectedCount)
		require.Equal(t, "0.5", summary.ElectionRate.String())

		require.Len(t, summary.Valid, 2)
		require.Equal(t, "b", summary.Valid[0].AccountID)
		require.Equal(t, "a", summary.Valid[1].AccountID)
		require.Equal(t, "alpha", summary.Valid[1].Name)
		require.True(t, summary.Valid[1].Elected)
		require.Equal(t, chain.Perbill(30_000_000), summary.Valid[1].Commission)
		require.Equal(t, "100", summary.Valid[1].TotalStake.String())
	})

	t.Run("empty set", func(t *testing.T) {
		t.Parallel()

		e := newTestEvaluator(t, &mockBackend{
			CandidatesFunc: func(ctx context.Context) ([]Candidate, error) { return nil, nil },
		})
		summary, err := e.GetValidValidators(t.Context(), nil)
		require.NoError(t, err)
		require.Empty(t, summary.Valid)
		require.NotNil(t, summary.Valid)
		require.True(t, summary.ElectionRate.IsZero())
	})

	t.Run("propagates backend failure", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("boom")
		e := newTestEvaluator(t, &mockBackend{
			CandidatesFunc: func(ctx context.Context) ([]Candidate, error) { return nil, boom },
		})
		_, err := e.GetValidValidators(t.Context(), nil)
		require.ErrorIs(t, err, boom)
	})
}

func TestLake_OneKV_Evaluator_GetNominators(t *testing.T) {
	t.Parallel()

	e := newTestEvaluator(t, &mockBackend{
		NominatorsFunc: func(ctx context.Context) ([]ProgramNominator, error) {
			return []ProgramNominator{
				{Address: "n1", Bonded: decimal.NewFromInt(7), Current: []NominatedTarget{{Stash: "a", Name: "alpha"}}},
			}, nil
		},
	})

	summary, err := e.GetNominators(t.Context())
	require.NoError(t, err)
	require.Equal(t, chain.Era(500), summary.ActiveEra)
	require.Len(t, summary.Nominators, 1)
	require.Equal(t, "alpha", summary.Nominators[0].Current[0].Name)
}
