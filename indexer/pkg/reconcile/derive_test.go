package reconcile

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/stakewatch/lake/indexer/pkg/chain"
	"github.com/stakewatch/lake/indexer/pkg/staking"
)

func TestLake_Reconcile_UnclaimedEras(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		points  []chain.StakerPoint
		claimed []chain.Era
		want    []chain.Era
	}{
		{
			name:    "skips zero points and claimed eras",
			points:  []chain.StakerPoint{{Era: 100, Points: 5}, {Era: 101, Points: 0}, {Era: 102, Points: 3}},
			claimed: []chain.Era{100},
			want:    []chain.Era{102},
		},
		{
			name:   "no history",
			points: nil,
			want:   []chain.Era{},
		},
		{
			name:    "everything claimed",
			points:  []chain.StakerPoint{{Era: 7, Points: 1}},
			claimed: []chain.Era{7},
			want:    []chain.Era{},
		},
		{
			name:   "sorted and deduplicated",
			points: []chain.StakerPoint{{Era: 12, Points: 1}, {Era: 10, Points: 2}, {Era: 12, Points: 4}},
			want:   []chain.Era{10, 12},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, UnclaimedEras(tt.points, tt.claimed))
		})
	}
}

func TestLake_Reconcile_CompareCommission(t *testing.T) {
	t.Parallel()

	tests := []struct {
		prev, now chain.Perbill
		want      staking.CommissionChange
	}{
		{prev: 0, now: 0, want: staking.CommissionUnchanged},
		{prev: 50_000_000, now: 50_000_000, want: staking.CommissionUnchanged},
		{prev: 50_000_000, now: 100_000_000, want: staking.CommissionIncreased},
		{prev: 100_000_000, now: 50_000_000, want: staking.CommissionDecreased},
		{prev: staking.NoHistoryCommission, now: 1, want: staking.CommissionIncreased},
	}

	for _, tt := range tests {
		require.Equal(t, tt.want, CompareCommission(tt.prev, tt.now), "prev=%d now=%d", tt.prev, tt.now)
	}
}

func TestLake_Reconcile_PriorCommission(t *testing.T) {
	t.Parallel()

	require.Equal(t, staking.NoHistoryCommission, PriorCommission(nil))
	require.Equal(t, chain.Perbill(70_000_000), PriorCommission(&staking.ValidatorEraRecord{Commission: 70_000_000}))
}

func TestLake_Reconcile_Derive(t *testing.T) {
	t.Parallel()

	ec := EraContext{
		ActiveEra:              500,
		PreviousEraTotalReward: decimal.New(1, 15),
		ValidatorCount:         300,
	}

	t.Run("assembles the era record", func(t *testing.T) {
		t.Parallel()

		v := testValidator("validator-a", 100_000_000, 498)
		var gotScale, gotReward decimal.Decimal
		var gotCount uint32
		var gotPrecision int32
		apy := func(_ *chain.Validator, scale, reward decimal.Decimal, count uint32, precision int32) decimal.Decimal {
			gotScale, gotReward, gotCount, gotPrecision = scale, reward, count, precision
			return decimal.RequireFromString("0.1234")
		}

		d, err := Derive(ec, v, []chain.StakerPoint{{Era: 498, Points: 1}, {Era: 499, Points: 10}}, &staking.ValidatorEraRecord{Commission: 100_000_000}, apy)
		require.NoError(t, err)

		require.Equal(t, chain.Era(500), d.Record.Era)
		require.Equal(t, staking.CommissionUnchanged, d.Record.CommissionChanged)
		require.Equal(t, "0.1234", d.Record.APY.String())
		require.Equal(t, v.Exposure, d.Record.Exposure)
		require.Equal(t, v.Identity, d.Record.Identity)
		require.Equal(t, v.Nominators, d.Record.Nominators)
		require.Equal(t, []chain.Era{499}, d.Unclaimed)

		require.True(t, gotScale.Equal(KusamaDecimals))
		require.True(t, gotReward.Equal(ec.PreviousEraTotalReward))
		require.Equal(t, uint32(300), gotCount)
		require.Equal(t, APYPrecision, gotPrecision)
	})

	t.Run("rejects claims for a future era", func(t *testing.T) {
		t.Parallel()

		v := testValidator("validator-a", 0, 501)
		_, err := Derive(ec, v, nil, nil, func(*chain.Validator, decimal.Decimal, decimal.Decimal, uint32, int32) decimal.Decimal {
			return decimal.Zero
		})
		var de *DerivationError
		require.ErrorAs(t, err, &de)
		require.Equal(t, "validator-a", de.AccountID)
		require.Contains(t, de.Error(), "future era 501")
	})
}
