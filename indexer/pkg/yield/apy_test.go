package yield

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/stakewatch/lake/indexer/pkg/chain"
)

var kusamaScale = decimal.New(1, 12)

func validator(totalKSM int64, commission chain.Perbill) *chain.Validator {
	return &chain.Validator{
		Commission: commission,
		Exposure:   chain.Exposure{Total: decimal.New(totalKSM, 12)},
	}
}

func TestLake_Yield_APY(t *testing.T) {
	t.Parallel()

	reward := decimal.New(1, 15) // 1000 KSM

	tests := []struct {
		name      string
		v         *chain.Validator
		count     uint32
		precision int32
		want      string
	}{
		{
			// 1000/300 KSM per validator, 90% kept, over 10000 KSM, 1460 eras.
			name:      "ten percent commission",
			v:         validator(10_000, 100_000_000),
			count:     300,
			precision: 4,
			want:      "0.438",
		},
		{
			name:      "no commission",
			v:         validator(10_000, 0),
			count:     300,
			precision: 4,
			want:      "0.4867",
		},
		{
			name:      "full commission",
			v:         validator(10_000, chain.PerbillDenominator),
			count:     300,
			precision: 4,
			want:      "0",
		},
		{
			name:      "precision is honored",
			v:         validator(10_000, 0),
			count:     300,
			precision: 2,
			want:      "0.49",
		},
		{
			name:      "zero validators",
			v:         validator(10_000, 0),
			count:     0,
			precision: 4,
			want:      "0",
		},
		{
			name:      "no stake",
			v:         validator(0, 0),
			count:     300,
			precision: 4,
			want:      "0",
		},
		{
			name:      "nil validator",
			v:         nil,
			count:     300,
			precision: 4,
			want:      "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := APY(tt.v, kusamaScale, reward, tt.count, tt.precision)
			require.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s want %s", got, tt.want)
		})
	}
}

func TestLake_Yield_APY_ScaleInvariant(t *testing.T) {
	t.Parallel()

	v := validator(10_000, 100_000_000)
	reward := decimal.New(1, 15)

	a := APY(v, kusamaScale, reward, 300, 4)
	b := APY(v, decimal.NewFromInt(1), reward, 300, 4)
	require.True(t, a.Equal(b))
	require.True(t, APY(v, decimal.Zero, reward, 300, 4).IsZero())
}
