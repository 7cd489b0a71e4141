// Package yield estimates nominator returns from era rewards.
package yield

import (
	"github.com/shopspring/decimal"

	"github.com/stakewatch/lake/indexer/pkg/chain"
)

// ErasPerYear is the number of six-hour Kusama eras in a 365-day year.
const ErasPerYear = 4 * 365

const divisionPrecision = 24

// APY estimates the annual yield of staking behind v, assuming the era reward
// is split evenly across validatorCount validators and v's commission is taken
// before the remainder is shared pro rata across its exposure. The result is a
// fraction (0.15 is 15%) rounded to precision decimal places. Inputs that make
// the estimate meaningless yield zero.
func APY(v *chain.Validator, scale, eraTotalReward decimal.Decimal, validatorCount uint32, precision int32) decimal.Decimal {
	if v == nil || validatorCount == 0 || !scale.IsPositive() || !v.Exposure.Total.IsPositive() {
		return decimal.Zero
	}

	reward := eraTotalReward.DivRound(scale, divisionPrecision).
		DivRound(decimal.NewFromInt(int64(validatorCount)), divisionPrecision)
	reward = reward.Mul(decimal.NewFromInt(1).Sub(v.Commission.Fraction()))

	stake := v.Exposure.Total.DivRound(scale, divisionPrecision)

	return reward.DivRound(stake, divisionPrecision).
		Mul(decimal.NewFromInt(ErasPerYear)).
		Round(precision)
}
