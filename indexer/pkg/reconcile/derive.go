package reconcile

import (
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/stakewatch/lake/indexer/pkg/chain"
	"github.com/stakewatch/lake/indexer/pkg/staking"
)

const APYPrecision int32 = 4

// KusamaDecimals is the number of planck in one KSM.
var KusamaDecimals = decimal.New(1, 12)

// EraContext is fetched once at the start of a cycle and shared read-only by
// every validator in it.
type EraContext struct {
	ActiveEra              chain.Era
	PreviousEraTotalReward decimal.Decimal
	ValidatorCount         uint32
}

// PreviousEra is the era whose reward and records the cycle compares against.
func (e EraContext) PreviousEra() chain.Era {
	return e.ActiveEra - 1
}

// Derivation is everything a cycle writes for one validator.
type Derivation struct {
	Record    staking.ValidatorEraRecord
	Unclaimed []chain.Era
}

// UnclaimedEras returns the eras in which the validator earned points and has
// not claimed the reward, ascending and without duplicates. A validator with no
// point history has no unclaimed eras.
func UnclaimedEras(points []chain.StakerPoint, claimed []chain.Era) []chain.Era {
	out := make([]chain.Era, 0, len(points))
	for _, p := range points {
		if p.Points == 0 || slices.Contains(claimed, p.Era) {
			continue
		}
		out = append(out, p.Era)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// PriorCommission returns the commission stored for the previous era, or
// NoHistoryCommission when there is no record.
func PriorCommission(prior *staking.ValidatorEraRecord) chain.Perbill {
	if prior == nil {
		return staking.NoHistoryCommission
	}
	return prior.Commission
}

func CompareCommission(prev, now chain.Perbill) staking.CommissionChange {
	switch {
	case now > prev:
		return staking.CommissionIncreased
	case now < prev:
		return staking.CommissionDecreased
	}
	return staking.CommissionUnchanged
}

// Derive computes the record and unclaimed era set of v for the active era.
// It performs no I/O: points and prior are fetched by the caller.
func Derive(ec EraContext, v *chain.Validator, points []chain.StakerPoint, prior *staking.ValidatorEraRecord, apy APYFunc) (*Derivation, error) {
	for _, era := range v.StakingLedger.ClaimedRewards {
		if era > ec.ActiveEra {
			return nil, &DerivationError{
				AccountID: v.AccountID,
				Era:       ec.ActiveEra,
				Reason:    fmt.Sprintf("claimed rewards include future era %d", era),
			}
		}
	}

	unclaimed := UnclaimedEras(points, v.StakingLedger.ClaimedRewards)
	change := CompareCommission(PriorCommission(prior), v.Commission)
	yield := apy(v, KusamaDecimals, ec.PreviousEraTotalReward, ec.ValidatorCount, APYPrecision)

	return &Derivation{
		Record: staking.ValidatorEraRecord{
			Era:               ec.ActiveEra,
			Exposure:          v.Exposure,
			Commission:        v.Commission,
			APY:               yield,
			Identity:          v.Identity,
			Nominators:        v.Nominators,
			CommissionChanged: change,
		},
		Unclaimed: unclaimed,
	}, nil
}
