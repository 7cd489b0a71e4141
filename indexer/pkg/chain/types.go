package chain

import (
	"github.com/shopspring/decimal"
)

// Era is a staking era index.
type Era uint32

// Perbill is a fraction expressed in parts per billion.
type Perbill uint32

const PerbillDenominator = 1_000_000_000

// Fraction returns p as a value in [0, 1].
func (p Perbill) Fraction() decimal.Decimal {
	return decimal.New(int64(p), -9)
}

// Percent returns p as a percentage, e.g. 100_000_000 -> 10.
func (p Perbill) Percent() decimal.Decimal {
	return decimal.New(int64(p), -7)
}

type IndividualExposure struct {
	Who   string          `json:"who"`
	Value decimal.Decimal `json:"value"`
}

// Exposure is the stake backing a validator in the active era.
type Exposure struct {
	Total  decimal.Decimal      `json:"total"`
	Own    decimal.Decimal      `json:"own"`
	Others []IndividualExposure `json:"others"`
}

type Identity struct {
	Display    string `json:"display,omitempty"`
	Legal      string `json:"legal,omitempty"`
	Web        string `json:"web,omitempty"`
	Email      string `json:"email,omitempty"`
	Twitter    string `json:"twitter,omitempty"`
	Riot       string `json:"riot,omitempty"`
	Judgements int    `json:"judgements,omitempty"`
}

type StakingLedger struct {
	Stash          string          `json:"stash"`
	Total          decimal.Decimal `json:"total"`
	Active         decimal.Decimal `json:"active"`
	ClaimedRewards []Era           `json:"claimedRewards"`
}

// Validator is one validator or waiting candidate as seen at the time of the snapshot.
type Validator struct {
	AccountID     string        `json:"accountId"`
	Active        bool          `json:"active"`
	Exposure      Exposure      `json:"exposure"`
	Commission    Perbill       `json:"commission"`
	Identity      Identity      `json:"identity"`
	Nominators    []string      `json:"nominators"`
	StakingLedger StakingLedger `json:"stakingLedger"`
}

type Nominator struct {
	AccountID string          `json:"accountId"`
	Bonded    decimal.Decimal `json:"bonded"`
	Targets   []string        `json:"targets"`
}

// StakerPoint is the reward points a validator earned in one era.
type StakerPoint struct {
	Era    Era    `json:"era"`
	Points uint32 `json:"points"`
}

// ValidatorWaitingInfo is the combined active and waiting validator set. Entries
// may be nil when the upstream could not resolve a validator.
type ValidatorWaitingInfo struct {
	Validators []*Validator `json:"validators"`
}
