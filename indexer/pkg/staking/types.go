package staking

import (
	"github.com/shopspring/decimal"

	"github.com/stakewatch/lake/indexer/pkg/chain"
)

// CommissionChange is the direction of a validator's commission relative to the
// previous era. The numeric values are persisted.
type CommissionChange uint8

const (
	CommissionUnchanged CommissionChange = 0
	CommissionIncreased CommissionChange = 1
	CommissionDecreased CommissionChange = 2
)

func (c CommissionChange) String() string {
	switch c {
	case CommissionUnchanged:
		return "unchanged"
	case CommissionIncreased:
		return "increased"
	case CommissionDecreased:
		return "decreased"
	}
	return "unknown"
}

// NoHistoryCommission is the prior commission assumed for a validator with no
// record in the previous era.
const NoHistoryCommission chain.Perbill = 0

// ValidatorEraRecord is the derived state of one validator in one era, keyed by
// (account id, era).
type ValidatorEraRecord struct {
	Era               chain.Era        `json:"era"`
	Exposure          chain.Exposure   `json:"exposure"`
	Commission        chain.Perbill    `json:"commission"`
	APY               decimal.Decimal  `json:"apy"`
	Identity          chain.Identity   `json:"identity"`
	Nominators        []string         `json:"nominators"`
	CommissionChanged CommissionChange `json:"commissionChanged"`
}
