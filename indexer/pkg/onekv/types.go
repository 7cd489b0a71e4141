package onekv

import (
	"github.com/shopspring/decimal"

	"github.com/stakewatch/lake/indexer/pkg/chain"
)

// Candidate is a validator enrolled in the Thousand Validators programme as
// reported by the 1KV backend.
type Candidate struct {
	Name        string `json:"name"`
	Stash       string `json:"stash"`
	Rank        int    `json:"rank"`
	Faults      int    `json:"faults"`
	Valid       bool   `json:"valid"`
	NominatedAt int64  `json:"nominatedAt"`
}

type NominatedTarget struct {
	Stash string `json:"stash"`
	Name  string `json:"name"`
}

// ProgramNominator is one of the programme's own nominator accounts.
type ProgramNominator struct {
	Address        string            `json:"address"`
	Bonded         decimal.Decimal   `json:"bonded"`
	Current        []NominatedTarget `json:"current"`
	LastNomination int64             `json:"lastNomination"`
}

type ValidatorSummary struct {
	AccountID   string          `json:"accountId"`
	Name        string          `json:"name"`
	Rank        int             `json:"rank"`
	Faults      int             `json:"faults"`
	Commission  chain.Perbill   `json:"commission"`
	Elected     bool            `json:"elected"`
	SelfStake   decimal.Decimal `json:"selfStake"`
	TotalStake  decimal.Decimal `json:"totalStake"`
	NominatedAt int64           `json:"nominatedAt"`
}

// Summary describes the programme candidates that are valid and present in the
// current validator set.
type Summary struct {
	ActiveEra      chain.Era          `json:"activeEra"`
	ValidatorCount int                `json:"validatorCount"`
	ElectedCount   int                `json:"electedCount"`
	ElectionRate   decimal.Decimal    `json:"electionRate"`
	Valid          []ValidatorSummary `json:"valid"`
}

type NominatorSummary struct {
	ActiveEra  chain.Era          `json:"activeEra"`
	Nominators []ProgramNominator `json:"nominators"`
}
