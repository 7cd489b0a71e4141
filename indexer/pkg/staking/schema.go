package staking

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stakewatch/lake/indexer/pkg/chain"
)

const (
	activeErasTable     = "staking_active_eras"
	validatorErasTable  = "staking_validator_eras"
	unclaimedErasTable  = "staking_validator_unclaimed_eras"
	validatorEraColumns = "era, exposure, commission_perbill, apy, identity, nominators, commission_changed"
)

// Tables lists every table owned by this package.
var Tables = []string{activeErasTable, validatorErasTable, unclaimedErasTable}

type validatorEraRow struct {
	Era               uint32
	Exposure          string
	CommissionPerbill uint32
	APY               string
	Identity          string
	Nominators        []string
	CommissionChanged uint8
}

func (r *validatorEraRow) scanDest() []any {
	return []any{&r.Era, &r.Exposure, &r.CommissionPerbill, &r.APY, &r.Identity, &r.Nominators, &r.CommissionChanged}
}

func validatorEraToRow(accountID string, rec ValidatorEraRecord, updatedAt time.Time) ([]any, error) {
	exposure, err := json.Marshal(rec.Exposure)
	if err != nil {
		return nil, fmt.Errorf("failed to encode exposure: %w", err)
	}
	identity, err := json.Marshal(rec.Identity)
	if err != nil {
		return nil, fmt.Errorf("failed to encode identity: %w", err)
	}
	nominators := rec.Nominators
	if nominators == nil {
		nominators = []string{}
	}
	return []any{
		accountID,
		uint32(rec.Era),
		string(exposure),
		uint32(rec.Commission),
		rec.APY.String(),
		string(identity),
		nominators,
		uint8(rec.CommissionChanged),
		updatedAt,
	}, nil
}

func (r *validatorEraRow) toRecord() (*ValidatorEraRecord, error) {
	rec := &ValidatorEraRecord{
		Era:               chain.Era(r.Era),
		Commission:        chain.Perbill(r.CommissionPerbill),
		Nominators:        r.Nominators,
		CommissionChanged: CommissionChange(r.CommissionChanged),
	}
	if err := json.Unmarshal([]byte(r.Exposure), &rec.Exposure); err != nil {
		return nil, fmt.Errorf("failed to decode exposure: %w", err)
	}
	if err := json.Unmarshal([]byte(r.Identity), &rec.Identity); err != nil {
		return nil, fmt.Errorf("failed to decode identity: %w", err)
	}
	apy, err := decimal.NewFromString(r.APY)
	if err != nil {
		return nil, fmt.Errorf("failed to decode apy: %w", err)
	}
	rec.APY = apy
	return rec, nil
}
