package reconcile

import (
	"errors"
	"fmt"

	"github.com/stakewatch/lake/indexer/pkg/chain"
)

// ErrCycleInProgress is returned by RunOnce when another cycle holds the guard.
var ErrCycleInProgress = errors.New("reconcile: cycle already in progress")

// DerivationError reports chain data that is well formed but cannot be
// reconciled, such as a validator claiming rewards for a future era.
type DerivationError struct {
	AccountID string
	Era       chain.Era
	Reason    string
}

func (e *DerivationError) Error() string {
	if e.AccountID != "" {
		return fmt.Sprintf("reconcile: cannot derive era %d for %s: %s", e.Era, e.AccountID, e.Reason)
	}
	return fmt.Sprintf("reconcile: cannot derive era %d: %s", e.Era, e.Reason)
}
