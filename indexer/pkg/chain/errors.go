package chain

import (
	"fmt"

	"github.com/stakewatch/lake/utils/pkg/retry"
)

// TransportError is a failure to reach the upstream or a non-success response from it.
type TransportError struct {
	Method     string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("chain: %s: upstream returned status %d: %v", e.Method, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("chain: %s: %v", e.Method, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Retryable reports whether the request may succeed if repeated. Connection-level
// failures have no status code and are always retryable.
func (e *TransportError) Retryable() bool {
	if e.StatusCode == 0 {
		return true
	}
	return retry.RetryableStatus(e.StatusCode)
}

// DataShapeError is a response that arrived but is missing a field or is malformed.
type DataShapeError struct {
	Method string
	Field  string
	Err    error
}

func (e *DataShapeError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("chain: %s: invalid %s: %v", e.Method, e.Field, e.Err)
	}
	return fmt.Sprintf("chain: %s: %v", e.Method, e.Err)
}

func (e *DataShapeError) Unwrap() error { return e.Err }

func (e *DataShapeError) Retryable() bool { return false }
