package exception

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrDuplicateOrder        = errors.New("order: duplicate client order id")
	ErrUnknownOrderReference = errors.New("order: unknown order reference")
	ErrOrderTerminal         = errors.New("order: already terminal")
	ErrOrderHalted           = errors.New("order: halted after inconsistency")
	ErrStaleUpdate           = errors.New("order: stale or duplicate update")
	ErrOrderQueueFull        = errors.New("order: queue full")
	ErrOrderQueueClosed      = errors.New("order: queue closed")
	ErrOrderNilDelegator     = errors.New("order: nil delegator")
	ErrOrderDecodeResponse   = errors.New("order: decode response body")
	ErrOrderEmptyResponseID  = errors.New("order: empty response order id")
)

// InvalidOrderError is returned synchronously when an order request violates
// submission constraints.
type InvalidOrderError struct {
	Field  string
	Reason string
}

func (e *InvalidOrderError) Error() string {
	return fmt.Sprintf("order: invalid %s: %s", e.Field, e.Reason)
}

// SubmissionTimeoutError is returned when the broker did not answer an
// outbound request within the configured deadline.
type SubmissionTimeoutError struct {
	ClientOrderID string
	Timeout       time.Duration
}

func (e *SubmissionTimeoutError) Error() string {
	return fmt.Sprintf("order: submission %s timed out after %s", e.ClientOrderID, e.Timeout)
}

// LedgerInconsistencyError marks an invariant violation on one order. That
// order stops processing; the rest of the ledger is unaffected.
type LedgerInconsistencyError struct {
	ClientOrderID string
	Detail        string
}

func (e *LedgerInconsistencyError) Error() string {
	return fmt.Sprintf("ledger inconsistency on order %s: %s", e.ClientOrderID, e.Detail)
}

// RiskDeniedError is returned synchronously when a pre-trade guard refuses
// an order.
type RiskDeniedError struct {
	ClientOrderID string
	Reason        string
}

func (e *RiskDeniedError) Error() string {
	return fmt.Sprintf("order: %s denied by risk: %s", e.ClientOrderID, e.Reason)
}
