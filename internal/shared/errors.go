package shared

import (
	"fmt"
	"time"
)

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Precondition errors
	ErrValidation     = fmt.Errorf("validation failed")
	ErrEntityBusy     = fmt.Errorf("entity has a command in flight")
	ErrEmptyClipboard = fmt.Errorf("clipboard is empty")

	// Remote call errors
	ErrRemote        = fmt.Errorf("remote call failed")
	ErrAuth          = fmt.Errorf("authentication failed")
	ErrNotFound      = fmt.Errorf("entity not found")
	ErrTransient     = fmt.Errorf("transient network failure")
	ErrQuotaExceeded = fmt.Errorf("daily quota exceeded")

	// History errors
	ErrNothingToUndo = fmt.Errorf("nothing to undo")
	ErrNothingToRedo = fmt.Errorf("nothing to redo")

	// Cache errors
	ErrCacheMiss       = fmt.Errorf("cache miss")
	ErrCacheCorruption = fmt.Errorf("cache schema mismatch")
)

// QuotaError is a pre-flight quota rejection. No remote call has been made
// when it is returned.
type QuotaError struct {
	Requested int
	Used      int
	Budget    int
	ResetAt   time.Time
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf(
		"%v: need %d units, used %d of %d (resets %s)",
		ErrQuotaExceeded, e.Requested, e.Used, e.Budget,
		e.ResetAt.UTC().Format(time.RFC3339),
	)
}

func (e *QuotaError) Unwrap() error { return ErrQuotaExceeded }

// PartialApplyError reports a compound command that left remote state
// inconsistent after its compensating retry failed. The entity IDs it names
// are flagged for verification rather than assumed correct.
type PartialApplyError struct {
	CommandID string
	Completed int // Sub-calls that succeeded
	Total     int // Sub-calls attempted
	Entities  []string
	Err       error
}

func (e *PartialApplyError) Error() string {
	return fmt.Sprintf(
		"command %s partially applied (%d/%d sub-calls): %v",
		e.CommandID, e.Completed, e.Total, e.Err,
	)
}

func (e *PartialApplyError) Unwrap() error { return e.Err }
