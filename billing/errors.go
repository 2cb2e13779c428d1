/*
errors.go - Centralized error types for the billing engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers (rental service, HTTP layer) classify errors with the helpers
  below instead of matching strings.

ERROR CATEGORIES:
  1. Precondition failures - missing contract/project/category
  2. Validation errors - invalid term, negative buffer, overlapping tiers
  3. Conflict errors - concurrent regeneration racing on the same month

USAGE:
    if errors.Is(err, billing.ErrDuplicateMonth) {
        // retryable conflict, another regeneration won the race
    }

SEE ALSO:
  - validate.go: Produces validation errors
  - store.go: Store implementations map constraint violations to these
*/
package billing

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrContractNotFound is returned when a referenced contract doesn't exist.
	ErrContractNotFound = errors.New("contract not found")

	// ErrObligationNotFound is returned when a referenced obligation doesn't exist.
	ErrObligationNotFound = errors.New("obligation not found")

	// ErrCategoryNotFound is returned when the well-known rent category is
	// missing. Generation must not proceed without it.
	ErrCategoryNotFound = errors.New("category not found")

	// ErrInvalidTerm is returned when a contract term is malformed
	// (end before start, negative buffer). Materialization against such
	// input is never attempted.
	ErrInvalidTerm = errors.New("invalid term: end before start")

	// ErrTierOverlap is returned when tier year ranges overlap.
	ErrTierOverlap = errors.New("tier year ranges overlap")

	// ErrDuplicateMonth is returned when an insert collides with an existing
	// (project, contract, month) obligation. This is how a concurrent
	// regeneration race surfaces: retryable, not corruption.
	ErrDuplicateMonth = errors.New("obligation already exists for month")

	// ErrObligationPaid is returned when an operation would mutate or split
	// an obligation that already has payments recorded.
	ErrObligationPaid = errors.New("obligation has recorded payments")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// TermError details why a contract term was rejected.
type TermError struct {
	ContractID ContractID
	StartDate  time.Time
	EndDate    time.Time
	Reason     string
}

func (e *TermError) Error() string {
	return fmt.Sprintf("invalid term for contract %s: %s (start %s, end %s)",
		e.ContractID, e.Reason,
		e.StartDate.Format("2006-01-02"), e.EndDate.Format("2006-01-02"))
}

func (e *TermError) Unwrap() error { return ErrInvalidTerm }

// TierOverlapError details which tiers collide.
type TierOverlapError struct {
	ContractID ContractID
	First      PriceTier
	Second     PriceTier
}

func (e *TierOverlapError) Error() string {
	return fmt.Sprintf("tiers overlap for contract %s: years [%d,%d] and [%d,%d]",
		e.ContractID, e.First.YearStart, e.First.YearEnd,
		e.Second.YearStart, e.Second.YearEnd)
}

func (e *TierOverlapError) Unwrap() error { return ErrTierOverlap }

// DuplicateMonthError identifies the colliding month.
type DuplicateMonthError struct {
	ContractID ContractID
	MonthKey   string
}

func (e *DuplicateMonthError) Error() string {
	return fmt.Sprintf("obligation already exists for contract %s month %s",
		e.ContractID, e.MonthKey)
}

func (e *DuplicateMonthError) Unwrap() error { return ErrDuplicateMonth }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrDuplicateMonth)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidTerm) ||
		errors.Is(err, ErrTierOverlap) ||
		errors.Is(err, ErrObligationPaid)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrContractNotFound) ||
		errors.Is(err, ErrObligationNotFound) ||
		errors.Is(err, ErrCategoryNotFound)
}
