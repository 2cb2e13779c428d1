/*
Package billing provides the core recurring-obligation engine.

PURPOSE:
  This package contains the domain types and algorithms for materializing
  payment obligations from contract definitions. Given a contract (term,
  base rate, tiered overrides, optional buffer period), the engine produces
  one obligation per billing month and keeps that set consistent as the
  contract changes, without ever touching months that already have payments.

KEY CONCEPTS IN THIS FILE (types.go):
  - Contract: The recurring obligation source (term, rate, buffer)
  - PriceTier: A contract-year range with an override monthly rate
  - Obligation: One month's payment record generated from a contract
  - PaymentRecord: A payment applied against an obligation
  - Category: The well-known expense category obligations are filed under

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal to avoid floating-point errors
  2. Type Safety: Strong typing for IDs prevents mixing contract/project IDs
  3. Paid history is frozen: PaidAmount > 0 makes an obligation immutable
     to regeneration
  4. Soft delete: read paths exclude deleted obligations by default

SEE ALSO:
  - materialize.go: Contract to obligation-schedule expansion
  - reconcile.go: Diffing the schedule against persisted obligations
  - tier.go: Tiered-rate selection
  - store.go: Persistence interfaces
*/
package billing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ContractID string
type ProjectID string
type ObligationID string
type PaymentID string
type CategoryID string

// =============================================================================
// CONTRACT - Source of recurring obligations
// =============================================================================

// Contract identifies a recurring obligation source such as a rental
// agreement. Name is unique within a project and is embedded in generated
// obligation names for display.
type Contract struct {
	ID        ContractID
	ProjectID ProjectID
	Name      string

	// Inclusive nominal term. EndDate must not precede StartDate.
	StartDate time.Time
	EndDate   time.Time

	// Rate used when no tier covers the contract year.
	BaseAmount decimal.Decimal

	// Buffer period. When BufferInTerm is false, billing starts BufferMonths
	// after StartDate. When true, the first BufferMonths billing slots are
	// skipped but still advance the billing-month counter used for tier-year
	// computation.
	HasBuffer    bool
	BufferMonths int
	BufferInTerm bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// PRICE TIER - Contract-year range with an override monthly rate
// =============================================================================

// PriceTier overrides the contract's base rate for a 1-based inclusive
// range of contract years. Ranges for a contract must not overlap; the
// resolver's tie-break when they do is first match in input order.
type PriceTier struct {
	ID            string
	ContractID    ContractID
	YearStart     int
	YearEnd       int
	MonthlyAmount decimal.Decimal
	CreatedAt     time.Time
}

// Covers reports whether the tier applies to the given contract year.
func (t PriceTier) Covers(contractYear int) bool {
	return contractYear >= t.YearStart && contractYear <= t.YearEnd
}

// =============================================================================
// OBLIGATION - One month's payment record
// =============================================================================

type ObligationStatus string

const (
	StatusPending ObligationStatus = "pending"
	StatusPaid    ObligationStatus = "paid"
)

// Obligation is a single month's payment record. Generated obligations carry
// the owning ContractID; MonthKey is the identity used by reconciliation.
// ItemName keeps the "YYYY-MM-<contract name>" convention for display.
type Obligation struct {
	ID         ObligationID
	ContractID ContractID // empty for one-off items not owned by a contract
	CategoryID CategoryID
	ProjectID  ProjectID

	MonthKey string // "YYYY-MM", empty for non-generated items
	ItemName string

	TotalAmount decimal.Decimal
	DueDate     time.Time // last calendar day of the billing month
	PaidAmount  decimal.Decimal
	Status      ObligationStatus
	Notes       string
	Deleted     bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsPaid reports whether any payment has been recorded. A paid obligation is
// frozen: reconciliation never patches it and regeneration never removes it.
func (o Obligation) IsPaid() bool {
	return o.PaidAmount.IsPositive()
}

// ItemNameFor builds the canonical display name for a generated obligation.
func ItemNameFor(monthKey, contractName string) string {
	return fmt.Sprintf("%s-%s", monthKey, contractName)
}

// =============================================================================
// PAYMENT RECORD - Payment applied against an obligation
// =============================================================================

type PaymentRecord struct {
	ID           PaymentID
	ObligationID ObligationID
	Amount       decimal.Decimal
	PaidAt       time.Time
	Method       string
	CreatedAt    time.Time
}

// =============================================================================
// CATEGORY - Well-known expense category
// =============================================================================

type CategoryKind string

const (
	CategoryExpense CategoryKind = "expense"
	CategoryIncome  CategoryKind = "income"
)

// Category is the fixed recurring category generated obligations are filed
// under. The rent category must exist before generation runs; its absence is
// a fatal precondition failure.
type Category struct {
	ID   CategoryID
	Name string
	Kind CategoryKind
}

// RentCategoryName is the well-known category generated rental obligations
// belong to.
const RentCategoryName = "rent"
