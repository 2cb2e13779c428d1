/*
store.go - Persistence interfaces for contracts, tiers and obligations

PURPOSE:
  Defines the interface between the engine and the database. Implementations
  exist for SQLite (store/sqlite) and in-memory (billing/store) storage.

SOFT DELETE:
  ObligationsByContract and ObligationsByProject exclude soft-deleted rows.
  That filtering is the query's default behavior, not a per-call flag, so a
  read path cannot accidentally resurrect deleted months.

UNIQUENESS:
  Implementations enforce a unique (project, contract, month key) constraint
  on live generated obligations. A racing duplicate insert surfaces as
  ErrDuplicateMonth rather than silent duplication.

TRANSACTIONS:
  TxStore.WithTx runs fn against a transactional view; an error rolls the
  whole sequence back. The mutation coordinator wraps contract update, tier
  replacement, unpaid purge and regeneration in one WithTx call.

SEE ALSO:
  - store/sqlite/sqlite.go: Production implementation
  - billing/store/memory.go: In-memory implementation for testing
*/
package billing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Store handles persistence for the billing engine.
type Store interface {
	// Contracts
	GetContract(ctx context.Context, id ContractID) (*Contract, error)
	SaveContract(ctx context.Context, c Contract) error
	DeleteContract(ctx context.Context, id ContractID) error
	ListContracts(ctx context.Context, projectID ProjectID) ([]Contract, error)

	// Price tiers, ordered by ascending year start.
	TiersByContract(ctx context.Context, id ContractID) ([]PriceTier, error)
	ReplaceTiers(ctx context.Context, id ContractID, tiers []PriceTier) error
	DeleteTiers(ctx context.Context, id ContractID) error

	// Obligations. Both listings exclude soft-deleted rows.
	GetObligation(ctx context.Context, id ObligationID) (*Obligation, error)
	ObligationsByContract(ctx context.Context, projectID ProjectID, contractID ContractID) ([]Obligation, error)
	ObligationsByProject(ctx context.Context, projectID ProjectID) ([]Obligation, error)

	// AllObligationsByContract includes soft-deleted rows. Reconciliation
	// reads through it so a month whose obligation was soft-deleted (split
	// into installments, removed by hand) counts as occupied and is not
	// recreated on the next generate.
	AllObligationsByContract(ctx context.Context, projectID ProjectID, contractID ContractID) ([]Obligation, error)
	InsertObligations(ctx context.Context, obs []Obligation) error
	UpdateObligationAmount(ctx context.Context, id ObligationID, amount decimal.Decimal, notes string, at time.Time) error
	UpdateObligationPayment(ctx context.Context, id ObligationID, paid decimal.Decimal, status ObligationStatus, at time.Time) error
	SoftDeleteObligation(ctx context.Context, id ObligationID, at time.Time) error

	// UnpaidObligationIDs returns the IDs of the contract's generated
	// obligations with zero paid amount, soft-deleted rows included, so a
	// purge can cascade over everything the contract still owns. Paid
	// months are never returned.
	UnpaidObligationIDs(ctx context.Context, projectID ProjectID, contractID ContractID) ([]ObligationID, error)

	// DeleteObligations hard-deletes obligations by ID. Callers delete
	// dependent payment records first.
	DeleteObligations(ctx context.Context, ids []ObligationID) error

	// Payment records
	InsertPayment(ctx context.Context, p PaymentRecord) error
	PaymentsByObligation(ctx context.Context, id ObligationID) ([]PaymentRecord, error)
	DeletePaymentsForObligations(ctx context.Context, ids []ObligationID) error

	// Categories
	GetCategory(ctx context.Context, name string, kind CategoryKind) (*Category, error)
	SaveCategory(ctx context.Context, c Category) error
}

// TxStore wraps Store with transaction support. If fn returns an error the
// transaction is rolled back, otherwise committed.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(Store) error) error
}
