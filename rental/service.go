/*
Package rental coordinates contract mutations against the billing engine.

PURPOSE:
  The billing package computes schedules and diffs; this package decides
  WHEN to run them and keeps the persisted state consistent while contracts
  change. It owns the three disciplines the engine itself cannot provide:

  1. Serialization: concurrent regenerations of the same contract are
     serialized on a per-contract mutex, and the store's unique month index
     turns any remaining race into a retryable ErrDuplicateMonth.
  2. Atomicity: contract update, tier replacement, unpaid purge and
     regeneration run inside a single store transaction. A failure anywhere
     rolls the whole sequence back.
  3. Minimal mutation: regeneration never touches paid months. Purges
     collect unpaid obligations only, delete their payment records first,
     then the obligations (children before parents).

REGENERATION TRIGGERS (on update):
  - contract renamed
  - start date moved
  - tiers replaced
  Anything else (end date, base amount, buffer flags) changes the contract
  row but leaves persisted obligations alone until the next explicit
  generate call.

SEE ALSO:
  - billing/materialize.go, billing/reconcile.go: The engine invoked here
  - installment.go: Lump-sum splitting, same store discipline
*/
package rental

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/billing-engine/billing"
)

// Service is the contract mutation coordinator.
type Service struct {
	store billing.TxStore
	locks sync.Map // billing.ContractID -> *sync.Mutex

	// now is swappable for tests.
	now func() time.Time
}

func NewService(store billing.TxStore) *Service {
	return &Service{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// lockContract serializes regeneration per contract. Returns the unlock.
func (s *Service) lockContract(id billing.ContractID) func() {
	v, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// =============================================================================
// INPUT TYPES
// =============================================================================

// ContractInput defines a new contract.
type ContractInput struct {
	ProjectID    billing.ProjectID
	Name         string
	StartDate    time.Time
	EndDate      time.Time
	BaseAmount   decimal.Decimal
	HasBuffer    bool
	BufferMonths int
	BufferInTerm bool
}

// ContractChanges carries a partial update; nil fields are left untouched.
type ContractChanges struct {
	Name         *string
	StartDate    *time.Time
	EndDate      *time.Time
	BaseAmount   *decimal.Decimal
	HasBuffer    *bool
	BufferMonths *int
	BufferInTerm *bool
}

// TierInput defines one price tier of a contract.
type TierInput struct {
	YearStart     int
	YearEnd       int
	MonthlyAmount decimal.Decimal
}

func (s *Service) buildTiers(contractID billing.ContractID, inputs []TierInput, at time.Time) ([]billing.PriceTier, error) {
	tiers := make([]billing.PriceTier, len(inputs))
	for i, in := range inputs {
		tiers[i] = billing.PriceTier{
			ID:            uuid.NewString(),
			ContractID:    contractID,
			YearStart:     in.YearStart,
			YearEnd:       in.YearEnd,
			MonthlyAmount: in.MonthlyAmount,
			CreatedAt:     at,
		}
	}
	if err := billing.ValidateTiers(contractID, tiers); err != nil {
		return nil, err
	}
	return tiers, nil
}

// =============================================================================
// CONTRACT LIFECYCLE
// =============================================================================

// CreateContract persists a contract and its tiers. Obligations are not
// generated here; callers invoke GeneratePayments explicitly.
func (s *Service) CreateContract(ctx context.Context, in ContractInput, tiers []TierInput) (*billing.Contract, error) {
	now := s.now()
	contract := billing.Contract{
		ID:           billing.ContractID(uuid.NewString()),
		ProjectID:    in.ProjectID,
		Name:         in.Name,
		StartDate:    in.StartDate,
		EndDate:      in.EndDate,
		BaseAmount:   in.BaseAmount,
		HasBuffer:    in.HasBuffer,
		BufferMonths: in.BufferMonths,
		BufferInTerm: in.BufferInTerm,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := billing.ValidateContract(contract); err != nil {
		return nil, err
	}
	built, err := s.buildTiers(contract.ID, tiers, now)
	if err != nil {
		return nil, err
	}

	err = s.store.WithTx(ctx, func(tx billing.Store) error {
		if err := tx.SaveContract(ctx, contract); err != nil {
			return err
		}
		if len(built) > 0 {
			return tx.ReplaceTiers(ctx, contract.ID, built)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &contract, nil
}

// GeneratePayments materializes the contract's schedule and reconciles it
// against the persisted obligations. Returns the number of newly created
// obligations; repriced months are not counted.
func (s *Service) GeneratePayments(ctx context.Context, id billing.ContractID) (int, error) {
	unlock := s.lockContract(id)
	defer unlock()

	var generated int
	err := s.store.WithTx(ctx, func(tx billing.Store) error {
		contract, err := tx.GetContract(ctx, id)
		if err != nil {
			return err
		}
		if contract == nil {
			return billing.ErrContractNotFound
		}
		tiers, err := tx.TiersByContract(ctx, id)
		if err != nil {
			return err
		}
		result, err := s.regenerate(ctx, tx, *contract, tiers)
		if err != nil {
			return err
		}
		generated = result.GeneratedCount
		return nil
	})
	return generated, err
}

// UpdateContract applies a partial update and, when a regeneration trigger
// fires, purges the contract's unpaid obligations and regenerates from the
// updated definition. The whole sequence is one transaction.
func (s *Service) UpdateContract(ctx context.Context, id billing.ContractID, changes ContractChanges, newTiers []TierInput) (*billing.Contract, error) {
	unlock := s.lockContract(id)
	defer unlock()

	now := s.now()
	var updated billing.Contract

	err := s.store.WithTx(ctx, func(tx billing.Store) error {
		prior, err := tx.GetContract(ctx, id)
		if err != nil {
			return err
		}
		if prior == nil {
			return billing.ErrContractNotFound
		}

		updated = applyChanges(*prior, changes, now)
		if err := billing.ValidateContract(updated); err != nil {
			return err
		}

		needRegenerate := (changes.Name != nil && *changes.Name != prior.Name) ||
			(changes.StartDate != nil && !changes.StartDate.Equal(prior.StartDate))

		if err := tx.SaveContract(ctx, updated); err != nil {
			return err
		}

		if len(newTiers) > 0 {
			built, err := s.buildTiers(id, newTiers, now)
			if err != nil {
				return err
			}
			if err := tx.ReplaceTiers(ctx, id, built); err != nil {
				return err
			}
			needRegenerate = true
		}

		if !needRegenerate {
			return nil
		}

		// Purge under the PRIOR identity: obligations still reference the
		// contract ID, so a rename does not orphan them, but reading them
		// before the purge keeps the intent explicit.
		if err := s.purgeUnpaid(ctx, tx, prior.ProjectID, id); err != nil {
			return err
		}

		tiers, err := tx.TiersByContract(ctx, id)
		if err != nil {
			return err
		}
		_, err = s.regenerate(ctx, tx, updated, tiers)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteContract removes a contract and everything it still owns, children
// first: payment records of unpaid obligations, the unpaid obligations,
// the tiers, then the contract row. Paid obligations survive, detached
// from generation.
func (s *Service) DeleteContract(ctx context.Context, id billing.ContractID) error {
	unlock := s.lockContract(id)
	defer unlock()

	return s.store.WithTx(ctx, func(tx billing.Store) error {
		contract, err := tx.GetContract(ctx, id)
		if err != nil {
			return err
		}
		if contract == nil {
			return billing.ErrContractNotFound
		}
		if err := s.purgeUnpaid(ctx, tx, contract.ProjectID, id); err != nil {
			return err
		}
		if err := tx.DeleteTiers(ctx, id); err != nil {
			return err
		}
		return tx.DeleteContract(ctx, id)
	})
}

// GetContract loads a contract with its tiers.
func (s *Service) GetContract(ctx context.Context, id billing.ContractID) (*billing.Contract, []billing.PriceTier, error) {
	contract, err := s.store.GetContract(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if contract == nil {
		return nil, nil, billing.ErrContractNotFound
	}
	tiers, err := s.store.TiersByContract(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return contract, tiers, nil
}

// ListContracts returns a project's contracts ordered by name.
func (s *Service) ListContracts(ctx context.Context, projectID billing.ProjectID) ([]billing.Contract, error) {
	return s.store.ListContracts(ctx, projectID)
}

// Obligations lists the contract's live obligations.
func (s *Service) Obligations(ctx context.Context, id billing.ContractID) ([]billing.Obligation, error) {
	contract, err := s.store.GetContract(ctx, id)
	if err != nil {
		return nil, err
	}
	if contract == nil {
		return nil, billing.ErrContractNotFound
	}
	return s.store.ObligationsByContract(ctx, contract.ProjectID, id)
}

// =============================================================================
// PAYMENTS
// =============================================================================

// RecordPayment applies a payment against an obligation. Once an obligation
// carries a non-zero paid amount it is frozen against regeneration.
func (s *Service) RecordPayment(ctx context.Context, id billing.ObligationID, amount decimal.Decimal, paidAt time.Time, method string) (*billing.Obligation, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("payment amount must be positive, got %s", amount)
	}

	var updated *billing.Obligation
	err := s.store.WithTx(ctx, func(tx billing.Store) error {
		o, err := tx.GetObligation(ctx, id)
		if err != nil {
			return err
		}
		if o == nil || o.Deleted {
			return billing.ErrObligationNotFound
		}

		now := s.now()
		if err := tx.InsertPayment(ctx, billing.PaymentRecord{
			ID:           billing.PaymentID(uuid.NewString()),
			ObligationID: id,
			Amount:       amount,
			PaidAt:       paidAt,
			Method:       method,
			CreatedAt:    now,
		}); err != nil {
			return err
		}

		paid := o.PaidAmount.Add(amount)
		status := billing.StatusPending
		if paid.GreaterThanOrEqual(o.TotalAmount) {
			status = billing.StatusPaid
		}
		if err := tx.UpdateObligationPayment(ctx, id, paid, status, now); err != nil {
			return err
		}

		o.PaidAmount = paid
		o.Status = status
		o.UpdatedAt = now
		updated = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// =============================================================================
// INTERNALS
// =============================================================================

// regenerate runs materialize + reconcile for a contract and persists the
// result through the supplied (transactional) store.
func (s *Service) regenerate(ctx context.Context, tx billing.Store, c billing.Contract, tiers []billing.PriceTier) (billing.ReconcileResult, error) {
	var zero billing.ReconcileResult

	category, err := tx.GetCategory(ctx, billing.RentCategoryName, billing.CategoryExpense)
	if err != nil {
		return zero, err
	}
	if category == nil {
		return zero, billing.ErrCategoryNotFound
	}

	schedule, err := billing.Materialize(c, tiers)
	if err != nil {
		return zero, err
	}
	existing, err := tx.AllObligationsByContract(ctx, c.ProjectID, c.ID)
	if err != nil {
		return zero, err
	}

	result := billing.Reconcile(billing.ReconcileInput{
		Contract: c,
		Category: category.ID,
		Schedule: schedule,
		Existing: existing,
		Now:      s.now(),
	})

	if len(result.Created) > 0 {
		if err := tx.InsertObligations(ctx, result.Created); err != nil {
			return zero, err
		}
	}
	for _, o := range result.Patched {
		if err := tx.UpdateObligationAmount(ctx, o.ID, o.TotalAmount, o.Notes, o.UpdatedAt); err != nil {
			return zero, err
		}
	}
	return result, nil
}

// purgeUnpaid hard-deletes the contract's unpaid obligations and their
// payment records, children first.
func (s *Service) purgeUnpaid(ctx context.Context, tx billing.Store, projectID billing.ProjectID, contractID billing.ContractID) error {
	ids, err := tx.UnpaidObligationIDs(ctx, projectID, contractID)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	if err := tx.DeletePaymentsForObligations(ctx, ids); err != nil {
		return err
	}
	return tx.DeleteObligations(ctx, ids)
}

func applyChanges(c billing.Contract, changes ContractChanges, now time.Time) billing.Contract {
	if changes.Name != nil {
		c.Name = *changes.Name
	}
	if changes.StartDate != nil {
		c.StartDate = *changes.StartDate
	}
	if changes.EndDate != nil {
		c.EndDate = *changes.EndDate
	}
	if changes.BaseAmount != nil {
		c.BaseAmount = *changes.BaseAmount
	}
	if changes.HasBuffer != nil {
		c.HasBuffer = *changes.HasBuffer
	}
	if changes.BufferMonths != nil {
		c.BufferMonths = *changes.BufferMonths
	}
	if changes.BufferInTerm != nil {
		c.BufferInTerm = *changes.BufferInTerm
	}
	c.UpdatedAt = now
	return c
}
