/*
reconcile.go - Minimal diff between a schedule and persisted obligations

PURPOSE:
  Compares the freshly materialized schedule for a contract against the
  obligations already persisted for it and computes the minimal mutation set:
  - months with no obligation: create
  - unpaid months whose resolved rate changed: patch amount only
  - paid months and unchanged months: leave alone
  The engine never deletes; purging unpaid obligations on regeneration
  triggers is the mutation coordinator's job.

MUTATION SEMANTICS:
  A patch touches TotalAmount, Notes (an "(updated)" marker is appended
  once) and UpdatedAt. PaidAmount, Status and everything else survive.
  GeneratedCount counts created obligations only; callers report it and
  must be able to distinguish "3 new months" from "3 repriced months".

SEE ALSO:
  - materialize.go: Produces the schedule consumed here
  - rental/service.go: Persists Created/Patched inside one transaction
*/
package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// UpdatedMarker is appended to the notes of a repriced obligation.
const UpdatedMarker = "(updated)"

// ReconcileInput bundles everything the diff needs. Existing must hold ALL
// of the contract's persisted obligations, soft-deleted rows included: a
// soft-deleted month was retired on purpose (split into installments,
// removed by hand) and must not be recreated.
type ReconcileInput struct {
	Contract Contract
	Category CategoryID
	Schedule []ScheduledCharge
	Existing []Obligation
	Now      time.Time
}

// ReconcileResult is the minimal mutation set for one reconciliation pass.
type ReconcileResult struct {
	Created []Obligation
	Patched []Obligation

	// GeneratedCount is the number of newly created obligations. Patched
	// obligations are deliberately not counted.
	GeneratedCount int
}

// Reconcile computes the minimal insert/patch set. It performs no I/O;
// persistence of Created (bulk insert) and Patched (per-row update) happens
// in the caller's transaction.
func Reconcile(in ReconcileInput) ReconcileResult {
	existing := make(map[string]Obligation, len(in.Existing))
	for _, o := range in.Existing {
		if o.MonthKey == "" {
			continue
		}
		// First obligation wins per month; duplicates cannot arise once the
		// unique month index is in place.
		if _, ok := existing[o.MonthKey]; !ok {
			existing[o.MonthKey] = o
		}
	}

	var result ReconcileResult
	for _, charge := range in.Schedule {
		current, ok := existing[charge.MonthKey]
		if !ok {
			result.Created = append(result.Created, newObligation(in, charge))
			continue
		}

		if current.Deleted {
			// The month was retired deliberately; only a hard purge frees it.
			continue
		}
		if current.IsPaid() {
			// Payments freeze the month, even against rate changes.
			continue
		}
		if current.TotalAmount.Equal(charge.Amount) {
			continue
		}

		current.TotalAmount = charge.Amount
		if !strings.Contains(current.Notes, UpdatedMarker) {
			current.Notes = strings.TrimSpace(current.Notes + " " + UpdatedMarker)
		}
		current.UpdatedAt = in.Now
		result.Patched = append(result.Patched, current)
	}

	result.GeneratedCount = len(result.Created)
	return result
}

func newObligation(in ReconcileInput, charge ScheduledCharge) Obligation {
	return Obligation{
		ID:          ObligationID(uuid.NewString()),
		ContractID:  in.Contract.ID,
		CategoryID:  in.Category,
		ProjectID:   in.Contract.ProjectID,
		MonthKey:    charge.MonthKey,
		ItemName:    ItemNameFor(charge.MonthKey, in.Contract.Name),
		TotalAmount: charge.Amount,
		DueDate:     charge.DueDate,
		Status:      StatusPending,
		Notes:       fmt.Sprintf("rental payment, contract year %d", charge.ContractYear),
		CreatedAt:   in.Now,
		UpdatedAt:   in.Now,
	}
}
