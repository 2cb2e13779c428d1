package rental

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/billing-engine/billing"
)

// =============================================================================
// INSTALLMENT GENERATOR - Split a lump sum into monthly obligations
// =============================================================================

// InstallmentPlan describes how to split an obligation. When Amounts is
// empty the total is split evenly with the rounding remainder on the first
// installment; otherwise Amounts must have Count entries summing to the
// original total.
type InstallmentPlan struct {
	Count   int
	Amounts []decimal.Decimal
}

// SplitIntoInstallments replaces a single obligation with Count monthly
// obligations starting at the original due month. The original is
// soft-deleted. Obligations with recorded payments cannot be split.
func (s *Service) SplitIntoInstallments(ctx context.Context, id billing.ObligationID, plan InstallmentPlan) ([]billing.Obligation, error) {
	if plan.Count < 2 {
		return nil, fmt.Errorf("installment count must be at least 2, got %d", plan.Count)
	}
	if len(plan.Amounts) > 0 && len(plan.Amounts) != plan.Count {
		return nil, fmt.Errorf("expected %d installment amounts, got %d", plan.Count, len(plan.Amounts))
	}

	var created []billing.Obligation
	err := s.store.WithTx(ctx, func(tx billing.Store) error {
		original, err := tx.GetObligation(ctx, id)
		if err != nil {
			return err
		}
		if original == nil || original.Deleted {
			return billing.ErrObligationNotFound
		}
		if original.IsPaid() {
			return billing.ErrObligationPaid
		}

		amounts := plan.Amounts
		if len(amounts) == 0 {
			amounts = splitEvenly(original.TotalAmount, plan.Count)
		} else {
			sum := decimal.Zero
			for _, a := range amounts {
				sum = sum.Add(a)
			}
			if !sum.Equal(original.TotalAmount) {
				return fmt.Errorf("installment amounts sum to %s, expected %s", sum, original.TotalAmount)
			}
		}

		now := s.now()
		created = make([]billing.Obligation, plan.Count)
		for i := 0; i < plan.Count; i++ {
			due := billing.AddMonths(original.DueDate, i)
			due = billing.LastDayOfMonth(due.Year(), due.Month())
			// Installments are standalone items: no contract ID or month
			// key, so they never collide with the contract's generated
			// months or participate in reconciliation.
			created[i] = billing.Obligation{
				ID:          billing.ObligationID(uuid.NewString()),
				CategoryID:  original.CategoryID,
				ProjectID:   original.ProjectID,
				ItemName:    fmt.Sprintf("%s (%d/%d)", original.ItemName, i+1, plan.Count),
				TotalAmount: amounts[i],
				DueDate:     due,
				Status:      billing.StatusPending,
				Notes:       fmt.Sprintf("installment %d of %d for %s", i+1, plan.Count, original.ItemName),
				CreatedAt:   now,
				UpdatedAt:   now,
			}
		}

		if err := tx.InsertObligations(ctx, created); err != nil {
			return err
		}
		return tx.SoftDeleteObligation(ctx, id, now)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// splitEvenly divides total into n parts rounded to cents, remainder on the
// first installment so the parts always sum back to total.
func splitEvenly(total decimal.Decimal, n int) []decimal.Decimal {
	per := total.Div(decimal.NewFromInt(int64(n))).Round(2)
	amounts := make([]decimal.Decimal, n)
	rest := total
	for i := 1; i < n; i++ {
		amounts[i] = per
		rest = rest.Sub(per)
	}
	amounts[0] = rest
	return amounts
}
