/*
materialize.go - Contract to obligation-schedule expansion

PURPOSE:
  Walks a contract's effective billing window month by month, resolves the
  rate for each month from the tier set, and produces the canonical in-memory
  schedule: one ScheduledCharge per billable month.

ALGORITHM:
  1. cursor := effective billing start (buffer excluded from term pushes it out)
  2. While cursor <= end date:
     - buffer included in term and still inside the buffer window:
       advance cursor AND the billing-month index, emit nothing
     - otherwise resolve the rate for floor(index/12)+1 and emit
  3. Index and skip logic share one counter: buffer months that emit nothing
     still consume tier-year slots. This coupling is deliberate and load-
     bearing; see the dedicated buffer tests before changing it.

FAILURE MODES:
  Malformed terms (end before start, negative buffer) are rejected up front;
  the loop itself is always finite.

SEE ALSO:
  - calendar.go: Month arithmetic
  - tier.go: Rate selection
  - reconcile.go: Consumes the schedule produced here
*/
package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// ScheduledCharge is one billable month of a contract's schedule.
type ScheduledCharge struct {
	MonthKey     string
	DueDate      time.Time // last calendar day of the billing month
	Amount       decimal.Decimal
	ContractYear int
}

// Materialize expands a contract into its ordered monthly schedule.
// Tiers are scanned in the order provided (first match wins).
func Materialize(c Contract, tiers []PriceTier) ([]ScheduledCharge, error) {
	if err := ValidateTerm(c); err != nil {
		return nil, err
	}

	var schedule []ScheduledCharge
	cursor := EffectiveBillingStart(c)
	end := MonthStart(c.EndDate)
	monthIndex := 0

	for !cursor.After(end) {
		if c.HasBuffer && c.BufferInTerm && MonthsBetween(MonthStart(c.StartDate), cursor) < c.BufferMonths {
			// Buffer slot: no charge, but the index still advances so the
			// buffer consumes the year-1 tier window.
			cursor = AddMonths(cursor, 1)
			monthIndex++
			continue
		}

		contractYear := monthIndex/12 + 1
		schedule = append(schedule, ScheduledCharge{
			MonthKey:     MonthKey(cursor),
			DueDate:      LastDayOfMonth(cursor.Year(), cursor.Month()),
			Amount:       ResolveMonthlyAmount(tiers, contractYear, c.BaseAmount),
			ContractYear: contractYear,
		})

		cursor = AddMonths(cursor, 1)
		monthIndex++
	}

	return schedule, nil
}
