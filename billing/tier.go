package billing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// TIER RESOLVER - Rate selection for a contract year
// =============================================================================

// ResolveMonthlyAmount selects the monthly rate for a contract year.
// Tiers are scanned in the order provided and the first covering tier wins;
// when none covers the year, the contract's base rate applies.
//
// contractYear is 1-based: floor(billingMonthIndex/12)+1, where the index is
// the materialization loop counter. The counter advances through buffer
// months that are skipped when the buffer is included in the term, so buffer
// months consume the year-1 tier window. See Materialize.
func ResolveMonthlyAmount(tiers []PriceTier, contractYear int, baseAmount decimal.Decimal) decimal.Decimal {
	for _, t := range tiers {
		if t.Covers(contractYear) {
			return t.MonthlyAmount
		}
	}
	return baseAmount
}

// ValidateTiers rejects tier sets whose year ranges overlap or are inverted.
// Overlap would make resolution order-dependent; we refuse it at write time
// rather than relying on the first-match tie-break.
func ValidateTiers(contractID ContractID, tiers []PriceTier) error {
	for i, a := range tiers {
		if a.YearStart < 1 || a.YearEnd < a.YearStart {
			return fmt.Errorf("tier years [%d,%d] invalid for contract %s: %w",
				a.YearStart, a.YearEnd, contractID, ErrTierOverlap)
		}
		for _, b := range tiers[i+1:] {
			if a.YearStart <= b.YearEnd && b.YearStart <= a.YearEnd {
				return &TierOverlapError{ContractID: contractID, First: a, Second: b}
			}
		}
	}
	return nil
}
