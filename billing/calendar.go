package billing

import (
	"time"
)

// =============================================================================
// CALENDAR UTILITIES - Month arithmetic for billing schedules
// =============================================================================
// All functions are pure and operate on UTC dates at day granularity.

// MonthKey formats a date as "YYYY-MM". This is the identity key for
// generated obligations.
func MonthKey(t time.Time) string {
	return t.Format("2006-01")
}

// LastDayOfMonth returns the last calendar day of the given month.
func LastDayOfMonth(year int, month time.Month) time.Time {
	return time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
}

// AddMonths advances a date by n calendar months with correct rollover.
// Day-of-month is clamped to the first so Jan 31 + 1 month is Feb 1, not
// Mar 3; billing cursors always walk month starts.
func AddMonths(t time.Time, n int) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, n, 0)
}

// MonthStart truncates a date to the first day of its month.
func MonthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// MonthsBetween counts whole calendar months from the month of a to the
// month of b. Same month yields 0.
func MonthsBetween(a, b time.Time) int {
	return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
}

// EffectiveBillingStart returns the first billable month of a contract.
// A buffer that is excluded from the term pushes billing out by
// BufferMonths; an included buffer does not move the start (the skip
// happens inside the materialization loop instead).
func EffectiveBillingStart(c Contract) time.Time {
	start := MonthStart(c.StartDate)
	if c.HasBuffer && !c.BufferInTerm {
		return AddMonths(start, c.BufferMonths)
	}
	return start
}
