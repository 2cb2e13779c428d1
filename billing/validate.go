package billing

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// =============================================================================
// INPUT VALIDATION
// =============================================================================

// ValidateTerm rejects malformed contract terms before any materialization
// is attempted. An inverted term would otherwise produce an empty or
// unbounded schedule; a negative buffer has no meaning.
func ValidateTerm(c Contract) error {
	if c.EndDate.Before(c.StartDate) {
		return &TermError{
			ContractID: c.ID,
			StartDate:  c.StartDate,
			EndDate:    c.EndDate,
			Reason:     "end date before start date",
		}
	}
	if c.BufferMonths < 0 {
		return &TermError{
			ContractID: c.ID,
			StartDate:  c.StartDate,
			EndDate:    c.EndDate,
			Reason:     "negative buffer months",
		}
	}
	return nil
}

// ValidateContract checks field-level constraints on a contract definition.
// Term and tier semantics have their own validators; this covers presence
// and shape.
func ValidateContract(c Contract) error {
	if err := validation.ValidateStruct(&c,
		validation.Field(&c.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&c.ProjectID, validation.Required),
		validation.Field(&c.StartDate, validation.Required),
		validation.Field(&c.EndDate, validation.Required),
		validation.Field(&c.BufferMonths, validation.Min(0)),
	); err != nil {
		return err
	}
	if c.BaseAmount.IsNegative() {
		return validation.NewError("validation_negative_amount", "base amount must not be negative")
	}
	return ValidateTerm(c)
}
