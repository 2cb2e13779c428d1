/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Amounts cross the wire as strings ("1200.00") and are parsed with
  shopspring/decimal. Floats never touch a monetary value.

SEE ALSO:
  - handlers.go: Uses these types
  - rental/service.go: The inputs these convert into
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/billing-engine/billing"
)

const dateLayout = "2006-01-02"

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// ContractDTO represents a contract in API responses.
type ContractDTO struct {
	ID           string    `json:"id"`
	ProjectID    string    `json:"project_id"`
	Name         string    `json:"name"`
	StartDate    string    `json:"start_date"`
	EndDate      string    `json:"end_date"`
	BaseAmount   string    `json:"base_amount"`
	HasBuffer    bool      `json:"has_buffer"`
	BufferMonths int       `json:"buffer_months"`
	BufferInTerm bool      `json:"buffer_in_term"`
	Tiers        []TierDTO `json:"tiers,omitempty"`
	CreatedAt    string    `json:"created_at,omitempty"`
	UpdatedAt    string    `json:"updated_at,omitempty"`
}

// TierDTO represents a price tier in API responses.
type TierDTO struct {
	YearStart     int    `json:"year_start"`
	YearEnd       int    `json:"year_end"`
	MonthlyAmount string `json:"monthly_amount"`
}

// CreateContractRequest is the request to create a contract.
type CreateContractRequest struct {
	ProjectID    string    `json:"project_id"`
	Name         string    `json:"name"`
	StartDate    string    `json:"start_date"`
	EndDate      string    `json:"end_date"`
	BaseAmount   string    `json:"base_amount"`
	HasBuffer    bool      `json:"has_buffer"`
	BufferMonths int       `json:"buffer_months"`
	BufferInTerm bool      `json:"buffer_in_term"`
	Tiers        []TierDTO `json:"tiers,omitempty"`
}

// UpdateContractRequest is a partial contract update. Absent fields are
// left untouched; a non-nil tiers array replaces the tier set.
type UpdateContractRequest struct {
	Name         *string    `json:"name,omitempty"`
	StartDate    *string    `json:"start_date,omitempty"`
	EndDate      *string    `json:"end_date,omitempty"`
	BaseAmount   *string    `json:"base_amount,omitempty"`
	HasBuffer    *bool      `json:"has_buffer,omitempty"`
	BufferMonths *int       `json:"buffer_months,omitempty"`
	BufferInTerm *bool      `json:"buffer_in_term,omitempty"`
	Tiers        []TierDTO  `json:"tiers,omitempty"`
}

// GenerateResponse reports the outcome of a generate call.
type GenerateResponse struct {
	GeneratedCount int `json:"generated_count"`
}

// ObligationDTO represents a payment obligation in API responses.
type ObligationDTO struct {
	ID          string `json:"id"`
	ContractID  string `json:"contract_id,omitempty"`
	ProjectID   string `json:"project_id"`
	MonthKey    string `json:"month_key,omitempty"`
	ItemName    string `json:"item_name"`
	TotalAmount string `json:"total_amount"`
	DueDate     string `json:"due_date"`
	PaidAmount  string `json:"paid_amount"`
	Status      string `json:"status"`
	Notes       string `json:"notes,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

// RecordPaymentRequest applies a payment against an obligation.
type RecordPaymentRequest struct {
	Amount string `json:"amount"`
	PaidAt string `json:"paid_at"`
	Method string `json:"method,omitempty"`
}

// SplitInstallmentsRequest splits an obligation into monthly installments.
// Amounts is optional; when present it must have Count entries summing to
// the obligation's total.
type SplitInstallmentsRequest struct {
	Count   int      `json:"count"`
	Amounts []string `json:"amounts,omitempty"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toContractDTO(c billing.Contract, tiers []billing.PriceTier) ContractDTO {
	dto := ContractDTO{
		ID:           string(c.ID),
		ProjectID:    string(c.ProjectID),
		Name:         c.Name,
		StartDate:    c.StartDate.Format(dateLayout),
		EndDate:      c.EndDate.Format(dateLayout),
		BaseAmount:   c.BaseAmount.String(),
		HasBuffer:    c.HasBuffer,
		BufferMonths: c.BufferMonths,
		BufferInTerm: c.BufferInTerm,
		CreatedAt:    c.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    c.UpdatedAt.Format(time.RFC3339),
	}
	for _, t := range tiers {
		dto.Tiers = append(dto.Tiers, TierDTO{
			YearStart:     t.YearStart,
			YearEnd:       t.YearEnd,
			MonthlyAmount: t.MonthlyAmount.String(),
		})
	}
	return dto
}

func toObligationDTO(o billing.Obligation) ObligationDTO {
	return ObligationDTO{
		ID:          string(o.ID),
		ContractID:  string(o.ContractID),
		ProjectID:   string(o.ProjectID),
		MonthKey:    o.MonthKey,
		ItemName:    o.ItemName,
		TotalAmount: o.TotalAmount.String(),
		DueDate:     o.DueDate.Format(dateLayout),
		PaidAmount:  o.PaidAmount.String(),
		Status:      string(o.Status),
		Notes:       o.Notes,
		CreatedAt:   o.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   o.UpdatedAt.Format(time.RFC3339),
	}
}

func toObligationDTOs(obs []billing.Obligation) []ObligationDTO {
	dtos := make([]ObligationDTO, len(obs))
	for i, o := range obs {
		dtos[i] = toObligationDTO(o)
	}
	return dtos
}

func parseAmount(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}

func parseDate(s string) (time.Time, error) {
	return time.Parse(dateLayout, s)
}
