/*
handlers.go - HTTP API handlers for the billing engine

PURPOSE:
  Exposes the contract and obligation engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Contracts:
    GET    /api/contracts                    List contracts for a project
    POST   /api/contracts                    Create contract with tiers
    GET    /api/contracts/{id}               Get contract details
    PUT    /api/contracts/{id}               Update contract (may regenerate)
    DELETE /api/contracts/{id}               Delete contract and unpaid months
    POST   /api/contracts/{id}/generate      Generate payment obligations
    GET    /api/contracts/{id}/obligations   List the contract's obligations

  Obligations:
    POST   /api/obligations/{id}/payments       Record a payment
    POST   /api/obligations/{id}/installments   Split into installments

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Call domain logic (rental.Service)
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, paid-obligation conflicts
  - 404: Contract or obligation not found
  - 409: Duplicate month race (retryable)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - rental/service.go: The coordinator these handlers call
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"
	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/rental"
)

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *rental.Service
}

// NewHandler creates a new handler around the mutation coordinator.
func NewHandler(service *rental.Service) *Handler {
	return &Handler{Service: service}
}

// =============================================================================
// CONTRACT HANDLERS
// =============================================================================

// ListContracts returns all contracts for a project.
func (h *Handler) ListContracts(w http.ResponseWriter, r *http.Request) {
	projectID := billing.ProjectID(r.URL.Query().Get("project_id"))
	if projectID == "" {
		writeError(w, http.StatusBadRequest, "project_id query parameter is required", nil)
		return
	}

	contracts, err := h.Service.ListContracts(r.Context(), projectID)
	if err != nil {
		writeDomainError(w, "Failed to list contracts", err)
		return
	}

	dtos := make([]ContractDTO, len(contracts))
	for i, c := range contracts {
		dtos[i] = toContractDTO(c, nil)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetContract returns a single contract with its tiers.
func (h *Handler) GetContract(w http.ResponseWriter, r *http.Request) {
	id := billing.ContractID(chi.URLParam(r, "id"))

	contract, tiers, err := h.Service.GetContract(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get contract", err)
		return
	}
	writeJSON(w, http.StatusOK, toContractDTO(*contract, tiers))
}

// CreateContract creates a new contract with its price tiers. Obligations
// are not generated until the generate endpoint is called.
func (h *Handler) CreateContract(w http.ResponseWriter, r *http.Request) {
	var req CreateContractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	input, tiers, err := contractInputFromRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	contract, err := h.Service.CreateContract(r.Context(), input, tiers)
	if err != nil {
		writeDomainError(w, "Failed to create contract", err)
		return
	}
	writeJSON(w, http.StatusCreated, toContractDTO(*contract, nil))
}

// UpdateContract applies a partial update. When the name or start date
// changes, or tiers are replaced, unpaid obligations are purged and
// regenerated in the same transaction.
func (h *Handler) UpdateContract(w http.ResponseWriter, r *http.Request) {
	id := billing.ContractID(chi.URLParam(r, "id"))

	var req UpdateContractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	changes, tiers, err := contractChangesFromRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	contract, err := h.Service.UpdateContract(r.Context(), id, changes, tiers)
	if err != nil {
		writeDomainError(w, "Failed to update contract", err)
		return
	}
	writeJSON(w, http.StatusOK, toContractDTO(*contract, nil))
}

// DeleteContract removes a contract, its tiers, and its unpaid obligations.
// Paid obligations survive as historical records.
func (h *Handler) DeleteContract(w http.ResponseWriter, r *http.Request) {
	id := billing.ContractID(chi.URLParam(r, "id"))

	if err := h.Service.DeleteContract(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to delete contract", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GeneratePayments materializes the contract's schedule into obligations.
// Calling it again is a no-op for months that already exist.
func (h *Handler) GeneratePayments(w http.ResponseWriter, r *http.Request) {
	id := billing.ContractID(chi.URLParam(r, "id"))

	count, err := h.Service.GeneratePayments(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to generate payments", err)
		return
	}
	writeJSON(w, http.StatusOK, GenerateResponse{GeneratedCount: count})
}

// ListObligations returns the contract's live obligations.
func (h *Handler) ListObligations(w http.ResponseWriter, r *http.Request) {
	id := billing.ContractID(chi.URLParam(r, "id"))

	obs, err := h.Service.Obligations(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to list obligations", err)
		return
	}
	writeJSON(w, http.StatusOK, toObligationDTOs(obs))
}

// =============================================================================
// OBLIGATION HANDLERS
// =============================================================================

// RecordPayment applies a payment against an obligation. A paid obligation
// is frozen against subsequent regeneration.
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	id := billing.ObligationID(chi.URLParam(r, "id"))

	var req RecordPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount (use a decimal string)", err)
		return
	}
	if !amount.IsPositive() {
		writeError(w, http.StatusBadRequest, "Payment amount must be positive", nil)
		return
	}
	paidAt := time.Now().UTC()
	if req.PaidAt != "" {
		paidAt, err = parseDate(req.PaidAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid paid_at format (use YYYY-MM-DD)", err)
			return
		}
	}

	updated, err := h.Service.RecordPayment(r.Context(), id, amount, paidAt, req.Method)
	if err != nil {
		writeDomainError(w, "Failed to record payment", err)
		return
	}
	writeJSON(w, http.StatusOK, toObligationDTO(*updated))
}

// SplitInstallments replaces an unpaid obligation with monthly installments.
func (h *Handler) SplitInstallments(w http.ResponseWriter, r *http.Request) {
	id := billing.ObligationID(chi.URLParam(r, "id"))

	var req SplitInstallmentsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	plan := rental.InstallmentPlan{Count: req.Count}
	for _, s := range req.Amounts {
		amount, err := parseAmount(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid installment amount (use decimal strings)", err)
			return
		}
		plan.Amounts = append(plan.Amounts, amount)
	}

	created, err := h.Service.SplitIntoInstallments(r.Context(), id, plan)
	if err != nil {
		writeDomainError(w, "Failed to split obligation", err)
		return
	}
	writeJSON(w, http.StatusCreated, toObligationDTOs(created))
}

// =============================================================================
// REQUEST CONVERSION
// =============================================================================

func contractInputFromRequest(req CreateContractRequest) (rental.ContractInput, []rental.TierInput, error) {
	var input rental.ContractInput

	start, err := parseDate(req.StartDate)
	if err != nil {
		return input, nil, errors.New("invalid start_date format (use YYYY-MM-DD)")
	}
	end, err := parseDate(req.EndDate)
	if err != nil {
		return input, nil, errors.New("invalid end_date format (use YYYY-MM-DD)")
	}
	base := decimal.Zero
	if req.BaseAmount != "" {
		base, err = parseAmount(req.BaseAmount)
		if err != nil {
			return input, nil, errors.New("invalid base_amount (use a decimal string)")
		}
	}
	tiers, err := tierInputsFromDTOs(req.Tiers)
	if err != nil {
		return input, nil, err
	}

	input = rental.ContractInput{
		ProjectID:    billing.ProjectID(req.ProjectID),
		Name:         req.Name,
		StartDate:    start,
		EndDate:      end,
		BaseAmount:   base,
		HasBuffer:    req.HasBuffer,
		BufferMonths: req.BufferMonths,
		BufferInTerm: req.BufferInTerm,
	}
	return input, tiers, nil
}

func contractChangesFromRequest(req UpdateContractRequest) (rental.ContractChanges, []rental.TierInput, error) {
	var changes rental.ContractChanges

	changes.Name = req.Name
	if req.StartDate != nil {
		start, err := parseDate(*req.StartDate)
		if err != nil {
			return changes, nil, errors.New("invalid start_date format (use YYYY-MM-DD)")
		}
		changes.StartDate = &start
	}
	if req.EndDate != nil {
		end, err := parseDate(*req.EndDate)
		if err != nil {
			return changes, nil, errors.New("invalid end_date format (use YYYY-MM-DD)")
		}
		changes.EndDate = &end
	}
	if req.BaseAmount != nil {
		base, err := parseAmount(*req.BaseAmount)
		if err != nil {
			return changes, nil, errors.New("invalid base_amount (use a decimal string)")
		}
		changes.BaseAmount = &base
	}
	changes.HasBuffer = req.HasBuffer
	changes.BufferMonths = req.BufferMonths
	changes.BufferInTerm = req.BufferInTerm

	tiers, err := tierInputsFromDTOs(req.Tiers)
	if err != nil {
		return changes, nil, err
	}
	return changes, tiers, nil
}

func tierInputsFromDTOs(dtos []TierDTO) ([]rental.TierInput, error) {
	tiers := make([]rental.TierInput, len(dtos))
	for i, t := range dtos {
		amount, err := parseAmount(t.MonthlyAmount)
		if err != nil {
			return nil, errors.New("invalid tier monthly_amount (use decimal strings)")
		}
		tiers[i] = rental.TierInput{
			YearStart:     t.YearStart,
			YearEnd:       t.YearEnd,
			MonthlyAmount: amount,
		}
	}
	return tiers, nil
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, err error) {
	resp := ErrorResponse{Error: msg}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps domain errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, msg string, err error) {
	var vErrs validation.Errors
	switch {
	case billing.IsNotFound(err):
		writeError(w, http.StatusNotFound, msg, err)
	case billing.IsRetryable(err):
		writeError(w, http.StatusConflict, msg, err)
	case billing.IsClientError(err), errors.As(err, &vErrs):
		writeError(w, http.StatusBadRequest, msg, err)
	default:
		writeError(w, http.StatusInternalServerError, msg, err)
	}
}
