package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/billing-engine/api"
	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/billing/store"
	"github.com/warp/billing-engine/rental"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	mem := store.NewMemory()
	require.NoError(t, mem.SaveCategory(context.Background(), billing.Category{
		ID:   "cat-rent",
		Name: billing.RentCategoryName,
		Kind: billing.CategoryExpense,
	}))

	handler := api.NewHandler(rental.NewService(mem))
	srv := httptest.NewServer(api.NewRouter(handler))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()

	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func createTestContract(t *testing.T, srv *httptest.Server) api.ContractDTO {
	t.Helper()

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/contracts", api.CreateContractRequest{
		ProjectID:  "p-1",
		Name:       "warehouse-a",
		StartDate:  "2024-01-01",
		EndDate:    "2024-04-30",
		BaseAmount: "800",
		Tiers: []api.TierDTO{
			{YearStart: 1, YearEnd: 1, MonthlyAmount: "1000"},
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[api.ContractDTO](t, resp)
}

// =============================================================================
// CONTRACT ENDPOINTS
// =============================================================================

func TestAPI_ContractLifecycle(t *testing.T) {
	srv := newTestServer(t)

	created := createTestContract(t, srv)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "warehouse-a", created.Name)

	// Get returns the contract with its tiers.
	resp := doJSON(t, http.MethodGet, srv.URL+"/api/contracts/"+created.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[api.ContractDTO](t, resp)
	require.Len(t, got.Tiers, 1)
	assert.Equal(t, "1000", got.Tiers[0].MonthlyAmount)

	// List by project.
	resp = doJSON(t, http.MethodGet, srv.URL+"/api/contracts?project_id=p-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[[]api.ContractDTO](t, resp)
	assert.Len(t, list, 1)

	// Delete.
	resp = doJSON(t, http.MethodDelete, srv.URL+"/api/contracts/"+created.ID, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/contracts/"+created.ID, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_ListContractsRequiresProject(t *testing.T) {
	srv := newTestServer(t)
	resp := doJSON(t, http.MethodGet, srv.URL+"/api/contracts", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_CreateContractValidation(t *testing.T) {
	srv := newTestServer(t)

	t.Run("bad date format", func(t *testing.T) {
		resp := doJSON(t, http.MethodPost, srv.URL+"/api/contracts", api.CreateContractRequest{
			ProjectID: "p-1", Name: "x", StartDate: "01/01/2024", EndDate: "2024-04-30",
		})
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("inverted term", func(t *testing.T) {
		resp := doJSON(t, http.MethodPost, srv.URL+"/api/contracts", api.CreateContractRequest{
			ProjectID: "p-1", Name: "x", StartDate: "2024-04-30", EndDate: "2024-01-01",
		})
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("overlapping tiers", func(t *testing.T) {
		resp := doJSON(t, http.MethodPost, srv.URL+"/api/contracts", api.CreateContractRequest{
			ProjectID: "p-1", Name: "x", StartDate: "2024-01-01", EndDate: "2024-04-30",
			Tiers: []api.TierDTO{
				{YearStart: 1, YearEnd: 2, MonthlyAmount: "1000"},
				{YearStart: 2, YearEnd: 3, MonthlyAmount: "1200"},
			},
		})
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

// =============================================================================
// GENERATION AND OBLIGATIONS
// =============================================================================

func TestAPI_GenerateAndListObligations(t *testing.T) {
	srv := newTestServer(t)
	created := createTestContract(t, srv)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/contracts/"+created.ID+"/generate", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	gen := decode[api.GenerateResponse](t, resp)
	assert.Equal(t, 4, gen.GeneratedCount)

	// A second generate call is a no-op.
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/contracts/"+created.ID+"/generate", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	gen = decode[api.GenerateResponse](t, resp)
	assert.Equal(t, 0, gen.GeneratedCount)

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/contracts/"+created.ID+"/obligations", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	obs := decode[[]api.ObligationDTO](t, resp)
	require.Len(t, obs, 4)
	assert.Equal(t, "2024-01", obs[0].MonthKey)
	assert.Equal(t, "2024-01-warehouse-a", obs[0].ItemName)
	assert.Equal(t, "1000", obs[0].TotalAmount)
	assert.Equal(t, "pending", obs[0].Status)
}

func TestAPI_GenerateMissingContract(t *testing.T) {
	srv := newTestServer(t)
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/contracts/nope/generate", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// =============================================================================
// PAYMENTS AND INSTALLMENTS
// =============================================================================

func TestAPI_RecordPayment(t *testing.T) {
	srv := newTestServer(t)
	created := createTestContract(t, srv)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/contracts/"+created.ID+"/generate", nil)
	resp.Body.Close()

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/contracts/"+created.ID+"/obligations", nil)
	obs := decode[[]api.ObligationDTO](t, resp)
	require.NotEmpty(t, obs)

	url := fmt.Sprintf("%s/api/obligations/%s/payments", srv.URL, obs[0].ID)
	resp = doJSON(t, http.MethodPost, url, api.RecordPaymentRequest{
		Amount: "1000", PaidAt: "2024-01-20", Method: "transfer",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decode[api.ObligationDTO](t, resp)
	assert.Equal(t, "paid", updated.Status)
	assert.Equal(t, "1000", updated.PaidAmount)

	t.Run("negative amount rejected", func(t *testing.T) {
		resp := doJSON(t, http.MethodPost, url, api.RecordPaymentRequest{Amount: "-5"})
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestAPI_SplitInstallments(t *testing.T) {
	srv := newTestServer(t)
	created := createTestContract(t, srv)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/contracts/"+created.ID+"/generate", nil)
	resp.Body.Close()
	resp = doJSON(t, http.MethodGet, srv.URL+"/api/contracts/"+created.ID+"/obligations", nil)
	obs := decode[[]api.ObligationDTO](t, resp)
	require.NotEmpty(t, obs)

	url := fmt.Sprintf("%s/api/obligations/%s/installments", srv.URL, obs[0].ID)
	resp = doJSON(t, http.MethodPost, url, api.SplitInstallmentsRequest{Count: 2})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	parts := decode[[]api.ObligationDTO](t, resp)
	require.Len(t, parts, 2)
	assert.Equal(t, "500", parts[0].TotalAmount)
	assert.Equal(t, "500", parts[1].TotalAmount)
	assert.Empty(t, parts[0].ContractID)
}
