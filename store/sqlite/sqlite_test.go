package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/store/sqlite"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func testContract() billing.Contract {
	now := time.Now().UTC().Truncate(time.Second)
	return billing.Contract{
		ID:           "c-1",
		ProjectID:    "p-1",
		Name:         "warehouse-a",
		StartDate:    date(2024, time.January, 1),
		EndDate:      date(2025, time.December, 31),
		BaseAmount:   decimal.RequireFromString("812.50"),
		HasBuffer:    true,
		BufferMonths: 2,
		BufferInTerm: true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func monthObligation(id billing.ObligationID, monthKey string) billing.Obligation {
	now := time.Now().UTC().Truncate(time.Second)
	return billing.Obligation{
		ID:          id,
		ContractID:  "c-1",
		CategoryID:  "cat-rent",
		ProjectID:   "p-1",
		MonthKey:    monthKey,
		ItemName:    billing.ItemNameFor(monthKey, "warehouse-a"),
		TotalAmount: decimal.NewFromInt(1000),
		PaidAmount:  decimal.Zero,
		DueDate:     date(2024, time.January, 31),
		Status:      billing.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestSQLite_ContractRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	c := testContract()
	require.NoError(t, store.SaveContract(ctx, c))

	loaded, err := store.GetContract(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, c.Name, loaded.Name)
	assert.Equal(t, c.StartDate, loaded.StartDate)
	assert.True(t, c.BaseAmount.Equal(loaded.BaseAmount), "decimal survives the text column")
	assert.True(t, loaded.HasBuffer)
	assert.Equal(t, 2, loaded.BufferMonths)
	assert.True(t, loaded.BufferInTerm)

	// Upsert on the same ID.
	c.Name = "warehouse-b"
	require.NoError(t, store.SaveContract(ctx, c))
	loaded, err = store.GetContract(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "warehouse-b", loaded.Name)

	missing, err := store.GetContract(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSQLite_TierReplacement(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveContract(ctx, testContract()))

	now := time.Now().UTC()
	first := []billing.PriceTier{
		{ID: "t-1", ContractID: "c-1", YearStart: 1, YearEnd: 2, MonthlyAmount: decimal.NewFromInt(1000), CreatedAt: now},
		{ID: "t-2", ContractID: "c-1", YearStart: 3, YearEnd: 5, MonthlyAmount: decimal.NewFromInt(1200), CreatedAt: now},
	}
	require.NoError(t, store.ReplaceTiers(ctx, "c-1", first))

	second := []billing.PriceTier{
		{ID: "t-3", ContractID: "c-1", YearStart: 1, YearEnd: 5, MonthlyAmount: decimal.NewFromInt(900), CreatedAt: now},
	}
	require.NoError(t, store.ReplaceTiers(ctx, "c-1", second))

	tiers, err := store.TiersByContract(ctx, "c-1")
	require.NoError(t, err)
	require.Len(t, tiers, 1, "replacement is total, not additive")
	assert.Equal(t, "t-3", tiers[0].ID)
}

func TestSQLite_UniqueMonthIndex(t *testing.T) {
	// GIVEN: A live obligation for contract month 2024-01
	// WHEN: Inserting another obligation for the same month
	// THEN: The constraint fires and surfaces as ErrDuplicateMonth

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertObligations(ctx, []billing.Obligation{
		monthObligation("ob-1", "2024-01"),
	}))

	err := store.InsertObligations(ctx, []billing.Obligation{
		monthObligation("ob-2", "2024-01"),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, billing.ErrDuplicateMonth)

	// Soft-deleting the blocker frees the month (the index is partial).
	require.NoError(t, store.SoftDeleteObligation(ctx, "ob-1", time.Now()))
	assert.NoError(t, store.InsertObligations(ctx, []billing.Obligation{
		monthObligation("ob-3", "2024-01"),
	}))

	// Items without contract/month identity never hit the index.
	a := monthObligation("ob-4", "")
	a.ContractID = ""
	b := monthObligation("ob-5", "")
	b.ContractID = ""
	assert.NoError(t, store.InsertObligations(ctx, []billing.Obligation{a, b}))
}

func TestSQLite_ListingsExcludeSoftDeleted(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertObligations(ctx, []billing.Obligation{
		monthObligation("ob-1", "2024-01"),
		monthObligation("ob-2", "2024-02"),
	}))
	require.NoError(t, store.SoftDeleteObligation(ctx, "ob-1", time.Now()))

	obs, err := store.ObligationsByContract(ctx, "p-1", "c-1")
	require.NoError(t, err)
	require.Len(t, obs, 1)
	assert.Equal(t, billing.ObligationID("ob-2"), obs[0].ID)

	o, err := store.GetObligation(ctx, "ob-1")
	require.NoError(t, err)
	require.NotNil(t, o, "direct lookup still reaches soft-deleted rows")
	assert.True(t, o.Deleted)
}

func TestSQLite_UnpaidObligationIDs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	unpaid := monthObligation("ob-1", "2024-01")
	paid := monthObligation("ob-2", "2024-02")
	paid.PaidAmount = decimal.RequireFromString("1000.00")

	require.NoError(t, store.InsertObligations(ctx, []billing.Obligation{unpaid, paid}))

	ids, err := store.UnpaidObligationIDs(ctx, "p-1", "c-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []billing.ObligationID{"ob-1"}, ids)
}

func TestSQLite_WithTxRollsBackOnError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := store.WithTx(ctx, func(tx billing.Store) error {
		if err := tx.InsertObligations(ctx, []billing.Obligation{
			monthObligation("ob-1", "2024-01"),
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	obs, err := store.ObligationsByContract(ctx, "p-1", "c-1")
	require.NoError(t, err)
	assert.Empty(t, obs)
}

func TestSQLite_PaymentRecords(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertObligations(ctx, []billing.Obligation{
		monthObligation("ob-1", "2024-01"),
	}))
	require.NoError(t, store.InsertPayment(ctx, billing.PaymentRecord{
		ID:           "pay-1",
		ObligationID: "ob-1",
		Amount:       decimal.RequireFromString("250.00"),
		PaidAt:       date(2024, time.January, 15),
		Method:       "transfer",
		CreatedAt:    time.Now().UTC(),
	}))

	payments, err := store.PaymentsByObligation(ctx, "ob-1")
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.True(t, decimal.RequireFromString("250.00").Equal(payments[0].Amount))
	assert.Equal(t, date(2024, time.January, 15), payments[0].PaidAt)

	require.NoError(t, store.DeletePaymentsForObligations(ctx, []billing.ObligationID{"ob-1"}))
	payments, err = store.PaymentsByObligation(ctx, "ob-1")
	require.NoError(t, err)
	assert.Empty(t, payments)
}

func TestSQLite_Categories(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	cat := billing.Category{ID: "cat-1", Name: billing.RentCategoryName, Kind: billing.CategoryExpense}
	require.NoError(t, store.SaveCategory(ctx, cat))
	// Seeding twice is a no-op.
	require.NoError(t, store.SaveCategory(ctx, billing.Category{
		ID: "cat-2", Name: billing.RentCategoryName, Kind: billing.CategoryExpense,
	}))

	loaded, err := store.GetCategory(ctx, billing.RentCategoryName, billing.CategoryExpense)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, billing.CategoryID("cat-1"), loaded.ID)

	missing, err := store.GetCategory(ctx, billing.RentCategoryName, billing.CategoryIncome)
	require.NoError(t, err)
	assert.Nil(t, missing)
}
