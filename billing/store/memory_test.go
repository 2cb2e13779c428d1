package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/billing/store"
)

func monthObligation(id billing.ObligationID, monthKey string) billing.Obligation {
	return billing.Obligation{
		ID:          id,
		ContractID:  "c-1",
		CategoryID:  "cat-rent",
		ProjectID:   "p-1",
		MonthKey:    monthKey,
		ItemName:    billing.ItemNameFor(monthKey, "warehouse-a"),
		TotalAmount: decimal.NewFromInt(1000),
		Status:      billing.StatusPending,
	}
}

func TestMemory_DuplicateMonthRejected(t *testing.T) {
	// GIVEN: A live obligation for 2024-01
	// WHEN: Inserting another obligation for the same contract month
	// THEN: The insert fails with ErrDuplicateMonth and nothing is written

	mem := store.NewMemory()
	ctx := context.Background()

	require.NoError(t, mem.InsertObligations(ctx, []billing.Obligation{
		monthObligation("ob-1", "2024-01"),
	}))

	err := mem.InsertObligations(ctx, []billing.Obligation{
		monthObligation("ob-2", "2024-02"),
		monthObligation("ob-3", "2024-01"),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, billing.ErrDuplicateMonth)

	var dupErr *billing.DuplicateMonthError
	require.ErrorAs(t, err, &dupErr)
	assert.Equal(t, "2024-01", dupErr.MonthKey)

	// The batch is atomic: the non-colliding row was not inserted either.
	obs, listErr := mem.ObligationsByContract(ctx, "p-1", "c-1")
	require.NoError(t, listErr)
	assert.Len(t, obs, 1)
}

func TestMemory_SoftDeletedMonthDoesNotBlockReinsert(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	require.NoError(t, mem.InsertObligations(ctx, []billing.Obligation{
		monthObligation("ob-1", "2024-01"),
	}))
	require.NoError(t, mem.SoftDeleteObligation(ctx, "ob-1", time.Now()))

	// The month is free again once its obligation is soft-deleted.
	assert.NoError(t, mem.InsertObligations(ctx, []billing.Obligation{
		monthObligation("ob-2", "2024-01"),
	}))
}

func TestMemory_ItemsWithoutMonthKeyNeverCollide(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	a := monthObligation("ob-1", "")
	b := monthObligation("ob-2", "")
	assert.NoError(t, mem.InsertObligations(ctx, []billing.Obligation{a, b}))
}

func TestMemory_ListingsExcludeSoftDeleted(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	require.NoError(t, mem.InsertObligations(ctx, []billing.Obligation{
		monthObligation("ob-1", "2024-01"),
		monthObligation("ob-2", "2024-02"),
	}))
	require.NoError(t, mem.SoftDeleteObligation(ctx, "ob-1", time.Now()))

	byContract, err := mem.ObligationsByContract(ctx, "p-1", "c-1")
	require.NoError(t, err)
	require.Len(t, byContract, 1)
	assert.Equal(t, billing.ObligationID("ob-2"), byContract[0].ID)

	byProject, err := mem.ObligationsByProject(ctx, "p-1")
	require.NoError(t, err)
	assert.Len(t, byProject, 1)

	// Direct lookup still reaches the soft-deleted row.
	o, err := mem.GetObligation(ctx, "ob-1")
	require.NoError(t, err)
	require.NotNil(t, o)
	assert.True(t, o.Deleted)
}

func TestMemory_UnpaidObligationIDs(t *testing.T) {
	// Unpaid IDs include soft-deleted rows (a purge cascades over everything
	// the contract still owns) but never paid rows.
	mem := store.NewMemory()
	ctx := context.Background()

	unpaid := monthObligation("ob-1", "2024-01")
	softDeleted := monthObligation("ob-2", "2024-02")
	paid := monthObligation("ob-3", "2024-03")
	paid.PaidAmount = decimal.NewFromInt(1000)

	require.NoError(t, mem.InsertObligations(ctx, []billing.Obligation{unpaid, softDeleted, paid}))
	require.NoError(t, mem.SoftDeleteObligation(ctx, "ob-2", time.Now()))

	ids, err := mem.UnpaidObligationIDs(ctx, "p-1", "c-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []billing.ObligationID{"ob-1", "ob-2"}, ids)
}

func TestMemory_WithTxRollsBackOnError(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	require.NoError(t, mem.InsertObligations(ctx, []billing.Obligation{
		monthObligation("ob-1", "2024-01"),
	}))

	boom := errors.New("boom")
	err := mem.WithTx(ctx, func(tx billing.Store) error {
		if err := tx.InsertObligations(ctx, []billing.Obligation{
			monthObligation("ob-2", "2024-02"),
		}); err != nil {
			return err
		}
		if err := tx.SoftDeleteObligation(ctx, "ob-1", time.Now()); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	// Everything inside the failed transaction was undone.
	obs, listErr := mem.ObligationsByContract(ctx, "p-1", "c-1")
	require.NoError(t, listErr)
	require.Len(t, obs, 1)
	assert.Equal(t, billing.ObligationID("ob-1"), obs[0].ID)
}
