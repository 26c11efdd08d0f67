package estimate

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func newTestStore(t *testing.T) (*Store, *int) {
	t.Helper()
	ctx := context.Background()

	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "estimates.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	db.SetMaxOpenConns(1)
	_, err = db.ExecContext(ctx, "PRAGMA foreign_keys = ON")
	require.NoError(t, err)

	require.NoError(t, Schema{}.Init(ctx, db))

	flushes := 0
	return NewStore(db, func() { flushes++ }), &flushes
}

func sampleEstimate(voucherNo string) *Estimate {
	return &Estimate{
		VoucherNo:   voucherNo,
		Date:        time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC),
		SilverRate:  92500,
		Note:        "walk-in",
		TotalGross:  120.5,
		TotalNet:    118.2,
		TotalFine:   109.3,
		TotalAmount: 10110.25,
		Items: []Item{
			{ItemName: "payal", GrossWt: 80.0, PolyWt: 1.5, NetWt: 78.5, Purity: 92.5, FineWt: 72.61, LaborRate: 12, Amount: 6717},
			{ItemName: "kada", GrossWt: 40.5, PolyWt: 0.8, NetWt: 39.7, Purity: 92.5, FineWt: 36.72, LaborRate: 15, Amount: 3393.25},
		},
	}
}

func TestSaveAndGetEstimate(t *testing.T) {
	ctx := context.Background()
	store, flushes := newTestStore(t)

	e := sampleEstimate("EST-001")
	require.NoError(t, store.SaveEstimate(ctx, e))
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, 1, *flushes)

	got, err := store.GetEstimate(ctx, "EST-001")
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, 92500.0, got.SilverRate)
	assert.Equal(t, "walk-in", got.Note)
	require.Len(t, got.Items, 2)
	assert.Equal(t, "payal", got.Items[0].ItemName)
	assert.Equal(t, 78.5, got.Items[0].NetWt)
	assert.Equal(t, "kada", got.Items[1].ItemName)
}

func TestSaveEstimate_ReplacesSameVoucher(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	first := sampleEstimate("EST-001")
	require.NoError(t, store.SaveEstimate(ctx, first))

	second := sampleEstimate("EST-001")
	second.Note = "revised"
	second.Items = second.Items[:1]
	require.NoError(t, store.SaveEstimate(ctx, second))

	got, err := store.GetEstimate(ctx, "EST-001")
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)
	assert.Equal(t, "revised", got.Note)
	assert.Len(t, got.Items, 1)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestGetEstimate_NotFound(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.GetEstimate(context.Background(), "EST-404")
	assert.ErrorContains(t, err, "not found")
}

func TestListEstimates_NewestFirst(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	old := sampleEstimate("EST-001")
	old.Date = time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveEstimate(ctx, old))

	recent := sampleEstimate("EST-002")
	recent.Date = time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveEstimate(ctx, recent))

	list, err := store.ListEstimates(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "EST-002", list[0].VoucherNo)
	assert.Equal(t, "EST-001", list[1].VoucherNo)
	assert.Empty(t, list[0].Items)
}

func TestDeleteEstimate_CascadesToItems(t *testing.T) {
	ctx := context.Background()
	store, flushes := newTestStore(t)

	require.NoError(t, store.SaveEstimate(ctx, sampleEstimate("EST-001")))
	require.NoError(t, store.DeleteEstimate(ctx, "EST-001"))
	assert.Equal(t, 2, *flushes)

	var n int
	require.NoError(t, store.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM estimate_items`).Scan(&n))
	assert.Equal(t, 0, n)
}

func TestDeleteEstimate_NotFound(t *testing.T) {
	store, flushes := newTestStore(t)
	err := store.DeleteEstimate(context.Background(), "EST-404")
	assert.ErrorContains(t, err, "not found")
	assert.Equal(t, 0, *flushes)
}

func TestSchemaInit_Idempotent(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "estimates.db"))
	require.NoError(t, err)
	defer db.Close()
	db.SetMaxOpenConns(1)

	require.NoError(t, Schema{}.Init(ctx, db))
	require.NoError(t, Schema{}.Init(ctx, db))
}
