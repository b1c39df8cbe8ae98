package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okoa-labs/fuelscan/constants"
	"github.com/okoa-labs/fuelscan/internal/entity"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLiteStore(filepath.Join(t.TempDir(), "fuelscan.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func sampleTx(createdAt time.Time) entity.ReconciledTransaction {
	return entity.ReconciledTransaction{
		Merchant:      entity.StringField{Value: "SHELL WESTLANDS", Source: constants.SourceAuthority, Confidence: 100},
		Amount:        entity.NumberField{Value: 5000, Source: constants.SourceAuthority, Confidence: 100},
		TxDate:        entity.DateField{Value: time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC)},
		Litres:        entity.NumberField{Value: 27.17, Source: constants.SourceLocal, Confidence: 85},
		FuelType:      entity.StringField{Value: string(constants.Diesel), Source: constants.SourceLocal, Confidence: 85},
		InvoiceNumber: "0070000001234567",
		KRAVerified:   true,
		OverallStatus: constants.StatusVerified,
		CreatedAt:     createdAt,
	}
}

func TestSaveAssignsIDAndRoundTrips(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	tx := sampleTx(time.Now().UTC())
	require.Equal(t, uuid.Nil, tx.ID)
	require.NoError(t, st.Save(ctx, &tx))
	assert.NotEqual(t, uuid.Nil, tx.ID)

	got, err := st.List(ctx, nil, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, tx.ID, got[0].ID)
	assert.Equal(t, "SHELL WESTLANDS", got[0].Merchant.Value)
	assert.Equal(t, constants.SourceAuthority, got[0].Merchant.Source)
	assert.Equal(t, 5000.0, got[0].Amount.Value)
	assert.Equal(t, "0070000001234567", got[0].InvoiceNumber)
	assert.Equal(t, constants.StatusVerified, got[0].OverallStatus)
	assert.True(t, got[0].KRAVerified)
}

func TestListWindow(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		tx := sampleTx(base.AddDate(0, 0, i*10))
		require.NoError(t, st.Save(ctx, &tx))
	}

	from := base.AddDate(0, 0, 5)
	to := base.AddDate(0, 0, 15)
	got, err := st.List(ctx, &from, &to)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].CreatedAt.Equal(base.AddDate(0, 0, 10)))

	got, err = st.List(ctx, &from, nil)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestListOrdersNewestFirst(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	older := sampleTx(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	newer := sampleTx(time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC))
	require.NoError(t, st.Save(ctx, &older))
	require.NoError(t, st.Save(ctx, &newer))

	got, err := st.List(ctx, nil, nil)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, newer.ID, got[0].ID)
	assert.Equal(t, older.ID, got[1].ID)
}

func TestSaveKeepsExistingID(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	tx := sampleTx(time.Now().UTC())
	tx.ID = uuid.New()
	want := tx.ID
	require.NoError(t, st.Save(ctx, &tx))
	assert.Equal(t, want, tx.ID)
}
