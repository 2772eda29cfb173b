package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/crm-report/internal/model"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestSQLiteSnapshotRoundTrip(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	taken := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	saved, err := s.SaveSnapshot(ctx, model.SnapshotContracts, taken, []byte(`{"count":2}`))
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)

	got, err := s.LatestSnapshot(ctx, model.SnapshotContracts)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, saved.ID, got.ID)
	assert.Equal(t, model.SnapshotContracts, got.Kind)
	assert.True(t, got.TakenAt.Equal(taken))
	assert.JSONEq(t, `{"count":2}`, string(got.Data))
}

func TestSQLiteLatestSnapshotOrdering(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	older := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	_, err := s.SaveSnapshot(ctx, model.SnapshotMetrics, newer, []byte(`{"v":2}`))
	require.NoError(t, err)
	_, err = s.SaveSnapshot(ctx, model.SnapshotMetrics, older, []byte(`{"v":1}`))
	require.NoError(t, err)

	got, err := s.LatestSnapshot(ctx, model.SnapshotMetrics)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.JSONEq(t, `{"v":2}`, string(got.Data))
}

func TestSQLiteLatestSnapshotMissing(t *testing.T) {
	s := newTestSQLite(t)

	got, err := s.LatestSnapshot(context.Background(), model.SnapshotInsight)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLiteListSnapshots(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_, err := s.SaveSnapshot(ctx, model.SnapshotContracts, base.Add(time.Duration(i)*time.Hour), []byte(`{}`))
		require.NoError(t, err)
	}
	_, err := s.SaveSnapshot(ctx, model.SnapshotInsight, base, []byte(`{"other":true}`))
	require.NoError(t, err)

	all, err := s.ListSnapshots(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	contracts, err := s.ListSnapshots(ctx, ListFilter{Kind: model.SnapshotContracts})
	require.NoError(t, err)
	require.Len(t, contracts, 3)
	assert.True(t, contracts[0].TakenAt.After(contracts[1].TakenAt), "newest first")

	limited, err := s.ListSnapshots(ctx, ListFilter{Kind: model.SnapshotContracts, Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, contracts[1].ID, limited[0].ID)
}

func TestSQLitePruneSnapshots(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	var newest string
	for i := 0; i < 5; i++ {
		snap, err := s.SaveSnapshot(ctx, model.SnapshotContracts, base.Add(time.Duration(i)*time.Hour), []byte(`{}`))
		require.NoError(t, err)
		newest = snap.ID
	}

	deleted, err := s.PruneSnapshots(ctx, model.SnapshotContracts, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)

	remaining, err := s.ListSnapshots(ctx, ListFilter{Kind: model.SnapshotContracts})
	require.NoError(t, err)
	require.Len(t, remaining, 2)
	assert.Equal(t, newest, remaining[0].ID)
}

func TestSQLiteSaveContractRows(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	snap, err := s.SaveSnapshot(ctx, model.SnapshotContracts, time.Now().UTC(), []byte(`{}`))
	require.NoError(t, err)

	records := []model.ContractRecord{
		{
			ID: "c1", Name: "계약-0001", AccountName: "한우리식당",
			Opportunity:    model.OpportunitySummary{OwnerName: "김영업", OwnerDepartment: "영업1팀"},
			PurchaseAmount: 1248000, TotalWithVAT: 1372800,
		},
		{ID: "c2", Name: "계약-0002", PurchaseAmount: 648000, TotalWithVAT: 712800},
	}

	n, err := s.SaveContractRows(ctx, snap.ID, records)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	var count int
	var data string
	require.NoError(t, s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM contract_rows WHERE snapshot_id = ?`, snap.ID).Scan(&count))
	assert.Equal(t, 2, count)

	require.NoError(t, s.db.QueryRowContext(ctx,
		`SELECT data FROM contract_rows WHERE contract_id = ?`, "c1").Scan(&data))
	var rec model.ContractRecord
	require.NoError(t, json.Unmarshal([]byte(data), &rec))
	assert.Equal(t, "한우리식당", rec.AccountName)
}

func TestSQLiteSaveContractRowsEmpty(t *testing.T) {
	s := newTestSQLite(t)

	n, err := s.SaveContractRows(context.Background(), "snap", nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}
