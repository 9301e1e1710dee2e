package report_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alejandrodnm/polywhale/internal/adapters/report"
	"github.com/alejandrodnm/polywhale/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExport_WritesSnapshot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "snapshot.json")
	sink := report.NewJSONFile(path, "")

	pnl := 150.0
	snap := domain.Snapshot{
		GeneratedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Stats:       domain.LedgerStats{Whales: 2, Positions: 2, Resolved: 2, Wins: 1, Losses: 1, TotalPnL: 100},
		Resolved: []domain.SnapshotPosition{
			{ID: 1, Whale: "0xa", MarketID: "m", Side: "YES", Size: 100, EntryPrice: 0.4, Result: "WIN", PnL: &pnl},
		},
	}
	require.NoError(t, sink.Export(context.Background(), snap))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, []any{}, got["whales"], "slices vacíos se exportan como []")
	assert.Equal(t, []any{}, got["consensus"])

	stats := got["stats"].(map[string]any)
	assert.EqualValues(t, 2, stats["whales"])

	resolved := got["resolved_positions"].([]any)
	require.Len(t, resolved, 1)
	assert.EqualValues(t, 150, resolved[0].(map[string]any)["pnl"])

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no quedan temporales")
}

func TestWriteProgress_Overwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.json")
	sink := report.NewJSONFile("", path)

	require.NoError(t, sink.WriteProgress(context.Background(), domain.Progress{RunID: "r1", Checked: 100, Total: 250, Percent: 40}))
	require.NoError(t, sink.WriteProgress(context.Background(), domain.Progress{RunID: "r1", Checked: 250, Total: 250, Percent: 100, Done: true}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var p domain.Progress
	require.NoError(t, json.Unmarshal(data, &p))
	assert.Equal(t, 250, p.Checked)
	assert.True(t, p.Done)
	assert.InDelta(t, 100, p.Percent, 1e-9)
}

func TestDisabledPaths(t *testing.T) {
	sink := report.NewJSONFile("", "")
	assert.NoError(t, sink.Export(context.Background(), domain.Snapshot{}))
	assert.NoError(t, sink.WriteProgress(context.Background(), domain.Progress{}))
}

func TestExport_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sink := report.NewJSONFile(filepath.Join(t.TempDir(), "s.json"), "")
	assert.Error(t, sink.Export(ctx, domain.Snapshot{}))
}
