package storage_test

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alejandrodnm/polywhale/internal/adapters/storage"
	"github.com/alejandrodnm/polywhale/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	whaleA = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	whaleB = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

func marketID(c byte) string {
	return "0x" + strings.Repeat(string(c), 64)
}

func newStore(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func seedWhales(t *testing.T, db *storage.SQLiteStorage, addrs ...string) {
	t.Helper()
	for _, a := range addrs {
		_, err := db.UpsertWhale(context.Background(), a, 100000, "")
		require.NoError(t, err)
	}
}

func record(t *testing.T, db *storage.SQLiteStorage, whale, market, side string, size, entry float64, at time.Time) int64 {
	t.Helper()
	id, err := db.RecordPosition(context.Background(), domain.NewPosition{
		WhaleAddress:   whale,
		MarketID:       market,
		MarketQuestion: "Will X happen?",
		Side:           side,
		Size:           size,
		EntryPrice:     entry,
		EntryTime:      at,
	})
	require.NoError(t, err)
	return id
}

func TestSQLiteStorage_SchemaVersion(t *testing.T) {
	db := newStore(t)
	v, err := db.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestSQLiteStorage_UpsertWhale_Idempotent(t *testing.T) {
	db := newStore(t)
	ctx := context.Background()

	created, err := db.UpsertWhale(ctx, strings.ToUpper(whaleA[:2])+whaleA[2:], 50000, "first")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = db.UpsertWhale(ctx, whaleA, 90000, "second")
	require.NoError(t, err)
	assert.False(t, created)

	w, err := db.GetWhale(ctx, whaleA)
	require.NoError(t, err)
	assert.Equal(t, 50000.0, w.TotalVolume, "upsert must not refresh volume")
	assert.Equal(t, "first", w.Notes)

	require.NoError(t, db.UpdateWhaleVolume(ctx, whaleA, 90000))
	w, err = db.GetWhale(ctx, whaleA)
	require.NoError(t, err)
	assert.Equal(t, 90000.0, w.TotalVolume)
}

func TestSQLiteStorage_GetWhale_NotFound(t *testing.T) {
	db := newStore(t)
	_, err := db.GetWhale(context.Background(), whaleB)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSQLiteStorage_RecordPosition_Duplicate(t *testing.T) {
	db := newStore(t)
	seedWhales(t, db, whaleA)
	m := marketID('1')

	record(t, db, whaleA, m, "yes", 100, 0.5, time.Now())

	_, err := db.RecordPosition(context.Background(), domain.NewPosition{
		WhaleAddress: whaleA, MarketID: m, Side: "YES", Size: 200, EntryPrice: 0.6,
	})
	assert.ErrorIs(t, err, domain.ErrDuplicatePosition)

	// El otro lado del mismo mercado es una posición distinta.
	record(t, db, whaleA, m, "NO", 100, 0.5, time.Now())

	exists, err := db.PositionExists(context.Background(), whaleA, m, "no")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestSQLiteStorage_RecordPosition_UnknownWhale(t *testing.T) {
	db := newStore(t)
	_, err := db.RecordPosition(context.Background(), domain.NewPosition{
		WhaleAddress: whaleB, MarketID: marketID('1'), Side: "YES", Size: 1, EntryPrice: 0.5,
	})
	assert.Error(t, err)
}

func TestSQLiteStorage_RoundTripUnresolved(t *testing.T) {
	db := newStore(t)
	ctx := context.Background()
	seedWhales(t, db, whaleA)
	m := marketID('2')
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	id := record(t, db, whaleA, m, "YES", 250, 0.42, at)

	open, err := db.UnresolvedPositions(ctx, domain.PositionFilter{})
	require.NoError(t, err)
	require.Len(t, open, 1)
	p := open[0]
	assert.Equal(t, id, p.ID)
	assert.Equal(t, m, p.MarketID)
	assert.Equal(t, "YES", p.Side)
	assert.Equal(t, 250.0, p.Size)
	assert.Equal(t, 0.42, p.EntryPrice)
	assert.True(t, at.Equal(p.EntryTime))
	assert.False(t, p.Resolved)
	assert.Nil(t, p.Result)
	assert.Nil(t, p.PnL)

	applied, err := db.ResolvePosition(ctx, id, domain.ResultWin, 345.24)
	require.NoError(t, err)
	assert.True(t, applied)

	open, err = db.UnresolvedPositions(ctx, domain.PositionFilter{})
	require.NoError(t, err)
	assert.Empty(t, open)

	got, err := db.GetPosition(ctx, id)
	require.NoError(t, err)
	assert.True(t, got.Resolved)
	require.NotNil(t, got.Result)
	require.NotNil(t, got.PnL)
	assert.Equal(t, domain.ResultWin, *got.Result)
	assert.InDelta(t, 345.24, *got.PnL, 1e-9)
}

func TestSQLiteStorage_ResolvePosition_Idempotent(t *testing.T) {
	db := newStore(t)
	ctx := context.Background()
	seedWhales(t, db, whaleA)
	id := record(t, db, whaleA, marketID('3'), "YES", 100, 0.5, time.Now())

	applied, err := db.ResolvePosition(ctx, id, domain.ResultWin, 100)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = db.ResolvePosition(ctx, id, domain.ResultLoss, -100)
	require.NoError(t, err)
	assert.False(t, applied)

	w, err := db.GetWhale(ctx, whaleA)
	require.NoError(t, err)
	assert.Equal(t, 1, w.WinCount)
	assert.Equal(t, 0, w.LossCount)

	p, err := db.GetPosition(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.ResultWin, *p.Result)
	assert.Equal(t, 100.0, *p.PnL)
}

func TestSQLiteStorage_ResolvePosition_NotFound(t *testing.T) {
	db := newStore(t)
	_, err := db.ResolvePosition(context.Background(), 999, domain.ResultWin, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSQLiteStorage_ResolvePosition_ConcurrentSingleIncrement(t *testing.T) {
	db := newStore(t)
	ctx := context.Background()
	seedWhales(t, db, whaleA)
	id := record(t, db, whaleA, marketID('4'), "NO", 80, 0.3, time.Now())

	const workers = 16
	var applied atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := db.ResolvePosition(ctx, id, domain.ResultLoss, -80)
			assert.NoError(t, err)
			if ok {
				applied.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), applied.Load())
	w, err := db.GetWhale(ctx, whaleA)
	require.NoError(t, err)
	assert.Equal(t, 1, w.LossCount)
	assert.Equal(t, 0, w.WinCount)
}

func TestSQLiteStorage_ResolveMarket_Conflict(t *testing.T) {
	db := newStore(t)
	ctx := context.Background()
	m := marketID('5')

	applied, err := db.ResolveMarket(ctx, m, domain.OutcomeYes)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = db.ResolveMarket(ctx, m, domain.OutcomeYes)
	require.NoError(t, err)
	assert.False(t, applied)

	_, err = db.ResolveMarket(ctx, m, domain.OutcomeNo)
	assert.ErrorIs(t, err, domain.ErrOutcomeConflict)

	got, err := db.GetMarket(ctx, m)
	require.NoError(t, err)
	assert.True(t, got.Resolved)
	assert.Equal(t, domain.OutcomeYes, got.Winner)
	assert.False(t, got.ResolvedAt.IsZero())
}

func TestSQLiteStorage_SettleMarket_Scenario(t *testing.T) {
	db := newStore(t)
	ctx := context.Background()
	seedWhales(t, db, whaleA, whaleB)
	m := marketID('6')
	now := time.Now()

	yes := record(t, db, whaleA, m, "YES", 100, 0.4, now)
	no := record(t, db, whaleB, m, "NO", 50, 0.5, now)

	res, err := db.SettleMarket(ctx, domain.MarketSettlement{
		MarketID: m,
		Winner:   domain.OutcomeYes,
		Settlements: []domain.Settlement{
			{PositionID: yes, Result: domain.ResultWin, PnL: 150},
			{PositionID: no, Result: domain.ResultLoss, PnL: -50},
		},
	})
	require.NoError(t, err)
	assert.True(t, res.MarketApplied)
	assert.Len(t, res.Applied, 2)
	assert.Equal(t, 100.0, res.PnL())

	wa, err := db.GetWhale(ctx, whaleA)
	require.NoError(t, err)
	assert.Equal(t, 1, wa.WinCount)
	wb, err := db.GetWhale(ctx, whaleB)
	require.NoError(t, err)
	assert.Equal(t, 1, wb.LossCount)

	market, err := db.GetMarket(ctx, m)
	require.NoError(t, err)
	assert.True(t, market.Resolved)
	assert.Equal(t, domain.OutcomeYes, market.Winner)

	// Reaplicar el mismo settlement no cuenta dos veces.
	res, err = db.SettleMarket(ctx, domain.MarketSettlement{
		MarketID: m,
		Winner:   domain.OutcomeYes,
		Settlements: []domain.Settlement{
			{PositionID: yes, Result: domain.ResultWin, PnL: 150},
		},
	})
	require.NoError(t, err)
	assert.False(t, res.MarketApplied)
	assert.Empty(t, res.Applied)
	assert.Equal(t, 1, res.Skipped)

	wa, err = db.GetWhale(ctx, whaleA)
	require.NoError(t, err)
	assert.Equal(t, 1, wa.WinCount)
}

func TestSQLiteStorage_SettleMarket_ConflictWritesNothing(t *testing.T) {
	db := newStore(t)
	ctx := context.Background()
	seedWhales(t, db, whaleA)
	m := marketID('7')
	id := record(t, db, whaleA, m, "NO", 100, 0.5, time.Now())

	_, err := db.ResolveMarket(ctx, m, domain.OutcomeYes)
	require.NoError(t, err)

	_, err = db.SettleMarket(ctx, domain.MarketSettlement{
		MarketID:    m,
		Winner:      domain.OutcomeNo,
		Settlements: []domain.Settlement{{PositionID: id, Result: domain.ResultWin, PnL: 100}},
	})
	require.ErrorIs(t, err, domain.ErrOutcomeConflict)

	p, err := db.GetPosition(ctx, id)
	require.NoError(t, err)
	assert.False(t, p.Resolved)
	w, err := db.GetWhale(ctx, whaleA)
	require.NoError(t, err)
	assert.Equal(t, 0, w.Resolved())
}

func TestSQLiteStorage_SettleMarket_IgnoresPositionsFromOtherMarkets(t *testing.T) {
	db := newStore(t)
	ctx := context.Background()
	seedWhales(t, db, whaleA)
	other := record(t, db, whaleA, marketID('8'), "YES", 100, 0.5, time.Now())

	res, err := db.SettleMarket(ctx, domain.MarketSettlement{
		MarketID:    marketID('9'),
		Winner:      domain.OutcomeYes,
		Settlements: []domain.Settlement{{PositionID: other, Result: domain.ResultWin, PnL: 100}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)

	p, err := db.GetPosition(ctx, other)
	require.NoError(t, err)
	assert.False(t, p.Resolved)
}

func TestSQLiteStorage_UnresolvedFilters(t *testing.T) {
	db := newStore(t)
	ctx := context.Background()
	seedWhales(t, db, whaleA, whaleB)
	now := time.Now().UTC()

	record(t, db, whaleA, marketID('a'), "YES", 10, 0.5, now.Add(-72*time.Hour))
	record(t, db, whaleB, marketID('a'), "NO", 10, 0.5, now.Add(-71*time.Hour))
	record(t, db, whaleA, marketID('b'), "YES", 10, 0.5, now.Add(-time.Hour))
	record(t, db, whaleA, "will-it-rain-tomorrow", "YES", 10, 0.5, now)
	record(t, db, whaleA, "0x"+strings.Repeat("z", 64), "YES", 10, 0.5, now)

	all, err := db.UnresolvedPositions(ctx, domain.PositionFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 5)

	valid, err := db.UnresolvedPositions(ctx, domain.PositionFilter{ValidIDsOnly: true})
	require.NoError(t, err)
	assert.Len(t, valid, 3)

	ids, err := db.UnresolvedMarketIDs(ctx, domain.PositionFilter{ValidIDsOnly: true})
	require.NoError(t, err)
	assert.Equal(t, []string{marketID('b'), marketID('a')}, ids)

	recent, err := db.UnresolvedMarketIDs(ctx, domain.PositionFilter{ValidIDsOnly: true, Since: now.Add(-48 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, []string{marketID('b')}, recent)

	limited, err := db.UnresolvedMarketIDs(ctx, domain.PositionFilter{ValidIDsOnly: true, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	byMarket, err := db.UnresolvedPositions(ctx, domain.PositionFilter{MarketID: marketID('a')})
	require.NoError(t, err)
	assert.Len(t, byMarket, 2)

	byWhale, err := db.UnresolvedPositions(ctx, domain.PositionFilter{Whale: whaleB})
	require.NoError(t, err)
	assert.Len(t, byWhale, 1)
}

func TestSQLiteStorage_WhaleStatsAndResolvedOrder(t *testing.T) {
	db := newStore(t)
	ctx := context.Background()
	seedWhales(t, db, whaleA, whaleB)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	// Insertadas fuera de orden cronológico.
	late := record(t, db, whaleA, marketID('c'), "YES", 100, 0.5, base.Add(2*time.Hour))
	early := record(t, db, whaleA, marketID('d'), "YES", 100, 0.5, base)
	_, err := db.ResolvePosition(ctx, late, domain.ResultLoss, -100)
	require.NoError(t, err)
	_, err = db.ResolvePosition(ctx, early, domain.ResultWin, 100)
	require.NoError(t, err)
	record(t, db, whaleB, marketID('c'), "NO", 100, 0.5, base)

	resolved, err := db.ResolvedPositions(ctx, whaleA)
	require.NoError(t, err)
	require.Len(t, resolved, 2)
	assert.Equal(t, early, resolved[0].ID)
	assert.Equal(t, late, resolved[1].ID)

	stats, err := db.WhaleStats(ctx, 1)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, whaleA, stats[0].Address)
	assert.Equal(t, 2, stats[0].ResolvedTrades)
	assert.Equal(t, 1, stats[0].Wins)
	assert.Equal(t, 1, stats[0].Losses)
	assert.Equal(t, 0.0, stats[0].TotalPnL)
	assert.Equal(t, 200.0, stats[0].TotalWagered)

	stats, err = db.WhaleStats(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, stats)

	ls, err := db.LedgerStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, ls.Whales)
	assert.Equal(t, 3, ls.Positions)
	assert.Equal(t, 2, ls.Resolved)
	assert.Equal(t, 1, ls.Unresolved)
	assert.Equal(t, 1, ls.Wins)
	assert.Equal(t, 1, ls.Losses)
}

func TestSQLiteStorage_OpenPositionsSince(t *testing.T) {
	db := newStore(t)
	ctx := context.Background()
	seedWhales(t, db, whaleA)
	now := time.Now().UTC()

	record(t, db, whaleA, marketID('e'), "YES", 10, 0.5, now.Add(-30*time.Hour))
	recent := record(t, db, whaleA, marketID('f'), "YES", 10, 0.5, now.Add(-2*time.Hour))

	open, err := db.OpenPositionsSince(ctx, whaleA, now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, recent, open[0].ID)
}

func TestSQLiteStorage_SeenMarkets(t *testing.T) {
	db := newStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	yes, no := 0.40, 0.60

	added, err := db.AddSeenMarket(ctx, domain.SeenMarket{
		ConditionID: marketID('1'), Slug: "old", Question: "Old?",
		FirstSeen: now.Add(-2 * time.Hour), InitialYes: &yes, InitialNo: &no,
	})
	require.NoError(t, err)
	assert.True(t, added)

	added, err = db.AddSeenMarket(ctx, domain.SeenMarket{ConditionID: marketID('1')})
	require.NoError(t, err)
	assert.False(t, added)

	_, err = db.AddSeenMarket(ctx, domain.SeenMarket{
		ConditionID: marketID('2'), FirstSeen: now, InitialYes: &yes,
	})
	require.NoError(t, err)
	_, err = db.AddSeenMarket(ctx, domain.SeenMarket{ConditionID: marketID('3'), FirstSeen: now.Add(-3 * time.Hour)})
	require.NoError(t, err)

	seen, err := db.IsMarketSeen(ctx, marketID('2'))
	require.NoError(t, err)
	assert.True(t, seen)

	due, err := db.MarketsNeedingCheckpoint(ctx, domain.Checkpoint1h, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, marketID('1'), due[0].ConditionID)
	require.NotNil(t, due[0].InitialYes)
	assert.Equal(t, 0.40, *due[0].InitialYes)

	require.NoError(t, db.UpdateCheckpoint(ctx, marketID('1'), domain.Checkpoint1h, 0.5))

	due, err = db.MarketsNeedingCheckpoint(ctx, domain.Checkpoint1h, now, 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	due, err = db.MarketsNeedingCheckpoint(ctx, domain.Checkpoint24h, now, 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	n, err := db.SeenMarketCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	st, err := db.NewMarketStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Total)
	assert.InDelta(t, 25.0, st.AvgGain1h, 1e-9)
}

func TestSQLiteStorage_UpdateCheckpoint_Unknown(t *testing.T) {
	db := newStore(t)
	err := db.UpdateCheckpoint(context.Background(), marketID('1'), domain.Checkpoint("2w"), 0.5)
	assert.Error(t, err)
	err = db.UpdateCheckpoint(context.Background(), marketID('1'), domain.Checkpoint7d, 0.5)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
