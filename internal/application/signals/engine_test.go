package signals_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alejandrodnm/polywhale/internal/application/schedule"
	"github.com/alejandrodnm/polywhale/internal/application/signals"
	"github.com/alejandrodnm/polywhale/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	whaleA = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	whaleB = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	whaleC = "0xcccccccccccccccccccccccccccccccccccccccc"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// statsA: 20 resueltas, win rate 60, ROI 10 → p = 0.66.
var statsA = domain.WhaleStats{Address: whaleA, ResolvedTrades: 20, Wins: 12, Losses: 8, TotalPnL: 200, TotalWagered: 2000}

// statsB: 40 resueltas, win rate 70, ROI 20 → p = 0.84.
var statsB = domain.WhaleStats{Address: whaleB, ResolvedTrades: 40, Wins: 28, Losses: 12, TotalPnL: 800, TotalWagered: 4000}

// statsC no llega al win rate mínimo.
var statsC = domain.WhaleStats{Address: whaleC, ResolvedTrades: 40, Wins: 22, Losses: 18, TotalPnL: 900, TotalWagered: 4000}

type fakeSource struct {
	stats []domain.WhaleStats
	open  map[string][]domain.Position
	since time.Time
	err   error
}

func (f *fakeSource) WhaleStats(_ context.Context, minResolved int) ([]domain.WhaleStats, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.WhaleStats
	for _, s := range f.stats {
		if s.ResolvedTrades >= minResolved {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSource) OpenPositionsSince(_ context.Context, addr string, since time.Time) ([]domain.Position, error) {
	f.since = since
	return f.open[addr], nil
}

type fakePrices struct {
	prices map[string]domain.MarketPrices
	calls  map[string]int
}

func newFakePrices() *fakePrices {
	return &fakePrices{prices: map[string]domain.MarketPrices{}, calls: map[string]int{}}
}

func (f *fakePrices) set(id string, yes float64) {
	f.prices[id] = domain.MarketPrices{MarketID: id, Yes: yes, No: domain.RoundTo(1-yes, 4), Active: true}
}

func (f *fakePrices) MarketPrices(_ context.Context, id string) (domain.MarketPrices, error) {
	f.calls[id]++
	p, ok := f.prices[id]
	if !ok {
		return domain.MarketPrices{}, errors.New("no such market")
	}
	return p, nil
}

func open(market, side string, entry float64) domain.Position {
	return domain.Position{MarketID: market, MarketQuestion: "Q " + market, Side: side, Size: 10000, EntryPrice: entry, EntryTime: now.Add(-time.Hour)}
}

type countSleeps struct{ n int }

func (c *countSleeps) sleep(ctx context.Context, _ time.Duration) error {
	c.n++
	return ctx.Err()
}

func newEngine(src *fakeSource, prices *fakePrices, sleeps *countSleeps) *signals.Engine {
	th := schedule.NewThrottle(300*time.Millisecond, 0, 0).WithSleep(sleeps.sleep)
	return signals.New(signals.Config{}, src, prices).WithThrottle(th).WithClock(func() time.Time { return now })
}

func TestProvenWhales_GatesAndSortsByROI(t *testing.T) {
	src := &fakeSource{stats: []domain.WhaleStats{statsA, statsB, statsC}}
	e := newEngine(src, newFakePrices(), &countSleeps{})

	got, err := e.ProvenWhales(context.Background())
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, whaleB, got[0].Address)
	assert.Equal(t, whaleA, got[1].Address)
	assert.InDelta(t, 60, got[1].WinRate, 1e-9)
	assert.InDelta(t, 10, got[1].ROI, 1e-9)
}

func TestGenerateSignals_ExplicitZeroThresholds(t *testing.T) {
	// 20 resueltas, win rate 60, ROI 0 → p = 0.6
	flat := domain.WhaleStats{Address: whaleC, ResolvedTrades: 20, Wins: 12, Losses: 8, TotalPnL: 0, TotalWagered: 2000}
	src := &fakeSource{
		stats: []domain.WhaleStats{flat},
		open:  map[string][]domain.Position{whaleC: {open("m-34", "YES", 0.5), open("m-0", "YES", 0.5)}},
	}
	prices := newFakePrices()
	prices.set("m-34", 0.58) // edge 3.4
	prices.set("m-0", 0.6)   // edge 0.0

	// con los defaults el whale no pasa el ROI mínimo
	got, err := newEngine(src, prices, &countSleeps{}).GenerateSignals(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)

	th := schedule.NewThrottle(0, 0, 0).WithSleep((&countSleeps{}).sleep)
	e := signals.New(signals.Config{
		MinROI:  signals.Threshold(0),
		MinEdge: signals.Threshold(0),
	}, src, prices).WithThrottle(th).WithClock(func() time.Time { return now })

	got, err = e.GenerateSignals(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "m-34", got[0].MarketID)
	assert.InDelta(t, 3.4, got[0].Edge, 1e-9)
}

func TestProvenWhales_SourceError(t *testing.T) {
	boom := errors.New("locked")
	e := newEngine(&fakeSource{err: boom}, newFakePrices(), &countSleeps{})
	_, err := e.ProvenWhales(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestGenerateSignals_EdgeThresholdIsStrict(t *testing.T) {
	src := &fakeSource{
		stats: []domain.WhaleStats{statsA},
		open: map[string][]domain.Position{
			whaleA: {open("m-50", "YES", 0.6), open("m-51", "YES", 0.6)},
		},
	}
	prices := newFakePrices()
	prices.set("m-50", 0.6285) // edge 5.0
	prices.set("m-51", 0.628)  // edge 5.1

	e := newEngine(src, prices, &countSleeps{})
	got, err := e.GenerateSignals(context.Background())
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, "m-51", got[0].MarketID)
	assert.InDelta(t, 5.1, got[0].Edge, 1e-9)
	assert.Equal(t, domain.ConfidenceLow, got[0].Confidence)
	assert.Equal(t, now.Add(-24*time.Hour), src.since)
}

func TestGenerateSignals_NoDirectionUsesComplement(t *testing.T) {
	src := &fakeSource{
		stats: []domain.WhaleStats{statsA},
		open:  map[string][]domain.Position{whaleA: {open("m1", "NO", 0.25)}},
	}
	prices := newFakePrices()
	prices.set("m1", 0.7)

	got, err := newEngine(src, prices, &countSleeps{}).GenerateSignals(context.Background())
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, domain.OutcomeNo, got[0].Direction)
	assert.InDelta(t, 120, got[0].Edge, 1e-9)
	assert.InDelta(t, 0.3, got[0].MarketPrice, 1e-9)
	assert.InDelta(t, 0.25, got[0].WhaleEntry, 1e-9)
}

func TestGenerateSignals_SkipsUnpricedAndClosedMarkets(t *testing.T) {
	src := &fakeSource{
		stats: []domain.WhaleStats{statsA},
		open: map[string][]domain.Position{whaleA: {
			open("closed", "YES", 0.4),
			open("missing", "YES", 0.4),
			open("multi", "TRUMP", 0.4),
			open("ok", "YES", 0.4),
		}},
	}
	prices := newFakePrices()
	prices.set("ok", 0.5)
	prices.prices["closed"] = domain.MarketPrices{MarketID: "closed", Yes: 0.5, Active: true, Closed: true}

	got, err := newEngine(src, prices, &countSleeps{}).GenerateSignals(context.Background())
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, "ok", got[0].MarketID)
	assert.Zero(t, prices.calls["multi"])
}

func TestGenerateSignals_SortsByEdgeAndCachesPrices(t *testing.T) {
	src := &fakeSource{
		stats: []domain.WhaleStats{statsA, statsB},
		open: map[string][]domain.Position{
			whaleA: {open("m1", "YES", 0.45)},
			whaleB: {open("m1", "YES", 0.48), open("m2", "YES", 0.5)},
		},
	}
	prices := newFakePrices()
	prices.set("m1", 0.5)
	prices.set("m2", 0.6)
	sleeps := &countSleeps{}

	got, err := newEngine(src, prices, sleeps).GenerateSignals(context.Background())
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.InDelta(t, 68, got[0].Edge, 1e-9) // whaleB en m1
	assert.InDelta(t, 40, got[1].Edge, 1e-9) // whaleB en m2
	assert.InDelta(t, 32, got[2].Edge, 1e-9) // whaleA en m1
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Edge, got[i].Edge)
	}

	assert.Equal(t, 1, prices.calls["m1"])
	assert.Equal(t, 1, prices.calls["m2"])
	assert.Equal(t, 1, sleeps.n)
}

func TestGenerateSignals_NoProvenWhales(t *testing.T) {
	src := &fakeSource{stats: []domain.WhaleStats{statsC}}
	got, err := newEngine(src, newFakePrices(), &countSleeps{}).GenerateSignals(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDetectConsensus_RequiresTwoDistinctWhales(t *testing.T) {
	single := []domain.Signal{{
		Whale: domain.ProvenWhale{Address: whaleA, WinRate: 60, ResolvedTrades: 20}, MarketID: "m1", Direction: domain.OutcomeYes, Edge: 32,
	}}
	assert.Empty(t, signals.DetectConsensus(single))

	// el mismo whale dos veces no cuenta como consenso
	dup := append(single, single[0])
	assert.Empty(t, signals.DetectConsensus(dup))
}

func TestDetectConsensus_AggregatesGroup(t *testing.T) {
	sigs := []domain.Signal{
		{Whale: domain.ProvenWhale{Address: whaleB, WinRate: 70, ResolvedTrades: 40}, MarketID: "m1", MarketQuestion: "Q1", Direction: domain.OutcomeYes, Edge: 68},
		{Whale: domain.ProvenWhale{Address: whaleA, WinRate: 60, ResolvedTrades: 20}, MarketID: "m1", MarketQuestion: "Q1", Direction: domain.OutcomeYes, Edge: 32},
		// misma pregunta, otra dirección: grupo distinto
		{Whale: domain.ProvenWhale{Address: whaleC, WinRate: 61, ResolvedTrades: 25}, MarketID: "m1", Direction: domain.OutcomeNo, Edge: 10},
		{Whale: domain.ProvenWhale{Address: whaleA, WinRate: 60, ResolvedTrades: 20}, MarketID: "m2", Direction: domain.OutcomeYes, Edge: 6},
		{Whale: domain.ProvenWhale{Address: whaleC, WinRate: 61, ResolvedTrades: 25}, MarketID: "m2", Direction: domain.OutcomeYes, Edge: 7},
	}

	got := signals.DetectConsensus(sigs)
	require.Len(t, got, 2)

	c := got[0]
	assert.Equal(t, "m1", c.MarketID)
	assert.Equal(t, domain.OutcomeYes, c.Direction)
	assert.Equal(t, 2, c.WhaleCount())
	assert.InDelta(t, 65, c.AvgWinRate, 1e-9)
	assert.InDelta(t, 50, c.AvgEdge, 1e-9)
	assert.Equal(t, 60, c.TotalTrades)
	assert.Equal(t, domain.ConfidenceHigh, c.Confidence)

	assert.Equal(t, "m2", got[1].MarketID)
	assert.InDelta(t, 6.5, got[1].AvgEdge, 1e-9)
}
