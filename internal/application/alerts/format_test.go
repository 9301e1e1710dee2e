package alerts_test

import (
	"testing"
	"time"

	"github.com/alejandrodnm/polywhale/internal/application/alerts"
	"github.com/alejandrodnm/polywhale/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestFormatSignal(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	msg := alerts.FormatSignal(domain.Signal{
		Whale:          domain.ProvenWhale{Address: "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", Wins: 30, Losses: 10, WinRate: 75, ROI: 22.5},
		MarketQuestion: "Will <Team> win?",
		Direction:      domain.OutcomeYes,
		WhaleEntry:     0.41,
		MarketPrice:    0.45,
		Edge:           18.2,
		Confidence:     domain.ConfidenceHigh,
		TradeTime:      now.Add(-3 * time.Hour),
		GeneratedAt:    now,
	})

	assert.Contains(t, msg, "[HIGH]")
	assert.Contains(t, msg, "Will &lt;Team&gt; win?")
	assert.Contains(t, msg, "YES</b> @ 0.450")
	assert.Contains(t, msg, "+18.2%")
	assert.Contains(t, msg, "30-10")
	assert.Contains(t, msg, "(3h ago)")
}

func TestFormatConsensus(t *testing.T) {
	msg := alerts.FormatConsensus(domain.ConsensusSignal{
		MarketQuestion: "Q?",
		Direction:      domain.OutcomeNo,
		Whales: []domain.ConsensusMember{
			{Address: "0x1111111111111111", WinRate: 70, Edge: 10},
			{Address: "0x2222222222222222", WinRate: 66, Edge: 8},
		},
		AvgWinRate:  68,
		AvgEdge:     9,
		TotalTrades: 120,
		Confidence:  domain.ConfidenceVeryHigh,
	})

	assert.Contains(t, msg, "[VERY HIGH]")
	assert.Contains(t, msg, "2 whales")
	assert.Contains(t, msg, "0x2222…2222")
}

func TestFormatNewPosition_WithoutHistory(t *testing.T) {
	msg := alerts.FormatNewPosition(
		domain.NewPosition{WhaleAddress: "0xabc", MarketQuestion: "M?", Side: "NO", Size: 12500, EntryPrice: 0.3},
		domain.Whale{Address: "0xabc"},
	)
	assert.Contains(t, msg, "NO $12,500 @ 0.300")
	assert.Contains(t, msg, "no resolved history")
}

func TestFormatRunSummary(t *testing.T) {
	s := domain.RunSummary{Mode: domain.ModeFull, MarketsTotal: 3, Duration: 90 * time.Second, Cancelled: true}
	s.Add(domain.MarketOutcome{Status: domain.MarketSettled, TradesResolved: 2, Wins: 1, Losses: 1, PnL: 1234.4})
	s.Add(domain.MarketOutcome{Status: domain.MarketInconclusive})

	msg := alerts.FormatRunSummary(s)
	assert.Contains(t, msg, "(full)")
	assert.Contains(t, msg, "Checked 2/3 markets in 1m30s")
	assert.Contains(t, msg, "unknown 1")
	assert.Contains(t, msg, "$+1,234")
	assert.Contains(t, msg, "cancelled")
}

func TestFormatPriceMove(t *testing.T) {
	initial := 0.2
	msg := alerts.FormatPriceMove(domain.SeenMarket{Question: "New?", InitialYes: &initial}, domain.Checkpoint1h, 0.3, 50)
	assert.Contains(t, msg, "PRICE MOVE 1h")
	assert.Contains(t, msg, "0.200 → 0.300")
	assert.Contains(t, msg, "+50.0%")
}
