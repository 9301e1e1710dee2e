package notify_test

import (
	"bytes"
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/alejandrodnm/polywhale/internal/adapters/notify"
	"github.com/alejandrodnm/polywhale/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsole_SendStripsHTML(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf)

	err := c.Send(context.Background(), "console", "<b>Will X &amp; Y?</b>\n<code>0xabc</code>")
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Will X & Y?")
	assert.Contains(t, out, "0xabc")
	assert.NotContains(t, out, "<b>")
}

func TestConsole_PrintRanking(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf)

	c.PrintRanking(domain.PerformanceReport{
		GeneratedAt: time.Now(),
		MinResolved: 10,
		Ranked: []domain.Performance{
			{Address: "0x1234567890abcdef1234", TotalTrades: 12, Wins: 9, Losses: 3, WinRate: 75,
				ROI: 15, TotalPnL: 150, ProfitFactor: math.Inf(1), SampleConfidence: 0.24, Rank: 1, Score: 45.1},
		},
		Summary: domain.PerformanceSummary{QualifiedWhales: 1, TotalResolved: 12, TotalPnL: 150, ProfitableWhales: 1, ProfitabilityRate: 100},
	})

	out := buf.String()
	assert.Contains(t, out, "0x1234…1234")
	assert.Contains(t, out, "9-3")
	assert.Contains(t, out, "INF")
	assert.Contains(t, out, "+150")
}

func TestConsole_PrintRankingEmpty(t *testing.T) {
	var buf bytes.Buffer
	notify.NewConsoleWriter(&buf).PrintRanking(domain.PerformanceReport{MinResolved: 10})
	assert.Contains(t, buf.String(), "No qualified whales yet")
}

func TestConsole_PrintRunSummary(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf)

	s := domain.RunSummary{RunID: "abcd1234-0000", Mode: domain.ModeQuick, MarketsTotal: 2}
	s.Add(domain.MarketOutcome{MarketID: "m1", Question: "Rain?", Status: domain.MarketSettled,
		Winner: domain.OutcomeYes, TradesResolved: 2, Wins: 1, Losses: 1, PnL: 100})
	s.Add(domain.MarketOutcome{MarketID: "m2", Status: domain.MarketFailed, Err: "outcome conflict"})
	c.PrintRunSummary(s)

	out := buf.String()
	assert.Contains(t, out, "abcd1234")
	assert.Contains(t, out, "Rain? → YES")
	assert.Contains(t, out, "m2: outcome conflict")
}

func TestConsole_PrintSignals(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf)

	c.PrintSignals(
		[]domain.Signal{{MarketQuestion: strings.Repeat("Q", 60), Direction: domain.OutcomeNo, Edge: 12.3, Confidence: domain.ConfidenceHigh}},
		[]domain.ConsensusSignal{{MarketQuestion: "Both?", Direction: domain.OutcomeYes,
			Whales: []domain.ConsensusMember{{Address: "a"}, {Address: "b"}}, Confidence: domain.ConfidenceMedium}},
	)

	out := buf.String()
	assert.Contains(t, out, "SIGNALS (1) | CONSENSUS (1)")
	assert.Contains(t, out, "...")
	assert.Contains(t, out, "+12.3")
	assert.Contains(t, out, "Both?")
}
