package notify

import (
	"context"
	"fmt"
	"html"
	"io"
	"math"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/alejandrodnm/polywhale/internal/domain"
	"github.com/olekukonko/tablewriter"
)

// Console implementa ports.Notifier escribiendo en texto plano, y pinta las
// tablas de ranking, señales y estadísticas para el modo CLI.
type Console struct {
	mu  sync.Mutex
	out io.Writer
	now func() time.Time
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole() *Console {
	return NewConsoleWriter(os.Stdout)
}

// NewConsoleWriter crea un notificador sobre un writer arbitrario (tests).
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w, now: time.Now}
}

var htmlTag = regexp.MustCompile(`<[^>]+>`)

// Send imprime el mensaje sin marcado HTML.
func (c *Console) Send(_ context.Context, destination, text string) error {
	plain := html.UnescapeString(htmlTag.ReplaceAllString(text, ""))
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "[%s] → %s\n%s\n\n", c.now().Format("15:04:05"), destination, plain)
	return nil
}

// PrintRanking imprime el ranking de whales cualificados y el resumen global.
func (c *Console) PrintRanking(r domain.PerformanceReport) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.out, "\n=== WHALE PERFORMANCE (min %d resolved) ===\n", r.MinResolved)
	if len(r.Ranked) == 0 {
		fmt.Fprintln(c.out, "  No qualified whales yet.")
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Whale", "Trades", "W-L", "WR%", "ROI%", "PnL", "PF", "MaxDD", "Conf", "Score")
	for _, p := range r.Ranked {
		table.Append(
			fmt.Sprintf("%d", p.Rank),
			domain.ShortAddress(p.Address),
			fmt.Sprintf("%d", p.TotalTrades),
			fmt.Sprintf("%d-%d", p.Wins, p.Losses),
			fmt.Sprintf("%.1f", p.WinRate),
			fmt.Sprintf("%+.1f", p.ROI),
			fmt.Sprintf("$%s", domain.SignedMoney(p.TotalPnL)),
			pfLabel(p.ProfitFactor),
			fmt.Sprintf("$%s", domain.Money(p.MaxDrawdown)),
			fmt.Sprintf("%.2f", p.SampleConfidence),
			fmt.Sprintf("%.1f", p.Score),
		)
	}
	table.Render()

	s := r.Summary
	fmt.Fprintf(c.out, "\n  Qualified: %d | resolved trades: %d | total PnL: $%s\n",
		s.QualifiedWhales, s.TotalResolved, domain.SignedMoney(s.TotalPnL))
	fmt.Fprintf(c.out, "  Profitable: %d (%.1f%%)\n", s.ProfitableWhales, s.ProfitabilityRate)

	if len(r.Activity) > 0 {
		fmt.Fprintln(c.out, "\n  Recent activity (top whales):")
		for _, a := range r.Activity {
			last := "-"
			if !a.LastEntryAt.IsZero() {
				last = domain.Ago(r.GeneratedAt, a.LastEntryAt) + " ago"
			}
			fmt.Fprintf(c.out, "  %s  %d open, $%s in %s, last %s\n",
				domain.ShortAddress(a.Address), a.OpenTrades, domain.Money(a.OpenVolume), a.Window, last)
		}
	}
	fmt.Fprintln(c.out)
}

// PrintSignals imprime las señales y consensos de una pasada.
func (c *Console) PrintSignals(signals []domain.Signal, consensus []domain.ConsensusSignal) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.out, "\n=== SIGNALS (%d) | CONSENSUS (%d) ===\n", len(signals), len(consensus))
	if len(signals) > 0 {
		table := tablewriter.NewWriter(c.out)
		table.Header("Market", "Dir", "Price", "Edge%", "Whale", "WR%", "Conf")
		for _, s := range signals {
			table.Append(
				domain.Truncate(s.MarketQuestion, 40),
				string(s.Direction),
				fmt.Sprintf("%.3f", s.MarketPrice),
				fmt.Sprintf("%+.1f", s.Edge),
				domain.ShortAddress(s.Whale.Address),
				fmt.Sprintf("%.1f", s.Whale.WinRate),
				string(s.Confidence),
			)
		}
		table.Render()
	}
	if len(consensus) > 0 {
		table := tablewriter.NewWriter(c.out)
		table.Header("Market", "Dir", "Whales", "AvgWR%", "AvgEdge%", "Trades", "Conf")
		for _, cs := range consensus {
			table.Append(
				domain.Truncate(cs.MarketQuestion, 40),
				string(cs.Direction),
				fmt.Sprintf("%d", cs.WhaleCount()),
				fmt.Sprintf("%.1f", cs.AvgWinRate),
				fmt.Sprintf("%+.1f", cs.AvgEdge),
				fmt.Sprintf("%d", cs.TotalTrades),
				string(cs.Confidence),
			)
		}
		table.Render()
	}
	fmt.Fprintln(c.out)
}

// PrintRunSummary imprime el resumen de una pasada de resolución.
func (c *Console) PrintRunSummary(s domain.RunSummary) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.out, "\n=== RESOLUTION RUN %s (%s) ===\n", shortID(s.RunID), s.Mode)
	table := tablewriter.NewWriter(c.out)
	table.Header("Markets", "Checked", "Resolved", "Pending", "Unknown", "Failed", "Skipped", "Trades", "W-L", "PnL")
	table.Append(
		fmt.Sprintf("%d", s.MarketsTotal),
		fmt.Sprintf("%d", s.MarketsChecked),
		fmt.Sprintf("%d", s.MarketsResolved),
		fmt.Sprintf("%d", s.MarketsPending),
		fmt.Sprintf("%d", s.Inconclusive),
		fmt.Sprintf("%d", s.MarketsFailed),
		fmt.Sprintf("%d", s.MarketsSkipped),
		fmt.Sprintf("%d", s.TradesResolved),
		fmt.Sprintf("%d-%d", s.Wins, s.Losses),
		fmt.Sprintf("$%s", domain.SignedMoney(s.PnLDelta)),
	)
	table.Render()

	for _, m := range s.Markets {
		switch m.Status {
		case domain.MarketSettled:
			fmt.Fprintf(c.out, "  ✓ %s → %s (%d trades, $%s)\n",
				marketLabel(m), m.Winner, m.TradesResolved, domain.SignedMoney(m.PnL))
		case domain.MarketFailed:
			fmt.Fprintf(c.out, "  ✗ %s: %s\n", marketLabel(m), m.Err)
		}
	}
	fmt.Fprintf(c.out, "  Duration: %s\n\n", s.Duration.Round(time.Millisecond))
}

// PrintStats imprime el estado del ledger y de los mercados nuevos.
func (c *Console) PrintStats(st domain.LedgerStats, nm domain.NewMarketStats) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintln(c.out, "\n=== LEDGER ===")
	table := tablewriter.NewWriter(c.out)
	table.Header("Whales", "Markets", "Resolved mkts", "Positions", "Resolved", "Open", "W-L", "PnL")
	table.Append(
		fmt.Sprintf("%d", st.Whales),
		fmt.Sprintf("%d", st.Markets),
		fmt.Sprintf("%d", st.ResolvedMarkets),
		fmt.Sprintf("%d", st.Positions),
		fmt.Sprintf("%d", st.Resolved),
		fmt.Sprintf("%d", st.Unresolved),
		fmt.Sprintf("%d-%d", st.Wins, st.Losses),
		fmt.Sprintf("$%s", domain.SignedMoney(st.TotalPnL)),
	)
	table.Render()

	fmt.Fprintf(c.out, "\n  New markets tracked: %d | avg 1h gain %.1f%% | avg 24h gain %.1f%% | 24h winners %d/%d\n\n",
		nm.Total, nm.AvgGain1h, nm.AvgGain24h, nm.Winners24h, nm.Checked24h)
}

// --- helpers ---

func pfLabel(pf float64) string {
	if math.IsInf(pf, 1) {
		return "INF"
	}
	return fmt.Sprintf("%.2f", pf)
}

func marketLabel(m domain.MarketOutcome) string {
	if m.Question != "" {
		return domain.Truncate(m.Question, 50)
	}
	if len(m.MarketID) > 14 {
		return m.MarketID[:12] + "..."
	}
	return m.MarketID
}

func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}
