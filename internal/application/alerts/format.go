// Package alerts formatea los mensajes de alerta (whales, posiciones, señales,
// consensos, liquidaciones) en el subset de HTML que acepta Telegram.
package alerts

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/alejandrodnm/polywhale/internal/domain"
)

// Solo se usan <b>, <i>, <code> y <a>. El texto externo siempre se escapa.

const polymarketEventURL = "https://polymarket.com/event/"

// FormatSignal formatea una señal individual.
func FormatSignal(s domain.Signal) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🎯 <b>WHALE SIGNAL</b> [%s]\n\n", s.Confidence)
	fmt.Fprintf(&sb, "<b>%s</b>\n", esc(domain.Truncate(s.MarketQuestion, 120)))
	fmt.Fprintf(&sb, "Direction: <b>%s</b> @ %.3f\n", s.Direction, s.MarketPrice)
	fmt.Fprintf(&sb, "Edge: <b>%+.1f%%</b>\n\n", s.Edge)
	fmt.Fprintf(&sb, "Whale <code>%s</code>\n", domain.ShortAddress(s.Whale.Address))
	fmt.Fprintf(&sb, "Record: %d-%d (%.1f%% WR, %+.1f%% ROI)\n",
		s.Whale.Wins, s.Whale.Losses, s.Whale.WinRate, s.Whale.ROI)
	fmt.Fprintf(&sb, "Entry: %.3f", s.WhaleEntry)
	if !s.TradeTime.IsZero() {
		fmt.Fprintf(&sb, " (%s ago)", domain.Ago(s.GeneratedAt, s.TradeTime))
	}
	return sb.String()
}

// FormatConsensus formatea un consenso de varios whales.
func FormatConsensus(c domain.ConsensusSignal) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🐋🐋 <b>WHALE CONSENSUS</b> [%s]\n\n", c.Confidence)
	fmt.Fprintf(&sb, "<b>%s</b>\n", esc(domain.Truncate(c.MarketQuestion, 120)))
	fmt.Fprintf(&sb, "Direction: <b>%s</b>\n", c.Direction)
	fmt.Fprintf(&sb, "%d whales | avg WR %.1f%% | avg edge %+.1f%% | %d resolved trades\n\n",
		c.WhaleCount(), c.AvgWinRate, c.AvgEdge, c.TotalTrades)
	for _, w := range c.Whales {
		fmt.Fprintf(&sb, "• <code>%s</code> %.1f%% WR, edge %+.1f%%\n",
			domain.ShortAddress(w.Address), w.WinRate, w.Edge)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// FormatNewWhale formatea el alta de un whale descubierto en el tape.
func FormatNewWhale(address, pseudonym string, volume float64) string {
	name := domain.ShortAddress(address)
	if pseudonym != "" {
		name = esc(pseudonym) + " (" + name + ")"
	}
	return fmt.Sprintf("🐳 <b>NEW WHALE</b>\n\n%s\nVolume: <b>$%s</b>", name, domain.Money(volume))
}

// FormatNewPosition formatea una posición nueva de un whale con su historial.
func FormatNewPosition(p domain.NewPosition, w domain.Whale) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📥 <b>NEW WHALE POSITION</b>\n\n")
	fmt.Fprintf(&sb, "<b>%s</b>\n", esc(domain.Truncate(p.MarketQuestion, 120)))
	fmt.Fprintf(&sb, "%s $%s @ %.3f\n", esc(p.Side), domain.Money(p.Size), p.EntryPrice)
	fmt.Fprintf(&sb, "Whale <code>%s</code>", domain.ShortAddress(p.WhaleAddress))
	if w.Resolved() > 0 {
		fmt.Fprintf(&sb, " | %d-%d (%.1f%% WR)", w.WinCount, w.LossCount, w.WinRate())
	} else {
		sb.WriteString(" | no resolved history")
	}
	return sb.String()
}

// FormatNewMarket formatea un mercado recién listado.
func FormatNewMarket(m domain.MarketInfo) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🆕 <b>NEW MARKET</b>\n\n<b>%s</b>\n", esc(domain.Truncate(m.Question, 140)))
	if m.HasPrices {
		fmt.Fprintf(&sb, "YES %.3f | NO %.3f\n", m.YesPrice, m.NoPrice)
	}
	fmt.Fprintf(&sb, "Vol $%s | Liq $%s", domain.Money(m.Volume), domain.Money(m.Liquidity))
	if m.Slug != "" {
		fmt.Fprintf(&sb, "\n<a href=\"%s%s\">open</a>", polymarketEventURL, esc(m.Slug))
	}
	return sb.String()
}

// FormatPriceMove formatea un movimiento fuerte desde el precio inicial.
func FormatPriceMove(m domain.SeenMarket, cp domain.Checkpoint, current, pct float64) string {
	arrow := "📈"
	if pct < 0 {
		arrow = "📉"
	}
	initial := 0.0
	if m.InitialYes != nil {
		initial = *m.InitialYes
	}
	return fmt.Sprintf("%s <b>PRICE MOVE %s</b>\n\n<b>%s</b>\nYES %.3f → %.3f (<b>%+.1f%%</b>)",
		arrow, cp, esc(domain.Truncate(m.Question, 140)), initial, current, pct)
}

// FormatResolution formatea la liquidación de un mercado.
func FormatResolution(o domain.MarketOutcome) string {
	return fmt.Sprintf("✅ <b>RESOLVED: %s</b>\n\n<b>%s</b>\n%d trades | %d W / %d L | PnL $%s",
		o.Winner, esc(domain.Truncate(o.Question, 140)), o.TradesResolved, o.Wins, o.Losses, domain.SignedMoney(o.PnL))
}

// FormatRunSummary formatea el resumen de una pasada de resolución.
func FormatRunSummary(s domain.RunSummary) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 <b>Resolution run</b> (%s)\n\n", s.Mode)
	fmt.Fprintf(&sb, "Checked %d/%d markets in %s\n", s.MarketsChecked, s.MarketsTotal, s.Duration.Round(time.Second))
	fmt.Fprintf(&sb, "Resolved %d | pending %d | unknown %d | failed %d | skipped %d\n",
		s.MarketsResolved, s.MarketsPending, s.Inconclusive, s.MarketsFailed, s.MarketsSkipped)
	fmt.Fprintf(&sb, "Trades %d (%d W / %d L) | PnL $%s", s.TradesResolved, s.Wins, s.Losses, domain.SignedMoney(s.PnLDelta))
	if s.Cancelled {
		sb.WriteString("\n<i>cancelled before finishing</i>")
	}
	return sb.String()
}

func esc(s string) string {
	return html.EscapeString(s)
}
