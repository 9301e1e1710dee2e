package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RunMode selecciona qué posiciones abiertas entran en una pasada de resolución.
type RunMode string

const (
	// ModeFull revisa todo el conjunto de posiciones abiertas.
	ModeFull RunMode = "full"
	// ModeQuick solo revisa mercados con entradas recientes.
	ModeQuick RunMode = "quick"
)

// MarketOutcomeStatus es lo que pasó con un mercado en una pasada.
type MarketOutcomeStatus string

const (
	MarketSettled      MarketOutcomeStatus = "settled"
	MarketPending      MarketOutcomeStatus = "pending"
	MarketInconclusive MarketOutcomeStatus = "inconclusive"
	MarketSkipped      MarketOutcomeStatus = "skipped"
	MarketFailed       MarketOutcomeStatus = "failed"
)

// MarketOutcome es el resultado de revisar un mercado concreto.
type MarketOutcome struct {
	MarketID       string
	Question       string
	Status         MarketOutcomeStatus
	Winner         Outcome
	TradesResolved int
	Wins           int
	Losses         int
	PnL            float64
	Err            string
}

// RunSummary es el resumen estructurado de una pasada de resolución. Se
// devuelve siempre, aunque fallen mercados individuales.
type RunSummary struct {
	RunID           string
	Mode            RunMode
	StartedAt       time.Time
	Duration        time.Duration
	MarketsTotal    int
	MarketsChecked  int
	MarketsResolved int
	MarketsPending  int
	MarketsFailed   int
	MarketsSkipped  int
	Inconclusive    int
	TradesResolved  int
	Wins            int
	Losses          int
	PnLDelta        float64
	Markets         []MarketOutcome
	Cancelled       bool
}

// Add acumula el resultado de un mercado en el resumen.
func (s *RunSummary) Add(o MarketOutcome) {
	s.Markets = append(s.Markets, o)
	switch o.Status {
	case MarketSettled:
		s.MarketsResolved++
		s.TradesResolved += o.TradesResolved
		s.Wins += o.Wins
		s.Losses += o.Losses
		s.PnLDelta = decimal.NewFromFloat(s.PnLDelta).Add(decimal.NewFromFloat(o.PnL)).Round(6).InexactFloat64()
	case MarketPending:
		s.MarketsPending++
	case MarketInconclusive:
		s.Inconclusive++
	case MarketSkipped:
		s.MarketsSkipped++
	case MarketFailed:
		s.MarketsFailed++
	}
	if o.Status != MarketSkipped {
		s.MarketsChecked++
	}
}
