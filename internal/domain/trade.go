package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PositionResult es el resultado final de una posición resuelta.
type PositionResult string

const (
	ResultWin  PositionResult = "WIN"
	ResultLoss PositionResult = "LOSS"
)

// Position es una apuesta de un whale sobre un lado de un mercado.
// Result y PnL son nil mientras Resolved == false y quedan fijos después.
type Position struct {
	ID             int64
	WhaleAddress   string
	MarketID       string
	MarketQuestion string
	Side           string // nombre del outcome en mayúsculas: YES, NO, ...
	Size           float64
	EntryPrice     float64
	EntryTime      time.Time
	Resolved       bool
	Result         *PositionResult
	PnL            *float64
}

// NewPosition son los datos necesarios para registrar una posición.
type NewPosition struct {
	WhaleAddress   string
	MarketID       string
	MarketQuestion string
	Side           string
	Size           float64
	EntryPrice     float64
	EntryTime      time.Time
}

// PositionFilter restringe la consulta de posiciones abiertas.
type PositionFilter struct {
	ValidIDsOnly bool      // solo condition ids resolubles (0x + 64 hex)
	MarketID     string    // "" = todos
	Whale        string    // "" = todos
	Since        time.Time // zero = sin límite de antigüedad
	Limit        int       // <= 0 = sin límite
}

// Settlement es el resultado calculado para una posición concreta.
type Settlement struct {
	PositionID   int64
	WhaleAddress string
	Result       PositionResult
	PnL          float64
}

// MarketSettlement agrupa la resolución de un mercado con las liquidaciones
// de sus posiciones abiertas. Se aplica en una sola transacción.
type MarketSettlement struct {
	MarketID    string
	Question    string
	Winner      Outcome
	ResolvedAt  time.Time
	Settlements []Settlement
}

// SettleResult describe lo que realmente cambió al aplicar un MarketSettlement.
type SettleResult struct {
	MarketApplied bool // false si el mercado ya estaba resuelto con el mismo outcome
	Applied       []Settlement
	Skipped       int // posiciones ya resueltas por otro proceso
}

// PnL devuelve el total de PnL de las liquidaciones aplicadas.
func (r SettleResult) PnL() float64 {
	total := decimal.Zero
	for _, s := range r.Applied {
		total = total.Add(decimal.NewFromFloat(s.PnL))
	}
	return total.InexactFloat64()
}

// SettlePosition calcula resultado y PnL de una posición contra el ganador.
//
//	WIN:  pnl = size/entry − size   (acciones implícitas menos stake)
//	LOSS: pnl = −size
//
// Una posición ganadora con entry <= 0 devuelve ErrZeroEntryPrice: no se adivina.
func SettlePosition(p Position, winner Outcome) (Settlement, error) {
	s := Settlement{PositionID: p.ID, WhaleAddress: p.WhaleAddress}
	size := decimal.NewFromFloat(p.Size)

	if Outcome(p.Side) != winner {
		s.Result = ResultLoss
		s.PnL = size.Neg().InexactFloat64()
		return s, nil
	}

	if p.EntryPrice <= 0 {
		return s, fmt.Errorf("domain.SettlePosition: position %d: %w", p.ID, ErrZeroEntryPrice)
	}
	entry := decimal.NewFromFloat(p.EntryPrice)
	s.Result = ResultWin
	s.PnL = size.Div(entry).Sub(size).Round(6).InexactFloat64()
	return s, nil
}
