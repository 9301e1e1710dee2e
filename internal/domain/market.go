package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Outcome es el lado ganador (o apostado) de un mercado binario.
type Outcome string

const (
	OutcomeYes Outcome = "YES"
	OutcomeNo  Outcome = "NO"
)

// ParseOutcome normaliza "Yes", "yes", " NO " etc. Devuelve ErrInvalidOutcome
// para cualquier otro valor.
func ParseOutcome(s string) (Outcome, error) {
	switch Outcome(strings.ToUpper(strings.TrimSpace(s))) {
	case OutcomeYes:
		return OutcomeYes, nil
	case OutcomeNo:
		return OutcomeNo, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidOutcome, s)
}

// Valid reports whether o is YES or NO.
func (o Outcome) Valid() bool {
	return o == OutcomeYes || o == OutcomeNo
}

var conditionIDPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// IsValidConditionID devuelve true si el id tiene el formato que acepta el CLOB
// (0x + 64 hex). Los ids legacy o slugs no se pueden resolver contra el oráculo.
func IsValidConditionID(id string) bool {
	return conditionIDPattern.MatchString(id)
}

// Market es el registro de un mercado en el ledger. Se crea cuando una posición
// lo referencia por primera vez y se resuelve una sola vez.
type Market struct {
	ConditionID string
	Question    string
	Resolved    bool
	Winner      Outcome   // vacío mientras Resolved == false
	ResolvedAt  time.Time // zero mientras Resolved == false
}

// ResolutionStatus distingue un "no cerrado" definitivo de una respuesta inconclusa.
type ResolutionStatus int

const (
	// ResolutionUnknown: timeout, error transitorio, 404 o cerrado sin ganador claro.
	ResolutionUnknown ResolutionStatus = iota
	// ResolutionPending: el feed confirma que el mercado sigue abierto.
	ResolutionPending
	// ResolutionResolved: cerrado con ganador determinado.
	ResolutionResolved
)

func (s ResolutionStatus) String() string {
	switch s {
	case ResolutionPending:
		return "pending"
	case ResolutionResolved:
		return "resolved"
	default:
		return "unknown"
	}
}

// Resolution es la respuesta del oráculo para un mercado.
type Resolution struct {
	MarketID string
	Status   ResolutionStatus
	Winner   Outcome // solo si Status == ResolutionResolved
	Question string
	Reason   string // por qué la respuesta es inconclusa, para logs
}

// IsResolved devuelve true si el oráculo determinó un ganador.
func (r Resolution) IsResolved() bool {
	return r.Status == ResolutionResolved && r.Winner.Valid()
}

// Token es uno de los lados de un mercado en el feed.
type Token struct {
	TokenID string
	Outcome string // "Yes" | "No" | nombre del candidato
	Price   float64
	Winner  bool
}

// MarketInfo es la vista normalizada de un mercado del feed (Gamma o CLOB).
type MarketInfo struct {
	ConditionID string
	Question    string
	Slug        string
	Active      bool
	Closed      bool
	Tokens      []Token
	YesPrice    float64
	NoPrice     float64
	HasPrices   bool
	Volume      float64
	Liquidity   float64
	CreatedAt   time.Time
	EndDate     time.Time
}

// MarketPrices son los precios actuales de un mercado binario.
type MarketPrices struct {
	MarketID string
	Yes      float64
	No       float64
	Active   bool
	Closed   bool
}

// ImpliedProbability devuelve la probabilidad implícita por el mercado para la
// dirección dada: el precio YES para YES y 1 − YES para NO.
func (p MarketPrices) ImpliedProbability(direction Outcome) float64 {
	if direction == OutcomeNo {
		return 1 - p.Yes
	}
	return p.Yes
}
