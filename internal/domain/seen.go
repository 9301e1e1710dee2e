package domain

import "time"

// Checkpoint es uno de los instantes en que se vuelve a mirar el precio de
// un mercado nuevo.
type Checkpoint string

const (
	Checkpoint1h  Checkpoint = "1h"
	Checkpoint24h Checkpoint = "24h"
	Checkpoint7d  Checkpoint = "7d"
)

// Checkpoints en el orden en que vencen.
var Checkpoints = []Checkpoint{Checkpoint1h, Checkpoint24h, Checkpoint7d}

// Age devuelve la antigüedad mínima del mercado para que el checkpoint venza.
func (c Checkpoint) Age() time.Duration {
	switch c {
	case Checkpoint1h:
		return time.Hour
	case Checkpoint24h:
		return 24 * time.Hour
	case Checkpoint7d:
		return 7 * 24 * time.Hour
	}
	return 0
}

// Valid reports whether c is one of the known checkpoints.
func (c Checkpoint) Valid() bool {
	return c.Age() > 0
}

// SeenMarket registra un mercado descubierto recién creado, independiente
// del ciclo de vida de las posiciones.
type SeenMarket struct {
	ConditionID string
	Slug        string
	Question    string
	FirstSeen   time.Time
	Volume      float64
	Liquidity   float64
	InitialYes  *float64
	InitialNo   *float64
	Price1h     *float64
	Price24h    *float64
	Price7d     *float64
	Checked1h   bool
	Checked24h  bool
	Checked7d   bool
}

// MoveSince devuelve el cambio porcentual del precio YES respecto al inicial.
// ok = false si no hay precio inicial positivo.
func (m SeenMarket) MoveSince(current float64) (pct float64, ok bool) {
	if m.InitialYes == nil || *m.InitialYes <= 0 {
		return 0, false
	}
	return (current - *m.InitialYes) / *m.InitialYes * 100, true
}

// NewMarketStats resume cuánto se movieron los mercados nuevos.
type NewMarketStats struct {
	Total      int
	AvgGain1h  float64
	AvgGain24h float64
	Winners24h int
	Checked24h int
}
