package domain

import "time"

// Confidence es la clasificación de una señal o de un consenso.
type Confidence string

const (
	ConfidenceLow      Confidence = "LOW"
	ConfidenceMedium   Confidence = "MEDIUM"
	ConfidenceHigh     Confidence = "HIGH"
	ConfidenceVeryHigh Confidence = "VERY HIGH"
)

// ProvenWhale es un whale que supera los umbrales de señal, con sus métricas
// redondeadas a un decimal como se muestran.
type ProvenWhale struct {
	Address        string
	ResolvedTrades int
	Wins           int
	Losses         int
	WinRate        float64
	ROI            float64
	TotalPnL       float64
}

// Signal es una posición abierta de un whale probado con edge positivo.
// Nunca se persiste.
type Signal struct {
	Whale          ProvenWhale
	MarketID       string
	MarketQuestion string
	Direction      Outcome
	WhaleEntry     float64
	CurrentYes     float64
	CurrentNo      float64
	MarketPrice    float64 // precio recomendado: YES para YES, NO para NO
	Edge           float64
	Confidence     Confidence
	TradeTime      time.Time
	GeneratedAt    time.Time
}

// Key identifica el par (mercado, dirección) sobre el que se agrupa el consenso.
func (s Signal) Key() string {
	return s.MarketID + "|" + string(s.Direction)
}

// ConsensusMember es la participación de un whale en un consenso.
type ConsensusMember struct {
	Address string
	WinRate float64
	Edge    float64
	Trades  int
}

// ConsensusSignal agrega >= 2 whales distintos en el mismo mercado y dirección.
type ConsensusSignal struct {
	MarketID       string
	MarketQuestion string
	Direction      Outcome
	Whales         []ConsensusMember
	AvgWinRate     float64
	AvgEdge        float64
	TotalTrades    int
	Confidence     Confidence
}

// WhaleCount devuelve el número de whales distintos en el consenso.
func (c ConsensusSignal) WhaleCount() int {
	return len(c.Whales)
}

// Puntos por tramo: 3 / 2 / 1.
func tierPoints(v, high, mid float64) int {
	switch {
	case v >= high:
		return 3
	case v >= mid:
		return 2
	default:
		return 1
	}
}

// SignalConfidence clasifica una señal individual sumando puntos por
// win rate (70/65), trades resueltos (50/30) y edge (20/15).
// >= 8 HIGH, >= 6 MEDIUM, resto LOW.
func SignalConfidence(winRate float64, resolvedTrades int, edge float64) Confidence {
	score := tierPoints(winRate, 70, 65) +
		tierPoints(float64(resolvedTrades), 50, 30) +
		tierPoints(edge, 20, 15)

	switch {
	case score >= 8:
		return ConfidenceHigh
	case score >= 6:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// ConsensusConfidence clasifica un consenso:
//
//	min(4, whales) + tramo win rate + tramo edge + (2 si trades >= 100, si no 1)
//
// >= 10 VERY HIGH, >= 8 HIGH, >= 6 MEDIUM, resto LOW.
func ConsensusConfidence(whales int, avgWinRate, avgEdge float64, totalTrades int) Confidence {
	score := min(4, whales) + tierPoints(avgWinRate, 70, 65) + tierPoints(avgEdge, 20, 15)
	if totalTrades >= 100 {
		score += 2
	} else {
		score++
	}

	switch {
	case score >= 10:
		return ConfidenceVeryHigh
	case score >= 8:
		return ConfidenceHigh
	case score >= 6:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}
