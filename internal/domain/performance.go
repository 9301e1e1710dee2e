package domain

import "time"

// WhaleStats son los agregados de posiciones resueltas de un whale,
// calculados por el ledger.
type WhaleStats struct {
	Address        string
	ResolvedTrades int
	Wins           int
	Losses         int
	TotalPnL       float64
	TotalWagered   float64
}

// WinRate en porcentaje.
func (s WhaleStats) WinRate() float64 {
	if s.ResolvedTrades == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.ResolvedTrades) * 100
}

// ROI en porcentaje.
func (s WhaleStats) ROI() float64 {
	return ROI(s.TotalPnL, s.TotalWagered)
}

// Performance son las métricas de habilidad de un whale sobre su historial resuelto.
type Performance struct {
	Address          string
	TotalTrades      int
	Wins             int
	Losses           int
	WinRate          float64
	TotalWagered     float64
	TotalPnL         float64
	ROI              float64
	AvgBet           float64
	AvgWin           float64
	AvgLoss          float64
	ProfitFactor     float64
	MaxDrawdown      float64
	Consistency      float64
	SampleConfidence float64
	Profitable       bool
	LastTrade        time.Time

	// Asignados por Rank.
	Rank  int
	Score float64
}

// RecentActivity es la actividad abierta reciente de un whale.
type RecentActivity struct {
	Address     string
	Window      time.Duration
	OpenTrades  int
	OpenVolume  float64
	LastEntryAt time.Time
}

// PerformanceSummary resume el conjunto de whales calificados.
type PerformanceSummary struct {
	QualifiedWhales   int
	TotalResolved     int
	TotalPnL          float64
	ProfitableWhales  int
	ProfitabilityRate float64 // % de whales calificados con PnL > 0
}

// PerformanceReport es el informe completo del analizador.
type PerformanceReport struct {
	GeneratedAt time.Time
	MinResolved int
	Ranked      []Performance
	Summary     PerformanceSummary
	Activity    []RecentActivity
}

// LedgerStats es el estado global del ledger.
type LedgerStats struct {
	Whales          int     `json:"whales"`
	Markets         int     `json:"markets"`
	ResolvedMarkets int     `json:"resolved_markets"`
	Positions       int     `json:"positions"`
	Resolved        int     `json:"resolved"`
	Unresolved      int     `json:"unresolved"`
	Wins            int     `json:"wins"`
	Losses          int     `json:"losses"`
	TotalPnL        float64 `json:"total_pnl"`
}
