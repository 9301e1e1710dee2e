package domain

import "time"

// Progress es el estado de una pasada larga de resolución, publicado para
// monitorización externa.
type Progress struct {
	RunID           string    `json:"run_id"`
	Mode            string    `json:"mode"`
	Checked         int       `json:"checked"`
	Total           int       `json:"total"`
	Percent         float64   `json:"pct"`
	MarketsResolved int       `json:"markets_resolved"`
	TradesResolved  int       `json:"trades_resolved"`
	Failed          int       `json:"failed"`
	Done            bool      `json:"done"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// SnapshotWhale es un whale tal como se exporta al dashboard.
type SnapshotWhale struct {
	Address     string  `json:"address"`
	TotalVolume float64 `json:"total_volume"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	WinRate     float64 `json:"win_rate"`
	ROI         float64 `json:"roi"`
	TotalPnL    float64 `json:"total_pnl"`
	Score       float64 `json:"score"`
	Rank        int     `json:"rank"`
}

// SnapshotPosition es una posición exportada.
type SnapshotPosition struct {
	ID         int64     `json:"id"`
	Whale      string    `json:"whale"`
	MarketID   string    `json:"market_id"`
	Question   string    `json:"question"`
	Side       string    `json:"side"`
	Size       float64   `json:"size"`
	EntryPrice float64   `json:"entry_price"`
	EntryTime  time.Time `json:"entry_time"`
	Result     string    `json:"result,omitempty"`
	PnL        *float64  `json:"pnl,omitempty"`
}

// SnapshotSignal es una señal o consenso exportado.
type SnapshotSignal struct {
	MarketID   string   `json:"market_id"`
	Question   string   `json:"question"`
	Direction  string   `json:"direction"`
	Whales     []string `json:"whales"`
	Edge       float64  `json:"edge"`
	WinRate    float64  `json:"win_rate"`
	Price      float64  `json:"price,omitempty"`
	Confidence string   `json:"confidence"`
}

// Snapshot es el documento que se exporta al dashboard. Export only: el core
// nunca lo vuelve a leer.
type Snapshot struct {
	GeneratedAt   time.Time          `json:"generated_at"`
	Stats         LedgerStats        `json:"stats"`
	Whales        []SnapshotWhale    `json:"whales"`
	OpenPositions []SnapshotPosition `json:"open_positions"`
	Resolved      []SnapshotPosition `json:"resolved_positions"`
	Signals       []SnapshotSignal   `json:"signals"`
	Consensus     []SnapshotSignal   `json:"consensus"`
}
