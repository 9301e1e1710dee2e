package domain

import (
	"strings"
	"time"
)

// Whale es un wallet seguido por el tracker. Los contadores solo los
// modifica la resolución de posiciones.
type Whale struct {
	Address     string
	FirstSeen   time.Time
	TotalVolume float64
	WinCount    int
	LossCount   int
	Notes       string
}

// Resolved devuelve el número de posiciones resueltas contabilizadas.
func (w Whale) Resolved() int {
	return w.WinCount + w.LossCount
}

// WinRate devuelve el porcentaje de aciertos (0–100). 0 si no hay resueltas.
func (w Whale) WinRate() float64 {
	n := w.Resolved()
	if n == 0 {
		return 0
	}
	return float64(w.WinCount) / float64(n) * 100
}

// NormalizeAddress devuelve la dirección en minúsculas y sin espacios.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// ShortAddress abrevia una dirección para logs y alertas: 0x1234…abcd.
func ShortAddress(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-4:]
}

// TapeTrade es un trade del tape público (data-api /trades).
type TapeTrade struct {
	ID          string
	Wallet      string
	Pseudonym   string
	ConditionID string
	Title       string
	Outcome     string
	Side        string // BUY | SELL
	Size        float64
	Price       float64
	Timestamp   time.Time
}

// Value devuelve el valor nocional del trade en USDC.
func (t TapeTrade) Value() float64 {
	return t.Size * t.Price
}

// WalletPosition es una posición abierta de un wallet según el feed (data-api /positions).
type WalletPosition struct {
	ConditionID  string
	Title        string
	Outcome      string
	Asset        string
	Size         float64
	AvgPrice     float64
	CurPrice     float64
	CurrentValue float64
	CashPnL      float64
	RealizedPnL  float64
}

// Exposure es el mayor entre el tamaño y el valor actual, que es como se
// filtra el tamaño mínimo de posición.
func (p WalletPosition) Exposure() float64 {
	return max(p.Size, p.CurrentValue)
}
