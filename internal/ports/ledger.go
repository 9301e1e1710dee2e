package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/polywhale/internal/domain"
)

// Ledger es la fuente de verdad de whales, mercados y posiciones.
// Todas las operaciones se aplican completas o fallan completas.
type Ledger interface {
	// UpsertWhale inserta el whale si no existe. No modifica uno existente.
	UpsertWhale(ctx context.Context, address string, volume float64, notes string) (created bool, err error)
	UpdateWhaleVolume(ctx context.Context, address string, volume float64) error
	GetWhale(ctx context.Context, address string) (*domain.Whale, error)
	ListWhales(ctx context.Context) ([]domain.Whale, error)

	EnsureMarket(ctx context.Context, marketID, question string) (created bool, err error)
	GetMarket(ctx context.Context, marketID string) (*domain.Market, error)

	// RecordPosition falla con domain.ErrDuplicatePosition si ya existe
	// una posición para (whale, market, side).
	RecordPosition(ctx context.Context, p domain.NewPosition) (int64, error)
	PositionExists(ctx context.Context, whale, marketID, side string) (bool, error)
	GetPosition(ctx context.Context, id int64) (*domain.Position, error)

	UnresolvedPositions(ctx context.Context, f domain.PositionFilter) ([]domain.Position, error)
	// UnresolvedMarketIDs devuelve los mercados distintos con posiciones abiertas.
	UnresolvedMarketIDs(ctx context.Context, f domain.PositionFilter) ([]string, error)
	// ResolvedPositions devuelve las posiciones resueltas en orden cronológico.
	ResolvedPositions(ctx context.Context, address string) ([]domain.Position, error)

	// ResolvePosition es un no-op (applied = false) si la posición ya estaba resuelta.
	ResolvePosition(ctx context.Context, id int64, result domain.PositionResult, pnl float64) (applied bool, err error)
	// ResolveMarket devuelve domain.ErrOutcomeConflict si ya estaba resuelto con otro ganador.
	ResolveMarket(ctx context.Context, marketID string, winner domain.Outcome) (applied bool, err error)
	// SettleMarket resuelve mercado, posiciones y contadores en una transacción.
	SettleMarket(ctx context.Context, s domain.MarketSettlement) (domain.SettleResult, error)

	WhaleStats(ctx context.Context, minResolved int) ([]domain.WhaleStats, error)
	OpenPositionsSince(ctx context.Context, address string, since time.Time) ([]domain.Position, error)
	LedgerStats(ctx context.Context) (domain.LedgerStats, error)
}

// SeenMarketStore guarda los mercados nuevos descubiertos y sus checkpoints de precio.
type SeenMarketStore interface {
	// AddSeenMarket devuelve false si el mercado ya estaba registrado.
	AddSeenMarket(ctx context.Context, m domain.SeenMarket) (bool, error)
	IsMarketSeen(ctx context.Context, conditionID string) (bool, error)
	MarketsNeedingCheckpoint(ctx context.Context, cp domain.Checkpoint, now time.Time, limit int) ([]domain.SeenMarket, error)
	UpdateCheckpoint(ctx context.Context, conditionID string, cp domain.Checkpoint, yesPrice float64) error
	SeenMarketCount(ctx context.Context) (int, error)
	NewMarketStats(ctx context.Context) (domain.NewMarketStats, error)
}
