package ports

import (
	"context"

	"github.com/alejandrodnm/polywhale/internal/domain"
)

// TradeProvider lee el tape público de trades.
type TradeProvider interface {
	RecentTrades(ctx context.Context, limit, offset int) ([]domain.TapeTrade, error)
}

// PositionProvider lee las posiciones abiertas de un wallet.
type PositionProvider interface {
	WalletPositions(ctx context.Context, address string) ([]domain.WalletPosition, error)
}
