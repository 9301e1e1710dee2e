package polymarket

import (
	"context"
	"fmt"
	"net/url"

	"github.com/alejandrodnm/polywhale/internal/domain"
)

// RecentTrades lee una página del tape global de trades del data-api.
func (c *Client) RecentTrades(ctx context.Context, limit, offset int) ([]domain.TapeTrade, error) {
	if limit <= 0 {
		limit = 500
	}
	u := fmt.Sprintf("%s/trades?limit=%d&offset=%d", c.dataBase, limit, offset)

	var resp []dataTrade
	if err := c.get(ctx, c.dataLimiter, u, &resp); err != nil {
		return nil, fmt.Errorf("data-api.RecentTrades: %w", err)
	}

	trades := make([]domain.TapeTrade, 0, len(resp))
	for _, rt := range resp {
		if t, ok := mapTapeTrade(rt); ok {
			trades = append(trades, t)
		}
	}

	c.log.Debug("fetched trades page", "offset", offset, "count", len(trades))
	return trades, nil
}

// WalletPositions devuelve las posiciones abiertas de un wallet.
func (c *Client) WalletPositions(ctx context.Context, address string) ([]domain.WalletPosition, error) {
	addr := domain.NormalizeAddress(address)
	u := fmt.Sprintf("%s/positions?user=%s", c.dataBase, url.QueryEscape(addr))

	var resp []dataPosition
	if err := c.get(ctx, c.dataLimiter, u, &resp); err != nil {
		return nil, fmt.Errorf("data-api.WalletPositions %s: %w", domain.ShortAddress(addr), err)
	}

	positions := make([]domain.WalletPosition, 0, len(resp))
	for _, rp := range resp {
		if rp.ConditionID == "" {
			continue
		}
		positions = append(positions, mapWalletPosition(rp))
	}
	return positions, nil
}
