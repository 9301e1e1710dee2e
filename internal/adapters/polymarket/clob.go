package polymarket

import (
	"context"
	"fmt"
	"net/url"

	"github.com/alejandrodnm/polywhale/internal/domain"
)

const clobMarketsPath = "/markets/"

// CheckResolution consulta el CLOB y aplica la política de resolución.
// Nunca devuelve error: 404, timeouts y respuestas raras son ResolutionUnknown.
func (c *Client) CheckResolution(ctx context.Context, marketID string) domain.Resolution {
	m, err := c.fetchClobMarket(ctx, marketID)
	if err != nil {
		reason := err.Error()
		if IsNotFound(err) {
			reason = "market not found"
		}
		c.log.Debug("resolution check inconclusive", "market", marketID, "err", err)
		return domain.Resolution{
			MarketID: marketID,
			Status:   domain.ResolutionUnknown,
			Reason:   reason,
		}
	}
	return mapResolution(marketID, m)
}

// MarketPrices devuelve los precios YES/NO actuales según el CLOB.
func (c *Client) MarketPrices(ctx context.Context, marketID string) (domain.MarketPrices, error) {
	m, err := c.fetchClobMarket(ctx, marketID)
	if err != nil {
		return domain.MarketPrices{}, fmt.Errorf("clob.MarketPrices: %w", err)
	}
	info := mapClobMarket(m)
	if !info.HasPrices {
		return domain.MarketPrices{}, fmt.Errorf("clob.MarketPrices: %s: no prices", marketID)
	}
	return domain.MarketPrices{
		MarketID: marketID,
		Yes:      info.YesPrice,
		No:       info.NoPrice,
		Active:   info.Active,
		Closed:   info.Closed,
	}, nil
}

func (c *Client) fetchClobMarket(ctx context.Context, marketID string) (clobMarket, error) {
	var m clobMarket
	u := c.clobBase + clobMarketsPath + url.PathEscape(marketID)
	if err := c.get(ctx, c.clobLimiter, u, &m); err != nil {
		return m, err
	}
	return m, nil
}
