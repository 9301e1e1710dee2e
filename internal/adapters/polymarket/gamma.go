package polymarket

import (
	"context"
	"fmt"
	"strings"

	"github.com/alejandrodnm/polywhale/internal/domain"
)

const (
	gammaMarketsPath  = "/markets"
	gammaConditionMax = 20
)

// ListActiveMarkets devuelve los mercados activos y abiertos de Gamma,
// los creados más recientemente primero.
func (c *Client) ListActiveMarkets(ctx context.Context, limit int) ([]domain.MarketInfo, error) {
	if limit <= 0 {
		limit = 100
	}
	url := fmt.Sprintf("%s%s?limit=%d&active=true&closed=false&order=createdAt&ascending=false",
		c.gammaBase, gammaMarketsPath, limit)

	var resp gammaMarketsResponse
	if err := c.get(ctx, c.gammaLimiter, url, &resp); err != nil {
		return nil, fmt.Errorf("gamma.ListActiveMarkets: %w", err)
	}

	markets := make([]domain.MarketInfo, 0, len(resp))
	for _, gm := range resp {
		if gm.ConditionID == "" {
			continue
		}
		markets = append(markets, mapGammaMarket(gm))
	}

	c.log.Debug("gamma active markets fetched", "requested", limit, "count", len(markets))
	return markets, nil
}

// MarketsByCondition obtiene la metadata de Gamma para los condition_ids dados,
// en lotes de gammaConditionMax. Un lote fallido se salta.
func (c *Client) MarketsByCondition(ctx context.Context, conditionIDs []string) (map[string]domain.MarketInfo, error) {
	result := make(map[string]domain.MarketInfo, len(conditionIDs))

	failed := 0
	for i := 0; i < len(conditionIDs); i += gammaConditionMax {
		end := min(i+gammaConditionMax, len(conditionIDs))
		batch := conditionIDs[i:end]

		url := fmt.Sprintf("%s%s?condition_ids=%s&limit=%d",
			c.gammaBase,
			gammaMarketsPath,
			strings.Join(batch, ","),
			gammaConditionMax,
		)

		var resp gammaMarketsResponse
		if err := c.get(ctx, c.gammaLimiter, url, &resp); err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("gamma.MarketsByCondition: %w", ctx.Err())
			}
			failed++
			c.log.Debug("gamma batch failed, skipping",
				"batch", fmt.Sprintf("%d-%d", i, end),
				"err", err,
			)
			continue
		}

		for _, gm := range resp {
			result[gm.ConditionID] = mapGammaMarket(gm)
		}
	}

	if failed > 0 && len(result) == 0 {
		return nil, fmt.Errorf("gamma.MarketsByCondition: all %d batches failed", failed)
	}
	return result, nil
}
