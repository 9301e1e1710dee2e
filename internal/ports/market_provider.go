package ports

import (
	"context"

	"github.com/alejandrodnm/polywhale/internal/domain"
)

// MarketProvider lista mercados del feed de Gamma.
type MarketProvider interface {
	// ListActiveMarkets devuelve los mercados activos y no cerrados,
	// los más recientes primero.
	ListActiveMarkets(ctx context.Context, limit int) ([]domain.MarketInfo, error)
	// MarketsByCondition obtiene varios mercados por condition id. Los ids
	// sin datos no aparecen en el resultado.
	MarketsByCondition(ctx context.Context, conditionIDs []string) (map[string]domain.MarketInfo, error)
}
