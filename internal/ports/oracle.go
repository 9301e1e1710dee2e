package ports

import (
	"context"

	"github.com/alejandrodnm/polywhale/internal/domain"
)

// ResolutionOracle consulta si un mercado cerró y quién ganó.
type ResolutionOracle interface {
	// CheckResolution nunca falla: un error transitorio se devuelve como
	// domain.ResolutionUnknown para reintentar en la siguiente pasada.
	CheckResolution(ctx context.Context, marketID string) domain.Resolution
}

// PriceProvider obtiene los precios actuales de un mercado.
type PriceProvider interface {
	MarketPrices(ctx context.Context, marketID string) (domain.MarketPrices, error)
}
