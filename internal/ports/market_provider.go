package ports

import (
	"context"

	"github.com/alejandrodnm/polyswarm/internal/domain"
)

// MarketProvider obtiene listings y orderbooks del exchange.
// Ambas llamadas son HTTP con rate limit y pueden fallar de forma transitoria.
type MarketProvider interface {
	// ListMarkets devuelve los mercados activos que cumplen los filtros dados,
	// ordenados por volumen 24h descendente.
	ListMarkets(ctx context.Context, params domain.ListParams) ([]domain.Listing, error)

	// OrderBook devuelve el libro de órdenes de un token.
	OrderBook(ctx context.Context, tokenID string) (domain.OrderBook, error)
}
