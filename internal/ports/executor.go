package ports

import (
	"context"

	"github.com/alejandrodnm/polyswarm/internal/domain"
)

// OrderPlacer submits orders to the exchange. One request, one synchronous answer.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.PlacedOrder, error)
}
