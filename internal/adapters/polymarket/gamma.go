package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/alejandrodnm/polyswarm/internal/domain"
)

const (
	gammaMarketsPath = "/markets"
	gammaOrderField  = "volume24hrClob"
	gammaMaxLimit    = 100
)

// ListMarkets devuelve los mercados activos con orderbook habilitado,
// ordenados por volumen 24h CLOB descendente.
func (c *Client) ListMarkets(ctx context.Context, params domain.ListParams) ([]domain.Listing, error) {
	u := c.gammaBase + gammaMarketsPath + "?" + gammaQuery(params).Encode()

	var raw json.RawMessage
	if err := c.get(ctx, c.gammaLimiter, u, &raw); err != nil {
		return nil, fmt.Errorf("gamma.ListMarkets: %w", err)
	}

	markets, err := decodeGammaMarkets(raw)
	if err != nil {
		return nil, fmt.Errorf("gamma.ListMarkets: %w", err)
	}

	listings := mapListings(markets)
	slog.Debug("gamma markets fetched", "raw", len(markets), "listings", len(listings))
	return listings, nil
}

// gammaQuery construye los filtros de GET /markets.
func gammaQuery(params domain.ListParams) url.Values {
	limit := params.Limit
	if limit <= 0 || limit > gammaMaxLimit {
		limit = gammaMaxLimit
	}

	q := url.Values{}
	q.Set("active", "true")
	q.Set("closed", "false")
	q.Set("archived", "false")
	q.Set("enableOrderBook", "true")
	q.Set("order", gammaOrderField)
	q.Set("ascending", "false")
	q.Set("limit", strconv.Itoa(limit))
	if !params.StartDateMin.IsZero() {
		q.Set("start_date_min", params.StartDateMin.UTC().Format("2006-01-02T15:04:05Z"))
	}
	return q
}
