package polymarket

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/alejandrodnm/polyswarm/internal/domain"
)

const (
	bookPath         = "/book"
	defaultBookDepth = 50
)

// OrderBook obtiene el libro de órdenes de un token, con bids de mayor a menor
// y asks de menor a mayor, recortado a la profundidad configurada.
func (c *Client) OrderBook(ctx context.Context, tokenID string) (domain.OrderBook, error) {
	if tokenID == "" {
		return domain.OrderBook{}, fmt.Errorf("clob.OrderBook: empty token id")
	}

	q := url.Values{}
	q.Set("token_id", tokenID)
	q.Set("limit", strconv.Itoa(c.bookDepth))

	var resp bookResponse
	if err := c.get(ctx, c.booksLimiter, c.clobBase+bookPath+"?"+q.Encode(), &resp); err != nil {
		return domain.OrderBook{}, fmt.Errorf("clob.OrderBook %s: %w", tokenID, err)
	}

	book := mapOrderBook(tokenID, resp, c.bookDepth)
	slog.Debug("order book fetched",
		"token", tokenID,
		"bids", len(book.Bids),
		"asks", len(book.Asks),
	)
	return book, nil
}
