package polymarket_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polyswarm/internal/adapters/polymarket"
)

func TestOrderBook_SortsLevels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/book", r.URL.Path)
		assert.Equal(t, "tok_yes", r.URL.Query().Get("token_id"))
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		w.Write([]byte(`{
			"asset_id": "tok_yes",
			"bids": [{"price": "0.60", "size": "100"}, {"price": "0.70", "size": "20"}, {"price": "0.65", "size": "0"}],
			"asks": [{"price": "0.80", "size": "5"}, {"price": "0.72", "size": "30"}]
		}`))
	}))
	defer srv.Close()

	book, err := polymarket.NewClient(srv.URL, srv.URL).OrderBook(context.Background(), "tok_yes")
	require.NoError(t, err)

	assert.Equal(t, "tok_yes", book.TokenID)
	require.Len(t, book.Bids, 2, "los niveles con size 0 se descartan")
	assert.InDelta(t, 0.70, book.BestBid(), 0.0001)
	assert.InDelta(t, 0.72, book.BestAsk(), 0.0001)
	mid, ok := book.MidPrice()
	require.True(t, ok)
	assert.InDelta(t, 0.71, mid, 0.0001)
}

func TestOrderBook_WrappedAndListLevels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"book": {"bids": [[0.40, 10], [0.45, 3], [0.41, 1]], "asks": []}}`))
	}))
	defer srv.Close()

	client := polymarket.NewClient(srv.URL, srv.URL).WithBookDepth(2)
	book, err := client.OrderBook(context.Background(), "tok")
	require.NoError(t, err)

	require.Len(t, book.Bids, 2, "recortado a la profundidad configurada")
	assert.InDelta(t, 0.45, book.Bids[0].Price, 0.0001)
	assert.InDelta(t, 0.41, book.Bids[1].Price, 0.0001)
	assert.Empty(t, book.Asks)

	mid, ok := book.MidPrice()
	require.True(t, ok)
	assert.InDelta(t, 0.45, mid, 0.0001, "sin asks el mid cae al best bid")
}

func TestOrderBook_EmptyToken(t *testing.T) {
	_, err := polymarket.NewClient("http://unused", "http://unused").OrderBook(context.Background(), "")
	require.Error(t, err)
}

func TestOrderBook_RetriesServerErrors(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"bids": [{"price": "0.5", "size": "1"}], "asks": []}`))
	}))
	defer srv.Close()

	book, err := polymarket.NewClient(srv.URL, srv.URL).OrderBook(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.InDelta(t, 0.5, book.BestBid(), 0.0001)
}
