package polymarket

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/alejandrodnm/polyswarm/internal/domain"
)

// decodeGammaMarkets acepta tanto una lista como {"data": [...]}.
func decodeGammaMarkets(raw json.RawMessage) ([]gammaMarket, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	if raw[0] == '[' {
		var list []gammaMarket
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("decode gamma list: %w", err)
		}
		return list, nil
	}
	var env gammaEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode gamma envelope: %w", err)
	}
	return env.Data, nil
}

// mapListings convierte los DTOs de Gamma a domain.Listing.
// Los mercados sin conditionId se descartan.
func mapListings(raw []gammaMarket) []domain.Listing {
	listings := make([]domain.Listing, 0, len(raw))
	for _, gm := range raw {
		if gm.ConditionID == "" {
			continue
		}
		listings = append(listings, mapListing(gm))
	}
	return listings
}

// mapListing convierte un gammaMarket a domain.Listing.
// Un flag ausente cuenta como el valor "sano": activo, abierto, con book y aceptando órdenes.
func mapListing(gm gammaMarket) domain.Listing {
	end := gm.EndDateISO
	if end == "" {
		end = gm.EndDate
	}
	return domain.Listing{
		ID:              gm.ConditionID,
		Question:        gm.Question,
		Description:     gm.Description,
		Category:        gm.Category,
		Slug:            gm.Slug,
		EndDate:         parseEndDate(end),
		Volume:          firstPositive(gm.Volume24hrClob, gm.VolumeNum, gm.Volume24hr, gm.Volume24Hr, gm.Volume),
		Liquidity:       firstPositive(gm.LiquidityNum, gm.Liquidity, gm.LiquidityClob),
		Active:          boolOr(gm.Active, true),
		Closed:          boolOr(gm.Closed, false),
		Archived:        boolOr(gm.Archived, false),
		EnableOrderBook: boolOr(gm.EnableOrderBook, true),
		AcceptingOrders: boolOr(gm.AcceptingOrders, true),
		Tokens:          mapTokens(gm),
	}
}

// mapTokens empareja clobTokenIds con outcomes y precios por posición.
func mapTokens(gm gammaMarket) []domain.Token {
	tokens := make([]domain.Token, 0, len(gm.ClobTokenIDs))
	for i, id := range gm.ClobTokenIDs {
		if id == "" {
			continue
		}
		t := domain.Token{TokenID: id, Outcome: fmt.Sprintf("Outcome %d", i+1)}
		if i < len(gm.Outcomes) && gm.Outcomes[i] != "" {
			t.Outcome = gm.Outcomes[i]
		}
		if i < len(gm.OutcomePrices) {
			t.Price = domain.ParsePrice(gm.OutcomePrices[i])
		}
		tokens = append(tokens, t)
	}
	return tokens
}

// parseEndDate prueba los formatos que usa Polymarket. Zero si ninguno encaja.
func parseEndDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{
		time.RFC3339,
		"2006-01-02T15:04:05.000Z",
		"2006-01-02T15:04:05Z",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func firstPositive(vals ...flexFloat) float64 {
	for _, v := range vals {
		if v > 0 {
			return float64(v)
		}
	}
	return 0
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// mapOrderBook convierte la respuesta de /book a domain.OrderBook, ordenada y recortada a depth niveles.
func mapOrderBook(tokenID string, r bookResponse, depth int) domain.OrderBook {
	bids, asks := r.Bids, r.Asks
	if r.Book != nil {
		bids, asks = r.Book.Bids, r.Book.Asks
	}
	return domain.OrderBook{
		TokenID: tokenID,
		Bids:    mapBookEntries(bids, false, depth),
		Asks:    mapBookEntries(asks, true, depth),
	}
}

// mapBookEntries convierte entries raw a domain.BookEntry y los ordena.
// ascending=true → menor a mayor (asks), ascending=false → mayor a menor (bids).
func mapBookEntries(raw []bookLevel, ascending bool, depth int) []domain.BookEntry {
	entries := make([]domain.BookEntry, 0, len(raw))
	for _, r := range raw {
		price, size := float64(r.Price), float64(r.Size)
		if price <= 0 || size <= 0 {
			continue
		}
		entries = append(entries, domain.BookEntry{Price: price, Size: size})
	}

	sort.Slice(entries, func(i, j int) bool {
		if ascending {
			return entries[i].Price < entries[j].Price
		}
		return entries[i].Price > entries[j].Price
	})

	if depth > 0 && len(entries) > depth {
		entries = entries[:depth]
	}
	return entries
}
