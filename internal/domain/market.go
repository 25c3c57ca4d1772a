package domain

import "time"

// Listing es un mercado tal como lo devuelve el proveedor, ya mapeado desde el DTO.
type Listing struct {
	ID              string // conditionId
	Question        string
	Description     string
	Category        string
	Slug            string
	EndDate         time.Time
	Volume          float64 // volumen 24h CLOB o el mejor campo disponible
	Liquidity       float64
	Active          bool
	Closed          bool
	Archived        bool
	EnableOrderBook bool
	AcceptingOrders bool
	Tokens          []Token
}

// Token es un outcome negociable de un mercado.
type Token struct {
	TokenID string
	Outcome string  // "Yes" | "No" | nombre del outcome
	Price   float64 // último precio publicado por el listing (0 si no viene)
}

// ListParams son los filtros que se envían al proveedor al listar mercados.
type ListParams struct {
	Limit        int
	StartDateMin time.Time // solo mercados creados después de esta fecha (zero = sin filtro)
}

// Tradeable indica si el listing pasa los filtros de negociabilidad.
// now se inyecta para poder testear el corte por fecha de cierre.
func (l Listing) Tradeable(now time.Time, minVolume float64) bool {
	if !l.Active || l.Closed || l.Archived {
		return false
	}
	if !l.EnableOrderBook || !l.AcceptingOrders {
		return false
	}
	if len(l.Tokens) == 0 {
		return false
	}
	if !l.EndDate.IsZero() && !l.EndDate.After(now) {
		return false
	}
	return l.Volume >= minVolume
}

// MarketSnapshot es la vista inmutable de un instrumento durante una ronda.
type MarketSnapshot struct {
	TokenID     string
	MarketID    string
	Question    string
	Description string
	Category    string
	Outcome     string
	EndDate     time.Time
	BestBid     float64 // 0 si no hay bids
	BestAsk     float64 // 0 si no hay asks
	Price       float64 // mid price; válido solo si HasPrice
	HasPrice    bool
	Volume      float64
	Liquidity   float64
	FetchedAt   time.Time
}

// Spread devuelve ask - bid, o 0 si falta algún lado.
func (m MarketSnapshot) Spread() float64 {
	if m.BestBid == 0 || m.BestAsk == 0 {
		return 0
	}
	return m.BestAsk - m.BestBid
}

// HoursToResolution devuelve las horas hasta el cierre del mercado.
// Devuelve 0 si EndDate no está definido o ya pasó.
func (m MarketSnapshot) HoursToResolution(now time.Time) float64 {
	if m.EndDate.IsZero() {
		return 0
	}
	h := m.EndDate.Sub(now).Hours()
	if h < 0 {
		return 0
	}
	return h
}

// TruncateQuestion devuelve la pregunta truncada a maxLen caracteres.
// Si la pregunta está vacía usa el id como fallback.
func TruncateQuestion(question, id string, maxLen int) string {
	q := question
	if q == "" {
		if len(id) > 20 {
			q = id[:20] + "..."
		} else {
			q = id
		}
	}
	if len(q) > maxLen {
		q = q[:maxLen-3] + "..."
	}
	return q
}
