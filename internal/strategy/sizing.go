package strategy

import (
	"math"

	"github.com/alejandrodnm/polyswarm/internal/domain"
)

// betAmount devuelve balance×pct acotado a [floor, balance].
func betAmount(balance, pct, floor float64) float64 {
	return math.Max(floor, math.Min(balance*pct, balance))
}

// clampPrice mantiene el precio límite dentro de [0.01, 0.99].
func clampPrice(p float64) float64 {
	return math.Min(0.99, math.Max(0.01, p))
}

// kellyFraction aplica Kelly fraccional (25%) y lo acota a [lo, hi].
// odds es el precio del lado contrario: lo que se gana por unidad arriesgada.
func kellyFraction(confidence, odds, lo, hi float64) float64 {
	p := confidence
	q := 1 - p
	var b float64
	if odds > 1 {
		b = odds - 1
	} else if odds < 1 {
		b = 1/(1-odds) - 1
	}
	kelly := 0.0
	if b > 0 {
		kelly = (p*b - q) / b
	}
	return math.Max(lo, math.Min(kelly*0.25, hi))
}

// propose construye la propuesta con el nombre de la estrategia como origen.
func propose(name string, sc Context, side domain.Side, amount, price float64, reasoning string) *domain.Proposal {
	return &domain.Proposal{
		TokenID:   sc.Market.TokenID,
		Side:      side,
		Amount:    amount,
		Price:     price,
		Reasoning: reasoning,
		Source:    name,
	}
}
