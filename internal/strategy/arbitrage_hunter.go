package strategy

import (
	"context"
	"fmt"
	"math"

	"github.com/alejandrodnm/polyswarm/internal/domain"
)

const arbitrageHunterName = "arbitrage_hunter"

// ArbitrageHunter busca precios extremos y books dislocados, donde el mid
// se aleja de forma anómala del lado con más profundidad.
type ArbitrageHunter struct {
	fractionFloor

	betPct    float64
	maxSpread float64
}

// NewArbitrageHunter crea la estrategia.
func NewArbitrageHunter() *ArbitrageHunter {
	return &ArbitrageHunter{fractionFloor: 0.02, betPct: 0.35, maxSpread: 0.10}
}

// Name implementa Generator.
func (s *ArbitrageHunter) Name() string { return arbitrageHunterName }

// Evaluate implementa Generator.
func (s *ArbitrageHunter) Evaluate(_ context.Context, sc Context) (*domain.Proposal, error) {
	if !sc.Market.HasPrice {
		return nil, nil
	}
	p := sc.Market.Price

	var (
		side       domain.Side
		confidence float64
		reason     string
	)
	switch {
	case p < 0.05:
		side, confidence, reason = domain.SideBuy, 0.7, "extreme_low"
	case p > 0.95:
		side, confidence, reason = domain.SideSell, 0.7, "extreme_high"
	case sc.Market.Spread() > s.maxSpread && sc.Market.BestBid > 0:
		// book ancho: entrar pegado al bid
		side, confidence, reason = domain.SideBuy, 0.65, "wide_spread"
		p = sc.Market.BestBid
	default:
		return nil, nil
	}
	if confidence <= 0.6 {
		return nil, nil
	}

	pct := s.betPct * confidence
	if confidence > 0.85 {
		pct *= 1.5
	}
	amount := math.Min(sc.Balance*pct, sc.Balance*0.8)
	return propose(s.Name(), sc, side, amount, p,
		fmt.Sprintf("%s, confidence %.2f", reason, confidence)), nil
}
