package strategy

import (
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/alejandrodnm/polyswarm/internal/domain"
)

const scalperName = "scalper"

// Patrones de micro-movimiento detectados sobre el histórico de precios.
const (
	patternUnknown      = "unknown"
	patternMomentumUp   = "momentum_up"
	patternMomentumDown = "momentum_down"
	patternReversalUp   = "reversal_up"
	patternReversalDown = "reversal_down"
	patternBreakoutUp   = "breakout_up"
	patternBreakoutDown = "breakout_down"
	patternRanging      = "ranging"
)

// Scalper hace trades pequeños y frecuentes sobre micro-patrones de precio.
// Solo opera en mercados con volumen y liquidez altos.
type Scalper struct {
	fractionFloor

	betPct       float64
	minVolume    float64
	minLiquidity float64
}

// NewScalper crea la estrategia.
func NewScalper() *Scalper {
	return &Scalper{fractionFloor: 0.05, betPct: 0.15, minVolume: 10_000, minLiquidity: 5_000}
}

// Name implementa Generator.
func (s *Scalper) Name() string { return scalperName }

// Evaluate implementa Generator.
func (s *Scalper) Evaluate(_ context.Context, sc Context) (*domain.Proposal, error) {
	if !sc.Market.HasPrice {
		return nil, nil
	}
	prices := sc.History()
	if len(prices) < 3 {
		return nil, nil
	}
	p := sc.Market.Price

	pattern := detectPattern(prices)
	side, confidence, ok := scalpDecision(pattern, p, spreadOpportunity(p))
	if !ok {
		return nil, nil
	}
	if sc.Market.Volume < s.minVolume || sc.Market.Liquidity < s.minLiquidity {
		return nil, nil
	}

	pct := s.betPct * confidence
	switch {
	case sc.Market.Liquidity > 50_000:
		pct *= 1.3
	case sc.Market.Liquidity > 20_000:
		pct *= 1.15
	}
	amount := math.Min(sc.Balance*pct, sc.Balance*0.3)
	return propose(s.Name(), sc, side, amount, p,
		fmt.Sprintf("%s pattern, confidence %.2f", pattern, confidence)), nil
}

// detectPattern clasifica los últimos movimientos de precio.
func detectPattern(prices []float64) string {
	if len(prices) < 3 {
		return patternUnknown
	}
	changes := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		changes = append(changes, prices[i]-prices[i-1])
	}
	n := len(changes)

	switch {
	case changes[n-1] > 0 && changes[n-2] > 0:
		return patternMomentumUp
	case changes[n-1] < 0 && changes[n-2] < 0:
		return patternMomentumDown
	}
	if n >= 3 {
		switch {
		case changes[n-3] > 0 && changes[n-2] > 0 && changes[n-1] < 0:
			return patternReversalDown
		case changes[n-3] < 0 && changes[n-2] < 0 && changes[n-1] > 0:
			return patternReversalUp
		}
	}

	last := prices[len(prices)-1]
	prev := prices[:len(prices)-1]
	switch {
	case last > slices.Max(prev)*1.01:
		return patternBreakoutUp
	case last < slices.Min(prev)*0.99:
		return patternBreakoutDown
	}
	return patternRanging
}

// spreadOpportunity estima el margen capturable según lo extremo del precio.
func spreadOpportunity(p float64) float64 {
	switch {
	case p < 0.1 || p > 0.9:
		return 0.05
	case p < 0.2 || p > 0.8:
		return 0.03
	case p < 0.3 || p > 0.7:
		return 0.02
	default:
		return 0.01
	}
}

func scalpDecision(pattern string, p, spreadOpp float64) (domain.Side, float64, bool) {
	switch {
	case pattern == patternMomentumUp && p < 0.85:
		return domain.SideBuy, 0.7, true
	case pattern == patternMomentumDown && p > 0.15:
		return domain.SideSell, 0.7, true
	case pattern == patternReversalUp && p < 0.7:
		return domain.SideBuy, 0.6, true
	case pattern == patternReversalDown && p > 0.3:
		return domain.SideSell, 0.6, true
	case pattern == patternBreakoutUp && p < 0.8:
		return domain.SideBuy, 0.75, true
	case pattern == patternBreakoutDown && p > 0.2:
		return domain.SideSell, 0.75, true
	case pattern == patternRanging && p < 0.4:
		return domain.SideBuy, 0.5, true
	case pattern == patternRanging && p > 0.6:
		return domain.SideSell, 0.5, true
	}
	if spreadOpp >= 0.03 {
		switch {
		case p < 0.2:
			return domain.SideBuy, 0.8, true
		case p > 0.8:
			return domain.SideSell, 0.8, true
		}
	}
	return "", 0, false
}
