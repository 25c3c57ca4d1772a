package strategy

import (
	"context"
	"fmt"
	"math"

	"github.com/alejandrodnm/polyswarm/internal/domain"
)

const momentumName = "momentum"

// Momentum sigue al consenso: compra outcomes favoritos que aún no están resueltos.
type Momentum struct {
	balanceFloor

	rng       Rand
	betPct    float64
	threshold float64
}

// NewMomentum crea la estrategia.
func NewMomentum(rng Rand) *Momentum {
	return &Momentum{balanceFloor: 1.0, rng: rng, betPct: 0.2, threshold: 0.65}
}

// Name implementa Generator.
func (s *Momentum) Name() string { return momentumName }

// Evaluate implementa Generator.
func (s *Momentum) Evaluate(_ context.Context, sc Context) (*domain.Proposal, error) {
	if s.rng.Float64() > 0.4 || !sc.Market.HasPrice {
		return nil, nil
	}
	p := sc.Market.Price
	if p <= s.threshold || p >= 0.95 {
		return nil, nil
	}
	amount := betAmount(sc.Balance, s.betPct, 0.5)
	target := math.Min(0.99, p*1.03)
	return propose(s.Name(), sc, domain.SideBuy, amount, target,
		fmt.Sprintf("riding momentum at %.3f", p)), nil
}
