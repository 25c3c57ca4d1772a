package strategy

import (
	"context"
	"fmt"

	"github.com/alejandrodnm/polyswarm/internal/domain"
)

const valueHunterName = "value_hunter"

// ValueHunter busca precios extremos: compra lo muy barato y vende lo muy caro.
type ValueHunter struct {
	balanceFloor

	rng       Rand
	betPct    float64
	threshold float64
}

// NewValueHunter crea la estrategia.
func NewValueHunter(rng Rand) *ValueHunter {
	return &ValueHunter{balanceFloor: 1.0, rng: rng, betPct: 0.15, threshold: 0.1}
}

// Name implementa Generator.
func (s *ValueHunter) Name() string { return valueHunterName }

// Evaluate implementa Generator.
func (s *ValueHunter) Evaluate(_ context.Context, sc Context) (*domain.Proposal, error) {
	if s.rng.Float64() > 0.3 || !sc.Market.HasPrice {
		return nil, nil
	}
	p := sc.Market.Price
	amount := betAmount(sc.Balance, s.betPct, 0.5)

	switch {
	case p < s.threshold:
		return propose(s.Name(), sc, domain.SideBuy, amount, p*1.02,
			fmt.Sprintf("undervalued at %.3f", p)), nil
	case p > 1-s.threshold:
		return propose(s.Name(), sc, domain.SideSell, amount, p*0.98,
			fmt.Sprintf("overvalued at %.3f", p)), nil
	default:
		return nil, nil
	}
}
