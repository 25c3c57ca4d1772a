package strategy

import (
	"context"
	"fmt"

	"github.com/alejandrodnm/polyswarm/internal/domain"
)

const contrarianName = "contrarian"

// Contrarian apuesta contra el consenso.
type Contrarian struct {
	balanceFloor

	rng       Rand
	betPct    float64
	consensus float64
}

// NewContrarian crea la estrategia.
func NewContrarian(rng Rand) *Contrarian {
	return &Contrarian{balanceFloor: 1.0, rng: rng, betPct: 0.18, consensus: 0.70}
}

// Name implementa Generator.
func (s *Contrarian) Name() string { return contrarianName }

// Evaluate implementa Generator.
func (s *Contrarian) Evaluate(_ context.Context, sc Context) (*domain.Proposal, error) {
	if s.rng.Float64() > 0.35 || !sc.Market.HasPrice {
		return nil, nil
	}
	p := sc.Market.Price
	amount := betAmount(sc.Balance, s.betPct, 0.5)

	switch {
	case p > s.consensus && p < 0.95:
		return propose(s.Name(), sc, domain.SideSell, amount, p*0.97,
			fmt.Sprintf("fading consensus at %.3f", p)), nil
	case p < 1-s.consensus && p > 0.05:
		return propose(s.Name(), sc, domain.SideBuy, amount, p*1.03,
			fmt.Sprintf("fading consensus at %.3f", p)), nil
	default:
		return nil, nil
	}
}
