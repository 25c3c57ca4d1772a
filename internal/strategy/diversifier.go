package strategy

import (
	"context"
	"fmt"

	"github.com/alejandrodnm/polyswarm/internal/domain"
)

const diversifierName = "diversifier"

// Diversifier reparte apuestas pequeñas entre muchos mercados distintos.
// Nunca entra dos veces en el mismo token y se detiene al llegar a maxMarkets posiciones.
type Diversifier struct {
	rng        Rand
	betPct     float64
	maxMarkets int
	minBalance float64
}

// NewDiversifier crea la estrategia.
func NewDiversifier(rng Rand) *Diversifier {
	return &Diversifier{rng: rng, betPct: 0.05, maxMarkets: 20, minBalance: 0.5}
}

// Name implementa Generator.
func (s *Diversifier) Name() string { return diversifierName }

// Continue implementa Continuer: para al quedarse sin cash o al completar maxMarkets posiciones.
func (s *Diversifier) Continue(_, balance float64, mem domain.AgentMemory) bool {
	return balance >= s.minBalance && len(mem.Positions) < s.maxMarkets
}

// Evaluate implementa Generator.
func (s *Diversifier) Evaluate(_ context.Context, sc Context) (*domain.Proposal, error) {
	if sc.Shares > 0 || len(sc.Memory.Positions) >= s.maxMarkets {
		return nil, nil
	}
	if s.rng.Float64() > 0.5 || !sc.Market.HasPrice {
		return nil, nil
	}
	p := sc.Market.Price
	if p <= 0.05 || p >= 0.95 {
		return nil, nil
	}

	side, target := domain.SideBuy, p*1.01
	if p >= 0.5 {
		side, target = domain.SideSell, p*0.99
	}
	amount := betAmount(sc.Balance, s.betPct, 0.25)
	return propose(s.Name(), sc, side, amount, clampPrice(target),
		fmt.Sprintf("spreading risk (%d/%d markets)", len(sc.Memory.Positions)+1, s.maxMarkets)), nil
}
