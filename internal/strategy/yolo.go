package strategy

import (
	"context"
	"fmt"

	"github.com/alejandrodnm/polyswarm/internal/domain"
)

const yoloName = "yolo"

// YOLO apuesta fuerte y al azar en mercados con precio no extremo.
type YOLO struct {
	balanceFloor

	rng    Rand
	betPct float64
}

// NewYOLO crea la estrategia.
func NewYOLO(rng Rand) *YOLO {
	return &YOLO{balanceFloor: 0.5, rng: rng, betPct: 0.3}
}

// Name implementa Generator.
func (s *YOLO) Name() string { return yoloName }

// Evaluate implementa Generator.
func (s *YOLO) Evaluate(_ context.Context, sc Context) (*domain.Proposal, error) {
	if s.rng.Float64() > 0.85 {
		return nil, nil
	}
	p := sc.Market.Price
	if !sc.Market.HasPrice || p <= 0.01 || p >= 0.99 {
		return nil, nil
	}

	side := domain.SideSell
	if s.rng.Float64() > 0.5 {
		side = domain.SideBuy
	}
	amount := betAmount(sc.Balance, s.betPct, 0.5)
	target := clampPrice(p * uniform(s.rng, 0.95, 1.05))
	return propose(s.Name(), sc, side, amount, target, fmt.Sprintf("gut feeling at %.3f", p)), nil
}
