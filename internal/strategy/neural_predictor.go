package strategy

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/alejandrodnm/polyswarm/internal/domain"
)

const neuralPredictorName = "neural_predictor"

// NeuralPredictor combina señales de precio extremo, momentum y categoría
// en una votación ponderada y dimensiona con Kelly fraccional.
type NeuralPredictor struct {
	fractionFloor

	rng       Rand
	threshold float64
	betPct    float64
	maxBetPct float64
}

// NewNeuralPredictor crea la estrategia.
func NewNeuralPredictor(rng Rand) *NeuralPredictor {
	return &NeuralPredictor{fractionFloor: 0.05, rng: rng, threshold: 0.65, betPct: 0.25, maxBetPct: 0.5}
}

// Name implementa Generator.
func (s *NeuralPredictor) Name() string { return neuralPredictorName }

// Evaluate implementa Generator.
func (s *NeuralPredictor) Evaluate(_ context.Context, sc Context) (*domain.Proposal, error) {
	if !sc.Market.HasPrice {
		return nil, nil
	}
	p := sc.Market.Price
	confidence := s.confidence(sc.Market, sc.Memory.ToolScores[s.Name()])
	if confidence < s.threshold {
		return nil, nil
	}

	var buy, sell float64
	switch {
	case p < 0.15:
		buy += 0.8
	case p > 0.85:
		sell += 0.8
	}
	if h := sc.History(); len(h) >= 2 {
		last := h[len(h)-2]
		switch {
		case p > last*1.05:
			buy += 0.6
		case p < last*0.95:
			sell += 0.6
		}
	}

	var side domain.Side
	switch {
	case buy == 0 && sell == 0:
		// exploración sesgada hacia el lado barato
		side = domain.SideSell
		if s.rng.Float64() < 1-p {
			side = domain.SideBuy
		}
	case buy > sell:
		side = domain.SideBuy
	default:
		side = domain.SideSell
	}

	odds := 1 - p
	if side == domain.SideSell {
		odds = p
	}
	pct := kellyFraction(confidence, odds, s.betPct, s.maxBetPct)
	amount := math.Min(sc.Balance*pct, sc.Balance*0.9)
	return propose(s.Name(), sc, side, amount, p,
		fmt.Sprintf("confidence %.2f, kelly %.2f", confidence, pct)), nil
}

// confidence parte del score aprendido (0.5 si no hay) y suma boosts por
// precio extremo y volumen.
func (s *NeuralPredictor) confidence(m domain.MarketSnapshot, learned float64) float64 {
	base := 0.5
	if learned > 0 {
		base = learned
	}
	switch {
	case m.Price < 0.1 || m.Price > 0.9:
		base += 0.2
	case m.Price < 0.2 || m.Price > 0.8:
		base += 0.1
	}
	switch {
	case m.Volume > 50_000:
		base += 0.15
	case m.Volume > 20_000:
		base += 0.1
	}
	if c := strings.ToLower(m.Category); c == "politics" || c == "crypto" || c == "sports" {
		base += 0.05
	}
	return math.Min(base, 0.95)
}
