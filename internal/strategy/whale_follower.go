package strategy

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/alejandrodnm/polyswarm/internal/domain"
)

const whaleFollowerName = "whale_follower"

// WhaleFollower copia la dirección del dinero grande cuando el volumen
// es desproporcionado respecto a la liquidez del mercado.
type WhaleFollower struct {
	fractionFloor

	betPct float64
}

// NewWhaleFollower crea la estrategia.
func NewWhaleFollower() *WhaleFollower {
	return &WhaleFollower{fractionFloor: 0.01, betPct: 0.4}
}

// Name implementa Generator.
func (s *WhaleFollower) Name() string { return whaleFollowerName }

// Evaluate implementa Generator.
func (s *WhaleFollower) Evaluate(_ context.Context, sc Context) (*domain.Proposal, error) {
	if !sc.Market.HasPrice {
		return nil, nil
	}
	score := whaleScore(sc.Market)
	if score < 4 {
		return nil, nil
	}
	p := sc.Market.Price
	insider := insiderConfidence(sc.Market)
	side := whaleDirection(sc.History(), p)

	pct := s.betPct * (1 + float64(score)/10) * (1 + insider)
	if sc.Market.Liquidity > 0 {
		pct *= math.Min(1+sc.Market.Volume/sc.Market.Liquidity/10, 2)
	}
	pct = math.Min(pct, 0.7)

	amount := math.Min(sc.Balance*pct, sc.Balance*0.8)
	return propose(s.Name(), sc, side, amount, p,
		fmt.Sprintf("whale score %d, insider %.2f", score, insider)), nil
}

func whaleScore(m domain.MarketSnapshot) int {
	score := 0
	if m.Liquidity > 0 && m.Volume/m.Liquidity > 5 {
		score += 2
	}
	switch {
	case m.Volume > 500_000:
		score += 3
	case m.Volume > 200_000:
		score += 2
	case m.Volume > 100_000:
		score++
	}
	return score
}

func insiderConfidence(m domain.MarketSnapshot) float64 {
	c := 0.0
	if m.Liquidity > 0 {
		impact := m.Volume / m.Liquidity
		if impact > 2 {
			c += 0.3
		}
		if impact > 5 {
			c += 0.2
		}
	}
	q := strings.ToLower(m.Question)
	for _, w := range []string{"tonight", "today", "tomorrow", "hours"} {
		if strings.Contains(q, w) {
			c += 0.15
			break
		}
	}
	if m.Price < 0.2 || m.Price > 0.8 {
		c += 0.1
	}
	return math.Min(c, 0.95)
}

// whaleDirection usa el último movimiento de precio como proxy del flujo de órdenes.
func whaleDirection(history []float64, p float64) domain.Side {
	if len(history) >= 2 {
		prev := history[len(history)-2]
		switch {
		case p > prev:
			return domain.SideBuy
		case p < prev:
			return domain.SideSell
		}
	}
	if p > 0.5 {
		return domain.SideBuy
	}
	return domain.SideSell
}
