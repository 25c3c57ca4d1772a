package strategy

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/alejandrodnm/polyswarm/internal/domain"
)

const newsSentimentName = "news_sentiment"

var hotTopics = map[string][]string{
	"trump":    {"trump", "donald", "maga"},
	"election": {"election", "electoral", "vote", "ballot"},
	"crypto":   {"bitcoin", "ethereum", "crypto", "btc", "eth"},
	"ai":       {"artificial intelligence", "chatgpt", "openai"},
	"war":      {"war", "ukraine", "russia", "conflict"},
	"economy":  {"inflation", "recession", "fed", "rates", "economy"},
	"sports":   {"nfl", "nba", "super bowl", "championship", "playoffs"},
}

// NewsSentiment opera cambios de sentimiento medidos sobre el histórico de precios,
// con más tamaño en mercados con mucha actividad o temas calientes.
type NewsSentiment struct {
	fractionFloor

	rng    Rand
	betPct float64
}

// NewNewsSentiment crea la estrategia.
func NewNewsSentiment(rng Rand) *NewsSentiment {
	return &NewsSentiment{fractionFloor: 0.03, rng: rng, betPct: 0.3}
}

// Name implementa Generator.
func (s *NewsSentiment) Name() string { return newsSentimentName }

// Evaluate implementa Generator.
func (s *NewsSentiment) Evaluate(_ context.Context, sc Context) (*domain.Proposal, error) {
	if !sc.Market.HasPrice {
		return nil, nil
	}
	p := sc.Market.Price
	trending := isTrending(sc.Market)
	shift, strength := sentimentShift(sc.History())

	var (
		side       domain.Side
		confidence float64
	)
	switch {
	case shift > 0 && p < 0.7:
		side, confidence = domain.SideBuy, 0.6+strength*0.3
	case shift > 0:
		side, confidence = domain.SideSell, 0.4+strength*0.2
	case shift < 0 && p > 0.3:
		side, confidence = domain.SideSell, 0.6+strength*0.3
	case shift < 0:
		side, confidence = domain.SideBuy, 0.4+strength*0.2
	case p < 0.3:
		side, confidence = domain.SideBuy, 0.5
	case p > 0.7:
		side, confidence = domain.SideSell, 0.5
	default:
		side, confidence = domain.SideSell, 0.3
		if s.rng.Float64() < 0.5 {
			side = domain.SideBuy
		}
	}
	if trending {
		confidence = math.Min(confidence*1.3, 0.95)
	}
	if confidence < 0.5 && !trending {
		return nil, nil
	}

	pct := s.betPct * confidence
	if trending {
		pct *= 1.5
	}
	if len(topics(sc.Market.Question)) > 0 {
		pct *= 1.2
	}
	amount := math.Min(sc.Balance*pct, sc.Balance*0.6)
	return propose(s.Name(), sc, side, amount, p,
		fmt.Sprintf("sentiment shift %+d, confidence %.2f", shift, confidence)), nil
}

func isTrending(m domain.MarketSnapshot) bool {
	score := 0
	switch {
	case m.Volume > 100_000:
		score += 3
	case m.Volume > 50_000:
		score += 2
	case m.Volume > 20_000:
		score++
	}
	switch {
	case m.Liquidity > 20_000:
		score += 2
	case m.Liquidity > 10_000:
		score++
	}
	return score >= 4
}

// sentimentShift compara la media de los últimos 5 precios con la de los anteriores.
// Devuelve +1 alcista, -1 bajista o 0 neutral, y la fuerza del cambio en [0,1].
func sentimentShift(history []float64) (int, float64) {
	if len(history) < 2 {
		return 0, 0
	}
	recent := history[max(len(history)-5, 0):]
	older := history[:1]
	if len(history) > 5 {
		older = history[:len(history)-5]
	}
	avgOld, avgNew := mean(older), mean(recent)
	if avgOld <= 0 {
		return 0, 0
	}
	change := (avgNew - avgOld) / avgOld
	strength := math.Min(math.Abs(change), 1)
	switch {
	case change > 0.1:
		return 1, strength
	case change < -0.1:
		return -1, strength
	default:
		return 0, strength
	}
}

func topics(question string) []string {
	q := strings.ToLower(question)
	var out []string
	for topic, terms := range hotTopics {
		for _, term := range terms {
			if strings.Contains(q, term) {
				out = append(out, topic)
				break
			}
		}
	}
	return out
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
