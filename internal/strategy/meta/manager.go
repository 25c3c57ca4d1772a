// Package meta contiene estrategias que combinan otras estrategias como herramientas.
package meta

import (
	"context"
	"fmt"
	"math"

	"github.com/alejandrodnm/polyswarm/internal/domain"
	"github.com/alejandrodnm/polyswarm/internal/signals"
	"github.com/alejandrodnm/polyswarm/internal/strategy"
)

const ManagerName = "manager"

// ManagerConfig ajusta la selección y el tamaño de apuesta del manager.
type ManagerConfig struct {
	Threshold  float64 // confianza mínima de la señal elegida
	DefaultBet float64 // fracción del balance si la señal no sugiere una
	MaxBet     float64
	MinBalance float64 // fracción del capital inicial por debajo de la cual se detiene
}

// DefaultManagerConfig devuelve 0.58 / 18% / 35% y parada al 5%.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{Threshold: 0.58, DefaultBet: 0.18, MaxBet: 0.35, MinBalance: 0.05}
}

// Manager consulta todas las herramientas y sigue la de mejor score combinado.
// El score de cada herramienta se aprende en la memoria del agente.
type Manager struct {
	tools *signals.Registry
	cfg   ManagerConfig
}

// NewManager crea el manager sobre el registry de herramientas dado.
func NewManager(tools *signals.Registry, cfg ManagerConfig) *Manager {
	def := DefaultManagerConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.DefaultBet <= 0 {
		cfg.DefaultBet = def.DefaultBet
	}
	if cfg.MaxBet <= 0 {
		cfg.MaxBet = def.MaxBet
	}
	if cfg.MinBalance <= 0 {
		cfg.MinBalance = def.MinBalance
	}
	return &Manager{tools: tools, cfg: cfg}
}

// Name implementa strategy.Generator.
func (m *Manager) Name() string { return ManagerName }

// Continue implementa strategy.Continuer.
func (m *Manager) Continue(initial, balance float64, _ domain.AgentMemory) bool {
	return balance >= initial*m.cfg.MinBalance
}

// Evaluate implementa strategy.Generator.
func (m *Manager) Evaluate(ctx context.Context, sc strategy.Context) (*domain.Proposal, error) {
	sigs := m.tools.EvaluateAll(ctx, sc)

	var (
		bestName  string
		bestScore float64
		best      *domain.ToolSignal
	)
	for _, name := range m.tools.Names() {
		sig := sigs[name]
		if sig == nil || !sig.Side.Valid() {
			continue
		}
		combined := combinedScore(toolScore(sc.Memory.ToolScores, name), sig.Confidence)
		if combined > bestScore {
			bestName, bestScore, best = name, combined, sig
		}
	}
	if best == nil || best.Confidence < m.cfg.Threshold {
		return nil, nil
	}

	pct := best.BetFraction
	if pct <= 0 {
		pct = m.cfg.DefaultBet
	}
	pct = math.Max(0.01, math.Min(pct, m.cfg.MaxBet))
	amount := math.Min(sc.Balance*pct, sc.Balance*0.9)
	if amount <= 0 {
		return nil, nil
	}
	price := best.Price
	if price <= 0 {
		price = sc.Market.Price
	}

	return &domain.Proposal{
		TokenID:    sc.Market.TokenID,
		Side:       best.Side,
		Amount:     amount,
		Price:      price,
		Reasoning:  fmt.Sprintf("following %s (score %.2f): %s", bestName, bestScore, best.Reasoning),
		Source:     bestName,
		Confidence: best.Confidence,
	}, nil
}

// Observe implementa strategy.Observer: refuerza el score de la herramienta seguida.
func (m *Manager) Observe(mem *domain.AgentMemory, p domain.Proposal) {
	if p.Source == "" {
		return
	}
	if mem.ToolScores == nil {
		mem.ToolScores = make(map[string]float64)
	}
	mem.ToolScores[p.Source] = math.Min(1, combinedScore(toolScore(mem.ToolScores, p.Source), p.Confidence))
}

func toolScore(scores map[string]float64, name string) float64 {
	if s, ok := scores[name]; ok {
		return s
	}
	return 0.5
}

func combinedScore(base, confidence float64) float64 {
	return 0.5*base + 0.5*confidence
}
