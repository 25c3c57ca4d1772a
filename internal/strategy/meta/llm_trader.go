package meta

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"

	"github.com/alejandrodnm/polyswarm/internal/arbitration"
	"github.com/alejandrodnm/polyswarm/internal/domain"
	"github.com/alejandrodnm/polyswarm/internal/ports"
	"github.com/alejandrodnm/polyswarm/internal/signals"
	"github.com/alejandrodnm/polyswarm/internal/strategy"
)

const (
	LLMTraderName       = "llm_trader"
	llmTraderMinBalance = 0.05
)

const llmTraderSystemPrompt = "You evaluate prediction markets and decide whether to BUY (enter trading position) on an outcome " +
	"or SELL (exit your position). You must buy to enter a position before you can sell to exit that same position. " +
	"You have access to several strategy tools whose latest suggestions are provided. " +
	"Respond with compact JSON containing fields side, confidence, bet_pct, price, reasoning, and optionally tool " +
	"(set tool to the strategy name if you want to follow that tool's recommendation)."

// LLMTraderConfig configura el trader dirigido por modelo.
type LLMTraderConfig struct {
	Model         string
	MaxTokens     int
	MinConfidence float64
	DefaultBet    float64
}

// DefaultLLMTraderConfig devuelve 256 tokens, confianza 0.55 y apuesta 25%.
func DefaultLLMTraderConfig() LLMTraderConfig {
	return LLMTraderConfig{MaxTokens: 256, MinConfidence: 0.55, DefaultBet: 0.25}
}

// LLMTrader pide al modelo una decisión a partir del mercado y de las señales
// de todas las herramientas.
type LLMTrader struct {
	model ports.ModelService
	tools *signals.Registry
	cfg   LLMTraderConfig
}

// NewLLMTrader crea el trader. Con model nil nunca propone nada.
func NewLLMTrader(model ports.ModelService, tools *signals.Registry, cfg LLMTraderConfig) *LLMTrader {
	def := DefaultLLMTraderConfig()
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = def.MinConfidence
	}
	if cfg.DefaultBet <= 0 {
		cfg.DefaultBet = def.DefaultBet
	}
	return &LLMTrader{model: model, tools: tools, cfg: cfg}
}

// Name implementa strategy.Generator.
func (t *LLMTrader) Name() string { return LLMTraderName }

// Continue implementa strategy.Continuer: sigue mientras conserve más del 5% inicial.
func (t *LLMTrader) Continue(initial, balance float64, _ domain.AgentMemory) bool {
	return balance > initial*llmTraderMinBalance
}

type llmAnswer struct {
	Side       string   `json:"side"`
	Confidence float64  `json:"confidence"`
	BetPct     *float64 `json:"bet_pct"`
	Price      *float64 `json:"price"`
	Reasoning  string   `json:"reasoning"`
	Tool       string   `json:"tool"`
}

// Evaluate implementa strategy.Generator.
func (t *LLMTrader) Evaluate(ctx context.Context, sc strategy.Context) (*domain.Proposal, error) {
	if t.model == nil {
		return nil, nil
	}
	sigs := t.tools.EvaluateAll(ctx, sc)

	text, err := t.model.Generate(ctx, domain.ModelRequest{
		Model:     t.cfg.Model,
		System:    llmTraderSystemPrompt,
		Prompt:    t.prompt(sc, sigs),
		MaxTokens: t.cfg.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("llm_trader: generate: %w", err)
	}

	var ans llmAnswer
	if err := arbitration.ParseJSON(text, &ans); err != nil {
		return nil, fmt.Errorf("llm_trader: %w", err)
	}

	// la herramienta elegida completa lo que el modelo no dijo
	var tool *domain.ToolSignal
	if ans.Tool != "" {
		tool = sigs[ans.Tool]
	}
	side, ok := domain.ParseSide(ans.Side)
	if !ok && tool != nil && ans.Side == "" {
		side, ok = tool.Side, tool.Side.Valid()
	}
	if !ok {
		return nil, nil
	}
	if ans.Confidence < t.cfg.MinConfidence {
		return nil, nil
	}

	pct := t.cfg.DefaultBet
	if ans.BetPct != nil {
		pct = *ans.BetPct
	}
	pct = math.Max(0.01, math.Min(pct, 0.9))
	amount := math.Min(sc.Balance*pct, sc.Balance*0.95)
	if amount <= 0 {
		return nil, nil
	}

	price := sc.Market.Price
	switch {
	case ans.Price != nil && *ans.Price > 0:
		price = *ans.Price
	case tool != nil && tool.Price > 0:
		price = tool.Price
	}

	slog.Info("llm decision",
		"agent", sc.Agent,
		"question", domain.TruncateQuestion(sc.Market.Question, sc.Market.TokenID, 48),
		"side", side,
		"confidence", ans.Confidence,
	)
	return &domain.Proposal{
		TokenID:    sc.Market.TokenID,
		Side:       side,
		Amount:     amount,
		Price:      price,
		Reasoning:  ans.Reasoning,
		Source:     t.Name(),
		Confidence: ans.Confidence,
	}, nil
}

type llmToolPayload struct {
	Side       string  `json:"side"`
	Confidence float64 `json:"confidence"`
	Price      float64 `json:"price"`
	BetPct     float64 `json:"bet_pct"`
	Reasoning  string  `json:"reasoning"`
}

func (t *LLMTrader) prompt(sc strategy.Context, sigs map[string]*domain.ToolSignal) string {
	m := sc.Market
	tools := make(map[string]*llmToolPayload, len(sigs))
	for name, sig := range sigs {
		if sig == nil {
			tools[name] = nil
			continue
		}
		tools[name] = &llmToolPayload{
			Side:       sig.Side.String(),
			Confidence: sig.Confidence,
			Price:      sig.Price,
			BetPct:     sig.BetFraction,
			Reasoning:  sig.Reasoning,
		}
	}

	var endDate string
	if !m.EndDate.IsZero() {
		endDate = m.EndDate.Format("2006-01-02T15:04:05Z07:00")
	}
	notes := m.Description
	if len(notes) > 500 {
		notes = notes[:500]
	}

	payload := map[string]any{
		"market": map[string]any{
			"question":  m.Question,
			"outcome":   m.Outcome,
			"price":     m.Price,
			"best_bid":  m.BestBid,
			"best_ask":  m.BestAsk,
			"volume":    m.Volume,
			"liquidity": m.Liquidity,
			"end_date":  endDate,
			"category":  m.Category,
		},
		"instructions": map[string]any{
			"side":             "BUY or SELL",
			"outcome":          "Outcome being traded on",
			"confidence_range": "0.0-1.0",
			"bet_pct_hint":     t.cfg.DefaultBet,
		},
		"notes": notes,
		"tools": tools,
		"portfolio": map[string]any{
			"positions": sc.Memory.Positions,
			"balance":   sc.Balance,
			"shares":    sc.Shares,
		},
	}
	data, _ := json.Marshal(payload)
	return "Analyze the market data and reply with JSON. Example: " +
		`{"side":"BUY","outcome":"YES","confidence":0.72,"bet_pct":0.3,"price":0.41,"reasoning":"...","tool":"momentum"}` +
		"\nDATA:\n" + string(data)
}
