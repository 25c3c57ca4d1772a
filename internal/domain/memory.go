package domain

// Status de un agente tal como se guarda en memoria.
const (
	StatusIdle       = "idle"
	StatusRunning    = "running"
	StatusEvaluating = "evaluating"
	StatusTrading    = "trading"
	StatusStopped    = "stopped"
)

// AgentMemory es la bolsa key/value persistida por agente.
type AgentMemory struct {
	Positions    map[string]float64   `json:"positions"`
	Status       string               `json:"status"`
	LastTrade    *TradeRecord         `json:"last_trade,omitempty"`
	LastError    string               `json:"last_error,omitempty"`
	TradesMade   int                  `json:"trades_made"`
	Iterations   int                  `json:"iterations"`
	ToolScores   map[string]float64   `json:"tool_scores,omitempty"`
	PriceHistory map[string][]float64 `json:"price_history,omitempty"`
}

// NewAgentMemory devuelve una memoria vacía con los maps inicializados.
func NewAgentMemory() AgentMemory {
	return AgentMemory{
		Positions:    make(map[string]float64),
		Status:       StatusIdle,
		ToolScores:   make(map[string]float64),
		PriceHistory: make(map[string][]float64),
	}
}

// Normalize inicializa los maps nil (memorias decodificadas de JSON antiguo).
func (m *AgentMemory) Normalize() {
	if m.Positions == nil {
		m.Positions = make(map[string]float64)
	}
	if m.ToolScores == nil {
		m.ToolScores = make(map[string]float64)
	}
	if m.PriceHistory == nil {
		m.PriceHistory = make(map[string][]float64)
	}
	if m.Status == "" {
		m.Status = StatusIdle
	}
}

// Clone devuelve una copia profunda.
func (m AgentMemory) Clone() AgentMemory {
	out := m
	out.Positions = make(map[string]float64, len(m.Positions))
	for k, v := range m.Positions {
		out.Positions[k] = v
	}
	out.ToolScores = make(map[string]float64, len(m.ToolScores))
	for k, v := range m.ToolScores {
		out.ToolScores[k] = v
	}
	out.PriceHistory = make(map[string][]float64, len(m.PriceHistory))
	for k, v := range m.PriceHistory {
		out.PriceHistory[k] = append([]float64(nil), v...)
	}
	if m.LastTrade != nil {
		t := *m.LastTrade
		out.LastTrade = &t
	}
	return out
}

// RecordPrice añade un precio al histórico del token, conservando los últimos limit.
func (m *AgentMemory) RecordPrice(tokenID string, price float64, limit int) {
	if m.PriceHistory == nil {
		m.PriceHistory = make(map[string][]float64)
	}
	h := append(m.PriceHistory[tokenID], price)
	if limit > 0 && len(h) > limit {
		h = h[len(h)-limit:]
	}
	m.PriceHistory[tokenID] = h
}
