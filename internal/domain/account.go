package domain

import "time"

// AccountSnapshot es una copia puntual de la cuenta de un agente en el ledger.
type AccountSnapshot struct {
	Name      string
	Allocated float64
	Balance   float64
	Positions map[string]float64 // tokenID → shares
}

// HasPositions devuelve true si el agente tiene alguna posición positiva.
func (a AccountSnapshot) HasPositions() bool {
	for _, s := range a.Positions {
		if s > 0 {
			return true
		}
	}
	return false
}

// LedgerSummary resume el estado del capital compartido.
type LedgerSummary struct {
	Starting  float64 // treasury inicial
	Treasury  float64 // cash sin asignar
	Allocated float64 // total asignado a agentes
	AgentCash float64 // suma de balances actuales
	Agents    int
}

// TradeRecord es un trade ejecutado y aplicado al ledger.
type TradeRecord struct {
	ID        string    `json:"id"`
	Agent     string    `json:"agent"`
	TokenID   string    `json:"token_id"`
	Side      Side      `json:"side"`
	Amount    float64   `json:"amount"`
	Price     float64   `json:"price"`
	Shares    float64   `json:"shares"`
	Timestamp time.Time `json:"timestamp"`
}

// AgentStats es el resumen de rendimiento de un agente.
type AgentStats struct {
	Agent      string    `json:"agent"`
	Strategy   string    `json:"strategy"`
	Initial    float64   `json:"initial"`
	Current    float64   `json:"current"`
	Profit     float64   `json:"profit"`
	ROI        float64   `json:"roi"` // porcentaje
	Trades     int       `json:"trades"`
	Iterations int       `json:"iterations"`
	Status     string    `json:"status"`
	RecordedAt time.Time `json:"recorded_at"`
}

// NewAgentStats calcula profit y ROI a partir del balance inicial y actual.
func NewAgentStats(agent, strategy string, initial, current float64, trades int) AgentStats {
	s := AgentStats{
		Agent:    agent,
		Strategy: strategy,
		Initial:  initial,
		Current:  current,
		Profit:   current - initial,
		Trades:   trades,
	}
	if initial > 0 {
		s.ROI = s.Profit / initial * 100
	}
	return s
}
