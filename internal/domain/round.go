package domain

import "time"

// DispatchResult es el resultado de despachar una propuesta dentro de una ronda.
type DispatchResult struct {
	Agent    string
	Proposal Proposal
	Executed bool
	Reason   string // motivo de rechazo o veto, vacío si se ejecutó
}

// RoundReport resume una ronda del swarm.
type RoundReport struct {
	ID        string
	Number    int
	Markets   int
	Proposals int
	Executed  int
	Results   []DispatchResult
	StartedAt time.Time
	Duration  time.Duration
}
