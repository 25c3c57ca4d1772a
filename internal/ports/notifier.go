package ports

import (
	"context"

	"github.com/alejandrodnm/polyswarm/internal/domain"
)

// Notifier presenta el resultado de las rondas al usuario.
type Notifier interface {
	// RoundSummary muestra las propuestas despachadas en una ronda del swarm.
	RoundSummary(ctx context.Context, report domain.RoundReport) error

	// AgentStats muestra el rendimiento de cada agente.
	AgentStats(ctx context.Context, stats []domain.AgentStats) error
}
