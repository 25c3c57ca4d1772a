package ports

import (
	"context"

	"github.com/alejandrodnm/polyswarm/internal/domain"
)

// MemoryStore persiste la memoria de cada agente entre rondas y reinicios.
type MemoryStore interface {
	// Load devuelve la memoria del agente, o una memoria vacía si no existe.
	Load(ctx context.Context, agent string) (domain.AgentMemory, error)

	// Update aplica fn sobre la memoria del agente y la guarda.
	Update(ctx context.Context, agent string, fn func(*domain.AgentMemory)) error

	// AppendStats añade un snapshot al histórico de stats, conservando los últimos limit.
	AppendStats(ctx context.Context, agent string, stats domain.AgentStats, limit int) error

	// RecordTrade guarda un trade ejecutado.
	RecordTrade(ctx context.Context, trade domain.TradeRecord) error

	// Close libera los recursos del store.
	Close() error
}
