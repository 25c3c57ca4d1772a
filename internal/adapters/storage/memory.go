package storage

import (
	"context"
	"sync"

	"github.com/alejandrodnm/polyswarm/internal/domain"
)

// MemoryStore implementa ports.MemoryStore en memoria. Se pierde al reiniciar.
type MemoryStore struct {
	mu     sync.Mutex
	agents map[string]domain.AgentMemory
	stats  map[string][]domain.AgentStats
	trades []domain.TradeRecord
}

// NewMemoryStore crea un store vacío.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		agents: make(map[string]domain.AgentMemory),
		stats:  make(map[string][]domain.AgentStats),
	}
}

func (s *MemoryStore) Load(_ context.Context, agent string) (domain.AgentMemory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(agent).Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, agent string, fn func(*domain.AgentMemory)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	mem := s.get(agent).Clone()
	fn(&mem)
	mem.Normalize()
	s.agents[agent] = mem
	return nil
}

func (s *MemoryStore) AppendStats(_ context.Context, agent string, stats domain.AgentStats, limit int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := append(s.stats[agent], stats)
	if limit > 0 && len(h) > limit {
		h = h[len(h)-limit:]
	}
	s.stats[agent] = h
	return nil
}

// StatsHistory devuelve una copia del histórico del agente.
func (s *MemoryStore) StatsHistory(_ context.Context, agent string) ([]domain.AgentStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.AgentStats(nil), s.stats[agent]...), nil
}

func (s *MemoryStore) RecordTrade(_ context.Context, t domain.TradeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades = append(s.trades, t)
	return nil
}

// Trades devuelve los últimos limit trades del agente, los más recientes primero.
func (s *MemoryStore) Trades(_ context.Context, agent string, limit int) ([]domain.TradeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.TradeRecord
	for i := len(s.trades) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if s.trades[i].Agent == agent {
			out = append(out, s.trades[i])
		}
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }

// get requiere s.mu.
func (s *MemoryStore) get(agent string) domain.AgentMemory {
	mem, ok := s.agents[agent]
	if !ok {
		mem = domain.NewAgentMemory()
		s.agents[agent] = mem
	}
	return mem
}
