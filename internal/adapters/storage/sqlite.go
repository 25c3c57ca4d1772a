package storage

// sqlite.go: memoria persistente de los agentes.
//
// Estrategia:
//   - `agent_memory`: una fila por agente con la memoria serializada en JSON (UPSERT).
//   - `agent_stats`: histórico de stats por agente, recortado a los últimos N.
//   - `trades`: un registro por trade ejecutado.
//   - Cache en memoria: la memoria de cada agente se lee una vez de la DB y solo se
//     reescribe si el JSON cambió.
//   - Prune automático al arrancar: trades > 90d.

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/alejandrodnm/polyswarm/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
-- Memoria key/value de cada agente
CREATE TABLE IF NOT EXISTS agent_memory (
    agent      TEXT PRIMARY KEY,
    data       TEXT     NOT NULL,
    updated_at DATETIME NOT NULL
);

-- Histórico acotado de stats
CREATE TABLE IF NOT EXISTS agent_stats (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    agent       TEXT     NOT NULL,
    data        TEXT     NOT NULL,
    recorded_at DATETIME NOT NULL
);

-- Trades ejecutados
CREATE TABLE IF NOT EXISTS trades (
    id        TEXT PRIMARY KEY,
    agent     TEXT     NOT NULL,
    token_id  TEXT     NOT NULL,
    side      TEXT     NOT NULL,
    amount    REAL     NOT NULL,
    price     REAL     NOT NULL,
    shares    REAL     NOT NULL,
    timestamp DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_stats_agent  ON agent_stats(agent, id DESC);
CREATE INDEX IF NOT EXISTS idx_trades_agent ON trades(agent, timestamp DESC);
`

const retentionTrades = 90 * 24 * time.Hour

// cachedMemory es la última versión guardada de la memoria de un agente.
type cachedMemory struct {
	mem  domain.AgentMemory
	data []byte
}

// SQLiteStore implementa ports.MemoryStore usando SQLite (pure Go, sin CGo).
type SQLiteStore struct {
	db    *sql.DB
	cache map[string]cachedMemory
	mu    sync.Mutex
}

// NewSQLiteStore abre (o crea) la base de datos en la ruta dada y aplica el schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStore: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStore: apply schema: %w", err)
	}

	s := &SQLiteStore{
		db:    db,
		cache: make(map[string]cachedMemory),
	}
	s.pruneOld(context.Background())
	return s, nil
}

// Load devuelve una copia de la memoria del agente.
func (s *SQLiteStore) Load(ctx context.Context, agent string) (domain.AgentMemory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.load(ctx, agent)
	if err != nil {
		return domain.AgentMemory{}, fmt.Errorf("storage.Load: %w", err)
	}
	return c.mem.Clone(), nil
}

// Update aplica fn y persiste el resultado si cambió. Las llamadas a Update
// se serializan, así que fn nunca ve una escritura a medias.
func (s *SQLiteStore) Update(ctx context.Context, agent string, fn func(*domain.AgentMemory)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.load(ctx, agent)
	if err != nil {
		return fmt.Errorf("storage.Update: %w", err)
	}
	mem := c.mem.Clone()
	fn(&mem)
	mem.Normalize()

	data, err := json.Marshal(mem)
	if err != nil {
		return fmt.Errorf("storage.Update: marshal: %w", err)
	}
	if bytes.Equal(data, c.data) {
		return nil // nada nuevo
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO agent_memory (agent, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(agent) DO UPDATE SET
			data       = excluded.data,
			updated_at = excluded.updated_at
	`, agent, string(data), time.Now().UTC()); err != nil {
		return fmt.Errorf("storage.Update: upsert %s: %w", agent, err)
	}
	s.cache[agent] = cachedMemory{mem: mem, data: data}
	return nil
}

// AppendStats inserta un snapshot y borra los que exceden limit.
func (s *SQLiteStore) AppendStats(ctx context.Context, agent string, stats domain.AgentStats, limit int) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("storage.AppendStats: marshal: %w", err)
	}
	recorded := stats.RecordedAt
	if recorded.IsZero() {
		recorded = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.AppendStats: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO agent_stats (agent, data, recorded_at) VALUES (?, ?, ?)`,
		agent, string(data), recorded.UTC(),
	); err != nil {
		return fmt.Errorf("storage.AppendStats: insert: %w", err)
	}
	if limit > 0 {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM agent_stats
			WHERE agent = ? AND id NOT IN (
				SELECT id FROM agent_stats WHERE agent = ? ORDER BY id DESC LIMIT ?
			)`, agent, agent, limit,
		); err != nil {
			return fmt.Errorf("storage.AppendStats: trim: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.AppendStats: commit: %w", err)
	}
	return nil
}

// StatsHistory devuelve el histórico de stats del agente, del más antiguo al más reciente.
func (s *SQLiteStore) StatsHistory(ctx context.Context, agent string) ([]domain.AgentStats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM agent_stats WHERE agent = ? ORDER BY id ASC`, agent)
	if err != nil {
		return nil, fmt.Errorf("storage.StatsHistory: query: %w", err)
	}
	defer rows.Close()

	var out []domain.AgentStats
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("storage.StatsHistory: scan row: %w", err)
		}
		var st domain.AgentStats
		if err := json.Unmarshal([]byte(data), &st); err != nil {
			return nil, fmt.Errorf("storage.StatsHistory: decode: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// RecordTrade guarda un trade ejecutado. Un ID repetido se ignora.
func (s *SQLiteStore) RecordTrade(ctx context.Context, t domain.TradeRecord) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO trades (id, agent, token_id, side, amount, price, shares, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, t.ID, t.Agent, t.TokenID, string(t.Side), t.Amount, t.Price, t.Shares, t.Timestamp.UTC()); err != nil {
		return fmt.Errorf("storage.RecordTrade: insert %s: %w", t.ID, err)
	}
	return nil
}

// Trades devuelve los últimos limit trades del agente, los más recientes primero.
func (s *SQLiteStore) Trades(ctx context.Context, agent string, limit int) ([]domain.TradeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent, token_id, side, amount, price, shares, timestamp
		FROM trades
		WHERE agent = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`, agent, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.Trades: query: %w", err)
	}
	defer rows.Close()

	var out []domain.TradeRecord
	for rows.Next() {
		var t domain.TradeRecord
		var side string
		if err := rows.Scan(&t.ID, &t.Agent, &t.TokenID, &side, &t.Amount, &t.Price, &t.Shares, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("storage.Trades: scan row: %w", err)
		}
		t.Side = domain.Side(side)
		out = append(out, t)
	}
	return out, rows.Err()
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- helpers internos ---

// load devuelve la memoria cacheada o la lee de la DB. Requiere s.mu.
func (s *SQLiteStore) load(ctx context.Context, agent string) (cachedMemory, error) {
	if c, ok := s.cache[agent]; ok {
		return c, nil
	}

	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM agent_memory WHERE agent = ?`, agent).Scan(&data)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		c := cachedMemory{mem: domain.NewAgentMemory()}
		s.cache[agent] = c
		return c, nil
	case err != nil:
		return cachedMemory{}, fmt.Errorf("select %s: %w", agent, err)
	}

	var mem domain.AgentMemory
	if err := json.Unmarshal([]byte(data), &mem); err != nil {
		return cachedMemory{}, fmt.Errorf("decode %s: %w", agent, err)
	}
	mem.Normalize()
	c := cachedMemory{mem: mem, data: []byte(data)}
	s.cache[agent] = c
	return c, nil
}

// pruneOld elimina trades antiguos para mantener la DB ligera.
func (s *SQLiteStore) pruneOld(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-retentionTrades)
	s.db.ExecContext(ctx, `DELETE FROM trades WHERE timestamp < ?`, cutoff)
}
