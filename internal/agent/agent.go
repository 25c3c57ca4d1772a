// Package agent binds a strategy to the shared ledger, the arbitration chain,
// the order sink and the agent's persisted memory.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/polyswarm/internal/arbitration"
	"github.com/alejandrodnm/polyswarm/internal/domain"
	"github.com/alejandrodnm/polyswarm/internal/execution"
	"github.com/alejandrodnm/polyswarm/internal/ledger"
	"github.com/alejandrodnm/polyswarm/internal/ports"
	"github.com/alejandrodnm/polyswarm/internal/strategy"
)

const (
	// MinTradeAmount is the smallest order the exchange accepts, in USDC.
	MinTradeAmount = 1.0
	MinPrice       = 0.001
	MaxPrice       = 0.999

	defaultMinBalanceFraction = 0.05
	defaultPriceHistory       = 50
)

var (
	ErrInvalidSide       = errors.New("agent: invalid side")
	ErrBelowMinimum      = errors.New("agent: amount below exchange minimum")
	ErrPriceOutOfRange   = errors.New("agent: price out of range")
	ErrNonPositiveAmount = errors.New("agent: amount must be positive")
)

// Config is the per-agent configuration.
type Config struct {
	Name       string
	Allocation float64 // requested from the treasury
	// MinBalanceFraction of the initial allocation below which the agent stops,
	// unless it still holds positions. Default 0.05. Strategies implementing
	// strategy.Continuer use their own rule instead.
	MinBalanceFraction float64
	PriceHistory       int // prices kept per token in memory
}

// Deps are the shared components an agent trades through.
type Deps struct {
	Ledger  *ledger.Ledger
	Sink    *execution.Sink
	Store   ports.MemoryStore
	Arbiter *arbitration.Arbiter // nil = proposals are not reviewed
	Now     func() time.Time
}

// Agent runs the evaluate → arbitrate → place pipeline for one strategy.
type Agent struct {
	name    string
	gen     strategy.Generator
	ledger  *ledger.Ledger
	sink    *execution.Sink
	store   ports.MemoryStore
	arbiter *arbitration.Arbiter
	now     func() time.Time

	initial     float64
	minFraction float64
	historySize int

	mu     sync.Mutex
	trades int
}

// New registers the agent with the ledger and returns it.
// The allocation may be lower than requested when the treasury runs short.
func New(cfg Config, gen strategy.Generator, deps Deps) *Agent {
	if cfg.MinBalanceFraction <= 0 {
		cfg.MinBalanceFraction = defaultMinBalanceFraction
	}
	if cfg.PriceHistory <= 0 {
		cfg.PriceHistory = defaultPriceHistory
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	allocated := deps.Ledger.Register(cfg.Name, cfg.Allocation)
	if allocated+1e-9 < cfg.Allocation {
		slog.Warn("allocation capped by treasury",
			"agent", cfg.Name, "requested", cfg.Allocation, "allocated", allocated)
	}

	return &Agent{
		name:        cfg.Name,
		gen:         gen,
		ledger:      deps.Ledger,
		sink:        deps.Sink,
		store:       deps.Store,
		arbiter:     deps.Arbiter,
		now:         deps.Now,
		initial:     allocated,
		minFraction: cfg.MinBalanceFraction,
		historySize: cfg.PriceHistory,
	}
}

func (a *Agent) Name() string     { return a.name }
func (a *Agent) Strategy() string { return a.gen.Name() }
func (a *Agent) Initial() float64 { return a.initial }
func (a *Agent) Balance() float64 { return a.ledger.Balance(a.name) }

// Restore loads persisted memory and merges stored positions into the ledger.
// Call it once after New, before the first round.
func (a *Agent) Restore(ctx context.Context) error {
	mem, err := a.store.Load(ctx, a.name)
	if err != nil {
		return fmt.Errorf("agent.Restore: %w", err)
	}
	a.mu.Lock()
	a.trades = mem.TradesMade
	a.mu.Unlock()

	if len(mem.Positions) == 0 {
		return nil
	}
	if err := a.ledger.Reconcile(a.name, mem.Positions); err != nil {
		return fmt.Errorf("agent.Restore: %w", err)
	}
	slog.Info("restored positions", "agent", a.name, "tokens", len(mem.Positions))
	return nil
}

// Evaluate runs the strategy on one market. nil means no signal.
func (a *Agent) Evaluate(ctx context.Context, m domain.MarketSnapshot) (*domain.Proposal, error) {
	if !m.HasPrice {
		return nil, nil
	}

	var mem domain.AgentMemory
	err := a.store.Update(ctx, a.name, func(am *domain.AgentMemory) {
		am.RecordPrice(m.TokenID, m.Price, a.historySize)
		mem = am.Clone()
	})
	if err != nil {
		return nil, fmt.Errorf("agent.Evaluate: memory: %w", err)
	}

	sc := strategy.Context{
		Agent:   a.name,
		Market:  m,
		Balance: a.ledger.Balance(a.name),
		Shares:  a.ledger.Shares(a.name, m.TokenID),
		Memory:  mem,
		Now:     a.now(),
	}
	p, err := a.gen.Evaluate(ctx, sc)
	if err != nil {
		return nil, fmt.Errorf("agent.Evaluate: %s: %w", a.gen.Name(), err)
	}
	if p == nil {
		return nil, nil
	}
	if p.TokenID == "" {
		p.TokenID = m.TokenID
	}
	if p.Price <= 0 {
		p.Price = m.Price
	}

	if obs, ok := a.gen.(strategy.Observer); ok {
		proposal := *p
		if err := a.store.Update(ctx, a.name, func(am *domain.AgentMemory) { obs.Observe(am, proposal) }); err != nil {
			slog.Warn("memory update failed", "agent", a.name, "err", err)
		}
	}
	return p, nil
}

// Arbitrate passes the proposal through the arbitration chain. nil means vetoed.
func (a *Agent) Arbitrate(ctx context.Context, m domain.MarketSnapshot, p domain.Proposal) *domain.Proposal {
	if a.arbiter == nil {
		return &p
	}
	d := a.arbiter.Arbitrate(ctx, arbitration.Input{
		Agent:    a.name,
		Market:   m,
		Proposal: p,
		Balance:  a.ledger.Balance(a.name),
		Shares:   a.ledger.Shares(a.name, p.TokenID),
	})
	if !d.Approved() {
		slog.Info("proposal vetoed", "agent", a.name,
			"token", p.TokenID, "side", p.Side, "reason", d.Reason)
		return nil
	}
	return &d.Proposal
}

// Decide evaluates and arbitrates one market.
func (a *Agent) Decide(ctx context.Context, m domain.MarketSnapshot) (*domain.Proposal, error) {
	p, err := a.Evaluate(ctx, m)
	if err != nil || p == nil {
		return nil, err
	}
	return a.Arbitrate(ctx, m, *p), nil
}

// PlaceBet validates, submits and books one trade.
// The ledger is only mutated after the sink accepted the order.
func (a *Agent) PlaceBet(ctx context.Context, p domain.Proposal) (domain.TradeRecord, error) {
	trade, err := a.placeBet(ctx, p)
	if err != nil {
		msg := err.Error()
		if uerr := a.store.Update(ctx, a.name, func(am *domain.AgentMemory) { am.LastError = msg }); uerr != nil {
			slog.Warn("memory update failed", "agent", a.name, "err", uerr)
		}
		return domain.TradeRecord{}, err
	}
	return trade, nil
}

func (a *Agent) placeBet(ctx context.Context, p domain.Proposal) (domain.TradeRecord, error) {
	side, ok := domain.ParseSide(string(p.Side))
	if !ok {
		return domain.TradeRecord{}, fmt.Errorf("agent.PlaceBet: %q: %w", p.Side, ErrInvalidSide)
	}
	switch {
	case p.Amount <= 0:
		return domain.TradeRecord{}, fmt.Errorf("agent.PlaceBet: %w", ErrNonPositiveAmount)
	case p.Amount < MinTradeAmount:
		return domain.TradeRecord{}, fmt.Errorf("agent.PlaceBet: $%.2f: %w", p.Amount, ErrBelowMinimum)
	case p.Price < MinPrice || p.Price > MaxPrice:
		return domain.TradeRecord{}, fmt.Errorf("agent.PlaceBet: %.4f: %w", p.Price, ErrPriceOutOfRange)
	}

	if err := a.ledger.Validate(a.name, p.TokenID, side, p.Amount, p.Price); err != nil {
		return domain.TradeRecord{}, fmt.Errorf("agent.PlaceBet: %w", err)
	}

	placed, err := a.sink.Submit(ctx, p.TokenID, side, p.Amount, p.Price)
	if err != nil {
		return domain.TradeRecord{}, fmt.Errorf("agent.PlaceBet: %w", err)
	}

	balance, err := a.ledger.Apply(a.name, p.TokenID, side, p.Amount, p.Price)
	if err != nil {
		// la orden ya está en el exchange; el ledger queda por detrás hasta el próximo Restore
		slog.Error("order placed but ledger rejected it",
			"agent", a.name, "order_id", placed.OrderID, "err", err)
		return domain.TradeRecord{}, fmt.Errorf("agent.PlaceBet: apply: %w", err)
	}

	trade := domain.TradeRecord{
		ID:        uuid.NewString(),
		Agent:     a.name,
		TokenID:   p.TokenID,
		Side:      side,
		Amount:    p.Amount,
		Price:     p.Price,
		Shares:    p.Amount / p.Price,
		Timestamp: a.now(),
	}

	a.mu.Lock()
	a.trades++
	trades := a.trades
	a.mu.Unlock()

	acc, _ := a.ledger.Account(a.name)
	err = a.store.Update(ctx, a.name, func(am *domain.AgentMemory) {
		am.Positions = acc.Positions
		am.LastTrade = &trade
		am.LastError = ""
		am.TradesMade = trades
	})
	if err != nil {
		slog.Warn("memory update failed", "agent", a.name, "err", err)
	}
	if err := a.store.RecordTrade(ctx, trade); err != nil {
		slog.Warn("trade record failed", "agent", a.name, "trade", trade.ID, "err", err)
	}

	slog.Info("trade executed",
		"agent", a.name,
		"token", p.TokenID,
		"side", side,
		"amount", fmt.Sprintf("%.2f", p.Amount),
		"price", p.Price,
		"balance", fmt.Sprintf("%.2f", balance),
		"order_id", placed.OrderID,
	)
	return trade, nil
}

// ShouldContinue asks the strategy's own stop rule when it has one. Otherwise it
// is true while the balance is above the minimum fraction of the initial
// allocation or the agent still holds positions it may sell.
func (a *Agent) ShouldContinue(ctx context.Context) bool {
	acc, ok := a.ledger.Account(a.name)
	if !ok {
		return false
	}
	if a.initial <= 0 {
		return acc.HasPositions()
	}
	if c, ok := a.gen.(strategy.Continuer); ok {
		mem, err := a.store.Load(ctx, a.name)
		if err != nil {
			slog.Warn("memory load failed", "agent", a.name, "err", err)
			mem = domain.NewAgentMemory()
		}
		mem.Positions = acc.Positions
		return c.Continue(a.initial, acc.Balance, mem)
	}
	if acc.Balance >= a.initial*a.minFraction {
		return true
	}
	return acc.HasPositions()
}

// SetStatus writes the agent status to memory.
func (a *Agent) SetStatus(ctx context.Context, status string) {
	if err := a.store.Update(ctx, a.name, func(am *domain.AgentMemory) { am.Status = status }); err != nil {
		slog.Warn("memory update failed", "agent", a.name, "err", err)
	}
}

// RecordIteration stores the iteration counter in memory.
func (a *Agent) RecordIteration(ctx context.Context, iteration int) {
	if err := a.store.Update(ctx, a.name, func(am *domain.AgentMemory) { am.Iterations = iteration }); err != nil {
		slog.Warn("memory update failed", "agent", a.name, "err", err)
	}
}

// Stats returns the agent's current performance.
func (a *Agent) Stats(ctx context.Context) domain.AgentStats {
	a.mu.Lock()
	trades := a.trades
	a.mu.Unlock()

	s := domain.NewAgentStats(a.name, a.gen.Name(), a.initial, a.ledger.Balance(a.name), trades)
	s.RecordedAt = a.now()
	if mem, err := a.store.Load(ctx, a.name); err == nil {
		s.Iterations = mem.Iterations
		s.Status = mem.Status
	}
	return s
}

// LogStats logs the current stats and appends them to the bounded history.
func (a *Agent) LogStats(ctx context.Context, limit int) domain.AgentStats {
	s := a.Stats(ctx)
	slog.Info("agent stats",
		"agent", a.name,
		"balance", fmt.Sprintf("%.2f", s.Current),
		"profit", fmt.Sprintf("%.2f", s.Profit),
		"roi", fmt.Sprintf("%.1f%%", s.ROI),
		"trades", s.Trades,
	)
	if err := a.store.AppendStats(ctx, a.name, s, limit); err != nil {
		slog.Warn("stats history failed", "agent", a.name, "err", err)
	}
	return s
}
