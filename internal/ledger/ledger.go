// Package ledger holds the shared treasury and the per-agent accounts.
//
// All mutations happen under a single mutex. Reads return copies so callers
// never observe a half-applied trade.
package ledger

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polyswarm/internal/domain"
)

// Tolerance absorbs floating error when comparing cash and shares.
const Tolerance = 1e-9

var tolerance = decimal.NewFromFloat(Tolerance)

// Rejection reasons. Match them with errors.Is.
var (
	ErrUnknownAgent         = errors.New("unknown agent")
	ErrNonPositiveAmount    = errors.New("amount must be positive")
	ErrInsufficientFunds    = errors.New("insufficient allocated funds")
	ErrInvalidPrice         = errors.New("price must be positive")
	ErrInsufficientPosition = errors.New("insufficient position to sell")
	ErrUnknownSide          = errors.New("unknown side")
)

// RejectionError describes a trade the ledger refused.
type RejectionError struct {
	Agent   string
	TokenID string
	Side    domain.Side
	Amount  float64
	Price   float64
	Reason  error
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("ledger: %s %s $%.4f@%.4f on %s rejected: %v",
		e.Agent, e.Side, e.Amount, e.Price, e.TokenID, e.Reason)
}

func (e *RejectionError) Unwrap() error { return e.Reason }

type account struct {
	allocated decimal.Decimal
	balance   decimal.Decimal
	positions map[string]decimal.Decimal
}

// Ledger is the capital and position book shared by every agent.
type Ledger struct {
	mu       sync.Mutex
	starting decimal.Decimal
	treasury decimal.Decimal
	accounts map[string]*account
	totals   map[string]decimal.Decimal // tokenID → shares across all agents
}

// New creates a ledger with the given treasury. Negative values are treated as 0.
func New(treasury float64) *Ledger {
	t := decimal.Max(decimal.NewFromFloat(treasury), decimal.Zero)
	return &Ledger{
		starting: t,
		treasury: t,
		accounts: make(map[string]*account),
		totals:   make(map[string]decimal.Decimal),
	}
}

// Register allocates min(requested, treasury) to the agent.
// Calling it again for the same name returns the existing allocation unchanged.
func (l *Ledger) Register(agent string, requested float64) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	if acc, ok := l.accounts[agent]; ok {
		return acc.allocated.InexactFloat64()
	}

	amount := decimal.Max(decimal.NewFromFloat(requested), decimal.Zero)
	amount = decimal.Min(amount, l.treasury)
	l.treasury = l.treasury.Sub(amount)
	l.accounts[agent] = &account{
		allocated: amount,
		balance:   amount,
		positions: make(map[string]decimal.Decimal),
	}
	return amount.InexactFloat64()
}

// Validate checks a trade against the agent's current balance and holdings.
// It returns a *RejectionError when the trade cannot be applied.
func (l *Ledger) Validate(agent, tokenID string, side domain.Side, amount, price float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := l.check(agent, tokenID, side, amount, price)
	return err
}

// Apply books a trade and returns the agent's new balance.
// The balance and position checks are repeated inside the same critical section
// as the mutation, so two concurrent trades never overdraw an account.
func (l *Ledger) Apply(agent, tokenID string, side domain.Side, amount, price float64) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	acc, err := l.check(agent, tokenID, side, amount, price)
	if err != nil {
		return 0, err
	}

	cash := decimal.NewFromFloat(amount)
	shares := cash.Div(decimal.NewFromFloat(price))

	switch side {
	case domain.SideBuy:
		acc.balance = decimal.Max(acc.balance.Sub(cash), decimal.Zero)
		acc.positions[tokenID] = acc.positions[tokenID].Add(shares)
		l.totals[tokenID] = l.totals[tokenID].Add(shares)
	case domain.SideSell:
		held := acc.positions[tokenID]
		debit := decimal.Min(shares, held)
		acc.balance = acc.balance.Add(cash)
		acc.positions[tokenID] = held.Sub(debit)
		l.totals[tokenID] = decimal.Max(l.totals[tokenID].Sub(debit), decimal.Zero)
	}
	return acc.balance.InexactFloat64(), nil
}

// check must be called with l.mu held.
func (l *Ledger) check(agent, tokenID string, side domain.Side, amount, price float64) (*account, error) {
	reject := func(reason error) error {
		return &RejectionError{Agent: agent, TokenID: tokenID, Side: side, Amount: amount, Price: price, Reason: reason}
	}

	acc, ok := l.accounts[agent]
	if !ok {
		return nil, reject(ErrUnknownAgent)
	}

	cash := decimal.NewFromFloat(amount)
	switch side {
	case domain.SideBuy:
		if !cash.IsPositive() {
			return nil, reject(ErrNonPositiveAmount)
		}
		if cash.GreaterThan(acc.balance.Add(tolerance)) {
			return nil, reject(ErrInsufficientFunds)
		}
		if price <= 0 {
			return nil, reject(ErrInvalidPrice)
		}
	case domain.SideSell:
		if !cash.IsPositive() {
			return nil, reject(ErrNonPositiveAmount)
		}
		if price <= 0 {
			return nil, reject(ErrInvalidPrice)
		}
		shares := cash.Div(decimal.NewFromFloat(price))
		if shares.GreaterThan(acc.positions[tokenID].Add(tolerance)) {
			return nil, reject(ErrInsufficientPosition)
		}
	default:
		return nil, reject(ErrUnknownSide)
	}
	return acc, nil
}

// Reconcile merges an external position snapshot into the agent's holdings.
// Only positive quantities are added; holdings never decrease.
func (l *Ledger) Reconcile(agent string, positions map[string]float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	acc, ok := l.accounts[agent]
	if !ok {
		return fmt.Errorf("ledger.Reconcile: %s: %w", agent, ErrUnknownAgent)
	}
	for tokenID, qty := range positions {
		if qty <= 0 {
			continue
		}
		q := decimal.NewFromFloat(qty)
		acc.positions[tokenID] = acc.positions[tokenID].Add(q)
		l.totals[tokenID] = l.totals[tokenID].Add(q)
	}
	return nil
}

// Account returns a copy of the agent's account.
func (l *Ledger) Account(agent string) (domain.AccountSnapshot, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	acc, ok := l.accounts[agent]
	if !ok {
		return domain.AccountSnapshot{}, false
	}
	return snapshot(agent, acc), true
}

// Balance returns the agent's current cash, 0 if unknown.
func (l *Ledger) Balance(agent string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	if acc, ok := l.accounts[agent]; ok {
		return acc.balance.InexactFloat64()
	}
	return 0
}

// Shares returns the agent's holding of a token, 0 if none.
func (l *Ledger) Shares(agent, tokenID string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	if acc, ok := l.accounts[agent]; ok {
		return acc.positions[tokenID].InexactFloat64()
	}
	return 0
}

// Positions returns the aggregate shares per token across all agents.
func (l *Ledger) Positions() map[string]float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]float64, len(l.totals))
	for tokenID, q := range l.totals {
		if q.IsPositive() {
			out[tokenID] = q.InexactFloat64()
		}
	}
	return out
}

// Agents returns the registered agent names, sorted.
func (l *Ledger) Agents() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	names := make([]string, 0, len(l.accounts))
	for name := range l.accounts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Summary returns treasury and allocation totals.
func (l *Ledger) Summary() domain.LedgerSummary {
	l.mu.Lock()
	defer l.mu.Unlock()

	allocated := decimal.Zero
	cash := decimal.Zero
	for _, acc := range l.accounts {
		allocated = allocated.Add(acc.allocated)
		cash = cash.Add(acc.balance)
	}
	return domain.LedgerSummary{
		Starting:  l.starting.InexactFloat64(),
		Treasury:  l.treasury.InexactFloat64(),
		Allocated: allocated.InexactFloat64(),
		AgentCash: cash.InexactFloat64(),
		Agents:    len(l.accounts),
	}
}

func snapshot(name string, acc *account) domain.AccountSnapshot {
	positions := make(map[string]float64, len(acc.positions))
	for tokenID, q := range acc.positions {
		if q.IsPositive() {
			positions[tokenID] = q.InexactFloat64()
		}
	}
	return domain.AccountSnapshot{
		Name:      name,
		Allocated: acc.allocated.InexactFloat64(),
		Balance:   acc.balance.InexactFloat64(),
		Positions: positions,
	}
}
