package agent_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polyswarm/internal/adapters/storage"
	"github.com/alejandrodnm/polyswarm/internal/agent"
	"github.com/alejandrodnm/polyswarm/internal/arbitration"
	"github.com/alejandrodnm/polyswarm/internal/domain"
	"github.com/alejandrodnm/polyswarm/internal/execution"
	"github.com/alejandrodnm/polyswarm/internal/ledger"
	"github.com/alejandrodnm/polyswarm/internal/strategy"
)

const token = "tok_yes"

type stubGen struct {
	proposal *domain.Proposal
	err      error
	seen     []strategy.Context
	observed int
}

func (s *stubGen) Name() string { return "stub" }

func (s *stubGen) Evaluate(_ context.Context, sc strategy.Context) (*domain.Proposal, error) {
	s.seen = append(s.seen, sc)
	if s.proposal == nil {
		return nil, s.err
	}
	p := *s.proposal
	return &p, s.err
}

func (s *stubGen) Observe(mem *domain.AgentMemory, _ domain.Proposal) {
	s.observed++
	mem.ToolScores["stub"] = 0.9
}

type okPlacer struct {
	calls int
	err   error
}

func (p *okPlacer) PlaceOrder(_ context.Context, req domain.OrderRequest) (domain.PlacedOrder, error) {
	p.calls++
	if p.err != nil {
		return domain.PlacedOrder{}, p.err
	}
	return domain.PlacedOrder{OrderID: "0x1", Status: "live", Success: true}, nil
}

type rig struct {
	ledger *ledger.Ledger
	store  *storage.MemoryStore
	placer *okPlacer
	gen    *stubGen
	agent  *agent.Agent
}

func newRig(t *testing.T, treasury, allocation float64, arbiter *arbitration.Arbiter) *rig {
	t.Helper()
	r := &rig{
		ledger: ledger.New(treasury),
		store:  storage.NewMemoryStore(),
		placer: &okPlacer{},
		gen:    &stubGen{},
	}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r.agent = agent.New(agent.Config{Name: "alpha", Allocation: allocation}, r.gen, agent.Deps{
		Ledger:  r.ledger,
		Sink:    execution.NewSink(r.placer),
		Store:   r.store,
		Arbiter: arbiter,
		Now:     func() time.Time { return now },
	})
	return r
}

func market(price float64) domain.MarketSnapshot {
	return domain.MarketSnapshot{TokenID: token, Question: "Q?", Outcome: "Yes", Price: price, HasPrice: true}
}

func TestNew_AllocationCapped(t *testing.T) {
	r := newRig(t, 4, 10, nil)
	assert.InDelta(t, 4.0, r.agent.Initial(), 1e-9)
	assert.InDelta(t, 4.0, r.agent.Balance(), 1e-9)
}

func TestPlaceBet_BuyThenSell(t *testing.T) {
	ctx := context.Background()
	r := newRig(t, 10, 10, nil)

	trade, err := r.agent.PlaceBet(ctx, domain.Proposal{TokenID: token, Side: "buy", Amount: 5, Price: 0.5})
	require.NoError(t, err)
	assert.Equal(t, domain.SideBuy, trade.Side)
	assert.InDelta(t, 10.0, trade.Shares, 1e-9)
	assert.NotEmpty(t, trade.ID)
	assert.InDelta(t, 5.0, r.agent.Balance(), 1e-9)

	mem, err := r.store.Load(ctx, "alpha")
	require.NoError(t, err)
	assert.InDelta(t, 10.0, mem.Positions[token], 1e-9)
	require.NotNil(t, mem.LastTrade)
	assert.Equal(t, trade.ID, mem.LastTrade.ID)
	assert.Equal(t, 1, mem.TradesMade)

	_, err = r.agent.PlaceBet(ctx, domain.Proposal{TokenID: token, Side: domain.SideSell, Amount: 3, Price: 0.6})
	require.NoError(t, err)
	assert.InDelta(t, 8.0, r.agent.Balance(), 1e-9)
	assert.InDelta(t, 5.0, r.ledger.Shares("alpha", token), 1e-9)

	trades, err := r.store.Trades(ctx, "alpha", 10)
	require.NoError(t, err)
	assert.Len(t, trades, 2)
	assert.Equal(t, 2, r.agent.Stats(ctx).Trades)
}

func TestPlaceBet_Rejections(t *testing.T) {
	tests := []struct {
		name string
		p    domain.Proposal
		want error
	}{
		{"bad side", domain.Proposal{TokenID: token, Side: "HOLD", Amount: 2, Price: 0.5}, agent.ErrInvalidSide},
		{"zero amount", domain.Proposal{TokenID: token, Side: domain.SideBuy, Amount: 0, Price: 0.5}, agent.ErrNonPositiveAmount},
		{"below minimum", domain.Proposal{TokenID: token, Side: domain.SideBuy, Amount: 0.99, Price: 0.5}, agent.ErrBelowMinimum},
		{"price too high", domain.Proposal{TokenID: token, Side: domain.SideBuy, Amount: 2, Price: 0.9995}, agent.ErrPriceOutOfRange},
		{"price too low", domain.Proposal{TokenID: token, Side: domain.SideBuy, Amount: 2, Price: 0.0005}, agent.ErrPriceOutOfRange},
		{"insufficient funds", domain.Proposal{TokenID: token, Side: domain.SideBuy, Amount: 50, Price: 0.5}, ledger.ErrInsufficientFunds},
		{"sell without shares", domain.Proposal{TokenID: token, Side: domain.SideSell, Amount: 2, Price: 0.5}, ledger.ErrInsufficientPosition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			r := newRig(t, 10, 10, nil)

			_, err := r.agent.PlaceBet(ctx, tt.p)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, 0, r.placer.calls)
			assert.InDelta(t, 10.0, r.agent.Balance(), 1e-9)

			mem, _ := r.store.Load(ctx, "alpha")
			assert.NotEmpty(t, mem.LastError)
		})
	}
}

func TestPlaceBet_SinkFailureLeavesLedgerUntouched(t *testing.T) {
	ctx := context.Background()
	r := newRig(t, 10, 10, nil)
	r.placer.err = errors.New("502")

	_, err := r.agent.PlaceBet(ctx, domain.Proposal{TokenID: token, Side: domain.SideBuy, Amount: 5, Price: 0.5})
	require.Error(t, err)
	assert.InDelta(t, 10.0, r.agent.Balance(), 1e-9)
	assert.InDelta(t, 0.0, r.ledger.Shares("alpha", token), 1e-9)
}

func TestPlaceBet_ReadOnly(t *testing.T) {
	ctx := context.Background()
	r := newRig(t, 10, 10, nil)
	r.placer.err = domain.ErrNotConfigured

	for i := 0; i < 2; i++ {
		_, err := r.agent.PlaceBet(ctx, domain.Proposal{TokenID: token, Side: domain.SideBuy, Amount: 5, Price: 0.5})
		assert.ErrorIs(t, err, execution.ErrTradingDisabled)
	}
	assert.Equal(t, 1, r.placer.calls)
}

func TestEvaluate_RecordsPriceAndFillsDefaults(t *testing.T) {
	ctx := context.Background()
	r := newRig(t, 10, 10, nil)
	r.gen.proposal = &domain.Proposal{Side: domain.SideBuy, Amount: 2}

	p, err := r.agent.Evaluate(ctx, market(0.42))
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, token, p.TokenID)
	assert.InDelta(t, 0.42, p.Price, 1e-9)

	require.Len(t, r.gen.seen, 1)
	sc := r.gen.seen[0]
	assert.InDelta(t, 10.0, sc.Balance, 1e-9)
	assert.Equal(t, []float64{0.42}, sc.History())

	mem, _ := r.store.Load(ctx, "alpha")
	assert.Equal(t, 1, r.gen.observed)
	assert.InDelta(t, 0.9, mem.ToolScores["stub"], 1e-9)
}

func TestEvaluate_NoPriceSkips(t *testing.T) {
	r := newRig(t, 10, 10, nil)
	r.gen.proposal = &domain.Proposal{Side: domain.SideBuy, Amount: 2}

	p, err := r.agent.Evaluate(context.Background(), domain.MarketSnapshot{TokenID: token})
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.Empty(t, r.gen.seen)
}

func TestEvaluate_GeneratorError(t *testing.T) {
	r := newRig(t, 10, 10, nil)
	r.gen.err = errors.New("no data")

	p, err := r.agent.Evaluate(context.Background(), market(0.5))
	assert.Error(t, err)
	assert.Nil(t, p)
}

type skipModel struct{ calls int }

func (m *skipModel) Generate(context.Context, domain.ModelRequest) (string, error) {
	m.calls++
	return `{"action":"SKIP","reasoning":"no edge"}`, nil
}

func TestDecide_ArbiterVeto(t *testing.T) {
	m := &skipModel{}
	arb := arbitration.NewArbiter(nil, arbitration.NewVeto(m, arbitration.VetoConfig{}))
	r := newRig(t, 10, 10, arb)
	r.gen.proposal = &domain.Proposal{Side: domain.SideBuy, Amount: 2, Price: 0.5}

	p, err := r.agent.Decide(context.Background(), market(0.5))
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.Equal(t, 1, m.calls)
}

func TestDecide_SellWithoutSharesNeverReachesModel(t *testing.T) {
	m := &skipModel{}
	arb := arbitration.NewArbiter(nil, arbitration.NewVeto(m, arbitration.VetoConfig{}))
	r := newRig(t, 10, 10, arb)
	r.gen.proposal = &domain.Proposal{Side: domain.SideSell, Amount: 2, Price: 0.5}

	p, err := r.agent.Decide(context.Background(), market(0.5))
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.Equal(t, 0, m.calls)
}

func TestShouldContinue(t *testing.T) {
	ctx := context.Background()
	r := newRig(t, 10, 10, nil)
	assert.True(t, r.agent.ShouldContinue(context.Background()))

	// gasta todo menos 0.40 → por debajo del 5% pero con posición
	_, err := r.agent.PlaceBet(ctx, domain.Proposal{TokenID: token, Side: domain.SideBuy, Amount: 9.6, Price: 0.5})
	require.NoError(t, err)
	assert.True(t, r.agent.ShouldContinue(context.Background()))

	_, err = r.agent.PlaceBet(ctx, domain.Proposal{TokenID: token, Side: domain.SideSell, Amount: 9.6, Price: 0.5})
	require.NoError(t, err)
	assert.True(t, r.agent.ShouldContinue(context.Background()))
}

// cappedGen para al llegar a maxPositions tokens o con menos de 1 USDC.
type cappedGen struct {
	stubGen
	maxPositions int
	initials     []float64
}

func (c *cappedGen) Continue(initial, balance float64, mem domain.AgentMemory) bool {
	c.initials = append(c.initials, initial)
	return balance >= 1 && len(mem.Positions) < c.maxPositions
}

func TestShouldContinue_StrategyRule(t *testing.T) {
	ctx := context.Background()
	gen := &cappedGen{maxPositions: 1}
	a := agent.New(agent.Config{Name: "capped", Allocation: 10}, gen, agent.Deps{
		Ledger: ledger.New(10),
		Sink:   execution.NewSink(&okPlacer{}),
		Store:  storage.NewMemoryStore(),
	})
	assert.True(t, a.ShouldContinue(ctx))

	// balance 8 muy por encima del 5%, pero la estrategia ya tiene su posición
	_, err := a.PlaceBet(ctx, domain.Proposal{TokenID: token, Side: domain.SideBuy, Amount: 2, Price: 0.5})
	require.NoError(t, err)
	assert.False(t, a.ShouldContinue(ctx))
	assert.Equal(t, []float64{10, 10}, gen.initials)
}

func TestShouldContinue_StrategyFloorIgnoresPositions(t *testing.T) {
	ctx := context.Background()
	gen := &cappedGen{maxPositions: 100}
	a := agent.New(agent.Config{Name: "floor", Allocation: 10}, gen, agent.Deps{
		Ledger: ledger.New(10),
		Sink:   execution.NewSink(&okPlacer{}),
		Store:  storage.NewMemoryStore(),
	})

	_, err := a.PlaceBet(ctx, domain.Proposal{TokenID: token, Side: domain.SideBuy, Amount: 9.5, Price: 0.5})
	require.NoError(t, err)
	assert.False(t, a.ShouldContinue(ctx), "0.50 left is below the strategy floor")
}

func TestShouldContinue_EmptyAllocation(t *testing.T) {
	r := newRig(t, 0, 10, nil)
	assert.False(t, r.agent.ShouldContinue(context.Background()))
}

func TestRestore_ReconcilesPositions(t *testing.T) {
	ctx := context.Background()
	r := newRig(t, 10, 10, nil)
	require.NoError(t, r.store.Update(ctx, "alpha", func(m *domain.AgentMemory) {
		m.Positions[token] = 7
		m.TradesMade = 3
	}))

	require.NoError(t, r.agent.Restore(ctx))
	assert.InDelta(t, 7.0, r.ledger.Shares("alpha", token), 1e-9)
	assert.Equal(t, 3, r.agent.Stats(ctx).Trades)

	// una venta contra la posición restaurada es válida
	_, err := r.agent.PlaceBet(ctx, domain.Proposal{TokenID: token, Side: domain.SideSell, Amount: 3.5, Price: 0.5})
	assert.NoError(t, err)
}

func TestLogStats_AppendsHistory(t *testing.T) {
	ctx := context.Background()
	r := newRig(t, 10, 10, nil)
	r.agent.SetStatus(ctx, domain.StatusRunning)
	r.agent.RecordIteration(ctx, 4)

	s := r.agent.LogStats(ctx, 100)
	assert.Equal(t, "alpha", s.Agent)
	assert.Equal(t, "stub", s.Strategy)
	assert.Equal(t, 4, s.Iterations)
	assert.Equal(t, domain.StatusRunning, s.Status)
	assert.InDelta(t, 0.0, s.ROI, 1e-9)

	h, err := r.store.StatsHistory(ctx, "alpha")
	require.NoError(t, err)
	assert.Len(t, h, 1)
}
