package runner_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polyswarm/internal/adapters/storage"
	"github.com/alejandrodnm/polyswarm/internal/agent"
	"github.com/alejandrodnm/polyswarm/internal/domain"
	"github.com/alejandrodnm/polyswarm/internal/execution"
	"github.com/alejandrodnm/polyswarm/internal/ledger"
	"github.com/alejandrodnm/polyswarm/internal/runner"
	"github.com/alejandrodnm/polyswarm/internal/strategy"
)

type fakeView struct {
	markets []domain.MarketSnapshot
	calls   atomic.Int32
}

func (v *fakeView) ListTradeable(_ context.Context, limit int) []domain.MarketSnapshot {
	v.calls.Add(1)
	if limit > 0 && limit < len(v.markets) {
		return v.markets[:limit]
	}
	return v.markets
}

func newView(n int) *fakeView {
	v := &fakeView{}
	for i := 0; i < n; i++ {
		v.markets = append(v.markets, domain.MarketSnapshot{
			TokenID:  string(rune('a'+i)) + "_tok",
			Question: "Q?",
			Price:    0.5,
			HasPrice: true,
		})
	}
	return v
}

// fixedGen propone amount en el primer mercado que ve y cuenta evaluaciones.
type fixedGen struct {
	name   string
	amount float64
	panics bool
	evals  atomic.Int32
	once   sync.Once
}

func (g *fixedGen) Name() string { return g.name }

func (g *fixedGen) Evaluate(_ context.Context, sc strategy.Context) (*domain.Proposal, error) {
	g.evals.Add(1)
	if g.panics {
		panic("strategy bug")
	}
	var p *domain.Proposal
	g.once.Do(func() {
		p = &domain.Proposal{TokenID: sc.Market.TokenID, Side: domain.SideBuy, Amount: g.amount, Price: 0.5}
	})
	return p, nil
}

type countingPlacer struct{ calls atomic.Int32 }

func (p *countingPlacer) PlaceOrder(context.Context, domain.OrderRequest) (domain.PlacedOrder, error) {
	p.calls.Add(1)
	return domain.PlacedOrder{OrderID: "0x1", Success: true}, nil
}

type env struct {
	ledger *ledger.Ledger
	store  *storage.MemoryStore
	placer *countingPlacer
	sink   *execution.Sink
}

func newEnv() *env {
	p := &countingPlacer{}
	return &env{
		ledger: ledger.New(100),
		store:  storage.NewMemoryStore(),
		placer: p,
		sink:   execution.NewSink(p),
	}
}

func (e *env) agent(name string, gen strategy.Generator) *agent.Agent {
	return agent.New(agent.Config{Name: name, Allocation: 10}, gen, agent.Deps{
		Ledger: e.ledger, Sink: e.sink, Store: e.store,
	})
}

func fastConfig() runner.Config {
	cfg := runner.DefaultConfig()
	cfg.RoundSleep = 0
	cfg.TradePause = 0
	cfg.ErrorBackoff = 5 * time.Millisecond
	cfg.Markets = 10
	return cfg
}

// --- Runner ---

func TestRunner_IterationsBound(t *testing.T) {
	e := newEnv()
	gen := &fixedGen{name: "g", amount: 2}
	a := e.agent("alpha", gen)
	view := newView(3)

	cfg := fastConfig()
	cfg.Iterations = 2
	r := runner.New(cfg, view, a)

	require.NoError(t, r.Start(context.Background(), "alpha"))
	r.Wait()

	assert.False(t, r.IsRunning("alpha"))
	assert.Equal(t, int32(6), gen.evals.Load())
	assert.Equal(t, int32(2), view.calls.Load())
	assert.Equal(t, int32(1), e.placer.calls.Load())
	assert.InDelta(t, 8.0, a.Balance(), 1e-9)

	mem, err := e.store.Load(context.Background(), "alpha")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusStopped, mem.Status)
	assert.Equal(t, 1, mem.Iterations)

	h, err := e.store.StatsHistory(context.Background(), "alpha")
	require.NoError(t, err)
	assert.Len(t, h, 3) // una por iteración más la final
}

func TestRunner_StartErrors(t *testing.T) {
	e := newEnv()
	a := e.agent("alpha", &fixedGen{name: "g"})
	cfg := fastConfig()
	cfg.Iterations = 0
	cfg.RoundSleep = time.Hour
	r := runner.New(cfg, newView(1), a)

	assert.ErrorIs(t, r.Start(context.Background(), "ghost"), runner.ErrUnknownAgent)

	require.NoError(t, r.Start(context.Background(), "alpha"))
	assert.ErrorIs(t, r.Start(context.Background(), "alpha"), runner.ErrAlreadyRunning)

	r.Shutdown()
	assert.False(t, r.IsRunning("alpha"))
}

func TestRunner_StopInterruptsSleep(t *testing.T) {
	e := newEnv()
	gen := &fixedGen{name: "g"}
	a := e.agent("alpha", gen)
	cfg := fastConfig()
	cfg.Iterations = 0
	cfg.RoundSleep = time.Hour
	r := runner.New(cfg, newView(2), a)

	require.NoError(t, r.Start(context.Background(), "alpha"))
	assert.Eventually(t, func() bool { return gen.evals.Load() >= 2 }, time.Second, 5*time.Millisecond)
	assert.True(t, r.IsRunning("alpha"))

	done := make(chan struct{})
	go func() {
		r.Stop("alpha")
		r.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop")
	}
}

func TestRunner_ContextCancel(t *testing.T) {
	e := newEnv()
	a := e.agent("alpha", &fixedGen{name: "g"})
	b := e.agent("beta", &fixedGen{name: "g"})
	cfg := fastConfig()
	cfg.Iterations = 0
	cfg.RoundSleep = time.Hour
	r := runner.New(cfg, newView(2), a, b)

	ctx, cancel := context.WithCancel(context.Background())
	r.StartAll(ctx)
	assert.Eventually(t, func() bool { return r.IsRunning("alpha") && r.IsRunning("beta") }, time.Second, time.Millisecond)
	cancel()
	r.Wait()

	assert.False(t, r.IsRunning("alpha"))
	assert.False(t, r.IsRunning("beta"))
	assert.Len(t, r.Stats(context.Background()), 2)
}

func TestRunner_PanicDoesNotKillLoop(t *testing.T) {
	e := newEnv()
	gen := &fixedGen{name: "g", panics: true}
	a := e.agent("alpha", gen)
	cfg := fastConfig()
	cfg.Iterations = 1
	r := runner.New(cfg, newView(1), a)

	require.NoError(t, r.Start(context.Background(), "alpha"))
	// el loop reintenta tras el backoff
	assert.Eventually(t, func() bool { return gen.evals.Load() >= 3 }, time.Second, 5*time.Millisecond)
	assert.True(t, r.IsRunning("alpha"))

	r.Shutdown()
}

// --- Swarm ---

type recordingNotifier struct {
	mu      sync.Mutex
	reports []domain.RoundReport
	stats   int
	onRound func()
}

func (n *recordingNotifier) RoundSummary(_ context.Context, r domain.RoundReport) error {
	n.mu.Lock()
	n.reports = append(n.reports, r)
	n.mu.Unlock()
	if n.onRound != nil {
		n.onRound()
	}
	return nil
}

func (n *recordingNotifier) AgentStats(context.Context, []domain.AgentStats) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stats++
	return nil
}

func TestSwarm_DispatchOrderedByAmount(t *testing.T) {
	e := newEnv()
	agents := []*agent.Agent{
		e.agent("small", &fixedGen{name: "g", amount: 2}),
		e.agent("big", &fixedGen{name: "g", amount: 5}),
		e.agent("mid", &fixedGen{name: "g", amount: 3}),
		e.agent("mid2", &fixedGen{name: "g", amount: 3}),
	}
	view := newView(4)
	s := runner.NewSwarm(fastConfig(), view, nil, agents...)

	report := s.Round(context.Background(), 1)

	assert.Equal(t, int32(1), view.calls.Load())
	assert.Equal(t, 4, report.Markets)
	assert.Equal(t, 4, report.Proposals)
	assert.Equal(t, 4, report.Executed)
	assert.NotEmpty(t, report.ID)

	var order []string
	for _, r := range report.Results {
		order = append(order, r.Agent)
		assert.True(t, r.Executed)
	}
	assert.Equal(t, []string{"big", "mid", "mid2", "small"}, order)

	mem, err := e.store.Load(context.Background(), "big")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusIdle, mem.Status)
}

func TestSwarm_PerAgentLimit(t *testing.T) {
	e := newEnv()
	gen := &fixedGen{name: "g", amount: 2}
	a := e.agent("alpha", gen)
	cfg := fastConfig()
	cfg.PerAgent = 2
	s := runner.NewSwarm(cfg, newView(5), nil, a)

	s.Round(context.Background(), 1)
	assert.Equal(t, int32(2), gen.evals.Load())
}

func TestSwarm_RejectedProposalReported(t *testing.T) {
	e := newEnv()
	a := e.agent("alpha", &fixedGen{name: "g", amount: 50}) // más que el balance
	s := runner.NewSwarm(fastConfig(), newView(1), nil, a)

	report := s.Round(context.Background(), 1)
	require.Len(t, report.Results, 1)
	assert.False(t, report.Results[0].Executed)
	assert.NotEmpty(t, report.Results[0].Reason)
	assert.Equal(t, 0, report.Executed)
	assert.Equal(t, int32(0), e.placer.calls.Load())
}

func TestSwarm_NoMarkets(t *testing.T) {
	e := newEnv()
	gen := &fixedGen{name: "g", amount: 2}
	s := runner.NewSwarm(fastConfig(), newView(0), nil, e.agent("alpha", gen))

	report := s.Round(context.Background(), 1)
	assert.Equal(t, 0, report.Markets)
	assert.Equal(t, int32(0), gen.evals.Load())
}

func TestSwarm_RunStopsOnCancel(t *testing.T) {
	e := newEnv()
	ctx, cancel := context.WithCancel(context.Background())
	n := &recordingNotifier{onRound: cancel}

	cfg := fastConfig()
	cfg.Iterations = 0
	cfg.RoundSleep = time.Hour
	s := runner.NewSwarm(cfg, newView(2), n, e.agent("alpha", &fixedGen{name: "g", amount: 2}))

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("swarm did not stop")
	}
	assert.Len(t, n.reports, 1)
	assert.Equal(t, 1, n.stats)
}

func TestSwarm_RunIterations(t *testing.T) {
	e := newEnv()
	n := &recordingNotifier{}
	cfg := fastConfig()
	cfg.Iterations = 3
	s := runner.NewSwarm(cfg, newView(1), n, e.agent("alpha", &fixedGen{name: "g", amount: 2}))

	// la penalización de ronda vacía es 1s; solo la primera ronda ejecuta
	start := time.Now()
	require.NoError(t, s.Run(context.Background()))
	assert.Len(t, n.reports, 3)
	assert.GreaterOrEqual(t, time.Since(start), 2*time.Second)
	for i, r := range n.reports {
		assert.Equal(t, i+1, r.Number)
	}
}
