package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/polyswarm/config"
	"github.com/alejandrodnm/polyswarm/internal/adapters/llm"
	"github.com/alejandrodnm/polyswarm/internal/adapters/notify"
	"github.com/alejandrodnm/polyswarm/internal/adapters/polymarket"
	"github.com/alejandrodnm/polyswarm/internal/adapters/storage"
	"github.com/alejandrodnm/polyswarm/internal/agent"
	"github.com/alejandrodnm/polyswarm/internal/arbitration"
	"github.com/alejandrodnm/polyswarm/internal/execution"
	"github.com/alejandrodnm/polyswarm/internal/ledger"
	"github.com/alejandrodnm/polyswarm/internal/marketview"
	"github.com/alejandrodnm/polyswarm/internal/ports"
	"github.com/alejandrodnm/polyswarm/internal/runner"
	"github.com/alejandrodnm/polyswarm/internal/signals"
	"github.com/alejandrodnm/polyswarm/internal/strategy"
	"github.com/alejandrodnm/polyswarm/internal/strategy/meta"
)

// app agrupa las piezas cableadas que comparten run y swarm.
type app struct {
	ledger       *ledger.Ledger
	view         *marketview.Cache
	store        *storage.SQLiteStore
	trading      *polymarket.TradingClient
	notifier     *notify.Console
	agents       []*agent.Agent
	runnerConfig runner.Config
}

func newApp(ctx context.Context, cfg *config.Config, format string) (*app, error) {
	a := &app{
		view:     newMarketView(cfg),
		notifier: newNotifier(format),
		runnerConfig: runner.Config{
			Iterations:   cfg.Swarm.Iterations,
			RoundSleep:   cfg.RoundSleep(),
			TradePause:   cfg.TradePause(),
			ErrorBackoff: cfg.ErrorBackoff(),
			Markets:      cfg.Swarm.Markets,
			PerAgent:     cfg.Swarm.PerAgent,
			StatsLimit:   cfg.Swarm.StatsLimit,
		},
	}

	var placer ports.OrderPlacer
	if cfg.TradingEnabled() {
		tc, err := newTradingClient(cfg)
		if err != nil {
			return nil, err
		}
		a.trading = tc
		placer = tc
	} else {
		slog.Warn("no trading credentials, running read-only")
	}

	treasury := capTreasury(ctx, a.trading, cfg.Swarm.Treasury)
	a.ledger = ledger.New(treasury)

	store, err := storage.NewSQLiteStore(cfg.Storage.DSN)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open storage %q: %w", cfg.Storage.DSN, err)
	}
	a.store = store

	model, err := newModelService(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	deps := agent.Deps{
		Ledger:  a.ledger,
		Sink:    execution.NewSink(placer),
		Store:   store,
		Arbiter: newArbiter(cfg, model),
	}
	agents, err := buildAgents(ctx, cfg, model, deps)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.agents = agents

	slog.Info("polyswarm wired",
		"agents", len(agents),
		"treasury", treasury,
		"trading", placer != nil,
		"llm", model != nil,
		"hivemind", cfg.HivemindEnabled(),
		"storage", cfg.Storage.DSN,
	)
	return a, nil
}

// Close libera storage y la conexión RPC.
func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			slog.Warn("storage close failed", "err", err)
		}
	}
	if a.trading != nil {
		a.trading.Close()
	}
}

func newMarketView(cfg *config.Config) *marketview.Cache {
	client := polymarket.NewClient(cfg.API.CLOBBase, cfg.API.GammaBase).
		WithBookDepth(cfg.Market.BookDepth).
		WithTimeout(time.Duration(cfg.API.TimeoutSeconds) * time.Second)
	return marketview.New(client, marketview.Config{
		TTL:          cfg.CacheTTL(),
		MinVolume:    cfg.Market.MinVolume,
		LookbackDays: cfg.Market.LookbackDays,
	})
}

func newNotifier(format string) *notify.Console {
	return notify.NewConsole(format)
}

func newTradingClient(cfg *config.Config) (*polymarket.TradingClient, error) {
	client := polymarket.NewClient(cfg.API.CLOBBase, cfg.API.GammaBase).
		WithTimeout(time.Duration(cfg.API.TimeoutSeconds) * time.Second)
	auth, err := polymarket.NewAuthClient(client, cfg.Trading.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("trading auth: %w", err)
	}
	tc, err := polymarket.NewTradingClient(auth, cfg.Trading.RPCURL)
	if err != nil {
		return nil, err
	}
	slog.Info("trading enabled", "address", auth.Address())
	return tc, nil
}

// capTreasury limita el treasury al saldo USDC.e on-chain cuando se puede leer.
func capTreasury(ctx context.Context, tc *polymarket.TradingClient, configured float64) float64 {
	if tc == nil {
		return configured
	}
	balance, err := tc.CollateralBalance(ctx)
	if err != nil {
		slog.Warn("collateral balance unavailable, using configured treasury", "err", err)
		return configured
	}
	if balance < configured {
		slog.Warn("treasury capped by wallet balance", "configured", configured, "wallet", balance)
		return balance
	}
	return configured
}

// newModelService devuelve nil sin modelo configurado.
func newModelService(ctx context.Context, cfg *config.Config) (ports.ModelService, error) {
	if !cfg.LLMEnabled() {
		return nil, nil
	}
	svc, err := llm.New(ctx, llm.Config{
		Provider:  cfg.LLM.Provider,
		BaseURL:   cfg.LLM.BaseURL,
		APIKey:    cfg.LLM.APIKey,
		Model:     cfg.LLM.Model,
		MaxTokens: cfg.LLM.MaxTokens,
		Timeout:   time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("model service: %w", err)
	}
	return svc, nil
}

func newArbiter(cfg *config.Config, model ports.ModelService) *arbitration.Arbiter {
	veto := arbitration.NewVeto(model, arbitration.VetoConfig{
		Model:     cfg.LLM.Model,
		MaxTokens: cfg.LLM.MaxTokens,
		Strict:    cfg.LLM.StrictJSON,
	})
	var consensus *arbitration.Consensus
	if cfg.HivemindEnabled() {
		consensus = arbitration.NewConsensus(model, arbitration.ConsensusConfig{
			Specialists: cfg.Hivemind.SpecialistModels,
			Coordinator: cfg.Hivemind.CoordinatorModel,
			MaxTokens:   cfg.Hivemind.MaxTokens,
		})
	}
	return arbitration.NewArbiter(consensus, veto)
}

// buildAgents crea un agente por spec, registra su allocation y restaura su memoria.
func buildAgents(ctx context.Context, cfg *config.Config, model ports.ModelService, deps agent.Deps) ([]*agent.Agent, error) {
	seed := cfg.Swarm.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	base := strategy.NewDefaultRegistry(strategy.NewRand(seed))
	tools := signals.FromStrategies(base)

	specs := agentSpecs(cfg, base, model != nil)
	agents := make([]*agent.Agent, 0, len(specs))
	for _, spec := range specs {
		gen, err := newGenerator(spec.Strategy, base, tools, model, cfg)
		if err != nil {
			return nil, fmt.Errorf("agent %q: %w", spec.Name, err)
		}

		d := deps
		if !arbitrates(spec) {
			d.Arbiter = nil
		}
		a := agent.New(agent.Config{
			Name:               spec.Name,
			Allocation:         spec.Allocation,
			MinBalanceFraction: cfg.Swarm.MinBalanceFraction,
		}, gen, d)
		if err := a.Restore(ctx); err != nil {
			slog.Warn("agent memory restore failed", "agent", spec.Name, "err", err)
		}
		agents = append(agents, a)
	}
	return agents, nil
}

// agentSpecs normaliza la lista de agentes. Sin lista configurada arranca uno por
// estrategia base más el manager, y el llm_trader si hay modelo.
func agentSpecs(cfg *config.Config, base strategy.Registry, hasModel bool) []config.AgentSpec {
	specs := cfg.Swarm.Agents
	if len(specs) == 0 {
		for _, name := range base.Names() {
			specs = append(specs, config.AgentSpec{Name: name})
		}
		specs = append(specs, config.AgentSpec{Name: meta.ManagerName})
		if hasModel {
			specs = append(specs, config.AgentSpec{Name: meta.LLMTraderName})
		}
	}

	out := make([]config.AgentSpec, 0, len(specs))
	for _, s := range specs {
		if s.Strategy == "" {
			s.Strategy = s.Name
		}
		if s.Allocation <= 0 {
			s.Allocation = cfg.Swarm.AllocationPerAgent
		}
		if s.Strategy == meta.LLMTraderName && !hasModel {
			slog.Warn("llm_trader skipped, no model configured", "agent", s.Name)
			continue
		}
		out = append(out, s)
	}
	return out
}

func newGenerator(name string, base strategy.Registry, tools *signals.Registry, model ports.ModelService, cfg *config.Config) (strategy.Generator, error) {
	switch name {
	case meta.ManagerName:
		return meta.NewManager(tools, meta.DefaultManagerConfig()), nil
	case meta.LLMTraderName:
		tc := meta.DefaultLLMTraderConfig()
		tc.Model = cfg.LLM.Model
		tc.MaxTokens = cfg.LLM.MaxTokens
		return meta.NewLLMTrader(model, tools, tc), nil
	}
	gen, ok := base.Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (known: %v, %s, %s)",
			name, base.Names(), meta.ManagerName, meta.LLMTraderName)
	}
	return gen, nil
}

// reviewed son las estrategias cuyas propuestas pasan por el arbiter por defecto.
var reviewed = map[string]bool{
	"value_hunter":     true,
	"momentum":         true,
	"news_sentiment":   true,
	"neural_predictor": true,
	meta.LLMTraderName: true,
}

// arbitrates decide si el agente usa el arbiter; AgentSpec.Arbitrate tiene prioridad.
func arbitrates(spec config.AgentSpec) bool {
	if spec.Arbitrate != nil {
		return *spec.Arbitrate
	}
	return reviewed[spec.Strategy]
}
