// Package runner planifica los agentes: un loop independiente por agente o
// rondas sincronizadas de todo el swarm.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alejandrodnm/polyswarm/internal/agent"
	"github.com/alejandrodnm/polyswarm/internal/domain"
	"github.com/alejandrodnm/polyswarm/internal/execution"
)

var (
	ErrUnknownAgent   = errors.New("runner: unknown agent")
	ErrAlreadyRunning = errors.New("runner: agent already running")

	errNoMarkets = errors.New("no active markets")
)

// MarketSource es la vista de mercados que consumen los agentes.
type MarketSource interface {
	ListTradeable(ctx context.Context, limit int) []domain.MarketSnapshot
}

// Config contiene los tiempos y límites de planificación.
type Config struct {
	Iterations   int           // 0 = sin límite
	RoundSleep   time.Duration // pausa entre iteraciones/rondas
	TradePause   time.Duration // pausa tras un trade ejecutado
	ErrorBackoff time.Duration // pausa tras una iteración fallida
	Markets      int           // mercados por iteración
	PerAgent     int           // mercados por agente y ronda (solo swarm)
	StatsLimit   int           // tamaño del histórico de stats
}

// DefaultConfig devuelve los valores por defecto.
func DefaultConfig() Config {
	return Config{
		Iterations:   50,
		RoundSleep:   30 * time.Second,
		TradePause:   2 * time.Second,
		ErrorBackoff: 30 * time.Second,
		Markets:      100,
		PerAgent:     5,
		StatsLimit:   100,
	}
}

// handle es el estado de un loop en marcha.
type handle struct {
	stop     chan struct{}
	stopOnce sync.Once
}

func (h *handle) requestStop() { h.stopOnce.Do(func() { close(h.stop) }) }

func (h *handle) stopped() bool {
	select {
	case <-h.stop:
		return true
	default:
		return false
	}
}

// Runner ejecuta un loop independiente por agente.
type Runner struct {
	cfg    Config
	view   MarketSource
	agents map[string]*agent.Agent
	order  []string

	g       errgroup.Group
	mu      sync.Mutex
	running map[string]*handle
}

// New crea el runner. Los agentes deben estar ya restaurados.
func New(cfg Config, view MarketSource, agents ...*agent.Agent) *Runner {
	r := &Runner{
		cfg:     cfg,
		view:    view,
		agents:  make(map[string]*agent.Agent, len(agents)),
		running: make(map[string]*handle),
	}
	for _, a := range agents {
		r.agents[a.Name()] = a
		r.order = append(r.order, a.Name())
	}
	r.g.SetLimit(max(len(agents), 1))
	return r
}

// Start lanza el loop del agente.
func (r *Runner) Start(ctx context.Context, name string) error {
	a, ok := r.agents[name]
	if !ok {
		return fmt.Errorf("runner.Start: %s: %w", name, ErrUnknownAgent)
	}

	r.mu.Lock()
	if _, busy := r.running[name]; busy {
		r.mu.Unlock()
		return fmt.Errorf("runner.Start: %s: %w", name, ErrAlreadyRunning)
	}
	h := &handle{stop: make(chan struct{})}
	r.running[name] = h
	r.mu.Unlock()

	r.g.Go(func() error {
		defer func() {
			r.mu.Lock()
			delete(r.running, name)
			r.mu.Unlock()
		}()
		r.loop(ctx, a, h)
		return nil
	})
	return nil
}

// StartAll lanza todos los agentes que no estén ya en marcha.
func (r *Runner) StartAll(ctx context.Context) {
	for _, name := range r.order {
		if err := r.Start(ctx, name); err != nil && !errors.Is(err, ErrAlreadyRunning) {
			slog.Error("agent start failed", "agent", name, "err", err)
		}
	}
}

// Stop pide al agente que pare. El loop termina en el siguiente punto de control.
func (r *Runner) Stop(name string) {
	r.mu.Lock()
	h, ok := r.running[name]
	r.mu.Unlock()
	if ok {
		h.requestStop()
	}
}

// StopAll pide a todos los agentes que paren.
func (r *Runner) StopAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, h := range r.running {
		h.requestStop()
	}
}

// IsRunning devuelve true si el loop del agente sigue vivo.
func (r *Runner) IsRunning(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.running[name]
	return ok
}

// Wait bloquea hasta que todos los loops terminen.
func (r *Runner) Wait() {
	_ = r.g.Wait()
}

// Shutdown para todos los agentes y espera a que terminen.
func (r *Runner) Shutdown() {
	r.StopAll()
	r.Wait()
}

// Stats devuelve las stats de todos los agentes en orden de registro.
func (r *Runner) Stats(ctx context.Context) []domain.AgentStats {
	out := make([]domain.AgentStats, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.agents[name].Stats(ctx))
	}
	return out
}

// loop es el ciclo de vida de un agente. Ningún error lo interrumpe; solo el
// stop flag, el contexto, el límite de iteraciones o ShouldContinue.
func (r *Runner) loop(ctx context.Context, a *agent.Agent, h *handle) {
	slog.Info("agent starting", "agent", a.Name(), "strategy", a.Strategy(),
		"balance", fmt.Sprintf("%.2f", a.Balance()))
	a.SetStatus(ctx, domain.StatusRunning)
	a.RecordIteration(ctx, 0)

	iteration := 0
	for r.cfg.Iterations <= 0 || iteration < r.cfg.Iterations {
		if h.stopped() || ctx.Err() != nil {
			slog.Info("agent stop requested", "agent", a.Name())
			break
		}
		if !a.ShouldContinue(ctx) {
			slog.Info("agent out of capital", "agent", a.Name())
			break
		}

		if err := r.iterate(ctx, a, h); err != nil {
			if errors.Is(err, errNoMarkets) {
				slog.Warn("no active markets found", "agent", a.Name())
				r.sleep(ctx, h, r.cfg.RoundSleep)
				continue
			}
			slog.Error("agent iteration failed", "agent", a.Name(), "err", err)
			r.sleep(ctx, h, r.cfg.ErrorBackoff)
			continue
		}

		a.LogStats(ctx, r.cfg.StatsLimit)
		a.RecordIteration(ctx, iteration)
		iteration++

		if (r.cfg.Iterations <= 0 || iteration < r.cfg.Iterations) && a.ShouldContinue(ctx) {
			r.sleep(ctx, h, r.cfg.RoundSleep)
		}
	}

	// ctx puede estar cancelado; la memoria final se escribe igualmente
	final := context.WithoutCancel(ctx)
	a.SetStatus(final, domain.StatusStopped)
	a.LogStats(final, r.cfg.StatsLimit)
	slog.Info("agent finished", "agent", a.Name(), "iterations", iteration)
}

// iterate evalúa los mercados actuales. Un panic de la estrategia se convierte en error.
func (r *Runner) iterate(ctx context.Context, a *agent.Agent, h *handle) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()

	markets := r.view.ListTradeable(ctx, r.cfg.Markets)
	if len(markets) == 0 {
		return errNoMarkets
	}

	for _, m := range markets {
		if h.stopped() || ctx.Err() != nil || !a.ShouldContinue(ctx) {
			break
		}
		p, err := a.Decide(ctx, m)
		if err != nil {
			slog.Debug("evaluate failed", "agent", a.Name(), "token", m.TokenID, "err", err)
			continue
		}
		if p == nil {
			continue
		}
		if _, err := a.PlaceBet(ctx, *p); err != nil {
			logPlaceError(a.Name(), *p, err)
			continue
		}
		r.sleep(ctx, h, r.cfg.TradePause)
	}
	return nil
}

// sleep espera d o hasta que se cancele el contexto o se pida stop.
func (r *Runner) sleep(ctx context.Context, h *handle, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-h.stop:
	case <-t.C:
	}
}

func logPlaceError(agentName string, p domain.Proposal, err error) {
	if errors.Is(err, execution.ErrTradingDisabled) {
		// ya se logueó una vez en el sink
		slog.Debug("trade skipped, read-only", "agent", agentName, "token", p.TokenID)
		return
	}
	slog.Warn("trade rejected",
		"agent", agentName,
		"token", p.TokenID,
		"side", p.Side,
		"amount", fmt.Sprintf("%.4f", p.Amount),
		"price", p.Price,
		"err", err,
	)
}
