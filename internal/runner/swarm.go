package runner

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alejandrodnm/polyswarm/internal/agent"
	"github.com/alejandrodnm/polyswarm/internal/domain"
	"github.com/alejandrodnm/polyswarm/internal/ports"
)

// idlePenalty se suma a la pausa cuando nadie operó en la ronda.
const idlePenalty = time.Second

// Swarm ejecuta rondas sincronizadas: un único snapshot de mercados por ronda,
// evaluación concurrente y despacho ordenado por tamaño.
type Swarm struct {
	cfg      Config
	view     MarketSource
	agents   []*agent.Agent
	notifier ports.Notifier
	now      func() time.Time
}

// NewSwarm crea el scheduler. notifier puede ser nil.
func NewSwarm(cfg Config, view MarketSource, notifier ports.Notifier, agents ...*agent.Agent) *Swarm {
	if cfg.PerAgent <= 0 {
		cfg.PerAgent = DefaultConfig().PerAgent
	}
	return &Swarm{cfg: cfg, view: view, agents: agents, notifier: notifier, now: time.Now}
}

// proposal es una propuesta etiquetada con su agente.
type proposal struct {
	agent *agent.Agent
	p     domain.Proposal
}

// Run ejecuta rondas hasta cfg.Iterations o hasta que se cancele ctx.
func (s *Swarm) Run(ctx context.Context) error {
	slog.Info("swarm starting",
		"agents", len(s.agents),
		"iterations", s.cfg.Iterations,
		"markets", s.cfg.Markets,
		"per_agent", s.cfg.PerAgent,
	)

	for round := 1; s.cfg.Iterations <= 0 || round <= s.cfg.Iterations; round++ {
		if ctx.Err() != nil {
			break
		}
		report := s.Round(ctx, round)

		if s.notifier != nil && report.Markets > 0 {
			if err := s.notifier.RoundSummary(ctx, report); err != nil {
				slog.Warn("notifier error", "err", err)
			}
		}

		pause := s.cfg.RoundSleep
		if report.Executed == 0 {
			pause += idlePenalty
		}
		if !sleepCtx(ctx, pause) {
			break
		}
	}

	if s.notifier != nil {
		if err := s.notifier.AgentStats(context.WithoutCancel(ctx), s.Stats(context.WithoutCancel(ctx))); err != nil {
			slog.Warn("notifier error", "err", err)
		}
	}
	slog.Info("swarm stopped")
	return nil
}

// Round ejecuta una ronda completa y devuelve su resumen.
func (s *Swarm) Round(ctx context.Context, number int) domain.RoundReport {
	report := domain.RoundReport{
		ID:        uuid.NewString(),
		Number:    number,
		StartedAt: s.now(),
	}

	markets := s.view.ListTradeable(ctx, s.cfg.Markets)
	report.Markets = len(markets)
	if len(markets) == 0 {
		slog.Warn("no active markets found", "round", number)
		report.Duration = s.now().Sub(report.StartedAt)
		return report
	}

	proposals := s.evaluate(ctx, markets)
	report.Proposals = len(proposals)

	for _, pr := range proposals {
		if ctx.Err() != nil {
			break
		}
		res := domain.DispatchResult{Agent: pr.agent.Name(), Proposal: pr.p}
		if _, err := pr.agent.PlaceBet(ctx, pr.p); err != nil {
			logPlaceError(pr.agent.Name(), pr.p, err)
			res.Reason = err.Error()
		} else {
			res.Executed = true
			report.Executed++
			pr.agent.SetStatus(ctx, domain.StatusTrading)
		}
		report.Results = append(report.Results, res)
	}

	for _, a := range s.agents {
		if a.ShouldContinue(ctx) {
			a.SetStatus(ctx, domain.StatusIdle)
		}
		a.RecordIteration(ctx, number)
		a.LogStats(ctx, s.cfg.StatsLimit)
	}

	report.Duration = s.now().Sub(report.StartedAt)
	slog.Info("swarm round complete",
		"round", number,
		"markets", report.Markets,
		"proposals", report.Proposals,
		"executed", report.Executed,
		"duration", report.Duration.Round(time.Millisecond),
	)
	return report
}

// evaluate corre todos los agentes sobre el mismo snapshot y devuelve las
// propuestas ordenadas por amount descendente (estable respecto al orden de agentes).
func (s *Swarm) evaluate(ctx context.Context, markets []domain.MarketSnapshot) []proposal {
	perAgent := make([][]proposal, len(s.agents))

	var g errgroup.Group
	g.SetLimit(max(len(s.agents), 1))
	for i, a := range s.agents {
		g.Go(func() error {
			perAgent[i] = s.evaluateAgent(ctx, a, markets)
			return nil
		})
	}
	_ = g.Wait()

	var all []proposal
	for _, ps := range perAgent {
		all = append(all, ps...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].p.Amount > all[j].p.Amount
	})
	return all
}

func (s *Swarm) evaluateAgent(ctx context.Context, a *agent.Agent, markets []domain.MarketSnapshot) (out []proposal) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("agent evaluation panicked", "agent", a.Name(), "panic", rec)
		}
	}()

	a.SetStatus(ctx, domain.StatusEvaluating)
	for i, m := range markets {
		if i >= s.cfg.PerAgent || ctx.Err() != nil {
			break
		}
		if !a.ShouldContinue(ctx) {
			a.SetStatus(ctx, domain.StatusStopped)
			break
		}
		p, err := a.Decide(ctx, m)
		if err != nil {
			slog.Debug("evaluate failed", "agent", a.Name(), "token", m.TokenID, "err", err)
			continue
		}
		if p != nil {
			out = append(out, proposal{agent: a, p: *p})
		}
	}
	return out
}

// Stats devuelve las stats de todos los agentes.
func (s *Swarm) Stats(ctx context.Context) []domain.AgentStats {
	out := make([]domain.AgentStats, 0, len(s.agents))
	for _, a := range s.agents {
		out = append(out, a.Stats(ctx))
	}
	return out
}

// sleepCtx devuelve false si el contexto se canceló antes de d.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
