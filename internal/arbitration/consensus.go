package arbitration

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/alejandrodnm/polyswarm/internal/domain"
	"github.com/alejandrodnm/polyswarm/internal/ports"
)

// ConsensusConfig configura el hivemind: varios especialistas y un coordinador.
type ConsensusConfig struct {
	Specialists []string
	Coordinator string
	MaxTokens   int
}

// Consensus consulta a los especialistas en paralelo y deja la decisión final
// al coordinador.
type Consensus struct {
	model ports.ModelService
	cfg   ConsensusConfig
}

// NewConsensus crea la etapa de consenso. Con model nil la etapa queda deshabilitada.
func NewConsensus(model ports.ModelService, cfg ConsensusConfig) *Consensus {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 384
	}
	return &Consensus{model: model, cfg: cfg}
}

// Enabled devuelve true si hay coordinador y al menos un especialista.
func (c *Consensus) Enabled() bool {
	return c != nil && c.model != nil && c.cfg.Coordinator != "" && len(c.cfg.Specialists) > 0
}

// Decide devuelve Execute, Veto o Fallback. Fallback significa que el coordinador
// no produjo una decisión utilizable.
func (c *Consensus) Decide(ctx context.Context, in Input) domain.Decision {
	if !c.Enabled() {
		return domain.Fallback("consensus disabled")
	}

	opinions := c.poll(ctx, in)

	req := requestFor(c.cfg.Coordinator, coordinatorSystemPrompt, coordinatorPrompt(in, opinions), c.cfg.MaxTokens)
	text, err := c.model.Generate(ctx, req)
	if err != nil {
		slog.Warn("coordinator failed", "agent", in.Agent, "model", c.cfg.Coordinator, "err", err)
		return domain.Fallback("coordinator failed")
	}
	d, err := parseDecision(text)
	if err != nil {
		slog.Warn("coordinator output unparsable", "agent", in.Agent, "model", c.cfg.Coordinator, "err", err)
		return domain.Fallback("coordinator output unparsable")
	}
	return d.resolve(in.Proposal)
}

// poll consulta a todos los especialistas. Los que fallan se descartan.
func (c *Consensus) poll(ctx context.Context, in Input) []specialistOpinion {
	prompt := specialistPrompt(in)
	results := make([]*specialistOpinion, len(c.cfg.Specialists))

	var g errgroup.Group
	g.SetLimit(len(c.cfg.Specialists))
	for i, model := range c.cfg.Specialists {
		g.Go(func() error {
			req := requestFor(model, specialistSystemPrompt, prompt, c.cfg.MaxTokens)
			text, err := c.model.Generate(ctx, req)
			if err != nil {
				slog.Debug("specialist failed", "agent", in.Agent, "model", model, "err", err)
				return nil
			}
			op, err := parseOpinion(text)
			if err != nil {
				slog.Debug("specialist output unparsable", "agent", in.Agent, "model", model, "err", err)
				return nil
			}
			op.Model = model
			results[i] = &op
			return nil
		})
	}
	_ = g.Wait()

	opinions := make([]specialistOpinion, 0, len(results))
	for _, op := range results {
		if op != nil {
			opinions = append(opinions, *op)
		}
	}
	return opinions
}

