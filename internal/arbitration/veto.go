package arbitration

import (
	"context"
	"log/slog"

	"github.com/alejandrodnm/polyswarm/internal/domain"
	"github.com/alejandrodnm/polyswarm/internal/ports"
)

// VetoConfig configura la etapa de veto de un único modelo.
type VetoConfig struct {
	Model     string
	MaxTokens int
	// Strict loguea como error las respuestas ilegibles del modelo.
	Strict bool
}

// Veto revisa una propuesta con un único modelo asesor.
type Veto struct {
	model ports.ModelService
	cfg   VetoConfig
}

// NewVeto crea la etapa de veto. model puede ser nil: en ese caso todas las
// propuestas pasan sin revisión salvo las ventas sin shares.
func NewVeto(model ports.ModelService, cfg VetoConfig) *Veto {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 256
	}
	return &Veto{model: model, cfg: cfg}
}

// Review decide si la propuesta se ejecuta, se modifica o se veta.
func (v *Veto) Review(ctx context.Context, in Input) domain.Decision {
	if sellWithoutShares(in) {
		return domain.Veto("sell without shares")
	}
	if v.model == nil {
		return domain.Execute(in.Proposal, "no reviewer")
	}

	req := requestFor(v.cfg.Model, vetoSystemPrompt, vetoPrompt(in), v.cfg.MaxTokens)
	text, err := v.model.Generate(ctx, req)
	if err != nil {
		slog.Warn("veto model failed, passing proposal through",
			"agent", in.Agent, "token", in.Proposal.TokenID, "err", err)
		return domain.Execute(in.Proposal, "reviewer unavailable")
	}

	d, err := parseDecision(text)
	if err != nil {
		if v.cfg.Strict {
			slog.Error("veto model returned unparsable output",
				"agent", in.Agent, "token", in.Proposal.TokenID, "err", err)
		} else {
			slog.Debug("veto model returned unparsable output",
				"agent", in.Agent, "token", in.Proposal.TokenID, "err", err)
		}
		return domain.Execute(in.Proposal, "reviewer output unparsable")
	}
	return d.resolve(in.Proposal)
}
