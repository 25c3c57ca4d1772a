package arbitration

import (
	"context"
	"log/slog"

	"github.com/alejandrodnm/polyswarm/internal/domain"
)

// Arbiter encadena las etapas: venta sin shares, consenso y veto.
type Arbiter struct {
	consensus *Consensus
	veto      *Veto
}

// NewArbiter compone la cadena. Ambas etapas son opcionales.
func NewArbiter(consensus *Consensus, veto *Veto) *Arbiter {
	if veto == nil {
		veto = NewVeto(nil, VetoConfig{})
	}
	return &Arbiter{consensus: consensus, veto: veto}
}

// Arbitrate devuelve la decisión final para la propuesta. Nunca devuelve Fallback.
func (a *Arbiter) Arbitrate(ctx context.Context, in Input) domain.Decision {
	if sellWithoutShares(in) {
		return domain.Veto("sell without shares")
	}

	if a.consensus.Enabled() {
		d := a.consensus.Decide(ctx, in)
		if d.Verdict != domain.VerdictFallback {
			return d
		}
		slog.Debug("consensus fell back to veto stage", "agent", in.Agent, "reason", d.Reason)
	}
	return a.veto.Review(ctx, in)
}
