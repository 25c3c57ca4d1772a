// Package signals wraps proposal generators as tools that emit normalized
// opinions, for agents that combine several strategies.
package signals

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/alejandrodnm/polyswarm/internal/domain"
	"github.com/alejandrodnm/polyswarm/internal/strategy"
)

// WrappedConfidence is reported for generators that do not score themselves.
const WrappedConfidence = 0.6

// Registry maps tool names to generators. It is read-only once built.
type Registry struct {
	tools map[string]strategy.Generator
}

// NewRegistry builds a registry from the given generators, keyed by Name().
func NewRegistry(generators ...strategy.Generator) *Registry {
	r := &Registry{tools: make(map[string]strategy.Generator, len(generators))}
	for _, g := range generators {
		r.tools[g.Name()] = g
	}
	return r
}

// FromStrategies builds a registry with every generator of a strategy.Registry
// except the excluded names.
func FromStrategies(reg strategy.Registry, exclude ...string) *Registry {
	skip := make(map[string]bool, len(exclude))
	for _, name := range exclude {
		skip[name] = true
	}
	var gens []strategy.Generator
	for _, name := range reg.Names() {
		if !skip[name] {
			gens = append(gens, reg[name])
		}
	}
	return NewRegistry(gens...)
}

// Names returns the tool names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EvaluateAll runs every tool against the same context. A tool that fails,
// panics or has no opinion maps to nil without affecting the others.
func (r *Registry) EvaluateAll(ctx context.Context, sc strategy.Context) map[string]*domain.ToolSignal {
	out := make(map[string]*domain.ToolSignal, len(r.tools))
	for _, name := range r.Names() {
		out[name] = r.evaluate(ctx, name, sc)
	}
	return out
}

func (r *Registry) evaluate(ctx context.Context, name string, sc strategy.Context) (sig *domain.ToolSignal) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Warn("tool panicked", "tool", name, "agent", sc.Agent, "panic", fmt.Sprint(rec))
			sig = nil
		}
	}()

	p, err := r.tools[name].Evaluate(ctx, sc)
	if err != nil {
		slog.Debug("tool failed", "tool", name, "agent", sc.Agent, "err", err)
		return nil
	}
	if p == nil {
		return nil
	}
	return ToSignal(*p, sc.Balance)
}

// ToSignal projects a proposal into a ToolSignal with the wrapped confidence.
func ToSignal(p domain.Proposal, balance float64) *domain.ToolSignal {
	sig := &domain.ToolSignal{
		Side:       p.Side,
		Confidence: WrappedConfidence,
		Price:      p.Price,
		Reasoning:  p.Reasoning,
	}
	if balance > 0 {
		sig.BetFraction = math.Min(1, p.Amount/balance)
	}
	return sig
}
