package strategy

import (
	"context"
	"sort"
	"time"

	"github.com/alejandrodnm/polyswarm/internal/domain"
)

// Context es lo que un generador ve al evaluar un instrumento.
type Context struct {
	Agent   string
	Market  domain.MarketSnapshot
	Balance float64
	Shares  float64            // shares del agente en Market.TokenID
	Memory  domain.AgentMemory // copia; incluye el precio actual en PriceHistory
	Now     time.Time
}

// History devuelve el histórico de precios del token evaluado.
func (c Context) History() []float64 {
	return c.Memory.PriceHistory[c.Market.TokenID]
}

// Generator define el contrato de una estrategia de trading.
// Evaluate devuelve nil cuando no hay señal; un error se trata igual que nil
// por el caller pero queda registrado.
type Generator interface {
	// Name devuelve el identificador único de la estrategia.
	Name() string

	// Evaluate analiza el instrumento del contexto y propone como mucho un trade.
	Evaluate(ctx context.Context, sc Context) (*domain.Proposal, error)
}

// Observer lo implementan los generadores que guardan estado en la memoria del agente
// después de emitir una propuesta.
type Observer interface {
	Observe(mem *domain.AgentMemory, p domain.Proposal)
}

// Continuer lo implementan las estrategias con su propio criterio de parada.
// Sin Continuer el agente aplica la fracción mínima de su configuración.
type Continuer interface {
	Continue(initial, balance float64, mem domain.AgentMemory) bool
}

// balanceFloor para cuando el cash cae por debajo de un mínimo absoluto en USDC.
type balanceFloor float64

func (f balanceFloor) Continue(_, balance float64, _ domain.AgentMemory) bool {
	return balance >= float64(f)
}

// fractionFloor para cuando el cash cae por debajo de una fracción del capital inicial.
type fractionFloor float64

func (f fractionFloor) Continue(initial, balance float64, _ domain.AgentMemory) bool {
	return balance >= initial*float64(f)
}

// Registry mantiene las estrategias disponibles indexadas por nombre.
type Registry map[string]Generator

// NewRegistry crea un registry vacío.
func NewRegistry() Registry {
	return make(Registry)
}

// Register añade una estrategia al registry.
func (r Registry) Register(g Generator) {
	r[g.Name()] = g
}

// Get devuelve la estrategia por nombre.
func (r Registry) Get(name string) (Generator, bool) {
	g, ok := r[name]
	return g, ok
}

// Names devuelve los nombres registrados ordenados.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewDefaultRegistry registra el conjunto fijo de estrategias base.
// rng se comparte entre todas; debe ser seguro para uso concurrente.
func NewDefaultRegistry(rng Rand) Registry {
	r := NewRegistry()
	r.Register(NewYOLO(rng))
	r.Register(NewValueHunter(rng))
	r.Register(NewMomentum(rng))
	r.Register(NewContrarian(rng))
	r.Register(NewDiversifier(rng))
	r.Register(NewScalper())
	r.Register(NewArbitrageHunter())
	r.Register(NewWhaleFollower())
	r.Register(NewNewsSentiment(rng))
	r.Register(NewNeuralPredictor(rng))
	return r
}
