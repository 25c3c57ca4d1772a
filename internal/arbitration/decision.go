package arbitration

import (
	"errors"
	"math"
	"strings"

	"github.com/alejandrodnm/polyswarm/internal/domain"
)

const (
	actionExecute = "EXECUTE"
	actionSkip    = "SKIP"
)

// Input es todo lo que una etapa de arbitraje necesita para decidir.
type Input struct {
	Agent    string
	Market   domain.MarketSnapshot
	Proposal domain.Proposal
	Balance  float64
	Shares   float64 // shares del agente en Proposal.TokenID
}

// modelDecision es la respuesta esperada del modelo de veto y del coordinador.
type modelDecision struct {
	Action    string   `json:"action"`
	Side      string   `json:"side"`
	Amount    *float64 `json:"amount"`
	Price     *float64 `json:"price"`
	Reasoning string   `json:"reasoning"`
}

// specialistOpinion es la respuesta esperada de cada especialista.
type specialistOpinion struct {
	Model            string   `json:"model"`
	Action           string   `json:"action"`
	Side             string   `json:"side"`
	AmountMultiplier *float64 `json:"amount_multiplier"`
	Price            *float64 `json:"price"`
	Confidence       float64  `json:"confidence"`
	Reasoning        string   `json:"reasoning"`
}

// parseDecision decodifica la respuesta. Cualquier acción distinta de EXECUTE
// se resuelve como SKIP; solo una respuesta sin objeto JSON es ParseError.
// Los overrides que no se pueden convertir se ignoran.
func parseDecision(text string) (modelDecision, error) {
	f, err := parseFields(text)
	if err != nil {
		return modelDecision{}, err
	}
	d := modelDecision{
		Action:    strings.ToUpper(strings.TrimSpace(f.str("action"))),
		Side:      f.str("side"),
		Amount:    f.numPtr("amount"),
		Price:     f.numPtr("price"),
		Reasoning: f.str("reasoning"),
	}
	if d.Action != actionExecute {
		d.Action = actionSkip
	}
	return d, nil
}

// parseOpinion decodifica la respuesta de un especialista con las mismas reglas.
func parseOpinion(text string) (specialistOpinion, error) {
	f, err := parseFields(text)
	if err != nil {
		return specialistOpinion{}, err
	}
	confidence, _ := f.num("confidence")
	return specialistOpinion{
		Action:           strings.ToUpper(strings.TrimSpace(f.str("action"))),
		Side:             f.str("side"),
		AmountMultiplier: f.numPtr("amount_multiplier"),
		Price:            f.numPtr("price"),
		Confidence:       confidence,
		Reasoning:        f.str("reasoning"),
	}, nil
}

// resolve convierte la respuesta del modelo en una Decision sobre la propuesta original.
func (d modelDecision) resolve(p domain.Proposal) domain.Decision {
	if d.Action != actionExecute {
		reason := d.Reasoning
		if reason == "" {
			reason = "model skipped"
		}
		return domain.Veto(reason)
	}
	if side, ok := domain.ParseSide(d.Side); ok {
		p.Side = side
	}
	if d.Amount != nil {
		p.Amount = math.Max(0, *d.Amount)
	}
	if d.Price != nil {
		p.Price = *d.Price
	}
	return domain.Execute(p, d.Reasoning)
}

// sellWithoutShares es el invariante duro: nunca se vende lo que no se tiene.
func sellWithoutShares(in Input) bool {
	return in.Proposal.Side == domain.SideSell && in.Shares <= 1e-9
}

func isParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}
