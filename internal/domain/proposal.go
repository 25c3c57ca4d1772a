package domain

// Proposal es la recomendación de un único trade para la ronda actual.
// Nunca se persiste más allá de la ronda que la creó.
type Proposal struct {
	TokenID    string
	Side       Side
	Amount     float64 // cash en USDC
	Price      float64 // precio límite
	Reasoning  string
	Source     string  // nombre del generador que la emitió
	Confidence float64 // confianza declarada por el generador; 0 = sin declarar
}

// Shares devuelve amount/price, o 0 si el precio no es positivo.
func (p Proposal) Shares() float64 {
	if p.Price <= 0 {
		return 0
	}
	return p.Amount / p.Price
}

// ToolSignal es la proyección normalizada de una Proposal para agregación.
type ToolSignal struct {
	Side        Side
	Confidence  float64 // [0,1]
	Price       float64 // 0 = sin precio sugerido
	BetFraction float64 // fracción del balance sugerida; 0 = sin sugerencia
	Reasoning   string
}

// Verdict es el resultado de una etapa de arbitraje.
type Verdict int

const (
	VerdictExecute Verdict = iota
	VerdictVeto
	// VerdictFallback indica que la etapa no pudo decidir y el caller debe
	// delegar en la etapa más simple.
	VerdictFallback
)

func (v Verdict) String() string {
	switch v {
	case VerdictExecute:
		return "EXECUTE"
	case VerdictVeto:
		return "VETO"
	case VerdictFallback:
		return "FALLBACK"
	default:
		return "UNKNOWN"
	}
}

// Decision es la salida del arbitraje.
// Proposal solo es válida cuando Verdict == VerdictExecute.
type Decision struct {
	Verdict  Verdict
	Proposal Proposal
	Reason   string
}

// Execute construye una decisión de ejecución.
func Execute(p Proposal, reason string) Decision {
	return Decision{Verdict: VerdictExecute, Proposal: p, Reason: reason}
}

// Veto construye una decisión de veto.
func Veto(reason string) Decision {
	return Decision{Verdict: VerdictVeto, Reason: reason}
}

// Fallback construye la señal de fallback.
func Fallback(reason string) Decision {
	return Decision{Verdict: VerdictFallback, Reason: reason}
}

// Approved devuelve true si la decisión permite ejecutar.
func (d Decision) Approved() bool { return d.Verdict == VerdictExecute }
