package domain

import "strings"

// Side es la dirección de un trade.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ParseSide normaliza mayúsculas y espacios. ok=false si no es BUY ni SELL.
func ParseSide(s string) (Side, bool) {
	switch Side(strings.ToUpper(strings.TrimSpace(s))) {
	case SideBuy:
		return SideBuy, true
	case SideSell:
		return SideSell, true
	default:
		return Side(s), false
	}
}

// Valid devuelve true para BUY y SELL.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

func (s Side) String() string { return string(s) }
