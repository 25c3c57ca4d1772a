package strategy

import (
	"math/rand"
	"sync"
)

// Rand es la fuente de aleatoriedad de las estrategias.
type Rand interface {
	Float64() float64
}

// lockedRand serializa el acceso a un *rand.Rand.
type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewRand devuelve una fuente seedeada segura para uso concurrente.
func NewRand(seed int64) Rand {
	return &lockedRand{r: rand.New(rand.NewSource(seed))}
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

// uniform devuelve un valor en [lo, hi).
func uniform(rng Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}
