package execution

// sink.go: single-attempt order submission.
//
// A configuration failure disables trading for the rest of the process:
// the first one is logged, later calls fail fast and silently.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/alejandrodnm/polyswarm/internal/domain"
	"github.com/alejandrodnm/polyswarm/internal/ports"
)

// ErrTradingDisabled is returned once the sink has seen a configuration failure
// or was built without an order placer.
var ErrTradingDisabled = errors.New("execution: trading disabled")

// Sink submits trades to an order placer. Safe for concurrent use.
type Sink struct {
	placer   ports.OrderPlacer
	disabled atomic.Bool
	once     sync.Once
}

// NewSink creates a Sink. A nil placer yields a read-only sink.
func NewSink(placer ports.OrderPlacer) *Sink {
	s := &Sink{placer: placer}
	if placer == nil {
		s.disable(domain.ErrNotConfigured)
	}
	return s
}

// Enabled reports whether trades can still be submitted.
func (s *Sink) Enabled() bool { return !s.disabled.Load() }

// Submit places one GTC limit order for amount USDC at price. Size in shares
// is amount/price. There is no retry.
func (s *Sink) Submit(ctx context.Context, tokenID string, side domain.Side, amount, price float64) (domain.PlacedOrder, error) {
	if s.disabled.Load() {
		return domain.PlacedOrder{}, ErrTradingDisabled
	}
	if price <= 0 || price >= 1 {
		return domain.PlacedOrder{}, fmt.Errorf("execution.Submit: invalid price %.4f", price)
	}
	if amount <= 0 {
		return domain.PlacedOrder{}, fmt.Errorf("execution.Submit: invalid amount %.4f", amount)
	}

	req := domain.OrderRequest{
		TokenID: tokenID,
		Side:    side,
		Price:   price,
		Size:    amount / price,
	}
	placed, err := s.placer.PlaceOrder(ctx, req)
	if err != nil {
		if errors.Is(err, domain.ErrNotConfigured) {
			s.disable(err)
			return domain.PlacedOrder{}, ErrTradingDisabled
		}
		return domain.PlacedOrder{}, fmt.Errorf("execution.Submit: %w", err)
	}
	if !placed.Success {
		return placed, fmt.Errorf("execution.Submit: order rejected (status=%s)", placed.Status)
	}
	return placed, nil
}

func (s *Sink) disable(cause error) {
	s.disabled.Store(true)
	s.once.Do(func() {
		slog.Warn("trading disabled, running read-only", "reason", cause)
	})
}
