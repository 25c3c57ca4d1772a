package execution_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polyswarm/internal/domain"
	"github.com/alejandrodnm/polyswarm/internal/execution"
)

type fakePlacer struct {
	calls int
	last  domain.OrderRequest
	resp  domain.PlacedOrder
	err   error
}

func (f *fakePlacer) PlaceOrder(_ context.Context, req domain.OrderRequest) (domain.PlacedOrder, error) {
	f.calls++
	f.last = req
	return f.resp, f.err
}

func TestSubmit_ComputesSize(t *testing.T) {
	p := &fakePlacer{resp: domain.PlacedOrder{OrderID: "0xabc", Status: "live", Success: true}}
	s := execution.NewSink(p)

	placed, err := s.Submit(context.Background(), "tok", domain.SideSell, 3, 0.5)
	require.NoError(t, err)

	assert.Equal(t, "0xabc", placed.OrderID)
	assert.Equal(t, domain.SideSell, p.last.Side)
	assert.InDelta(t, 6.0, p.last.Size, 1e-9)
	assert.InDelta(t, 0.5, p.last.Price, 1e-9)
}

func TestSubmit_NilPlacerIsReadOnly(t *testing.T) {
	s := execution.NewSink(nil)
	assert.False(t, s.Enabled())

	_, err := s.Submit(context.Background(), "tok", domain.SideBuy, 3, 0.5)
	assert.ErrorIs(t, err, execution.ErrTradingDisabled)
}

func TestSubmit_NotConfiguredIsSticky(t *testing.T) {
	p := &fakePlacer{err: fmt.Errorf("place order: creds: %w", domain.ErrNotConfigured)}
	s := execution.NewSink(p)

	_, err := s.Submit(context.Background(), "tok", domain.SideBuy, 3, 0.5)
	assert.ErrorIs(t, err, execution.ErrTradingDisabled)
	assert.False(t, s.Enabled())

	// no vuelve a llamar al placer
	_, err = s.Submit(context.Background(), "tok", domain.SideBuy, 3, 0.5)
	assert.ErrorIs(t, err, execution.ErrTradingDisabled)
	assert.Equal(t, 1, p.calls)
}

func TestSubmit_TransientErrorNotSticky(t *testing.T) {
	p := &fakePlacer{err: errors.New("502 bad gateway")}
	s := execution.NewSink(p)

	_, err := s.Submit(context.Background(), "tok", domain.SideBuy, 3, 0.5)
	require.Error(t, err)
	assert.NotErrorIs(t, err, execution.ErrTradingDisabled)
	assert.True(t, s.Enabled())

	p.err = nil
	p.resp = domain.PlacedOrder{Success: true}
	_, err = s.Submit(context.Background(), "tok", domain.SideBuy, 3, 0.5)
	assert.NoError(t, err)
	assert.Equal(t, 2, p.calls)
}

func TestSubmit_Rejected(t *testing.T) {
	p := &fakePlacer{resp: domain.PlacedOrder{Status: "unmatched", Success: false}}
	s := execution.NewSink(p)

	_, err := s.Submit(context.Background(), "tok", domain.SideBuy, 3, 0.5)
	assert.Error(t, err)
}

func TestSubmit_InvalidInputs(t *testing.T) {
	p := &fakePlacer{resp: domain.PlacedOrder{Success: true}}
	s := execution.NewSink(p)

	for _, tc := range []struct{ amount, price float64 }{{3, 0}, {3, 1}, {3, -0.2}, {0, 0.5}} {
		_, err := s.Submit(context.Background(), "tok", domain.SideBuy, tc.amount, tc.price)
		assert.Error(t, err, "amount=%v price=%v", tc.amount, tc.price)
	}
	assert.Equal(t, 0, p.calls)
}
