package transport

import (
	"context"
	"errors"
)

// Loopback is an in-process Channel. The authority binds its handlers
// directly; tests script them. Nil handlers report failure without state.
type Loopback struct {
	PlaceBetFn     func(ctx context.Context, req PlaceBetRequest) (PlaceBetResult, error)
	RequestSpinFn  func(ctx context.Context) (SpinResult, error)
	CashoutFn      func(ctx context.Context, betID string) (CashoutResult, error)
	QueryBalanceFn func(ctx context.Context) (BalanceResult, error)

	events chan Event
}

// NewLoopback builds an unbound loopback channel.
func NewLoopback() *Loopback {
	return &Loopback{events: make(chan Event, 100)}
}

func (l *Loopback) Connect(ctx context.Context) error { return nil }
func (l *Loopback) Close() error                      { return nil }

// Events streams whatever Emit pushed.
func (l *Loopback) Events() <-chan Event { return l.events }

// Emit injects a pushed event, as the authority (or a test) would.
func (l *Loopback) Emit(ev Event) {
	l.events <- ev
}

// TryEmit injects an event without blocking; a full buffer drops it.
func (l *Loopback) TryEmit(ev Event) bool {
	select {
	case l.events <- ev:
		return true
	default:
		return false
	}
}

func (l *Loopback) PlaceBet(ctx context.Context, req PlaceBetRequest) (PlaceBetResult, error) {
	if l.PlaceBetFn == nil {
		return PlaceBetResult{}, errors.New("place_bet unbound")
	}
	return l.PlaceBetFn(ctx, req)
}

func (l *Loopback) RequestSpin(ctx context.Context) (SpinResult, error) {
	if l.RequestSpinFn == nil {
		return SpinResult{}, errors.New("request_spin unbound")
	}
	return l.RequestSpinFn(ctx)
}

func (l *Loopback) Cashout(ctx context.Context, betID string) (CashoutResult, error) {
	if l.CashoutFn == nil {
		return CashoutResult{}, errors.New("cashout unbound")
	}
	return l.CashoutFn(ctx, betID)
}

func (l *Loopback) QueryBalance(ctx context.Context) (BalanceResult, error) {
	if l.QueryBalanceFn == nil {
		return BalanceResult{}, errors.New("query_balance unbound")
	}
	return l.QueryBalanceFn(ctx)
}
