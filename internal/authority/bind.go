package authority

import (
	"context"

	"croupier/internal/transport"
)

// Bind attaches an in-process client session to the engine: commands call
// straight in, broadcasts fan out over the loopback's event stream. Used for
// single-process runs and tests where a socket adds nothing.
func (e *Engine) Bind(userID string) *transport.Loopback {
	lb := transport.NewLoopback()

	lb.PlaceBetFn = func(ctx context.Context, req transport.PlaceBetRequest) (transport.PlaceBetResult, error) {
		resp := e.PlaceBet(BetRequest{
			UserID: userID,
			Type:   req.Type,
			Value:  req.Value,
			Amount: req.Amount,
		})
		return transport.PlaceBetResult{
			Success:      resp.Success,
			BetID:        resp.BetID,
			NewCommitted: resp.NewCommitted,
			Error:        resp.Error,
		}, nil
	}

	lb.RequestSpinFn = func(ctx context.Context) (transport.SpinResult, error) {
		resp := e.RequestSpin(SpinRequest{UserID: userID})
		return transport.SpinResult{
			Success:    resp.Success,
			Pocket:     resp.Pocket,
			CrashX100:  resp.CrashX100,
			ServerSeed: resp.ServerSeed,
			Payouts:    resp.Payouts,
			NewBalance: resp.NewBalance,
			Error:      resp.Error,
		}, nil
	}

	lb.CashoutFn = func(ctx context.Context, betID string) (transport.CashoutResult, error) {
		resp := e.Cashout(CashoutRequest{UserID: userID, BetID: betID})
		return transport.CashoutResult{
			Success:        resp.Success,
			MultiplierX100: resp.MultiplierX100,
			Payout:         resp.Payout,
			NewBalance:     resp.NewBalance,
			Error:          resp.Error,
		}, nil
	}

	lb.QueryBalanceFn = func(ctx context.Context) (transport.BalanceResult, error) {
		balance, err := e.Balance(ctx, userID)
		if err != nil {
			return transport.BalanceResult{}, err
		}
		return transport.BalanceResult{Balance: balance}, nil
	}

	e.Subscribe(func(ev transport.Event) {
		lb.TryEmit(ev)
	})

	return lb
}
