// Package transport abstracts the real-time connection to the wagering
// authority: request/response commands plus a stream of pushed events.
package transport

import (
	"context"
	"time"
)

// EventType tags pushed events from the authority.
type EventType string

const (
	EventGameState        EventType = "game_state"
	EventGameStarted      EventType = "game_started"
	EventMultiplierUpdate EventType = "multiplier_update"
	EventLiveBetPlaced    EventType = "live_bet_placed"
	EventCashout          EventType = "cashout"
	EventGameResults      EventType = "game_results"
	EventGameCrashed      EventType = "game_crashed"
	EventBetConfirmed     EventType = "bet_confirmed"
	EventBetError         EventType = "bet_error"
	EventBalance          EventType = "balance"
	// EventReconnected is synthesized locally after the channel re-establishes
	// a dropped connection. State may have changed while disconnected.
	EventReconnected EventType = "reconnected"
)

// Event is the typed shape of every inbound message. Fields are populated
// per event type; multipliers travel as hundredths to stay integral.
type Event struct {
	Type           EventType `json:"type"`
	RoundID        string    `json:"round_id,omitempty"`
	Phase          string    `json:"phase,omitempty"`
	RemainingMs    int64     `json:"remaining_ms,omitempty"`
	MultiplierX100 int64     `json:"multiplier_x100,omitempty"`
	Pocket         int       `json:"pocket,omitempty"`
	CrashX100      int64     `json:"crash_x100,omitempty"`
	ServerSeed     string    `json:"server_seed,omitempty"`
	Commitment     string    `json:"commitment,omitempty"`
	UserID         string    `json:"user_id,omitempty"`
	BetID          string    `json:"bet_id,omitempty"`
	Amount         int64     `json:"amount,omitempty"`
	Payout         int64     `json:"payout,omitempty"`
	Balance        int64     `json:"balance,omitempty"`
	Payouts        []Payout  `json:"payouts,omitempty"`
	Error          string    `json:"error,omitempty"`
}

// Payout is one settlement line inside a results event or spin response.
type Payout struct {
	BetID  string `json:"bet_id"`
	Won    bool   `json:"won"`
	Payout int64  `json:"payout"`
	Net    int64  `json:"net"`
}

// PlaceBetRequest asks the authority to accept a wager.
type PlaceBetRequest struct {
	Type   string `json:"type"`
	Value  string `json:"value"`
	Amount int64  `json:"amount"`
}

// PlaceBetResult is the authority's verdict on a wager.
type PlaceBetResult struct {
	Success      bool   `json:"success"`
	BetID        string `json:"bet_id,omitempty"`
	NewCommitted int64  `json:"new_committed,omitempty"`
	Error        string `json:"error,omitempty"`
}

// SpinResult carries the round outcome and settlement.
type SpinResult struct {
	Success    bool     `json:"success"`
	Pocket     int      `json:"pocket"`
	CrashX100  int64    `json:"crash_x100,omitempty"`
	ServerSeed string   `json:"server_seed,omitempty"`
	Payouts    []Payout `json:"payouts,omitempty"`
	NewBalance int64    `json:"new_balance"`
	Error      string   `json:"error,omitempty"`
}

// CashoutResult is the authority's verdict on a crash cashout.
type CashoutResult struct {
	Success        bool   `json:"success"`
	MultiplierX100 int64  `json:"multiplier_x100,omitempty"`
	Payout         int64  `json:"payout,omitempty"`
	NewBalance     int64  `json:"new_balance,omitempty"`
	Error          string `json:"error,omitempty"`
}

// BalanceResult answers a balance query.
type BalanceResult struct {
	Balance int64 `json:"balance"`
}

// Channel is the connection to the authority. Commands are synchronous
// request/response; Events streams pushed messages. Implementations
// reconnect on their own and emit EventReconnected afterward.
type Channel interface {
	Connect(ctx context.Context) error
	Close() error

	PlaceBet(ctx context.Context, req PlaceBetRequest) (PlaceBetResult, error)
	RequestSpin(ctx context.Context) (SpinResult, error)
	Cashout(ctx context.Context, betID string) (CashoutResult, error)
	QueryBalance(ctx context.Context) (BalanceResult, error)

	Events() <-chan Event
}

// Backoff computes the reconnect delay for the given attempt: linear growth,
// capped at max.
func Backoff(attempt int, step, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := time.Duration(attempt) * step
	if d > max {
		return max
	}
	return d
}
