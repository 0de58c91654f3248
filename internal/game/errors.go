package game

import "errors"

// Validation errors: rejected synchronously, before any network call, with no
// state mutated. Transport failures are wrapped and surfaced separately.
var (
	ErrBettingClosed         = errors.New("betting is closed")
	ErrAmountOutOfRange      = errors.New("bet amount out of range")
	ErrInsufficientAvailable = errors.New("insufficient available balance")
	ErrBetNotFound           = errors.New("bet not found")
	ErrBetNotPending         = errors.New("bet is not pending")
	ErrBetNotCancellable     = errors.New("bet can no longer be cancelled")
	ErrConfirmInFlight       = errors.New("a bet confirmation is already in flight")
	ErrBetLimit              = errors.New("bet limit reached for this round")
	ErrSpinInFlight          = errors.New("spin already requested")
	ErrNoConfirmedBets       = errors.New("no confirmed bets to play")
	ErrSessionActive         = errors.New("auto-bet session already running")
	ErrUnknownStrategy       = errors.New("unknown auto-bet strategy")
	ErrNoSession             = errors.New("no auto-bet session running")
)
