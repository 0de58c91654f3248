package game

import (
	"time"
)

// Mode selects the round shape: timer-locked wheel rounds or crash rounds
// that lock when the betting window closes and pay by cashout multiplier.
type Mode string

const (
	ModeRoulette Mode = "roulette"
	ModeCrash    Mode = "crash"
)

// Phase is the round lifecycle state.
type Phase string

const (
	PhaseIdle     Phase = "IDLE"
	PhaseBetting  Phase = "BETTING"
	PhaseLocked   Phase = "LOCKED"
	PhaseSettling Phase = "SETTLING"
)

// BetType identifies the wager category. Roulette types only; crash bets are
// plain stakes settled by cashout multiplier.
type BetType string

const (
	BetSingleNumber BetType = "single_number"
	BetRedBlack     BetType = "red_black"
	BetEvenOdd      BetType = "even_odd"
	BetHighLow      BetType = "high_low"
	BetCategory     BetType = "category"
	BetCrash        BetType = "crash"
)

// BetStatus transitions are monotonic:
// Pending -> Confirmed|Rejected, Confirmed -> Settled.
type BetStatus string

const (
	BetPending   BetStatus = "PENDING"
	BetConfirmed BetStatus = "CONFIRMED"
	BetRejected  BetStatus = "REJECTED"
	BetSettled   BetStatus = "SETTLED"
)

// Bet is owned by the current round's ledger. Amounts are unit-currency
// integers. A pending bet exists only client-side; it does not count toward
// the committed total until the authority confirms it.
type Bet struct {
	ID         string    `json:"id"`
	Type       BetType   `json:"type"`
	Value      string    `json:"value"` // "17", "red", "even", "high", "1st12", ...
	Amount     int64     `json:"amount"`
	Status     BetStatus `json:"status"`
	Multiplier int64     `json:"multiplier"`
	Payout     int64     `json:"payout"`
	PlacedAt   time.Time `json:"placed_at"`

	// Cashout multiplier, hundredths. Crash bets only; 0 means not cashed out.
	CashoutX100 int64 `json:"cashout_x100,omitempty"`

	// token identifies the in-flight confirmation request. A completion whose
	// token no longer matches (the bet was cancelled) is dropped.
	token uint64
}

// Outcome is the authority's verdict for one round.
type Outcome struct {
	Mode Mode `json:"mode"`
	// Roulette: winning pocket 0..36.
	Pocket int `json:"pocket"`
	// Crash: final multiplier, hundredths (237 = 2.37x).
	CrashX100 int64 `json:"crash_x100"`
	// Revealed server seed for fairness verification.
	ServerSeed string `json:"server_seed,omitempty"`
}

// Round is one timed betting-and-outcome cycle. Exactly one round is current
// at a time; it is archived once its outcome has been applied.
type Round struct {
	ID        string        `json:"id"`
	Mode      Mode          `json:"mode"`
	Phase     Phase         `json:"phase"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Outcome   *Outcome      `json:"outcome,omitempty"`
}

// Wallet holds the displayed balance and the reserved stake. Available is
// derived, never stored. Balance moves only through the reconciler and
// Committed only through the ledger.
type Wallet struct {
	Balance   int64 `json:"balance"`
	Committed int64 `json:"committed"`
}

// Available is the only amount a player may wager against.
func (w *Wallet) Available() int64 {
	return w.Balance - w.Committed
}

// BalanceSource tags every balance mutation. Self-originated tags must never
// trigger a resynchronization request back toward the authority.
type BalanceSource int

const (
	SourceSpinResult BalanceSource = iota // settlement applied locally
	SourceCorrection                      // local rollback after a rejection
	SourceServerSync                      // authority pushed a balance event
	SourceAuthority                       // reply to an explicit balance query
)

func (s BalanceSource) String() string {
	switch s {
	case SourceSpinResult:
		return "spin_result"
	case SourceCorrection:
		return "correction"
	case SourceServerSync:
		return "server-sync"
	case SourceAuthority:
		return "auth"
	default:
		return "unknown"
	}
}

// Self reports whether the tag marks a mutation this client originated.
func (s BalanceSource) Self() bool {
	return s == SourceSpinResult || s == SourceCorrection
}

// BalanceChanged is emitted once per effective balance mutation.
type BalanceChanged struct {
	Value     int64         `json:"value"`
	Available int64         `json:"available"`
	Source    BalanceSource `json:"source"`
}

// BetOutcome is the per-bet settlement line.
type BetOutcome struct {
	BetID  string `json:"bet_id"`
	Won    bool   `json:"won"`
	Payout int64  `json:"payout"`
	Net    int64  `json:"net"`
}

// RoundSettled is emitted after a round's outcome has been applied to the
// wallet and every bet is marked settled.
type RoundSettled struct {
	RoundID string       `json:"round_id"`
	Outcome Outcome      `json:"outcome"`
	Bets    []BetOutcome `json:"bets"`
	Net     int64        `json:"net"`
}

// ConfirmPolicy controls what happens to a bet between local staging and the
// remote confirmation request.
type ConfirmPolicy string

const (
	// ConfirmImmediate sends the confirmation request as soon as the bet is staged.
	ConfirmImmediate ConfirmPolicy = "immediate"
	// ConfirmExplicit holds the bet pending until the caller confirms it.
	ConfirmExplicit ConfirmPolicy = "explicit"
	// ConfirmTimed auto-confirms after a configured delay unless the caller
	// cancels first.
	ConfirmTimed ConfirmPolicy = "timed"
)

// NoticeKind maps the error taxonomy onto distinct user-facing surfaces:
// validation inline, transport as a reconnect banner, authority as a toast.
type NoticeKind string

const (
	NoticeValidation NoticeKind = "validation"
	NoticeTransport  NoticeKind = "transport"
	NoticeAuthority  NoticeKind = "authority"
	NoticeInfo       NoticeKind = "info"
)

// Notice is a user-visible message emitted by the core.
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Message string     `json:"message"`
}

// PhaseChanged is emitted on every round phase transition.
type PhaseChanged struct {
	RoundID     string `json:"round_id"`
	Phase       Phase  `json:"phase"`
	RemainingMs int64  `json:"remaining_ms"`
}

// SessionSummary is surfaced when an auto-bet session halts.
type SessionSummary struct {
	Strategy     Strategy   `json:"strategy"`
	RoundsPlayed int        `json:"rounds_played"`
	Net          int64      `json:"net"`
	Reason       StopReason `json:"reason"`
}
