package game

import (
	"go.uber.org/zap"
)

// Strategy names the bet-sizing progression of an auto-bet session.
type Strategy string

const (
	StrategyManual     Strategy = "manual"
	StrategyMartingale Strategy = "martingale"
	StrategyFibonacci  Strategy = "fibonacci"
)

// StopReason explains why an auto-bet session halted.
type StopReason string

const (
	StopManual            StopReason = "manual"
	StopTarget            StopReason = "target"
	StopLossLimit         StopReason = "loss-limit"
	StopInsufficientFunds StopReason = "insufficient funds"
	StopRoundsExhausted   StopReason = "rounds exhausted"
	StopStrategyExhausted StopReason = "strategy exhausted"
	StopTransportFailure  StopReason = "transport failure"
)

// SessionParams starts an auto-bet session. Zero ProfitTarget, StopLoss or
// Rounds disables that bound.
type SessionParams struct {
	Strategy     Strategy `json:"strategy"`
	BaseAmount   int64    `json:"base_amount"`
	Rounds       int      `json:"rounds"`
	ProfitTarget int64    `json:"profit_target"`
	StopLoss     int64    `json:"stop_loss"`

	// The wager repeated each round; only its size follows the progression.
	BetType  BetType `json:"bet_type"`
	BetValue string  `json:"bet_value"`
}

type session struct {
	params       SessionParams
	stepIndex    int
	roundsPlayed int
	profit       int64
	failures     int // consecutive transport failures
}

// AutoBet sizes the next wager after each round outcome and decides when to
// halt. It never places bets itself; the round controller asks it for the
// next stake and reports outcomes back.
type AutoBet struct {
	log         *zap.Logger
	minBet      int64
	maxBet      int64
	capFraction float64
	sess        *session
}

// NewAutoBet builds the progression engine. capFraction bounds any single
// stake to a fraction of the available balance so a losing streak cannot
// empty the session in one step.
func NewAutoBet(minBet, maxBet int64, capFraction float64, log *zap.Logger) *AutoBet {
	return &AutoBet{
		log:         log,
		minBet:      minBet,
		maxBet:      maxBet,
		capFraction: capFraction,
	}
}

// Start opens a session. Fails if one is already running or the base stake is
// outside the table limits.
func (a *AutoBet) Start(p SessionParams) error {
	if a.sess != nil {
		return ErrSessionActive
	}
	if p.Strategy != StrategyMartingale && p.Strategy != StrategyFibonacci && p.Strategy != StrategyManual {
		return ErrUnknownStrategy
	}
	if p.BaseAmount < a.minBet || p.BaseAmount > a.maxBet {
		return ErrAmountOutOfRange
	}
	a.sess = &session{params: p}
	a.log.Info("auto-bet session started",
		zap.String("strategy", string(p.Strategy)),
		zap.Int64("base", p.BaseAmount),
		zap.Int("rounds", p.Rounds))
	return nil
}

// Active reports whether a session is running.
func (a *AutoBet) Active() bool {
	return a.sess != nil
}

// Stop halts the session by caller request and returns its summary.
func (a *AutoBet) Stop() *SessionSummary {
	return a.Halt(StopManual)
}

// Halt ends the session for the given reason and returns its summary.
func (a *AutoBet) Halt(reason StopReason) *SessionSummary {
	if a.sess == nil {
		return nil
	}
	return a.halt(reason)
}

// NextBet proposes the stake for the upcoming round, clamped to
// [minBet, min(maxBet, available*capFraction)]. ok is false when the cap
// leaves no room for even the minimum stake.
func (a *AutoBet) NextBet(available int64) (stake int64, ok bool) {
	if a.sess == nil {
		return 0, false
	}
	raw := a.rawStake()
	cap := int64(float64(available) * a.capFraction)
	if cap > a.maxBet {
		cap = a.maxBet
	}
	if cap < a.minBet {
		return 0, false
	}
	if raw > cap {
		raw = cap
	}
	if raw < a.minBet {
		raw = a.minBet
	}
	return raw, true
}

// Observe feeds one settled round's net result back into the progression and
// evaluates the stop conditions in priority order. Returns a summary when the
// session halts, nil while it continues.
func (a *AutoBet) Observe(net int64, available int64) *SessionSummary {
	if a.sess == nil {
		return nil
	}
	s := a.sess
	s.profit += net
	s.roundsPlayed++
	s.failures = 0

	switch s.params.Strategy {
	case StrategyMartingale:
		if net < 0 {
			s.stepIndex++
		} else {
			s.stepIndex = 0
		}
	case StrategyFibonacci:
		if net < 0 {
			s.stepIndex++
		} else {
			s.stepIndex -= 2
			if s.stepIndex < 0 {
				s.stepIndex = 0
			}
		}
	}

	switch {
	case s.params.ProfitTarget > 0 && s.profit >= s.params.ProfitTarget:
		return a.halt(StopTarget)
	case s.params.StopLoss > 0 && s.profit <= -s.params.StopLoss:
		return a.halt(StopLossLimit)
	case available < 2*a.minBet:
		return a.halt(StopInsufficientFunds)
	case s.params.Rounds > 0 && s.roundsPlayed >= s.params.Rounds:
		return a.halt(StopRoundsExhausted)
	}
	if _, ok := a.NextBet(available); !ok {
		return a.halt(StopStrategyExhausted)
	}
	return nil
}

// RecordTransportFailure counts a failed money-moving request during the
// session. Two in a row halt the session; an unattended loop must not keep
// sending wagers into a broken connection.
func (a *AutoBet) RecordTransportFailure() *SessionSummary {
	if a.sess == nil {
		return nil
	}
	a.sess.failures++
	if a.sess.failures >= 2 {
		return a.halt(StopTransportFailure)
	}
	return nil
}

// Params returns the running session's parameters.
func (a *AutoBet) Params() SessionParams {
	if a.sess == nil {
		return SessionParams{}
	}
	return a.sess.params
}

// StepIndex exposes the current progression step.
func (a *AutoBet) StepIndex() int {
	if a.sess == nil {
		return 0
	}
	return a.sess.stepIndex
}

// Profit is the session's cumulative net result.
func (a *AutoBet) Profit() int64 {
	if a.sess == nil {
		return 0
	}
	return a.sess.profit
}

func (a *AutoBet) rawStake() int64 {
	s := a.sess
	base := s.params.BaseAmount
	switch s.params.Strategy {
	case StrategyMartingale:
		if s.stepIndex >= 40 {
			return a.maxBet // 2^40 dwarfs any table limit
		}
		return base << uint(s.stepIndex)
	case StrategyFibonacci:
		return base * fib(s.stepIndex)
	default:
		return base
	}
}

func (a *AutoBet) halt(reason StopReason) *SessionSummary {
	s := a.sess
	a.sess = nil
	sum := &SessionSummary{
		Strategy:     s.params.Strategy,
		RoundsPlayed: s.roundsPlayed,
		Net:          s.profit,
		Reason:       reason,
	}
	a.log.Info("auto-bet session halted",
		zap.String("reason", string(reason)),
		zap.Int("rounds_played", sum.RoundsPlayed),
		zap.Int64("net", sum.Net))
	return sum
}

// fib(0) = fib(1) = 1.
func fib(n int) int64 {
	if n > 60 {
		n = 60 // beyond any reachable table limit
	}
	a, b := int64(1), int64(1)
	for i := 0; i < n; i++ {
		a, b = b, a+b
	}
	return a
}
