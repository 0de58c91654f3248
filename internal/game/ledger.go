package game

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Ledger tracks the current round's bets through the two-phase commit:
// staged pending locally, then confirmed or rejected by the authority.
// Committed stake on the shared wallet moves only through confirm, cancel and
// settle, so committed always equals the sum of confirmed unsettled amounts.
type Ledger struct {
	log    *zap.Logger
	wallet *Wallet

	minBet    int64
	maxBet    int64
	singleBet bool // crash variant: one stake per round

	bets  map[string]*Bet
	order []string

	nextToken uint64
	inFlight  bool
	seq       int

	settled bool
	results []BetOutcome
	net     int64
}

// NewLedger builds a ledger over the shared wallet. singleBet restricts the
// round to one stake (crash games); roulette allows many confirmed bets, each
// going through the same per-bet protocol.
func NewLedger(wallet *Wallet, minBet, maxBet int64, singleBet bool, log *zap.Logger) *Ledger {
	return &Ledger{
		log:       log,
		wallet:    wallet,
		minBet:    minBet,
		maxBet:    maxBet,
		singleBet: singleBet,
		bets:      make(map[string]*Bet),
	}
}

// Reset discards the settled round's bets and prepares for the next round.
func (l *Ledger) Reset() {
	if got := l.committedTotal(); got != l.wallet.Committed {
		panic(fmt.Sprintf("ledger: committed %d, confirmed unsettled sum %d",
			l.wallet.Committed, got))
	}
	l.bets = make(map[string]*Bet)
	l.order = nil
	l.inFlight = false
	l.settled = false
	l.results = nil
	l.net = 0
}

// Stage validates a wager and records it as pending. Nothing is sent and no
// wallet state moves; rejection leaves no trace.
func (l *Ledger) Stage(t BetType, value string, amount int64, phase Phase) (*Bet, error) {
	if phase != PhaseBetting {
		return nil, ErrBettingClosed
	}
	if amount < l.minBet || amount > l.maxBet {
		return nil, ErrAmountOutOfRange
	}
	if amount > l.wallet.Available() {
		return nil, ErrInsufficientAvailable
	}
	if l.inFlight || l.pending() != nil {
		return nil, ErrConfirmInFlight
	}
	if l.singleBet && l.liveCount() > 0 {
		return nil, ErrBetLimit
	}

	mult, err := MultiplierFor(t, value)
	if err != nil {
		return nil, err
	}

	l.seq++
	l.nextToken++
	bet := &Bet{
		ID:         fmt.Sprintf("BET-%d-%d", time.Now().UnixNano(), l.seq),
		Type:       t,
		Value:      value,
		Amount:     amount,
		Status:     BetPending,
		Multiplier: mult,
		PlacedAt:   time.Now(),
		token:      l.nextToken,
	}
	l.bets[bet.ID] = bet
	l.order = append(l.order, bet.ID)

	l.log.Debug("bet staged",
		zap.String("bet_id", bet.ID),
		zap.String("type", string(t)),
		zap.String("value", value),
		zap.Int64("amount", amount))
	return bet, nil
}

// BeginConfirm marks the pending bet's confirmation request as in flight and
// returns the token that a completion must present.
func (l *Ledger) BeginConfirm(betID string) (uint64, error) {
	bet, ok := l.bets[betID]
	if !ok {
		return 0, ErrBetNotFound
	}
	if bet.Status != BetPending {
		return 0, ErrBetNotPending
	}
	if l.inFlight {
		return 0, ErrConfirmInFlight
	}
	l.inFlight = true
	return bet.token, nil
}

// CompleteConfirm applies the authority's verdict. A completion for a
// cancelled bet carries a stale token and is dropped; this is an identity
// check, not a presence check. Returns whether the verdict was applied.
func (l *Ledger) CompleteConfirm(betID string, token uint64, confirmed bool, serverID string) bool {
	l.inFlight = false

	bet, ok := l.bets[betID]
	if !ok || bet.token != token {
		l.log.Debug("dropping stale confirmation", zap.String("bet_id", betID))
		return false
	}
	if bet.Status != BetPending {
		return false
	}

	if !confirmed {
		bet.Status = BetRejected
		l.log.Info("bet rejected", zap.String("bet_id", betID))
		return true
	}

	if serverID != "" {
		delete(l.bets, betID)
		for i, id := range l.order {
			if id == betID {
				l.order[i] = serverID
			}
		}
		bet.ID = serverID
		l.bets[serverID] = bet
	}
	bet.Status = BetConfirmed
	l.wallet.Committed += bet.Amount
	l.log.Info("bet confirmed",
		zap.String("bet_id", bet.ID),
		zap.Int64("amount", bet.Amount),
		zap.Int64("committed", l.wallet.Committed))
	return true
}

// Cancel discards a pending bet, or refunds a confirmed one when the game
// rules allow it. Cancelling a pending bet invalidates its in-flight
// confirmation by token.
func (l *Ledger) Cancel(betID string, allowConfirmed bool) error {
	bet, ok := l.bets[betID]
	if !ok {
		return ErrBetNotFound
	}
	switch bet.Status {
	case BetPending:
		bet.token = 0 // any in-flight result no longer matches
		l.inFlight = false
		l.remove(betID)
		l.log.Debug("pending bet cancelled", zap.String("bet_id", betID))
		return nil
	case BetConfirmed:
		if !allowConfirmed {
			return ErrBetNotCancellable
		}
		l.wallet.Committed -= bet.Amount
		l.remove(betID)
		l.log.Info("confirmed bet cancelled",
			zap.String("bet_id", betID),
			zap.Int64("refunded", bet.Amount))
		return nil
	}
	return ErrBetNotCancellable
}

// CashoutSettle settles one crash stake early at the cashout multiplier,
// releasing its committed amount. The rest of the round settles at the crash.
func (l *Ledger) CashoutSettle(betID string, x100 int64) (BetOutcome, error) {
	bet, ok := l.bets[betID]
	if !ok {
		return BetOutcome{}, ErrBetNotFound
	}
	if bet.Status != BetConfirmed {
		return BetOutcome{}, ErrBetNotCancellable
	}
	bet.CashoutX100 = x100
	res := BetOutcome{
		BetID:  bet.ID,
		Won:    true,
		Payout: bet.Amount * x100 / 100,
	}
	res.Net = res.Payout - bet.Amount
	l.wallet.Committed -= bet.Amount
	bet.Status = BetSettled
	bet.Payout = res.Payout
	l.log.Info("stake cashed out",
		zap.String("bet_id", betID),
		zap.Int64("multiplier_x100", x100),
		zap.Int64("payout", res.Payout))
	return res, nil
}

// Settle applies the outcome to every confirmed bet, releases the committed
// stake and force-rejects anything still pending. Idempotent: a second call
// for the same round returns the stored result without touching the wallet.
func (l *Ledger) Settle(out *Outcome) (results []BetOutcome, net int64, applied bool) {
	if l.settled {
		return l.results, l.net, false
	}

	for _, id := range l.order {
		bet, ok := l.bets[id]
		if !ok {
			continue
		}
		switch bet.Status {
		case BetPending:
			// The round is over; an unconfirmed bet cannot win or lose.
			bet.Status = BetRejected
		case BetConfirmed:
			res := SettleBet(bet, out)
			l.wallet.Committed -= bet.Amount
			bet.Status = BetSettled
			bet.Payout = res.Payout
			results = append(results, res)
			net += res.Net
		}
	}

	l.settled = true
	l.results = results
	l.net = net
	return results, net, true
}

// Get returns the bet with the given id.
func (l *Ledger) Get(betID string) (*Bet, bool) {
	bet, ok := l.bets[betID]
	return bet, ok
}

// Pending returns the staged-but-unconfirmed bet, if any.
func (l *Ledger) Pending() *Bet {
	return l.pending()
}

// ConfirmedCount is the number of confirmed unsettled bets.
func (l *Ledger) ConfirmedCount() int {
	n := 0
	for _, bet := range l.bets {
		if bet.Status == BetConfirmed {
			n++
		}
	}
	return n
}

// CommittedTotal recomputes the confirmed unsettled sum for invariant checks.
func (l *Ledger) CommittedTotal() int64 {
	return l.committedTotal()
}

func (l *Ledger) committedTotal() int64 {
	var sum int64
	for _, bet := range l.bets {
		if bet.Status == BetConfirmed {
			sum += bet.Amount
		}
	}
	return sum
}

func (l *Ledger) pending() *Bet {
	for _, bet := range l.bets {
		if bet.Status == BetPending {
			return bet
		}
	}
	return nil
}

func (l *Ledger) liveCount() int {
	n := 0
	for _, bet := range l.bets {
		if bet.Status == BetPending || bet.Status == BetConfirmed {
			n++
		}
	}
	return n
}

func (l *Ledger) remove(betID string) {
	delete(l.bets, betID)
	for i, id := range l.order {
		if id == betID {
			l.order = append(l.order[:i], l.order[i+1:]...)
			return
		}
	}
}
