package game

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Reconciler owns the displayed balance. Every mutation funnels through
// SetBalance; local optimism and authoritative truth converge here. Committed
// stake belongs to the ledger, which shares the same wallet.
type Reconciler struct {
	log    *zap.Logger
	wallet *Wallet

	// last value applied per source, for duplicate-message idempotency
	lastSeen map[BalanceSource]int64

	resync      func()
	resyncEvery time.Duration
	lastResync  time.Time

	now      func() time.Time
	onChange func(BalanceChanged)
}

// NewReconciler wires a reconciler over the shared wallet. now may be nil for
// wall time.
func NewReconciler(wallet *Wallet, resyncEvery time.Duration, log *zap.Logger, now func() time.Time) *Reconciler {
	if now == nil {
		now = time.Now
	}
	return &Reconciler{
		log:         log,
		wallet:      wallet,
		lastSeen:    make(map[BalanceSource]int64),
		resyncEvery: resyncEvery,
		now:         now,
	}
}

// SetResync registers the callback that asks the authority for its balance.
func (r *Reconciler) SetResync(fn func()) {
	r.resync = fn
}

// OnChange registers the single outbound balance-changed notification sink.
func (r *Reconciler) OnChange(fn func(BalanceChanged)) {
	r.onChange = fn
}

// Balance is the current stored balance.
func (r *Reconciler) Balance() int64 {
	return r.wallet.Balance
}

// Available is balance minus committed stake.
func (r *Reconciler) Available() int64 {
	return r.wallet.Available()
}

// SetBalance applies a new balance value tagged with its origin.
// A zero delta is a no-op; a repeat of the same (source, value) pair is a
// no-op; an authoritative value always replaces an optimistic one because the
// later write wins. External sources may trigger a throttled resync request;
// self-originated sources never do.
func (r *Reconciler) SetBalance(value int64, source BalanceSource) {
	if value < 0 {
		panic(fmt.Sprintf("reconciler: negative balance %d from %s", value, source))
	}

	prev, seen := r.lastSeen[source]
	r.lastSeen[source] = value

	delta := value - r.wallet.Balance
	if delta == 0 {
		return
	}
	if seen && prev == value {
		// Duplicate delivery of an already-applied message.
		return
	}

	r.wallet.Balance = value
	if r.wallet.Committed > r.wallet.Balance {
		panic(fmt.Sprintf("reconciler: committed %d exceeds balance %d",
			r.wallet.Committed, r.wallet.Balance))
	}

	r.log.Debug("balance updated",
		zap.Int64("value", value),
		zap.Int64("delta", delta),
		zap.String("source", source.String()))

	if r.onChange != nil {
		r.onChange(BalanceChanged{
			Value:     value,
			Available: r.wallet.Available(),
			Source:    source,
		})
	}

	if !source.Self() {
		r.Resync(false)
	}
}

// Resync fires the registered resync callback. Unless forced, requests are
// throttled to one per resyncEvery to bound request volume. Returns whether
// the callback ran.
func (r *Reconciler) Resync(force bool) bool {
	if r.resync == nil {
		return false
	}
	now := r.now()
	if !force && !r.lastResync.IsZero() && now.Sub(r.lastResync) < r.resyncEvery {
		return false
	}
	r.lastResync = now
	r.resync()
	return true
}
