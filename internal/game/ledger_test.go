package game

import (
	"errors"
	"testing"

	"go.uber.org/zap"
)

func newTestLedger(balance int64) (*Ledger, *Wallet) {
	wallet := &Wallet{Balance: balance}
	return NewLedger(wallet, 10, 10000, false, zap.NewNop()), wallet
}

func stageAndConfirm(t *testing.T, l *Ledger, bt BetType, value string, amount int64) *Bet {
	t.Helper()
	bet, err := l.Stage(bt, value, amount, PhaseBetting)
	if err != nil {
		t.Fatalf("Stage() error = %v", err)
	}
	tok, err := l.BeginConfirm(bet.ID)
	if err != nil {
		t.Fatalf("BeginConfirm() error = %v", err)
	}
	if !l.CompleteConfirm(bet.ID, tok, true, "") {
		t.Fatal("CompleteConfirm() = false, want true")
	}
	return bet
}

func TestLedgerStageValidation(t *testing.T) {
	tests := []struct {
		name    string
		phase   Phase
		amount  int64
		wantErr error
	}{
		{"betting closed in idle", PhaseIdle, 100, ErrBettingClosed},
		{"betting closed when locked", PhaseLocked, 100, ErrBettingClosed},
		{"below minimum", PhaseBetting, 5, ErrAmountOutOfRange},
		{"above maximum", PhaseBetting, 20000, ErrAmountOutOfRange},
		{"above available", PhaseBetting, 600, ErrInsufficientAvailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, _ := newTestLedger(500)
			_, err := l.Stage(BetRedBlack, "red", tt.amount, tt.phase)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Stage() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	t.Run("rejected stage leaves no trace", func(t *testing.T) {
		l, wallet := newTestLedger(500)
		l.Stage(BetRedBlack, "red", 600, PhaseBetting)
		if wallet.Committed != 0 {
			t.Errorf("Committed = %d, want 0", wallet.Committed)
		}
		if l.Pending() != nil {
			t.Error("Pending() != nil after rejected stage")
		}
	})

	t.Run("available accounts for committed stake", func(t *testing.T) {
		l, _ := newTestLedger(500)
		stageAndConfirm(t, l, BetRedBlack, "red", 400)
		if _, err := l.Stage(BetEvenOdd, "even", 200, PhaseBetting); !errors.Is(err, ErrInsufficientAvailable) {
			t.Errorf("Stage() error = %v, want %v", err, ErrInsufficientAvailable)
		}
	})

	t.Run("second pending bet blocked while confirm outstanding", func(t *testing.T) {
		l, _ := newTestLedger(500)
		if _, err := l.Stage(BetRedBlack, "red", 100, PhaseBetting); err != nil {
			t.Fatalf("Stage() error = %v", err)
		}
		if _, err := l.Stage(BetEvenOdd, "even", 100, PhaseBetting); !errors.Is(err, ErrConfirmInFlight) {
			t.Errorf("Stage() error = %v, want %v", err, ErrConfirmInFlight)
		}
	})

	t.Run("single bet mode allows one live stake", func(t *testing.T) {
		wallet := &Wallet{Balance: 1000}
		l := NewLedger(wallet, 10, 10000, true, zap.NewNop())
		stageAndConfirm(t, l, BetCrash, "", 100)
		if _, err := l.Stage(BetCrash, "", 100, PhaseBetting); !errors.Is(err, ErrBetLimit) {
			t.Errorf("Stage() error = %v, want %v", err, ErrBetLimit)
		}
	})
}

func TestLedgerConfirmMovesCommitted(t *testing.T) {
	l, wallet := newTestLedger(1000)

	bet, err := l.Stage(BetSingleNumber, "17", 100, PhaseBetting)
	if err != nil {
		t.Fatalf("Stage() error = %v", err)
	}
	if wallet.Committed != 0 {
		t.Errorf("Committed after stage = %d, want 0", wallet.Committed)
	}

	// CompleteConfirm renames the live bet in place, so hold the client id.
	clientID := bet.ID
	tok, err := l.BeginConfirm(clientID)
	if err != nil {
		t.Fatalf("BeginConfirm() error = %v", err)
	}
	if !l.CompleteConfirm(clientID, tok, true, "SRV-42") {
		t.Fatal("CompleteConfirm() = false, want true")
	}
	if wallet.Committed != 100 {
		t.Errorf("Committed = %d, want 100", wallet.Committed)
	}
	if wallet.Available() != 900 {
		t.Errorf("Available() = %d, want 900", wallet.Available())
	}

	// The bet lives on under the authority's id.
	if _, ok := l.Get(clientID); ok {
		t.Error("bet still reachable under client id after rename")
	}
	renamed, ok := l.Get("SRV-42")
	if !ok {
		t.Fatal("bet not reachable under server id")
	}
	if renamed.Status != BetConfirmed {
		t.Errorf("Status = %q, want %q", renamed.Status, BetConfirmed)
	}
}

func TestLedgerRejectionLeavesWalletUntouched(t *testing.T) {
	l, wallet := newTestLedger(1000)

	bet, _ := l.Stage(BetRedBlack, "red", 100, PhaseBetting)
	tok, _ := l.BeginConfirm(bet.ID)
	if !l.CompleteConfirm(bet.ID, tok, false, "") {
		t.Fatal("CompleteConfirm() = false, want true")
	}
	if wallet.Committed != 0 {
		t.Errorf("Committed = %d, want 0", wallet.Committed)
	}
	got, _ := l.Get(bet.ID)
	if got.Status != BetRejected {
		t.Errorf("Status = %q, want %q", got.Status, BetRejected)
	}
}

func TestLedgerCancelRace(t *testing.T) {
	// Cancel lands while the confirmation is in flight: the late confirmation
	// carries a stale token and must be dropped, never committing funds for a
	// bet the player no longer has.
	l, wallet := newTestLedger(1000)

	bet, _ := l.Stage(BetRedBlack, "red", 100, PhaseBetting)
	tok, _ := l.BeginConfirm(bet.ID)

	if err := l.Cancel(bet.ID, false); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if l.CompleteConfirm(bet.ID, tok, true, "SRV-1") {
		t.Error("CompleteConfirm() after cancel = true, want false")
	}
	if wallet.Committed != 0 {
		t.Errorf("Committed = %d, want 0", wallet.Committed)
	}
	if _, ok := l.Get("SRV-1"); ok {
		t.Error("cancelled bet resurrected under server id")
	}

	// The slot is free again for a fresh wager.
	if _, err := l.Stage(BetEvenOdd, "even", 50, PhaseBetting); err != nil {
		t.Errorf("Stage() after cancel error = %v", err)
	}
}

func TestLedgerCancelConfirmed(t *testing.T) {
	l, wallet := newTestLedger(1000)
	bet := stageAndConfirm(t, l, BetRedBlack, "red", 100)

	if err := l.Cancel(bet.ID, false); !errors.Is(err, ErrBetNotCancellable) {
		t.Errorf("Cancel(allowConfirmed=false) error = %v, want %v", err, ErrBetNotCancellable)
	}
	if err := l.Cancel(bet.ID, true); err != nil {
		t.Fatalf("Cancel(allowConfirmed=true) error = %v", err)
	}
	if wallet.Committed != 0 {
		t.Errorf("Committed = %d, want 0", wallet.Committed)
	}
}

func TestLedgerSettle(t *testing.T) {
	t.Run("releases committed and forces out pendings", func(t *testing.T) {
		l, wallet := newTestLedger(1000)
		win := stageAndConfirm(t, l, BetSingleNumber, "17", 100)
		lose := stageAndConfirm(t, l, BetRedBlack, "red", 50)
		pending, _ := l.Stage(BetEvenOdd, "even", 25, PhaseBetting)

		results, net, applied := l.Settle(&Outcome{Mode: ModeRoulette, Pocket: 17})
		if !applied {
			t.Fatal("Settle() applied = false, want true")
		}
		if len(results) != 2 {
			t.Fatalf("got %d results, want 2", len(results))
		}
		if net != 3400-50 {
			t.Errorf("net = %d, want %d", net, 3400-50)
		}
		if wallet.Committed != 0 {
			t.Errorf("Committed = %d, want 0", wallet.Committed)
		}

		for _, id := range []string{win.ID, lose.ID} {
			if b, _ := l.Get(id); b.Status != BetSettled {
				t.Errorf("bet %s Status = %q, want %q", id, b.Status, BetSettled)
			}
		}
		if b, _ := l.Get(pending.ID); b.Status != BetRejected {
			t.Errorf("pending bet Status = %q, want %q", b.Status, BetRejected)
		}
	})

	t.Run("second settle is a no-op", func(t *testing.T) {
		l, wallet := newTestLedger(1000)
		stageAndConfirm(t, l, BetRedBlack, "red", 100)

		_, net1, _ := l.Settle(&Outcome{Mode: ModeRoulette, Pocket: 32})
		results, net2, applied := l.Settle(&Outcome{Mode: ModeRoulette, Pocket: 32})
		if applied {
			t.Error("second Settle() applied = true, want false")
		}
		if net2 != net1 {
			t.Errorf("second Settle() net = %d, want %d", net2, net1)
		}
		if len(results) != 1 {
			t.Errorf("second Settle() returned %d results, want 1", len(results))
		}
		if wallet.Committed != 0 {
			t.Errorf("Committed = %d, want 0", wallet.Committed)
		}
	})
}

func TestLedgerCashoutSettle(t *testing.T) {
	wallet := &Wallet{Balance: 1000}
	l := NewLedger(wallet, 10, 10000, true, zap.NewNop())
	bet := stageAndConfirm(t, l, BetCrash, "", 200)

	line, err := l.CashoutSettle(bet.ID, 150)
	if err != nil {
		t.Fatalf("CashoutSettle() error = %v", err)
	}
	if line.Payout != 300 || line.Net != 100 {
		t.Errorf("CashoutSettle() = payout %d net %d, want 300 and 100", line.Payout, line.Net)
	}
	if wallet.Committed != 0 {
		t.Errorf("Committed = %d, want 0", wallet.Committed)
	}

	// The crash settlement skips the already-settled stake.
	results, net, _ := l.Settle(&Outcome{Mode: ModeCrash, CrashX100: 500})
	if len(results) != 0 || net != 0 {
		t.Errorf("Settle() after cashout = %d results net %d, want none", len(results), net)
	}
}

func TestLedgerResetInvariant(t *testing.T) {
	l, wallet := newTestLedger(1000)
	stageAndConfirm(t, l, BetRedBlack, "red", 100)
	l.Settle(&Outcome{Mode: ModeRoulette, Pocket: 32})

	// Clean reset after settlement.
	l.Reset()
	if l.ConfirmedCount() != 0 {
		t.Errorf("ConfirmedCount() after reset = %d, want 0", l.ConfirmedCount())
	}

	// A reset that would orphan committed stake panics loudly.
	wallet.Committed = 100
	defer func() {
		if recover() == nil {
			t.Error("Reset() with orphaned committed stake did not panic")
		}
	}()
	l.Reset()
}
