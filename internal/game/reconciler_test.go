package game

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestReconciler(ft *fakeTime) (*Reconciler, *Wallet) {
	wallet := &Wallet{}
	return NewReconciler(wallet, 5*time.Second, zap.NewNop(), ft.Now), wallet
}

func TestReconcilerSetBalance(t *testing.T) {
	t.Run("applies value and notifies once", func(t *testing.T) {
		recon, wallet := newTestReconciler(newFakeTime())
		var events []BalanceChanged
		recon.OnChange(func(ev BalanceChanged) { events = append(events, ev) })

		recon.SetBalance(1000, SourceAuthority)
		if wallet.Balance != 1000 {
			t.Errorf("Balance = %d, want 1000", wallet.Balance)
		}
		if len(events) != 1 {
			t.Fatalf("got %d events, want 1", len(events))
		}
		if events[0].Value != 1000 || events[0].Source != SourceAuthority {
			t.Errorf("event = %+v, want value 1000 from auth", events[0])
		}
	})

	t.Run("zero delta is a no-op", func(t *testing.T) {
		recon, _ := newTestReconciler(newFakeTime())
		var count int
		recon.OnChange(func(BalanceChanged) { count++ })

		recon.SetBalance(1000, SourceAuthority)
		recon.SetBalance(1000, SourceServerSync)
		if count != 1 {
			t.Errorf("got %d events, want 1", count)
		}
	})

	t.Run("duplicate source value pair is dropped", func(t *testing.T) {
		recon, wallet := newTestReconciler(newFakeTime())

		recon.SetBalance(1000, SourceServerSync)
		recon.SetBalance(800, SourceSpinResult)
		// Redelivery of the already-applied server message must not clobber
		// the newer local settlement.
		recon.SetBalance(1000, SourceServerSync)
		if wallet.Balance != 800 {
			t.Errorf("Balance = %d, want 800", wallet.Balance)
		}
	})

	t.Run("fresh authoritative value replaces optimistic one", func(t *testing.T) {
		recon, wallet := newTestReconciler(newFakeTime())

		recon.SetBalance(1000, SourceServerSync)
		recon.SetBalance(800, SourceSpinResult)
		recon.SetBalance(950, SourceServerSync)
		if wallet.Balance != 950 {
			t.Errorf("Balance = %d, want 950", wallet.Balance)
		}
	})

	t.Run("negative balance panics", func(t *testing.T) {
		recon, _ := newTestReconciler(newFakeTime())
		defer func() {
			if recover() == nil {
				t.Error("SetBalance(-1) did not panic")
			}
		}()
		recon.SetBalance(-1, SourceAuthority)
	})

	t.Run("committed above balance panics", func(t *testing.T) {
		recon, wallet := newTestReconciler(newFakeTime())
		recon.SetBalance(1000, SourceAuthority)
		wallet.Committed = 900
		defer func() {
			if recover() == nil {
				t.Error("SetBalance below committed did not panic")
			}
		}()
		recon.SetBalance(500, SourceServerSync)
	})
}

func TestReconcilerResyncTriggers(t *testing.T) {
	t.Run("external source requests resync", func(t *testing.T) {
		recon, _ := newTestReconciler(newFakeTime())
		var calls int
		recon.SetResync(func() { calls++ })

		recon.SetBalance(1000, SourceServerSync)
		if calls != 1 {
			t.Errorf("resync calls = %d, want 1", calls)
		}
	})

	t.Run("self source never requests resync", func(t *testing.T) {
		recon, _ := newTestReconciler(newFakeTime())
		var calls int
		recon.SetResync(func() { calls++ })

		recon.SetBalance(1000, SourceSpinResult)
		recon.SetBalance(900, SourceCorrection)
		if calls != 0 {
			t.Errorf("resync calls = %d, want 0", calls)
		}
	})
}

func TestReconcilerResyncThrottle(t *testing.T) {
	ft := newFakeTime()
	recon, _ := newTestReconciler(ft)
	var calls int
	recon.SetResync(func() { calls++ })

	if !recon.Resync(false) {
		t.Fatal("first Resync(false) = false, want true")
	}
	if recon.Resync(false) {
		t.Error("second Resync(false) inside window = true, want false")
	}
	if !recon.Resync(true) {
		t.Error("Resync(true) = false, want true")
	}

	ft.Advance(6 * time.Second)
	if !recon.Resync(false) {
		t.Error("Resync(false) after window = false, want true")
	}
	if calls != 3 {
		t.Errorf("resync calls = %d, want 3", calls)
	}
}
