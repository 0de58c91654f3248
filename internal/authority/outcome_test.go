package authority

import (
	"testing"
)

func TestPocketDeterministic(t *testing.T) {
	serverSeed := "test-server-seed-123"
	clientSeed := "test-client-seed-456"

	first := Pocket(serverSeed, clientSeed, 1)
	for i := 0; i < 10; i++ {
		if got := Pocket(serverSeed, clientSeed, 1); got != first {
			t.Fatalf("Pocket() = %d on repeat, want %d", got, first)
		}
	}
}

func TestPocketRange(t *testing.T) {
	serverSeed := GenerateSeed()
	clientSeed := GenerateSeed()

	for nonce := 0; nonce < 1000; nonce++ {
		p := Pocket(serverSeed, clientSeed, nonce)
		if p < 0 || p > 36 {
			t.Fatalf("Pocket(nonce=%d) = %d, want 0..36", nonce, p)
		}
	}
}

func TestPocketVariesWithInputs(t *testing.T) {
	serverSeed := "server-seed"
	clientSeed := "client-seed"

	seen := make(map[int]bool)
	for nonce := 0; nonce < 200; nonce++ {
		seen[Pocket(serverSeed, clientSeed, nonce)] = true
	}
	if len(seen) < 20 {
		t.Errorf("200 nonces produced %d distinct pockets, want a spread", len(seen))
	}

	a := Pocket(serverSeed, clientSeed, 1)
	b := Pocket("other-"+serverSeed, clientSeed, 1)
	c := Pocket(serverSeed, "other-"+clientSeed, 1)
	if a == b && a == c {
		t.Error("pocket insensitive to seed changes")
	}
}

func TestCrashX100Bounds(t *testing.T) {
	serverSeed := GenerateSeed()
	clientSeed := GenerateSeed()

	for nonce := 0; nonce < 1000; nonce++ {
		x := CrashX100(serverSeed, clientSeed, nonce)
		if x < 100 {
			t.Fatalf("CrashX100(nonce=%d) = %d, below 1.00x floor", nonce, x)
		}
		if x > 100_000_000 {
			t.Fatalf("CrashX100(nonce=%d) = %d, above ceiling", nonce, x)
		}
	}
}

func TestSeedCommitment(t *testing.T) {
	seed := GenerateSeed()
	if len(seed) != 64 {
		t.Fatalf("GenerateSeed() length = %d, want 64 hex chars", len(seed))
	}
	if other := GenerateSeed(); other == seed {
		t.Fatal("GenerateSeed() repeated a seed")
	}

	commitment := HashCommitment(seed)
	if len(commitment) != 64 {
		t.Errorf("HashCommitment() length = %d, want 64 hex chars", len(commitment))
	}
	if commitment == HashCommitment("different") {
		t.Error("distinct seeds share a commitment")
	}
	// Re-hashing the revealed seed must reproduce the commitment.
	if commitment != HashCommitment(seed) {
		t.Error("commitment not reproducible from revealed seed")
	}
}

func TestVerifyOutcomes(t *testing.T) {
	serverSeed := GenerateSeed()
	clientSeed := "player-chosen"
	nonce := 7

	pocket := Pocket(serverSeed, clientSeed, nonce)
	if !VerifyPocket(serverSeed, clientSeed, nonce, pocket) {
		t.Error("VerifyPocket() rejected the genuine outcome")
	}
	if VerifyPocket(serverSeed, clientSeed, nonce, (pocket+1)%37) {
		t.Error("VerifyPocket() accepted a forged pocket")
	}

	crash := CrashX100(serverSeed, clientSeed, nonce)
	if !VerifyCrash(serverSeed, clientSeed, nonce, crash) {
		t.Error("VerifyCrash() rejected the genuine outcome")
	}
	if VerifyCrash(serverSeed, clientSeed, nonce, crash+1) {
		t.Error("VerifyCrash() accepted a forged multiplier")
	}
}
