package authority

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

const (
	minCrashX100 = 100
	maxCrashX100 = 100_000_000
	houseEdge    = 0.01 // fraction of rounds that crash instantly
	wheelPockets = 37   // 0..36
)

// roll derives the round's uniform draw from the committed seeds.
func roll(serverSeed, clientSeed string, nonce int) float64 {
	data := fmt.Sprintf("%s:%d", clientSeed, nonce)
	h := hmac.New(sha256.New, []byte(serverSeed))
	h.Write([]byte(data))
	sum := h.Sum(nil)

	v := binary.BigEndian.Uint64(sum[:8])
	return float64(v) / float64(^uint64(0))
}

// Pocket maps the seeds to a roulette pocket 0..36.
func Pocket(serverSeed, clientSeed string, nonce int) int {
	p := int(roll(serverSeed, clientSeed, nonce) * wheelPockets)
	if p >= wheelPockets {
		p = wheelPockets - 1
	}
	return p
}

// CrashX100 maps the seeds to a crash multiplier in hundredths using the
// usual exponential distribution with a house-edge floor.
func CrashX100(serverSeed, clientSeed string, nonce int) int64 {
	r := roll(serverSeed, clientSeed, nonce)
	if r < houseEdge {
		return minCrashX100
	}
	mult := (1 - houseEdge) / (1 - r)
	x100 := int64(mult * 100)
	if x100 < minCrashX100 {
		return minCrashX100
	}
	if x100 > maxCrashX100 {
		return maxCrashX100
	}
	return x100
}

// GenerateSeed creates a cryptographically secure random seed.
func GenerateSeed() string {
	b := make([]byte, 32)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// HashCommitment is the SHA256 commitment broadcast before the round runs.
func HashCommitment(seed string) string {
	h := sha256.New()
	h.Write([]byte(seed))
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyPocket lets a player check a revealed round.
func VerifyPocket(serverSeed, clientSeed string, nonce, claimed int) bool {
	return Pocket(serverSeed, clientSeed, nonce) == claimed
}

// VerifyCrash lets a player check a revealed crash round.
func VerifyCrash(serverSeed, clientSeed string, nonce int, claimedX100 int64) bool {
	return CrashX100(serverSeed, clientSeed, nonce) == claimedX100
}
