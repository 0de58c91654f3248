package game

import (
	"fmt"
	"strconv"
)

// payoutTableV1 is the explicit multiplier schedule, keyed by bet type with
// value-level overrides below. Versioned lookup: a schedule change is a new
// table, never an in-place edit.
var payoutTableV1 = map[BetType]int64{
	BetSingleNumber: 35,
	BetRedBlack:     2,
	BetEvenOdd:      2,
	BetHighLow:      2,
	BetCategory:     3,
}

// The single green pocket is far rarer than an even-money color hit.
const greenMultiplierV1 = 14

// redPockets is the standard wheel coloring; every non-zero pocket not listed
// here is black.
var redPockets = map[int]bool{
	1: true, 3: true, 5: true, 7: true, 9: true, 12: true,
	14: true, 16: true, 18: true, 19: true, 21: true, 23: true,
	25: true, 27: true, 30: true, 32: true, 34: true, 36: true,
}

// MultiplierFor resolves the payout multiplier for a bet. Crash bets have no
// static multiplier; their payout comes from the cashout point.
func MultiplierFor(t BetType, value string) (int64, error) {
	switch t {
	case BetSingleNumber:
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 || n > 36 {
			return 0, fmt.Errorf("invalid pocket %q", value)
		}
		return payoutTableV1[t], nil
	case BetRedBlack:
		switch value {
		case "red", "black":
			return payoutTableV1[t], nil
		case "green":
			return greenMultiplierV1, nil
		}
		return 0, fmt.Errorf("invalid color %q", value)
	case BetEvenOdd:
		if value != "even" && value != "odd" {
			return 0, fmt.Errorf("invalid parity %q", value)
		}
		return payoutTableV1[t], nil
	case BetHighLow:
		if value != "high" && value != "low" {
			return 0, fmt.Errorf("invalid range %q", value)
		}
		return payoutTableV1[t], nil
	case BetCategory:
		switch value {
		case "1st12", "2nd12", "3rd12", "col1", "col2", "col3":
			return payoutTableV1[t], nil
		}
		return 0, fmt.Errorf("invalid category %q", value)
	case BetCrash:
		return 0, nil
	}
	return 0, fmt.Errorf("unknown bet type %q", t)
}

// Wins reports whether a roulette bet covers the winning pocket.
// Zero loses every even-money and category bet.
func Wins(t BetType, value string, pocket int) bool {
	switch t {
	case BetSingleNumber:
		n, err := strconv.Atoi(value)
		return err == nil && n == pocket
	case BetRedBlack:
		switch value {
		case "green":
			return pocket == 0
		case "red":
			return redPockets[pocket]
		case "black":
			return pocket != 0 && !redPockets[pocket]
		}
	case BetEvenOdd:
		if pocket == 0 {
			return false
		}
		if value == "even" {
			return pocket%2 == 0
		}
		return pocket%2 == 1
	case BetHighLow:
		if pocket == 0 {
			return false
		}
		if value == "high" {
			return pocket >= 19
		}
		return pocket <= 18
	case BetCategory:
		if pocket == 0 {
			return false
		}
		switch value {
		case "1st12":
			return pocket <= 12
		case "2nd12":
			return pocket >= 13 && pocket <= 24
		case "3rd12":
			return pocket >= 25
		case "col1":
			return pocket%3 == 1
		case "col2":
			return pocket%3 == 2
		case "col3":
			return pocket%3 == 0
		}
	}
	return false
}

// SettleBet computes the settlement line for one confirmed bet against the
// round outcome. Payout includes the returned stake; Net does not.
func SettleBet(b *Bet, out *Outcome) BetOutcome {
	res := BetOutcome{BetID: b.ID}

	if out.Mode == ModeCrash || b.Type == BetCrash {
		// Won only if cashed out at or below the crash point.
		if b.CashoutX100 > 0 && b.CashoutX100 <= out.CrashX100 {
			res.Won = true
			res.Payout = b.Amount * b.CashoutX100 / 100
		}
	} else if Wins(b.Type, b.Value, out.Pocket) {
		res.Won = true
		res.Payout = b.Amount * b.Multiplier
	}

	if res.Won {
		res.Net = res.Payout - b.Amount
	} else {
		res.Net = -b.Amount
	}
	return res
}
