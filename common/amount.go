package common

import (
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// payments may fall short of the invoice amount by 0.001% for fee rounding
	AmountTolerance = decimal.RequireFromString("0.99999")

	SatoshisPerCoin = decimal.NewFromInt(100000000)
)

// SatisfiesAmount reports whether received covers expected within tolerance.
func SatisfiesAmount(received, expected decimal.Decimal) bool {
	if !received.IsPositive() {
		return false
	}
	return received.GreaterThanOrEqual(expected.Mul(AmountTolerance))
}

func SatoshisToCoins(sat int64) decimal.Decimal {
	return decimal.New(sat, -8)
}

func CoinsToSatoshis(amount decimal.Decimal) int64 {
	return amount.Mul(SatoshisPerCoin).Round(0).IntPart()
}

var addressPrefixes = []string{"bitcoincash:", "bchtest:", "bchreg:"}

// NormalizeAddress strips the cashaddr network prefix and lowercases the
// payload so addresses from different sources compare equal.
func NormalizeAddress(address string) string {
	a := strings.ToLower(strings.TrimSpace(address))
	for _, prefix := range addressPrefixes {
		if strings.HasPrefix(a, prefix) {
			return strings.TrimPrefix(a, prefix)
		}
	}
	return a
}

func SameAddress(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return NormalizeAddress(a) == NormalizeAddress(b)
}
