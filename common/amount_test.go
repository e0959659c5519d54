package common

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestSatisfiesAmount(t *testing.T) {
	expected := decimal.RequireFromString("0.05")

	assert.True(t, SatisfiesAmount(decimal.RequireFromString("0.05"), expected))
	assert.True(t, SatisfiesAmount(decimal.RequireFromString("0.0499995"), expected))
	assert.True(t, SatisfiesAmount(decimal.RequireFromString("0.06"), expected))
	assert.False(t, SatisfiesAmount(decimal.RequireFromString("0.04999"), expected))
	assert.False(t, SatisfiesAmount(decimal.Zero, expected))
}

func TestSatoshiConversion(t *testing.T) {
	assert.True(t, decimal.RequireFromString("0.05").Equal(SatoshisToCoins(5000000)))
	assert.Equal(t, int64(5000000), CoinsToSatoshis(decimal.RequireFromString("0.05")))
	assert.Equal(t, int64(1), CoinsToSatoshis(decimal.RequireFromString("0.00000001")))
}

func TestNormalizeAddress(t *testing.T) {
	assert.Equal(t, "qpm2qsznhks23z7629mms6s4cwef74vcwvy22gdx6a", NormalizeAddress("bitcoincash:qpm2qsznhks23z7629mms6s4cwef74vcwvy22gdx6a"))
	assert.Equal(t, "qpm2qsznhks23z7629mms6s4cwef74vcwvy22gdx6a", NormalizeAddress(" BITCOINCASH:QPM2QSZNHKS23Z7629MMS6S4CWEF74VCWVY22GDX6A "))
	assert.True(t, SameAddress("bchtest:qz0abc", "qz0abc"))
	assert.False(t, SameAddress("", ""))
	assert.False(t, SameAddress("qz0abc", "qz0abd"))
}
