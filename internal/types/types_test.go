package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestChainID_Supported(t *testing.T) {
	assert.True(t, ChainEthereum.Supported())
	assert.True(t, ChainOptimism.Supported())
	assert.True(t, ChainBase.Supported())
	assert.False(t, ChainID(0).Supported())
	assert.False(t, ChainID(137).Supported())
}

func TestISOWeek_Validate(t *testing.T) {
	valid := []ISOWeek{"2025-W01", "2025-W53", "1999-W10"}
	for _, w := range valid {
		assert.NoError(t, w.Validate(), "%s should be valid", w)
	}

	invalid := []ISOWeek{"", "2025-W00", "2025-W54", "2025-W1", "2025W03", "25-W03", "2025-w03"}
	for _, w := range invalid {
		assert.Error(t, w.Validate(), "%s should be invalid", w)
	}
}

func TestCurrentISOWeek(t *testing.T) {
	// 2025-01-15 is a Wednesday in ISO week 3.
	assert.Equal(t, ISOWeek("2025-W03"), CurrentISOWeek(time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)))
	// Jan 1st 2027 falls in the last ISO week of 2026.
	assert.Equal(t, ISOWeek("2026-W53"), CurrentISOWeek(time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestValidAddress(t *testing.T) {
	assert.True(t, ValidAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"))
	assert.True(t, ValidAddress("0xAbCdEf0123456789aBcDeF0123456789abcdef01"))

	assert.False(t, ValidAddress("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"))
	assert.False(t, ValidAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"))
	assert.False(t, ValidAddress("0xzzaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"))
	assert.False(t, ValidAddress(""))
}

func TestNormalizeAddress(t *testing.T) {
	assert.Equal(t, "0xabcdef0123456789abcdef0123456789abcdef01",
		NormalizeAddress("0xAbCdEf0123456789aBcDeF0123456789abcdef01"))
}

func TestValidTxHash(t *testing.T) {
	assert.True(t, ValidTxHash("0x1100000000000000000000000000000000000000000000000000000000000001"))
	assert.False(t, ValidTxHash("0x110000000000000000000000000000000000000000000000000000000000001"))
	assert.False(t, ValidTxHash("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"))
	assert.False(t, ValidTxHash(""))
}
