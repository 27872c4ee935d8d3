package graduation

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicyInitBaseAmount(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		name        string
		reserveBase uint64
		want        uint64
	}{
		{"below seed", 10_000_000_000, 10_000_000_000},
		{"at seed", 30_000_000_000, 30_000_000_000},
		{"double seed", 60_000_000_000, 58_500_000_000},
		{"rounds down", 30_000_000_019, 30_000_000_018},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.InitBaseAmount(tt.reserveBase))
		})
	}
}

func TestPolicyReachedByMarketCap(t *testing.T) {
	p := DefaultPolicy()
	const supply = 1_000_000_000_000_000

	assert.Equal(t, "4500.00", p.MarketCap(supply, 30_000_000_000).StringFixed(2))
	assert.False(t, p.Reached(supply, 30_000_000_000))
	assert.True(t, p.Reached(supply, 40_000_000_000))
	assert.False(t, p.Reached(0, 40_000_000_000))
}

func TestPolicyReachedByThreshold(t *testing.T) {
	p := Policy{ThresholdBase: 85_000_000_000}
	require.NoError(t, p.Validate())

	assert.False(t, p.Reached(1, 84_999_999_999))
	assert.True(t, p.Reached(1, 85_000_000_000))
}

func TestPolicyValidate(t *testing.T) {
	assert.NoError(t, DefaultPolicy().Validate())
	assert.Error(t, Policy{}.Validate())
	assert.Error(t, Policy{ThresholdBase: 1, MigrationFeeBps: 10_001}.Validate())
	assert.Error(t, Policy{MarketCapUSD: decimal.NewFromInt(1)}.Validate())
}
