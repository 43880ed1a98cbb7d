package loader

import (
	"strings"
	"testing"

	"github.com/cyfung/portfolio-helper-sub000/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHoldings(t *testing.T) {
	input := `
# main portfolio
AAPL 10
VWRA.L 20 40%
TQQQ 5 - 3xQQQ
CUSTOM 100 25 1.5xQQQ+0.5xTLT
`
	got, err := ParseHoldings(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, got, 4)

	assert.Equal(t, model.Holding{Symbol: "AAPL", Quantity: 10}, got[0])

	require.NotNil(t, got[1].TargetWeightPercent)
	assert.InDelta(t, 40.0, *got[1].TargetWeightPercent, 1e-9)

	assert.Nil(t, got[2].TargetWeightPercent)
	assert.Equal(t, []model.LeveragedComponent{{Multiplier: 3, Symbol: "QQQ"}}, got[2].Components)

	assert.Equal(t, []model.LeveragedComponent{
		{Multiplier: 1.5, Symbol: "QQQ"},
		{Multiplier: 0.5, Symbol: "TLT"},
	}, got[3].Components)
}

func TestParseHoldingsDuplicateLastWins(t *testing.T) {
	input := "AAPL 10\nTSLA 1\nAAPL 25\n"
	got, err := ParseHoldings(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "AAPL", got[0].Symbol)
	assert.InDelta(t, 25.0, got[0].Quantity, 1e-9)
	assert.Equal(t, "TSLA", got[1].Symbol)
}

func TestParseHoldingsErrors(t *testing.T) {
	for name, input := range map[string]string{
		"missing quantity": "AAPL\n",
		"bad quantity":     "AAPL ten\n",
		"bad target":       "AAPL 10 lots\n",
		"bad component":    "AAPL 10 - SPY\n",
		"bad multiplier":   "AAPL 10 - twoxSPY\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseHoldings(strings.NewReader(input))
			assert.Error(t, err)
		})
	}
}

func TestParseCash(t *testing.T) {
	input := `# cash entries
Settled,USD,1000
Loan,HKD,-2530000,margin
Equity pot,GBP,500,margin equity
Other pot,P,0,,side
`
	got, err := ParseCash(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, got, 4)

	assert.Equal(t, model.CashEntry{Label: "Settled", Currency: "USD", Amount: 1000}, got[0])

	assert.True(t, got[1].IsMargin)
	assert.False(t, got[1].IsEquity)
	assert.InDelta(t, -2530000.0, got[1].Amount, 1e-9)

	assert.True(t, got[2].IsMargin)
	assert.True(t, got[2].IsEquity)

	assert.Equal(t, model.CrossRefCurrency, got[3].Currency)
	assert.Equal(t, "side", got[3].PortfolioRef)
}

func TestParseCashErrors(t *testing.T) {
	for name, input := range map[string]string{
		"too few fields":   "Settled,USD\n",
		"bad amount":       "Settled,USD,lots\n",
		"unknown flag":     "Settled,USD,1,banana\n",
		"cross ref no ref": "Other,P,0\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCash(strings.NewReader(input))
			assert.Error(t, err)
		})
	}
}
