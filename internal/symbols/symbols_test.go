package symbols

import (
	"testing"

	"github.com/cyfung/portfolio-helper-sub000/internal/model"
	"github.com/cyfung/portfolio-helper-sub000/internal/registry"
	"github.com/stretchr/testify/assert"
)

func testRegistry() *registry.Registry {
	reg := registry.NewRegistry()

	main := registry.NewPortfolio("main", "Main")
	main.ReplaceHoldings([]model.Holding{
		{Symbol: "AAPL", Quantity: 10},
		{Symbol: "TQQQ", Quantity: 5, Components: []model.LeveragedComponent{
			{Multiplier: 3, Symbol: "QQQ"},
		}},
	})
	main.ReplaceCashEntries([]model.CashEntry{
		{Label: "Settled", Currency: "USD", Amount: 1000},
		{Label: "Loan", Currency: "HKD", Amount: -2530000, IsMargin: true},
		{Label: "Other pot", Currency: "P", PortfolioRef: "side"},
	})
	reg.Register(main)

	side := registry.NewPortfolio("side", "Side")
	side.ReplaceHoldings([]model.Holding{
		{Symbol: "AAPL", Quantity: 1}, // duplicate across portfolios
		{Symbol: "VWRA.L", Quantity: 20},
	})
	side.ReplaceCashEntries([]model.CashEntry{
		{Label: "Buffer", Currency: "gbp", Amount: 500},
		{Label: "More HKD", Currency: "HKD", Amount: 12},
	})
	reg.Register(side)

	return reg
}

func TestResolveUnion(t *testing.T) {
	got := Resolve(testRegistry())
	assert.Equal(t, []string{
		"AAPL", "TQQQ", "QQQ", "HKDUSD=X",
		"VWRA.L", "GBPUSD=X",
	}, got)
}

func TestResolveSkipsUSDAndCrossRef(t *testing.T) {
	for _, sym := range Resolve(testRegistry()) {
		assert.NotEqual(t, "USDUSD=X", sym)
		assert.NotEqual(t, "PUSD=X", sym)
	}
}

func TestResolveIdempotent(t *testing.T) {
	reg := testRegistry()
	first := Resolve(reg)
	second := Resolve(reg)
	assert.Equal(t, first, second)
}

func TestResolveEmptyRegistry(t *testing.T) {
	assert.Empty(t, Resolve(registry.NewRegistry()))
}

func TestFXSymbol(t *testing.T) {
	assert.Equal(t, "HKDUSD=X", FXSymbol("hkd"))
}
