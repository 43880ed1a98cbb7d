package model

// CrossRefCurrency marks a cash entry whose value is taken from another
// portfolio's total instead of a literal currency amount.
const CrossRefCurrency = "P"

type LeveragedComponent struct {
	Multiplier float64
	Symbol     string
}

type Holding struct {
	Symbol              string
	Quantity            float64
	TargetWeightPercent *float64
	Components          []LeveragedComponent
}

func (h Holding) IsLeveraged() bool {
	return len(h.Components) > 0
}

type CashEntry struct {
	Label        string
	Currency     string
	IsMargin     bool
	IsEquity     bool
	Amount       float64
	PortfolioRef string
}

// MarketQuote is the last successful fetch for one symbol. Entries are
// overwritten wholesale and never expire; a nil price means the provider
// didn't report one, not zero.
type MarketQuote struct {
	CurrentPrice     *float64
	PreviousClose    *float64
	IsMarketClosed   bool
	TradingPeriodEnd *int64 // epoch seconds
	LastUpdateMs     int64
}

type NavRecord struct {
	Nav         float64
	AsOfDate    string
	LastFetchMs int64
}

// MarginRateTier is one row of a tiered margin interest schedule.
// UpperBound is nil for the open-ended top tier.
type MarginRateTier struct {
	UpperBound  *float64
	RatePercent float64
}

// MarginRateTable maps currency code to its tiers, ascending by bound.
type MarginRateTable map[string][]MarginRateTier

func Ptr[T any](v T) *T {
	return &v
}
