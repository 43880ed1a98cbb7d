package snapshot

import (
	"github.com/cyfung/portfolio-helper-sub000/internal/model"
	"github.com/cyfung/portfolio-helper-sub000/internal/symbols"
)

// QuoteSource is a read-only view of the quote poller's cache.
type QuoteSource interface {
	Get(symbol string) (model.MarketQuote, bool)
}

// NavSource is a read-only view of the NAV poller's cache.
type NavSource interface {
	Get(symbol string) (model.NavRecord, bool)
}

// Position is one holding merged with the latest cached market data.
// Nil pointer fields mean "no data yet", which is distinct from zero.
type Position struct {
	Symbol              string                     `json:"symbol"`
	Quantity            float64                    `json:"quantity"`
	TargetWeightPercent *float64                   `json:"targetWeightPercent"`
	Components          []model.LeveragedComponent `json:"-"`

	CurrentPrice     *float64 `json:"currentPrice"`
	PreviousClose    *float64 `json:"previousClose"`
	IsMarketClosed   bool     `json:"isMarketClosed"`
	TradingPeriodEnd *int64   `json:"tradingPeriodEnd"`

	Value            *float64 `json:"value"`
	DayChange        *float64 `json:"dayChange"`
	DayChangePercent *float64 `json:"dayChangePercent"`

	// leveraged holdings only: intraday estimate from component moves
	EstimatedPrice *float64 `json:"estimatedPrice,omitempty"`
	EstimatedValue *float64 `json:"estimatedValue,omitempty"`
}

type CashPosition struct {
	Label        string   `json:"label"`
	Currency     string   `json:"currency"`
	IsMargin     bool     `json:"isMargin"`
	IsEquity     bool     `json:"isEquity"`
	Amount       float64  `json:"amount"`
	PortfolioRef string   `json:"portfolioRef,omitempty"`
	USDValue     *float64 `json:"usdValue"`
}

// PortfolioValuer resolves a cross-referenced portfolio's total USD
// value; nil means the reference can't be resolved right now.
type PortfolioValuer func(ref string) *float64

// Assemble merges holdings with cached quotes and NAVs into a read-only
// valuation view. Pure: touches no cache, mutates nothing, and
// propagates absence instead of substituting zeros.
func Assemble(holdings []model.Holding, quotes QuoteSource, navs NavSource) []Position {
	out := make([]Position, 0, len(holdings))
	for _, h := range holdings {
		out = append(out, assembleOne(h, quotes, navs))
	}
	return out
}

func assembleOne(h model.Holding, quotes QuoteSource, navs NavSource) Position {
	p := Position{
		Symbol:              h.Symbol,
		Quantity:            h.Quantity,
		TargetWeightPercent: h.TargetWeightPercent,
		Components:          h.Components,
	}

	q, ok := quotes.Get(h.Symbol)
	if ok {
		p.CurrentPrice = q.CurrentPrice
		p.PreviousClose = q.PreviousClose
		p.IsMarketClosed = q.IsMarketClosed
		p.TradingPeriodEnd = q.TradingPeriodEnd
	}

	// live price first, previous close as fallback, else absent
	price := p.CurrentPrice
	if price == nil {
		price = p.PreviousClose
	}
	if price != nil {
		p.Value = model.Ptr(*price * h.Quantity)
	}

	if p.CurrentPrice != nil && p.PreviousClose != nil && *p.PreviousClose != 0 {
		p.DayChange = model.Ptr((*p.CurrentPrice - *p.PreviousClose) * h.Quantity)
		p.DayChangePercent = model.Ptr((*p.CurrentPrice - *p.PreviousClose) / *p.PreviousClose * 100)
	}

	if h.IsLeveraged() {
		p.EstimatedPrice = estimatePrice(h, q, ok, quotes, navs)
		if p.EstimatedPrice != nil {
			p.EstimatedValue = model.Ptr(*p.EstimatedPrice * h.Quantity)
		}
	}

	return p
}

// estimatePrice projects a leveraged instrument's intraday price from a
// weighted sum of its components' day moves applied to a base price.
// The base prefers the fund's NAV over the quote's previous close. The
// estimate is absent unless the base and every component's price pair
// are known.
func estimatePrice(h model.Holding, q model.MarketQuote, hasQuote bool, quotes QuoteSource, navs NavSource) *float64 {
	var base *float64
	if nav, ok := navs.Get(h.Symbol); ok {
		base = model.Ptr(nav.Nav)
	} else if hasQuote && q.PreviousClose != nil {
		base = q.PreviousClose
	}
	if base == nil {
		return nil
	}

	var weighted float64
	for _, c := range h.Components {
		cq, ok := quotes.Get(c.Symbol)
		if !ok || cq.CurrentPrice == nil || cq.PreviousClose == nil || *cq.PreviousClose == 0 {
			return nil
		}
		weighted += c.Multiplier * (*cq.CurrentPrice - *cq.PreviousClose) / *cq.PreviousClose
	}

	return model.Ptr(*base * (1 + weighted))
}

// AssembleCash resolves each cash entry to USD using cached FX quotes.
// Cross-reference entries are resolved through valuer; a nil valuer
// leaves them unresolved.
func AssembleCash(entries []model.CashEntry, quotes QuoteSource, valuer PortfolioValuer) []CashPosition {
	out := make([]CashPosition, 0, len(entries))
	for _, ce := range entries {
		cp := CashPosition{
			Label:        ce.Label,
			Currency:     ce.Currency,
			IsMargin:     ce.IsMargin,
			IsEquity:     ce.IsEquity,
			Amount:       ce.Amount,
			PortfolioRef: ce.PortfolioRef,
		}

		switch {
		case ce.Currency == model.CrossRefCurrency:
			if valuer != nil {
				cp.USDValue = valuer(ce.PortfolioRef)
			}
		case ce.Currency == "USD":
			cp.USDValue = model.Ptr(ce.Amount)
		default:
			if rate := fxRate(ce.Currency, quotes); rate != nil {
				cp.USDValue = model.Ptr(ce.Amount * *rate)
			}
		}

		out = append(out, cp)
	}
	return out
}

func fxRate(currency string, quotes QuoteSource) *float64 {
	q, ok := quotes.Get(symbols.FXSymbol(currency))
	if !ok {
		return nil
	}
	if q.CurrentPrice != nil {
		return q.CurrentPrice
	}
	return q.PreviousClose
}

// Totals sums everything with a known value. Complete reports whether
// every contributor had one; an incomplete total is still useful for
// display but must not be mistaken for a confirmed figure.
func Totals(positions []Position, cash []CashPosition) (total float64, complete bool) {
	complete = true
	for _, p := range positions {
		if p.Value == nil {
			complete = false
			continue
		}
		total += *p.Value
	}
	for _, c := range cash {
		if c.USDValue == nil {
			complete = false
			continue
		}
		total += *c.USDValue
	}
	return total, complete
}
