package symbols

import (
	"strings"

	"github.com/cyfung/portfolio-helper-sub000/internal/model"
	"github.com/cyfung/portfolio-helper-sub000/internal/registry"
)

// FXSymbol is the quote-provider pseudo-symbol for a currency's USD rate.
func FXSymbol(currency string) string {
	return strings.ToUpper(currency) + "USD=X"
}

// Resolve computes the full set of symbols the quote poller must keep
// live: every holding symbol, every leveraged-component symbol, and one
// FX pair per distinct non-USD, non-cross-reference cash currency across
// all portfolios. Deduplicated, first occurrence wins the ordering.
// Callers recompute the whole set after every holdings/cash replacement.
func Resolve(reg *registry.Registry) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(sym string) {
		if sym == "" {
			return
		}
		if _, ok := seen[sym]; ok {
			return
		}
		seen[sym] = struct{}{}
		out = append(out, sym)
	}

	for _, p := range reg.All() {
		for _, h := range p.Holdings() {
			add(h.Symbol)
			for _, c := range h.Components {
				add(c.Symbol)
			}
		}
		for _, ce := range p.CashEntries() {
			ccy := strings.ToUpper(ce.Currency)
			if ccy == "USD" || ccy == model.CrossRefCurrency {
				continue
			}
			add(FXSymbol(ccy))
		}
	}

	return out
}
