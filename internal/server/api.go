package server

import (
	"errors"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/cyfung/portfolio-helper-sub000/internal/broadcast"
	"github.com/cyfung/portfolio-helper-sub000/internal/logger"
	"github.com/cyfung/portfolio-helper-sub000/internal/margin"
	"github.com/cyfung/portfolio-helper-sub000/internal/registry"
	"github.com/cyfung/portfolio-helper-sub000/internal/snapshot"
)

// API exposes the dashboard's JSON endpoints and the event stream. It
// only reads: portfolio views are assembled on demand from the registry
// and the pollers' caches.
type API struct {
	registry *registry.Registry
	quotes   snapshot.QuoteSource
	navs     snapshot.NavSource
	margin   *margin.Service
	hub      *broadcast.Hub

	logger logger.Logger
}

func NewAPI(
	reg *registry.Registry,
	quotes snapshot.QuoteSource,
	navs snapshot.NavSource,
	marginSvc *margin.Service,
	hub *broadcast.Hub,
	logger logger.Logger,
) *API {
	return &API{
		registry: reg,
		quotes:   quotes,
		navs:     navs,
		margin:   marginSvc,
		hub:      hub,
		logger:   logger,
	}
}

func (a *API) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/portfolios", a.listPortfolios)
	mux.HandleFunc("GET /api/portfolios/{id}", a.getPortfolio)
	mux.HandleFunc("GET /api/margin-rates", a.getMarginRates)
	mux.HandleFunc("POST /api/margin-rates/refresh", a.refreshMarginRates)
	mux.HandleFunc("GET /stream", a.stream)
	return mux
}

type portfolioSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (a *API) listPortfolios(w http.ResponseWriter, r *http.Request) {
	all := a.registry.All()
	out := make([]portfolioSummary, 0, len(all))
	for _, p := range all {
		out = append(out, portfolioSummary{ID: p.ID(), Name: p.Name()})
	}
	a.writeJSON(w, http.StatusOK, out)
}

type portfolioView struct {
	ID        string                  `json:"id"`
	Name      string                  `json:"name"`
	Positions []snapshot.Position     `json:"positions"`
	Cash      []snapshot.CashPosition `json:"cash"`
	Total     float64                 `json:"total"`
	Complete  bool                    `json:"complete"`
}

func (a *API) getPortfolio(w http.ResponseWriter, r *http.Request) {
	p, err := a.registry.Get(r.PathValue("id"))
	if err != nil {
		a.writeError(w, http.StatusNotFound, err)
		return
	}
	a.writeJSON(w, http.StatusOK, a.assembleView(p))
}

func (a *API) assembleView(p *registry.Portfolio) portfolioView {
	positions := snapshot.Assemble(p.Holdings(), a.quotes, a.navs)
	cash := snapshot.AssembleCash(p.CashEntries(), a.quotes, a.valuer(p.ID()))
	total, complete := snapshot.Totals(positions, cash)
	return portfolioView{
		ID:        p.ID(),
		Name:      p.Name(),
		Positions: positions,
		Cash:      cash,
		Total:     total,
		Complete:  complete,
	}
}

// valuer resolves cross-portfolio cash references. Self-references and
// unknown portfolios resolve to absent; one level deep only, so two
// portfolios referencing each other can't recurse.
func (a *API) valuer(selfID string) snapshot.PortfolioValuer {
	return func(ref string) *float64 {
		if ref == "" || ref == selfID {
			return nil
		}
		p, err := a.registry.Get(ref)
		if err != nil {
			return nil
		}
		positions := snapshot.Assemble(p.Holdings(), a.quotes, a.navs)
		cash := snapshot.AssembleCash(p.CashEntries(), a.quotes, nil)
		total, _ := snapshot.Totals(positions, cash)
		return &total
	}
}

func (a *API) getMarginRates(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, map[string]any{
		"rates":       a.margin.Table(),
		"lastFetchMs": a.margin.LastFetchMs(),
	})
}

func (a *API) refreshMarginRates(w http.ResponseWriter, r *http.Request) {
	table, err := a.margin.RefreshNow(r.Context())
	if err != nil {
		if errors.Is(err, margin.ErrTooSoon) {
			a.writeError(w, http.StatusTooManyRequests, err)
			return
		}
		a.writeError(w, http.StatusBadGateway, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"rates": table})
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := sonic.Marshal(v)
	if err != nil {
		a.logger.Errorf("%s: can't marshal response", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		a.logger.Debugf("%s: can't write response", err)
	}
}

func (a *API) writeError(w http.ResponseWriter, status int, err error) {
	a.writeJSON(w, status, map[string]string{"error": err.Error()})
}
