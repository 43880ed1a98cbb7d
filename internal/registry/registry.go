package registry

import (
	"errors"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/cyfung/portfolio-helper-sub000/internal/model"
)

// MainPortfolioID is the portfolio every deployment must have.
const MainPortfolioID = "main"

var ErrNotFound = errors.New("portfolio not found")
var ErrNoMainPortfolio = errors.New("no main portfolio registered")

// Portfolio holds a holdings snapshot and a cash snapshot, each replaced
// atomically as a whole. Readers always see either the old or the new
// collection, never a mix, and never block.
type Portfolio struct {
	id   string
	name string

	holdings atomic.Pointer[[]model.Holding]
	cash     atomic.Pointer[[]model.CashEntry]
}

func NewPortfolio(id, name string) *Portfolio {
	p := &Portfolio{
		id:   id,
		name: name,
	}
	p.holdings.Store(&[]model.Holding{})
	p.cash.Store(&[]model.CashEntry{})
	return p
}

func (p *Portfolio) ID() string   { return p.id }
func (p *Portfolio) Name() string { return p.name }

func (p *Portfolio) Holdings() []model.Holding {
	return *p.holdings.Load()
}

func (p *Portfolio) ReplaceHoldings(holdings []model.Holding) {
	hs := slices.Clone(holdings)
	p.holdings.Store(&hs)
}

func (p *Portfolio) CashEntries() []model.CashEntry {
	return *p.cash.Load()
}

func (p *Portfolio) ReplaceCashEntries(entries []model.CashEntry) {
	cs := slices.Clone(entries)
	p.cash.Store(&cs)
}

// Registry is an insertion-ordered directory of portfolios. All() lists
// "main" first regardless of registration order.
type Registry struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]*Portfolio
}

func NewRegistry() *Registry {
	return &Registry{
		byID: make(map[string]*Portfolio),
	}
}

func (r *Registry) Register(p *Portfolio) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[p.ID()]; !ok {
		r.order = append(r.order, p.ID())
	}
	r.byID[p.ID()] = p
}

func (r *Registry) Get(id string) (*Portfolio, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func (r *Registry) All() []*Portfolio {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Portfolio, 0, len(r.order))
	if p, ok := r.byID[MainPortfolioID]; ok {
		out = append(out, p)
	}
	for _, id := range r.order {
		if id == MainPortfolioID {
			continue
		}
		out = append(out, r.byID[id])
	}
	return out
}

func (r *Registry) Main() (*Portfolio, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[MainPortfolioID]
	if !ok {
		return nil, ErrNoMainPortfolio
	}
	return p, nil
}
