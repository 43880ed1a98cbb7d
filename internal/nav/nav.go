package nav

import (
	"context"
	"fmt"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"github.com/bytedance/sonic"
	"github.com/cyfung/portfolio-helper-sub000/internal/config"
	"github.com/cyfung/portfolio-helper-sub000/internal/logger"
	"github.com/cyfung/portfolio-helper-sub000/internal/model"
	"github.com/cyfung/portfolio-helper-sub000/internal/poller"
	"resty.dev/v3"
)

// Provider fetches the official NAV for one fund.
type Provider interface {
	FetchNav(ctx context.Context) (model.NavRecord, error)
}

// Registry maps fund symbols to their providers. Built once from the
// dashboard config; symbols without a provider are never polled.
type Registry struct {
	providers map[string]Provider
	windows   map[string]*config.PublicationWindow
}

func NewRegistry(cfgs []config.NavProviderConfig, logger logger.Logger) *Registry {
	r := &Registry{
		providers: make(map[string]Provider),
		windows:   make(map[string]*config.PublicationWindow),
	}
	for i := range cfgs {
		c := &cfgs[i]
		switch c.Kind {
		case config.FundJSON:
			r.providers[c.Symbol] = newFundJSONProvider(c, logger)
		default:
			logger.Warnf("unknown nav provider kind %q for %s", c.Kind, c.Symbol)
			continue
		}
		if w := c.PublicationWindow(); w != nil {
			r.windows[c.Symbol] = w
		}
	}
	return r
}

func (r *Registry) Provider(symbol string) (Provider, bool) {
	p, ok := r.providers[symbol]
	return p, ok
}

// Filter keeps only the symbols that have a registered provider.
func (r *Registry) Filter(symbols []string) []string {
	var out []string
	for _, s := range symbols {
		if _, ok := r.providers[s]; ok {
			out = append(out, s)
		}
	}
	return out
}

// InWindow reports whether now falls inside any fund's publication
// window. No windows configured means never.
func (r *Registry) InWindow(now time.Time) bool {
	for _, w := range r.windows {
		if w.Contains(now) {
			return true
		}
	}
	return false
}

type fundJSONProvider struct {
	c        *resty.Client
	url      string
	navPath  string
	asOfPath string

	logger logger.Logger
}

func newFundJSONProvider(cfg *config.NavProviderConfig, logger logger.Logger) *fundJSONProvider {
	return &fundJSONProvider{
		c:        resty.New().SetLogger(logger).SetTimeout(20 * time.Second),
		url:      cfg.URL,
		navPath:  cfg.NavPath,
		asOfPath: cfg.AsOfPath,
		logger:   logger,
	}
}

func (p *fundJSONProvider) FetchNav(ctx context.Context) (model.NavRecord, error) {
	resp, err := p.c.R().SetContext(ctx).Get(p.url)
	if err != nil {
		return model.NavRecord{}, fmt.Errorf("%w: can't send nav request", err)
	}
	defer resp.Body.Close()

	if !resp.IsSuccess() {
		return model.NavRecord{}, fmt.Errorf("nav request error: %s", resp.Status())
	}

	var doc interface{}
	if err := sonic.Unmarshal(resp.Bytes(), &doc); err != nil {
		return model.NavRecord{}, fmt.Errorf("%w: can't unmarshal nav document", err)
	}

	raw, err := jsonpath.Get(p.navPath, doc)
	if err != nil {
		return model.NavRecord{}, fmt.Errorf("%w: can't extract nav at %s", err, p.navPath)
	}
	nav, ok := raw.(float64)
	if !ok {
		return model.NavRecord{}, fmt.Errorf("nav at %s is %T, not a number", p.navPath, raw)
	}

	rec := model.NavRecord{
		Nav:         nav,
		LastFetchMs: time.Now().UnixMilli(),
	}

	if p.asOfPath != "" {
		if raw, err := jsonpath.Get(p.asOfPath, doc); err == nil {
			if asOf, ok := raw.(string); ok {
				rec.AsOfDate = asOf
			}
		}
	}

	return rec, nil
}

// Service adapts the registry to the generic polling engine.
type Service struct {
	registry *Registry
	logger   logger.Logger
}

func NewService(registry *Registry, logger logger.Logger) *Service {
	return &Service{
		registry: registry,
		logger:   logger,
	}
}

func (s *Service) Fetch(ctx context.Context, symbol string) (model.NavRecord, error) {
	p, ok := s.registry.Provider(symbol)
	if !ok {
		return model.NavRecord{}, fmt.Errorf("no nav provider for %s", symbol)
	}
	return p.FetchNav(ctx)
}

// NewPoller wires the service into the generic engine. When any fund has
// a publication window, the schedule tightens to shortInterval inside a
// window and falls back to longInterval outside.
func NewPoller(s *Service, shortInterval, longInterval time.Duration, logger logger.Logger) *poller.Poller[model.NavRecord] {
	p := poller.New("nav", s.Fetch, logger)
	if len(s.registry.windows) > 0 {
		p.SetNextDelay(func() time.Duration {
			if s.registry.InWindow(time.Now()) {
				return shortInterval
			}
			return longInterval
		})
	}
	return p
}
