package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cyfung/portfolio-helper-sub000/internal/broadcast"
	"github.com/cyfung/portfolio-helper-sub000/internal/logger"
	"github.com/cyfung/portfolio-helper-sub000/internal/model"
	"github.com/cyfung/portfolio-helper-sub000/internal/poller"
	"github.com/cyfung/portfolio-helper-sub000/internal/registry"
	"github.com/cyfung/portfolio-helper-sub000/internal/symbols"
	"github.com/cyfung/portfolio-helper-sub000/internal/watcher"
)

const (
	_holdingsExt = ".holdings"
	_cashExt     = ".cash"
)

// NavFilter trims a symbol list to the symbols worth NAV-polling.
type NavFilter func(symbols []string) []string

// Manager discovers portfolio files, keeps the registry loaded from
// them, and on every settled file change swaps the affected container,
// recomputes the quote symbol universe, restarts the pollers and
// broadcasts a reload. A failed re-parse keeps the last-known-good
// snapshot and broadcasts nothing.
type Manager struct {
	dataDir  string
	names    map[string]string
	debounce time.Duration

	registry      *registry.Registry
	quotes        *poller.Poller[model.MarketQuote]
	quoteInterval time.Duration
	navs          *poller.Poller[model.NavRecord]
	navInterval   time.Duration
	navFilter     NavFilter
	hub           *broadcast.Hub

	watchers []*watcher.Watcher

	logger logger.Logger
}

func NewManager(
	dataDir string,
	names map[string]string,
	debounce time.Duration,
	reg *registry.Registry,
	quotes *poller.Poller[model.MarketQuote],
	quoteInterval time.Duration,
	navs *poller.Poller[model.NavRecord],
	navInterval time.Duration,
	navFilter NavFilter,
	hub *broadcast.Hub,
	logger logger.Logger,
) *Manager {
	return &Manager{
		dataDir:       dataDir,
		names:         names,
		debounce:      debounce,
		registry:      reg,
		quotes:        quotes,
		quoteInterval: quoteInterval,
		navs:          navs,
		navInterval:   navInterval,
		navFilter:     navFilter,
		hub:           hub,
		logger:        logger,
	}
}

// Discover scans the data directory for <id>.holdings files, loads each
// portfolio (with its optional <id>.cash sibling) into the registry and
// fails when no main portfolio is present.
func (m *Manager) Discover() error {
	matches, err := filepath.Glob(filepath.Join(m.dataDir, "*"+_holdingsExt))
	if err != nil {
		return fmt.Errorf("%w: can't scan data dir", err)
	}
	sort.Strings(matches)

	for _, path := range matches {
		id := strings.TrimSuffix(filepath.Base(path), _holdingsExt)
		name := m.names[id]
		if name == "" {
			name = id
		}
		p := registry.NewPortfolio(id, name)

		holdings, err := LoadHoldingsFile(path)
		if err != nil {
			return fmt.Errorf("%w: can't load portfolio %s", err, id)
		}
		p.ReplaceHoldings(holdings)

		cashPath := m.cashPath(id)
		if _, err := os.Stat(cashPath); err == nil {
			cash, err := LoadCashFile(cashPath)
			if err != nil {
				return fmt.Errorf("%w: can't load cash for %s", err, id)
			}
			p.ReplaceCashEntries(cash)
		}

		m.registry.Register(p)
		m.logger.Infof("registered portfolio %s: %d holdings, %d cash entries",
			id, len(p.Holdings()), len(p.CashEntries()))
	}

	if _, err := m.registry.Main(); err != nil {
		return fmt.Errorf("%w: data dir %s", err, m.dataDir)
	}

	return nil
}

// WatchAll creates one watcher per existing portfolio file. A file that
// is missing right now is skipped (hot-reload stays off for it); a
// failing watch setup is a startup error.
func (m *Manager) WatchAll() error {
	for _, p := range m.registry.All() {
		if err := m.watchFile(m.holdingsPath(p.ID()), m.reloadHoldings(p)); err != nil {
			return err
		}
		if err := m.watchFile(m.cashPath(p.ID()), m.reloadCash(p)); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) watchFile(path string, reload func() error) error {
	if _, err := os.Stat(path); err != nil {
		m.logger.Infof("not watching %s: %s", path, err)
		return nil
	}

	w := watcher.New(path, m.debounce, m.logger)
	w.OnChange(reload)
	if err := w.Start(); err != nil {
		return fmt.Errorf("%w: can't watch %s", err, path)
	}
	m.watchers = append(m.watchers, w)
	m.logger.Infof("watching %s", path)
	return nil
}

func (m *Manager) reloadHoldings(p *registry.Portfolio) func() error {
	return func() error {
		holdings, err := LoadHoldingsFile(m.holdingsPath(p.ID()))
		if err != nil {
			return fmt.Errorf("%w: keeping previous holdings for %s", err, p.ID())
		}
		p.ReplaceHoldings(holdings)
		m.logger.Infof("reloaded holdings for %s: %d entries", p.ID(), len(holdings))
		m.afterReload()
		return nil
	}
}

func (m *Manager) reloadCash(p *registry.Portfolio) func() error {
	return func() error {
		cash, err := LoadCashFile(m.cashPath(p.ID()))
		if err != nil {
			return fmt.Errorf("%w: keeping previous cash entries for %s", err, p.ID())
		}
		p.ReplaceCashEntries(cash)
		m.logger.Infof("reloaded cash entries for %s: %d entries", p.ID(), len(cash))
		m.afterReload()
		return nil
	}
}

// afterReload recomputes the symbol universe from scratch and restarts
// the pollers on it, then tells consumers to re-render.
func (m *Manager) afterReload() {
	m.StartPolling()
	m.hub.Publish(model.NewReloadSignal(time.Now().UnixMilli()))
}

// StartPolling resolves the current symbol universe and (re)starts the
// quote and NAV pollers with it. Also used once at startup.
func (m *Manager) StartPolling() {
	syms := symbols.Resolve(m.registry)
	m.quotes.Start(syms, m.quoteInterval)

	if m.navs == nil {
		return
	}
	navSyms := syms
	if m.navFilter != nil {
		navSyms = m.navFilter(syms)
	}
	if len(navSyms) == 0 {
		m.logger.Infof("no symbols with a nav provider, nav polling idle")
	}
	m.navs.Start(navSyms, m.navInterval)
}

func (m *Manager) Stop() {
	for _, w := range m.watchers {
		w.Stop()
	}
}

func (m *Manager) holdingsPath(id string) string {
	return filepath.Join(m.dataDir, id+_holdingsExt)
}

func (m *Manager) cashPath(id string) string {
	return filepath.Join(m.dataDir, id+_cashExt)
}
