package margin

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"github.com/bytedance/sonic"
	"github.com/cyfung/portfolio-helper-sub000/internal/config"
	"github.com/cyfung/portfolio-helper-sub000/internal/logger"
	"github.com/cyfung/portfolio-helper-sub000/internal/model"
	"github.com/cyfung/portfolio-helper-sub000/internal/poller"
	"github.com/shopspring/decimal"
	"resty.dev/v3"
)

var (
	// ErrTooSoon rejects a manual refresh inside the cooldown window.
	// Not an error condition worth logging, the caller reports it.
	ErrTooSoon = errors.New("margin rate refresh requested too soon")

	// ErrEmptyTable means the page parsed to zero currencies; the round
	// is treated as failed and the previous table is kept.
	ErrEmptyTable = errors.New("margin rate page yielded no currencies")
)

// PollKey is the single pseudo-key the margin poller runs with — the
// rate table is process-wide, not per-symbol.
const PollKey = "rates"

// Service fetches and parses the broker's margin interest rate page and
// keeps the current table. The table is replaced atomically and only
// when a fetch parses at least one currency.
type Service struct {
	c         *resty.Client
	ratesPath string
	cooldown  time.Duration
	logger    logger.Logger

	mu          sync.RWMutex
	table       model.MarginRateTable
	lastFetch   time.Time
	lastFetchMs int64

	now func() time.Time
}

func NewService(cfg config.MarginSourceConfig, cooldown time.Duration, logger logger.Logger) *Service {
	client := resty.New().
		SetLogger(logger).
		SetBaseURL(cfg.URL).
		SetTimeout(30 * time.Second)

	return &Service{
		c:         client,
		ratesPath: cfg.RatesPath,
		cooldown:  cooldown,
		logger:    logger,
		now:       time.Now,
	}
}

// Table returns the last successfully parsed rate table.
func (s *Service) Table() model.MarginRateTable {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.table
}

func (s *Service) LastFetchMs() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastFetchMs
}

// Rate looks up the rate tier that the given debit balance falls into.
func (s *Service) Rate(currency string, balance float64) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tiers, ok := s.table[currency]
	if !ok {
		return 0, false
	}
	for _, t := range tiers {
		if t.UpperBound == nil || balance <= *t.UpperBound {
			return t.RatePercent, true
		}
	}
	return 0, false
}

// Refresh fetches and applies a new table. Used by the poller on its
// schedule and by RefreshNow.
func (s *Service) Refresh(ctx context.Context, _ string) (model.MarginRateTable, error) {
	table, err := s.fetch(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.table = table
	s.lastFetch = s.now()
	s.lastFetchMs = s.lastFetch.UnixMilli()
	s.mu.Unlock()

	s.logger.Infof("margin rate table updated: %d currencies", len(table))
	return table, nil
}

// RefreshNow is the manual trigger, gated by the cooldown since the last
// successful fetch.
func (s *Service) RefreshNow(ctx context.Context) (model.MarginRateTable, error) {
	s.mu.RLock()
	last := s.lastFetch
	s.mu.RUnlock()

	if !last.IsZero() && s.now().Sub(last) < s.cooldown {
		return nil, fmt.Errorf("%w: last fetch %s ago", ErrTooSoon, s.now().Sub(last).Round(time.Second))
	}

	return s.Refresh(ctx, PollKey)
}

func (s *Service) fetch(ctx context.Context) (model.MarginRateTable, error) {
	resp, err := s.c.R().SetContext(ctx).Get("")
	if err != nil {
		return nil, fmt.Errorf("%w: can't send margin rate request", err)
	}
	defer resp.Body.Close()

	if !resp.IsSuccess() {
		return nil, fmt.Errorf("margin rate request error: %s", resp.Status())
	}

	table, err := s.parse(resp.Bytes())
	if err != nil {
		return nil, err
	}
	if len(table) == 0 {
		return nil, ErrEmptyTable
	}

	return table, nil
}

func (s *Service) parse(raw []byte) (model.MarginRateTable, error) {
	var doc interface{}
	if err := sonic.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: can't unmarshal margin rate document", err)
	}

	extracted, err := jsonpath.Get(s.ratesPath, doc)
	if err != nil {
		return nil, fmt.Errorf("%w: can't extract rates at %s", err, s.ratesPath)
	}
	byCurrency, ok := extracted.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("rates at %s are %T, not an object", s.ratesPath, extracted)
	}

	table := make(model.MarginRateTable, len(byCurrency))
	for currency, rawTiers := range byCurrency {
		rows, ok := rawTiers.([]interface{})
		if !ok {
			s.logger.Warnf("skipping %s: tiers are %T, not a list", currency, rawTiers)
			continue
		}

		tiers := make([]model.MarginRateTier, 0, len(rows))
		for _, row := range rows {
			tier, err := parseTier(row)
			if err != nil {
				s.logger.Warnf("%s: skipping %s tier", err, currency)
				continue
			}
			tiers = append(tiers, tier)
		}
		if len(tiers) == 0 {
			continue
		}

		sort.SliceStable(tiers, func(i, j int) bool {
			a, b := tiers[i].UpperBound, tiers[j].UpperBound
			if a == nil {
				return false
			}
			if b == nil {
				return true
			}
			return *a < *b
		})
		table[currency] = tiers
	}

	return table, nil
}

func parseTier(row interface{}) (model.MarginRateTier, error) {
	fields, ok := row.(map[string]interface{})
	if !ok {
		return model.MarginRateTier{}, fmt.Errorf("tier is %T, not an object", row)
	}

	rate, err := parseNumber(fields["rate"])
	if err != nil {
		return model.MarginRateTier{}, fmt.Errorf("%w: can't parse rate", err)
	}
	tier := model.MarginRateTier{RatePercent: rate}

	if raw, ok := fields["upper"]; ok && raw != nil {
		upper, err := parseNumber(raw)
		if err != nil {
			return model.MarginRateTier{}, fmt.Errorf("%w: can't parse upper bound", err)
		}
		tier.UpperBound = model.Ptr(upper)
	}

	return tier, nil
}

// parseNumber accepts the string-or-number values the page mixes,
// stripping thousands separators from strings.
func parseNumber(raw interface{}) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case string:
		d, err := decimal.NewFromString(stripSeparators(v))
		if err != nil {
			return 0, err
		}
		f, _ := d.Float64()
		return f, nil
	default:
		return 0, fmt.Errorf("number is %T", raw)
	}
}

func stripSeparators(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == ',' || s[i] == ' ' || s[i] == '%' {
			continue
		}
		out = append(out, s[i])
	}
	return string(out)
}

// NewPoller wires the service into the generic engine with its single
// process-wide key.
func NewPoller(s *Service, logger logger.Logger) *poller.Poller[model.MarginRateTable] {
	return poller.New("margin-rates", s.Refresh, logger)
}
