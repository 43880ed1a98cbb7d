package quote

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/cyfung/portfolio-helper-sub000/internal/logger"
	"github.com/cyfung/portfolio-helper-sub000/internal/model"
	"github.com/cyfung/portfolio-helper-sub000/internal/poller"
	"go.uber.org/ratelimit"
	"resty.dev/v3"
)

const (
	_chartURL = "/v8/finance/chart/"

	// providers throttle well below this, stay polite
	_requestsPerMinute = 120
)

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol               string   `json:"symbol"`
				RegularMarketPrice   *float64 `json:"regularMarketPrice"`
				PreviousClose        *float64 `json:"previousClose"`
				ChartPreviousClose   *float64 `json:"chartPreviousClose"`
				MarketState          string   `json:"marketState"`
				CurrentTradingPeriod struct {
					Regular struct {
						End int64 `json:"end"`
					} `json:"regular"`
				} `json:"currentTradingPeriod"`
			} `json:"meta"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// Service fetches quotes from a chart-style JSON endpoint. FX pseudo-
// symbols ("HKDUSD=X") go through the same endpoint as equities.
type Service struct {
	c           *resty.Client
	rateLimiter ratelimit.Limiter

	logger logger.Logger
}

func NewService(baseURL string, logger logger.Logger) *Service {
	client := resty.New().
		SetLogger(logger).
		SetBaseURL(baseURL).
		SetTimeout(15 * time.Second)

	return &Service{
		c:           client,
		rateLimiter: ratelimit.New(_requestsPerMinute, ratelimit.Per(1*time.Minute)),
		logger:      logger,
	}
}

func (s *Service) Fetch(ctx context.Context, symbol string) (model.MarketQuote, error) {
	s.rateLimiter.Take()

	req := s.c.R().
		SetQueryParams(map[string]string{
			"interval": "1d",
			"range":    "1d",
		}).
		SetResult(&chartResponse{}).
		SetContext(ctx)

	resp, err := req.Get(_chartURL + url.PathEscape(symbol))
	if err != nil {
		return model.MarketQuote{}, fmt.Errorf("%w: can't send quote request for %s", err, symbol)
	}
	defer resp.Body.Close()

	s.logger.Debugf("got response %s status: %s, %s", resp.Request.URL, resp.Status(), resp.Duration())

	if !resp.IsSuccess() {
		return model.MarketQuote{}, fmt.Errorf("quote request error for %s: %s", symbol, resp.Status())
	}

	chart := resp.Result().(*chartResponse)
	if chart.Chart.Error != nil {
		return model.MarketQuote{}, fmt.Errorf("%s: quote provider error for %s", chart.Chart.Error.Description, symbol)
	}
	if len(chart.Chart.Result) == 0 {
		return model.MarketQuote{}, fmt.Errorf("empty chart result for %s", symbol)
	}

	meta := chart.Chart.Result[0].Meta

	q := model.MarketQuote{
		CurrentPrice:   meta.RegularMarketPrice,
		PreviousClose:  meta.PreviousClose,
		IsMarketClosed: meta.MarketState != "" && meta.MarketState != "REGULAR",
		LastUpdateMs:   time.Now().UnixMilli(),
	}
	if q.PreviousClose == nil {
		q.PreviousClose = meta.ChartPreviousClose
	}
	if end := meta.CurrentTradingPeriod.Regular.End; end != 0 {
		q.TradingPeriodEnd = model.Ptr(end)
	}

	return q, nil
}

// NewPoller wires the service into the generic engine.
func NewPoller(s *Service, logger logger.Logger) *poller.Poller[model.MarketQuote] {
	return poller.New("quotes", s.Fetch, logger)
}
