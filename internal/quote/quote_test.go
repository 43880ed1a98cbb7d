package quote

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cyfung/portfolio-helper-sub000/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chartBody(symbol, marketState string, price, prevClose float64) string {
	return fmt.Sprintf(`{
		"chart": {
			"result": [{
				"meta": {
					"symbol": %q,
					"regularMarketPrice": %f,
					"chartPreviousClose": %f,
					"marketState": %q,
					"currentTradingPeriod": {"regular": {"end": 1767225600}}
				}
			}],
			"error": null
		}
	}`, symbol, price, prevClose, marketState)
}

func newTestService(t *testing.T, handler http.HandlerFunc) *Service {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewService(srv.URL, logger.NewNopLogger())
}

func TestFetchQuote(t *testing.T) {
	s := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasPrefix(r.URL.Path, "/v8/finance/chart/"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(chartBody("AAPL", "REGULAR", 150.0, 148.0)))
	})

	q, err := s.Fetch(context.Background(), "AAPL")
	require.NoError(t, err)

	require.NotNil(t, q.CurrentPrice)
	assert.InDelta(t, 150.0, *q.CurrentPrice, 1e-9)
	require.NotNil(t, q.PreviousClose)
	assert.InDelta(t, 148.0, *q.PreviousClose, 1e-9)
	assert.False(t, q.IsMarketClosed)
	require.NotNil(t, q.TradingPeriodEnd)
	assert.Equal(t, int64(1767225600), *q.TradingPeriodEnd)
	assert.NotZero(t, q.LastUpdateMs)
}

func TestFetchFXPseudoSymbol(t *testing.T) {
	var gotPath string
	s := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(chartBody("HKDUSD=X", "CLOSED", 0.128, 0.129)))
	})

	q, err := s.Fetch(context.Background(), "HKDUSD=X")
	require.NoError(t, err)
	assert.Contains(t, gotPath, "HKDUSD=X")
	assert.True(t, q.IsMarketClosed)
	require.NotNil(t, q.CurrentPrice)
	assert.InDelta(t, 0.128, *q.CurrentPrice, 1e-9)
}

func TestFetchHTTPError(t *testing.T) {
	s := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	})

	_, err := s.Fetch(context.Background(), "AAPL")
	assert.Error(t, err)
}

func TestFetchProviderError(t *testing.T) {
	s := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"chart": {"result": [], "error": {"code": "Not Found", "description": "no data"}}}`))
	})

	_, err := s.Fetch(context.Background(), "NOPE")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no data")
}

func TestFetchEmptyResult(t *testing.T) {
	s := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"chart": {"result": [], "error": null}}`))
	})

	_, err := s.Fetch(context.Background(), "NOPE")
	assert.Error(t, err)
}
