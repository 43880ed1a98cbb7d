package server

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cyfung/portfolio-helper-sub000/internal/broadcast"
	"github.com/cyfung/portfolio-helper-sub000/internal/config"
	"github.com/cyfung/portfolio-helper-sub000/internal/logger"
	"github.com/cyfung/portfolio-helper-sub000/internal/margin"
	"github.com/cyfung/portfolio-helper-sub000/internal/model"
	"github.com/cyfung/portfolio-helper-sub000/internal/registry"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStreamFixture(t *testing.T) (*broadcast.Hub, string) {
	t.Helper()

	reg := registry.NewRegistry()
	reg.Register(registry.NewPortfolio("main", "Main"))
	hub := broadcast.NewHub(8, logger.NewNopLogger())
	marginSvc := margin.NewService(config.MarginSourceConfig{URL: "http://localhost:1"},
		time.Minute, logger.NewNopLogger())

	api := NewAPI(reg, fakeQuotes{}, fakeNavs{}, marginSvc, hub, logger.NewNopLogger())
	srv := httptest.NewServer(api.Routes())
	t.Cleanup(srv.Close)

	return hub, strings.Replace(srv.URL, "http://", "ws://", 1) + "/stream"
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, frame, err := conn.ReadMessage()
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, sonic.Unmarshal(frame, &got))
	return got
}

func TestStreamDeliversEventsAsJSONFrames(t *testing.T) {
	hub, url := newStreamFixture(t)

	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	require.Eventually(t, func() bool {
		return hub.Subscribers() == 1
	}, 2*time.Second, 10*time.Millisecond)

	hub.Publish(model.NewPriceUpdate("AAPL", model.MarketQuote{
		CurrentPrice:  model.Ptr(150.0),
		PreviousClose: model.Ptr(148.0),
		LastUpdateMs:  123,
	}))

	got := readFrame(t, conn)
	assert.Equal(t, "price", got["type"])
	assert.Equal(t, "AAPL", got["symbol"])
	assert.InDelta(t, 150.0, got["price"].(float64), 1e-9)

	hub.Publish(model.NewReloadSignal(456))
	got = readFrame(t, conn)
	assert.Equal(t, "reload", got["type"])
	assert.InDelta(t, 456, got["timestamp"].(float64), 1e-9)
}

func TestStreamDisconnectTearsDownSubscription(t *testing.T) {
	hub, url := newStreamFixture(t)

	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Eventually(t, func() bool {
		return hub.Subscribers() == 1
	}, 2*time.Second, 10*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool {
		return hub.Subscribers() == 0
	}, 2*time.Second, 10*time.Millisecond)

	// producers are unaffected by the gone consumer
	hub.Publish(model.NewReloadSignal(1))
}
