package server

import (
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
)

const (
	_pingInterval = 45 * time.Second
	_readDeadline = 90 * time.Second
	_writeTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	// single-user local tool, any origin may connect
	CheckOrigin: func(*http.Request) bool { return true },
}

// stream upgrades to a WebSocket and forwards every broadcast event as
// one JSON text frame. A client that can't keep up loses its oldest
// buffered events per the hub's drop policy; disconnect tears the
// subscription down without touching anyone else.
func (a *API) stream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warnf("%s: can't upgrade stream connection", err)
		return
	}
	defer conn.Close()

	sub := a.hub.Subscribe()
	defer sub.Close()
	a.logger.Infof("stream consumer connected from %s (%d total)", r.RemoteAddr, a.hub.Subscribers())

	// writer
	go func() {
		ping := time.NewTicker(_pingInterval)
		defer ping.Stop()
		for {
			select {
			case ev := <-sub.Events():
				frame, err := sonic.Marshal(ev)
				if err != nil {
					a.logger.Errorf("%s: can't marshal %s event", err, ev.EventType())
					continue
				}
				_ = conn.SetWriteDeadline(time.Now().Add(_writeTimeout))
				if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
					return
				}
			case <-ping.C:
				_ = conn.SetWriteDeadline(time.Now().Add(_writeTimeout))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-sub.Done():
				return
			}
		}
	}()

	// reader: we ignore client frames, the loop exists to notice
	// disconnects and keep the pong handler serviced
	_ = conn.SetReadDeadline(time.Now().Add(_readDeadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(_readDeadline))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	a.logger.Infof("stream consumer %s disconnected", r.RemoteAddr)
}
