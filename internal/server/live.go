// SPDX-License-Identifier: MPL-2.0

package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/akkumar/closure-util/internal/manager"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10

	maxInboundMessage = 512
)

const (
	messageError  = "error"
	messageUpdate = "update"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// liveMessage is one push notification. Update messages without a path
// report a removed script.
type liveMessage struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Path    string `json:"path,omitempty"`
}

// serveLive upgrades the request and forwards manager errors and updates
// until the client disconnects or the server stops. Errors the manager
// currently holds are replayed first.
func (s *Server) serveLive(w http.ResponseWriter, r *http.Request) {
	s.connMu.Lock()
	if s.life.Context().Err() != nil {
		s.connMu.Unlock()
		http.Error(w, "Server stopping", http.StatusServiceUnavailable)
		return
	}
	s.conns.Add(1)
	s.connMu.Unlock()
	defer s.conns.Done()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		s.logger.Debug("push upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// Subscribe before replaying so nothing published in between is lost.
	sub := s.cfg.Source.Subscribe()
	defer s.cfg.Source.Unsubscribe(sub.ID)
	logger := s.logger.With("conn", sub.ID.String())
	logger.Debug("push connected", "remote", r.RemoteAddr)

	write := func(msg liveMessage) error {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(msg)
	}

	held, err := s.cfg.Source.Errors()
	if err != nil {
		logger.Debug("no errors to replay", "error", err)
	}
	for _, e := range held {
		if err := write(liveMessage{Type: messageError, Message: e.Error()}); err != nil {
			logger.Debug("push write failed", "error", err)
			return
		}
	}

	done := make(chan struct{})
	go readLive(conn, done)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	stopping := s.life.Context().Done()
	for {
		select {
		case <-stopping:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server stopping"),
				time.Now().Add(writeWait))
			return
		case <-done:
			logger.Debug("push disconnected")
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			msg, send := liveMessageFor(ev)
			if !send {
				continue
			}
			if err := write(msg); err != nil {
				logger.Debug("push write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLive drains client frames so pongs and close frames are processed.
// It closes done when the connection fails.
func readLive(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(maxInboundMessage)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func liveMessageFor(ev manager.Event) (liveMessage, bool) {
	switch ev.Kind {
	case manager.EventError:
		if ev.Err == nil {
			return liveMessage{}, false
		}
		return liveMessage{Type: messageError, Message: ev.Err.Error()}, true
	case manager.EventUpdate:
		msg := liveMessage{Type: messageUpdate}
		if ev.Script != nil {
			msg.Path = ev.Script.Path
		}
		return msg, true
	default:
		return liveMessage{}, false
	}
}
