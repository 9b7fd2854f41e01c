package bus

import (
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/capitalize-ai/concierge-router/internal/model"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Serve pumps frames between conn and the hub until either side goes away.
// It registers c on entry and unregisters it on return.
func (h *Hub) Serve(conn *websocket.Conn, c *Client) {
	h.Register(c)

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writePump(conn, c)
	}()

	h.readPump(conn, c)
	h.Unregister(c)
	<-done
}

func (h *Hub) readPump(conn *websocket.Conn, c *Client) {
	defer conn.Close()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("realtime connection closed", zap.Error(err))
			}
			return
		}

		ev, err := model.DecodeClientEvent(raw)
		if err != nil {
			if !errors.Is(err, model.ErrUnknownEvent) {
				h.log.Debug("ignoring malformed frame", zap.Error(err))
			}
			continue
		}
		h.Handle(c, ev)
	}
}

func (h *Hub) writePump(conn *websocket.Conn, c *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
