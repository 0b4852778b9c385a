package push

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/PaulBabatuyi/relaychat/internal/metrics"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	// devices are native apps, not browsers
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsConn serialises writes; gorilla allows one concurrent writer.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) write(messageType int, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(messageType, payload)
}

// Send writes data as one JSON text frame.
func (c *wsConn) Send(data map[string]string) error {
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return c.write(websocket.TextMessage, b)
}

// ServeWS upgrades the request and keeps the socket registered under token
// until the device goes away. It blocks for the life of the connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, token string) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := &wsConn{conn: conn}
	id := h.Register(token, c)
	metrics.WsConnections.Inc()
	log.Debug().Int64("conn_id", id).Msg("push device connected")

	done := make(chan struct{})
	defer func() {
		close(done)
		h.Unregister(token, id)
		metrics.WsConnections.Dec()
		_ = conn.Close()
		log.Debug().Int64("conn_id", id).Msg("push device disconnected")
	}()

	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := c.write(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	// Devices only listen; inbound frames are read to process control
	// messages and discarded.
	conn.SetReadLimit(4 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return nil
		}
	}
}
