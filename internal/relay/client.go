package relay

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"agentwatch/pkg/logger"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// Maximum frame size accepted from the peer.
	maxMessageSize = 1024 * 1024
)

var (
	heartbeatFrame = []byte(`{"type":"heartbeat"}`)
	pongFrame      = []byte(`{"type":"pong"}`)
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // development relay, any origin
	},
}

// Client is one connected watcher.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	activity  chan struct{}
	pings     chan struct{}
	heartbeat time.Duration
	id        string
}

func newClient(hub *Hub, conn *websocket.Conn, heartbeat time.Duration) *Client {
	return &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, 256),
		activity:  make(chan struct{}, 1),
		pings:     make(chan struct{}, 1),
		heartbeat: heartbeat,
		id:        uuid.New().String(),
	}
}

// readPump consumes frames from the peer. The only request understood is the
// literal text "ping"; everything else is ignored.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.Warn().Err(err).Str("client_id", c.id).Msg("Relay read error")
			}
			return
		}

		select {
		case c.activity <- struct{}{}:
		default:
		}

		if strings.TrimSpace(string(message)) == "ping" {
			select {
			case c.pings <- struct{}{}:
			default:
			}
			continue
		}
		logger.Debug().Str("client_id", c.id).Int("bytes", len(message)).Msg("Ignoring client frame")
	}
}

// writePump writes queued frames and sends a heartbeat whenever the peer has
// been silent for the heartbeat interval.
func (c *Client) writePump() {
	idle := time.NewTimer(c.heartbeat)
	defer func() {
		idle.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "relay shutting down"))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Warn().Err(err).Str("client_id", c.id).Msg("Relay write error")
				return
			}

		case <-c.pings:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, pongFrame); err != nil {
				return
			}

		case <-c.activity:
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(c.heartbeat)

		case <-idle.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, heartbeatFrame); err != nil {
				return
			}
			idle.Reset(c.heartbeat)
		}
	}
}

// ServeWs upgrades the request and attaches the connection to hub.
func ServeWs(hub *Hub, heartbeat time.Duration, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to upgrade relay connection")
		return
	}

	client := newClient(hub, conn, heartbeat)
	if !hub.Register(client) {
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
