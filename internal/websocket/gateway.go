package websocket

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"overlaycast/alert"
	"overlaycast/internal/logging"
	"overlaycast/internal/metrics"
	"overlaycast/internal/registry"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512

	// Per-client outbound queue depth. A client that falls this far behind
	// is treated as disconnected so it cannot stall broadcasts to others.
	sendQueueSize = 256
)

// ErrSendQueueFull marks a client whose outbound queue overflowed
var ErrSendQueueFull = errors.New("client send queue full")

// ErrClientClosed marks a send attempted after the client closed
var ErrClientClosed = errors.New("client closed")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Gateway accepts viewer connections, assigns each one the filter key from
// its upgrade request and registers it with the subscriber registry.
type Gateway struct {
	registry *registry.Registry
	logger   logging.Logger
	metrics  *metrics.Metrics
}

// NewGateway creates a gateway over the given registry. metrics may be nil.
func NewGateway(reg *registry.Registry, logger logging.Logger, m *metrics.Metrics) *Gateway {
	return &Gateway{
		registry: reg,
		logger:   logger,
		metrics:  m,
	}
}

// ServeWS upgrades an HTTP request to a WebSocket viewer connection
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.WithError(err).Error("Failed to upgrade WebSocket connection")
		return
	}

	filterKey := r.URL.Query().Get("default")
	if filterKey == "" {
		filterKey = alert.DefaultFilterKey
	}

	client := &Client{
		gateway:   g,
		conn:      conn,
		send:      make(chan []byte, sendQueueSize),
		filterKey: filterKey,
		logger:    g.logger,
	}

	g.registry.Register(filterKey, client)
	if g.metrics != nil {
		g.metrics.Connections.WithLabelValues(filterKey).Inc()
	}

	// Start goroutines for reading and writing
	go client.writePump()
	go client.readPump()
}

// Client represents one viewer WebSocket connection
type Client struct {
	gateway   *Gateway
	conn      *websocket.Conn
	send      chan []byte
	filterKey string
	logger    logging.Logger

	mu     sync.RWMutex
	closed bool
}

// Send queues message for delivery. It never blocks: a full queue returns
// ErrSendQueueFull and the caller is expected to drop the client.
func (c *Client) Send(message []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return ErrClientClosed
	}

	select {
	case c.send <- message:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// Close tears the client down exactly once: it leaves the registry, closes
// the connection and drains the write pump.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()

	c.gateway.registry.Unregister(c)
	if c.gateway.metrics != nil {
		c.gateway.metrics.Connections.WithLabelValues(c.filterKey).Dec()
	}
	return c.conn.Close()
}

// readPump consumes inbound frames. Text frames are echoed back verbatim
// with an "Echo: " prefix; anything unreadable is ignored and the
// connection stays open until the read fails.
func (c *Client) readPump() {
	defer c.Close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		msgType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.WithError(err).Error("WebSocket connection error")
			}
			break
		}

		if msgType != websocket.TextMessage {
			continue
		}

		if c.gateway.metrics != nil {
			c.gateway.metrics.Messages.WithLabelValues(c.filterKey, "inbound").Inc()
		}

		if err := c.Send(append([]byte("Echo: "), message...)); err != nil {
			c.logger.WithError(err).Warn("Failed to queue echo response")
		}
	}
}

// writePump pumps queued messages to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			if c.gateway.metrics != nil {
				c.gateway.metrics.Messages.WithLabelValues(c.filterKey, "outbound").Inc()
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
