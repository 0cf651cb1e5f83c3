// Package client implements the overlay's alert consumer contract: a
// websocket subscriber that queues received alerts and renders them one at
// a time, reconnecting with exponential backoff when the feed drops.
package client

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"overlaycast/alert"
	"overlaycast/internal/logging"
)

// Reconnect and queue defaults
const (
	DefaultInitialBackoff = 5 * time.Second
	DefaultMaxBackoff     = 60 * time.Second
	DefaultQueueSize      = 64
)

// Renderer presents one alert. Render must block for the alert's full
// visible lifetime (duration plus transitions); the consumer never overlaps
// two renders.
type Renderer interface {
	Render(ctx context.Context, msg alert.Message) error
}

// RendererFunc adapts a function to the Renderer interface
type RendererFunc func(ctx context.Context, msg alert.Message) error

// Render implements Renderer
func (f RendererFunc) Render(ctx context.Context, msg alert.Message) error {
	return f(ctx, msg)
}

// Config configures a Consumer
type Config struct {
	// URL is the websocket endpoint, including the filter-key query,
	// e.g. ws://localhost:5050/ws?default=follow
	URL string

	// Renderer receives alerts in arrival order, one at a time
	Renderer Renderer

	// Logger defaults to a JSON logrus logger
	Logger logging.Logger

	// InitialBackoff doubles on each consecutive connection failure up to
	// MaxBackoff, and resets on any successful connect.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// QueueSize bounds the pending-alert queue
	QueueSize int
}

// Consumer connects to an overlay feed and drives a Renderer
type Consumer struct {
	cfg    Config
	logger logging.Logger
	queue  chan alert.Message
}

// New creates a Consumer with defaults applied
func New(cfg Config) *Consumer {
	if cfg.Logger == nil {
		cfg.Logger = logging.NewLoggerWithService("overlay-client")
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultInitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultMaxBackoff
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	return &Consumer{
		cfg:    cfg,
		logger: cfg.Logger,
		queue:  make(chan alert.Message, cfg.QueueSize),
	}
}

// Run connects, consumes and renders until ctx is cancelled. It only
// returns ctx.Err(): connection losses are retried forever with backoff.
func (c *Consumer) Run(ctx context.Context) error {
	go c.renderLoop(ctx)

	backoff := c.cfg.InitialBackoff
	for {
		conn, resp, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.URL, nil)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.WithError(err).WithField("backoff", backoff.String()).
				Warn("Overlay feed unreachable, retrying")
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			backoff = nextBackoff(backoff, c.cfg.MaxBackoff)
			continue
		}

		// Successful connect resets the backoff schedule
		backoff = c.cfg.InitialBackoff
		c.logger.WithField("url", c.cfg.URL).Info("Connected to overlay feed")

		c.readLoop(ctx, conn)
		conn.Close()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("Overlay feed closed, reconnecting")
		if !sleep(ctx, backoff) {
			return ctx.Err()
		}
		backoff = nextBackoff(backoff, c.cfg.MaxBackoff)
	}
}

// readLoop consumes frames until the connection fails or ctx is cancelled.
// Malformed and empty messages are skipped, never fatal.
func (c *Consumer) readLoop(ctx context.Context, conn *websocket.Conn) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				c.logger.WithError(err).Debug("Overlay feed read failed")
			}
			return
		}

		var msg alert.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.WithError(err).Debug("Skipping malformed overlay message")
			continue
		}
		if msg.Text == "" {
			continue
		}

		select {
		case c.queue <- msg:
		case <-ctx.Done():
			return
		}
	}
}

// renderLoop drains the FIFO queue, one alert at a time
func (c *Consumer) renderLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.queue:
			if c.cfg.Renderer == nil {
				continue
			}
			if err := c.cfg.Renderer.Render(ctx, msg); err != nil {
				c.logger.WithError(err).WithField("text", msg.Text).
					Warn("Renderer failed, continuing with queue")
			}
		}
	}
}

// nextBackoff doubles cur and clamps it to max
func nextBackoff(cur, max time.Duration) time.Duration {
	cur *= 2
	if cur > max {
		cur = max
	}
	return cur
}

// sleep waits for d or until ctx is cancelled; it reports whether the full
// delay elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
