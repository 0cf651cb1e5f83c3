// Package overlaycast implements a realtime event-broadcast overlay: a
// small HTTP/WebSocket server that fans out alert events to long-lived
// viewer connections grouped by filter key, and caches binary media in
// memory so alerts can reference it by a stable short key.
package overlaycast

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"overlaycast/alert"
	"overlaycast/internal/attachment"
	"overlaycast/internal/dispatch"
	"overlaycast/internal/handlers"
	"overlaycast/internal/logging"
	"overlaycast/internal/metrics"
	"overlaycast/internal/monitoring"
	"overlaycast/internal/registry"
	"overlaycast/internal/server"
	"overlaycast/internal/version"
	ws "overlaycast/internal/websocket"
)

// Defaults for an embedded overlay server
const (
	DefaultHost = "localhost"
	DefaultPort = 5050
)

// Config configures an Overlay instance
type Config struct {
	// Host and Port the server binds to. Defaults: localhost:5050.
	Host string
	Port int

	// Logger defaults to a JSON logrus logger with service field "overlay".
	Logger logging.Logger

	// OnReady is invoked once the transport is listening
	OnReady func(addr string)

	// OnAlert is invoked after each dispatched alert with the filter key
	// and the final payload
	OnAlert func(filterKey string, msg alert.Message)
}

// Overlay is the embeddable overlay server. Each instance owns its own
// subscriber registry, attachment cache and metrics registry, so several
// instances can coexist in one process.
type Overlay struct {
	cfg        Config
	logger     logging.Logger
	store      *attachment.Store
	registry   *registry.Registry
	gateway    *ws.Gateway
	dispatcher *dispatch.Dispatcher
	handlers   *handlers.OverlayHandlers
	health     *monitoring.HealthChecker
	collector  *monitoring.MetricsCollector
	router     *gin.Engine
}

// New creates an Overlay with its routes wired but not yet listening
func New(cfg Config) *Overlay {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLoggerWithService("overlay")
	}

	collector := monitoring.NewMetricsCollector("overlay", version.Version, version.GitCommit)
	serviceMetrics := &metrics.Metrics{
		Connections:       collector.NewGauge("websocket_connections_active", "Active viewer connections", []string{"filter_key"}),
		Messages:          collector.NewCounter("websocket_messages_total", "WebSocket messages", []string{"filter_key", "direction"}),
		AlertsDispatched:  collector.NewCounter("alerts_dispatched_total", "Alerts dispatched", []string{"filter_key"}),
		BroadcastDuration: collector.NewHistogram("broadcast_duration_seconds", "Broadcast fan-out duration", []string{"filter_key"}, nil),
		DeliveryFailures:  collector.NewCounter("delivery_failures_total", "Subscriber delivery failures", []string{"filter_key"}),
	}

	store := attachment.NewStore(logger)
	reg := registry.New(logger)
	gateway := ws.NewGateway(reg, logger, serviceMetrics)

	var hook dispatch.Hook
	if cfg.OnAlert != nil {
		hook = cfg.OnAlert
	}
	dispatcher := dispatch.New(store, reg, logger, serviceMetrics, hook)

	health := monitoring.NewHealthChecker("overlay", version.Version)
	h := handlers.NewOverlayHandlers(gateway, store, dispatcher, reg, logger)

	router := server.SetupServiceRouter(logger, "overlay", health, collector)
	router.GET("/", h.HandleIndex)
	router.GET("/ws", h.HandleWebSocket)
	router.GET("/upload/:key", h.HandleAttachment)
	router.NoRoute(h.HandleNotFound)

	return &Overlay{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		registry:   reg,
		gateway:    gateway,
		dispatcher: dispatcher,
		handlers:   h,
		health:     health,
		collector:  collector,
		router:     router,
	}
}

// Router exposes the gin engine so hosts can mount extra routes before Run
func (o *Overlay) Router() *gin.Engine {
	return o.router
}

// URL constructs the viewer URL for a filter key
func (o *Overlay) URL(filterKey string) string {
	if filterKey == "" {
		filterKey = alert.DefaultFilterKey
	}
	return fmt.Sprintf("http://%s/?default=%s", o.addr(), filterKey)
}

// AddAttachment loads the file at path into the in-memory cache under name
// and returns the derived serving key. Re-adding a name overwrites it.
func (o *Overlay) AddAttachment(name, path string) (string, error) {
	return o.store.Add(name, path)
}

// AddAttachmentBytes stores data under name with a key derived from path
func (o *Overlay) AddAttachmentBytes(name, path string, data []byte) (string, error) {
	return o.store.AddBytes(name, path, data)
}

// RemoveAttachment deletes a named attachment. Unknown names are a no-op.
func (o *Overlay) RemoveAttachment(name string) {
	o.store.Remove(name)
}

// ClearAttachments empties the attachment cache
func (o *Overlay) ClearAttachments() {
	o.store.Clear()
}

// Attachments returns the current name to serving-key mapping
func (o *Overlay) Attachments() map[string]string {
	return o.store.Keys()
}

// Alert broadcasts an alert to the default "all" filter key
func (o *Overlay) Alert(text string, opts ...alert.Option) {
	o.AlertTo(alert.DefaultFilterKey, text, opts...)
}

// AlertTo broadcasts an alert to every viewer registered under filterKey.
// Alerts are fire-and-forget: with no matching viewers nothing happens.
func (o *Overlay) AlertTo(filterKey, text string, opts ...alert.Option) {
	o.dispatcher.Dispatch(filterKey, alert.New(text, opts...))
}

// Run serves the overlay until ctx is cancelled. OnReady fires once the
// listener is bound.
func (o *Overlay) Run(ctx context.Context) error {
	cfg := server.Config{
		Host:         o.cfg.Host,
		Port:         strconv.Itoa(o.cfg.Port),
		ServiceName:  "overlay",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return server.Serve(ctx, cfg, o.router, o.logger, o.cfg.OnReady)
}

func (o *Overlay) addr() string {
	return fmt.Sprintf("%s:%d", o.cfg.Host, o.cfg.Port)
}
