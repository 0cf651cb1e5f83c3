package main

import (
	"os"
	"path/filepath"

	"overlaycast/internal/attachment"
	"overlaycast/internal/config"
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

func main() {
	// Setup logger
	logger := logging.NewLoggerWithService("overlayd")

	// Load environment variables
	config.LoadEnv(logger)

	logger.Info("Starting Overlayd (alert broadcast overlay)")

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker("overlayd", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("overlayd", version.Version, version.GitCommit)

	// Create custom metrics
	serviceMetrics := &metrics.Metrics{
		Connections:       metricsCollector.NewGauge("websocket_connections_active", "Active viewer connections", []string{"filter_key"}),
		Messages:          metricsCollector.NewCounter("websocket_messages_total", "WebSocket messages", []string{"filter_key", "direction"}),
		AlertsDispatched:  metricsCollector.NewCounter("alerts_dispatched_total", "Alerts dispatched", []string{"filter_key"}),
		BroadcastDuration: metricsCollector.NewHistogram("broadcast_duration_seconds", "Broadcast fan-out duration", []string{"filter_key"}, nil),
		DeliveryFailures:  metricsCollector.NewCounter("delivery_failures_total", "Subscriber delivery failures", []string{"filter_key"}),
	}

	// Initialize the core: attachment cache, subscriber registry, gateway,
	// dispatcher
	store := attachment.NewStore(logger)
	reg := registry.New(logger)
	gateway := ws.NewGateway(reg, logger, serviceMetrics)
	dispatcher := dispatch.New(store, reg, logger, serviceMetrics, nil)

	overlayHandlers := handlers.NewOverlayHandlers(gateway, store, dispatcher, reg, logger)

	// Preload attachments from disk when configured
	if dir := config.GetEnv("ATTACHMENTS_DIR", ""); dir != "" {
		preloadAttachments(dir, store, logger)
	}

	// Add health checks
	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"PORT": config.GetEnv("PORT", "5050"),
	}))

	// Setup router with unified monitoring
	router := server.SetupServiceRouter(logger, "overlayd", healthChecker, metricsCollector)

	// Viewer-facing routes
	router.GET("/", overlayHandlers.HandleIndex)
	router.GET("/ws", overlayHandlers.HandleWebSocket)
	router.GET("/upload/:key", overlayHandlers.HandleAttachment)

	// Admin routes for host automation
	admin := router.Group("/admin")
	admin.POST("/alert", overlayHandlers.HandleAlert)
	admin.GET("/attachments", overlayHandlers.HandleListAttachments)
	admin.POST("/attachments", overlayHandlers.HandleAddAttachment)
	admin.DELETE("/attachments/:name", overlayHandlers.HandleRemoveAttachment)
	admin.GET("/stats", overlayHandlers.HandleStats)

	router.NoRoute(overlayHandlers.HandleNotFound)

	// Start server with graceful shutdown
	serverConfig := server.DefaultConfig("overlayd", "5050")
	if err := server.Start(serverConfig, router, logger); err != nil {
		logger.WithError(err).Fatal("Server startup failed")
	}
}

// preloadAttachments registers every regular file in dir as an attachment
// named by its basename.
func preloadAttachments(dir string, store *attachment.Store, logger logging.Logger) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.WithError(err).WithField("dir", dir).Warn("Cannot read attachments directory")
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		key, err := store.Add(name, filepath.Join(dir, name))
		if err != nil {
			logger.WithError(err).WithField("file", name).Warn("Skipping unreadable attachment")
			continue
		}
		logger.WithFields(logging.Fields{"name": name, "key": key}).Info("Attachment preloaded")
	}
}
