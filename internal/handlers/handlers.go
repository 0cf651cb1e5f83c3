package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"overlaycast/alert"
	"overlaycast/internal/attachment"
	"overlaycast/internal/dispatch"
	"overlaycast/internal/logging"
	"overlaycast/internal/registry"
	"overlaycast/internal/template"
	ws "overlaycast/internal/websocket"
)

// OverlayHandlers contains the HTTP handlers for the overlay service
type OverlayHandlers struct {
	gateway    *ws.Gateway
	store      *attachment.Store
	dispatcher *dispatch.Dispatcher
	reg        *registry.Registry
	logger     logging.Logger
	startTime  time.Time
}

// NewOverlayHandlers creates a new handlers instance
func NewOverlayHandlers(gateway *ws.Gateway, store *attachment.Store, dispatcher *dispatch.Dispatcher, reg *registry.Registry, logger logging.Logger) *OverlayHandlers {
	return &OverlayHandlers{
		gateway:    gateway,
		store:      store,
		dispatcher: dispatcher,
		reg:        reg,
		logger:     logger,
		startTime:  time.Now(),
	}
}

// HandleIndex serves the overlay presentation page
func (h *OverlayHandlers) HandleIndex(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", template.Page())
}

// HandleWebSocket upgrades viewer connections
func (h *OverlayHandlers) HandleWebSocket(c *gin.Context) {
	h.gateway.ServeWS(c.Writer, c.Request)
}

// HandleAttachment serves cached attachment bytes by key
func (h *OverlayHandlers) HandleAttachment(c *gin.Context) {
	key := c.Param("key")
	data, err := h.store.Get(key)
	if err != nil {
		if !errors.Is(err, attachment.ErrNotFound) {
			h.logger.WithError(err).WithField("key", key).Error("Failed to read attachment")
		}
		c.String(http.StatusNotFound, "File not found")
		return
	}
	c.Data(http.StatusOK, "application/octet-stream", data)
}

// HandleNotFound provides a custom 404 handler
func (h *OverlayHandlers) HandleNotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{
		"error":   "not_found",
		"service": "overlay",
		"message": "Endpoint not found",
	})
}

// AlertRequest is the admin trigger payload. Absent fields fall back to
// the alert defaults.
type AlertRequest struct {
	Text               string   `json:"text" binding:"required"`
	FontName           *string  `json:"font_name"`
	FontSize           *float64 `json:"font_size"`
	TextColor          *string  `json:"text_color"`
	TextHighlightColor *string  `json:"text_highlight_color"`
	TextAnimation      *string  `json:"text_animation"`
	StartAnimation     *string  `json:"start_animation"`
	EndAnimation       *string  `json:"end_animation"`
	Image              *string  `json:"image"`
	Audio              *string  `json:"audio"`
	AlertDuration      *float64 `json:"alert_duration"`
	FilterKey          *string  `json:"filter_key"`
}

// HandleAlert dispatches an alert from an admin request
func (h *OverlayHandlers) HandleAlert(c *gin.Context) {
	var req AlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	var opts []alert.Option
	if req.FontName != nil {
		opts = append(opts, alert.WithFontName(*req.FontName))
	}
	if req.FontSize != nil {
		opts = append(opts, alert.WithFontSize(*req.FontSize))
	}
	if req.TextColor != nil {
		opts = append(opts, alert.WithTextColor(*req.TextColor))
	}
	if req.TextHighlightColor != nil {
		opts = append(opts, alert.WithTextHighlightColor(*req.TextHighlightColor))
	}
	if req.TextAnimation != nil {
		opts = append(opts, alert.WithTextAnimation(*req.TextAnimation))
	}
	if req.StartAnimation != nil {
		opts = append(opts, alert.WithStartAnimation(*req.StartAnimation))
	}
	if req.EndAnimation != nil {
		opts = append(opts, alert.WithEndAnimation(*req.EndAnimation))
	}
	if req.Image != nil {
		opts = append(opts, alert.WithImage(*req.Image))
	}
	if req.Audio != nil {
		opts = append(opts, alert.WithAudio(*req.Audio))
	}
	if req.AlertDuration != nil {
		opts = append(opts, alert.WithDuration(*req.AlertDuration))
	}

	filterKey := alert.DefaultFilterKey
	if req.FilterKey != nil && *req.FilterKey != "" {
		filterKey = *req.FilterKey
	}

	h.dispatcher.Dispatch(filterKey, alert.New(req.Text, opts...))
	c.JSON(http.StatusAccepted, gin.H{"status": "dispatched", "filter_key": filterKey})
}

// AttachmentRequest registers a file as a named attachment
type AttachmentRequest struct {
	Name string `json:"name" binding:"required"`
	Path string `json:"path" binding:"required"`
}

// HandleAddAttachment loads a file into the attachment cache
func (h *OverlayHandlers) HandleAddAttachment(c *gin.Context) {
	var req AttachmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	key, err := h.store.Add(req.Name, req.Path)
	if err != nil {
		h.logger.WithError(err).WithField("path", req.Path).Error("Failed to load attachment")
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "source_read_failure", "message": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"name": req.Name, "key": key})
}

// HandleListAttachments returns the name to key mapping
func (h *OverlayHandlers) HandleListAttachments(c *gin.Context) {
	c.JSON(http.StatusOK, h.store.Keys())
}

// HandleRemoveAttachment deletes a named attachment. Removal is
// idempotent, so unknown names still return 204.
func (h *OverlayHandlers) HandleRemoveAttachment(c *gin.Context) {
	h.store.Remove(c.Param("name"))
	c.Status(http.StatusNoContent)
}

// HandleStats reports gateway statistics
func (h *OverlayHandlers) HandleStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"uptime":      time.Since(h.startTime).String(),
		"subscribers": h.reg.Stats(),
		"attachments": h.store.Len(),
	})
}
