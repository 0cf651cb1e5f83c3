// Package dispatch builds outbound alert payloads and fans them out
// through the subscriber registry.
package dispatch

import (
	"encoding/json"
	"net/url"
	"time"

	"overlaycast/alert"
	"overlaycast/internal/attachment"
	"overlaycast/internal/logging"
	"overlaycast/internal/metrics"
	"overlaycast/internal/registry"
)

// UploadRoute is the path prefix attachments are served under
const UploadRoute = "/upload/"

// Hook observes dispatched alerts with their final payload
type Hook func(filterKey string, msg alert.Message)

// Dispatcher resolves media references and delivers alerts to the
// subscribers of one filter key. Alerts are fire-and-forget: delivering to
// zero subscribers is not an error and nothing is queued for late joiners.
type Dispatcher struct {
	store   *attachment.Store
	reg     *registry.Registry
	logger  logging.Logger
	metrics *metrics.Metrics
	hook    Hook
}

// New creates a Dispatcher. metrics and hook may be nil.
func New(store *attachment.Store, reg *registry.Registry, logger logging.Logger, m *metrics.Metrics, hook Hook) *Dispatcher {
	return &Dispatcher{
		store:   store,
		reg:     reg,
		logger:  logger,
		metrics: m,
		hook:    hook,
	}
}

// Dispatch normalizes msg's media references, broadcasts it to filterKey
// and fires the dispatched hook with the final payload.
func (d *Dispatcher) Dispatch(filterKey string, msg alert.Message) {
	msg.Image = d.normalizeRef(msg.Image)
	msg.Audio = d.normalizeRef(msg.Audio)

	payload, err := json.Marshal(msg)
	if err != nil {
		d.logger.WithError(err).Error("Failed to marshal alert payload")
		return
	}

	start := time.Now()
	delivered, failed := d.reg.Broadcast(filterKey, payload)

	if d.metrics != nil {
		d.metrics.AlertsDispatched.WithLabelValues(filterKey).Inc()
		d.metrics.BroadcastDuration.WithLabelValues(filterKey).Observe(time.Since(start).Seconds())
		if failed > 0 {
			d.metrics.DeliveryFailures.WithLabelValues(filterKey).Add(float64(failed))
		}
	}

	d.logger.WithFields(logging.Fields{
		"filter_key": filterKey,
		"delivered":  delivered,
		"text":       msg.Text,
	}).Debug("Alert dispatched")

	if d.hook != nil {
		d.hook(filterKey, msg)
	}
}

// normalizeRef resolves an attachment name to its key and rewrites it to
// the serving route. Absolute URLs pass through unchanged.
func (d *Dispatcher) normalizeRef(ref *string) *string {
	if ref == nil || *ref == "" {
		return ref
	}
	resolved := d.store.Resolve(*ref)
	if u, err := url.Parse(resolved); err == nil && u.Scheme != "" {
		return &resolved
	}
	normalized := UploadRoute + resolved
	return &normalized
}
