package registry

import (
	"io"
	"sync"

	"overlaycast/internal/logging"
)

// Subscriber is one live connection. Send must not block indefinitely; a
// returned error marks the subscriber as disconnected.
type Subscriber interface {
	Send(message []byte) error
}

// Registry groups live subscribers into filter-key buckets and fans
// messages out to one bucket at a time. All mutations are serialized
// behind a single lock; broadcasts iterate over a snapshot so delivery
// failures can prune the live bucket safely.
type Registry struct {
	mu      sync.RWMutex
	buckets map[string][]Subscriber
	logger  logging.Logger
}

// New creates an empty registry
func New(logger logging.Logger) *Registry {
	return &Registry{
		buckets: make(map[string][]Subscriber),
		logger:  logger,
	}
}

// Register appends sub to the bucket for filterKey, creating it if absent
func (r *Registry) Register(filterKey string, sub Subscriber) {
	r.mu.Lock()
	r.buckets[filterKey] = append(r.buckets[filterKey], sub)
	count := len(r.buckets[filterKey])
	r.mu.Unlock()

	r.logger.WithFields(logging.Fields{
		"filter_key":  filterKey,
		"subscribers": count,
	}).Info("Subscriber registered")
}

// Unregister removes sub from whichever bucket holds it and prunes the
// bucket if it becomes empty. Unknown subscribers are a no-op, so a close
// racing a failed-send removal stays safe.
func (r *Registry) Unregister(sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for filterKey, bucket := range r.buckets {
		for i, existing := range bucket {
			if existing != sub {
				continue
			}
			r.buckets[filterKey] = append(bucket[:i], bucket[i+1:]...)
			if len(r.buckets[filterKey]) == 0 {
				delete(r.buckets, filterKey)
			}
			r.logger.WithFields(logging.Fields{
				"filter_key":  filterKey,
				"subscribers": len(r.buckets[filterKey]),
			}).Info("Subscriber unregistered")
			return
		}
	}
}

// Broadcast sends message to every subscriber registered under filterKey
// and returns the delivery and failure counts. Failed subscribers are
// removed from the registry and closed; a failure never aborts delivery to
// the rest and is not surfaced to the caller. An unknown filter key
// delivers to nobody.
func (r *Registry) Broadcast(filterKey string, message []byte) (delivered, failed int) {
	r.mu.RLock()
	bucket := r.buckets[filterKey]
	snapshot := make([]Subscriber, len(bucket))
	copy(snapshot, bucket)
	r.mu.RUnlock()

	var dropped []Subscriber
	for _, sub := range snapshot {
		if err := sub.Send(message); err != nil {
			r.logger.WithError(err).WithField("filter_key", filterKey).
				Warn("Dropping subscriber after failed send")
			dropped = append(dropped, sub)
			continue
		}
		delivered++
	}

	for _, sub := range dropped {
		r.Unregister(sub)
		if closer, ok := sub.(io.Closer); ok {
			_ = closer.Close()
		}
	}
	return delivered, len(dropped)
}

// FilterKeys returns the filter keys that currently have subscribers
func (r *Registry) FilterKeys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.buckets))
	for key := range r.buckets {
		keys = append(keys, key)
	}
	return keys
}

// Len returns the number of subscribers registered under filterKey
func (r *Registry) Len(filterKey string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.buckets[filterKey])
}

// Stats returns subscriber counts per filter key
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := make(map[string]int, len(r.buckets))
	for key, bucket := range r.buckets {
		stats[key] = len(bucket)
	}
	return stats
}
