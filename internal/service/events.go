package service

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/Raphahf6/raio-x-360-back/internal/biz/domain"
	"github.com/Raphahf6/raio-x-360-back/internal/observability"
)

const subscriberBuffer = 32

// EventHub fans observer events out to subscribers such as dashboard sockets.
// A slow subscriber loses events rather than blocking the publisher.
type EventHub struct {
	mu      sync.RWMutex
	subs    map[*Subscription]struct{}
	metrics *observability.Metrics
	logger  *slog.Logger
}

// Subscription receives events for one tenant, or all tenants when TenantID is empty
type Subscription struct {
	TenantID string
	C        chan domain.ObserverEvent

	hub     *EventHub
	dropped atomic.Int64
	once    sync.Once
}

// NewEventHub creates an event hub. metrics may be nil.
func NewEventHub(metrics *observability.Metrics, logger *slog.Logger) *EventHub {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventHub{
		subs:    make(map[*Subscription]struct{}),
		metrics: metrics,
		logger:  logger.With("component", "events"),
	}
}

// Subscribe registers a listener
func (h *EventHub) Subscribe(tenantID string) *Subscription {
	sub := &Subscription{
		TenantID: tenantID,
		C:        make(chan domain.ObserverEvent, subscriberBuffer),
		hub:      h,
	}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

// Close unregisters the subscription and closes its channel
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs, s)
		s.hub.mu.Unlock()
		close(s.C)
	})
}

// Publish implements repo.Observer
func (h *EventHub) Publish(event domain.ObserverEvent) {
	if h.metrics != nil {
		label := string(event.Type)
		if event.Type == domain.ObserverStatus {
			label = "status_" + string(event.State)
		}
		h.metrics.SessionEvents.WithLabelValues(label).Inc()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs {
		if sub.TenantID != "" && sub.TenantID != event.TenantID {
			continue
		}
		select {
		case sub.C <- event:
		default:
			if n := sub.dropped.Add(1); n == 1 || n%100 == 0 {
				h.logger.Warn("subscriber is behind, dropping events", "tenant_id", sub.TenantID, "dropped", n)
			}
		}
	}
}

// Subscribers returns the number of live subscriptions
func (h *EventHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
