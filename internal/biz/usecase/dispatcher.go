package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/Raphahf6/raio-x-360-back/internal/biz/domain"
	"github.com/Raphahf6/raio-x-360-back/internal/biz/repo"
)

// DispatchResult describes what happened to an inbound event
type DispatchResult string

const (
	DispatchDroppedGroup     DispatchResult = "dropped_group"
	DispatchDroppedBroadcast DispatchResult = "dropped_broadcast"
	DispatchDroppedEmpty     DispatchResult = "dropped_empty"
	DispatchAuditedSelf      DispatchResult = "audited_self"
	DispatchForwarded        DispatchResult = "forwarded"
)

// TextSink accepts customer text fragments (the debounce aggregator)
type TextSink interface {
	Add(text domain.InboundText)
}

// Dispatcher filters inbound events and routes them to the aggregator
type Dispatcher struct {
	audit    repo.AuditRepo
	observer repo.Observer
	sink     TextSink
	logger   *slog.Logger
	now      func() time.Time
}

// NewDispatcher creates a new inbound dispatcher
func NewDispatcher(audit repo.AuditRepo, observer repo.Observer, sink TextSink, logger *slog.Logger) *Dispatcher {
	if observer == nil {
		observer = nopObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		audit:    audit,
		observer: observer,
		sink:     sink,
		logger:   logger.With("component", "dispatcher"),
		now:      time.Now,
	}
}

// Dispatch classifies one event. Self-sent messages are audited as OUT
// and never reach the dialogue pipeline.
func (d *Dispatcher) Dispatch(ctx context.Context, evt *domain.InboundEvent) DispatchResult {
	if domain.IsBroadcastAddress(evt.Address) {
		return DispatchDroppedBroadcast
	}
	if evt.IsGroup || domain.IsGroupAddress(evt.Address) {
		return DispatchDroppedGroup
	}

	text := evt.Content.ExtractText()
	if text == "" {
		return DispatchDroppedEmpty
	}

	ts := evt.Timestamp
	if ts.IsZero() {
		ts = d.now()
	}
	key := domain.CustomerKey{
		TenantID:     evt.TenantID,
		CustomerHash: domain.HashAddress(evt.Address),
	}

	if evt.FromSelf {
		turn := domain.NewTurn(key.TenantID, key.CustomerHash, domain.DirectionOut, text, ts)
		if err := d.audit.Append(ctx, turn); err != nil {
			d.logger.Error("failed to audit self-sent message", "tenant_id", key.TenantID, "error", err)
		}
		d.observer.Publish(domain.ObserverEvent{
			Type:     domain.ObserverMessage,
			TenantID: key.TenantID,
			Message: &domain.MessageEvent{
				CustomerHash: key.CustomerHash,
				Direction:    domain.DirectionOut,
				Content:      text,
				Timestamp:    ts,
			},
			Timestamp: d.now(),
		})
		return DispatchAuditedSelf
	}

	d.sink.Add(domain.InboundText{
		Key:        key,
		Address:    evt.Address,
		Text:       text,
		ReceivedAt: ts,
	})
	return DispatchForwarded
}
