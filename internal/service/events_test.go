package service

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Raphahf6/raio-x-360-back/internal/biz/domain"
	"github.com/Raphahf6/raio-x-360-back/internal/observability"
)

func TestEventHub_TenantFilter(t *testing.T) {
	hub := NewEventHub(nil, nil)
	all := hub.Subscribe("")
	t1 := hub.Subscribe("t1")
	defer all.Close()
	defer t1.Close()

	hub.Publish(domain.ObserverEvent{Type: domain.ObserverPairingCode, TenantID: "t1", PairingCode: "qr"})
	hub.Publish(domain.ObserverEvent{Type: domain.ObserverStatus, TenantID: "t2", State: domain.StateConnected})

	assert.Len(t, all.C, 2)
	require.Len(t, t1.C, 1)
	evt := <-t1.C
	assert.Equal(t, "qr", evt.PairingCode)
}

func TestEventHub_DropsWhenFull(t *testing.T) {
	hub := NewEventHub(nil, nil)
	sub := hub.Subscribe("t1")
	defer sub.Close()

	for i := 0; i < subscriberBuffer+10; i++ {
		hub.Publish(domain.ObserverEvent{Type: domain.ObserverMessage, TenantID: "t1"})
	}

	assert.Len(t, sub.C, subscriberBuffer)
	assert.Equal(t, int64(10), sub.dropped.Load())
}

func TestEventHub_CloseUnsubscribes(t *testing.T) {
	hub := NewEventHub(nil, nil)
	sub := hub.Subscribe("")
	require.Equal(t, 1, hub.Subscribers())

	sub.Close()
	sub.Close()
	assert.Equal(t, 0, hub.Subscribers())

	_, ok := <-sub.C
	assert.False(t, ok)

	// Publishing with no subscribers is fine
	hub.Publish(domain.ObserverEvent{Type: domain.ObserverMessage, TenantID: "t1"})
}

func TestEventHub_CountsEvents(t *testing.T) {
	metrics := observability.NewMetrics("test")
	hub := NewEventHub(metrics, nil)

	hub.Publish(domain.ObserverEvent{Type: domain.ObserverStatus, TenantID: "t1", State: domain.StateConnected})
	hub.Publish(domain.ObserverEvent{Type: domain.ObserverOrder, TenantID: "t1"})

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SessionEvents.WithLabelValues("status_CONNECTED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SessionEvents.WithLabelValues("order")))
}
