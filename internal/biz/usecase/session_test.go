package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Raphahf6/raio-x-360-back/internal/biz/domain"
)

type sessionFixture struct {
	manager   *SessionManager
	transport *mockTransport
	creds     *mockCredentialRepo
	tenants   *mockTenantRepo
	observer  *mockObserver
}

func newSessionFixture(maxAttempts int) *sessionFixture {
	f := &sessionFixture{
		transport: newMockTransport(),
		creds:     newMockCredentialRepo(),
		tenants:   newMockTenantRepo(),
		observer:  &mockObserver{},
	}
	cfg := domain.SessionConfig{
		InitialBackoff: 5 * time.Millisecond,
		MaxBackoff:     20 * time.Millisecond,
		MaxAttempts:    maxAttempts,
	}
	f.manager = NewSessionManager(NewSessionRegistry(), f.transport, f.creds, f.tenants, f.observer, cfg, nil)
	return f
}

func (f *sessionFixture) nextConn(t *testing.T) *mockConn {
	t.Helper()
	select {
	case c := <-f.transport.conns:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("Expected a connection attempt")
		return nil
	}
}

func waitState(t *testing.T, m *SessionManager, tenantID string, state domain.ConnectionState) {
	t.Helper()
	require.Eventually(t, func() bool {
		s, err := m.Status(tenantID)
		return err == nil && s.State == state
	}, 2*time.Second, 5*time.Millisecond, "expected state %s", state)
}

func TestSessionManager_StartIsIdempotent(t *testing.T) {
	f := newSessionFixture(3)
	defer f.manager.StopAll()

	state, err := f.manager.Start(context.Background(), "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateConnecting, state)

	conn := f.nextConn(t)
	conn.emit(domain.TransportEvent{Type: domain.TransportConnected})
	waitState(t, f.manager, "tenant-1", domain.StateConnected)

	state, err = f.manager.Start(context.Background(), "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateConnected, state)
	assert.Equal(t, 1, f.transport.attemptCount())
	assert.Len(t, f.manager.Sessions(), 1)
}

func TestSessionManager_RejectsInvalidTenant(t *testing.T) {
	f := newSessionFixture(3)

	_, err := f.manager.Start(context.Background(), "../etc")
	assert.ErrorIs(t, err, domain.ErrInvalidTenant)
}

func TestSessionManager_ConnectedPersistsAndPublishes(t *testing.T) {
	f := newSessionFixture(3)
	defer f.manager.StopAll()

	_, err := f.manager.Start(context.Background(), "tenant-1")
	require.NoError(t, err)

	conn := f.nextConn(t)
	conn.emit(domain.TransportEvent{Type: domain.TransportPairingCode, PairingCode: "QR-123"})
	conn.emit(domain.TransportEvent{Type: domain.TransportCredentials, Credentials: json.RawMessage(`{"me":"1"}`)})
	conn.emit(domain.TransportEvent{Type: domain.TransportConnected})
	waitState(t, f.manager, "tenant-1", domain.StateConnected)

	assert.Equal(t, domain.StateConnected, f.tenants.status("tenant-1"))

	pairing := f.observer.ofType(domain.ObserverPairingCode)
	require.Len(t, pairing, 1)
	assert.Equal(t, "QR-123", pairing[0].PairingCode)

	cred, _ := f.creds.Load(context.Background(), "tenant-1")
	require.NotNil(t, cred)
	assert.JSONEq(t, `{"me":"1"}`, string(cred.Data))

	sender := f.manager.Registry().Sender("tenant-1")
	require.NoError(t, sender.SendText(context.Background(), "5511@s.whatsapp.net", "hello"))
	conn.mu.Lock()
	assert.Equal(t, []string{"hello"}, conn.sent)
	conn.mu.Unlock()
}

func TestSessionManager_SendFailsFastWhenNotConnected(t *testing.T) {
	f := newSessionFixture(3)
	defer f.manager.StopAll()

	sender := f.manager.Registry().Sender("tenant-1")
	err := sender.SendText(context.Background(), "x", "y")
	assert.ErrorIs(t, err, domain.ErrNotConnected)

	_, err = f.manager.Start(context.Background(), "tenant-1")
	require.NoError(t, err)
	f.nextConn(t)

	err = sender.SendText(context.Background(), "x", "y")
	assert.ErrorIs(t, err, domain.ErrNotConnected)
}

func TestSessionManager_ReconnectsWithSameCredential(t *testing.T) {
	f := newSessionFixture(5)
	defer f.manager.StopAll()

	cred := &domain.Credential{TenantID: "tenant-1", Data: json.RawMessage(`{"k":"v"}`)}
	require.NoError(t, f.creds.Save(context.Background(), cred))

	_, err := f.manager.Start(context.Background(), "tenant-1")
	require.NoError(t, err)

	first := f.nextConn(t)
	first.emit(domain.TransportEvent{Type: domain.TransportConnected})
	waitState(t, f.manager, "tenant-1", domain.StateConnected)

	first.emit(domain.TransportEvent{Type: domain.TransportClosed, Reason: domain.DisconnectConnectionLost})

	second := f.nextConn(t)
	err = f.manager.Registry().Sender("tenant-1").SendText(context.Background(), "x", "y")
	assert.ErrorIs(t, err, domain.ErrNotConnected, "sends during reconnect must not use the stale handle")

	second.emit(domain.TransportEvent{Type: domain.TransportConnected})
	waitState(t, f.manager, "tenant-1", domain.StateConnected)

	assert.Equal(t, 0, f.creds.purgeCount())
	assert.JSONEq(t, `{"k":"v"}`, string(f.transport.credAt(1).Data))

	first.mu.Lock()
	assert.True(t, first.closed)
	first.mu.Unlock()
}

func TestSessionManager_LoggedOutPurgesAndRepairs(t *testing.T) {
	f := newSessionFixture(5)
	defer f.manager.StopAll()

	require.NoError(t, f.creds.Save(context.Background(), &domain.Credential{TenantID: "tenant-1", Data: json.RawMessage(`{"k":"v"}`)}))

	_, err := f.manager.Start(context.Background(), "tenant-1")
	require.NoError(t, err)

	first := f.nextConn(t)
	first.emit(domain.TransportEvent{Type: domain.TransportConnected})
	waitState(t, f.manager, "tenant-1", domain.StateConnected)

	first.emit(domain.TransportEvent{Type: domain.TransportClosed, Reason: domain.DisconnectLoggedOut})

	second := f.nextConn(t)
	assert.Equal(t, 1, f.creds.purgeCount())
	assert.Nil(t, f.transport.credAt(1), "fresh pairing must start without a credential")

	second.emit(domain.TransportEvent{Type: domain.TransportPairingCode, PairingCode: "NEW"})
	require.Eventually(t, func() bool {
		return len(f.observer.ofType(domain.ObserverPairingCode)) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestSessionManager_GivesUpAfterMaxAttempts(t *testing.T) {
	f := newSessionFixture(3)
	f.transport.connectErr = errors.New("dial refused")

	_, err := f.manager.Start(context.Background(), "tenant-1")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		s, err := f.manager.Status("tenant-1")
		return err == nil && !s.Running
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, 3, f.transport.attemptCount())
	s, _ := f.manager.Status("tenant-1")
	assert.Equal(t, domain.StateDisconnected, s.State)
	assert.Equal(t, domain.StateDisconnected, f.tenants.status("tenant-1"))

	// A later Start resumes supervision
	f.transport.mu.Lock()
	f.transport.connectErr = nil
	f.transport.mu.Unlock()
	_, err = f.manager.Start(context.Background(), "tenant-1")
	require.NoError(t, err)
	f.nextConn(t).emit(domain.TransportEvent{Type: domain.TransportConnected})
	waitState(t, f.manager, "tenant-1", domain.StateConnected)
	f.manager.StopAll()
}

func TestSessionManager_StopKeepsPersistedStatus(t *testing.T) {
	f := newSessionFixture(3)

	_, err := f.manager.Start(context.Background(), "tenant-1")
	require.NoError(t, err)
	f.nextConn(t).emit(domain.TransportEvent{Type: domain.TransportConnected})
	waitState(t, f.manager, "tenant-1", domain.StateConnected)

	require.NoError(t, f.manager.Stop("tenant-1"))

	_, err = f.manager.Status("tenant-1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	assert.Equal(t, domain.StateConnected, f.tenants.status("tenant-1"))
	assert.Equal(t, 0, f.creds.purgeCount())
}

func TestSessionManager_Logout(t *testing.T) {
	f := newSessionFixture(3)
	defer f.manager.StopAll()

	require.NoError(t, f.creds.Save(context.Background(), &domain.Credential{TenantID: "tenant-1", Data: json.RawMessage(`{}`)}))
	_, err := f.manager.Start(context.Background(), "tenant-1")
	require.NoError(t, err)
	f.nextConn(t).emit(domain.TransportEvent{Type: domain.TransportConnected})
	waitState(t, f.manager, "tenant-1", domain.StateConnected)

	require.NoError(t, f.manager.Logout(context.Background(), "tenant-1"))

	f.nextConn(t)
	assert.Equal(t, 1, f.creds.purgeCount())
	assert.Nil(t, f.transport.credAt(1))
}

func TestSessionManager_Restore(t *testing.T) {
	f := newSessionFixture(3)
	defer f.manager.StopAll()

	ctx := context.Background()
	require.NoError(t, f.tenants.SetStatus(ctx, "tenant-a", domain.StateConnected))
	require.NoError(t, f.tenants.SetStatus(ctx, "tenant-b", domain.StateDisconnected))
	require.NoError(t, f.tenants.SetStatus(ctx, "tenant-c", domain.StateConnected))

	n, err := f.manager.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	f.nextConn(t)
	f.nextConn(t)
	_, err = f.manager.Status("tenant-b")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestSessionManager_DeliversInboundWithTenant(t *testing.T) {
	f := newSessionFixture(3)
	defer f.manager.StopAll()

	got := make(chan *domain.InboundEvent, 1)
	f.manager.SetInboundHandler(func(ctx context.Context, evt *domain.InboundEvent) {
		got <- evt
	})

	_, err := f.manager.Start(context.Background(), "tenant-1")
	require.NoError(t, err)
	conn := f.nextConn(t)
	conn.emit(domain.TransportEvent{Type: domain.TransportConnected})
	conn.emit(domain.TransportEvent{
		Type:    domain.TransportMessage,
		Message: &domain.InboundEvent{Address: "5511@s.whatsapp.net", Content: domain.RawContent{Conversation: "oi"}},
	})

	select {
	case evt := <-got:
		assert.Equal(t, "tenant-1", evt.TenantID)
		assert.Equal(t, "oi", evt.Content.ExtractText())
	case <-time.After(2 * time.Second):
		t.Fatal("Expected inbound event")
	}
}

func TestSessionManager_StartDuringStopKeepsSessionRegistered(t *testing.T) {
	f := newSessionFixture(3)
	defer f.manager.StopAll()

	_, err := f.manager.Start(context.Background(), "tenant-1")
	require.NoError(t, err)
	f.nextConn(t)

	s, ok := f.manager.Registry().Get("tenant-1")
	require.True(t, ok)

	// Same steps Stop takes, with a Start landing between cancel and remove
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	cancel()
	<-done

	_, err = f.manager.Start(context.Background(), "tenant-1")
	require.NoError(t, err)
	f.nextConn(t)

	assert.False(t, f.manager.Registry().removeIfStopped("tenant-1", s), "running session must not be removed")
	cur, ok := f.manager.Registry().Get("tenant-1")
	require.True(t, ok)
	assert.Same(t, s, cur)
	assert.True(t, cur.Snapshot().Running)

	require.NoError(t, f.manager.Stop("tenant-1"))
	_, ok = f.manager.Registry().Get("tenant-1")
	assert.False(t, ok)
}

func TestSessionManager_StartAfterStopUsesFreshEntry(t *testing.T) {
	f := newSessionFixture(3)
	defer f.manager.StopAll()

	_, err := f.manager.Start(context.Background(), "tenant-1")
	require.NoError(t, err)
	f.nextConn(t)
	old, _ := f.manager.Registry().Get("tenant-1")

	require.NoError(t, f.manager.Stop("tenant-1"))

	_, err = f.manager.Start(context.Background(), "tenant-1")
	require.NoError(t, err)
	f.nextConn(t)

	cur, ok := f.manager.Registry().Get("tenant-1")
	require.True(t, ok)
	assert.NotSame(t, old, cur)
	assert.True(t, cur.Snapshot().Running)
	assert.False(t, old.Snapshot().Running)
}
