package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Raphahf6/raio-x-360-back/internal/biz/domain"
	"github.com/Raphahf6/raio-x-360-back/internal/biz/repo"
)

// InboundHandler receives message events from a tenant connection.
// It is called from the session's reader goroutine, one event at a time.
type InboundHandler func(ctx context.Context, evt *domain.InboundEvent)

// SessionManager keeps one supervised transport session alive per tenant
type SessionManager struct {
	registry  *SessionRegistry
	transport repo.Transport
	creds     repo.CredentialRepo
	tenants   repo.TenantRepo
	observer  repo.Observer
	config    domain.SessionConfig
	logger    *slog.Logger

	inbound InboundHandler
}

// NewSessionManager creates a new session manager
func NewSessionManager(
	registry *SessionRegistry,
	transport repo.Transport,
	creds repo.CredentialRepo,
	tenants repo.TenantRepo,
	observer repo.Observer,
	config domain.SessionConfig,
	logger *slog.Logger,
) *SessionManager {
	if observer == nil {
		observer = nopObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionManager{
		registry:  registry,
		transport: transport,
		creds:     creds,
		tenants:   tenants,
		observer:  observer,
		config:    config,
		logger:    logger.With("component", "session"),
	}
}

// SetInboundHandler sets the handler for customer and self-sent messages.
// Must be called before any session starts.
func (m *SessionManager) SetInboundHandler(h InboundHandler) {
	m.inbound = h
}

// Registry returns the session registry
func (m *SessionManager) Registry() *SessionRegistry {
	return m.registry
}

// Start ensures a supervised session exists for the tenant.
// Calling Start for a tenant that is already running returns its current state.
func (m *SessionManager) Start(ctx context.Context, tenantID string) (domain.ConnectionState, error) {
	if err := domain.ValidateTenantID(tenantID); err != nil {
		return "", err
	}

	var s *TenantSession
	for {
		s, _ = m.registry.getOrCreate(tenantID)
		s.mu.Lock()
		if !s.removed {
			break
		}
		// Lost a race with Stop; the next getOrCreate inserts a fresh entry
		s.mu.Unlock()
	}

	if s.running {
		state := s.state
		s.mu.Unlock()
		return state, nil
	}
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	s.running = true
	s.cancel = cancel
	s.done = done
	s.failures = 0
	s.mu.Unlock()

	m.logger.Info("starting session", "tenant_id", tenantID, "transport", m.transport.Name())
	go m.supervise(loopCtx, s, done)

	return domain.StateConnecting, nil
}

// Stop tears down the tenant's session without purging credentials
func (m *SessionManager) Stop(tenantID string) error {
	s, ok := m.registry.Get(tenantID)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrSessionNotFound, tenantID)
	}

	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	if !m.registry.removeIfStopped(tenantID, s) {
		m.logger.Info("session restarted while stopping", "tenant_id", tenantID)
		return nil
	}
	m.logger.Info("session stopped", "tenant_id", tenantID)
	return nil
}

// StopAll stops every session concurrently
func (m *SessionManager) StopAll() {
	var wg sync.WaitGroup
	for _, s := range m.registry.List() {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_ = m.Stop(id)
		}(s.tenantID)
	}
	wg.Wait()
}

// Logout discards the tenant's credential and starts a fresh pairing flow
func (m *SessionManager) Logout(ctx context.Context, tenantID string) error {
	if err := domain.ValidateTenantID(tenantID); err != nil {
		return err
	}
	if err := m.Stop(tenantID); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		return err
	}
	if err := m.creds.Purge(ctx, tenantID); err != nil {
		return fmt.Errorf("purge credentials: %w", err)
	}
	if err := m.tenants.SetStatus(ctx, tenantID, domain.StateDisconnected); err != nil {
		m.logger.Warn("failed to persist tenant status", "tenant_id", tenantID, "error", err)
	}

	_, err := m.Start(ctx, tenantID)
	return err
}

// Status returns a snapshot of the tenant's session
func (m *SessionManager) Status(tenantID string) (domain.Session, error) {
	s, ok := m.registry.Get(tenantID)
	if !ok {
		return domain.Session{TenantID: tenantID, State: domain.StateDisconnected},
			fmt.Errorf("%w: %s", domain.ErrSessionNotFound, tenantID)
	}
	return s.Snapshot(), nil
}

// Sessions returns snapshots of all sessions
func (m *SessionManager) Sessions() []domain.Session {
	list := m.registry.List()
	result := make([]domain.Session, 0, len(list))
	for _, s := range list {
		result = append(result, s.Snapshot())
	}
	return result
}

// Restore starts every tenant persisted as CONNECTED
func (m *SessionManager) Restore(ctx context.Context) (int, error) {
	ids, err := m.tenants.ListByStatus(ctx, domain.StateConnected)
	if err != nil {
		return 0, fmt.Errorf("list connected tenants: %w", err)
	}

	restored := 0
	for _, id := range ids {
		if _, err := m.Start(ctx, id); err != nil {
			m.logger.Warn("failed to restore session", "tenant_id", id, "error", err)
			continue
		}
		restored++
	}
	if restored > 0 {
		m.logger.Info("sessions restored", "count", restored)
	}
	return restored, nil
}

// supervise runs connect/read cycles until cancelled or the attempt cap is hit
func (m *SessionManager) supervise(ctx context.Context, s *TenantSession, done chan struct{}) {
	defer close(done)
	defer s.markStopped()

	log := m.logger.With("tenant_id", s.tenantID)
	var backoff time.Duration

	for {
		if ctx.Err() != nil {
			m.setState(s, domain.StateDisconnected, false)
			return
		}
		m.setState(s, domain.StateConnecting, false)

		reason, connected, err := m.runOnce(ctx, s)
		s.conn.Store(nil)

		if ctx.Err() != nil {
			// Stopped by the operator or shutdown; the persisted status is kept
			// so the session is restored on next boot.
			m.setState(s, domain.StateDisconnected, false)
			return
		}
		m.setState(s, domain.StateDisconnected, true)

		if connected {
			backoff = 0
			s.resetFailures()
		}

		if errors.Is(err, domain.ErrAuthInvalidated) || reason == domain.DisconnectLoggedOut {
			log.Warn("session logged out, purging credentials")
			if perr := m.creds.Purge(ctx, s.tenantID); perr != nil {
				log.Error("failed to purge credentials", "error", perr)
			}
			if connected {
				continue
			}
		}

		failures := s.incFailures()
		if err != nil {
			log.Warn("connect failed", "error", err, "attempt", failures)
		} else {
			log.Warn("session disconnected", "reason", reason, "attempt", failures)
		}

		if m.config.Exhausted(failures) {
			log.Error("reconnect attempts exhausted, leaving session disconnected", "attempts", failures)
			return
		}

		backoff = m.config.NextBackoff(backoff)
		log.Info("reconnecting", "backoff", backoff)
		select {
		case <-ctx.Done():
			m.setState(s, domain.StateDisconnected, false)
			return
		case <-time.After(backoff):
		}
	}
}

// runOnce opens one connection and pumps its events until it closes
func (m *SessionManager) runOnce(ctx context.Context, s *TenantSession) (reason domain.DisconnectReason, connected bool, err error) {
	cred, err := m.creds.Load(ctx, s.tenantID)
	if err != nil {
		return "", false, fmt.Errorf("load credentials: %w", err)
	}

	conn, err := m.transport.Connect(ctx, s.tenantID, cred)
	if err != nil {
		return "", false, err
	}
	defer conn.Close()

	events := conn.Events()
	for {
		select {
		case <-ctx.Done():
			return domain.DisconnectClosed, connected, nil

		case evt, ok := <-events:
			if !ok {
				return domain.DisconnectConnectionLost, connected, nil
			}

			switch evt.Type {
			case domain.TransportPairingCode:
				m.logger.Info("pairing code available", "tenant_id", s.tenantID)
				m.observer.Publish(domain.ObserverEvent{
					Type:        domain.ObserverPairingCode,
					TenantID:    s.tenantID,
					PairingCode: evt.PairingCode,
					Timestamp:   time.Now(),
				})

			case domain.TransportCredentials:
				err := m.creds.Save(ctx, &domain.Credential{
					TenantID:  s.tenantID,
					Data:      evt.Credentials,
					UpdatedAt: time.Now(),
				})
				if err != nil {
					m.logger.Error("failed to save credentials", "tenant_id", s.tenantID, "error", err)
				}

			case domain.TransportConnected:
				s.conn.Store(&liveConn{Conn: conn})
				connected = true
				s.resetFailures()
				m.setState(s, domain.StateConnected, true)

			case domain.TransportClosed:
				s.conn.Store(nil)
				if evt.Err != nil {
					m.logger.Debug("connection closed with error", "tenant_id", s.tenantID, "error", evt.Err)
				}
				if evt.Reason == "" {
					return domain.DisconnectConnectionLost, connected, nil
				}
				return evt.Reason, connected, nil

			case domain.TransportMessage:
				if m.inbound != nil && evt.Message != nil {
					evt.Message.TenantID = s.tenantID
					m.inbound(ctx, evt.Message)
				}
			}
		}
	}
}

// setState records a state change, optionally persisting it, and notifies observers
func (m *SessionManager) setState(s *TenantSession, state domain.ConnectionState, persist bool) {
	if !s.setState(state) {
		return
	}

	if persist && state != domain.StateConnecting {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := m.tenants.SetStatus(ctx, s.tenantID, state); err != nil {
			m.logger.Warn("failed to persist tenant status", "tenant_id", s.tenantID, "error", err)
		}
		cancel()
	}

	m.logger.Info("session status changed", "tenant_id", s.tenantID, "state", state)
	m.observer.Publish(domain.ObserverEvent{
		Type:      domain.ObserverStatus,
		TenantID:  s.tenantID,
		State:     state,
		Timestamp: time.Now(),
	})
}

type nopObserver struct{}

func (nopObserver) Publish(domain.ObserverEvent) {}
