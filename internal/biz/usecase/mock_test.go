package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Raphahf6/raio-x-360-back/internal/biz/domain"
	"github.com/Raphahf6/raio-x-360-back/internal/biz/repo"
)

// Mock implementations

type mockCustomerRepo struct {
	mu        sync.Mutex
	customers map[domain.CustomerKey]*domain.Customer
	err       error
}

func newMockCustomerRepo() *mockCustomerRepo {
	return &mockCustomerRepo{customers: make(map[domain.CustomerKey]*domain.Customer)}
}

func (m *mockCustomerRepo) UpsertContact(ctx context.Context, tenantID, hash string, now time.Time) (*domain.Customer, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, false, m.err
	}
	key := domain.CustomerKey{TenantID: tenantID, CustomerHash: hash}
	c, ok := m.customers[key]
	if !ok {
		m.customers[key] = &domain.Customer{TenantID: tenantID, Hash: hash, Status: domain.StatusLead, LastContactAt: now, CreatedAt: now}
		return nil, true, nil
	}
	prev := *c
	c.LastContactAt = now
	return &prev, false, nil
}

func (m *mockCustomerRepo) UpdateStatus(ctx context.Context, tenantID, hash string, status domain.CustomerStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := domain.CustomerKey{TenantID: tenantID, CustomerHash: hash}
	if c, ok := m.customers[key]; ok {
		c.Status = status
	}
	return nil
}

func (m *mockCustomerRepo) Get(ctx context.Context, tenantID, hash string) (*domain.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.customers[domain.CustomerKey{TenantID: tenantID, CustomerHash: hash}]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (m *mockCustomerRepo) seed(c domain.Customer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.customers[domain.CustomerKey{TenantID: c.TenantID, CustomerHash: c.Hash}] = &c
}

type mockAuditRepo struct {
	mu    sync.Mutex
	turns []*domain.Turn
}

func (m *mockAuditRepo) Append(ctx context.Context, turn *domain.Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, turn)
	return nil
}

func (m *mockAuditRepo) Recent(ctx context.Context, tenantID, hash string, since time.Time, limit int) ([]*domain.Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Turn
	for _, t := range m.turns {
		if t.TenantID == tenantID && t.CustomerHash == hash && !t.Timestamp.Before(since) {
			out = append(out, t)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *mockAuditRepo) all() []*domain.Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.Turn(nil), m.turns...)
}

type mockCatalogRepo struct {
	items []domain.CatalogItem
	err   error
}

func (m *mockCatalogRepo) ListAvailable(ctx context.Context, tenantID string) ([]domain.CatalogItem, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []domain.CatalogItem
	for _, item := range m.items {
		if item.Available {
			out = append(out, item)
		}
	}
	return out, nil
}

func (m *mockCatalogRepo) Replace(ctx context.Context, tenantID string, items []domain.CatalogItem) error {
	m.items = items
	return nil
}

type mockResponder struct {
	reply string
	err   error
	block bool // Wait for ctx cancellation
	calls int32
}

func (m *mockResponder) Respond(ctx context.Context, tenantID, hash string) (string, error) {
	atomic.AddInt32(&m.calls, 1)
	if m.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return m.reply, m.err
}

func (m *mockResponder) callCount() int {
	return int(atomic.LoadInt32(&m.calls))
}

type sentMessage struct {
	To     string
	Text   string
	Labels []string
	Kind   domain.MessageKind
}

type mockSender struct {
	mu              sync.Mutex
	sent            []sentMessage
	typing          []bool
	failInteractive bool
	err             error
}

func (m *mockSender) Sender(tenantID string) Sender { return m }

func (m *mockSender) SendText(ctx context.Context, to, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMessage{To: to, Text: text, Kind: domain.KindText})
	return nil
}

func (m *mockSender) SendInteractive(ctx context.Context, to string, msg domain.OutboundMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.failInteractive {
		return errors.New("interactive not supported")
	}
	m.sent = append(m.sent, sentMessage{To: to, Text: msg.Body, Labels: msg.Labels, Kind: domain.KindInteractive})
	return nil
}

func (m *mockSender) SetTyping(ctx context.Context, to string, typing bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.typing = append(m.typing, typing)
	return nil
}

func (m *mockSender) messages() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMessage(nil), m.sent...)
}

type mockObserver struct {
	mu     sync.Mutex
	events []domain.ObserverEvent
}

func (m *mockObserver) Publish(evt domain.ObserverEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
}

func (m *mockObserver) ofType(t domain.ObserverEventType) []domain.ObserverEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ObserverEvent
	for _, e := range m.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type mockCredentialRepo struct {
	mu     sync.Mutex
	creds  map[string]*domain.Credential
	purged []string
}

func newMockCredentialRepo() *mockCredentialRepo {
	return &mockCredentialRepo{creds: make(map[string]*domain.Credential)}
}

func (m *mockCredentialRepo) Load(ctx context.Context, tenantID string) (*domain.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creds[tenantID], nil
}

func (m *mockCredentialRepo) Save(ctx context.Context, cred *domain.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds[cred.TenantID] = cred
	return nil
}

func (m *mockCredentialRepo) Purge(ctx context.Context, tenantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.creds, tenantID)
	m.purged = append(m.purged, tenantID)
	return nil
}

func (m *mockCredentialRepo) purgeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.purged)
}

type mockTenantRepo struct {
	mu       sync.Mutex
	statuses map[string]domain.ConnectionState
}

func newMockTenantRepo() *mockTenantRepo {
	return &mockTenantRepo{statuses: make(map[string]domain.ConnectionState)}
}

func (m *mockTenantRepo) SetStatus(ctx context.Context, tenantID string, state domain.ConnectionState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[tenantID] = state
	return nil
}

func (m *mockTenantRepo) ListByStatus(ctx context.Context, state domain.ConnectionState) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, s := range m.statuses {
		if s == state {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *mockTenantRepo) status(tenantID string) domain.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statuses[tenantID]
}

type mockConn struct {
	events chan domain.TransportEvent

	mu     sync.Mutex
	sent   []string
	closed bool
}

func newMockConn() *mockConn {
	return &mockConn{events: make(chan domain.TransportEvent, 16)}
}

func (c *mockConn) Events() <-chan domain.TransportEvent { return c.events }

func (c *mockConn) SendText(ctx context.Context, to, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, text)
	return nil
}

func (c *mockConn) SendInteractive(ctx context.Context, to string, msg domain.OutboundMessage) error {
	return c.SendText(ctx, to, msg.Body)
}

func (c *mockConn) SetTyping(ctx context.Context, to string, typing bool) error { return nil }

func (c *mockConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *mockConn) emit(evt domain.TransportEvent) {
	c.events <- evt
}

type mockTransport struct {
	mu         sync.Mutex
	creds      []*domain.Credential
	connectErr error
	attempts   int
	conns      chan *mockConn
}

func newMockTransport() *mockTransport {
	return &mockTransport{conns: make(chan *mockConn, 16)}
}

func (t *mockTransport) Name() string { return "mock" }

func (t *mockTransport) Connect(ctx context.Context, tenantID string, cred *domain.Credential) (repo.Conn, error) {
	t.mu.Lock()
	t.attempts++
	t.creds = append(t.creds, cred)
	err := t.connectErr
	t.mu.Unlock()
	if err != nil {
		return nil, err
	}
	c := newMockConn()
	t.conns <- c
	return c, nil
}

func (t *mockTransport) attemptCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attempts
}

func (t *mockTransport) credAt(i int) *domain.Credential {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.creds[i]
}
