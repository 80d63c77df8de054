package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Raphahf6/raio-x-360-back/internal/biz/domain"
	"github.com/Raphahf6/raio-x-360-back/internal/biz/repo"
)

// Sender sends outbound messages on behalf of one tenant
type Sender interface {
	SendText(ctx context.Context, to, text string) error
	SendInteractive(ctx context.Context, to string, msg domain.OutboundMessage) error
	SetTyping(ctx context.Context, to string, typing bool) error
}

// SenderProvider resolves the sender of a tenant at send time
type SenderProvider interface {
	Sender(tenantID string) Sender
}

// liveConn boxes the connection so it can sit behind an atomic pointer
type liveConn struct {
	repo.Conn
}

// TenantSession is the registry entry for one tenant.
// The live connection is swapped atomically; it is nil whenever the
// session is not CONNECTED so sends fail fast.
type TenantSession struct {
	tenantID string
	conn     atomic.Pointer[liveConn]

	mu        sync.Mutex
	state     domain.ConnectionState
	failures  int
	running   bool
	removed   bool
	updatedAt time.Time
	cancel    context.CancelFunc
	done      chan struct{}
}

func newTenantSession(tenantID string) *TenantSession {
	return &TenantSession{
		tenantID:  tenantID,
		state:     domain.StateDisconnected,
		updatedAt: time.Now(),
	}
}

// TenantID returns the tenant id
func (s *TenantSession) TenantID() string {
	return s.tenantID
}

// State returns the current connection state
func (s *TenantSession) State() domain.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns a copy of the session state
func (s *TenantSession) Snapshot() domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.Session{
		TenantID:  s.tenantID,
		State:     s.state,
		Attempts:  s.failures,
		Running:   s.running,
		UpdatedAt: s.updatedAt,
	}
}

// setState updates the state and reports whether it changed
func (s *TenantSession) setState(state domain.ConnectionState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == state {
		return false
	}
	s.state = state
	s.updatedAt = time.Now()
	return true
}

func (s *TenantSession) incFailures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures++
	return s.failures
}

func (s *TenantSession) resetFailures() {
	s.mu.Lock()
	s.failures = 0
	s.mu.Unlock()
}

func (s *TenantSession) markStopped() {
	s.mu.Lock()
	s.running = false
	s.cancel = nil
	s.mu.Unlock()
}

func (s *TenantSession) live() (*liveConn, error) {
	c := s.conn.Load()
	if c == nil {
		return nil, fmt.Errorf("%w: tenant %s", domain.ErrNotConnected, s.tenantID)
	}
	return c, nil
}

// SendText sends a text message over the live connection
func (s *TenantSession) SendText(ctx context.Context, to, text string) error {
	c, err := s.live()
	if err != nil {
		return err
	}
	return c.SendText(ctx, to, text)
}

// SendInteractive sends a quick-reply message over the live connection
func (s *TenantSession) SendInteractive(ctx context.Context, to string, msg domain.OutboundMessage) error {
	c, err := s.live()
	if err != nil {
		return err
	}
	return c.SendInteractive(ctx, to, msg)
}

// SetTyping toggles the composing indicator
func (s *TenantSession) SetTyping(ctx context.Context, to string, typing bool) error {
	c, err := s.live()
	if err != nil {
		return err
	}
	return c.SetTyping(ctx, to, typing)
}

// SessionRegistry maps tenant ids to sessions.
// It is owned by the process coordinator and handed to collaborators.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*TenantSession
}

// NewSessionRegistry creates an empty registry
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*TenantSession),
	}
}

// Get returns the session for a tenant
func (r *SessionRegistry) Get(tenantID string) (*TenantSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[tenantID]
	return s, ok
}

// getOrCreate returns the existing session or inserts a new one
func (r *SessionRegistry) getOrCreate(tenantID string) (*TenantSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[tenantID]; ok {
		return s, false
	}
	s := newTenantSession(tenantID)
	r.sessions[tenantID] = s
	return s, true
}

// removeIfStopped deletes the entry only if it still points at s and no
// supervisor is running on it. A removed session is never started again.
func (r *SessionRegistry) removeIfStopped(tenantID string, s *TenantSession) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	if cur, ok := r.sessions[tenantID]; ok && cur == s {
		delete(r.sessions, tenantID)
	}
	s.removed = true
	return true
}

// List returns all sessions ordered by tenant id
func (r *SessionRegistry) List() []*TenantSession {
	r.mu.RLock()
	list := make([]*TenantSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		list = append(list, s)
	}
	r.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool { return list[i].tenantID < list[j].tenantID })
	return list
}

// CountByState counts sessions in the given state
func (r *SessionRegistry) CountByState(state domain.ConnectionState) int {
	n := 0
	for _, s := range r.List() {
		if s.State() == state {
			n++
		}
	}
	return n
}

// Sender returns a sender that resolves the tenant's session on every call,
// so a session replaced by logout is picked up transparently.
func (r *SessionRegistry) Sender(tenantID string) Sender {
	return &registrySender{registry: r, tenantID: tenantID}
}

type registrySender struct {
	registry *SessionRegistry
	tenantID string
}

func (rs *registrySender) session() (*TenantSession, error) {
	s, ok := rs.registry.Get(rs.tenantID)
	if !ok {
		return nil, fmt.Errorf("%w: tenant %s has no session", domain.ErrNotConnected, rs.tenantID)
	}
	return s, nil
}

func (rs *registrySender) SendText(ctx context.Context, to, text string) error {
	s, err := rs.session()
	if err != nil {
		return err
	}
	return s.SendText(ctx, to, text)
}

func (rs *registrySender) SendInteractive(ctx context.Context, to string, msg domain.OutboundMessage) error {
	s, err := rs.session()
	if err != nil {
		return err
	}
	return s.SendInteractive(ctx, to, msg)
}

func (rs *registrySender) SetTyping(ctx context.Context, to string, typing bool) error {
	s, err := rs.session()
	if err != nil {
		return err
	}
	return s.SetTyping(ctx, to, typing)
}
