package domain

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"
)

// ConnectionState is the lifecycle state of a tenant session
type ConnectionState string

const (
	StateDisconnected ConnectionState = "DISCONNECTED"
	StateConnecting   ConnectionState = "CONNECTING"
	StateConnected    ConnectionState = "CONNECTED"
)

// Session represents the transport session owned by one tenant
type Session struct {
	TenantID  string
	State     ConnectionState
	Attempts  int       // Consecutive failed connection attempts
	Running   bool      // Supervisor loop is alive
	UpdatedAt time.Time // Last state change
}

// IsConnected reports whether outbound sends can be attempted
func (s *Session) IsConnected() bool {
	return s.State == StateConnected
}

// Credential is the opaque credential handle persisted per tenant.
// Only the transport adapter understands Data.
type Credential struct {
	TenantID  string
	Data      json.RawMessage
	UpdatedAt time.Time
}

// IsEmpty reports whether the credential carries no transport state
func (c *Credential) IsEmpty() bool {
	return c == nil || len(c.Data) == 0 || string(c.Data) == "null"
}

// SessionConfig contains reconnect supervision settings
type SessionConfig struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxAttempts    int // Consecutive failures before giving up, 0 means unlimited
}

// DefaultSessionConfig returns the default reconnect policy
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
		MaxAttempts:    10,
	}
}

// NextBackoff doubles the delay up to MaxBackoff
func (c SessionConfig) NextBackoff(current time.Duration) time.Duration {
	if current <= 0 {
		return c.InitialBackoff
	}
	return min(current*2, c.MaxBackoff)
}

// Exhausted reports whether failures reached the attempt cap
func (c SessionConfig) Exhausted(failures int) bool {
	return c.MaxAttempts > 0 && failures >= c.MaxAttempts
}

var tenantIDRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidateTenantID checks the id is safe to use as a key and directory name
func ValidateTenantID(tenantID string) error {
	if !tenantIDRegex.MatchString(tenantID) {
		return fmt.Errorf("%w: %q", ErrInvalidTenant, tenantID)
	}
	return nil
}
