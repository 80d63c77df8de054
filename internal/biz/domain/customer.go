package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// CustomerStatus is the dialogue state of a customer
type CustomerStatus string

const (
	StatusLead  CustomerStatus = "LEAD"  // Automated flow
	StatusHuman CustomerStatus = "HUMAN" // Handed off to a person, automation stays silent
)

// Customer is a pseudonymous end-user of a tenant.
// The raw transport address is never stored, only its hash.
type Customer struct {
	TenantID      string
	Hash          string
	Status        CustomerStatus
	LastContactAt time.Time
	CreatedAt     time.Time
}

// IsInactive checks whether the previous contact is older than the window
func (c *Customer) IsInactive(now time.Time, window time.Duration) bool {
	if c == nil || window <= 0 || c.LastContactAt.IsZero() {
		return false
	}
	return now.Sub(c.LastContactAt) > window
}

// IsHuman reports whether the customer is in human hand-off
func (c *Customer) IsHuman() bool {
	return c != nil && c.Status == StatusHuman
}

// HashAddress returns the SHA-256 hex digest of a transport address
func HashAddress(address string) string {
	sum := sha256.Sum256([]byte(address))
	return hex.EncodeToString(sum[:])
}

// CustomerKey identifies a customer inside a tenant
type CustomerKey struct {
	TenantID     string
	CustomerHash string
}

func (k CustomerKey) String() string {
	return k.TenantID + ":" + k.CustomerHash
}
