package repo

import (
	"context"

	"github.com/Raphahf6/raio-x-360-back/internal/biz/domain"
)

// TenantRepo persists the last known connection status per tenant
type TenantRepo interface {
	// SetStatus records the tenant's connection state
	SetStatus(ctx context.Context, tenantID string, state domain.ConnectionState) error

	// ListByStatus lists tenant ids with the given state
	ListByStatus(ctx context.Context, state domain.ConnectionState) ([]string, error)
}

// CredentialRepo stores opaque transport credentials per tenant
type CredentialRepo interface {
	// Load returns the credential, or nil if none is stored
	Load(ctx context.Context, tenantID string) (*domain.Credential, error)

	// Save creates or replaces the credential
	Save(ctx context.Context, cred *domain.Credential) error

	// Purge removes every trace of the tenant's credential
	Purge(ctx context.Context, tenantID string) error
}
