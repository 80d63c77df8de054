package repo

import (
	"context"
	"time"

	"github.com/Raphahf6/raio-x-360-back/internal/biz/domain"
)

// CustomerRepo is the customer repository interface
type CustomerRepo interface {
	// UpsertContact records a contact at now. It returns the customer as it was
	// before the update, and isNew=true when no record existed.
	UpsertContact(ctx context.Context, tenantID, customerHash string, now time.Time) (prev *domain.Customer, isNew bool, err error)

	// UpdateStatus sets the dialogue status
	UpdateStatus(ctx context.Context, tenantID, customerHash string, status domain.CustomerStatus) error

	// Get returns the customer, or nil if not found
	Get(ctx context.Context, tenantID, customerHash string) (*domain.Customer, error)
}

// AuditRepo is the append-only audit trail
type AuditRepo interface {
	// Append writes one turn
	Append(ctx context.Context, turn *domain.Turn) error

	// Recent returns up to limit turns newer than since, oldest first
	Recent(ctx context.Context, tenantID, customerHash string, since time.Time, limit int) ([]*domain.Turn, error)
}

// CatalogRepo reads the tenant's product catalog
type CatalogRepo interface {
	// ListAvailable lists items currently available
	ListAvailable(ctx context.Context, tenantID string) ([]domain.CatalogItem, error)

	// Replace swaps the tenant's catalog (bulk import)
	Replace(ctx context.Context, tenantID string, items []domain.CatalogItem) error
}

// Responder generates a reply from catalog and recent history.
// The output may carry a "|||" label list and inline markers.
type Responder interface {
	Respond(ctx context.Context, tenantID, customerHash string) (string, error)
}

// Observer receives realtime notifications
type Observer interface {
	Publish(event domain.ObserverEvent)
}
