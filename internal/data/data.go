package data

import (
	"context"
	"io"
	"log/slog"

	"github.com/Raphahf6/raio-x-360-back/internal/biz/repo"
)

// Options selects and configures the storage backends
type Options struct {
	DatabaseURL    string // PostgreSQL when set
	SQLitePath     string // Used when DatabaseURL is empty
	CredentialsDir string
}

// Repositories contains all repositories
type Repositories struct {
	Customers   repo.CustomerRepo
	Audit       repo.AuditRepo
	Catalog     repo.CatalogRepo
	Tenants     repo.TenantRepo
	Credentials repo.CredentialRepo

	closer io.Closer
}

// store is satisfied by both SQL backends
type store interface {
	repo.CustomerRepo
	repo.AuditRepo
	repo.CatalogRepo
	repo.TenantRepo
	io.Closer
}

// NewRepositories creates all repositories
func NewRepositories(ctx context.Context, opts Options, logger *slog.Logger) (*Repositories, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var s store
	var err error
	if opts.DatabaseURL != "" {
		s, err = NewPostgresStore(ctx, opts.DatabaseURL)
		logger.Info("storage backend selected", "backend", "postgres")
	} else {
		s, err = NewSQLiteStore(opts.SQLitePath)
		logger.Info("storage backend selected", "backend", "sqlite", "path", opts.SQLitePath)
	}
	if err != nil {
		return nil, err
	}

	creds, err := NewFileCredentialStore(opts.CredentialsDir)
	if err != nil {
		s.Close()
		return nil, err
	}

	return &Repositories{
		Customers:   s,
		Audit:       s,
		Catalog:     s,
		Tenants:     s,
		Credentials: creds,
		closer:      s,
	}, nil
}

// Close releases the database
func (r *Repositories) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}
