package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Raphahf6/raio-x-360-back/internal/biz/domain"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the customer, audit, catalog and tenant repositories on SQLite
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and creates) the database at dbPath
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single writer avoids SQLITE_BUSY between concurrent turns
	db.SetMaxOpenConns(1)

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS customers (
			tenant_id TEXT NOT NULL,
			customer_hash TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'LEAD',
			last_contact_at INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (tenant_id, customer_hash)
		)`,
		`CREATE TABLE IF NOT EXISTS audit_log (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			tenant_id TEXT NOT NULL,
			customer_hash TEXT NOT NULL,
			direction TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_customer ON audit_log(tenant_id, customer_hash, created_at)`,
		`CREATE TABLE IF NOT EXISTS catalog_items (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tenant_id TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			price REAL NOT NULL DEFAULT 0,
			available INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE INDEX IF NOT EXISTS idx_catalog_tenant ON catalog_items(tenant_id)`,
		`CREATE TABLE IF NOT EXISTS tenants (
			tenant_id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// ========== Customers ==========

// UpsertContact records a contact and returns the previous customer state
func (s *SQLiteStore) UpsertContact(ctx context.Context, tenantID, customerHash string, now time.Time) (*domain.Customer, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	prev, err := scanCustomer(tx.QueryRowContext(ctx, `
		SELECT tenant_id, customer_hash, status, last_contact_at, created_at
		FROM customers
		WHERE tenant_id = ? AND customer_hash = ?
	`, tenantID, customerHash))
	if err != nil {
		return nil, false, err
	}

	if prev == nil {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO customers (tenant_id, customer_hash, status, last_contact_at, created_at)
			VALUES (?, ?, ?, ?, ?)
		`, tenantID, customerHash, string(domain.StatusLead), now.UnixMilli(), now.UnixMilli())
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE customers SET last_contact_at = ? WHERE tenant_id = ? AND customer_hash = ?
		`, now.UnixMilli(), tenantID, customerHash)
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to upsert customer: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit customer: %w", err)
	}
	return prev, prev == nil, nil
}

// UpdateStatus sets the dialogue status
func (s *SQLiteStore) UpdateStatus(ctx context.Context, tenantID, customerHash string, status domain.CustomerStatus) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE customers SET status = ? WHERE tenant_id = ? AND customer_hash = ?
	`, string(status), tenantID, customerHash)
	if err != nil {
		return fmt.Errorf("failed to update customer status: %w", err)
	}
	return nil
}

// Get returns the customer or nil
func (s *SQLiteStore) Get(ctx context.Context, tenantID, customerHash string) (*domain.Customer, error) {
	return scanCustomer(s.db.QueryRowContext(ctx, `
		SELECT tenant_id, customer_hash, status, last_contact_at, created_at
		FROM customers
		WHERE tenant_id = ? AND customer_hash = ?
	`, tenantID, customerHash))
}

func scanCustomer(row *sql.Row) (*domain.Customer, error) {
	var c domain.Customer
	var status string
	var lastContact, created int64
	err := row.Scan(&c.TenantID, &c.Hash, &status, &lastContact, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query customer: %w", err)
	}
	c.Status = domain.CustomerStatus(status)
	c.LastContactAt = time.UnixMilli(lastContact)
	c.CreatedAt = time.UnixMilli(created)
	return &c, nil
}

// ========== Audit ==========

// Append writes one audit turn
func (s *SQLiteStore) Append(ctx context.Context, turn *domain.Turn) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, tenant_id, customer_hash, direction, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, turn.ID, turn.TenantID, turn.CustomerHash, string(turn.Direction), turn.Content, turn.Timestamp.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to append audit: %w", err)
	}
	return nil
}

// Recent returns up to limit turns newer than since, oldest first
func (s *SQLiteStore) Recent(ctx context.Context, tenantID, customerHash string, since time.Time, limit int) ([]*domain.Turn, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, customer_hash, direction, content, created_at
		FROM audit_log
		WHERE tenant_id = ? AND customer_hash = ? AND created_at >= ?
		ORDER BY created_at DESC, seq DESC
		LIMIT ?
	`, tenantID, customerHash, since.UnixMilli(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit: %w", err)
	}
	defer rows.Close()

	var turns []*domain.Turn
	for rows.Next() {
		var t domain.Turn
		var dir string
		var ts int64
		if err := rows.Scan(&t.ID, &t.TenantID, &t.CustomerHash, &dir, &t.Content, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan audit: %w", err)
		}
		t.Direction = domain.Direction(dir)
		t.Timestamp = time.UnixMilli(ts)
		turns = append(turns, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit: %w", err)
	}

	reverseTurns(turns)
	return turns, nil
}

// ========== Catalog ==========

// ListAvailable lists available catalog items
func (s *SQLiteStore) ListAvailable(ctx context.Context, tenantID string) ([]domain.CatalogItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, description, category, price, available
		FROM catalog_items
		WHERE tenant_id = ? AND available = 1
		ORDER BY category, name
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog: %w", err)
	}
	defer rows.Close()

	var items []domain.CatalogItem
	for rows.Next() {
		var item domain.CatalogItem
		if err := rows.Scan(&item.Name, &item.Description, &item.Category, &item.Price, &item.Available); err != nil {
			return nil, fmt.Errorf("failed to scan catalog item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Replace swaps the tenant's catalog in one transaction
func (s *SQLiteStore) Replace(ctx context.Context, tenantID string, items []domain.CatalogItem) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM catalog_items WHERE tenant_id = ?`, tenantID); err != nil {
		return fmt.Errorf("failed to clear catalog: %w", err)
	}
	for _, item := range items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO catalog_items (tenant_id, name, description, category, price, available)
			VALUES (?, ?, ?, ?, ?, ?)
		`, tenantID, item.Name, item.Description, item.Category, item.Price, item.Available)
		if err != nil {
			return fmt.Errorf("failed to insert catalog item: %w", err)
		}
	}
	return tx.Commit()
}

// ========== Tenants ==========

// SetStatus records the tenant's connection state
func (s *SQLiteStore) SetStatus(ctx context.Context, tenantID string, state domain.ConnectionState) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tenants (tenant_id, status, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(tenant_id) DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at
	`, tenantID, string(state), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to set tenant status: %w", err)
	}
	return nil
}

// ListByStatus lists tenant ids in the given state
func (s *SQLiteStore) ListByStatus(ctx context.Context, state domain.ConnectionState) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tenant_id FROM tenants WHERE status = ? ORDER BY tenant_id
	`, string(state))
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func reverseTurns(turns []*domain.Turn) {
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
}
