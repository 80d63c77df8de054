package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Raphahf6/raio-x-360-back/internal/biz/domain"
)

// PostgresStore implements the same repositories as SQLiteStore on PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS customers (
			tenant_id TEXT NOT NULL,
			customer_hash TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'LEAD',
			last_contact_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (tenant_id, customer_hash)
		);`,
		`CREATE TABLE IF NOT EXISTS audit_log (
			seq BIGSERIAL PRIMARY KEY,
			id TEXT NOT NULL UNIQUE,
			tenant_id TEXT NOT NULL,
			customer_hash TEXT NOT NULL,
			direction TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_audit_log_customer_created ON audit_log (tenant_id, customer_hash, created_at);`,
		`CREATE TABLE IF NOT EXISTS catalog_items (
			id BIGSERIAL PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			price NUMERIC(12,2) NOT NULL DEFAULT 0,
			available BOOLEAN NOT NULL DEFAULT TRUE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_catalog_items_tenant ON catalog_items (tenant_id);`,
		`CREATE TABLE IF NOT EXISTS tenants (
			tenant_id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) UpsertContact(ctx context.Context, tenantID, customerHash string, now time.Time) (*domain.Customer, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var prev *domain.Customer
	var c domain.Customer
	var status string
	err = tx.QueryRow(ctx,
		`SELECT tenant_id, customer_hash, status, last_contact_at, created_at
		 FROM customers WHERE tenant_id=$1 AND customer_hash=$2 FOR UPDATE`,
		tenantID, customerHash,
	).Scan(&c.TenantID, &c.Hash, &status, &c.LastContactAt, &c.CreatedAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		_, err = tx.Exec(ctx,
			`INSERT INTO customers (tenant_id, customer_hash, status, last_contact_at, created_at)
			 VALUES ($1, $2, $3, $4, $4)
			 ON CONFLICT (tenant_id, customer_hash) DO UPDATE SET last_contact_at = EXCLUDED.last_contact_at`,
			tenantID, customerHash, string(domain.StatusLead), now,
		)
	case err != nil:
		return nil, false, fmt.Errorf("query customer: %w", err)
	default:
		c.Status = domain.CustomerStatus(status)
		prev = &c
		_, err = tx.Exec(ctx,
			`UPDATE customers SET last_contact_at=$3 WHERE tenant_id=$1 AND customer_hash=$2`,
			tenantID, customerHash, now,
		)
	}
	if err != nil {
		return nil, false, fmt.Errorf("upsert customer: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("commit customer: %w", err)
	}
	return prev, prev == nil, nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, tenantID, customerHash string, status domain.CustomerStatus) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE customers SET status=$3 WHERE tenant_id=$1 AND customer_hash=$2`,
		tenantID, customerHash, string(status),
	)
	if err != nil {
		return fmt.Errorf("update customer status: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, tenantID, customerHash string) (*domain.Customer, error) {
	var c domain.Customer
	var status string
	err := s.pool.QueryRow(ctx,
		`SELECT tenant_id, customer_hash, status, last_contact_at, created_at
		 FROM customers WHERE tenant_id=$1 AND customer_hash=$2`,
		tenantID, customerHash,
	).Scan(&c.TenantID, &c.Hash, &status, &c.LastContactAt, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query customer: %w", err)
	}
	c.Status = domain.CustomerStatus(status)
	return &c, nil
}

func (s *PostgresStore) Append(ctx context.Context, turn *domain.Turn) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO audit_log (id, tenant_id, customer_hash, direction, content, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		turn.ID,
		turn.TenantID,
		turn.CustomerHash,
		string(turn.Direction),
		turn.Content,
		turn.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}

func (s *PostgresStore) Recent(ctx context.Context, tenantID, customerHash string, since time.Time, limit int) ([]*domain.Turn, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, tenant_id, customer_hash, direction, content, created_at
		 FROM audit_log
		 WHERE tenant_id=$1 AND customer_hash=$2 AND created_at >= $3
		 ORDER BY created_at DESC, seq DESC LIMIT $4`,
		tenantID, customerHash, since, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent audit: %w", err)
	}
	defer rows.Close()

	turns := make([]*domain.Turn, 0, limit)
	for rows.Next() {
		var t domain.Turn
		var dir string
		if err := rows.Scan(&t.ID, &t.TenantID, &t.CustomerHash, &dir, &t.Content, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		t.Direction = domain.Direction(dir)
		turns = append(turns, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit rows: %w", err)
	}

	reverseTurns(turns)
	return turns, nil
}

func (s *PostgresStore) ListAvailable(ctx context.Context, tenantID string) ([]domain.CatalogItem, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT name, description, category, price::float8, available
		 FROM catalog_items WHERE tenant_id=$1 AND available ORDER BY category, name`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("query catalog: %w", err)
	}
	defer rows.Close()

	var items []domain.CatalogItem
	for rows.Next() {
		var item domain.CatalogItem
		if err := rows.Scan(&item.Name, &item.Description, &item.Category, &item.Price, &item.Available); err != nil {
			return nil, fmt.Errorf("scan catalog row: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate catalog rows: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) Replace(ctx context.Context, tenantID string, items []domain.CatalogItem) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM catalog_items WHERE tenant_id=$1`, tenantID); err != nil {
		return fmt.Errorf("clear catalog: %w", err)
	}

	batch := &pgx.Batch{}
	for _, item := range items {
		batch.Queue(
			`INSERT INTO catalog_items (tenant_id, name, description, category, price, available)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			tenantID, item.Name, item.Description, item.Category, item.Price, item.Available,
		)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert catalog: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) SetStatus(ctx context.Context, tenantID string, state domain.ConnectionState) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tenants (tenant_id, status, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (tenant_id) DO UPDATE SET status=EXCLUDED.status, updated_at=now()`,
		tenantID, string(state),
	)
	if err != nil {
		return fmt.Errorf("set tenant status: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByStatus(ctx context.Context, state domain.ConnectionState) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT tenant_id FROM tenants WHERE status=$1 ORDER BY tenant_id`,
		string(state),
	)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect tenants: %w", err)
	}
	return ids, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
