package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Raphahf6/raio-x-360-back/internal/biz/domain"
)

const credentialFile = "creds.json"

// credentialRecord is the on-disk shape of a tenant credential
type credentialRecord struct {
	TenantID  string          `json:"tenantId"`
	Data      json.RawMessage `json:"data"`
	UpdatedAt int64           `json:"updatedAt"`
}

// FileCredentialStore keeps one directory per tenant under root
type FileCredentialStore struct {
	root string
}

// NewFileCredentialStore creates the store, creating root if needed
func NewFileCredentialStore(root string) (*FileCredentialStore, error) {
	if err := os.MkdirAll(root, 0700); err != nil {
		return nil, fmt.Errorf("failed to create credentials directory: %w", err)
	}
	return &FileCredentialStore{root: root}, nil
}

func (s *FileCredentialStore) tenantDir(tenantID string) (string, error) {
	if err := domain.ValidateTenantID(tenantID); err != nil {
		return "", err
	}
	return filepath.Join(s.root, tenantID), nil
}

// Load returns the stored credential, or nil if none exists
func (s *FileCredentialStore) Load(ctx context.Context, tenantID string) (*domain.Credential, error) {
	dir, err := s.tenantDir(tenantID)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(filepath.Join(dir, credentialFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}

	var rec credentialRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode credentials: %w", err)
	}
	return &domain.Credential{
		TenantID:  tenantID,
		Data:      rec.Data,
		UpdatedAt: time.Unix(rec.UpdatedAt, 0),
	}, nil
}

// Save writes the credential through a temp file and rename
func (s *FileCredentialStore) Save(ctx context.Context, cred *domain.Credential) error {
	dir, err := s.tenantDir(cred.TenantID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create tenant directory: %w", err)
	}

	updated := cred.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	raw, err := json.Marshal(credentialRecord{
		TenantID:  cred.TenantID,
		Data:      cred.Data,
		UpdatedAt: updated.Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}

	tmp, err := os.CreateTemp(dir, credentialFile+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close credentials: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, credentialFile)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace credentials: %w", err)
	}
	return nil
}

// Purge removes the tenant's credential directory
func (s *FileCredentialStore) Purge(ctx context.Context, tenantID string) error {
	dir, err := s.tenantDir(tenantID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to purge credentials: %w", err)
	}
	return nil
}
