package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is the HTTP client for the operator API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new MCP client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Session is a tenant session as reported by the API
type Session struct {
	TenantID  string    `json:"tenant_id"`
	State     string    `json:"state"`
	Running   bool      `json:"running"`
	Attempts  int       `json:"attempts"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OrderNotice is an order status notification request
type OrderNotice struct {
	Phone        string `json:"phone"`
	Status       string `json:"status"`
	OrderNumber  string `json:"order_number,omitempty"`
	CustomerName string `json:"customer_name,omitempty"`
}

// ============ Sessions ============

// Connect starts the tenant's session and returns its state
func (c *Client) Connect(ctx context.Context, tenantID string) (string, error) {
	var result struct {
		State string `json:"state"`
	}
	if err := c.post(ctx, tenantPath(tenantID, "connect"), nil, &result); err != nil {
		return "", err
	}
	return result.State, nil
}

// Logout discards the tenant's credential
func (c *Client) Logout(ctx context.Context, tenantID string) error {
	return c.post(ctx, tenantPath(tenantID, "logout"), nil, nil)
}

// Status returns the tenant's session
func (c *Client) Status(ctx context.Context, tenantID string) (*Session, error) {
	var s Session
	if err := c.get(ctx, tenantPath(tenantID, "status"), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Sessions lists every session
func (c *Client) Sessions(ctx context.Context) ([]Session, error) {
	var result struct {
		Sessions []Session `json:"sessions"`
	}
	if err := c.get(ctx, "/api/sessions", &result); err != nil {
		return nil, err
	}
	return result.Sessions, nil
}

// ============ Orders ============

// NotifyOrder asks the bridge to notify a customer; reports whether a message went out
func (c *Client) NotifyOrder(ctx context.Context, tenantID string, notice OrderNotice) (bool, error) {
	var result struct {
		Sent bool `json:"sent"`
	}
	if err := c.post(ctx, tenantPath(tenantID, "orders/notify"), notice, &result); err != nil {
		return false, err
	}
	return result.Sent, nil
}

// ============ Helpers ============

func tenantPath(tenantID, action string) string {
	return fmt.Sprintf("/api/tenants/%s/%s", url.PathEscape(tenantID), action)
}

func (c *Client) get(ctx context.Context, path string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, result)
}

func (c *Client) post(ctx context.Context, path string, body interface{}, result interface{}) error {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal body: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, result)
}

func (c *Client) do(req *http.Request, result interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP %s failed: %w", req.Method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
