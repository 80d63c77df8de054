package mcp

import (
	"context"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Handler implements the operator tools on top of the HTTP client.
// Tool failures are reported in the output's Error field so the model can read them.
type Handler struct {
	client *Client
}

// NewHandler creates a new MCP handler
func NewHandler(client *Client) *Handler {
	return &Handler{client: client}
}

// ============ Session Tools ============

func (h *Handler) ConnectTenant(ctx context.Context, req *mcpsdk.CallToolRequest, input TenantInput) (*mcpsdk.CallToolResult, ConnectOutput, error) {
	tenantID := strings.TrimSpace(input.TenantID)
	if tenantID == "" {
		return nil, ConnectOutput{Error: "tenant_id is required"}, nil
	}
	state, err := h.client.Connect(ctx, tenantID)
	if err != nil {
		return nil, ConnectOutput{TenantID: tenantID, Error: err.Error()}, nil
	}
	return nil, ConnectOutput{TenantID: tenantID, State: state}, nil
}

func (h *Handler) TenantStatus(ctx context.Context, req *mcpsdk.CallToolRequest, input TenantInput) (*mcpsdk.CallToolResult, StatusOutput, error) {
	tenantID := strings.TrimSpace(input.TenantID)
	if tenantID == "" {
		return nil, StatusOutput{Error: "tenant_id is required"}, nil
	}
	s, err := h.client.Status(ctx, tenantID)
	if err != nil {
		return nil, StatusOutput{Error: err.Error()}, nil
	}
	return nil, StatusOutput{Session: s}, nil
}

func (h *Handler) ListSessions(ctx context.Context, req *mcpsdk.CallToolRequest, input ListSessionsInput) (*mcpsdk.CallToolResult, ListSessionsOutput, error) {
	sessions, err := h.client.Sessions(ctx)
	if err != nil {
		return nil, ListSessionsOutput{Sessions: []Session{}, Error: err.Error()}, nil
	}

	state := strings.ToUpper(strings.TrimSpace(input.State))
	if state == "" {
		return nil, ListSessionsOutput{Sessions: sessions}, nil
	}
	filtered := make([]Session, 0, len(sessions))
	for _, s := range sessions {
		if s.State == state {
			filtered = append(filtered, s)
		}
	}
	return nil, ListSessionsOutput{Sessions: filtered}, nil
}

func (h *Handler) LogoutTenant(ctx context.Context, req *mcpsdk.CallToolRequest, input TenantInput) (*mcpsdk.CallToolResult, SuccessOutput, error) {
	tenantID := strings.TrimSpace(input.TenantID)
	if tenantID == "" {
		return nil, SuccessOutput{Error: "tenant_id is required"}, nil
	}
	if err := h.client.Logout(ctx, tenantID); err != nil {
		return nil, SuccessOutput{Error: err.Error()}, nil
	}
	return nil, SuccessOutput{Success: true}, nil
}

// ============ Order Tools ============

func (h *Handler) NotifyOrderStatus(ctx context.Context, req *mcpsdk.CallToolRequest, input NotifyOrderInput) (*mcpsdk.CallToolResult, NotifyOrderOutput, error) {
	if input.TenantID == "" || input.Phone == "" || input.Status == "" {
		return nil, NotifyOrderOutput{Error: "tenant_id, phone and status are required"}, nil
	}

	sent, err := h.client.NotifyOrder(ctx, input.TenantID, OrderNotice{
		Phone:        input.Phone,
		Status:       input.Status,
		OrderNumber:  input.OrderNumber,
		CustomerName: input.CustomerName,
	})
	if err != nil {
		return nil, NotifyOrderOutput{Error: err.Error()}, nil
	}
	return nil, NotifyOrderOutput{Sent: sent}, nil
}
