package mcp

import (
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// TenantInput selects a tenant
type TenantInput struct {
	TenantID string `json:"tenant_id" jsonschema:"the tenant (store) identifier"`
}

// ListSessionsInput optionally filters by state
type ListSessionsInput struct {
	State string `json:"state,omitempty" jsonschema:"only return sessions in this state: CONNECTING, CONNECTED or DISCONNECTED"`
}

// NotifyOrderInput describes an order status change
type NotifyOrderInput struct {
	TenantID     string `json:"tenant_id" jsonschema:"the tenant (store) identifier"`
	Phone        string `json:"phone" jsonschema:"customer phone number, digits with or without country code"`
	Status       string `json:"status" jsonschema:"new order status: PENDING, PREPARING, DISPATCHED, DELIVERED or CANCELED"`
	OrderNumber  string `json:"order_number,omitempty" jsonschema:"order number shown to the customer"`
	CustomerName string `json:"customer_name,omitempty" jsonschema:"customer first name used in the greeting"`
}

// ConnectOutput is the output for connect_tenant
type ConnectOutput struct {
	TenantID string `json:"tenant_id,omitempty"`
	State    string `json:"state,omitempty"`
	Error    string `json:"error,omitempty"`
}

// StatusOutput is the output for tenant_status
type StatusOutput struct {
	Session *Session `json:"session,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// ListSessionsOutput is the output for list_sessions
type ListSessionsOutput struct {
	Sessions []Session `json:"sessions"`
	Error    string    `json:"error,omitempty"`
}

// SuccessOutput is a generic acknowledgement
type SuccessOutput struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// NotifyOrderOutput is the output for notify_order_status
type NotifyOrderOutput struct {
	Sent  bool   `json:"sent"`
	Error string `json:"error,omitempty"`
}

// NewServer creates the MCP server with every operator tool registered
func NewServer(h *Handler, version string) *mcpsdk.Server {
	server := mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    "salesbridge-operator",
		Version: version,
	}, nil)

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "connect_tenant",
		Description: "Start (or return) the messaging session for a store. A pairing code is emitted on the event stream when the store is not yet linked.",
	}, h.ConnectTenant)

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "tenant_status",
		Description: "Get the connection state of a store's messaging session.",
	}, h.TenantStatus)

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "list_sessions",
		Description: "List every store session known to the bridge.",
	}, h.ListSessions)

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "logout_tenant",
		Description: "Unlink a store: discards its stored credential and starts a fresh pairing flow.",
	}, h.LogoutTenant)

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "notify_order_status",
		Description: "Send the customer the template message for an order status change. Returns sent=false for statuses without a template.",
	}, h.NotifyOrderStatus)

	return server
}
