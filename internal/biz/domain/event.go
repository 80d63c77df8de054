package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// Address suffixes used by the transport
const (
	GroupSuffix       = "@g.us"
	BroadcastSuffix   = "@broadcast"
	StatusBroadcast   = "status@broadcast"
	PersonalSuffix    = "@s.whatsapp.net"
	DefaultCountryDDI = "55"
)

// IsGroupAddress reports whether the address is a group chat
func IsGroupAddress(addr string) bool {
	return strings.HasSuffix(addr, GroupSuffix)
}

// IsBroadcastAddress reports whether the address is a broadcast/status feed
func IsBroadcastAddress(addr string) bool {
	return addr == StatusBroadcast || strings.HasSuffix(addr, BroadcastSuffix)
}

// RawContent holds the text-bearing variants of an inbound message.
// Only one is normally set, ExtractText resolves precedence.
type RawContent struct {
	Conversation   string `json:"conversation,omitempty"`    // Plain body
	ExtendedText   string `json:"extended_text,omitempty"`   // Extended or quoted body
	QuickReply     string `json:"quick_reply,omitempty"`     // Selected quick-reply/list row
	TemplateButton string `json:"template_button,omitempty"` // Selected template button
}

// ExtractText returns the first non-empty variant in precedence order
func (c RawContent) ExtractText() string {
	for _, candidate := range []string{c.Conversation, c.ExtendedText, c.QuickReply, c.TemplateButton} {
		if text := strings.TrimSpace(candidate); text != "" {
			return text
		}
	}
	return ""
}

// InboundEvent is a raw message event delivered by the transport
type InboundEvent struct {
	TenantID  string
	MessageID string
	Address   string // Remote address (chat the message belongs to)
	FromSelf  bool   // Sent by the tenant's own account
	IsGroup   bool   // Set by transports whose addresses carry no group suffix
	Content   RawContent
	Timestamp time.Time
}

// TransportEventType enumerates events emitted by a transport connection
type TransportEventType string

const (
	TransportPairingCode TransportEventType = "pairing_code"
	TransportConnected   TransportEventType = "connected"
	TransportClosed      TransportEventType = "disconnected"
	TransportCredentials TransportEventType = "credentials"
	TransportMessage     TransportEventType = "message"
)

// DisconnectReason explains why a connection closed
type DisconnectReason string

const (
	DisconnectLoggedOut      DisconnectReason = "logged_out"
	DisconnectConnectionLost DisconnectReason = "connection_lost"
	DisconnectReplaced       DisconnectReason = "replaced"
	DisconnectRestart        DisconnectReason = "restart_required"
	DisconnectClosed         DisconnectReason = "closed"
)

// TransportEvent is one lifecycle or message event from a connection
type TransportEvent struct {
	Type        TransportEventType
	PairingCode string
	Reason      DisconnectReason
	Credentials json.RawMessage
	Message     *InboundEvent
	Err         error
}

// ObserverEventType enumerates realtime observer notifications
type ObserverEventType string

const (
	ObserverPairingCode ObserverEventType = "pairing_code"
	ObserverStatus      ObserverEventType = "status"
	ObserverMessage     ObserverEventType = "message"
	ObserverOrder       ObserverEventType = "order"
)

// ObserverEvent is published to dashboards and other listeners
type ObserverEvent struct {
	Type        ObserverEventType `json:"type"`
	TenantID    string            `json:"tenant_id"`
	PairingCode string            `json:"pairing_code,omitempty"`
	State       ConnectionState   `json:"state,omitempty"`
	Message     *MessageEvent     `json:"message,omitempty"`
	Order       *OrderEvent       `json:"order,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
}

// MessageEvent is the observer view of an audited message
type MessageEvent struct {
	CustomerHash string    `json:"customer_hash"`
	Direction    Direction `json:"direction"`
	Content      string    `json:"content"`
	Timestamp    time.Time `json:"timestamp"`
}

// OrderEvent signals an order-related marker from the dialogue
type OrderEvent struct {
	CustomerHash string `json:"customer_hash"`
	Marker       Marker `json:"marker"`
	Summary      string `json:"summary,omitempty"`
}
