package repo

import (
	"context"

	"github.com/Raphahf6/raio-x-360-back/internal/biz/domain"
)

// Transport is the messaging transport interface
// Responsible for opening one connection per tenant
type Transport interface {
	// Name returns the transport name (whatsapp, feishu)
	Name() string

	// Connect opens a connection using the stored credential (nil starts pairing).
	// The connection reports its lifecycle through Events.
	Connect(ctx context.Context, tenantID string, cred *domain.Credential) (Conn, error)
}

// Conn is a live transport connection
type Conn interface {
	// Events delivers pairing, lifecycle and message events.
	// The channel is closed after the disconnected event.
	Events() <-chan domain.TransportEvent

	// SendText sends a plain text message
	SendText(ctx context.Context, to, text string) error

	// SendInteractive sends a message with quick-reply buttons
	SendInteractive(ctx context.Context, to string, msg domain.OutboundMessage) error

	// SetTyping toggles the composing indicator
	SetTyping(ctx context.Context, to string, typing bool) error

	// Close closes the connection without logging out
	Close() error
}
