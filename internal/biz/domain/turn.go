package domain

import (
	"time"

	"github.com/google/uuid"
)

// Direction of an audited message
type Direction string

const (
	DirectionIn  Direction = "IN"
	DirectionOut Direction = "OUT"
)

// Turn is one append-only audit record
type Turn struct {
	ID           string
	TenantID     string
	CustomerHash string
	Direction    Direction
	Content      string
	Timestamp    time.Time
}

// NewTurn creates an audit record with a fresh id
func NewTurn(tenantID, customerHash string, dir Direction, content string, ts time.Time) *Turn {
	return &Turn{
		ID:           uuid.NewString(),
		TenantID:     tenantID,
		CustomerHash: customerHash,
		Direction:    dir,
		Content:      content,
		Timestamp:    ts,
	}
}

// Role maps the direction to a chat-completion role
func (t *Turn) Role() string {
	if t.Direction == DirectionIn {
		return "user"
	}
	return "assistant"
}

// InboundText is a single customer text fragment after dispatch
type InboundText struct {
	Key        CustomerKey
	Address    string // Raw transport address, used only to reply
	Text       string
	ReceivedAt time.Time
}

// CombinedTurn is the result of a debounce flush
type CombinedTurn struct {
	Key       CustomerKey
	Address   string
	Text      string   // Fragments joined with "\n"
	Fragments []string // In arrival order
	FirstAt   time.Time
	FlushedAt time.Time
}
