package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/Raphahf6/raio-x-360-back/internal/biz/domain"
	"github.com/Raphahf6/raio-x-360-back/internal/biz/repo"
)

const (
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 10 * time.Second
	eventBuffer      = 64
)

// Transport connects tenants to a WhatsApp bridge over WebSocket.
// The bridge runs the WhatsApp Web protocol; each tenant gets its own socket.
type Transport struct {
	bridgeURL     string
	ratePerSecond float64
	logger        *slog.Logger
	dialer        *websocket.Dialer
}

// NewTransport creates a bridge transport. ratePerSecond <= 0 disables send throttling.
func NewTransport(bridgeURL string, ratePerSecond float64, logger *slog.Logger) (*Transport, error) {
	if bridgeURL == "" {
		return nil, fmt.Errorf("whatsapp bridge url is required")
	}
	if _, err := url.Parse(bridgeURL); err != nil {
		return nil, fmt.Errorf("invalid whatsapp bridge url: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = handshakeTimeout

	return &Transport{
		bridgeURL:     bridgeURL,
		ratePerSecond: ratePerSecond,
		logger:        logger.With("transport", "whatsapp"),
		dialer:        &dialer,
	}, nil
}

// Name returns the transport name
func (t *Transport) Name() string {
	return "whatsapp"
}

// Connect dials the bridge and opens the tenant's session.
// A nil credential asks the bridge for a fresh pairing.
func (t *Transport) Connect(ctx context.Context, tenantID string, cred *domain.Credential) (repo.Conn, error) {
	u, err := url.Parse(t.bridgeURL)
	if err != nil {
		return nil, fmt.Errorf("%w: parse bridge url: %w", domain.ErrTransport, err)
	}
	q := u.Query()
	q.Set("session", tenantID)
	u.RawQuery = q.Encode()

	ws, _, err := t.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial whatsapp bridge: %w", domain.ErrTransport, err)
	}

	c := &conn{
		tenantID: tenantID,
		ws:       ws,
		events:   make(chan domain.TransportEvent, eventBuffer),
		done:     make(chan struct{}),
		logger:   t.logger.With("tenant", tenantID),
	}
	if t.ratePerSecond > 0 {
		burst := int(t.ratePerSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(t.ratePerSecond), burst)
	}

	hello := initFrame{Type: frameInit, Session: tenantID}
	if !cred.IsEmpty() {
		hello.Creds = cred.Data
	}
	if err := c.writeJSON(hello); err != nil {
		ws.Close()
		return nil, err
	}

	go c.readLoop()

	c.logger.Info("whatsapp bridge connected", "resume", hello.Creds != nil)
	return c, nil
}

// conn is one tenant's bridge socket
type conn struct {
	tenantID string
	ws       *websocket.Conn
	events   chan domain.TransportEvent
	limiter  *rate.Limiter
	logger   *slog.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

func (c *conn) Events() <-chan domain.TransportEvent {
	return c.events
}

func (c *conn) SendText(ctx context.Context, to, text string) error {
	return c.send(ctx, textFrame{Type: frameMessage, To: to, Content: text})
}

func (c *conn) SendInteractive(ctx context.Context, to string, msg domain.OutboundMessage) error {
	frame := interactiveFrame{
		Type:     frameInteractive,
		To:       to,
		Content:  msg.Body,
		Fallback: msg.Text(),
	}
	for i, label := range msg.Labels {
		frame.Buttons = append(frame.Buttons, button{ID: "btn_" + strconv.Itoa(i+1), Title: label})
	}
	return c.send(ctx, frame)
}

func (c *conn) SetTyping(ctx context.Context, to string, typing bool) error {
	state := "paused"
	if typing {
		state = "composing"
	}
	// Presence updates are not throttled
	return c.writeJSON(presenceFrame{Type: framePresence, To: to, State: state})
}

func (c *conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}

func (c *conn) send(ctx context.Context, frame any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: rate limit wait: %w", domain.ErrTransport, err)
		}
	}
	return c.writeJSON(frame)
}

func (c *conn) writeJSON(frame any) error {
	select {
	case <-c.done:
		return domain.ErrNotConnected
	default:
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal whatsapp frame: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("%w: send whatsapp frame: %w", domain.ErrTransport, err)
	}
	return nil
}

// emit delivers an event unless the connection has been closed locally
func (c *conn) emit(evt domain.TransportEvent) bool {
	select {
	case c.events <- evt:
		return true
	case <-c.done:
		return false
	}
}

// readLoop translates bridge frames into transport events.
// It always finishes with exactly one disconnected event, then closes the channel.
func (c *conn) readLoop() {
	defer close(c.events)

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			reason := domain.DisconnectConnectionLost
			select {
			case <-c.done:
				reason = domain.DisconnectClosed
			default:
				c.logger.Warn("whatsapp read error", "error", err)
			}
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) && closeErr.Text != "" {
				reason = disconnectReason(closeErr.Text)
			}
			c.emit(domain.TransportEvent{Type: domain.TransportClosed, Reason: reason, Err: err})
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			c.logger.Warn("invalid whatsapp frame JSON", "error", err)
			continue
		}

		switch frame.Type {
		case frameQR:
			c.emit(domain.TransportEvent{Type: domain.TransportPairingCode, PairingCode: frame.QR})
		case frameOpen:
			c.emit(domain.TransportEvent{Type: domain.TransportConnected})
		case frameCreds:
			c.emit(domain.TransportEvent{Type: domain.TransportCredentials, Credentials: frame.Creds})
		case frameMessage:
			if evt := frame.toInboundEvent(); evt != nil {
				evt.TenantID = c.tenantID
				c.emit(domain.TransportEvent{Type: domain.TransportMessage, Message: evt})
			}
		case frameClose:
			reason := disconnectReason(frame.Reason)
			var evtErr error
			if reason == domain.DisconnectLoggedOut {
				evtErr = domain.ErrAuthInvalidated
			}
			c.emit(domain.TransportEvent{Type: domain.TransportClosed, Reason: reason, Err: evtErr})
			return
		case frameError:
			c.logger.Warn("whatsapp bridge error", "error", frame.Error)
		default:
			c.logger.Debug("ignoring whatsapp frame", "type", frame.Type)
		}
	}
}
