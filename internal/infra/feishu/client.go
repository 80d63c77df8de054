package feishu

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	"github.com/larksuite/oapi-sdk-go/v3/event/dispatcher"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	larkws "github.com/larksuite/oapi-sdk-go/v3/ws"

	"github.com/Raphahf6/raio-x-360-back/internal/biz/domain"
	"github.com/Raphahf6/raio-x-360-back/internal/biz/repo"
)

const (
	eventBuffer = 64
	startGrace  = 3 * time.Second
)

// AppCredential is the per-tenant credential payload for Feishu
type AppCredential struct {
	AppID     string `json:"app_id"`
	AppSecret string `json:"app_secret"`
}

// Transport connects tenants to Feishu bots over the Lark long connection.
// Feishu has no pairing step: a tenant connects with its app credential,
// or with the default app when none is stored.
type Transport struct {
	defaultApp AppCredential
	logger     *slog.Logger
}

// NewTransport creates a Feishu transport
func NewTransport(appID, appSecret string, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{
		defaultApp: AppCredential{AppID: appID, AppSecret: appSecret},
		logger:     logger.With("transport", "feishu"),
	}
}

// Name returns the transport name
func (t *Transport) Name() string {
	return "feishu"
}

// Connect starts the Lark WebSocket client for the tenant
func (t *Transport) Connect(ctx context.Context, tenantID string, cred *domain.Credential) (repo.Conn, error) {
	app := t.defaultApp
	if !cred.IsEmpty() {
		if err := json.Unmarshal(cred.Data, &app); err != nil {
			return nil, fmt.Errorf("%w: decode feishu credential: %w", domain.ErrAuthInvalidated, err)
		}
	}
	if app.AppID == "" || app.AppSecret == "" {
		return nil, fmt.Errorf("%w: feishu app credentials not configured", domain.ErrTransport)
	}

	runCtx, cancel := context.WithCancel(ctx)
	c := &conn{
		tenantID: tenantID,
		larkCli:  lark.NewClient(app.AppID, app.AppSecret),
		events:   make(chan domain.TransportEvent, eventBuffer),
		done:     make(chan struct{}),
		cancel:   cancel,
		logger:   t.logger.With("tenant", tenantID),
	}

	// Must return quickly so the SDK can ACK, otherwise Feishu retries the delivery
	eventHandler := dispatcher.NewEventDispatcher("", "").
		OnP2MessageReceiveV1(func(ctx context.Context, event *larkim.P2MessageReceiveV1) error {
			if evt := toInboundEvent(event); evt != nil {
				evt.TenantID = tenantID
				go c.emit(domain.TransportEvent{Type: domain.TransportMessage, Message: evt})
			}
			return nil
		})

	wsCli := larkws.NewClient(app.AppID, app.AppSecret,
		larkws.WithEventHandler(eventHandler),
		larkws.WithLogLevel(larkcore.LogLevelInfo),
	)

	c.logger.Info("starting feishu websocket connection", "app_id", app.AppID)

	// Start blocks while the connection is healthy and only returns on failure
	errCh := make(chan error, 1)
	go func() {
		errCh <- wsCli.Start(runCtx)
	}()

	select {
	case err := <-errCh:
		cancel()
		return nil, fmt.Errorf("%w: start feishu websocket: %w", domain.ErrTransport, err)
	case <-ctx.Done():
		cancel()
		return nil, ctx.Err()
	case <-time.After(startGrace):
	}

	go func() {
		c.finish(<-errCh)
	}()

	c.emit(domain.TransportEvent{Type: domain.TransportConnected})
	return c, nil
}

// conn is one tenant's Feishu bot connection
type conn struct {
	tenantID string
	larkCli  *lark.Client
	events   chan domain.TransportEvent
	cancel   context.CancelFunc
	logger   *slog.Logger

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func (c *conn) Events() <-chan domain.TransportEvent {
	return c.events
}

// SendText sends a text message to a chat
func (c *conn) SendText(ctx context.Context, chatID, text string) error {
	content, _ := json.Marshal(map[string]string{"text": text})
	return c.create(ctx, chatID, larkim.MsgTypeText, string(content))
}

// SendInteractive sends the reply as a post with the options as a numbered list.
// Feishu quick replies need card callbacks, which this bot does not subscribe to.
func (c *conn) SendInteractive(ctx context.Context, chatID string, msg domain.OutboundMessage) error {
	content, err := json.Marshal(buildPost(msg))
	if err != nil {
		return fmt.Errorf("marshal feishu post: %w", err)
	}
	return c.create(ctx, chatID, larkim.MsgTypePost, string(content))
}

// SetTyping is a no-op, Feishu has no typing indicator for bots
func (c *conn) SetTyping(ctx context.Context, chatID string, typing bool) error {
	return nil
}

func (c *conn) Close() error {
	c.cancel()
	c.finish(nil)
	return nil
}

func (c *conn) create(ctx context.Context, chatID, msgType, content string) error {
	select {
	case <-c.done:
		return domain.ErrNotConnected
	default:
	}

	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(larkim.ReceiveIdTypeChatId).
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(chatID).
			MsgType(msgType).
			Content(content).
			Build()).
		Build()

	resp, err := c.larkCli.Im.Message.Create(ctx, req)
	if err != nil {
		return fmt.Errorf("%w: send feishu message: %w", domain.ErrTransport, err)
	}
	if !resp.Success() {
		return fmt.Errorf("%w: send feishu message: %s", domain.ErrTransport, resp.Msg)
	}

	c.logger.Debug("feishu message sent", "chat_id", chatID, "msg_type", msgType)
	return nil
}

func (c *conn) emit(evt domain.TransportEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.events <- evt:
	default:
		c.logger.Warn("feishu event dropped, consumer is behind", "type", evt.Type)
	}
}

// finish emits the single disconnected event and closes the channel.
// larkws offers no shutdown, so the Start goroutine may outlive Close.
func (c *conn) finish(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)

	reason := domain.DisconnectClosed
	if err != nil {
		reason = domain.DisconnectConnectionLost
		c.logger.Warn("feishu websocket stopped", "error", err)
	}
	select {
	case c.events <- domain.TransportEvent{Type: domain.TransportClosed, Reason: reason, Err: err}:
	default:
	}
	close(c.events)
}

// toInboundEvent converts a Feishu receive event; nil for unsupported messages
func toInboundEvent(event *larkim.P2MessageReceiveV1) *domain.InboundEvent {
	if event == nil || event.Event == nil || event.Event.Message == nil {
		return nil
	}
	rawMsg := event.Event.Message
	if rawMsg.ChatId == nil || rawMsg.MessageType == nil || rawMsg.Content == nil {
		return nil
	}

	evt := &domain.InboundEvent{
		Address:   *rawMsg.ChatId,
		IsGroup:   rawMsg.ChatType != nil && *rawMsg.ChatType == "group",
		Timestamp: time.Now(),
	}
	if rawMsg.MessageId != nil {
		evt.MessageID = *rawMsg.MessageId
	}
	// Sender type "app" is the bot itself
	if s := event.Event.Sender; s != nil && s.SenderType != nil && *s.SenderType == "app" {
		evt.FromSelf = true
	}
	// Create time is a millisecond unix timestamp
	if rawMsg.CreateTime != nil {
		if ts, err := strconv.ParseInt(*rawMsg.CreateTime, 10, 64); err == nil {
			evt.Timestamp = time.UnixMilli(ts)
		}
	}

	switch *rawMsg.MessageType {
	case "text":
		evt.Content.Conversation = parseTextContent(*rawMsg.Content)
	case "post":
		evt.Content.ExtendedText = parsePostContent(*rawMsg.Content)
	default:
		return nil
	}
	return evt
}

// parseTextContent extracts text from a text message
func parseTextContent(content string) string {
	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return ""
	}
	return parsed.Text
}

// parsePostContent flattens the text runs of a rich text message
func parsePostContent(content string) string {
	var parsed struct {
		Title   string `json:"title"`
		Content [][]struct {
			Tag  string `json:"tag"`
			Text string `json:"text,omitempty"`
		} `json:"content"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return ""
	}

	var lines []string
	if parsed.Title != "" {
		lines = append(lines, parsed.Title)
	}
	for _, line := range parsed.Content {
		var sb strings.Builder
		for _, elem := range line {
			if elem.Tag == "text" {
				sb.WriteString(elem.Text)
			}
		}
		if sb.Len() > 0 {
			lines = append(lines, sb.String())
		}
	}
	return strings.Join(lines, "\n")
}

// buildPost renders an outbound message as a Feishu post body
func buildPost(msg domain.OutboundMessage) map[string]any {
	var content [][]map[string]any
	for _, line := range strings.Split(msg.Body, "\n") {
		content = append(content, []map[string]any{{"tag": "text", "text": line}})
	}
	for i, label := range msg.Labels {
		content = append(content, []map[string]any{{"tag": "text", "text": strconv.Itoa(i+1) + ". " + label}})
	}
	return map[string]any{
		"zh_cn": map[string]any{
			"title":   "",
			"content": content,
		},
	}
}
