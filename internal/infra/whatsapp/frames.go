package whatsapp

import (
	"encoding/json"
	"time"

	"github.com/Raphahf6/raio-x-360-back/internal/biz/domain"
)

// Frame types exchanged with the bridge
const (
	frameInit        = "init"
	frameQR          = "qr"
	frameOpen        = "open"
	frameClose       = "close"
	frameCreds       = "creds"
	frameMessage     = "message"
	frameInteractive = "interactive"
	framePresence    = "presence"
	frameError       = "error"
)

// inboundFrame is any frame the bridge sends us.
// Message frames follow the WAMessage layout (key, message, messageTimestamp).
type inboundFrame struct {
	Type      string          `json:"type"`
	QR        string          `json:"qr,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	Creds     json.RawMessage `json:"creds,omitempty"`
	Error     string          `json:"error,omitempty"`
	Key       *messageKey     `json:"key,omitempty"`
	Message   *messageContent `json:"message,omitempty"`
	Timestamp int64           `json:"messageTimestamp,omitempty"`
}

type messageKey struct {
	ID        string `json:"id"`
	RemoteJID string `json:"remoteJid"`
	FromMe    bool   `json:"fromMe"`
}

type messageContent struct {
	Conversation        string `json:"conversation,omitempty"`
	ExtendedTextMessage *struct {
		Text string `json:"text"`
	} `json:"extendedTextMessage,omitempty"`
	ButtonsResponseMessage *struct {
		SelectedDisplayText string `json:"selectedDisplayText"`
	} `json:"buttonsResponseMessage,omitempty"`
	TemplateButtonReplyMessage *struct {
		SelectedDisplayText string `json:"selectedDisplayText"`
	} `json:"templateButtonReplyMessage,omitempty"`
}

// initFrame opens the session on the bridge, resuming when creds is set
type initFrame struct {
	Type    string          `json:"type"`
	Session string          `json:"session"`
	Creds   json.RawMessage `json:"creds,omitempty"`
}

type textFrame struct {
	Type    string `json:"type"`
	To      string `json:"to"`
	Content string `json:"content"`
}

type button struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type interactiveFrame struct {
	Type     string   `json:"type"`
	To       string   `json:"to"`
	Content  string   `json:"content"`
	Buttons  []button `json:"buttons"`
	Fallback string   `json:"fallback"`
}

type presenceFrame struct {
	Type  string `json:"type"`
	To    string `json:"to"`
	State string `json:"state"` // composing | paused
}

// disconnectReason maps bridge close reasons onto domain reasons
func disconnectReason(reason string) domain.DisconnectReason {
	switch reason {
	case "logged_out", "loggedOut", "401":
		return domain.DisconnectLoggedOut
	case "replaced", "connectionReplaced", "440":
		return domain.DisconnectReplaced
	case "restart_required", "restartRequired", "515":
		return domain.DisconnectRestart
	case "closed", "connectionClosed", "428":
		return domain.DisconnectClosed
	default:
		return domain.DisconnectConnectionLost
	}
}

// toInboundEvent converts a message frame; nil when the frame carries no key
func (f *inboundFrame) toInboundEvent() *domain.InboundEvent {
	if f.Key == nil || f.Key.RemoteJID == "" {
		return nil
	}

	evt := &domain.InboundEvent{
		MessageID: f.Key.ID,
		Address:   f.Key.RemoteJID,
		FromSelf:  f.Key.FromMe,
		IsGroup:   domain.IsGroupAddress(f.Key.RemoteJID),
		Timestamp: time.Now(),
	}
	if f.Timestamp > 0 {
		evt.Timestamp = time.Unix(f.Timestamp, 0)
	}

	if m := f.Message; m != nil {
		evt.Content.Conversation = m.Conversation
		if m.ExtendedTextMessage != nil {
			evt.Content.ExtendedText = m.ExtendedTextMessage.Text
		}
		if m.ButtonsResponseMessage != nil {
			evt.Content.QuickReply = m.ButtonsResponseMessage.SelectedDisplayText
		}
		if m.TemplateButtonReplyMessage != nil {
			evt.Content.TemplateButton = m.TemplateButtonReplyMessage.SelectedDisplayText
		}
	}
	return evt
}
