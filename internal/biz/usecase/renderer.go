package usecase

import (
	"strings"

	"github.com/Raphahf6/raio-x-360-back/internal/biz/domain"
)

const (
	// MaxQuickReplies is the transport's button limit
	MaxQuickReplies = 3
	// MaxLabelRunes is the transport's button title limit
	MaxLabelRunes = 20
)

// Renderer turns a reply body and candidate labels into an outbound message
type Renderer struct {
	maxLabels   int
	maxLabelLen int
}

// NewRenderer creates a renderer with transport limits
func NewRenderer() *Renderer {
	return &Renderer{
		maxLabels:   MaxQuickReplies,
		maxLabelLen: MaxLabelRunes,
	}
}

// Render produces plain text when no usable label remains, otherwise an
// interactive quick-reply with at most three labels of at most 20 runes.
func (r *Renderer) Render(body string, labels []string) domain.OutboundMessage {
	usable := r.labels(labels)
	if len(usable) == 0 {
		return domain.OutboundMessage{Kind: domain.KindText, Body: body}
	}
	return domain.OutboundMessage{
		Kind:   domain.KindInteractive,
		Body:   body,
		Labels: usable,
	}
}

// RenderText returns the textual fallback of the same reply
func (r *Renderer) RenderText(body string, labels []string) string {
	return r.Render(body, labels).Text()
}

func (r *Renderer) labels(labels []string) []string {
	var out []string
	for _, label := range labels {
		label = strings.TrimSpace(label)
		if label == "" {
			continue
		}
		if runes := []rune(label); len(runes) > r.maxLabelLen {
			label = strings.TrimSpace(string(runes[:r.maxLabelLen]))
		}
		out = append(out, label)
		if len(out) == r.maxLabels {
			break
		}
	}
	return out
}
