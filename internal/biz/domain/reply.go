package domain

import (
	"regexp"
	"strconv"
	"strings"
)

// LabelDelimiter separates the reply body from its quick-reply labels
const LabelDelimiter = "|||"

// Marker is an inline control directive emitted by the responder
type Marker string

const (
	MarkerHuman          Marker = "HUMAN"
	MarkerPaymentPending Marker = "PAYMENT_PENDING"
)

var markerAliases = map[string]Marker{
	"HUMANO":             MarkerHuman,
	"HUMAN":              MarkerHuman,
	"PAGAMENTO_PENDENTE": MarkerPaymentPending,
	"PAYMENT_PENDING":    MarkerPaymentPending,
}

var (
	markerRegex     = regexp.MustCompile(`(?i)\[(HUMANO|HUMAN|PAGAMENTO_PENDENTE|PAYMENT_PENDING)\]`)
	blankLinesRegex = regexp.MustCompile(`\n{3,}`)
)

// Reply is the parsed responder output
type Reply struct {
	Body    string
	Labels  []string
	Markers []Marker
}

// Has reports whether the reply carried the marker
func (r Reply) Has(m Marker) bool {
	for _, got := range r.Markers {
		if got == m {
			return true
		}
	}
	return false
}

// ParseReply splits body and labels and strips control markers.
// Labels are returned trimmed with empties dropped; capping is left to the renderer.
func ParseReply(raw string) Reply {
	var reply Reply

	seen := make(map[Marker]bool)
	for _, match := range markerRegex.FindAllStringSubmatch(raw, -1) {
		m := markerAliases[strings.ToUpper(match[1])]
		if !seen[m] {
			seen[m] = true
			reply.Markers = append(reply.Markers, m)
		}
	}
	text := markerRegex.ReplaceAllString(raw, "")

	body, labelPart, found := strings.Cut(text, LabelDelimiter)
	if found {
		reply.Labels = SplitLabels(labelPart)
	}

	body = blankLinesRegex.ReplaceAllString(body, "\n\n")
	reply.Body = strings.TrimSpace(body)
	return reply
}

// SplitLabels splits a comma-separated label list
func SplitLabels(s string) []string {
	var labels []string
	for _, part := range strings.Split(s, ",") {
		if label := strings.TrimSpace(part); label != "" {
			labels = append(labels, label)
		}
	}
	return labels
}

// MessageKind distinguishes outbound representations
type MessageKind string

const (
	KindText        MessageKind = "text"
	KindInteractive MessageKind = "interactive"
)

// OutboundMessage is a rendered reply ready for the transport
type OutboundMessage struct {
	Kind   MessageKind
	Body   string
	Labels []string
}

// IsInteractive reports whether quick-reply buttons are attached
func (m OutboundMessage) IsInteractive() bool {
	return m.Kind == KindInteractive && len(m.Labels) > 0
}

// Text returns the textual fallback: body followed by a numbered list
func (m OutboundMessage) Text() string {
	if len(m.Labels) == 0 {
		return m.Body
	}
	var sb strings.Builder
	sb.WriteString(m.Body)
	sb.WriteString("\n")
	for i, label := range m.Labels {
		sb.WriteString("\n")
		sb.WriteString(strconv.Itoa(i+1) + ". " + label)
	}
	return sb.String()
}

