package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Raphahf6/raio-x-360-back/internal/biz/domain"
	"github.com/Raphahf6/raio-x-360-back/internal/biz/repo"
)

// DefaultOrderTemplates are the customer notifications per order status.
// {name} and {order} are substituted.
var DefaultOrderTemplates = map[domain.OrderStatus]string{
	domain.OrderPreparing:  "👨‍🍳 *Olá, {name}!* Seu pedido #{order} acabou de ser aceito e já está sendo preparado com muito carinho!",
	domain.OrderDispatched: "🛵 *Uhuu!* Seu pedido #{order} acabou de sair para entrega. Fique de olho no portão!",
	domain.OrderDelivered:  "✅ Seu pedido #{order} foi marcado como entregue! Muito obrigado por comprar conosco. Até a próxima!",
}

// OrderNotification is a request to tell a customer about an order change
type OrderNotification struct {
	TenantID     string `json:"tenant_id"`
	Phone        string `json:"phone"`
	Status       string `json:"status"`
	OrderNumber  string `json:"order_number"`
	CustomerName string `json:"customer_name"`
}

// OrderNotifier sends order status templates through the tenant's session
type OrderNotifier struct {
	senders   SenderProvider
	audit     repo.AuditRepo
	observer  repo.Observer
	templates map[domain.OrderStatus]string
	logger    *slog.Logger
}

// NewOrderNotifier creates a notifier; nil templates selects the defaults
func NewOrderNotifier(senders SenderProvider, audit repo.AuditRepo, observer repo.Observer, templates map[domain.OrderStatus]string, logger *slog.Logger) *OrderNotifier {
	if templates == nil {
		templates = DefaultOrderTemplates
	}
	if observer == nil {
		observer = nopObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OrderNotifier{
		senders:   senders,
		audit:     audit,
		observer:  observer,
		templates: templates,
		logger:    logger.With("component", "notifier"),
	}
}

// Notify sends the template for the status. Statuses without a template
// are accepted and send nothing (sent=false).
func (n *OrderNotifier) Notify(ctx context.Context, req OrderNotification) (bool, error) {
	status, err := domain.ParseOrderStatus(req.Status)
	if err != nil {
		return false, err
	}
	tmpl, ok := n.templates[status]
	if !ok {
		return false, nil
	}

	address, err := domain.PhoneToAddress(req.Phone)
	if err != nil {
		return false, err
	}

	name := strings.TrimSpace(req.CustomerName)
	if name == "" {
		name = "cliente"
	}
	text := strings.NewReplacer("{name}", name, "{order}", req.OrderNumber).Replace(tmpl)

	if err := n.senders.Sender(req.TenantID).SendText(ctx, address, text); err != nil {
		return false, fmt.Errorf("send order notification: %w", err)
	}

	hash := domain.HashAddress(address)
	now := time.Now()
	if err := n.audit.Append(ctx, domain.NewTurn(req.TenantID, hash, domain.DirectionOut, text, now)); err != nil {
		n.logger.Error("failed to audit order notification", "tenant_id", req.TenantID, "error", err)
	}
	n.observer.Publish(domain.ObserverEvent{
		Type:     domain.ObserverMessage,
		TenantID: req.TenantID,
		Message: &domain.MessageEvent{
			CustomerHash: hash,
			Direction:    domain.DirectionOut,
			Content:      text,
			Timestamp:    now,
		},
		Timestamp: now,
	})

	n.logger.Info("order notification sent", "tenant_id", req.TenantID, "status", status, "order", req.OrderNumber)
	return true, nil
}
