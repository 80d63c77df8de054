package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Raphahf6/raio-x-360-back/internal/biz/domain"
	"github.com/Raphahf6/raio-x-360-back/internal/biz/repo"
	"github.com/Raphahf6/raio-x-360-back/internal/biz/usecase"
	"github.com/Raphahf6/raio-x-360-back/internal/conf"
	"github.com/Raphahf6/raio-x-360-back/internal/data"
	"github.com/Raphahf6/raio-x-360-back/internal/infra/feishu"
	"github.com/Raphahf6/raio-x-360-back/internal/infra/llm"
	"github.com/Raphahf6/raio-x-360-back/internal/infra/whatsapp"
	"github.com/Raphahf6/raio-x-360-back/internal/observability"
	"github.com/Raphahf6/raio-x-360-back/internal/service"
)

const metricsNamespace = "salesbridge"

// Engine owns the session registry and every long-lived component
type Engine struct {
	repos        *data.Repositories
	sessions     *usecase.SessionManager
	conversation *service.ConversationService
	notifier     *usecase.OrderNotifier
	events       *service.EventHub
	reviver      *service.SessionReviver
	metrics      *observability.Metrics
	logger       *slog.Logger
}

// NewEngine builds the engine from configuration
func NewEngine(ctx context.Context, cfg *conf.Config, logger *slog.Logger) (*Engine, error) {
	repos, err := data.NewRepositories(ctx, cfg.Storage.ToDataOptions(), logger)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	transport, err := newTransport(cfg, logger)
	if err != nil {
		repos.Close()
		return nil, err
	}

	var responder repo.Responder
	if cfg.Responder.APIKey != "" {
		client := llm.NewClient(cfg.Responder.ToLLMOptions())
		responder = data.NewResponderRepo(client, repos.Catalog, repos.Audit, cfg.ToResponderOptions())
		logger.Info("responder configured", "model", client.Model())
	} else {
		responder = data.NewOfflineResponder()
		logger.Warn("OPENAI_API_KEY not set, responder turns will send the apology")
	}

	return NewEngineWith(repos, transport, responder, cfg, logger), nil
}

// NewEngineWith wires an engine around already constructed dependencies
func NewEngineWith(repos *data.Repositories, transport repo.Transport, responder repo.Responder, cfg *conf.Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	metrics := observability.NewMetrics(metricsNamespace)
	events := service.NewEventHub(metrics, logger)
	registry := usecase.NewSessionRegistry()

	sessions := usecase.NewSessionManager(
		registry,
		transport,
		repos.Credentials,
		repos.Tenants,
		events,
		cfg.Session.ToSessionConfig(),
		logger,
	)

	dialogue := usecase.NewDialogueUsecase(
		repos.Customers,
		repos.Audit,
		repos.Catalog,
		responder,
		registry,
		events,
		cfg.ToDialogueConfig(),
		logger,
	)

	conversation := service.NewConversationService(dialogue, repos.Audit, events, cfg.DebounceWindow(), metrics, logger)
	sessions.SetInboundHandler(conversation.HandleInbound)

	metrics.RegisterGaugeFunc(metricsNamespace, "active_sessions", "Sessions currently connected.", func() float64 {
		return float64(registry.CountByState(domain.StateConnected))
	})
	metrics.RegisterGaugeFunc(metricsNamespace, "pending_buffers", "Customers with buffered fragments.", func() float64 {
		return float64(conversation.Pending())
	})

	return &Engine{
		repos:        repos,
		sessions:     sessions,
		conversation: conversation,
		notifier:     usecase.NewOrderNotifier(registry, repos.Audit, events, cfg.OrderTemplates(), logger),
		events:       events,
		reviver:      service.NewSessionReviver(sessions, cfg.ReviveInterval(), logger),
		metrics:      metrics,
		logger:       logger.With("component", "engine"),
	}
}

func newTransport(cfg *conf.Config, logger *slog.Logger) (repo.Transport, error) {
	switch cfg.Transport.Kind {
	case conf.TransportFeishu:
		return feishu.NewTransport(cfg.Transport.FeishuAppID, cfg.Transport.FeishuAppSecret, logger), nil
	case conf.TransportWhatsApp:
		t, err := whatsapp.NewTransport(cfg.Transport.BridgeURL, cfg.Transport.SendRate, logger)
		if err != nil {
			return nil, fmt.Errorf("init whatsapp transport: %w", err)
		}
		return t, nil
	}
	return nil, fmt.Errorf("unknown transport %q", cfg.Transport.Kind)
}

// Start restores persisted sessions and starts background loops
func (e *Engine) Start(ctx context.Context) error {
	restored, err := e.sessions.Restore(ctx)
	if err != nil {
		return err
	}
	e.reviver.Start(ctx)
	e.logger.Info("engine started", "restored_sessions", restored)
	return nil
}

// Stop shuts down in order: reviver, pending turns, sessions, storage.
// Buffered turns are flushed while connections are still live.
// Credentials and persisted statuses are kept so the next boot restores.
func (e *Engine) Stop(ctx context.Context) error {
	e.reviver.Stop()

	var errs []error
	if err := e.conversation.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	e.sessions.StopAll()
	if err := e.repos.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close storage: %w", err))
	}
	e.logger.Info("engine stopped")
	return errors.Join(errs...)
}

// Connect starts or returns the tenant's session
func (e *Engine) Connect(ctx context.Context, tenantID string) (domain.ConnectionState, error) {
	return e.sessions.Start(ctx, tenantID)
}

// Logout discards the tenant's credential and restarts pairing
func (e *Engine) Logout(ctx context.Context, tenantID string) error {
	return e.sessions.Logout(ctx, tenantID)
}

// Status returns the tenant's session snapshot
func (e *Engine) Status(tenantID string) (domain.Session, error) {
	return e.sessions.Status(tenantID)
}

// Sessions returns every session snapshot
func (e *Engine) Sessions() []domain.Session {
	return e.sessions.Sessions()
}

// NotifyOrder sends an order status notification to a customer
func (e *Engine) NotifyOrder(ctx context.Context, req usecase.OrderNotification) (bool, error) {
	if err := domain.ValidateTenantID(req.TenantID); err != nil {
		return false, err
	}
	sent, err := e.notifier.Notify(ctx, req)

	status := "unknown"
	if parsed, perr := domain.ParseOrderStatus(req.Status); perr == nil {
		status = string(parsed)
	}
	outcome := "sent"
	switch {
	case err != nil:
		outcome = "failed"
	case !sent:
		outcome = "skipped"
	}
	e.metrics.OrderNotices.WithLabelValues(status, outcome).Inc()

	return sent, err
}

// ReplaceCatalog swaps the tenant's catalog
func (e *Engine) ReplaceCatalog(ctx context.Context, tenantID string, items []domain.CatalogItem) error {
	if err := domain.ValidateTenantID(tenantID); err != nil {
		return err
	}
	return e.repos.Catalog.Replace(ctx, tenantID, items)
}

// Events returns the observer hub
func (e *Engine) Events() *service.EventHub {
	return e.events
}

// Metrics returns the metrics registry
func (e *Engine) Metrics() *observability.Metrics {
	return e.metrics
}

// drainTimeout bounds the final flush on shutdown
const drainTimeout = 45 * time.Second

// Shutdown stops the engine with the default drain timeout
func (e *Engine) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	return e.Stop(ctx)
}
