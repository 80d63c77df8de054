package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Raphahf6/raio-x-360-back/internal/biz/domain"
	"github.com/Raphahf6/raio-x-360-back/internal/biz/repo"
)

// DialogueConfig contains dialogue state machine configuration
type DialogueConfig struct {
	InactivityWindow time.Duration // Silence after which the menu is shown again
	ResponderTimeout time.Duration // Upper bound on one responder call
	ResetKeywords    []string      // Exact-match (case-insensitive) fragments that reset to LEAD
	HumanKeywords    []string      // Substrings that request a human
	HumanAck         string        // Sent once on entering HUMAN
	Apology          string        // Sent when the responder fails
	RetryLabel       string        // Single label attached to Apology
	StorageApology   string        // Sent when the catalog cannot be read
	Menu             MenuConfig
}

// DefaultDialogueConfig returns the default dialogue configuration
func DefaultDialogueConfig() DialogueConfig {
	return DialogueConfig{
		InactivityWindow: time.Hour,
		ResponderTimeout: 30 * time.Second,
		ResetKeywords:    []string{"oi", "olá", "ola", "menu", "início", "inicio", "hi", "hello", "start"},
		HumanKeywords:    []string{"atendente", "humano", "falar com alguém", "human", "agent"},
		HumanAck:         "Certo! Já chamei um atendente para continuar com você. Aguarde só um instante 🙏",
		Apology:          "Poxa, nosso sistema de atendimento está passando por uma pequena instabilidade. Aguarde um minutinho e mande a mensagem de novo, por favor!",
		RetryLabel:       "Tentar novamente",
		StorageApology:   "Desculpe, tive um problema ao processar sua mensagem.",
		Menu: MenuConfig{
			Greeting:     "Olá! 👋 Seja bem-vindo(a)! Confira nosso cardápio:",
			EmptyCatalog: "Nenhum produto cadastrado no momento.",
			Footer:       "É só me dizer o que deseja 😉",
			Actions:      []string{"Fazer pedido", "Ver promoções", "Falar com atendente"},
		},
	}
}

// TurnBranch names the rule that handled a turn
type TurnBranch string

const (
	BranchInactivityMenu   TurnBranch = "inactivity_menu"
	BranchResetMenu        TurnBranch = "reset_menu"
	BranchHumanAck         TurnBranch = "human_ack"
	BranchHumanSilent      TurnBranch = "human_silent"
	BranchFirstContactMenu TurnBranch = "first_contact_menu"
	BranchResponder        TurnBranch = "responder"
	BranchResponderFailed  TurnBranch = "responder_failed"
)

// TurnOutcome reports what the state machine did with a turn
type TurnOutcome struct {
	Branch           TurnBranch
	Status           domain.CustomerStatus
	Reply            *domain.OutboundMessage // nil when nothing was sent
	Markers          []domain.Marker
	ResponderLatency time.Duration
	SendErr          error
}

// DialogueUsecase runs the per-customer dialogue state machine
type DialogueUsecase struct {
	customers repo.CustomerRepo
	audit     repo.AuditRepo
	catalog   repo.CatalogRepo
	responder repo.Responder
	senders   SenderProvider
	observer  repo.Observer
	renderer  *Renderer
	config    DialogueConfig
	logger    *slog.Logger
	now       func() time.Time
}

// NewDialogueUsecase creates a new dialogue usecase
func NewDialogueUsecase(
	customers repo.CustomerRepo,
	audit repo.AuditRepo,
	catalog repo.CatalogRepo,
	responder repo.Responder,
	senders SenderProvider,
	observer repo.Observer,
	config DialogueConfig,
	logger *slog.Logger,
) *DialogueUsecase {
	if observer == nil {
		observer = nopObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DialogueUsecase{
		customers: customers,
		audit:     audit,
		catalog:   catalog,
		responder: responder,
		senders:   senders,
		observer:  observer,
		renderer:  NewRenderer(),
		config:    config,
		logger:    logger.With("component", "dialogue"),
		now:       time.Now,
	}
}

// HandleTurn evaluates the rules in order and sends at most one reply.
// The IN audit record is written before any send, the OUT record after.
func (uc *DialogueUsecase) HandleTurn(ctx context.Context, turn domain.CombinedTurn) (*TurnOutcome, error) {
	key := turn.Key
	now := uc.now()
	log := uc.logger.With("tenant_id", key.TenantID, "customer_hash", shortHash(key.CustomerHash))

	prev, isNew, err := uc.customers.UpsertContact(ctx, key.TenantID, key.CustomerHash, now)
	if err != nil {
		return nil, fmt.Errorf("upsert customer: %w: %w", domain.ErrStorage, err)
	}

	uc.record(ctx, key, domain.DirectionIn, turn.Text, now)

	status := domain.StatusLead
	if prev != nil && prev.Status != "" {
		status = prev.Status
	}
	outcome := &TurnOutcome{Status: status}

	switch {
	case !isNew && prev.IsInactive(now, uc.config.InactivityWindow):
		outcome.Branch = BranchInactivityMenu
		uc.forceLead(ctx, key, outcome)
		uc.sendMenu(ctx, turn, outcome)

	case matchesExact(turn.Fragments, uc.config.ResetKeywords):
		outcome.Branch = BranchResetMenu
		uc.forceLead(ctx, key, outcome)
		uc.sendMenu(ctx, turn, outcome)

	case isNew:
		// A first contact always gets the menu, whatever the text says
		outcome.Branch = BranchFirstContactMenu
		uc.sendMenu(ctx, turn, outcome)

	case status == domain.StatusHuman:
		outcome.Branch = BranchHumanSilent

	case matchesContains(turn.Fragments, uc.config.HumanKeywords):
		outcome.Branch = BranchHumanAck
		uc.setStatus(ctx, key, domain.StatusHuman, outcome)
		uc.send(ctx, turn, uc.renderer.Render(uc.config.HumanAck, nil), outcome)

	default:
		uc.delegate(ctx, turn, outcome)
	}

	log.Debug("turn handled", "branch", outcome.Branch, "status", outcome.Status, "fragments", len(turn.Fragments))
	return outcome, nil
}

// delegate calls the responder under a timeout and renders its reply
func (uc *DialogueUsecase) delegate(ctx context.Context, turn domain.CombinedTurn, outcome *TurnOutcome) {
	key := turn.Key
	sender := uc.senders.Sender(key.TenantID)

	_ = sender.SetTyping(ctx, turn.Address, true)
	rctx, cancel := context.WithTimeout(ctx, uc.config.ResponderTimeout)
	start := time.Now()
	raw, err := uc.responder.Respond(rctx, key.TenantID, key.CustomerHash)
	outcome.ResponderLatency = time.Since(start)
	cancel()
	_ = sender.SetTyping(ctx, turn.Address, false)

	reply := domain.ParseReply(raw)
	if err == nil && reply.Body == "" && !reply.Has(domain.MarkerHuman) {
		err = errors.New("empty reply")
	}
	if err != nil {
		uc.logger.Warn("responder failed, sending apology",
			"tenant_id", key.TenantID,
			"error", fmt.Errorf("%w: %w", domain.ErrResponder, err),
		)
		outcome.Branch = BranchResponderFailed
		uc.send(ctx, turn, uc.renderer.Render(uc.config.Apology, []string{uc.config.RetryLabel}), outcome)
		return
	}

	outcome.Branch = BranchResponder
	outcome.Markers = reply.Markers

	body := reply.Body
	if reply.Has(domain.MarkerHuman) {
		uc.setStatus(ctx, key, domain.StatusHuman, outcome)
		if body == "" {
			body = uc.config.HumanAck
		}
	}
	if reply.Has(domain.MarkerPaymentPending) {
		uc.observer.Publish(domain.ObserverEvent{
			Type:     domain.ObserverOrder,
			TenantID: key.TenantID,
			Order: &domain.OrderEvent{
				CustomerHash: key.CustomerHash,
				Marker:       domain.MarkerPaymentPending,
				Summary:      body,
			},
			Timestamp: uc.now(),
		})
	}

	uc.send(ctx, turn, uc.renderer.Render(body, reply.Labels), outcome)
}

// sendMenu sends the catalog menu, or a plain apology if the catalog is unreadable
func (uc *DialogueUsecase) sendMenu(ctx context.Context, turn domain.CombinedTurn, outcome *TurnOutcome) {
	items, err := uc.catalog.ListAvailable(ctx, turn.Key.TenantID)
	if err != nil {
		uc.logger.Error("failed to read catalog", "tenant_id", turn.Key.TenantID, "error", err)
		uc.send(ctx, turn, uc.renderer.Render(uc.config.StorageApology, nil), outcome)
		return
	}
	body, labels := BuildMenu(items, uc.config.Menu)
	uc.send(ctx, turn, uc.renderer.Render(body, labels), outcome)
}

// send delivers the message, falling back to text when the interactive form
// is rejected, then audits it as OUT
func (uc *DialogueUsecase) send(ctx context.Context, turn domain.CombinedTurn, msg domain.OutboundMessage, outcome *TurnOutcome) {
	sender := uc.senders.Sender(turn.Key.TenantID)

	var err error
	if msg.IsInteractive() {
		err = sender.SendInteractive(ctx, turn.Address, msg)
		if err != nil && !errors.Is(err, domain.ErrNotConnected) {
			uc.logger.Warn("interactive send failed, using text fallback", "tenant_id", turn.Key.TenantID, "error", err)
			err = sender.SendText(ctx, turn.Address, msg.Text())
		}
	} else {
		err = sender.SendText(ctx, turn.Address, msg.Body)
	}
	if err != nil {
		uc.logger.Error("failed to send reply", "tenant_id", turn.Key.TenantID, "error", err)
	}

	outcome.Reply = &msg
	outcome.SendErr = err
	uc.record(ctx, turn.Key, domain.DirectionOut, msg.Text(), uc.now())
}

func (uc *DialogueUsecase) forceLead(ctx context.Context, key domain.CustomerKey, outcome *TurnOutcome) {
	if outcome.Status != domain.StatusLead {
		uc.setStatus(ctx, key, domain.StatusLead, outcome)
	}
}

func (uc *DialogueUsecase) setStatus(ctx context.Context, key domain.CustomerKey, status domain.CustomerStatus, outcome *TurnOutcome) {
	if err := uc.customers.UpdateStatus(ctx, key.TenantID, key.CustomerHash, status); err != nil {
		uc.logger.Error("failed to update customer status", "tenant_id", key.TenantID, "status", status, "error", err)
		return
	}
	outcome.Status = status
}

// record appends an audit turn and notifies observers
func (uc *DialogueUsecase) record(ctx context.Context, key domain.CustomerKey, dir domain.Direction, content string, ts time.Time) {
	turn := domain.NewTurn(key.TenantID, key.CustomerHash, dir, content, ts)
	if err := uc.audit.Append(ctx, turn); err != nil {
		uc.logger.Error("failed to append audit", "tenant_id", key.TenantID, "direction", dir, "error", err)
	}
	uc.observer.Publish(domain.ObserverEvent{
		Type:     domain.ObserverMessage,
		TenantID: key.TenantID,
		Message: &domain.MessageEvent{
			CustomerHash: key.CustomerHash,
			Direction:    dir,
			Content:      content,
			Timestamp:    ts,
		},
		Timestamp: ts,
	})
}

func matchesExact(fragments, keywords []string) bool {
	for _, f := range fragments {
		f = strings.TrimSpace(f)
		for _, kw := range keywords {
			if strings.EqualFold(f, strings.TrimSpace(kw)) {
				return true
			}
		}
	}
	return false
}

func matchesContains(fragments, keywords []string) bool {
	for _, f := range fragments {
		f = strings.ToLower(f)
		for _, kw := range keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" && strings.Contains(f, kw) {
				return true
			}
		}
	}
	return false
}

func shortHash(h string) string {
	if len(h) <= 12 {
		return h
	}
	return h[:12]
}
