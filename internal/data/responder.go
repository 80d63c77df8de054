package data

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Raphahf6/raio-x-360-back/internal/biz/domain"
	"github.com/Raphahf6/raio-x-360-back/internal/biz/repo"
	"github.com/Raphahf6/raio-x-360-back/internal/infra/llm"
)

// DefaultResponderPrompt is the sales-assistant persona. The catalog block is appended to it.
const DefaultResponderPrompt = `Você é o assistente virtual de vendas de uma adega de bebidas delivery via WhatsApp.
Seja simpático, rápido e persuasivo. Use linguagem natural de WhatsApp (brasileiro), com emojis de forma moderada.

SUA MISSÃO:
1. Tirar dúvidas sobre o cardápio.
2. Fazer upsell (se o cliente pedir combo de destilado, ofereça gelo e energético; se pedir cerveja, ofereça amendoim/carvão, desde que tenha no catálogo).
3. Anotar o pedido completo.
4. Calcular o total da compra.
5. Solicitar o endereço de entrega completo.
6. Solicitar a forma de pagamento (Dinheiro, Cartão na entrega, ou Pix).

REGRAS RÍGIDAS:
- NUNCA invente produtos ou preços. Use APENAS o catálogo fornecido abaixo.
- Se o cliente pedir algo que não está no catálogo, diga educadamente que não temos e ofereça uma alternativa similar.
- Responda de forma concisa. Textões não funcionam bem no WhatsApp.

FORMATO DA RESPOSTA:
- Se quiser sugerir botões, termine com ||| seguido de até 3 opções curtas separadas por vírgula (ex: Texto ||| Ver cardápio, Fechar pedido).
- Se o cliente pedir um atendente humano, inclua [HUMANO] na resposta.
- Quando o pedido estiver fechado aguardando pagamento, inclua [PAGAMENTO_PENDENTE].`

const (
	catalogHeader       = "CATÁLOGO DE PRODUTOS DISPONÍVEIS:\n"
	catalogEmpty        = "Nenhum produto cadastrado no momento.\n"
	defaultHistoryLimit = 10
	defaultHistoryAge   = 24 * time.Hour
)

// ChatCompleter is the completion backend used by the responder
type ChatCompleter interface {
	Complete(ctx context.Context, messages []llm.Message) (string, error)
}

// ResponderOptions configures prompt assembly
type ResponderOptions struct {
	Prompt       string
	HistoryLimit int
	HistoryAge   time.Duration
}

// responderRepo implements repo.Responder on a chat completion backend
type responderRepo struct {
	client  ChatCompleter
	catalog repo.CatalogRepo
	audit   repo.AuditRepo
	opts    ResponderOptions
	now     func() time.Time
}

// NewResponderRepo creates the responder
func NewResponderRepo(client ChatCompleter, catalog repo.CatalogRepo, audit repo.AuditRepo, opts ResponderOptions) repo.Responder {
	if client == nil {
		return nil
	}
	if opts.Prompt == "" {
		opts.Prompt = DefaultResponderPrompt
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = defaultHistoryLimit
	}
	if opts.HistoryAge <= 0 {
		opts.HistoryAge = defaultHistoryAge
	}
	return &responderRepo{
		client:  client,
		catalog: catalog,
		audit:   audit,
		opts:    opts,
		now:     time.Now,
	}
}

// Respond builds the prompt from catalog and recent history and asks the model
func (r *responderRepo) Respond(ctx context.Context, tenantID, customerHash string) (string, error) {
	messages, err := r.buildMessages(ctx, tenantID, customerHash)
	if err != nil {
		return "", err
	}

	reply, err := r.client.Complete(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrResponder, err)
	}
	return reply, nil
}

func (r *responderRepo) buildMessages(ctx context.Context, tenantID, customerHash string) ([]llm.Message, error) {
	items, err := r.catalog.ListAvailable(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	history, err := r.audit.Recent(ctx, tenantID, customerHash, r.now().Add(-r.opts.HistoryAge), r.opts.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	messages := make([]llm.Message, 0, len(history)+1)
	messages = append(messages, llm.Message{
		Role:    llm.RoleSystem,
		Content: r.opts.Prompt + "\n\n" + CatalogText(items),
	})
	for _, turn := range history {
		messages = append(messages, llm.Message{Role: turn.Role(), Content: turn.Content})
	}
	return messages, nil
}

// CatalogText renders the catalog block of the system prompt
func CatalogText(items []domain.CatalogItem) string {
	var sb strings.Builder
	sb.WriteString(catalogHeader)

	written := 0
	for _, item := range items {
		if !item.Available {
			continue
		}
		fmt.Fprintf(&sb, "- [%s] %s: %s", item.CategoryName(), item.Name, item.PriceLabel())
		if item.Description != "" {
			sb.WriteString(" - " + item.Description)
		}
		sb.WriteString("\n")
		written++
	}
	if written == 0 {
		sb.WriteString(catalogEmpty)
	}
	return sb.String()
}

// offlineResponder is used when no completion backend is configured.
// Every turn takes the apology path.
type offlineResponder struct{}

// NewOfflineResponder returns a responder that always fails
func NewOfflineResponder() repo.Responder {
	return offlineResponder{}
}

func (offlineResponder) Respond(ctx context.Context, tenantID, customerHash string) (string, error) {
	return "", fmt.Errorf("%w: no completion backend configured", domain.ErrResponder)
}
