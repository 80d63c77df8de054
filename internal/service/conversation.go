package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Raphahf6/raio-x-360-back/internal/biz/domain"
	"github.com/Raphahf6/raio-x-360-back/internal/biz/repo"
	"github.com/Raphahf6/raio-x-360-back/internal/biz/usecase"
	"github.com/Raphahf6/raio-x-360-back/internal/observability"
)

// TurnHandler runs the dialogue for one combined turn
type TurnHandler interface {
	HandleTurn(ctx context.Context, turn domain.CombinedTurn) (*usecase.TurnOutcome, error)
}

// ConversationService wires inbound events through dispatch, debounce and dialogue
type ConversationService struct {
	dialogue   TurnHandler
	dispatcher *usecase.Dispatcher
	debouncer  *usecase.Debouncer
	metrics    *observability.Metrics
	logger     *slog.Logger

	// Turns for the same customer never overlap
	states   map[domain.CustomerKey]*customerState
	statesMu sync.Mutex

	baseCtx context.Context
	cancel  context.CancelFunc
}

// customerState serializes turns for one customer
type customerState struct {
	mu   sync.Mutex
	refs int
}

// NewConversationService creates a new conversation service.
// metrics may be nil.
func NewConversationService(
	dialogue TurnHandler,
	audit repo.AuditRepo,
	observer repo.Observer,
	window time.Duration,
	metrics *observability.Metrics,
	logger *slog.Logger,
) *ConversationService {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &ConversationService{
		dialogue: dialogue,
		metrics:  metrics,
		logger:   logger.With("component", "conversation"),
		states:   make(map[domain.CustomerKey]*customerState),
		baseCtx:  ctx,
		cancel:   cancel,
	}
	s.debouncer = usecase.NewDebouncer(window, s.handleTurn)
	s.dispatcher = usecase.NewDispatcher(audit, observer, s.debouncer, logger)
	return s
}

// HandleInbound is the session manager's inbound handler
func (s *ConversationService) HandleInbound(ctx context.Context, evt *domain.InboundEvent) {
	result := s.dispatcher.Dispatch(ctx, evt)
	if s.metrics != nil {
		s.metrics.InboundEvents.WithLabelValues(string(result)).Inc()
	}
}

// Pending returns the number of customers with buffered fragments
func (s *ConversationService) Pending() int {
	return s.debouncer.Pending()
}

// Close flushes every pending buffer and waits for in-flight turns, including
// those a debounce timer handed over just before Close. When ctx expires
// first, running turns are cancelled.
func (s *ConversationService) Close(ctx context.Context) error {
	pending := s.debouncer.Pending()
	if pending > 0 {
		s.logger.Info("flushing pending buffers", "count", pending)
	}

	done := make(chan struct{})
	go func() {
		s.debouncer.Close()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		<-done
		return fmt.Errorf("conversation shutdown: %w", ctx.Err())
	}
}

// handleTurn runs on the debouncer's timer goroutine; the debouncer
// accounts for it until it returns.
func (s *ConversationService) handleTurn(turn domain.CombinedTurn) {
	logger := s.logger.With("tenant_id", turn.Key.TenantID, "customer", shortHash(turn.Key.CustomerHash))
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic handling turn", "panic", r)
		}
	}()

	state := s.acquire(turn.Key)
	defer s.release(turn.Key, state)

	start := time.Now()
	outcome, err := s.dialogue.HandleTurn(s.baseCtx, turn)
	if err != nil {
		logger.Error("turn failed", "error", err, "fragments", len(turn.Fragments))
		if s.metrics != nil && errors.Is(err, domain.ErrStorage) {
			s.metrics.TurnsHandled.WithLabelValues("storage_error").Inc()
		}
		return
	}

	logger.Info("turn handled",
		"branch", outcome.Branch,
		"status", outcome.Status,
		"fragments", len(turn.Fragments),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if s.metrics == nil {
		return
	}
	s.metrics.TurnsHandled.WithLabelValues(string(outcome.Branch)).Inc()
	if outcome.ResponderLatency > 0 {
		s.metrics.ObserveResponderLatency(outcome.ResponderLatency)
	}
	if outcome.SendErr != nil {
		kind := "transport"
		if errors.Is(outcome.SendErr, domain.ErrNotConnected) {
			kind = "not_connected"
		}
		s.metrics.SendErrors.WithLabelValues(kind).Inc()
	}
}

func (s *ConversationService) acquire(key domain.CustomerKey) *customerState {
	s.statesMu.Lock()
	state, ok := s.states[key]
	if !ok {
		state = &customerState{}
		s.states[key] = state
	}
	state.refs++
	s.statesMu.Unlock()

	state.mu.Lock()
	return state
}

func (s *ConversationService) release(key domain.CustomerKey, state *customerState) {
	state.mu.Unlock()

	s.statesMu.Lock()
	defer s.statesMu.Unlock()
	state.refs--
	if state.refs == 0 {
		delete(s.states, key)
	}
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
