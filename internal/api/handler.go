package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/Raphahf6/raio-x-360-back/internal/biz/domain"
	"github.com/Raphahf6/raio-x-360-back/internal/biz/usecase"
	"github.com/Raphahf6/raio-x-360-back/internal/service"
)

// Backend is the part of the engine the operator API drives
type Backend interface {
	Connect(ctx context.Context, tenantID string) (domain.ConnectionState, error)
	Logout(ctx context.Context, tenantID string) error
	Status(tenantID string) (domain.Session, error)
	Sessions() []domain.Session
	NotifyOrder(ctx context.Context, req usecase.OrderNotification) (bool, error)
	ReplaceCatalog(ctx context.Context, tenantID string, items []domain.CatalogItem) error
}

// Server provides the operator HTTP API
type Server struct {
	backend  Backend
	events   *service.EventHub
	metrics  http.Handler
	upgrader websocket.Upgrader
	logger   *slog.Logger

	server *http.Server
	addr   string
}

// SessionView is the JSON form of a session
type SessionView struct {
	TenantID  string    `json:"tenant_id"`
	State     string    `json:"state"`
	Running   bool      `json:"running"`
	Attempts  int       `json:"attempts"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewServer creates a new API server. metrics may be nil.
func NewServer(backend Backend, events *service.EventHub, metrics http.Handler, addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		backend: backend,
		events:  events,
		metrics: metrics,
		addr:    addr,
		logger:  logger.With("component", "api"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     sameOrigin,
		},
	}
}

// Router builds the route table
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}
	r.Get("/ws", s.handleEvents)

	r.Route("/api", func(r chi.Router) {
		r.Get("/sessions", s.handleSessions)
		r.Route("/tenants/{tenantID}", func(r chi.Router) {
			r.Post("/connect", s.handleConnect)
			r.Post("/logout", s.handleLogout)
			r.Get("/status", s.handleStatus)
			r.Post("/orders/notify", s.handleNotify)
			r.Put("/catalog", s.handleCatalog)
		})
	})
	return r
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("operator api listening", "addr", s.addr)
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// ============ Session Handlers ============

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	state, err := s.backend.Connect(r.Context(), tenantID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]interface{}{"tenant_id": tenantID, "state": state})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	if err := s.backend.Logout(r.Context(), tenantID); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	if err := domain.ValidateTenantID(tenantID); err != nil {
		s.writeError(w, err)
		return
	}
	// Unknown tenants report DISCONNECTED rather than 404
	session, _ := s.backend.Status(tenantID)
	s.writeJSON(w, http.StatusOK, toView(session))
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.backend.Sessions()
	views := make([]SessionView, len(sessions))
	for i, sess := range sessions {
		views[i] = toView(sess)
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": views})
}

// ============ Order / Catalog Handlers ============

func (s *Server) handleNotify(w http.ResponseWriter, r *http.Request) {
	var req usecase.OrderNotification
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req.TenantID = chi.URLParam(r, "tenantID")
	if req.Phone == "" || req.Status == "" {
		http.Error(w, "phone and status are required", http.StatusBadRequest)
		return
	}

	sent, err := s.backend.NotifyOrder(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"sent": sent})
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Items []domain.CatalogItem `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	for _, item := range req.Items {
		if strings.TrimSpace(item.Name) == "" {
			http.Error(w, "item name is required", http.StatusBadRequest)
			return
		}
	}

	if err := s.backend.ReplaceCatalog(r.Context(), chi.URLParam(r, "tenantID"), req.Items); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"items": len(req.Items)})
}

// ============ Observer Stream ============

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant")
	if tenantID != "" {
		if err := domain.ValidateTenantID(tenantID); err != nil {
			s.writeError(w, err)
			return
		}
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sub := s.events.Subscribe(tenantID)
	defer sub.Close()

	// The read side only exists to notice the client going away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case evt, ok := <-sub.C:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(evt); err != nil {
				s.logger.Debug("observer write failed", "error", err)
				return
			}
		}
	}
}

// ============ Helpers ============

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidTenant),
		errors.Is(err, domain.ErrInvalidPhone),
		errors.Is(err, domain.ErrUnknownOrderStatus):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrNotConnected):
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func toView(s domain.Session) SessionView {
	return SessionView{
		TenantID:  s.TenantID,
		State:     string(s.State),
		Running:   s.Running,
		Attempts:  s.Attempts,
		UpdatedAt: s.UpdatedAt,
	}
}

// sameOrigin accepts non-browser clients and same-host browser pages
func sameOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}
