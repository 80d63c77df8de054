package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Raphahf6/raio-x-360-back/internal/biz/domain"
)

// SessionStarter is the part of the session manager the reviver needs
type SessionStarter interface {
	Sessions() []domain.Session
	Start(ctx context.Context, tenantID string) (domain.ConnectionState, error)
}

// SessionReviver periodically restarts sessions whose supervisor gave up
// after exhausting its reconnect attempts.
type SessionReviver struct {
	sessions SessionStarter
	interval time.Duration
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSessionReviver creates a new reviver. interval <= 0 disables it.
func NewSessionReviver(sessions SessionStarter, interval time.Duration, logger *slog.Logger) *SessionReviver {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionReviver{
		sessions: sessions,
		interval: interval,
		logger:   logger.With("component", "reviver"),
	}
}

// Start starts the revive loop
func (r *SessionReviver) Start(ctx context.Context) {
	if r.interval <= 0 {
		return
	}
	r.ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go r.loop()

	r.logger.Info("session reviver started", "interval", r.interval)
}

// Stop stops the loop and waits for it to exit
func (r *SessionReviver) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

func (r *SessionReviver) loop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.ReviveOnce(r.ctx)
		}
	}
}

// ReviveOnce restarts every stopped session and returns how many were restarted
func (r *SessionReviver) ReviveOnce(ctx context.Context) int {
	revived := 0
	for _, s := range r.sessions.Sessions() {
		if s.Running {
			continue
		}
		if _, err := r.sessions.Start(ctx, s.TenantID); err != nil {
			r.logger.Warn("failed to revive session", "tenant_id", s.TenantID, "error", err)
			continue
		}
		revived++
	}
	if revived > 0 {
		r.logger.Info("sessions revived", "count", revived)
	}
	return revived
}
