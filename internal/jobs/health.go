package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Ananth-NQI/menuchat-backend/internal/models"
	"github.com/Ananth-NQI/menuchat-backend/internal/services"
)

const sessionExpiredNotice = "⌛ Your order timed out after a period of inactivity. Send any message to start a new one."

// SessionSweeper removes idle conversations.
type SessionSweeper interface {
	SweepExpired(idle time.Duration) []models.SessionKey
}

// ConnectionInspector reports stale tenant connections and can reach
// customers through them.
type ConnectionInspector interface {
	Stale(threshold time.Duration) []models.TenantConnection
	Send(ctx context.Context, tenantID, to, text string) error
}

// HealthConfig tunes the monitor.
type HealthConfig struct {
	Period        time.Duration
	SessionIdle   time.Duration
	StaleAfter    time.Duration
	NotifyExpired bool // Tell customers their session expired, best effort
}

// HealthReport is the outcome of one pass.
type HealthReport struct {
	Expired  []models.SessionKey `json:"expired"`
	Degraded []string            `json:"degraded"`
}

// HealthMonitor periodically sweeps idle sessions and flags stale tenant
// connections. It only observes; reconnecting is left to operators.
type HealthMonitor struct {
	sessions SessionSweeper
	conns    ConnectionInspector
	events   services.EventPublisher
	conf     HealthConfig
	logger   zerolog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

// NewHealthMonitor creates a monitor. Start begins the schedule.
func NewHealthMonitor(sessions SessionSweeper, conns ConnectionInspector, events services.EventPublisher, conf HealthConfig, logger zerolog.Logger) *HealthMonitor {
	return &HealthMonitor{
		sessions: sessions,
		conns:    conns,
		events:   events,
		conf:     conf,
		logger:   logger,
	}
}

// Start runs RunOnce every period until Stop is called or ctx ends. Calling
// Start on a running monitor does nothing.
func (h *HealthMonitor) Start(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cancel != nil {
		h.logger.Debug().Msg("health monitor already running")
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.stopped = make(chan struct{})

	go h.loop(ctx, h.stopped)
	h.logger.Info().Dur("period", h.conf.Period).Msg("health monitor started")
}

// Stop halts the schedule and waits for an in-flight pass to finish.
func (h *HealthMonitor) Stop() {
	h.mu.Lock()
	cancel, stopped := h.cancel, h.stopped
	h.cancel, h.stopped = nil, nil
	h.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-stopped
	h.logger.Info().Msg("health monitor stopped")
}

func (h *HealthMonitor) loop(ctx context.Context, stopped chan struct{}) {
	defer close(stopped)

	ticker := time.NewTicker(h.conf.Period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep and staleness check.
func (h *HealthMonitor) RunOnce(ctx context.Context) HealthReport {
	var report HealthReport

	report.Expired = h.sessions.SweepExpired(h.conf.SessionIdle)
	if len(report.Expired) > 0 {
		h.logger.Info().Int("count", len(report.Expired)).Msg("expired idle sessions")
	}
	if h.conf.NotifyExpired {
		for _, key := range report.Expired {
			if err := h.conns.Send(ctx, key.TenantID, key.Address, sessionExpiredNotice); err != nil {
				h.logger.Debug().Err(err).Str("session", key.String()).Msg("could not send expiry notice")
			}
		}
	}

	for _, conn := range h.conns.Stale(h.conf.StaleAfter) {
		report.Degraded = append(report.Degraded, conn.TenantID)
		h.logger.Warn().
			Str("tenant_id", conn.TenantID).
			Str("status", string(conn.Status)).
			Time("last_connected", conn.LastConnected).
			Msg("tenant connection looks stale")
		if h.events != nil {
			h.events.Publish(models.OperatorEvent{
				Type:     models.EventDegraded,
				TenantID: conn.TenantID,
				Detail:   string(conn.Status),
			})
		}
	}
	return report
}
