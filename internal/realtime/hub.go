package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/perimetra/assess/internal/domain"
)

// Message types on the wire.
const (
	TypeConnectionEstablished = "connection_established"
	TypePing                  = "ping"
	TypeProgressUpdate        = "progress_update"
	TypeDashboardUpdate       = "dashboard_update"
	TypeSubscribeAssessment   = "subscribe_assessment"
	TypeGetDashboardUpdate    = "get_dashboard_update"
)

// Envelope is the outbound wire format. Timestamp marshals as RFC 3339.
type Envelope struct {
	Type      string    `json:"type"`
	ProfileID string    `json:"profile_id,omitempty"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ProgressSource is the hub's narrow read surface onto the session manager.
// The polling bridge behind it can later be replaced by a change feed
// without touching fan-out.
type ProgressSource interface {
	ProgressSummary(ctx context.Context, workflowID string) (*domain.ProgressSummary, error)
	DetailedProgress(ctx context.Context, workflowID string) (*domain.DetailedProgress, error)
}

// Hub drives the two periodic loops over the registry: heartbeat eviction
// and progress push. Each loop is a single goroutine whose tick body runs
// synchronously, so ticks never overlap.
type Hub struct {
	registry  *Registry
	progress  ProgressSource
	sweepEach time.Duration
	pingMax   time.Duration
	pushEach  time.Duration
}

// HubOptions configure the hub's loop intervals.
type HubOptions struct {
	SweepInterval time.Duration // heartbeat sweep cadence
	PingTimeout   time.Duration // eviction threshold for silent connections
	PushInterval  time.Duration // progress push cadence
}

// DefaultHubOptions returns the standard intervals.
func DefaultHubOptions() HubOptions {
	return HubOptions{
		SweepInterval: 30 * time.Second,
		PingTimeout:   60 * time.Second,
		PushInterval:  5 * time.Second,
	}
}

// NewHub creates a broadcast hub over a registry and progress source.
func NewHub(registry *Registry, progress ProgressSource, opts HubOptions) *Hub {
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultHubOptions().SweepInterval
	}
	if opts.PingTimeout <= 0 {
		opts.PingTimeout = DefaultHubOptions().PingTimeout
	}
	if opts.PushInterval <= 0 {
		opts.PushInterval = DefaultHubOptions().PushInterval
	}
	return &Hub{
		registry:  registry,
		progress:  progress,
		sweepEach: opts.SweepInterval,
		pingMax:   opts.PingTimeout,
		pushEach:  opts.PushInterval,
	}
}

// Registry exposes the hub's connection registry.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Run starts the heartbeat sweep and progress push loops. Both stop when the
// context is cancelled, after which every remaining connection is closed so
// no timer or socket outlives the process shutdown.
func (h *Hub) Run(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(h.sweepEach)
		defer ticker.Stop()
		slog.Info("Heartbeat sweep started", "interval", h.sweepEach, "timeout", h.pingMax)

		for {
			select {
			case <-ticker.C:
				h.SweepOnce(time.Now())
			case <-ctx.Done():
				slog.Info("Heartbeat sweep shutting down", "reason", ctx.Err())
				return
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(h.pushEach)
		defer ticker.Stop()
		slog.Info("Progress push loop started", "interval", h.pushEach)

		for {
			select {
			case <-ticker.C:
				h.PushOnce(ctx)
			case <-ctx.Done():
				slog.Info("Progress push loop shutting down", "reason", ctx.Err())
				h.registry.CloseAll("server shutting down")
				return
			}
		}
	}()
}

// SweepOnce evicts and closes every connection whose last ping is older than
// the timeout. Eviction bounds memory held for clients that vanished without
// a clean close.
func (h *Hub) SweepOnce(now time.Time) {
	stale := h.registry.Stale(now, h.pingMax)
	for _, client := range stale {
		h.registry.Unregister(client.ID)
		if err := client.sock.Close("heartbeat timeout"); err != nil {
			slog.Debug("Failed to close stale connection", "connection_id", client.ID, "error", err)
		}
		slog.Info("Connection evicted by heartbeat sweep",
			"connection_id", client.ID, "last_ping", client.LastPing)
	}
}

// PushOnce scans the distinct subscription pairs and broadcasts the current
// progress summary for each. A failure on one pair is logged and the rest of
// the tick proceeds. A summary read here may race a concurrent resume; each
// read is a single store snapshot, so it is internally consistent and the
// next tick converges.
func (h *Hub) PushOnce(ctx context.Context) {
	for _, pair := range h.registry.SubscriptionPairs() {
		summary, err := h.progress.ProgressSummary(ctx, pair.WorkflowID)
		if err != nil {
			slog.Warn("Progress push failed for subscription",
				"workflow_id", pair.WorkflowID, "profile_id", pair.ProfileID, "error", err)
			continue
		}
		h.Broadcast(ctx, Envelope{
			Type:      TypeProgressUpdate,
			ProfileID: pair.ProfileID,
			Data:      summary,
			Timestamp: time.Now().UTC(),
		}, pair.WorkflowID)
	}
}

// Broadcast fans the envelope out to every connection whose subscription
// matches the profile or workflow key. A write failure on one recipient
// evicts that connection and never aborts delivery to the others. Returns
// the number of successful deliveries.
func (h *Hub) Broadcast(ctx context.Context, env Envelope, workflowID string) int {
	data, err := json.Marshal(env)
	if err != nil {
		slog.Error("Failed to encode broadcast envelope", "type", env.Type, "error", err)
		return 0
	}

	delivered := 0
	for _, client := range h.registry.Matching(env.ProfileID, workflowID) {
		if err := client.sock.WriteText(ctx, data); err != nil {
			// Expected on abrupt disconnects: evict silently.
			h.evict(client, "send failed")
			continue
		}
		delivered++
	}
	return delivered
}

// SendTo delivers an envelope to a single connection, evicting it on failure.
func (h *Hub) SendTo(ctx context.Context, clientID string, env Envelope) bool {
	client := h.registry.Get(clientID)
	if client == nil {
		return false
	}

	data, err := json.Marshal(env)
	if err != nil {
		slog.Error("Failed to encode envelope", "type", env.Type, "error", err)
		return false
	}
	if err := client.sock.WriteText(ctx, data); err != nil {
		h.evict(client, "send failed")
		return false
	}
	return true
}

// DashboardUpdate pushes a single-recipient dashboard snapshot combining the
// summary and the per-function/per-category detail.
func (h *Hub) DashboardUpdate(ctx context.Context, clientID string) {
	client := h.registry.Get(clientID)
	if client == nil || client.WorkflowID == "" {
		return
	}

	summary, err := h.progress.ProgressSummary(ctx, client.WorkflowID)
	if err != nil {
		slog.Warn("Dashboard update failed", "workflow_id", client.WorkflowID, "error", err)
		return
	}
	detailed, err := h.progress.DetailedProgress(ctx, client.WorkflowID)
	if err != nil {
		slog.Warn("Dashboard detail failed", "workflow_id", client.WorkflowID, "error", err)
		return
	}

	h.SendTo(ctx, clientID, Envelope{
		Type:      TypeDashboardUpdate,
		ProfileID: client.ProfileID,
		Data: map[string]any{
			"progress":          summary,
			"detailed_progress": detailed,
		},
		Timestamp: time.Now().UTC(),
	})
}

func (h *Hub) evict(client *Client, reason string) {
	h.registry.Unregister(client.ID)
	if err := client.sock.Close(reason); err != nil {
		slog.Debug("Failed to close evicted connection", "connection_id", client.ID, "error", err)
	}
	slog.Debug("Connection evicted", "connection_id", client.ID, "reason", reason)
}
