// Package realtime maintains live WebSocket connections and pushes
// assessment progress to subscribed viewers.
package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Socket abstracts the underlying connection so fan-out and eviction can be
// exercised without a live network socket.
type Socket interface {
	// WriteText sends one text frame.
	WriteText(ctx context.Context, data []byte) error
	// Close closes the connection with a reason.
	Close(reason string) error
}

// Client is one live connection and its optional assessment subscription.
// Clients live only in memory; their lifecycle is bound to the socket.
type Client struct {
	ID          string
	sock        Socket
	ProfileID   string
	WorkflowID  string
	LastPing    time.Time
	ConnectedAt time.Time
}

// Subscribed reports whether the client has attached to an assessment.
func (c *Client) Subscribed() bool {
	return c.ProfileID != "" || c.WorkflowID != ""
}

// Matches reports whether a message keyed by profile or workflow should be
// delivered to this client. Either key matching is sufficient.
func (c *Client) Matches(profileID, workflowID string) bool {
	if profileID != "" && c.ProfileID == profileID {
		return true
	}
	if workflowID != "" && c.WorkflowID == workflowID {
		return true
	}
	return false
}

// SubscriptionPair is one distinct (profile, workflow) subscription key.
type SubscriptionPair struct {
	ProfileID  string
	WorkflowID string
}

// Registry is the in-memory connection registry. It is the sole owner of
// connection state; the session manager never touches it.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]*Client)}
}

// Register adds a connection and returns its assigned client record.
func (r *Registry) Register(sock Socket) *Client {
	now := time.Now()
	client := &Client{
		ID:          uuid.NewString(),
		sock:        sock,
		LastPing:    now,
		ConnectedAt: now,
	}

	r.mu.Lock()
	r.clients[client.ID] = client
	r.mu.Unlock()

	slog.Info("Connection registered", "connection_id", client.ID)
	return client
}

// Unregister removes a connection from the registry.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	_, existed := r.clients[id]
	delete(r.clients, id)
	r.mu.Unlock()

	if existed {
		slog.Info("Connection unregistered", "connection_id", id)
	}
}

// Subscribe attaches an assessment to a connection, overwriting any prior
// subscription. Idempotent.
func (r *Registry) Subscribe(id, profileID, workflowID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	client, ok := r.clients[id]
	if !ok {
		return false
	}
	client.ProfileID = profileID
	client.WorkflowID = workflowID
	return true
}

// Touch refreshes a connection's last_ping timestamp.
func (r *Registry) Touch(id string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if client, ok := r.clients[id]; ok {
		client.LastPing = at
	}
}

// Get returns the client record for a connection ID, or nil.
func (r *Registry) Get(id string) *Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.clients[id]
}

// Count returns the number of registered connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Matching returns the clients whose subscription matches either key.
func (r *Registry) Matching(profileID, workflowID string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*Client
	for _, client := range r.clients {
		if client.Matches(profileID, workflowID) {
			matched = append(matched, client)
		}
	}
	return matched
}

// SubscriptionPairs returns the distinct (profile, workflow) pairs across all
// subscribed connections.
func (r *Registry) SubscriptionPairs() []SubscriptionPair {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[SubscriptionPair]bool)
	var pairs []SubscriptionPair
	for _, client := range r.clients {
		if !client.Subscribed() {
			continue
		}
		pair := SubscriptionPair{ProfileID: client.ProfileID, WorkflowID: client.WorkflowID}
		if !seen[pair] {
			seen[pair] = true
			pairs = append(pairs, pair)
		}
	}
	return pairs
}

// Stale returns connections whose last ping is older than the timeout.
func (r *Registry) Stale(now time.Time, timeout time.Duration) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var stale []*Client
	for _, client := range r.clients {
		if now.Sub(client.LastPing) > timeout {
			stale = append(stale, client)
		}
	}
	return stale
}

// CloseAll evicts and closes every registered connection.
func (r *Registry) CloseAll(reason string) {
	r.mu.Lock()
	clients := make([]*Client, 0, len(r.clients))
	for _, client := range r.clients {
		clients = append(clients, client)
	}
	r.clients = make(map[string]*Client)
	r.mu.Unlock()

	for _, client := range clients {
		if err := client.sock.Close(reason); err != nil {
			slog.Debug("Failed to close connection", "connection_id", client.ID, "error", err)
		}
	}
	if len(clients) > 0 {
		slog.Info("All connections closed", "count", len(clients), "reason", reason)
	}
}
