package hub

import (
	"context"
	"log/slog"
	"sync"

	"github.com/inkstream/inkstream/internal/store"
)

// DocumentStore is the hub's view of note persistence. Implemented by
// *store.Store; faked in tests.
type DocumentStore interface {
	ApplyMutation(ctx context.Context, id string, mut store.Mutation) (*store.Note, error)
}

// Hub owns the set of live WebSocket connections grouped by note id (or the
// GroupAll wildcard) and delivers broadcast events to them.
//
// The registry is the only shared mutable state: it is mutated exclusively by
// join, leave, and the dead-connection cleanup inside the broadcast methods.
// Delivery to a peer never happens while the registry lock is held — each
// recipient gets a non-blocking enqueue into its buffered send channel, and
// the actual socket write runs in that connection's own write pump.
type Hub struct {
	store DocumentStore

	mu     sync.RWMutex
	groups map[string]map[*client]struct{}
}

// New creates a Hub applying note mutations through st.
func New(st DocumentStore) *Hub {
	return &Hub{
		store:  st,
		groups: make(map[string]map[*client]struct{}),
	}
}

// Run blocks until ctx is cancelled, then closes all active connections.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Count returns the number of currently connected clients across all groups.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.groups {
		n += len(set)
	}
	return n
}

// GroupCount returns the number of groups with at least one connection.
func (h *Hub) GroupCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups)
}

// --- registry ----------------------------------------------------------------

// join registers c under its group key, creating the group if absent.
// Idempotent per connection.
func (h *Hub) join(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.groups[c.group]
	if !ok {
		set = make(map[*client]struct{})
		h.groups[c.group] = set
	}
	set[c] = struct{}{}
}

// leave removes c from its group and closes its send channel. A group left
// empty is deleted immediately so churn does not grow the registry. Safe to
// call for a connection that has already been removed.
func (h *Hub) leave(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.groups[c.group]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	close(c.send)
	if len(set) == 0 {
		delete(h.groups, c.group)
	}
}

// --- broadcast ---------------------------------------------------------------

// Broadcast delivers an event to every connection currently in group. A
// recipient whose send buffer is full (or whose channel handler has stalled)
// is marked dead and removed after the full membership snapshot has been
// attempted; its failure is never surfaced to the caller.
func (h *Hub) Broadcast(group, typ string, payload any) {
	data := marshal(typ, payload)
	if data == nil {
		slog.Warn("hub: dropping unencodable broadcast", "type", typ, "group", group)
		return
	}

	var dead []*client
	h.mu.RLock()
	for c := range h.groups[group] {
		if !c.enqueue(data) {
			dead = append(dead, c)
		}
	}
	h.mu.RUnlock()

	h.reap(dead)
}

// BroadcastAll delivers an event once to every connection in every group.
func (h *Hub) BroadcastAll(typ string, payload any) {
	data := marshal(typ, payload)
	if data == nil {
		slog.Warn("hub: dropping unencodable broadcast", "type", typ)
		return
	}

	var dead []*client
	seen := make(map[*client]struct{})
	h.mu.RLock()
	for _, set := range h.groups {
		for c := range set {
			if _, dup := seen[c]; dup {
				continue
			}
			seen[c] = struct{}{}
			if !c.enqueue(data) {
				dead = append(dead, c)
			}
		}
	}
	h.mu.RUnlock()

	h.reap(dead)
}

// replyTo enqueues a frame for a single connection, if it is still
// registered. Holding the read lock makes the enqueue mutually exclusive with
// the channel close inside leave, exactly like the broadcast paths — a
// connection evicted by a concurrent broadcast is silently skipped instead of
// hitting its closed channel.
func (h *Hub) replyTo(c *client, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.groups[c.group][c]; !ok {
		return
	}
	c.enqueue(data)
}

// reap removes connections that failed delivery.
func (h *Hub) reap(dead []*client) {
	for _, c := range dead {
		slog.Debug("hub: dropping unresponsive connection", "group", c.group)
		h.leave(c)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for key, set := range h.groups {
		for c := range set {
			close(c.send)
		}
		delete(h.groups, key)
	}
}
