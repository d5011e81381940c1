// Package hub ties the entity store, broadcast router, quota, audit log,
// and event publisher together behind the protocol's inbound verbs. It replaces
// the teacher's channel-driven Hub (register/unregister/broadcast
// channels guarded by one Mutex) with direct calls into the Entity
// Store's per-concern locks — the fan-out and bookkeeping this package
// does is the same shape as the teacher's JoinRoom/LeaveRoom/
// BroadcastToRoom, generalized to channels, crowns, and note quotas.
package hub

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/nyxikitty/mpp-server/internal/audit"
	"github.com/nyxikitty/mpp-server/internal/broadcast"
	"github.com/nyxikitty/mpp-server/internal/client"
	"github.com/nyxikitty/mpp-server/internal/events"
	"github.com/nyxikitty/mpp-server/internal/metrics"
	"github.com/nyxikitty/mpp-server/internal/outbound"
	"github.com/nyxikitty/mpp-server/internal/store"
)

// Hub is the runtime's single coordination point: every message handler
// hangs off it, and it owns no state of its own beyond references to the
// store and its collaborators.
type Hub struct {
	Store   *store.Store
	Router  *broadcast.Router
	Metrics *metrics.Metrics
	Audit   *audit.Log
	Events  *events.Publisher
	Logger  *zerolog.Logger
}

// New wires a Hub over an existing store and its collaborators. Audit and
// Events may be nil (a nil Audit skips audit recording entirely, not even
// logging it; a nil Events makes every publish a silent no-op), since
// neither is required for correctness.
func New(s *store.Store, m *metrics.Metrics, a *audit.Log, e *events.Publisher, logger *zerolog.Logger) *Hub {
	return &Hub{
		Store:   s,
		Router:  broadcast.New(s),
		Metrics: m,
		Audit:   a,
		Events:  e,
		Logger:  logger,
	}
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}

// Connect registers a freshly accepted client under clientID and returns
// its outbound queue, which the connection loop's pump task drains.
func (h *Hub) Connect(clientID, userID string) *outbound.Queue {
	rec := client.New(userID)
	h.Store.PutClient(clientID, rec)

	q := outbound.New()
	h.Store.PutOutbound(clientID, q)

	h.Metrics.IncrementActiveClients()
	return q
}

// Disconnect tears down everything a client accumulated: channel
// membership (with crown succession), its outbound queue, its client
// record, and any ls subscription. Ban entries are left untouched — they
// outlive sessions.
func (h *Hub) Disconnect(clientID string) {
	if rec, ok := h.Store.Client(clientID); ok {
		h.leaveChannel(clientID, rec)
	}
	if q, ok := h.Store.Outbound(clientID); ok {
		q.Close()
	}
	h.Store.DeleteClient(clientID)
	h.Store.DeleteOutbound(clientID)
	h.Store.UnsubscribeLs(clientID)
	h.Metrics.DecrementActiveClients()
}

// RunTickScheduler advances every live client's note quota once per
// second until stop is closed, grounded on the teacher's own
// time.Ticker-based background loops.
func (h *Hub) RunTickScheduler(stop <-chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			for _, rec := range h.Store.Clients() {
				rec.Quota.Tick()
			}
		}
	}
}
