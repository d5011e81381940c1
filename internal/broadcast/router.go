// Package broadcast implements the fan-out primitives: send to one
// client, send to a channel (with exclusion), send to channel-list
// subscribers. All three snapshot their recipient set, release any lock,
// then enqueue — mirroring the teacher hub's BroadcastToRoom, which reads
// the room's client snapshot before writing so broadcasting never holds a
// room lock across a socket write.
package broadcast

import "github.com/nyxikitty/mpp-server/internal/store"

// Router fans frames out to client outbound queues. It holds no state of
// its own beyond a reference to the store.
type Router struct {
	store *store.Store
}

// New constructs a Router over the given store.
func New(s *store.Store) *Router {
	return &Router{store: s}
}

// ToClient enqueues frame for exactly one client. If the client has no
// outbound queue (never connected, or already disconnected), the frame
// is dropped silently. Never blocks.
func (r *Router) ToClient(clientID string, frame []byte) {
	q, ok := r.store.Outbound(clientID)
	if !ok {
		return
	}
	q.Push(frame)
}

// ToChannel enqueues frame to every participant of channelID except
// excludeID (pass "" to exclude nobody). The participant id snapshot is
// taken without holding the channel lock across the sends.
func (r *Router) ToChannel(channelID string, frame []byte, excludeID string) {
	ch, ok := r.store.Channel(channelID)
	if !ok {
		return
	}
	ids := ch.ParticipantIDs()
	for _, id := range ids {
		if id == excludeID {
			continue
		}
		r.ToClient(id, frame)
	}
}

// ToLsSubscribers enqueues frame to every channel-list subscriber.
func (r *Router) ToLsSubscribers(frame []byte) {
	for _, id := range r.store.LsSubscribers() {
		r.ToClient(id, frame)
	}
}
