// Package store is the Entity Store: the concurrent mappings that make up
// the runtime's shared state — channels, client records, outbound queues,
// channel-list subscribers, and bans. Each mapping gets its own
// reader/writer lock (rather than one lock guarding all five) so that,
// say, registering a new client never contends with a channel lookup.
// This generalizes the teacher hub's single Mutex-guarded map into one
// lock per concern, matching the "avoid a single global lock" guidance.
package store

import (
	"sync"

	"github.com/nyxikitty/mpp-server/internal/channel"
	"github.com/nyxikitty/mpp-server/internal/client"
	"github.com/nyxikitty/mpp-server/internal/outbound"
)

// BanRecord redirects a user away from one channel until it expires.
type BanRecord struct {
	ChannelID string
	ExpiryMs  int64
}

// Store holds all five top-level mappings described by the spec.
type Store struct {
	channelsMu sync.RWMutex
	channels   map[string]*channel.Channel

	clientsMu sync.RWMutex
	clients   map[string]*client.Record

	outboundMu sync.RWMutex
	outbound   map[string]*outbound.Queue

	lsMu sync.RWMutex
	ls   map[string]struct{}

	bansMu sync.RWMutex
	bans   map[string]BanRecord
}

// New constructs an empty store.
func New() *Store {
	return &Store{
		channels: make(map[string]*channel.Channel),
		clients:  make(map[string]*client.Record),
		outbound: make(map[string]*outbound.Queue),
		ls:       make(map[string]struct{}),
		bans:     make(map[string]BanRecord),
	}
}

// --- channels ---

// Channel returns the channel by id, if present.
func (s *Store) Channel(id string) (*channel.Channel, bool) {
	s.channelsMu.RLock()
	defer s.channelsMu.RUnlock()
	c, ok := s.channels[id]
	return c, ok
}

// GetOrCreateChannel returns the existing channel for id, or atomically
// creates and stores one via newFn if absent.
func (s *Store) GetOrCreateChannel(id string, newFn func() *channel.Channel) (*channel.Channel, bool) {
	s.channelsMu.Lock()
	defer s.channelsMu.Unlock()
	if c, ok := s.channels[id]; ok {
		return c, false
	}
	c := newFn()
	s.channels[id] = c
	return c, true
}

// DeleteChannel removes a channel by id.
func (s *Store) DeleteChannel(id string) {
	s.channelsMu.Lock()
	defer s.channelsMu.Unlock()
	delete(s.channels, id)
}

// Channels returns a snapshot of all channels.
func (s *Store) Channels() []*channel.Channel {
	s.channelsMu.RLock()
	defer s.channelsMu.RUnlock()
	out := make([]*channel.Channel, 0, len(s.channels))
	for _, c := range s.channels {
		out = append(out, c)
	}
	return out
}

// --- clients ---

// Client returns the client record by id, if present.
func (s *Store) Client(id string) (*client.Record, bool) {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	c, ok := s.clients[id]
	return c, ok
}

// PutClient registers a client record.
func (s *Store) PutClient(id string, rec *client.Record) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	s.clients[id] = rec
}

// DeleteClient removes a client record.
func (s *Store) DeleteClient(id string) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	delete(s.clients, id)
}

// Clients returns a snapshot of all live client records, for the tick
// scheduler to advance every quota once per second.
func (s *Store) Clients() []*client.Record {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	out := make([]*client.Record, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, c)
	}
	return out
}

// --- outbound queues ---

// Outbound returns the outbound queue for a client, if its socket is
// still open.
func (s *Store) Outbound(id string) (*outbound.Queue, bool) {
	s.outboundMu.RLock()
	defer s.outboundMu.RUnlock()
	q, ok := s.outbound[id]
	return q, ok
}

// PutOutbound registers an outbound queue for a client.
func (s *Store) PutOutbound(id string, q *outbound.Queue) {
	s.outboundMu.Lock()
	defer s.outboundMu.Unlock()
	s.outbound[id] = q
}

// DeleteOutbound removes a client's outbound queue entry. Callers are
// responsible for closing the queue itself first.
func (s *Store) DeleteOutbound(id string) {
	s.outboundMu.Lock()
	defer s.outboundMu.Unlock()
	delete(s.outbound, id)
}

// --- ls subscribers ---

// SubscribeLs adds a client to the channel-list subscriber set. Adding
// twice is idempotent.
func (s *Store) SubscribeLs(id string) {
	s.lsMu.Lock()
	defer s.lsMu.Unlock()
	s.ls[id] = struct{}{}
}

// UnsubscribeLs removes a client from the subscriber set.
func (s *Store) UnsubscribeLs(id string) {
	s.lsMu.Lock()
	defer s.lsMu.Unlock()
	delete(s.ls, id)
}

// LsSubscribers returns a snapshot of subscriber ids.
func (s *Store) LsSubscribers() []string {
	s.lsMu.RLock()
	defer s.lsMu.RUnlock()
	out := make([]string, 0, len(s.ls))
	for id := range s.ls {
		out = append(out, id)
	}
	return out
}

// --- bans ---

// Ban returns the ban record for a user, if any (expired or not — callers
// check ExpiryMs themselves, since expiry is checked lazily on join).
func (s *Store) Ban(userID string) (BanRecord, bool) {
	s.bansMu.RLock()
	defer s.bansMu.RUnlock()
	b, ok := s.bans[userID]
	return b, ok
}

// PutBan records (or overwrites) a user's ban.
func (s *Store) PutBan(userID string, rec BanRecord) {
	s.bansMu.Lock()
	defer s.bansMu.Unlock()
	s.bans[userID] = rec
}

// DeleteBan removes a user's ban entry outright.
func (s *Store) DeleteBan(userID string) {
	s.bansMu.Lock()
	defer s.bansMu.Unlock()
	delete(s.bans, userID)
}

// DeleteBanIfChannel removes the user's ban only if it matches channelID,
// used by "unban" which names both the user and (implicitly) the caller's
// channel.
func (s *Store) DeleteBanIfChannel(userID, channelID string) bool {
	s.bansMu.Lock()
	defer s.bansMu.Unlock()
	b, ok := s.bans[userID]
	if !ok || b.ChannelID != channelID {
		return false
	}
	delete(s.bans, userID)
	return true
}
