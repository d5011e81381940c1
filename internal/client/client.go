// Package client models the per-connection domain record: everything the
// runtime tracks about one WebSocket client besides its socket and
// outbound queue, which the store and conn packages own separately.
package client

import (
	"sync"

	"github.com/nyxikitty/mpp-server/internal/channel"
	"github.com/nyxikitty/mpp-server/internal/quota"
)

// Record is one client's server-side state. It exists from WebSocket
// accept to close; Participant is populated by the first "hi" or "ch",
// and ChannelID once the client has joined with "ch". Only Participant is ever
// serialized to the wire — lastMoveMs stays private so future fields
// here can't leak by accident.
type Record struct {
	mu sync.RWMutex

	UserID string
	Quota  *quota.Quota

	participant *channel.Participant
	channelID   string
	lastMoveMs  int64
}

// New constructs a client record for a freshly accepted connection.
func New(userID string) *Record {
	return &Record{
		UserID: userID,
		Quota:  quota.New(),
	}
}

// Participant returns a copy of the participant projection, or ok=false
// before the client's first "hi" or "ch" has installed one.
func (r *Record) Participant() (channel.Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.participant == nil {
		return channel.Participant{}, false
	}
	return *r.participant, true
}

// SetParticipant installs the participant projection, called on "hi" and
// on a "ch" that finds none installed.
func (r *Record) SetParticipant(p channel.Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.participant = &p
}

// UpdateParticipant mutates the cached projection in place (e.g. after a
// userset rename), so later reads reflect it even before the channel's
// own copy is re-fetched.
func (r *Record) UpdateParticipant(fn func(*channel.Participant)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.participant == nil {
		return
	}
	fn(r.participant)
}

// ChannelID returns the channel the client currently belongs to, or "" if
// none.
func (r *Record) ChannelID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.channelID
}

// SetChannelID records which channel the client belongs to.
func (r *Record) SetChannelID(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channelID = id
}

// LastMoveMs returns the timestamp of the last accepted cursor update, for
// the 50ms move throttle.
func (r *Record) LastMoveMs() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastMoveMs
}

// SetLastMoveMs records the timestamp of the most recently accepted
// cursor update.
func (r *Record) SetLastMoveMs(ms int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastMoveMs = ms
}
