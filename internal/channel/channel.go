// Package channel models a named room: its participants, settings, crown
// moderation token, and bounded chat history. Each Channel owns its own
// reader/writer lock, the same pattern the teacher's room package uses,
// so mutating one channel never contends with another.
package channel

import (
	"strings"
	"sync"
)

// Capacity is the default maximum number of simultaneous participants.
const Capacity = 20

// ChatHistoryLimit is the number of most recent chat messages retained.
const ChatHistoryLimit = 32

// AwkwardChannelID is where banned clients and kicked targets are forced.
const AwkwardChannelID = "test/awkward"

// LobbyChannelID is the one well-known special channel that is pre-seeded
// and never deleted even when empty.
const LobbyChannelID = "lobby"

// IsSpecial reports whether id names a special channel: the lobby, or any
// id under the "test/" namespace. Special channels have frozen settings,
// no crown, and are never garbage collected.
func IsSpecial(id string) bool {
	return id == LobbyChannelID || strings.HasPrefix(id, "test/")
}

// Participant is the public projection of a client inside a channel.
type Participant struct {
	ID    string
	Name  string
	Color string
	X     float64
	Y     float64
}

// Settings control channel-wide behavior, mutable via "chset" on
// non-special channels.
type Settings struct {
	Color     string
	Chat      bool
	Crownsolo bool
	Visible   bool
	Lobby     bool
}

// DefaultSettings returns the settings assigned to a freshly created
// non-special channel.
func DefaultSettings() Settings {
	return Settings{
		Color:     "#ffffff",
		Chat:      true,
		Crownsolo: false,
		Visible:   true,
		Lobby:     false,
	}
}

// ChatEntry is one retained chat message.
type ChatEntry struct {
	Participant Participant
	Text        string
	AtMs        int64
}

// Channel is a room holding participants, settings, chat history, and
// (for non-special rooms) a crown. All mutation goes through the methods
// below, which take the channel's own lock; callers never reach into the
// fields directly while another goroutine might be mutating them.
type Channel struct {
	mu sync.RWMutex

	id           string
	special      bool
	settings     Settings
	crown        *Crown
	participants map[string]*Participant
	chatHistory  []ChatEntry
	capacity     int
}

// New constructs a channel. Special channels get frozen default settings
// and no crown; non-special channels start with a dropped crown owned by
// the creator, so the first eligible joiner claims it immediately.
func New(id string, creatorUserID string, now int64) *Channel {
	special := IsSpecial(id)
	c := &Channel{
		id:           id,
		special:      special,
		participants: make(map[string]*Participant),
		capacity:     Capacity,
	}
	if special {
		c.settings = Settings{Color: "#999999", Chat: true, Crownsolo: false, Visible: id == LobbyChannelID, Lobby: id == LobbyChannelID}
		c.crown = nil
	} else {
		c.settings = DefaultSettings()
		c.crown = NewDroppedCrown(creatorUserID, now)
	}
	return c
}

func (c *Channel) ID() string      { return c.id }
func (c *Channel) Special() bool   { return c.special }
func (c *Channel) Capacity() int   { return c.capacity }

// Settings returns a copy of the current settings.
func (c *Channel) Settings() Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings
}

// MergeSettings applies partial updates over the current settings. Callers
// must have already validated field types/formats; this never fails.
func (c *Channel) MergeSettings(patch func(*Settings)) Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	patch(&c.settings)
	return c.settings
}

// Count returns the number of current participants.
func (c *Channel) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.participants)
}

// Participants returns a snapshot slice of current participants. Safe to
// iterate without holding the channel lock.
func (c *Channel) Participants() []Participant {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Participant, 0, len(c.participants))
	for _, p := range c.participants {
		out = append(out, *p)
	}
	return out
}

// ParticipantIDs returns just the ids, for broadcast fan-out.
func (c *Channel) ParticipantIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.participants))
	for id := range c.participants {
		out = append(out, id)
	}
	return out
}

// Get returns a copy of one participant.
func (c *Channel) Get(id string) (Participant, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.participants[id]
	if !ok {
		return Participant{}, false
	}
	return *p, true
}

// TryAdd inserts a participant if the channel is under capacity. Returns
// false, without mutating, when full.
func (c *Channel) TryAdd(p Participant) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.participants) >= c.capacity {
		return false
	}
	c.participants[p.ID] = &p
	return true
}

// Remove deletes a participant. Returns false if it wasn't present.
func (c *Channel) Remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.participants[id]; !ok {
		return false
	}
	delete(c.participants, id)
	return true
}

// UpdateParticipant mutates a participant's fields in place via fn, e.g.
// for cursor moves or profile changes. Returns false if the participant is
// no longer present.
func (c *Channel) UpdateParticipant(id string, fn func(*Participant)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.participants[id]
	if !ok {
		return false
	}
	fn(p)
	return true
}

// Empty reports whether the channel currently has zero participants.
func (c *Channel) Empty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.participants) == 0
}

// AppendChat records a chat message, evicting the oldest beyond the limit.
func (c *Channel) AppendChat(entry ChatEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chatHistory = append(c.chatHistory, entry)
	if excess := len(c.chatHistory) - ChatHistoryLimit; excess > 0 {
		c.chatHistory = c.chatHistory[excess:]
	}
}

// ChatHistory returns a snapshot of retained chat messages, oldest first.
func (c *Channel) ChatHistory() []ChatEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ChatEntry, len(c.chatHistory))
	copy(out, c.chatHistory)
	return out
}

// Crown returns a snapshot of the crown state, or nil for special channels.
func (c *Channel) Crown() *Crown {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.crown == nil {
		return nil
	}
	cp := *c.crown
	return &cp
}

// WithCrown runs fn with exclusive access to the live crown pointer, for
// the handlers that need to read-then-transition it atomically. fn must
// not block or touch any other channel's lock.
func (c *Channel) WithCrown(fn func(*Crown)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.crown == nil {
		return
	}
	fn(c.crown)
}
