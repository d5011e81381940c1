package hub

import (
	"github.com/nyxikitty/mpp-server/internal/channel"
	"github.com/nyxikitty/mpp-server/internal/client"
	"github.com/nyxikitty/mpp-server/internal/protocol"
)

// resolveBanRedirect rewrites targetID to the awkward channel when the
// caller has an unexpired ban against it, per the spec's "ban check
// first" rule. An expired ban is cleared lazily here rather than swept in
// the background.
func (h *Hub) resolveBanRedirect(userID, targetID string) string {
	b, ok := h.Store.Ban(userID)
	if !ok {
		return targetID
	}
	now := nowMs()
	if b.ChannelID != targetID {
		// Stale entry for a channel the caller isn't even trying to join;
		// prune it outright if it's expired so the ban map doesn't
		// accumulate garbage for channels never revisited.
		if now >= b.ExpiryMs {
			h.Store.DeleteBan(userID)
		}
		return targetID
	}
	if now >= b.ExpiryMs {
		h.Store.DeleteBanIfChannel(userID, b.ChannelID)
		return targetID
	}
	return channel.AwkwardChannelID
}

// performJoin moves clientID into targetID: it leaves any current
// channel first, creates targetID if absent, inserts the participant (a
// no-op refusal if the channel is full), claims the crown if eligible,
// and sends the joiner its channel state, chat history, and a broadcast
// of its arrival.
func (h *Hub) performJoin(clientID, targetID string) {
	rec, ok := h.Store.Client(clientID)
	if !ok {
		return
	}

	if cur, ok := h.Store.Channel(targetID); ok && rec.ChannelID() != targetID && cur.Count() >= cur.Capacity() {
		return
	}

	h.leaveChannel(clientID, rec)

	ch, created := h.Store.GetOrCreateChannel(targetID, func() *channel.Channel {
		return channel.New(targetID, rec.UserID, nowMs())
	})

	p, hasParticipant := rec.Participant()
	if !hasParticipant {
		p = channel.Participant{ID: clientID, Name: "Anonymous", Color: defaultColorFor(clientID)}
		rec.SetParticipant(p)
	}
	if !ch.TryAdd(p) {
		return
	}
	rec.SetChannelID(targetID)

	now := nowMs()
	if created {
		h.Metrics.IncrementChannelsCreated()
		if h.Audit != nil {
			h.Audit.RecordChannelCreated(targetID, clientID, now)
		}
		h.Events.PublishChannelCreated(targetID, clientID, now)
	}

	if !ch.Special() {
		ch.WithCrown(func(c *channel.Crown) {
			if c.ClaimableBy(rec.UserID, now) {
				c.Hold(clientID, rec.UserID, now)
			}
		})
	}

	h.sendChannelState(clientID, ch)
	h.sendChatHistory(clientID, ch)

	out := protocol.ParticipantJoinOut{M: protocol.VerbParticipant, P: toView(p)}
	if data, err := protocol.EncodeFrame(out); err == nil {
		h.Router.ToChannel(targetID, data, clientID)
	}

	h.Metrics.SetChannelOccupancy(targetID, int64(ch.Count()))
	h.broadcastLsSnapshot()
}

// leaveChannel removes clientID from whatever channel its record names,
// handling crown succession, the "bye" broadcast, and non-special
// empty-channel garbage collection. It is the one place both "ch" (when
// already in a channel) and disconnect funnel through.
func (h *Hub) leaveChannel(clientID string, rec *client.Record) {
	channelID := rec.ChannelID()
	if channelID == "" {
		return
	}

	ch, ok := h.Store.Channel(channelID)
	if !ok {
		rec.SetChannelID("")
		return
	}

	removed := ch.Remove(clientID)
	rec.SetChannelID("")
	if !removed {
		return
	}

	now := nowMs()
	if !ch.Special() {
		ch.WithCrown(func(c *channel.Crown) {
			if c.HeldBy(clientID) {
				c.Drop(now)
			}
		})
	}

	out := protocol.ByeOut{M: protocol.VerbBye, ID: clientID}
	if data, err := protocol.EncodeFrame(out); err == nil {
		h.Router.ToChannel(channelID, data, "")
	}

	if !ch.Special() && ch.Empty() {
		h.Store.DeleteChannel(channelID)
		h.Metrics.IncrementChannelsDeleted()
		h.Metrics.RemoveChannel(channelID)
		if h.Audit != nil {
			h.Audit.RecordChannelDeleted(channelID, now)
		}
		h.Events.PublishChannelDeleted(channelID, now)
	} else {
		h.Metrics.SetChannelOccupancy(channelID, int64(ch.Count()))
	}

	h.broadcastLsSnapshot()
}

// forceJoin moves a participant into the awkward channel as if it had
// sent "ch" itself, used by kickban.
func (h *Hub) forceJoin(clientID string) {
	h.performJoin(clientID, channel.AwkwardChannelID)
}
