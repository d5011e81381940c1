package hub

import (
	"encoding/json"
	"fmt"

	"github.com/nyxikitty/mpp-server/internal/channel"
	"github.com/nyxikitty/mpp-server/internal/protocol"
	"github.com/nyxikitty/mpp-server/internal/store"
	"github.com/nyxikitty/mpp-server/internal/validator"
)

const (
	moveThrottleMs   = 50
	defaultBanMs     = 30 * 60 * 1000
	maxBanMs         = 7 * 24 * 60 * 60 * 1000
)

// Dispatch routes one parsed inbound message to its handler. "bye" is
// intentionally absent here: the connection loop intercepts it directly
// so it can close the socket after Disconnect runs, rather than going
// through the normal handler-returns-and-keeps-reading path.
func (h *Hub) Dispatch(clientID string, in protocol.Inbound) {
	switch in.Verb {
	case protocol.VerbHi:
		h.handleHi(clientID)
	case protocol.VerbLsAdd:
		h.handleLsAdd(clientID)
	case protocol.VerbLsRemove:
		h.handleLsRemove(clientID)
	case protocol.VerbTime:
		h.handleTime(clientID, in.Raw)
	case protocol.VerbChat:
		h.handleChat(clientID, in.Raw)
	case protocol.VerbNotes:
		h.handleNotes(clientID, in.Raw)
	case protocol.VerbMove:
		h.handleMove(clientID, in.Raw)
	case protocol.VerbUserSet:
		h.handleUserSet(clientID, in.Raw)
	case protocol.VerbJoin:
		h.handleJoin(clientID, in.Raw)
	case protocol.VerbChanSet:
		h.handleChanSet(clientID, in.Raw)
	case protocol.VerbChanOwn:
		h.handleChanOwn(clientID, in.Raw)
	case protocol.VerbKickban:
		h.handleKickban(clientID, in.Raw)
	case protocol.VerbUnban:
		h.handleUnban(clientID, in.Raw)
	case protocol.VerbDevices:
		// accepted, no side effect — reserved by the protocol.
	}
}

func toView(p channel.Participant) protocol.ParticipantView {
	return protocol.ParticipantView{ID: p.ID, Name: p.Name, Color: p.Color, X: p.X, Y: p.Y}
}

func defaultColorFor(id string) string {
	if len(id) >= 6 {
		return "#" + id[:6]
	}
	return "#ffffff"
}

func (h *Hub) handleHi(clientID string) {
	rec, ok := h.Store.Client(clientID)
	if !ok {
		return
	}

	p := channel.Participant{ID: clientID, Name: "Anonymous", Color: defaultColorFor(clientID)}
	rec.SetParticipant(p)

	hiOut := protocol.HiOut{M: protocol.VerbHi, Participant: toView(p)}
	params := rec.Quota.Params()
	nqOut := protocol.NoteQuotaOut{
		M: protocol.VerbNoteQuota, Points: params.Points, Allowance: params.Allowance,
		Max: params.Max, MaxHistLen: params.MaxHistLen,
	}

	data, err := protocol.EncodeFrame(hiOut, nqOut)
	if err != nil {
		return
	}
	h.Router.ToClient(clientID, data)
}

func (h *Hub) handleTime(clientID string, raw json.RawMessage) {
	var in protocol.TimeIn
	if err := json.Unmarshal(raw, &in); err != nil {
		return
	}
	out := protocol.TimeOut{M: protocol.VerbTime, T: nowMs(), E: in.E}
	data, err := protocol.EncodeFrame(out)
	if err != nil {
		return
	}
	h.Router.ToClient(clientID, data)
}

func (h *Hub) handleLsAdd(clientID string) {
	h.Store.SubscribeLs(clientID)
	h.Router.ToClient(clientID, h.lsSnapshotFrame())
}

func (h *Hub) handleLsRemove(clientID string) {
	h.Store.UnsubscribeLs(clientID)
}

func (h *Hub) lsSnapshotFrame() []byte {
	entries := make([]protocol.LsSnapshotEntry, 0)
	for _, c := range h.Store.Channels() {
		s := c.Settings()
		if !s.Visible {
			continue
		}
		entries = append(entries, protocol.LsSnapshotEntry{ID: c.ID(), Count: c.Count(), Visible: s.Visible})
	}
	data, err := protocol.EncodeFrame(protocol.LsOut{M: protocol.VerbLsSnapshot, C: entries})
	if err != nil {
		return nil
	}
	return data
}

func (h *Hub) broadcastLsSnapshot() {
	data := h.lsSnapshotFrame()
	if data == nil {
		return
	}
	h.Router.ToLsSubscribers(data)
}

func (h *Hub) handleJoin(clientID string, raw json.RawMessage) {
	rec, ok := h.Store.Client(clientID)
	if !ok {
		return
	}
	var in protocol.JoinIn
	if err := json.Unmarshal(raw, &in); err != nil {
		return
	}
	if err := validator.ValidateChannelID(in.ID); err != nil {
		return
	}

	targetID := h.resolveBanRedirect(rec.UserID, in.ID)
	h.performJoin(clientID, targetID)
}

func (h *Hub) channelOutFrame(ch *channel.Channel) protocol.ChannelOut {
	s := ch.Settings()
	var crownView *protocol.CrownView
	if !ch.Special() {
		if c := ch.Crown(); c != nil {
			cv := protocol.CrownView{UserID: c.UserID}
			if c.State == channel.CrownHeld {
				cv.ParticipantID = c.ParticipantID
			}
			crownView = &cv
		}
	}

	parts := ch.Participants()
	views := make([]protocol.ParticipantView, 0, len(parts))
	for _, p := range parts {
		views = append(views, toView(p))
	}

	return protocol.ChannelOut{
		M:  protocol.VerbChannel,
		ID: ch.ID(),
		Settings: protocol.ChannelSettingsView{
			Color: s.Color, Chat: s.Chat, Crownsolo: s.Crownsolo, Visible: s.Visible, Lobby: s.Lobby,
		},
		Crown:        crownView,
		Participants: views,
	}
}

func (h *Hub) sendChannelState(clientID string, ch *channel.Channel) {
	data, err := protocol.EncodeFrame(h.channelOutFrame(ch))
	if err != nil {
		return
	}
	h.Router.ToClient(clientID, data)
}

func (h *Hub) broadcastChannelState(ch *channel.Channel) {
	data, err := protocol.EncodeFrame(h.channelOutFrame(ch))
	if err != nil {
		return
	}
	h.Router.ToChannel(ch.ID(), data, "")
}

func (h *Hub) sendChatHistory(clientID string, ch *channel.Channel) {
	hist := ch.ChatHistory()
	entries := make([]protocol.ChatEntryView, 0, len(hist))
	for _, e := range hist {
		entries = append(entries, protocol.ChatEntryView{Participant: toView(e.Participant), A: e.Text, T: e.AtMs})
	}
	data, err := protocol.EncodeFrame(protocol.ChatHistoryOut{M: protocol.VerbChatHistory, ID: ch.ID(), C: entries})
	if err != nil {
		return
	}
	h.Router.ToClient(clientID, data)
}

func (h *Hub) sendNotification(clientID, kind, text string) {
	data, err := protocol.EncodeFrame(protocol.NotificationOut{M: protocol.VerbNotification, Kind: kind, Text: text})
	if err != nil {
		return
	}
	h.Router.ToClient(clientID, data)
}

func (h *Hub) handleChanSet(clientID string, raw json.RawMessage) {
	rec, ok := h.Store.Client(clientID)
	if !ok {
		return
	}
	channelID := rec.ChannelID()
	if channelID == "" {
		return
	}
	ch, ok := h.Store.Channel(channelID)
	if !ok || ch.Special() {
		return
	}

	holds := false
	ch.WithCrown(func(c *channel.Crown) { holds = c.HeldBy(clientID) })
	if !holds {
		return
	}

	var in protocol.ChanSetIn
	if err := json.Unmarshal(raw, &in); err != nil {
		return
	}
	var patch struct {
		Color     *string `json:"color"`
		Chat      *bool   `json:"chat"`
		Crownsolo *bool   `json:"crownsolo"`
		Visible   *bool   `json:"visible"`
	}
	if err := json.Unmarshal(in.Set, &patch); err != nil {
		return
	}
	if patch.Color != nil {
		if err := validator.ValidateHexColor(*patch.Color); err != nil {
			return
		}
	}

	ch.MergeSettings(func(s *channel.Settings) {
		if patch.Color != nil {
			s.Color = *patch.Color
		}
		if patch.Chat != nil {
			s.Chat = *patch.Chat
		}
		if patch.Crownsolo != nil {
			s.Crownsolo = *patch.Crownsolo
		}
		if patch.Visible != nil {
			s.Visible = *patch.Visible
		}
	})

	h.broadcastChannelState(ch)
	h.broadcastLsSnapshot()
}

func (h *Hub) handleChanOwn(clientID string, raw json.RawMessage) {
	rec, ok := h.Store.Client(clientID)
	if !ok {
		return
	}
	channelID := rec.ChannelID()
	if channelID == "" {
		return
	}
	ch, ok := h.Store.Channel(channelID)
	if !ok || ch.Special() {
		return
	}

	var in protocol.ChanOwnIn
	if err := json.Unmarshal(raw, &in); err != nil {
		return
	}

	var targetUserID string
	if in.ID != nil {
		if _, present := ch.Get(*in.ID); !present {
			return
		}
		targetRec, ok := h.Store.Client(*in.ID)
		if !ok {
			return
		}
		targetUserID = targetRec.UserID
	}

	now := nowMs()
	transferred := false
	ch.WithCrown(func(c *channel.Crown) {
		if !c.HeldBy(clientID) {
			return
		}
		if in.ID == nil {
			c.Drop(now)
		} else {
			c.Hold(*in.ID, targetUserID, now)
		}
		transferred = true
	})
	if !transferred {
		return
	}

	toID := ""
	if in.ID != nil {
		toID = *in.ID
	}
	if h.Audit != nil {
		h.Audit.RecordCrownTransfer(channelID, clientID, toID, now)
	}
	h.Events.PublishCrownTransfer(channelID, clientID, toID, now)

	h.broadcastChannelState(ch)
}

func (h *Hub) handleKickban(clientID string, raw json.RawMessage) {
	rec, ok := h.Store.Client(clientID)
	if !ok {
		return
	}
	channelID := rec.ChannelID()
	if channelID == "" {
		return
	}
	ch, ok := h.Store.Channel(channelID)
	if !ok || ch.Special() {
		return
	}

	var in protocol.KickbanIn
	if err := json.Unmarshal(raw, &in); err != nil {
		return
	}
	if _, present := ch.Get(in.ID); !present {
		return
	}
	targetRec, ok := h.Store.Client(in.ID)
	if !ok {
		return
	}

	holds := false
	ch.WithCrown(func(c *channel.Crown) { holds = c.HeldBy(clientID) })
	if !holds {
		return
	}

	ms := int64(defaultBanMs)
	if in.Ms != nil {
		ms = *in.Ms
		if ms < 0 {
			ms = 0
		}
		if ms > maxBanMs {
			ms = maxBanMs
		}
	}

	now := nowMs()
	h.Store.PutBan(targetRec.UserID, store.BanRecord{ChannelID: channelID, ExpiryMs: now + ms})
	h.Metrics.IncrementKicks()
	h.Metrics.IncrementBans()
	if h.Audit != nil {
		h.Audit.RecordKickban(channelID, clientID, in.ID, ms, now)
	}
	h.Events.PublishBan(channelID, clientID, in.ID, now)

	h.forceJoin(in.ID)

	h.sendChannelNotification(channelID, "kickban", fmt.Sprintf("%s was banned", in.ID))
}

func (h *Hub) handleUnban(clientID string, raw json.RawMessage) {
	rec, ok := h.Store.Client(clientID)
	if !ok {
		return
	}
	channelID := rec.ChannelID()
	if channelID == "" {
		return
	}
	ch, ok := h.Store.Channel(channelID)
	if !ok || ch.Special() {
		return
	}

	holds := false
	ch.WithCrown(func(c *channel.Crown) { holds = c.HeldBy(clientID) })
	if !holds {
		return
	}

	var in protocol.UnbanIn
	if err := json.Unmarshal(raw, &in); err != nil {
		return
	}

	targetUserID := in.ID
	if targetRec, ok := h.Store.Client(in.ID); ok {
		targetUserID = targetRec.UserID
	}

	now := nowMs()
	if h.Store.DeleteBanIfChannel(targetUserID, channelID) {
		h.Metrics.IncrementUnbans()
		if h.Audit != nil {
			h.Audit.RecordUnban(channelID, clientID, in.ID, now)
		}
	}

	h.sendChannelNotification(channelID, "unban", fmt.Sprintf("%s was unbanned", in.ID))
}

func (h *Hub) sendChannelNotification(channelID, kind, text string) {
	data, err := protocol.EncodeFrame(protocol.NotificationOut{M: protocol.VerbNotification, Kind: kind, Text: text})
	if err != nil {
		return
	}
	h.Router.ToChannel(channelID, data, "")
}

func (h *Hub) handleUserSet(clientID string, raw json.RawMessage) {
	rec, ok := h.Store.Client(clientID)
	if !ok {
		return
	}
	var in protocol.UserSetIn
	if err := json.Unmarshal(raw, &in); err != nil {
		return
	}
	var patch struct {
		Name  *string `json:"name"`
		Color *string `json:"color"`
	}
	if err := json.Unmarshal(in.Set, &patch); err != nil {
		return
	}
	if patch.Name != nil {
		if err := validator.ValidateDisplayName(*patch.Name); err != nil {
			return
		}
	}
	if patch.Color != nil {
		if err := validator.ValidateHexColor(*patch.Color); err != nil {
			return
		}
	}

	apply := func(p *channel.Participant) {
		if patch.Name != nil {
			p.Name = *patch.Name
		}
		if patch.Color != nil {
			p.Color = *patch.Color
		}
	}
	rec.UpdateParticipant(apply)

	channelID := rec.ChannelID()
	if channelID == "" {
		return
	}
	ch, ok := h.Store.Channel(channelID)
	if !ok {
		return
	}
	ch.UpdateParticipant(clientID, apply)

	p, ok := ch.Get(clientID)
	if !ok {
		return
	}
	data, err := protocol.EncodeFrame(protocol.ParticipantJoinOut{M: protocol.VerbParticipant, P: toView(p)})
	if err != nil {
		return
	}
	h.Router.ToChannel(channelID, data, "")
}

func (h *Hub) handleMove(clientID string, raw json.RawMessage) {
	rec, ok := h.Store.Client(clientID)
	if !ok {
		return
	}
	channelID := rec.ChannelID()
	if channelID == "" {
		return
	}
	var in protocol.MoveIn
	if err := json.Unmarshal(raw, &in); err != nil {
		return
	}

	now := nowMs()
	if now-rec.LastMoveMs() < moveThrottleMs {
		return
	}
	rec.SetLastMoveMs(now)

	apply := func(p *channel.Participant) { p.X = in.X; p.Y = in.Y }
	rec.UpdateParticipant(apply)

	ch, ok := h.Store.Channel(channelID)
	if !ok {
		return
	}
	ch.UpdateParticipant(clientID, apply)

	data, err := protocol.EncodeFrame(protocol.MoveOut{M: protocol.VerbMove, ID: clientID, X: in.X, Y: in.Y})
	if err != nil {
		return
	}
	h.Router.ToChannel(channelID, data, clientID)
}

func (h *Hub) handleNotes(clientID string, raw json.RawMessage) {
	rec, ok := h.Store.Client(clientID)
	if !ok {
		return
	}
	channelID := rec.ChannelID()
	if channelID == "" {
		return
	}
	var in protocol.NotesIn
	if err := json.Unmarshal(raw, &in); err != nil {
		return
	}

	cost := len(in.N)
	if !rec.Quota.Spend(cost) {
		h.Metrics.IncrementNotesThrottled()
		h.sendNotification(clientID, "quota", "note rate exceeded")
		return
	}

	ch, ok := h.Store.Channel(channelID)
	if !ok {
		return
	}
	if ch.Settings().Crownsolo {
		holds := false
		ch.WithCrown(func(c *channel.Crown) { holds = c.HeldBy(clientID) })
		if !holds {
			return
		}
	}
	h.Metrics.IncrementNotesDispatched(cost)

	data, err := protocol.EncodeFrame(protocol.NotesOut{M: protocol.VerbNotes, P: clientID, T: nowMs(), N: in.N})
	if err != nil {
		return
	}
	h.Router.ToChannel(channelID, data, clientID)
}

func (h *Hub) handleChat(clientID string, raw json.RawMessage) {
	rec, ok := h.Store.Client(clientID)
	if !ok {
		return
	}
	channelID := rec.ChannelID()
	if channelID == "" {
		return
	}
	ch, ok := h.Store.Channel(channelID)
	if !ok || !ch.Settings().Chat {
		return
	}
	p, ok := ch.Get(clientID)
	if !ok {
		return
	}

	var in protocol.ChatIn
	if err := json.Unmarshal(raw, &in); err != nil {
		return
	}
	text := validator.SanitizeChat(in.A)
	if text == "" {
		return
	}

	now := nowMs()
	ch.AppendChat(channel.ChatEntry{Participant: p, Text: text, AtMs: now})

	data, err := protocol.EncodeFrame(protocol.ChatOut{M: protocol.VerbChat, A: text, P: toView(p), T: now})
	if err != nil {
		return
	}
	h.Router.ToChannel(channelID, data, "")
	h.Metrics.IncrementChatMessages()
}
