package hub

import (
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"

	"github.com/nyxikitty/mpp-server/internal/channel"
	"github.com/nyxikitty/mpp-server/internal/metrics"
	"github.com/nyxikitty/mpp-server/internal/outbound"
	"github.com/nyxikitty/mpp-server/internal/protocol"
	"github.com/nyxikitty/mpp-server/internal/store"
)

func newTestHub() *Hub {
	l := zerolog.Nop()
	return New(store.New(), metrics.New(), nil, nil, &l)
}

func connectClient(t *testing.T, h *Hub, clientID, userID string) *outbound.Queue {
	t.Helper()
	q := h.Connect(clientID, userID)
	h.Dispatch(clientID, protocol.Inbound{Verb: protocol.VerbHi, Raw: json.RawMessage(`{"m":"hi"}`)})
	return q
}

// messagesOf decodes a frame (a JSON array of message objects) into their
// raw per-object form, keyed by "m".
func messagesOf(t *testing.T, frame []byte) []map[string]any {
	t.Helper()
	var raws []json.RawMessage
	if err := json.Unmarshal(frame, &raws); err != nil {
		t.Fatalf("frame is not a JSON array: %v", err)
	}
	out := make([]map[string]any, 0, len(raws))
	for _, r := range raws {
		var m map[string]any
		if err := json.Unmarshal(r, &m); err != nil {
			t.Fatalf("message is not an object: %v", err)
		}
		out = append(out, m)
	}
	return out
}

// popOne pops exactly one frame, failing the test if the queue was closed
// with nothing left to drain. Every handler call in these tests is
// synchronous, so the frame it produces is already buffered by the time
// popOne runs.
func popOne(t *testing.T, q *outbound.Queue) []byte {
	t.Helper()
	frame, ok := q.Pop()
	if !ok {
		t.Fatal("expected a buffered frame, queue was empty")
	}
	return frame
}

func TestHiSendsParticipantAndQuota(t *testing.T) {
	h := newTestHub()
	q := h.Connect("c1", "u1")
	h.Dispatch("c1", protocol.Inbound{Verb: protocol.VerbHi})

	frame := popOne(t, q)
	msgs := messagesOf(t, frame)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages (hi, nq), got %d", len(msgs))
	}
	if msgs[0]["m"] != "hi" || msgs[1]["m"] != "nq" {
		t.Fatalf("unexpected verbs: %v", msgs)
	}
}

func TestJoinAssignsCrownToFirstJoiner(t *testing.T) {
	h := newTestHub()
	q := connectClient(t, h, "c1", "u1")
	popOne(t, q) // hi+nq

	h.Dispatch("c1", protocol.Inbound{Verb: protocol.VerbJoin, Raw: json.RawMessage(`{"m":"ch","_id":"room1"}`)})

	chFrame := popOne(t, q)
	msgs := messagesOf(t, chFrame)
	if msgs[0]["m"] != "ch" {
		t.Fatalf("expected ch frame first, got %v", msgs[0])
	}
	crown, ok := msgs[0]["crown"].(map[string]any)
	if !ok {
		t.Fatalf("expected crown object, got %v", msgs[0]["crown"])
	}
	if crown["participantId"] != "c1" {
		t.Fatalf("expected c1 to hold the crown, got %v", crown)
	}
}

func TestChownDropThenSecondJoinerClaims(t *testing.T) {
	h := newTestHub()
	qa := connectClient(t, h, "a", "ua")
	popOne(t, qa)
	h.Dispatch("a", protocol.Inbound{Verb: protocol.VerbJoin, Raw: json.RawMessage(`{"m":"ch","_id":"room1"}`)})
	popOne(t, qa) // ch
	popOne(t, qa) // c (chat history)

	h.Dispatch("a", protocol.Inbound{Verb: protocol.VerbChanOwn, Raw: json.RawMessage(`{"m":"chown"}`)})
	dropFrame := popOne(t, qa)
	msgs := messagesOf(t, dropFrame)
	crown := msgs[0]["crown"].(map[string]any)
	if _, held := crown["participantId"]; held {
		t.Fatalf("expected crown dropped, got %v", crown)
	}

	ch, _ := h.Store.Channel("room1")
	c := ch.Crown()
	if c.State != channel.CrownDropped {
		t.Fatalf("expected dropped state, got %v", c.State)
	}

	qb := connectClient(t, h, "b", "ub")
	popOne(t, qb) // hi+nq
	h.Dispatch("b", protocol.Inbound{Verb: protocol.VerbJoin, Raw: json.RawMessage(`{"m":"ch","_id":"room1"}`)})
	joinFrame := popOne(t, qb) // ch
	popOne(t, qb)              // c (chat history)

	joinMsgs := messagesOf(t, joinFrame)
	bCrown := joinMsgs[0]["crown"].(map[string]any)
	if bCrown["participantId"] != "b" {
		t.Fatalf("expected b to claim the dropped crown immediately, got %v", bCrown)
	}
}

func TestChatHistoryBoundedAtThirtyTwo(t *testing.T) {
	h := newTestHub()
	qa := connectClient(t, h, "a", "ua")
	popOne(t, qa)
	h.Dispatch("a", protocol.Inbound{Verb: protocol.VerbJoin, Raw: json.RawMessage(`{"m":"ch","_id":"room1"}`)})
	popOne(t, qa)
	popOne(t, qa)

	for i := 0; i < 40; i++ {
		h.Dispatch("a", protocol.Inbound{Verb: protocol.VerbChat, Raw: json.RawMessage(`{"m":"a","a":"hello"}`)})
		popOne(t, qa) // each chat broadcasts back to sender too (no exclusion)
	}

	ch, _ := h.Store.Channel("room1")
	hist := ch.ChatHistory()
	if len(hist) != 32 {
		t.Fatalf("expected 32 retained messages, got %d", len(hist))
	}
}

func TestNoteQuotaThrottlesOverspend(t *testing.T) {
	h := newTestHub()
	qa := connectClient(t, h, "a", "ua")
	popOne(t, qa)
	h.Dispatch("a", protocol.Inbound{Verb: protocol.VerbJoin, Raw: json.RawMessage(`{"m":"ch","_id":"room1"}`)})
	popOne(t, qa)
	popOne(t, qa)

	big := make([]byte, 0, 4096)
	big = append(big, []byte(`{"m":"n","n":[`)...)
	for i := 0; i < 2000; i++ {
		if i > 0 {
			big = append(big, ',')
		}
		big = append(big, []byte(`{"n":"C4","v":1}`)...)
	}
	big = append(big, []byte(`]}`)...)

	h.Dispatch("a", protocol.Inbound{Verb: protocol.VerbNotes, Raw: json.RawMessage(big)})
	frame := popOne(t, qa)
	msgs := messagesOf(t, frame)
	if msgs[0]["m"] != "notification" || msgs[0]["kind"] != "quota" {
		t.Fatalf("expected a quota notification, got %v", msgs[0])
	}
}

func TestBanRedirectsToAwkward(t *testing.T) {
	h := newTestHub()
	qa := connectClient(t, h, "a", "ua")
	popOne(t, qa)
	h.Dispatch("a", protocol.Inbound{Verb: protocol.VerbJoin, Raw: json.RawMessage(`{"m":"ch","_id":"room1"}`)})
	popOne(t, qa)
	popOne(t, qa)

	qb := connectClient(t, h, "b", "ub")
	popOne(t, qb)
	h.Dispatch("b", protocol.Inbound{Verb: protocol.VerbJoin, Raw: json.RawMessage(`{"m":"ch","_id":"room1"}`)})
	popOne(t, qb) // b's own ch frame
	popOne(t, qb) // c
	popOne(t, qa) // p (b joined) broadcast to a

	h.Dispatch("a", protocol.Inbound{Verb: protocol.VerbKickban, Raw: json.RawMessage(`{"m":"kickban","_id":"b","ms":60000}`)})

	// b gets force-joined to test/awkward: ch + c frames, then a notification
	// broadcasts to room1 (now just a).
	bCh := popOne(t, qb)
	bMsgs := messagesOf(t, bCh)
	if bMsgs[0]["_id"] != channel.AwkwardChannelID {
		t.Fatalf("expected b redirected to awkward channel, got %v", bMsgs[0])
	}
	popOne(t, qb) // c of the forced join

	h.Dispatch("b", protocol.Inbound{Verb: protocol.VerbJoin, Raw: json.RawMessage(`{"m":"ch","_id":"room1"}`)})
	bCh2 := popOne(t, qb)
	bMsgs2 := messagesOf(t, bCh2)
	if bMsgs2[0]["_id"] != channel.AwkwardChannelID {
		t.Fatalf("expected banned rejoin attempt redirected again, got %v", bMsgs2[0])
	}
}

func TestExpiredBanForUnrelatedChannelIsPruned(t *testing.T) {
	h := newTestHub()
	h.Store.PutBan("ub", store.BanRecord{ChannelID: "otherRoom", ExpiryMs: 1})

	qa := connectClient(t, h, "a", "ub")
	popOne(t, qa)
	h.Dispatch("a", protocol.Inbound{Verb: protocol.VerbJoin, Raw: json.RawMessage(`{"m":"ch","_id":"room1"}`)})
	popOne(t, qa)
	popOne(t, qa)

	if _, banned := h.Store.Ban("ub"); banned {
		t.Fatal("expected the stale expired ban for an unrelated channel to be pruned")
	}
}

func TestEmptyNonSpecialChannelIsDeletedOnLeave(t *testing.T) {
	h := newTestHub()
	qa := connectClient(t, h, "a", "ua")
	popOne(t, qa)
	h.Dispatch("a", protocol.Inbound{Verb: protocol.VerbJoin, Raw: json.RawMessage(`{"m":"ch","_id":"rehearsal"}`)})
	popOne(t, qa)
	popOne(t, qa)

	if _, ok := h.Store.Channel("rehearsal"); !ok {
		t.Fatal("expected rehearsal to exist after join")
	}

	h.Disconnect("a")

	if _, ok := h.Store.Channel("rehearsal"); ok {
		t.Fatal("expected rehearsal deleted after last participant left")
	}
}

func TestLsSubscribeIsIdempotentAndReceivesSnapshot(t *testing.T) {
	h := newTestHub()
	q := h.Connect("a", "ua")

	h.Dispatch("a", protocol.Inbound{Verb: protocol.VerbLsAdd})
	popOne(t, q)
	h.Dispatch("a", protocol.Inbound{Verb: protocol.VerbLsAdd})
	popOne(t, q)

	if subs := h.Store.LsSubscribers(); len(subs) != 1 {
		t.Fatalf("expected exactly one subscriber, got %v", subs)
	}
}

func TestCapacityRefusesTwentyFirstJoiner(t *testing.T) {
	h := newTestHub()
	ch, _ := h.Store.GetOrCreateChannel("full", func() *channel.Channel {
		return channel.New("full", "creator", 0)
	})
	for i := 0; i < channel.Capacity; i++ {
		ch.TryAdd(channel.Participant{ID: "seed" + string(rune('a'+i))})
	}

	q := connectClient(t, h, "late", "ulate")
	popOne(t, q) // hi/nq

	h.Dispatch("late", protocol.Inbound{Verb: protocol.VerbJoin, Raw: json.RawMessage(`{"m":"ch","_id":"full"}`)})

	rec, _ := h.Store.Client("late")
	if rec.ChannelID() != "" {
		t.Fatalf("expected late joiner refused, got channel %q", rec.ChannelID())
	}
}
