package broadcast

import (
	"testing"

	"github.com/nyxikitty/mpp-server/internal/channel"
	"github.com/nyxikitty/mpp-server/internal/outbound"
	"github.com/nyxikitty/mpp-server/internal/store"
)

func drain(q *outbound.Queue) []string {
	q.Close()
	var out []string
	for {
		f, ok := q.Pop()
		if !ok {
			break
		}
		out = append(out, string(f))
	}
	return out
}

func TestToClientDropsSilentlyWithoutQueue(t *testing.T) {
	s := store.New()
	r := New(s)
	r.ToClient("ghost", []byte("frame")) // must not panic
}

func TestToChannelExcludesSender(t *testing.T) {
	s := store.New()
	r := New(s)

	ch := channel.New("room1", "u1", 0)
	ch.TryAdd(channel.Participant{ID: "a"})
	ch.TryAdd(channel.Participant{ID: "b"})
	s.GetOrCreateChannel("room1", func() *channel.Channel { return ch })

	qa := outbound.New()
	qb := outbound.New()
	s.PutOutbound("a", qa)
	s.PutOutbound("b", qb)

	r.ToChannel("room1", []byte("hello"), "a")

	if frames := drain(qa); len(frames) != 0 {
		t.Fatalf("expected sender excluded, got %v", frames)
	}
	if frames := drain(qb); len(frames) != 1 || frames[0] != "hello" {
		t.Fatalf("expected b to receive hello, got %v", frames)
	}
}

func TestToLsSubscribersFansOutToAll(t *testing.T) {
	s := store.New()
	r := New(s)

	s.SubscribeLs("x")
	s.SubscribeLs("y")
	qx := outbound.New()
	qy := outbound.New()
	s.PutOutbound("x", qx)
	s.PutOutbound("y", qy)

	r.ToLsSubscribers([]byte("snapshot"))

	if frames := drain(qx); len(frames) != 1 {
		t.Fatalf("expected x to get one frame, got %v", frames)
	}
	if frames := drain(qy); len(frames) != 1 {
		t.Fatalf("expected y to get one frame, got %v", frames)
	}
}
