package store

import (
	"sync"
	"testing"

	"github.com/nyxikitty/mpp-server/internal/channel"
	"github.com/nyxikitty/mpp-server/internal/client"
)

func TestGetOrCreateChannelOnce(t *testing.T) {
	s := New()
	calls := 0
	newFn := func() *channel.Channel {
		calls++
		return channel.New("room1", "u1", 0)
	}

	c1, created1 := s.GetOrCreateChannel("room1", newFn)
	c2, created2 := s.GetOrCreateChannel("room1", newFn)

	if !created1 || created2 {
		t.Fatalf("expected created=true then false, got %v then %v", created1, created2)
	}
	if c1 != c2 {
		t.Fatal("expected the same channel instance on second call")
	}
	if calls != 1 {
		t.Fatalf("expected newFn called once, got %d", calls)
	}
}

func TestClientLifecycle(t *testing.T) {
	s := New()
	rec := client.New("u1")
	s.PutClient("c1", rec)

	got, ok := s.Client("c1")
	if !ok || got != rec {
		t.Fatal("expected to retrieve the same client record")
	}

	s.DeleteClient("c1")
	if _, ok := s.Client("c1"); ok {
		t.Fatal("expected client to be gone after delete")
	}
}

func TestBanLazyExpiryIsCallerResponsibility(t *testing.T) {
	s := New()
	s.PutBan("u1", BanRecord{ChannelID: "room1", ExpiryMs: 100})

	rec, ok := s.Ban("u1")
	if !ok || rec.ExpiryMs != 100 {
		t.Fatalf("expected ban record, got %+v ok=%v", rec, ok)
	}
}

func TestDeleteBanIfChannelOnlyMatchingChannel(t *testing.T) {
	s := New()
	s.PutBan("u1", BanRecord{ChannelID: "room1", ExpiryMs: 100})

	if s.DeleteBanIfChannel("u1", "room2") {
		t.Fatal("should not delete ban for a different channel")
	}
	if !s.DeleteBanIfChannel("u1", "room1") {
		t.Fatal("expected ban to be removed for matching channel")
	}
	if _, ok := s.Ban("u1"); ok {
		t.Fatal("expected ban gone after removal")
	}
}

func TestLsSubscribeIdempotent(t *testing.T) {
	s := New()
	s.SubscribeLs("c1")
	s.SubscribeLs("c1")
	if subs := s.LsSubscribers(); len(subs) != 1 {
		t.Fatalf("expected exactly one subscriber, got %v", subs)
	}
}

func TestConcurrentChannelCreationRace(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	results := make([]*channel.Channel, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			c, _ := s.GetOrCreateChannel("shared", func() *channel.Channel {
				return channel.New("shared", "u1", 0)
			})
			results[idx] = c
		}(i)
	}
	wg.Wait()

	first := results[0]
	for _, c := range results {
		if c != first {
			t.Fatal("expected all callers to observe the same channel instance")
		}
	}
}
