package metrics

import "testing"

func TestActiveClientsTracksConnectAndDisconnect(t *testing.T) {
	m := New()
	m.IncrementActiveClients()
	m.IncrementActiveClients()
	m.DecrementActiveClients()

	if m.ActiveClients != 1 {
		t.Fatalf("expected 1 active client, got %d", m.ActiveClients)
	}
	if m.TotalConnections != 2 {
		t.Fatalf("expected 2 total connections, got %d", m.TotalConnections)
	}
	if m.Disconnections != 1 {
		t.Fatalf("expected 1 disconnection, got %d", m.Disconnections)
	}
}

func TestChannelOccupancySetAndRemove(t *testing.T) {
	m := New()
	m.SetChannelOccupancy("room1", 3)
	m.SetChannelOccupancy("room2", 5)

	occ := m.GetAllChannelOccupancy()
	if occ["room1"] != 3 || occ["room2"] != 5 {
		t.Fatalf("unexpected occupancy snapshot: %v", occ)
	}

	m.RemoveChannel("room1")
	occ = m.GetAllChannelOccupancy()
	if _, ok := occ["room1"]; ok {
		t.Fatal("expected room1 removed")
	}
}

func TestSummaryIncludesCounters(t *testing.T) {
	m := New()
	m.IncrementNotesDispatched(5)
	m.IncrementNotesThrottled()
	m.IncrementKicks()

	s := m.Summary()
	if s["notes_dispatched"].(int64) != 5 {
		t.Fatalf("expected notes_dispatched=5, got %v", s["notes_dispatched"])
	}
	if s["notes_throttled"].(int64) != 1 {
		t.Fatalf("expected notes_throttled=1, got %v", s["notes_throttled"])
	}
	if s["kicks"].(int64) != 1 {
		t.Fatalf("expected kicks=1, got %v", s["kicks"])
	}
}
