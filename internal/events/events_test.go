package events

import "testing"

func TestNilPublisherMethodsAreNoOps(t *testing.T) {
	var p *Publisher
	p.PublishChannelCreated("room1", "u1", 1000)
	p.PublishChannelDeleted("room1", 2000)
	p.PublishCrownTransfer("room1", "u1", "u2", 3000)
	p.PublishBan("room1", "mod", "troll", 4000)
	p.Close()
}
