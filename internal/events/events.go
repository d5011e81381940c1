// Package events publishes room lifecycle telemetry to NATS: a fire-and-
// forget notification stream for operators, adapted from the teacher's
// internal/nats.Client but trimmed to publish-only. There is no
// subscribe side and no JetStream: this is one-way telemetry, never a
// channel for replicating channel/participant/crown state across
// server processes (that remains out of scope).
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Subject constants for room lifecycle telemetry.
const (
	SubjectChannelCreated = "mpp.channel.created"
	SubjectChannelDeleted = "mpp.channel.deleted"
	SubjectCrownTransfer  = "mpp.channel.crown"
	SubjectParticipantBan = "mpp.channel.ban"
)

// RoomLifecycleEvent is the JSON payload published for every lifecycle
// notification.
type RoomLifecycleEvent struct {
	ChannelID string `json:"channel_id"`
	ActorID   string `json:"actor_id,omitempty"`
	TargetID  string `json:"target_id,omitempty"`
	AtMs      int64  `json:"at_ms"`
}

// Publisher wraps a NATS connection. A nil Publisher (or one with no
// connection) is a valid no-op, so callers never need to branch on
// whether NATS is configured.
type Publisher struct {
	conn     *nats.Conn
	logger   *zerolog.Logger
	serverID string
}

// Connect dials url and returns a Publisher. Connection failures are
// returned to the caller, who may choose to run without telemetry
// rather than fail startup — NATS was never a hard dependency for the
// relay's correctness.
func Connect(url string, logger *zerolog.Logger) (*Publisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("mpp-server"),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("events: nats disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("events: nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("events: connect: %w", err)
	}
	return &Publisher{conn: conn, logger: logger, serverID: fmt.Sprintf("mpp-%d", time.Now().UnixNano())}, nil
}

// Close closes the underlying connection without draining it. Safe to call on a
// nil Publisher.
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	p.conn.Close()
}

func (p *Publisher) publish(subject string, ev RoomLifecycleEvent) {
	if p == nil || p.conn == nil {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error().Err(err).Msg("events: marshal failed")
		return
	}
	if err := p.conn.Publish(subject, data); err != nil {
		p.logger.Warn().Err(err).Str("subject", subject).Msg("events: publish failed")
	}
}

// PublishChannelCreated notifies that a channel came into existence.
func (p *Publisher) PublishChannelCreated(channelID, actorID string, now int64) {
	p.publish(SubjectChannelCreated, RoomLifecycleEvent{ChannelID: channelID, ActorID: actorID, AtMs: now})
}

// PublishChannelDeleted notifies that a channel was garbage collected.
func (p *Publisher) PublishChannelDeleted(channelID string, now int64) {
	p.publish(SubjectChannelDeleted, RoomLifecycleEvent{ChannelID: channelID, AtMs: now})
}

// PublishCrownTransfer notifies that the crown moved between
// participants within a channel.
func (p *Publisher) PublishCrownTransfer(channelID, fromID, toID string, now int64) {
	p.publish(SubjectCrownTransfer, RoomLifecycleEvent{ChannelID: channelID, ActorID: fromID, TargetID: toID, AtMs: now})
}

// PublishBan notifies that a participant was kicked or banned.
func (p *Publisher) PublishBan(channelID, actorID, targetID string, now int64) {
	p.publish(SubjectParticipantBan, RoomLifecycleEvent{ChannelID: channelID, ActorID: actorID, TargetID: targetID, AtMs: now})
}
