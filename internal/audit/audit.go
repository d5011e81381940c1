// Package audit records moderator and channel-lifecycle actions for
// later inspection: crown transfers, kicks, bans, unbans, and channel
// creation/teardown. It is deliberately NOT a replacement for the core
// in-memory state (channels, participants, crowns remain process-local
// and volatile) — it is a durable side record of what moderators did,
// grounded on the teacher's server/audit.go AuditLogger.
//
// Events are coalesced through a debounced batch (see internal/batch)
// before reaching the sink, the way the teacher's own batch.go coalesces
// chat/message traffic. When no DATABASE_URL is configured, the sink is
// a no-op and events are only logged.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/nyxikitty/mpp-server/internal/batch"
)

// EventType names the kind of moderator or lifecycle action recorded.
type EventType string

const (
	EventKickban        EventType = "kickban"
	EventUnban          EventType = "unban"
	EventCrownTransfer  EventType = "crown_transfer"
	EventChannelCreated EventType = "channel_created"
	EventChannelDeleted EventType = "channel_deleted"
)

// Event is a single audit record. ID is assigned by Record, not by the
// caller, so every event reaching the sink carries a stable identity
// even though the batch may coalesce many events before it flushes.
type Event struct {
	ID        string
	Type      EventType
	ChannelID string
	ActorID   string
	TargetID  string
	Detail    string
	AtMs      int64
}

const (
	flushSize     = 20
	flushInterval = 200 * time.Millisecond
)

// Sink persists a batch of events. InsertBatch must tolerate partial
// failure by logging and continuing; the audit trail is best-effort and
// must never block or fail the caller's moderation action.
type Sink interface {
	InsertBatch(ctx context.Context, events []Event)
}

// Log is the audit facade used by the hub. It owns the debounce batch
// and fans flushed batches out to a Sink.
type Log struct {
	batch  *batch.Batch[Event]
	sink   Sink
	logger *zerolog.Logger
}

// New constructs a Log. If sink is nil, events are logged only, never
// persisted — the audit trail degrades to stdout instead of failing.
func New(sink Sink, logger *zerolog.Logger) *Log {
	l := &Log{sink: sink, logger: logger}
	l.batch = batch.New(flushSize, flushInterval, l.flush)
	return l
}

func (l *Log) flush(events []Event) {
	for _, e := range events {
		l.logger.Info().
			Str("id", e.ID).
			Str("type", string(e.Type)).
			Str("channel", e.ChannelID).
			Str("actor", e.ActorID).
			Str("target", e.TargetID).
			Str("detail", e.Detail).
			Msg("audit")
	}
	if l.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	l.sink.InsertBatch(ctx, events)
}

// Record enqueues an event for the next flush. Never blocks the caller
// beyond the batch's internal mutex.
func (l *Log) Record(e Event) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	l.batch.Add(e)
}

// RecordKickban records a moderator kicking or banning a participant.
func (l *Log) RecordKickban(channelID, actorID, targetID string, banMs int64, now int64) {
	l.Record(Event{
		Type: EventKickban, ChannelID: channelID, ActorID: actorID, TargetID: targetID,
		Detail: durationDetail(banMs), AtMs: now,
	})
}

// RecordUnban records a moderator lifting a ban early.
func (l *Log) RecordUnban(channelID, actorID, targetID string, now int64) {
	l.Record(Event{
		Type: EventUnban, ChannelID: channelID, ActorID: actorID, TargetID: targetID, AtMs: now,
	})
}

// RecordCrownTransfer records the crown moving between participants.
func (l *Log) RecordCrownTransfer(channelID, fromID, toID string, now int64) {
	l.Record(Event{
		Type: EventCrownTransfer, ChannelID: channelID, ActorID: fromID, TargetID: toID, AtMs: now,
	})
}

// RecordChannelCreated records a channel's first participant joining.
func (l *Log) RecordChannelCreated(channelID, actorID string, now int64) {
	l.Record(Event{Type: EventChannelCreated, ChannelID: channelID, ActorID: actorID, AtMs: now})
}

// RecordChannelDeleted records a channel becoming empty and being
// garbage collected.
func (l *Log) RecordChannelDeleted(channelID string, now int64) {
	l.Record(Event{Type: EventChannelDeleted, ChannelID: channelID, AtMs: now})
}

// Stop flushes any buffered events and releases the batch's goroutine.
func (l *Log) Stop() {
	l.batch.Stop()
}

func durationDetail(ms int64) string {
	if ms <= 0 {
		return "permanent"
	}
	return time.Duration(ms * int64(time.Millisecond)).String()
}

// PgSink persists audit events with raw SQL over pgx, hand-written
// rather than generated: the teacher's sqlc-generated query layer it
// would normally ride on was not part of the retrieved sources.
type PgSink struct {
	pool   *pgxpool.Pool
	logger *zerolog.Logger
}

// NewPgSink wraps an existing pool. Callers are responsible for running
// the accompanying migration (see schema.sql) before events arrive.
func NewPgSink(pool *pgxpool.Pool, logger *zerolog.Logger) *PgSink {
	return &PgSink{pool: pool, logger: logger}
}

const insertEventSQL = `
INSERT INTO audit_events (id, event_type, channel_id, actor_id, target_id, detail, at_ms)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`

// InsertBatch writes each event in its own statement inside one
// transaction. A failure logs and aborts the transaction; it never
// panics or propagates to the caller.
func (s *PgSink) InsertBatch(ctx context.Context, events []Event) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("audit: begin tx failed")
		return
	}
	defer tx.Rollback(ctx)

	for _, e := range events {
		if _, err := tx.Exec(ctx, insertEventSQL, e.ID, e.Type, e.ChannelID, e.ActorID, e.TargetID, e.Detail, e.AtMs); err != nil {
			s.logger.Error().Err(err).Str("id", e.ID).Str("type", string(e.Type)).Msg("audit: insert failed")
			return
		}
	}

	if err := tx.Commit(ctx); err != nil {
		s.logger.Error().Err(err).Msg("audit: commit failed")
	}
}
