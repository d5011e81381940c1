// Package protocol defines the wire format exchanged over the WebSocket:
// a JSON array of message objects per frame, each carrying a verb in "m".
package protocol

import "encoding/json"

// Verbs accepted from the client.
const (
	VerbHi       = "hi"
	VerbBye      = "bye"
	VerbLsAdd    = "+ls"
	VerbLsRemove = "-ls"
	VerbTime     = "t"
	VerbChat     = "a"
	VerbNotes    = "n"
	VerbMove     = "m"
	VerbUserSet  = "userset"
	VerbJoin     = "ch"
	VerbChanSet  = "chset"
	VerbChanOwn  = "chown"
	VerbKickban  = "kickban"
	VerbUnban    = "unban"
	VerbDevices  = "devices"
)

// Verbs emitted to the client. Most overlap with the inbound set; these
// are the outbound-only ones, plus "ch", which names both the outbound
// channel frame and the inbound join.
const (
	VerbNoteQuota    = "nq"
	VerbChannel      = "ch"
	VerbChatHistory  = "c"
	VerbParticipant  = "p"
	VerbNotification = "notification"
	VerbLsSnapshot   = "ls"
)

// Envelope is the minimal shape every inbound message object must have:
// a verb selector plus the raw remainder so handlers can decode their own
// verb-specific fields without a second parse pass.
type Envelope struct {
	M string `json:"m"`
}

// Inbound is a single parsed client message: its verb plus the raw JSON
// object it arrived in, so a handler can re-unmarshal into its own struct.
type Inbound struct {
	Verb string
	Raw  json.RawMessage
}

// ParseFrame decodes one WebSocket text frame into its message objects.
// A frame that is not a JSON array yields an error for the whole frame.
// Inside a well-formed array, elements that are not objects with a
// non-empty string "m" field are dropped silently and the good ones are
// returned.
func ParseFrame(data []byte) ([]Inbound, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, err
	}

	out := make([]Inbound, 0, len(raws))
	for _, raw := range raws {
		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			continue
		}
		if env.M == "" {
			continue
		}
		out = append(out, Inbound{Verb: env.M, Raw: raw})
	}
	return out, nil
}

// EncodeFrame serializes a batch of outbound message objects as a single
// JSON array, matching the inbound framing.
func EncodeFrame(messages ...any) ([]byte, error) {
	return json.Marshal(messages)
}

// ParticipantView is the public projection of a client sent over the wire.
type ParticipantView struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Color string  `json:"color"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}

// HiOut replies to "hi".
type HiOut struct {
	M           string          `json:"m"`
	Participant ParticipantView `json:"participant"`
}

// NoteQuotaOut reports the quota parameters after "hi".
type NoteQuotaOut struct {
	M            string `json:"m"`
	Points       int    `json:"points"`
	Allowance    int    `json:"allowance"`
	Max          int    `json:"max"`
	MaxHistLen   int    `json:"max_hist_len"`
}

// TimeIn/TimeOut implement the "t" echo.
type TimeIn struct {
	M string `json:"m"`
	E any    `json:"e"`
}

type TimeOut struct {
	M string `json:"m"`
	T int64  `json:"t"`
	E any    `json:"e"`
}

// JoinIn is the "ch" join request.
type JoinIn struct {
	M   string `json:"m"`
	ID  string `json:"_id"`
}

// ChannelSettingsView mirrors the channel's public settings.
type ChannelSettingsView struct {
	Color     string `json:"color"`
	Chat      bool   `json:"chat"`
	Crownsolo bool   `json:"crownsolo"`
	Visible   bool   `json:"visible"`
	Lobby     bool   `json:"lobby"`
}

// CrownView is the public projection of the crown state. ParticipantID is
// omitted while the crown is dropped; UserID still names the last holder.
type CrownView struct {
	ParticipantID string `json:"participantId,omitempty"`
	UserID        string `json:"userId,omitempty"`
}

// ChannelOut is the "ch" frame: channel metadata plus the participant list.
type ChannelOut struct {
	M            string              `json:"m"`
	ID           string              `json:"_id"`
	Settings     ChannelSettingsView `json:"settings"`
	Crown        *CrownView          `json:"crown,omitempty"`
	Participants []ParticipantView   `json:"participants"`
}

// ChatEntryView is one chat message as sent in history or live.
type ChatEntryView struct {
	Participant ParticipantView `json:"participant"`
	A           string          `json:"a"`
	T           int64           `json:"t"`
}

// ChatHistoryOut is the "c" frame sent right after joining.
type ChatHistoryOut struct {
	M  string          `json:"m"`
	ID string          `json:"_id"`
	C  []ChatEntryView `json:"c"`
}

// ParticipantJoinOut is the "p" frame broadcast on join and on profile update.
type ParticipantJoinOut struct {
	M string          `json:"m"`
	P ParticipantView `json:"p"`
}

// ByeOut announces a participant leaving.
type ByeOut struct {
	M  string `json:"m"`
	ID string `json:"id"`
}

// ChatIn/ChatOut implement "a".
type ChatIn struct {
	M string `json:"m"`
	A string `json:"a"`
}

type ChatOut struct {
	M string          `json:"m"`
	A string          `json:"a"`
	P ParticipantView `json:"p"`
	T int64           `json:"t"`
}

// Note is one element of an "n" batch.
type Note struct {
	N string   `json:"n"`
	V float64  `json:"v"`
	D *int64   `json:"d,omitempty"`
	S *bool    `json:"s,omitempty"`
}

// NotesIn/NotesOut implement "n".
type NotesIn struct {
	M string `json:"m"`
	N []Note `json:"n"`
}

type NotesOut struct {
	M string `json:"m"`
	P string `json:"p"`
	T int64  `json:"t"`
	N []Note `json:"n"`
}

// MoveIn/MoveOut implement "m" cursor updates.
type MoveIn struct {
	M string  `json:"m"`
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type MoveOut struct {
	M string  `json:"m"`
	ID string `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

// UserSetIn implements "userset".
type UserSetIn struct {
	M   string          `json:"m"`
	Set json.RawMessage `json:"set"`
}

// ChanSetIn implements "chset".
type ChanSetIn struct {
	M   string          `json:"m"`
	Set json.RawMessage `json:"set"`
}

// ChanOwnIn implements "chown". A nil ID means "drop the crown".
type ChanOwnIn struct {
	M  string  `json:"m"`
	ID *string `json:"id"`
}

// KickbanIn implements "kickban".
type KickbanIn struct {
	M  string `json:"m"`
	ID string `json:"_id"`
	Ms *int64 `json:"ms"`
}

// UnbanIn implements "unban".
type UnbanIn struct {
	M  string `json:"m"`
	ID string `json:"_id"`
}

// LsSnapshotEntry is one row of the "ls" channel-list snapshot.
type LsSnapshotEntry struct {
	ID      string `json:"_id"`
	Count   int    `json:"count"`
	Visible bool   `json:"visible"`
}

// LsOut is the channel-list snapshot sent to subscribers.
type LsOut struct {
	M string            `json:"m"`
	C []LsSnapshotEntry `json:"c"`
}

// NotificationOut carries the only explicit error-surface the protocol has:
// quota throttle notices and kickban/unban confirmations.
type NotificationOut struct {
	M    string `json:"m"`
	Kind string `json:"kind"`
	Text string `json:"text"`
}
