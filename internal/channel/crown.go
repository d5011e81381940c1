package channel

// CrownStateKind tags the crown's current state so invariants 4 and 6 from
// the spec (at most one holder; the holder always exists in the channel)
// are structural rather than inferred from nullable fields.
type CrownStateKind int

const (
	// CrownHeld means ParticipantID names the current holder.
	CrownHeld CrownStateKind = iota
	// CrownDropped means nobody currently holds it; any joiner claims it.
	CrownDropped
)

// Crown is the transferable moderation token for a non-special channel.
type Crown struct {
	State         CrownStateKind
	ParticipantID string // valid only when State == CrownHeld
	UserID        string // who currently or last held it
	AtMs          int64  // when the current state began
	StartPos      [2]float64
	EndPos        [2]float64
}

// NewDroppedCrown is the initial state for a freshly created non-special
// channel: dropped, with no prior holder.
func NewDroppedCrown(creatorUserID string, now int64) *Crown {
	return &Crown{State: CrownDropped, UserID: creatorUserID, AtMs: now}
}

// Hold transitions the crown to Held(participantID).
func (c *Crown) Hold(participantID, userID string, now int64) {
	c.State = CrownHeld
	c.ParticipantID = participantID
	c.UserID = userID
	c.AtMs = now
}

// Drop transitions a held crown to Dropped.
func (c *Crown) Drop(now int64) {
	c.State = CrownDropped
	c.ParticipantID = ""
	c.AtMs = now
}

// ClaimableBy reports whether claimantUserID may claim the crown right
// now: a dropped crown is claimable by anyone, immediately.
func (c *Crown) ClaimableBy(claimantUserID string, now int64) bool {
	return c.State == CrownDropped
}

// HeldBy reports whether participantID currently holds the crown.
func (c *Crown) HeldBy(participantID string) bool {
	return c.State == CrownHeld && c.ParticipantID == participantID
}
