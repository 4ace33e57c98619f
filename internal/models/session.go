package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the live session lifecycle state.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionFinalized SessionStatus = "finalized"
	SessionStopped   SessionStatus = "stopped"
)

// ScoreEntry is one scoring fact: "side X scored value V in segment N".
// Entries are append-only; a correction is a new entry for the same
// (segmentNumber, side) that supersedes the earlier one.
type ScoreEntry struct {
	SegmentNumber int       `json:"segmentNumber"`
	Side          string    `json:"side"`
	Value         int       `json:"value"`
	EnteredBy     uuid.UUID `json:"enteredBy"`
	EnteredAt     time.Time `json:"enteredAt"`
}

// Session is the live, in-memory record of one contest's in-progress score.
// Totals are never stored; they are always folded from Entries so the audit
// trail is the single source of truth.
type Session struct {
	ContestID      int64         `json:"contestId"`
	AccountID      int64         `json:"accountId"`
	Status         SessionStatus `json:"status"`
	CurrentSegment int           `json:"currentSegment"`
	StartedBy      uuid.UUID     `json:"startedBy"`
	StartedAt      time.Time     `json:"startedAt"`
	Entries        []ScoreEntry  `json:"entries"`
}

// Clone returns a deep copy safe to hand outside the store's lock.
func (s *Session) Clone() *Session {
	cp := *s
	cp.Entries = make([]ScoreEntry, len(s.Entries))
	copy(cp.Entries, s.Entries)
	return &cp
}

// effective returns the authoritative entry per (segment, side): the latest
// submitted one wins, which is what makes correction-by-resubmission work.
func (s *Session) effective() map[int]map[string]ScoreEntry {
	eff := make(map[int]map[string]ScoreEntry)
	for _, e := range s.Entries {
		if eff[e.SegmentNumber] == nil {
			eff[e.SegmentNumber] = make(map[string]ScoreEntry)
		}
		eff[e.SegmentNumber][e.Side] = e
	}
	return eff
}

// Totals folds Entries into a per-side sum. Superseded entries for the same
// (segment, side) do not count twice.
func (s *Session) Totals() map[string]int {
	totals := make(map[string]int)
	for _, sides := range s.effective() {
		for side, e := range sides {
			totals[side] += e.Value
		}
	}
	return totals
}

// LineScore folds Entries into side -> segment -> value, the per-inning /
// per-hole breakdown persisted with a final result.
func (s *Session) LineScore() map[string]map[int]int {
	line := make(map[string]map[int]int)
	for seg, sides := range s.effective() {
		for side, e := range sides {
			if line[side] == nil {
				line[side] = make(map[int]int)
			}
			line[side][seg] = e.Value
		}
	}
	return line
}
