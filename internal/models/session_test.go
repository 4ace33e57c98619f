package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func entry(segment int, side string, value int) ScoreEntry {
	return ScoreEntry{SegmentNumber: segment, Side: side, Value: value, EnteredBy: uuid.New()}
}

func TestSession_Totals(t *testing.T) {
	s := &Session{
		Entries: []ScoreEntry{
			entry(1, "home", 2),
			entry(1, "away", 0),
			entry(2, "home", 1),
			entry(2, "away", 3),
		},
	}
	assert.Equal(t, map[string]int{"home": 3, "away": 3}, s.Totals())
}

func TestSession_TotalsLatestEntryWins(t *testing.T) {
	s := &Session{
		Entries: []ScoreEntry{
			entry(1, "home", 2),
			entry(1, "home", 5), // correction supersedes, does not add
		},
	}
	assert.Equal(t, map[string]int{"home": 5}, s.Totals())
}

func TestSession_TotalsEmpty(t *testing.T) {
	s := &Session{}
	assert.Empty(t, s.Totals())
}

func TestSession_LineScore(t *testing.T) {
	s := &Session{
		Entries: []ScoreEntry{
			entry(1, "home", 2),
			entry(2, "home", 0),
			entry(1, "away", 1),
			entry(2, "home", 4), // correction for segment 2
		},
	}
	assert.Equal(t, map[string]map[int]int{
		"home": {1: 2, 2: 4},
		"away": {1: 1},
	}, s.LineScore())
}

func TestSession_CloneIsDeep(t *testing.T) {
	s := &Session{
		ContestID: 42,
		Status:    SessionActive,
		Entries:   []ScoreEntry{entry(1, "home", 2)},
	}
	cp := s.Clone()
	cp.Entries[0].Value = 9
	cp.Status = SessionStopped

	assert.Equal(t, 2, s.Entries[0].Value)
	assert.Equal(t, SessionActive, s.Status)
}
