package models

import (
	"time"

	"github.com/google/uuid"
)

// ContestResult is the durable record written when a live session is
// finalized. LineScore is the per-segment breakdown; Totals the per-side sums.
type ContestResult struct {
	ID           int64                  `json:"id"`
	ContestID    int64                  `json:"contestId"`
	AccountID    int64                  `json:"accountId"`
	Totals       map[string]int         `json:"totals"`
	LineScore    map[string]map[int]int `json:"lineScore"`
	SegmentCount int                    `json:"segmentCount"`
	StartedBy    uuid.UUID              `json:"startedBy"`
	FinalizedBy  uuid.UUID              `json:"finalizedBy"`
	StartedAt    time.Time              `json:"startedAt"`
	FinalizedAt  time.Time              `json:"finalizedAt"`
}
