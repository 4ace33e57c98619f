package models

import "time"

// Sport identifies how a contest is segmented: innings for baseball,
// holes for golf.
type Sport string

const (
	SportBaseball Sport = "baseball"
	SportGolf     Sport = "golf"
)

// Contest is the external sporting event a live session tracks. Contests are
// owned by an account (league); the account boundary is enforced on every
// live-scoring call.
type Contest struct {
	ID        int64     `json:"id"`
	AccountID int64     `json:"accountId"`
	Sport     Sport     `json:"sport"`
	Name      string    `json:"name"`
	HomeSide  string    `json:"homeSide"`
	AwaySide  string    `json:"awaySide"`
	StartsAt  time.Time `json:"startsAt"`
	CreatedAt time.Time `json:"createdAt"`
}
