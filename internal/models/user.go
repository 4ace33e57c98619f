package models

import (
	"time"

	"github.com/google/uuid"
)

// User is a registered account member. Role is the account-level role
// ("admin", "scorer", "member") carried in the JWT; whether a scorer may
// score a specific contest is decided per contest, not from this field alone.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name"`
	Role         string    `json:"role"`
	AccountID    int64     `json:"accountId"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
