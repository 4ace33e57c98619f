package live

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Ticket validation failure reasons.
var (
	ErrTicketNotFound        = errors.New("ticket not found")
	ErrTicketExpired         = errors.New("ticket expired")
	ErrTicketContestMismatch = errors.New("ticket contest mismatch")
)

// TicketClaims are the claims bound to a streaming ticket.
type TicketClaims struct {
	UserID    uuid.UUID
	ContestID int64
	AccountID int64
	Role      Role
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TicketIssuer mints and validates short-lived, single-use capability tokens
// that authorize one streaming connection to one contest under one role.
// Issuing a ticket over authenticated HTTP and presenting it on the streaming
// handshake bridges transports that cannot carry auth headers; the short TTL
// and single use bound replay risk.
type TicketIssuer struct {
	mu      sync.Mutex
	ttl     time.Duration
	tickets map[string]TicketClaims
}

// NewTicketIssuer creates a ticket issuer with the given TTL.
func NewTicketIssuer(ttl time.Duration) *TicketIssuer {
	return &TicketIssuer{
		ttl:     ttl,
		tickets: make(map[string]TicketClaims),
	}
}

// Create mints a ticket and returns the opaque token plus its lifetime in
// seconds. Expired leftovers are swept here so unused tickets never
// accumulate past their TTL.
func (t *TicketIssuer) Create(userID uuid.UUID, contestID, accountID int64, role Role) (token string, expiresIn int, err error) {
	token, err = newToken()
	if err != nil {
		return "", 0, fmt.Errorf("mint ticket: %w", err)
	}

	now := time.Now()
	t.mu.Lock()
	for k, c := range t.tickets {
		if now.After(c.ExpiresAt) {
			delete(t.tickets, k)
		}
	}
	t.tickets[token] = TicketClaims{
		UserID:    userID,
		ContestID: contestID,
		AccountID: accountID,
		Role:      role,
		IssuedAt:  now,
		ExpiresAt: now.Add(t.ttl),
	}
	t.mu.Unlock()

	return token, int(t.ttl.Seconds()), nil
}

// Validate consumes a ticket for the given contest. A ticket validates at
// most once: success removes it, so a replayed token fails with
// ErrTicketNotFound. Expiry is enforced here whether or not the ticket was
// ever used.
func (t *TicketIssuer) Validate(token string, contestID int64) (*TicketClaims, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	claims, ok := t.tickets[token]
	if !ok {
		return nil, ErrTicketNotFound
	}
	if time.Now().After(claims.ExpiresAt) {
		delete(t.tickets, token)
		return nil, ErrTicketExpired
	}
	if claims.ContestID != contestID {
		return nil, ErrTicketContestMismatch
	}
	delete(t.tickets, token)
	return &claims, nil
}

// newToken returns an unguessable URL-safe token. Capability tokens need
// crypto-grade randomness, not merely uniqueness.
func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
