package live

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTicketIssuer_CreateAndValidate(t *testing.T) {
	issuer := NewTicketIssuer(time.Minute)
	userID := uuid.New()

	token, expiresIn, err := issuer.Create(userID, 42, 1, RoleViewer)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, 60, expiresIn)

	claims, err := issuer.Validate(token, 42)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, int64(42), claims.ContestID)
	assert.Equal(t, int64(1), claims.AccountID)
	assert.Equal(t, RoleViewer, claims.Role)
}

func TestTicketIssuer_SingleUse(t *testing.T) {
	issuer := NewTicketIssuer(time.Minute)
	token, _, err := issuer.Create(uuid.New(), 42, 1, RoleScorer)
	require.NoError(t, err)

	_, err = issuer.Validate(token, 42)
	require.NoError(t, err)

	// A consumed ticket is gone; replaying the token fails.
	_, err = issuer.Validate(token, 42)
	assert.ErrorIs(t, err, ErrTicketNotFound)
}

func TestTicketIssuer_Expired(t *testing.T) {
	issuer := NewTicketIssuer(-time.Second)
	token, _, err := issuer.Create(uuid.New(), 42, 1, RoleViewer)
	require.NoError(t, err)

	_, err = issuer.Validate(token, 42)
	assert.ErrorIs(t, err, ErrTicketExpired)
}

func TestTicketIssuer_ContestMismatch(t *testing.T) {
	issuer := NewTicketIssuer(time.Minute)
	token, _, err := issuer.Create(uuid.New(), 42, 1, RoleViewer)
	require.NoError(t, err)

	_, err = issuer.Validate(token, 7)
	assert.ErrorIs(t, err, ErrTicketContestMismatch)

	// A mismatched attempt does not consume the ticket.
	_, err = issuer.Validate(token, 42)
	assert.NoError(t, err)
}

func TestTicketIssuer_UnknownToken(t *testing.T) {
	issuer := NewTicketIssuer(time.Minute)
	_, err := issuer.Validate("no-such-token", 42)
	assert.ErrorIs(t, err, ErrTicketNotFound)
}

func TestTicketIssuer_TokensAreUnique(t *testing.T) {
	issuer := NewTicketIssuer(time.Minute)
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token, _, err := issuer.Create(uuid.New(), 42, 1, RoleViewer)
		require.NoError(t, err)
		assert.False(t, seen[token])
		seen[token] = true
	}
}

func TestParseRole(t *testing.T) {
	role, err := ParseRole("scorer")
	require.NoError(t, err)
	assert.Equal(t, RoleScorer, role)

	role, err = ParseRole("viewer")
	require.NoError(t, err)
	assert.Equal(t, RoleViewer, role)

	_, err = ParseRole("admin")
	assert.Error(t, err)
}
