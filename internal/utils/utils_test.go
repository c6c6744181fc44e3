package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/parcel-marketplace/internal/model"
)

const secret = "test-secret"

func TestCredentialRoundTrip(t *testing.T) {
	id := model.Identity{ID: "01HX", DisplayName: "Rita Rider", Email: "rita@example.com", Role: model.RoleDeliveryRider}
	cred, err := NewCredential(secret, id, 24*time.Hour)
	require.NoError(t, err)
	assert.NotEmpty(t, cred.JTI)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), cred.Exp, time.Minute)

	claims, err := ParseCredential(secret, cred.Token)
	require.NoError(t, err)
	assert.Equal(t, id, claims.Identity)
	assert.Equal(t, cred.JTI, claims.JTI)
	assert.Equal(t, cred.Exp.Unix(), claims.Exp.Unix())
}

func TestCredentialsAreUnique(t *testing.T) {
	id := model.Identity{ID: "u", Role: model.RoleCustomer}
	a, err := NewCredential(secret, id, time.Hour)
	require.NoError(t, err)
	b, err := NewCredential(secret, id, time.Hour)
	require.NoError(t, err)
	assert.NotEqual(t, a.Token, b.Token)
	assert.NotEqual(t, HashCredential(a.Token), HashCredential(b.Token))
}

func TestParseCredentialRejects(t *testing.T) {
	id := model.Identity{ID: "u", Role: model.RoleCustomer}
	good, err := NewCredential(secret, id, time.Hour)
	require.NoError(t, err)
	expired, err := NewCredential(secret, id, -time.Minute)
	require.NoError(t, err)

	badRole := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u", "role": "wizard", "exp": time.Now().Add(time.Hour).Unix(),
	})
	badRoleRaw, err := badRole.SignedString([]byte(secret))
	require.NoError(t, err)

	noExp := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u", "role": "customer"})
	noExpRaw, err := noExp.SignedString([]byte(secret))
	require.NoError(t, err)

	cases := map[string]struct{ secret, raw string }{
		"wrong secret": {"other", good.Token},
		"expired":      {secret, expired.Token},
		"garbage":      {secret, "not-a-jwt"},
		"unknown role": {secret, badRoleRaw},
		"no expiry":    {secret, noExpRaw},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCredential(tc.secret, tc.raw)
			assert.ErrorIs(t, err, ErrInvalidCredential)
		})
	}
}

func TestHashCredential(t *testing.T) {
	h := HashCredential("abc")
	assert.Len(t, h, 64)
	assert.Equal(t, h, HashCredential("abc"))
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("hunter2", 4)
	require.NoError(t, err)
	assert.True(t, VerifyPassword(hash, "hunter2"))
	assert.False(t, VerifyPassword(hash, "hunter3"))
}

func TestParseRenewableAcceptsLapsedCredentialWithinGrace(t *testing.T) {
	id := model.Identity{ID: "01HX", DisplayName: "Rita Rider", Role: model.RoleDeliveryRider}
	cred, err := NewCredential(secret, id, time.Minute)
	require.NoError(t, err)

	lapsed := cred.Exp.Add(30 * time.Minute)
	claims, err := ParseRenewable(secret, cred.Token, time.Hour, lapsed)
	require.NoError(t, err)
	assert.Equal(t, id, claims.Identity)

	_, err = ParseRenewable(secret, cred.Token, time.Hour, cred.Exp.Add(2*time.Hour))
	assert.ErrorIs(t, err, ErrInvalidCredential)

	_, err = ParseRenewable("other-secret", cred.Token, time.Hour, lapsed)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}
