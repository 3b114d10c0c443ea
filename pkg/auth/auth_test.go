package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipeed/picocrud/pkg/domain"
)

func TestVerifierDisabledIsAnonymous(t *testing.T) {
	v := NewVerifier("", "")
	assert.False(t, v.Enabled())
	u, err := v.Verify("")
	require.NoError(t, err)
	assert.Equal(t, domain.Anonymous, u)
}

func TestVerifierAPIKey(t *testing.T) {
	v := NewVerifier("s3cret", "")

	u, err := v.Verify("s3cret")
	require.NoError(t, err)
	assert.Equal(t, APIKeyUser, u)

	_, err = v.Verify("wrong")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = v.Verify("")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestVerifierJWTRoundTrip(t *testing.T) {
	v := NewVerifier("", "signing-key")
	token, err := v.Issue(domain.User{ID: "u1", Name: "Ann", Roles: []string{"editor"}}, time.Minute)
	require.NoError(t, err)

	u, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)
	assert.Equal(t, "Ann", u.Name)
	assert.True(t, u.HasRole("editor"))
}

func TestVerifierRejectsExpiredAndForeignTokens(t *testing.T) {
	v := NewVerifier("", "signing-key")

	expired, err := v.Issue(domain.User{ID: "u1"}, -time.Minute)
	require.NoError(t, err)
	_, err = v.Verify(expired)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	other, err := NewVerifier("", "other-key").Issue(domain.User{ID: "u1"}, time.Minute)
	require.NoError(t, err)
	_, err = v.Verify(other)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "u1"})
	raw, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = v.Verify(raw)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestIssueRequiresSecret(t *testing.T) {
	_, err := NewVerifier("key", "").Issue(domain.User{ID: "u1"}, time.Minute)
	assert.Error(t, err)
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", BearerToken("Bearer abc"))
	assert.Equal(t, "abc", BearerToken("bearer  abc "))
	assert.Equal(t, "", BearerToken("Basic abc"))
	assert.Equal(t, "", BearerToken(""))
}
