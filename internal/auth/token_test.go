package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	t.Parallel()

	codec := NewTokenCodec("access-secret", "refresh-secret")

	access, err := codec.SignAccess("user-123", "a@x.com")
	require.NoError(t, err)

	claims, err := codec.VerifyAccess(access)
	require.NoError(t, err)
	require.Equal(t, "user-123", claims.UserID)
	require.Equal(t, "a@x.com", claims.Email)

	refresh, err := codec.SignRefresh("user-123", "a@x.com")
	require.NoError(t, err)

	claims, err = codec.VerifyRefresh(refresh)
	require.NoError(t, err)
	require.Equal(t, "user-123", claims.UserID)
}

func TestTokensAreUniquePerSigning(t *testing.T) {
	t.Parallel()

	codec := NewTokenCodec("access-secret", "refresh-secret")

	// Same user, same second: the jti must still make every signing distinct.
	first, err := codec.SignRefresh("user-123", "a@x.com")
	require.NoError(t, err)
	second, err := codec.SignRefresh("user-123", "a@x.com")
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	firstAccess, err := codec.SignAccess("user-123", "a@x.com")
	require.NoError(t, err)
	secondAccess, err := codec.SignAccess("user-123", "a@x.com")
	require.NoError(t, err)
	require.NotEqual(t, firstAccess, secondAccess)
}

func TestTokenContextsAreIndependent(t *testing.T) {
	t.Parallel()

	codec := NewTokenCodec("access-secret", "refresh-secret")

	access, err := codec.SignAccess("user-123", "a@x.com")
	require.NoError(t, err)
	refresh, err := codec.SignRefresh("user-123", "a@x.com")
	require.NoError(t, err)

	_, err = codec.VerifyRefresh(access)
	require.ErrorIs(t, err, ErrInvalidToken)
	_, err = codec.VerifyAccess(refresh)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenExpired(t *testing.T) {
	t.Parallel()

	codec := NewTokenCodec("access-secret", "refresh-secret").WithTTLs(-time.Second, -time.Second)

	access, err := codec.SignAccess("user-123", "a@x.com")
	require.NoError(t, err)
	_, err = codec.VerifyAccess(access)
	require.ErrorIs(t, err, ErrInvalidToken)

	refresh, err := codec.SignRefresh("user-123", "a@x.com")
	require.NoError(t, err)
	_, err = codec.VerifyRefresh(refresh)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenTamperedAndMalformed(t *testing.T) {
	t.Parallel()

	codec := NewTokenCodec("access-secret", "refresh-secret")
	other := NewTokenCodec("other-secret", "other-secret")

	access, err := other.SignAccess("user-123", "a@x.com")
	require.NoError(t, err)
	_, err = codec.VerifyAccess(access)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = codec.VerifyAccess("not.a.jwt")
	require.ErrorIs(t, err, ErrInvalidToken)
	_, err = codec.VerifyAccess("")
	require.ErrorIs(t, err, ErrInvalidToken)
}
