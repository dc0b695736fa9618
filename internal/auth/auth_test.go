package auth_test

import (
	"testing"
	"time"

	"apexdispatch/internal/auth"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const secret = "0123456789abcdef0123456789abcdef"

func sign(t *testing.T, key string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	require.NoError(t, err)
	return token
}

func TestCurrentUser(t *testing.T) {
	t.Parallel()
	a := auth.NewAuthenticator(secret)
	future := time.Now().Add(time.Hour).Unix()

	testCases := []struct {
		scenario string
		token    string
		user     string
	}{
		{
			scenario: "valid token",
			token:    sign(t, secret, jwt.MapClaims{"sub": "user-1", "exp": future}),
			user:     "user-1",
		},
		{
			scenario: "wrong key",
			token:    sign(t, "another-secret-another-secret-xx", jwt.MapClaims{"sub": "user-1", "exp": future}),
		},
		{
			scenario: "expired",
			token:    sign(t, secret, jwt.MapClaims{"sub": "user-1", "exp": time.Now().Add(-time.Minute).Unix()}),
		},
		{
			scenario: "no subject",
			token:    sign(t, secret, jwt.MapClaims{"exp": future}),
		},
		{
			scenario: "garbage",
			token:    "not-a-jwt",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.scenario, func(t *testing.T) {
			user, err := a.CurrentUser(tc.token)
			if tc.user == "" {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.user, user)
		})
	}
}

func TestCurrentUserWithoutSecret(t *testing.T) {
	t.Parallel()
	_, err := auth.NewAuthenticator("").CurrentUser(sign(t, secret, jwt.MapClaims{"sub": "x"}))
	require.ErrorContains(t, err, "not configured")
}

func TestExpired(t *testing.T) {
	t.Parallel()
	now := time.Now()
	testCases := []struct {
		scenario string
		token    string
		expired  bool
	}{
		{scenario: "future exp", token: sign(t, "unrelated", jwt.MapClaims{"exp": now.Add(time.Hour).Unix()}), expired: false},
		{scenario: "past exp", token: sign(t, "unrelated", jwt.MapClaims{"exp": now.Add(-time.Hour).Unix()}), expired: true},
		{scenario: "missing exp", token: sign(t, "unrelated", jwt.MapClaims{"sub": "x"}), expired: true},
		{scenario: "unparseable exp", token: sign(t, "unrelated", jwt.MapClaims{"exp": "tomorrow"}), expired: true},
		{scenario: "not a token", token: "opaque", expired: true},
	}
	for _, tc := range testCases {
		t.Run(tc.scenario, func(t *testing.T) {
			require.Equal(t, tc.expired, auth.Expired(tc.token, now))
		})
	}
}
