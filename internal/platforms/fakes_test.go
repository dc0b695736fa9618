package platforms_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"apexdispatch/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func tokenWithExp(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": exp.Unix(), "sub": "svc"}).
		SignedString([]byte("test-signing-key"))
	require.NoError(t, err)
	return tok
}

type fakeExchanger struct {
	calls atomic.Int32
	token string
	err   error
}

func (f *fakeExchanger) Exchange(_ context.Context, callerToken, provider string) (string, error) {
	f.calls.Add(1)
	if f.err != nil {
		return "", f.err
	}
	return f.token, nil
}

func clientCredentialBackends(url string) config.Backends {
	return config.NewBackends([]config.Backend{{
		URL:               url,
		AuthMethod:        config.AuthClientCredentials,
		ClientCredentials: "CDSE/apex-dispatcher/secret",
	}})
}

func userBackends(url string) config.Backends {
	return config.NewBackends([]config.Backend{{
		URL:           url,
		AuthMethod:    config.AuthUserCredentials,
		TokenProvider: "terrascope",
		TokenPrefix:   "oidc/terrascope",
	}})
}
