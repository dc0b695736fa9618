package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"apexdispatch/internal/auth"
	"apexdispatch/internal/handlers"
	"apexdispatch/internal/services"
	"apexdispatch/internal/services/servicestest"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testSecret = "handlers-test-secret"

func tokenFor(t *testing.T, user string) string {
	t.Helper()
	claims := auth.Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   user,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

var errRemote = errors.New("connection reset by peer")

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type env struct {
	server    *httptest.Server
	store     *servicestest.MemStore
	platform  *servicestest.Platform
	upscaling *services.UpscalingService
}

func newEnv(t *testing.T, db handlers.Pinger) *env {
	t.Helper()
	store := servicestest.NewMemStore()
	platform := servicestest.NewPlatform()
	registry := servicestest.Registry(platform)
	processing := services.NewProcessingService(store, registry)
	upscaling := services.NewUpscalingService(store, processing, registry)
	if db == nil {
		db = pinger{}
	}

	router := handlers.NewRouter(handlers.RouterConfig{
		Users:          auth.NewAuthenticator(testSecret),
		Processing:     processing,
		Upscaling:      upscaling,
		DB:             db,
		StreamInterval: time.Second,
	})
	server := httptest.NewServer(router)
	t.Cleanup(func() {
		upscaling.Wait()
		server.Close()
		server.Client().CloseIdleConnections()
	})
	return &env{server: server, store: store, platform: platform, upscaling: upscaling}
}

func (e *env) do(t *testing.T, method, path, token string, body any) (*http.Response, []byte) {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req, err := http.NewRequestWithContext(t.Context(), method, e.server.URL+path, bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}
