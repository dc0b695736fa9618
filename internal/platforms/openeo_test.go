package platforms_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"apexdispatch/internal/models"
	"apexdispatch/internal/platforms"

	"github.com/stretchr/testify/require"
)

type openEOServer struct {
	*httptest.Server
	t *testing.T

	mu          sync.Mutex
	status      string
	tokens      []string
	tokenCalls  atomic.Int32
	lastBearer  string
	lastJobBody map[string]any
	udp         map[string]any
}

func newOpenEOServer(t *testing.T, opts ...func(*openEOServer)) *openEOServer {
	s := &openEOServer{
		t:      t,
		status: "queued",
		tokens: []string{tokenWithExp(t, time.Now().Add(time.Hour))},
		udp: map[string]any{
			"id": "variabilitymap",
			"parameters": []any{
				map[string]any{"name": "temporal_extent", "description": "Time window", "schema": map[string]any{"type": "array", "subtype": "temporal-interval"}},
				map[string]any{"name": "spatial_extent", "description": "Area", "schema": []any{map[string]any{"type": "object", "subtype": "bounding-box"}, map[string]any{"type": "null"}}},
				map[string]any{"name": "mask_clouds", "description": "Mask", "schema": map[string]any{"type": "boolean"}, "default": true},
				map[string]any{"name": "collection", "description": "Collection id", "schema": map[string]any{"type": "string"}},
			},
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /udp.json", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(s.udp)
	})
	mux.HandleFunc("GET /credentials/oidc", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"providers": []any{
			map[string]any{"id": "CDSE", "issuer": s.URL + "/issuer"},
		}})
	})
	mux.HandleFunc("GET /issuer/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"token_endpoint": s.URL + "/token"})
	})
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		n := int(s.tokenCalls.Add(1))
		s.mu.Lock()
		tok := s.tokens[min(n, len(s.tokens))-1]
		s.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": tok, "token_type": "Bearer", "expires_in": 3600})
	})
	mux.HandleFunc("POST /jobs", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		s.mu.Lock()
		s.lastBearer = r.Header.Get("Authorization")
		s.lastJobBody = body
		s.mu.Unlock()
		w.Header().Set("OpenEO-Identifier", "j-123")
		w.Header().Set("Location", s.URL+"/jobs/j-123")
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("POST /jobs/j-123/results", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("GET /jobs/j-123", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		status := s.status
		s.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "j-123", "status": status})
	})
	mux.HandleFunc("GET /jobs/j-123/results", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"type":"Collection","id":"j-123","links":[]}`))
	})
	mux.HandleFunc("GET /jobs/broken", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend exploded", http.StatusInternalServerError)
	})
	mux.HandleFunc("POST /result", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/tiff")
		_, _ = w.Write([]byte("II*\x00"))
	})
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func (s *openEOServer) details() models.ServiceDetails {
	return models.ServiceDetails{Endpoint: s.URL, Application: s.URL + "/udp.json"}
}

func TestOpenEOExecuteJob(t *testing.T) {
	t.Parallel()
	srv := newOpenEOServer(t)
	p := platforms.NewOpenEO(platforms.Deps{Backends: clientCredentialBackends(srv.URL), Timeout: time.Second})

	jobID, err := p.ExecuteJob(t.Context(), "user-token", "NDVI", srv.details(),
		models.Params{"temporal_extent": []any{"2025-05-01", "2025-05-31"}}, models.FormatNetCDF)
	require.NoError(t, err)
	require.Equal(t, "j-123", jobID)

	srv.mu.Lock()
	defer srv.mu.Unlock()
	require.Equal(t, "Bearer oidc/CDSE/"+srv.tokens[0], srv.lastBearer)
	require.Equal(t, "NDVI", srv.lastJobBody["title"])
	graph := srv.lastJobBody["process"].(map[string]any)["process_graph"].(map[string]any)
	run := graph["run"].(map[string]any)
	require.Equal(t, "variabilitymap", run["process_id"])
	require.Equal(t, srv.URL+"/udp.json", run["namespace"])
	save := graph["save"].(map[string]any)
	require.Equal(t, true, save["result"])
	require.Equal(t, "netCDF", save["arguments"].(map[string]any)["format"])
}

func TestOpenEOConnectionCache(t *testing.T) {
	t.Parallel()

	t.Run("valid token is reused", func(t *testing.T) {
		srv := newOpenEOServer(t)
		p := platforms.NewOpenEO(platforms.Deps{Backends: clientCredentialBackends(srv.URL)})
		for range 3 {
			_, err := p.JobStatus(t.Context(), "user-token", "j-123", srv.details())
			require.NoError(t, err)
		}
		require.EqualValues(t, 1, srv.tokenCalls.Load())
	})

	t.Run("expired token triggers re-authentication", func(t *testing.T) {
		srv := newOpenEOServer(t, func(s *openEOServer) {
			s.tokens = []string{
				tokenWithExp(t, time.Now().Add(-time.Minute)),
				tokenWithExp(t, time.Now().Add(time.Hour)),
			}
		})
		p := platforms.NewOpenEO(platforms.Deps{Backends: clientCredentialBackends(srv.URL)})

		_, err := p.JobStatus(t.Context(), "user-token", "j-123", srv.details())
		require.NoError(t, err)
		_, err = p.JobStatus(t.Context(), "user-token", "j-123", srv.details())
		require.NoError(t, err)
		_, err = p.JobStatus(t.Context(), "user-token", "j-123", srv.details())
		require.NoError(t, err)

		require.EqualValues(t, 2, srv.tokenCalls.Load())
	})

	t.Run("token without exp is never cached", func(t *testing.T) {
		srv := newOpenEOServer(t, func(s *openEOServer) { s.tokens = []string{"opaque-token"} })
		p := platforms.NewOpenEO(platforms.Deps{Backends: clientCredentialBackends(srv.URL)})
		for range 2 {
			_, err := p.JobStatus(t.Context(), "user-token", "j-123", srv.details())
			require.NoError(t, err)
		}
		require.EqualValues(t, 2, srv.tokenCalls.Load())
	})
}

func TestOpenEOUserCredentials(t *testing.T) {
	t.Parallel()
	srv := newOpenEOServer(t)
	exchanged := tokenWithExp(t, time.Now().Add(time.Hour))
	ex := &fakeExchanger{token: exchanged}
	p := platforms.NewOpenEO(platforms.Deps{Backends: userBackends(srv.URL), Exchanger: ex})

	_, err := p.ExecuteJob(t.Context(), "alice-token", "NDVI", srv.details(), nil, "")
	require.NoError(t, err)
	srv.mu.Lock()
	require.Equal(t, "Bearer oidc/terrascope/"+exchanged, srv.lastBearer)
	srv.mu.Unlock()

	_, err = p.JobStatus(t.Context(), "alice-token", "j-123", srv.details())
	require.NoError(t, err)
	require.EqualValues(t, 1, ex.calls.Load())

	_, err = p.JobStatus(t.Context(), "bob-token", "j-123", srv.details())
	require.NoError(t, err)
	require.EqualValues(t, 2, ex.calls.Load(), "sessions are not shared across callers")
}

func TestOpenEOExchangeFailurePropagates(t *testing.T) {
	t.Parallel()
	srv := newOpenEOServer(t)
	boom := errors.New("not linked")
	p := platforms.NewOpenEO(platforms.Deps{Backends: userBackends(srv.URL), Exchanger: &fakeExchanger{err: boom}})

	_, err := p.ExecuteJob(t.Context(), "alice-token", "NDVI", srv.details(), nil, "")
	require.ErrorIs(t, err, boom)
}

func TestOpenEOUnconfiguredBackend(t *testing.T) {
	t.Parallel()
	srv := newOpenEOServer(t)
	p := platforms.NewOpenEO(platforms.Deps{Backends: clientCredentialBackends("https://elsewhere.example.org")})

	_, err := p.ExecuteJob(t.Context(), "user-token", "NDVI", srv.details(), nil, "")
	var cfgErr *platforms.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	require.ErrorContains(t, err, "unsupported backend")
}

func TestOpenEOJobStatus(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		remote string
		want   models.ProcessingStatus
	}{
		{"created", models.StatusCreated},
		{"queued", models.StatusQueued},
		{"running", models.StatusRunning},
		{"finished", models.StatusFinished},
		{"canceled", models.StatusCanceled},
		{"error", models.StatusFailed},
		{"FINISHED", models.StatusFinished},
		{"paused-by-operator", models.StatusUnknown},
	}
	srv := newOpenEOServer(t)
	p := platforms.NewOpenEO(platforms.Deps{Backends: clientCredentialBackends(srv.URL)})
	for _, tc := range testCases {
		t.Run(tc.remote, func(t *testing.T) {
			srv.mu.Lock()
			srv.status = tc.remote
			srv.mu.Unlock()
			got, err := p.JobStatus(t.Context(), "user-token", "j-123", srv.details())
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestOpenEORemoteFailure(t *testing.T) {
	t.Parallel()
	srv := newOpenEOServer(t)
	p := platforms.NewOpenEO(platforms.Deps{Backends: clientCredentialBackends(srv.URL)})

	_, err := p.JobStatus(t.Context(), "user-token", "broken", srv.details())
	var perr *platforms.Error
	require.ErrorAs(t, err, &perr)
	require.Equal(t, models.LabelOpenEO, perr.Platform)
	var serr *platforms.StatusError
	require.ErrorAs(t, err, &serr)
	require.Equal(t, http.StatusInternalServerError, serr.StatusCode)
}

func TestOpenEOResultsAndSync(t *testing.T) {
	t.Parallel()
	srv := newOpenEOServer(t)
	p := platforms.NewOpenEO(platforms.Deps{Backends: clientCredentialBackends(srv.URL)})

	results, err := p.JobResults(t.Context(), "user-token", "j-123", srv.details())
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"Collection","id":"j-123","links":[]}`, string(results))

	sync, err := p.ExecuteSyncJob(t.Context(), "user-token", "NDVI", srv.details(), nil, models.FormatGTiff)
	require.NoError(t, err)
	require.Equal(t, "image/tiff", sync.ContentType)
	require.Equal(t, []byte("II*\x00"), sync.Body)
}

func TestOpenEOServiceParameters(t *testing.T) {
	t.Parallel()
	srv := newOpenEOServer(t)
	p := platforms.NewOpenEO(platforms.Deps{Backends: clientCredentialBackends(srv.URL)})

	params, err := p.ServiceParameters(t.Context(), "user-token", srv.details())
	require.NoError(t, err)
	require.Equal(t, []models.Parameter{
		{Name: "temporal_extent", Type: models.ParamDateInterval, Description: "Time window"},
		{Name: "spatial_extent", Type: models.ParamBoundingBox, Description: "Area"},
		{Name: "mask_clouds", Type: models.ParamBoolean, Optional: true, Description: "Mask", Default: true},
		{Name: "collection", Type: models.ParamString, Description: "Collection id"},
	}, params)
}

func TestOpenEOMissingProcessID(t *testing.T) {
	t.Parallel()
	srv := newOpenEOServer(t, func(s *openEOServer) { s.udp = map[string]any{"parameters": []any{}} })
	p := platforms.NewOpenEO(platforms.Deps{Backends: clientCredentialBackends(srv.URL)})

	_, err := p.ExecuteJob(t.Context(), "user-token", "NDVI", srv.details(), nil, "")
	require.ErrorContains(t, err, "no 'id' field")
}
