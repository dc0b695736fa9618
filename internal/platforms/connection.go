package platforms

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"

	"apexdispatch/internal/auth"
	"apexdispatch/internal/config"
)

// connection is an authenticated session against one endpoint.
type connection struct {
	accessToken string
	bearer      string
}

type clientCredentialsFunc func(ctx context.Context, endpoint, provider, clientID, secret string) (*connection, error)

// connector authenticates against endpoints and caches the result until the access token expires.
// Concurrent misses for the same endpoint may both authenticate; the last one is kept.
type connector struct {
	backends          BackendLookup
	exchanger         TokenExchanger
	clientCredentials clientCredentialsFunc
	userBearer        func(backend config.Backend, token string) string
	now               func() time.Time

	mu    sync.Mutex
	cache map[string]*connection
}

func newConnector(deps Deps, cc clientCredentialsFunc, userBearer func(config.Backend, string) string) *connector {
	return &connector{
		backends:          deps.Backends,
		exchanger:         deps.Exchanger,
		clientCredentials: cc,
		userBearer:        userBearer,
		now:               time.Now,
		cache:             make(map[string]*connection),
	}
}

func (c *connector) connect(ctx context.Context, endpoint, callerToken string) (*connection, error) {
	if c.backends == nil {
		return nil, &ConfigError{Endpoint: endpoint, Err: errors.New("no backend configuration loaded")}
	}
	backend, err := c.backends.Lookup(endpoint)
	if err != nil {
		return nil, &ConfigError{Endpoint: endpoint, Err: err}
	}

	key := cacheKey(endpoint, backend, callerToken)
	if conn := c.lookup(key); conn != nil {
		return conn, nil
	}

	conn, err := c.authenticate(ctx, endpoint, backend, callerToken)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache[key] = conn
	c.mu.Unlock()
	return conn, nil
}

func (c *connector) lookup(key string) *connection {
	c.mu.Lock()
	conn := c.cache[key]
	c.mu.Unlock()
	if conn == nil || auth.Expired(conn.accessToken, c.now()) {
		return nil
	}
	return conn
}

func (c *connector) authenticate(ctx context.Context, endpoint string, backend config.Backend, callerToken string) (*connection, error) {
	switch backend.AuthMethod {
	case config.AuthUserCredentials:
		if c.exchanger == nil {
			return nil, &ConfigError{Endpoint: endpoint, Err: errors.New("token exchange is not available")}
		}
		token, err := c.exchanger.Exchange(ctx, callerToken, backend.TokenProvider)
		if err != nil {
			return nil, err
		}
		return &connection{accessToken: token, bearer: c.userBearer(backend, token)}, nil
	case config.AuthClientCredentials:
		if c.clientCredentials == nil {
			return nil, &ConfigError{Endpoint: endpoint, Err: errors.New("client credentials are not supported by this platform")}
		}
		provider, clientID, secret, err := backend.SplitClientCredentials()
		if err != nil {
			return nil, &ConfigError{Endpoint: endpoint, Err: err}
		}
		return c.clientCredentials(ctx, endpoint, provider, clientID, secret)
	}
	return nil, &ConfigError{Endpoint: endpoint, Err: errors.New("unsupported auth method " + string(backend.AuthMethod))}
}

// cacheKey scopes user credential sessions to the caller so exchanged tokens are never shared.
func cacheKey(endpoint string, backend config.Backend, callerToken string) string {
	key := strings.TrimRight(endpoint, "/")
	if backend.AuthMethod == config.AuthUserCredentials {
		sum := sha256.Sum256([]byte(callerToken))
		key += "#" + hex.EncodeToString(sum[:8])
	}
	return key
}
