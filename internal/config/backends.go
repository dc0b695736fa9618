package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

type AuthMethod string

const (
	AuthClientCredentials AuthMethod = "CLIENT_CREDENTIALS"
	AuthUserCredentials   AuthMethod = "USER_CREDENTIALS"
)

// Backend holds the authentication settings for one platform endpoint.
type Backend struct {
	URL               string     `mapstructure:"url" yaml:"url"`
	AuthMethod        AuthMethod `mapstructure:"auth_method" yaml:"auth_method"`
	ClientCredentials string     `mapstructure:"client_credentials" yaml:"client_credentials,omitempty"`
	TokenProvider     string     `mapstructure:"token_provider" yaml:"token_provider,omitempty"`
	TokenPrefix       string     `mapstructure:"token_prefix" yaml:"token_prefix,omitempty"`
}

// SplitClientCredentials parses "provider_id/client_id/client_secret".
func (b Backend) SplitClientCredentials() (provider, clientID, secret string, err error) {
	if b.ClientCredentials == "" {
		return "", "", "", fmt.Errorf("client credentials not configured for backend %s", b.URL)
	}
	parts := strings.SplitN(b.ClientCredentials, "/", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", fmt.Errorf("invalid client credentials format for backend %s, expected 'provider_id/client_id/client_secret'", b.URL)
	}
	return parts[0], parts[1], parts[2], nil
}

var schemeRe = regexp.MustCompile(`^https?://`)

// Hostname normalizes an endpoint into the key used for backend lookups.
func Hostname(endpoint string) string {
	if !schemeRe.MatchString(endpoint) {
		endpoint = "https://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// Backends is an immutable lookup table keyed by hostname.
type Backends map[string]Backend

func NewBackends(list []Backend) Backends {
	out := make(Backends, len(list))
	for _, b := range list {
		out[Hostname(b.URL)] = b
	}
	return out
}

// Lookup returns the settings for endpoint. Unconfigured or misconfigured backends are errors.
func (bs Backends) Lookup(endpoint string) (Backend, error) {
	host := Hostname(endpoint)
	b, ok := bs[host]
	if host == "" || !ok {
		return Backend{}, fmt.Errorf("unsupported backend: %s (hostname=%s)", endpoint, host)
	}
	switch b.AuthMethod {
	case AuthClientCredentials:
		if _, _, _, err := b.SplitClientCredentials(); err != nil {
			return Backend{}, err
		}
	case AuthUserCredentials:
		if b.TokenProvider == "" || b.TokenPrefix == "" {
			return Backend{}, fmt.Errorf("backend %s must define token_provider and token_prefix", endpoint)
		}
	default:
		return Backend{}, fmt.Errorf("unsupported auth method %q for backend %s", b.AuthMethod, endpoint)
	}
	return b, nil
}

// BackendStore allows the backend table to be swapped while requests read it.
type BackendStore struct {
	p atomic.Pointer[Backends]
}

func NewBackendStore(list []Backend) *BackendStore {
	s := &BackendStore{}
	s.Set(list)
	return s
}

func (s *BackendStore) Set(list []Backend) {
	bs := NewBackends(list)
	s.p.Store(&bs)
}

func (s *BackendStore) Lookup(endpoint string) (Backend, error) {
	return (*s.p.Load()).Lookup(endpoint)
}

type backendsFile struct {
	Backends []Backend `yaml:"backends"`
}

// ReadBackendsFile decodes a standalone YAML file with a top level backends list.
func ReadBackendsFile(path string) ([]Backend, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening backends file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	var bf backendsFile
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&bf); err != nil {
		return nil, fmt.Errorf("parsing backends file %s: %w", path, err)
	}
	return bf.Backends, nil
}
