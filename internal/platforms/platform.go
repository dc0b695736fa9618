package platforms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"apexdispatch/internal/config"
	"apexdispatch/internal/models"
)

// Platform is the capability set every processing backend provides.
type Platform interface {
	// ExecuteJob submits and starts a batch job, returning the remote job id.
	ExecuteJob(ctx context.Context, token, title string, details models.ServiceDetails, params models.Params, format models.OutputFormat) (string, error)

	// ExecuteSyncJob runs a job and blocks until its result is available.
	ExecuteSyncJob(ctx context.Context, token, title string, details models.ServiceDetails, params models.Params, format models.OutputFormat) (*SyncResult, error)

	// JobStatus maps the remote status to the uniform enum. Unknown values map to StatusUnknown.
	JobStatus(ctx context.Context, token, platformJobID string, details models.ServiceDetails) (models.ProcessingStatus, error)

	// JobResults returns the result collection of a finished job.
	JobResults(ctx context.Context, token, platformJobID string, details models.ServiceDetails) (json.RawMessage, error)

	// ServiceParameters describes the inputs of the remote application.
	ServiceParameters(ctx context.Context, token string, details models.ServiceDetails) ([]models.Parameter, error)
}

// SyncResult is the raw payload of a synchronous execution.
type SyncResult struct {
	ContentType string
	Body        []byte
}

// BackendLookup resolves the authentication settings of an endpoint.
type BackendLookup interface {
	Lookup(endpoint string) (config.Backend, error)
}

// TokenExchanger trades a caller token for a provider scoped one.
type TokenExchanger interface {
	Exchange(ctx context.Context, callerToken, provider string) (string, error)
}

var ErrUnsupportedServiceType = errors.New("unsupported service type")

// Error wraps a failed remote call.
type Error struct {
	Platform models.Label
	Op       string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Platform, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ConfigError reports a missing or malformed backend configuration.
type ConfigError struct {
	Endpoint string
	Err      error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("backend configuration for %s: %v", e.Endpoint, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// StatusError is returned when a remote call answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote returned status %d: %s", e.StatusCode, e.Body)
}
