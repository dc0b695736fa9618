package platforms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"apexdispatch/internal/config"
	"apexdispatch/internal/logging"
	"apexdispatch/internal/models"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

var openEOStatuses = map[string]models.ProcessingStatus{
	"created":  models.StatusCreated,
	"queued":   models.StatusQueued,
	"running":  models.StatusRunning,
	"finished": models.StatusFinished,
	"canceled": models.StatusCanceled,
	"error":    models.StatusFailed,
}

var openEOFormats = map[models.OutputFormat]string{
	models.FormatGTiff:  "GTiff",
	models.FormatNetCDF: "netCDF",
	models.FormatJSON:   "JSON",
}

// OpenEO runs user defined processes on openEO backends.
type OpenEO struct {
	rest *restClient
	conn *connector
}

func NewOpenEO(deps Deps) *OpenEO {
	o := &OpenEO{rest: newRestClient(deps.Timeout)}
	o.conn = newConnector(deps, o.clientCredentials, func(b config.Backend, token string) string {
		return b.TokenPrefix + "/" + token
	})
	return o
}

func (o *OpenEO) fail(op string, err error) error {
	return &Error{Platform: models.LabelOpenEO, Op: op, Err: err}
}

// processID reads the id of the user defined process published at application.
func (o *OpenEO) processID(ctx context.Context, application string) (string, error) {
	var udp struct {
		ID string `json:"id"`
	}
	if err := o.rest.getJSON(ctx, application, "", &udp); err != nil {
		return "", fmt.Errorf("failed to fetch process ID from %s: %w", application, err)
	}
	if udp.ID == "" {
		return "", fmt.Errorf("no 'id' field found in process definition at %s", application)
	}
	return udp.ID, nil
}

func (o *OpenEO) processGraph(processID string, details models.ServiceDetails, params models.Params, format models.OutputFormat) map[string]any {
	if params == nil {
		params = models.Params{}
	}
	return map[string]any{
		"process_graph": map[string]any{
			"run": map[string]any{
				"process_id": processID,
				"namespace":  details.Application,
				"arguments":  params,
			},
			"save": map[string]any{
				"process_id": "save_result",
				"arguments": map[string]any{
					"data":   map[string]any{"from_node": "run"},
					"format": openEOFormats[format.OrDefault()],
				},
				"result": true,
			},
		},
	}
}

func (o *OpenEO) ExecuteJob(ctx context.Context, token, title string, details models.ServiceDetails, params models.Params, format models.OutputFormat) (string, error) {
	conn, err := o.conn.connect(ctx, details.Endpoint, token)
	if err != nil {
		return "", err
	}
	processID, err := o.processID(ctx, details.Application)
	if err != nil {
		return "", o.fail("execute job", err)
	}

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"endpoint":   details.Endpoint,
		"process_id": processID,
		"title":      title,
	}).Debug("Creating openEO batch job")

	resp, err := o.rest.do(ctx, request{
		method: http.MethodPost,
		url:    joinURL(details.Endpoint, "/jobs"),
		bearer: conn.bearer,
		body: map[string]any{
			"title":   title,
			"process": o.processGraph(processID, details, params, format),
		},
	})
	if err != nil {
		return "", o.fail("execute job", err)
	}
	jobID := resp.header.Get("OpenEO-Identifier")
	if jobID == "" {
		jobID = lastSegment(resp.header.Get("Location"))
	}
	if jobID == "" {
		return "", o.fail("execute job", errors.New("backend returned no job identifier"))
	}

	if _, err := o.rest.do(ctx, request{
		method: http.MethodPost,
		url:    joinURL(details.Endpoint, "/jobs/", jobID, "/results"),
		bearer: conn.bearer,
	}); err != nil {
		return "", o.fail("start job", err)
	}
	return jobID, nil
}

func (o *OpenEO) ExecuteSyncJob(ctx context.Context, token, title string, details models.ServiceDetails, params models.Params, format models.OutputFormat) (*SyncResult, error) {
	conn, err := o.conn.connect(ctx, details.Endpoint, token)
	if err != nil {
		return nil, err
	}
	processID, err := o.processID(ctx, details.Application)
	if err != nil {
		return nil, o.fail("execute synchronous job", err)
	}
	resp, err := o.rest.do(ctx, request{
		method: http.MethodPost,
		url:    joinURL(details.Endpoint, "/result"),
		bearer: conn.bearer,
		body: map[string]any{
			"title":   title,
			"process": o.processGraph(processID, details, params, format),
		},
	})
	if err != nil {
		return nil, o.fail("execute synchronous job", err)
	}
	return &SyncResult{ContentType: resp.header.Get("Content-Type"), Body: resp.body}, nil
}

func (o *OpenEO) JobStatus(ctx context.Context, token, platformJobID string, details models.ServiceDetails) (models.ProcessingStatus, error) {
	conn, err := o.conn.connect(ctx, details.Endpoint, token)
	if err != nil {
		return "", err
	}
	var job struct {
		Status string `json:"status"`
	}
	if err := o.rest.getJSON(ctx, joinURL(details.Endpoint, "/jobs/", platformJobID), conn.bearer, &job); err != nil {
		return "", o.fail("get job status", err)
	}
	status, ok := openEOStatuses[strings.ToLower(job.Status)]
	if !ok {
		logging.FromContext(ctx).WithFields(map[string]interface{}{
			"platform_job_id": platformJobID,
			"remote_status":   job.Status,
		}).Warn("Unknown openEO job status")
		return models.StatusUnknown, nil
	}
	return status, nil
}

func (o *OpenEO) JobResults(ctx context.Context, token, platformJobID string, details models.ServiceDetails) (json.RawMessage, error) {
	conn, err := o.conn.connect(ctx, details.Endpoint, token)
	if err != nil {
		return nil, err
	}
	resp, err := o.rest.do(ctx, request{
		method: http.MethodGet,
		url:    joinURL(details.Endpoint, "/jobs/", platformJobID, "/results"),
		bearer: conn.bearer,
	})
	if err != nil {
		return nil, o.fail("get job results", err)
	}
	if !json.Valid(resp.body) {
		return nil, o.fail("get job results", errors.New("results are not valid JSON"))
	}
	return json.RawMessage(resp.body), nil
}

type udpParameter struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Schema      json.RawMessage `json:"schema"`
	Optional    bool            `json:"optional"`
	Default     any             `json:"default"`
}

func (o *OpenEO) ServiceParameters(ctx context.Context, _ string, details models.ServiceDetails) ([]models.Parameter, error) {
	var udp struct {
		Parameters []udpParameter `json:"parameters"`
	}
	if err := o.rest.getJSON(ctx, details.Application, "", &udp); err != nil {
		return nil, o.fail("get service parameters", err)
	}
	params := make([]models.Parameter, 0, len(udp.Parameters))
	for _, p := range udp.Parameters {
		params = append(params, models.Parameter{
			Name:        p.Name,
			Type:        openEOParamType(p.Schema),
			Optional:    p.Optional || p.Default != nil,
			Description: p.Description,
			Default:     p.Default,
		})
	}
	return params, nil
}

type jsonSchema struct {
	Type    any    `json:"type"`
	Subtype string `json:"subtype"`
}

func openEOParamType(raw json.RawMessage) models.ParamType {
	var schemas []jsonSchema
	if err := json.Unmarshal(raw, &schemas); err != nil {
		var single jsonSchema
		if err := json.Unmarshal(raw, &single); err != nil {
			return models.ParamString
		}
		schemas = []jsonSchema{single}
	}
	for _, s := range schemas {
		switch s.Subtype {
		case "temporal-interval", "date-interval":
			return models.ParamDateInterval
		case "bounding-box":
			return models.ParamBoundingBox
		}
	}
	for _, s := range schemas {
		if t, ok := s.Type.(string); ok && t == "boolean" {
			return models.ParamBoolean
		}
	}
	return models.ParamString
}

// clientCredentials authenticates a service account through the backend's OIDC provider.
func (o *OpenEO) clientCredentials(ctx context.Context, endpoint, provider, clientID, secret string) (*connection, error) {
	var providers struct {
		Providers []struct {
			ID     string `json:"id"`
			Issuer string `json:"issuer"`
		} `json:"providers"`
	}
	if err := o.rest.getJSON(ctx, joinURL(endpoint, "/credentials/oidc"), "", &providers); err != nil {
		return nil, o.fail("discover oidc providers", err)
	}
	var issuer string
	for _, p := range providers.Providers {
		if p.ID == provider {
			issuer = p.Issuer
			break
		}
	}
	if issuer == "" {
		return nil, &ConfigError{Endpoint: endpoint, Err: fmt.Errorf("oidc provider %q not offered by backend", provider)}
	}

	var discovery struct {
		TokenEndpoint string `json:"token_endpoint"`
	}
	if err := o.rest.getJSON(ctx, joinURL(issuer, "/.well-known/openid-configuration"), "", &discovery); err != nil {
		return nil, o.fail("discover token endpoint", err)
	}

	cc := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: secret,
		TokenURL:     discovery.TokenEndpoint,
		Scopes:       []string{"openid"},
	}
	tok, err := cc.Token(context.WithValue(ctx, oauth2.HTTPClient, o.rest.client))
	if err != nil {
		return nil, o.fail("client credentials", err)
	}
	return &connection{
		accessToken: tok.AccessToken,
		bearer:      "oidc/" + provider + "/" + tok.AccessToken,
	}, nil
}
