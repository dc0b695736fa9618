package platforms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"apexdispatch/internal/config"
	"apexdispatch/internal/logging"
	"apexdispatch/internal/models"
)

var ogcStatuses = map[string]models.ProcessingStatus{
	"accepted":   models.StatusQueued,
	"running":    models.StatusRunning,
	"successful": models.StatusFinished,
	"failed":     models.StatusFailed,
	"dismissed":  models.StatusCanceled,
}

// OGCAPIProcess runs processes on OGC API Processes servers.
type OGCAPIProcess struct {
	rest *restClient
	conn *connector
}

func NewOGCAPIProcess(deps Deps) *OGCAPIProcess {
	return &OGCAPIProcess{
		rest: newRestClient(deps.Timeout),
		conn: newConnector(deps, nil, func(_ config.Backend, token string) string { return token }),
	}
}

func (p *OGCAPIProcess) fail(op string, err error) error {
	return &Error{Platform: models.LabelOGCAPIProcess, Op: op, Err: err}
}

// processID accepts either a bare process id or the URL of a process description.
func processID(application string) string {
	if u, err := url.Parse(application); err == nil && u.Scheme != "" {
		return lastSegment(u.Path)
	}
	return application
}

func (p *OGCAPIProcess) execute(ctx context.Context, token string, details models.ServiceDetails, params models.Params, async bool) (*response, error) {
	conn, err := p.conn.connect(ctx, details.Endpoint, token)
	if err != nil {
		return nil, err
	}
	if params == nil {
		params = models.Params{}
	}
	req := request{
		method: http.MethodPost,
		url:    joinURL(details.Endpoint, "/processes/", processID(details.Application), "/execution"),
		bearer: conn.bearer,
		body:   map[string]any{"inputs": params},
	}
	if async {
		req.headers = map[string]string{"Prefer": "respond-async"}
	}
	return p.rest.do(ctx, req)
}

func (p *OGCAPIProcess) ExecuteJob(ctx context.Context, token, title string, details models.ServiceDetails, params models.Params, _ models.OutputFormat) (string, error) {
	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"endpoint": details.Endpoint,
		"process":  processID(details.Application),
		"title":    title,
	}).Debug("Submitting OGC API process execution")

	resp, err := p.execute(ctx, token, details, params, true)
	if err != nil {
		var cfgErr *ConfigError
		if errors.As(err, &cfgErr) {
			return "", err
		}
		return "", p.fail("execute job", err)
	}

	var info struct {
		JobID string `json:"jobID"`
	}
	if len(bytes.TrimSpace(resp.body)) > 0 {
		if err := json.Unmarshal(resp.body, &info); err != nil {
			return "", p.fail("execute job", fmt.Errorf("failed to decode response: %w", err))
		}
	}
	if info.JobID == "" {
		info.JobID = lastSegment(resp.header.Get("Location"))
	}
	if info.JobID == "" {
		return "", p.fail("execute job", errors.New("server returned no job identifier"))
	}
	return info.JobID, nil
}

func (p *OGCAPIProcess) ExecuteSyncJob(ctx context.Context, token, _ string, details models.ServiceDetails, params models.Params, _ models.OutputFormat) (*SyncResult, error) {
	resp, err := p.execute(ctx, token, details, params, false)
	if err != nil {
		var cfgErr *ConfigError
		if errors.As(err, &cfgErr) {
			return nil, err
		}
		return nil, p.fail("execute synchronous job", err)
	}
	return &SyncResult{ContentType: resp.header.Get("Content-Type"), Body: resp.body}, nil
}

func (p *OGCAPIProcess) JobStatus(ctx context.Context, token, platformJobID string, details models.ServiceDetails) (models.ProcessingStatus, error) {
	conn, err := p.conn.connect(ctx, details.Endpoint, token)
	if err != nil {
		return "", err
	}
	var info struct {
		Status string `json:"status"`
	}
	if err := p.rest.getJSON(ctx, joinURL(details.Endpoint, "/jobs/", platformJobID), conn.bearer, &info); err != nil {
		return "", p.fail("get job status", err)
	}
	status, ok := ogcStatuses[strings.ToLower(info.Status)]
	if !ok {
		logging.FromContext(ctx).WithFields(map[string]interface{}{
			"platform_job_id": platformJobID,
			"remote_status":   info.Status,
		}).Warn("Unknown OGC API job status")
		return models.StatusUnknown, nil
	}
	return status, nil
}

func (p *OGCAPIProcess) JobResults(ctx context.Context, token, platformJobID string, details models.ServiceDetails) (json.RawMessage, error) {
	conn, err := p.conn.connect(ctx, details.Endpoint, token)
	if err != nil {
		return nil, err
	}
	resp, err := p.rest.do(ctx, request{
		method: http.MethodGet,
		url:    joinURL(details.Endpoint, "/jobs/", platformJobID, "/results"),
		bearer: conn.bearer,
	})
	if err != nil {
		return nil, p.fail("get job results", err)
	}
	if !json.Valid(resp.body) {
		return nil, p.fail("get job results", errors.New("results are not valid JSON"))
	}
	return json.RawMessage(resp.body), nil
}

type ogcInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	MinOccurs   *int   `json:"minOccurs"`
	Schema      struct {
		Type    string `json:"type"`
		Format  string `json:"format"`
		Ref     string `json:"$ref"`
		Default any    `json:"default"`
		Items   *struct {
			Format string `json:"format"`
		} `json:"items"`
	} `json:"schema"`
}

func (p *OGCAPIProcess) ServiceParameters(ctx context.Context, token string, details models.ServiceDetails) ([]models.Parameter, error) {
	conn, err := p.conn.connect(ctx, details.Endpoint, token)
	if err != nil {
		return nil, err
	}
	var desc struct {
		Inputs map[string]ogcInput `json:"inputs"`
	}
	if err := p.rest.getJSON(ctx, joinURL(details.Endpoint, "/processes/", processID(details.Application)), conn.bearer, &desc); err != nil {
		return nil, p.fail("get service parameters", err)
	}

	names := make([]string, 0, len(desc.Inputs))
	for name := range desc.Inputs {
		names = append(names, name)
	}
	sort.Strings(names)

	params := make([]models.Parameter, 0, len(names))
	for _, name := range names {
		in := desc.Inputs[name]
		description := in.Description
		if description == "" {
			description = in.Title
		}
		params = append(params, models.Parameter{
			Name:        name,
			Type:        ogcParamType(in),
			Optional:    in.MinOccurs != nil && *in.MinOccurs == 0,
			Description: description,
			Default:     in.Schema.Default,
		})
	}
	return params, nil
}

func ogcParamType(in ogcInput) models.ParamType {
	s := in.Schema
	switch {
	case s.Format == "ogc-bbox" || strings.Contains(strings.ToLower(s.Ref), "bbox"):
		return models.ParamBoundingBox
	case s.Type == "array" && s.Items != nil && (s.Items.Format == "date" || s.Items.Format == "date-time"):
		return models.ParamDateInterval
	case s.Type == "boolean":
		return models.ParamBoolean
	}
	return models.ParamString
}
