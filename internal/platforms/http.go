package platforms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxErrorBody = 512

type restClient struct {
	client *http.Client
}

func newRestClient(timeout time.Duration) *restClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &restClient{client: &http.Client{Timeout: timeout}}
}

type request struct {
	method  string
	url     string
	bearer  string
	body    any
	headers map[string]string
}

type response struct {
	header http.Header
	status int
	body   []byte
}

// do sends req and reads the whole body. Non-2xx answers are returned as *StatusError.
func (c *restClient) do(ctx context.Context, req request) (*response, error) {
	var reqBody io.Reader
	if req.body != nil {
		b, err := json.Marshal(req.body)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, req.url, reqBody)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.bearer != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.bearer)
	}
	for k, v := range req.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := string(body)
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(snippet)}
	}
	return &response{header: resp.Header, status: resp.StatusCode, body: body}, nil
}

// getJSON fetches url and decodes the body into out.
func (c *restClient) getJSON(ctx context.Context, url, bearer string, out any) error {
	resp, err := c.do(ctx, request{method: http.MethodGet, url: url, bearer: bearer})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func joinURL(base string, parts ...string) string {
	return strings.TrimRight(base, "/") + strings.Join(parts, "")
}

// lastSegment returns the final path element of a Location style header.
func lastSegment(location string) string {
	location = strings.TrimRight(location, "/")
	if i := strings.LastIndex(location, "/"); i >= 0 {
		return location[i+1:]
	}
	return location
}
