package servicestest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"apexdispatch/internal/models"
	"apexdispatch/internal/platforms"
)

// Platform is a scripted platform. Dispatched jobs get ids remote-1, remote-2, ... and start queued.
type Platform struct {
	mu          sync.Mutex
	nextID      int
	statuses    map[string]models.ProcessingStatus
	failWhen    func(models.Params) error
	statusErr   error
	statusCalls int
}

func NewPlatform() *Platform {
	return &Platform{statuses: map[string]models.ProcessingStatus{}}
}

// FailWhen makes job execution return the error fn reports for the job parameters.
func (p *Platform) FailWhen(fn func(models.Params) error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failWhen = fn
}

// FailStatus makes every status poll return err until reset with nil.
func (p *Platform) FailStatus(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statusErr = err
}

func (p *Platform) SetStatus(platformJobID string, status models.ProcessingStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses[platformJobID] = status
}

// SetAll moves every dispatched job to status.
func (p *Platform) SetAll(status models.ProcessingStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id := range p.statuses {
		p.statuses[id] = status
	}
}

func (p *Platform) StatusCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statusCalls
}

func (p *Platform) fail(params models.Params) error {
	p.mu.Lock()
	fn := p.failWhen
	p.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(params)
}

func (p *Platform) ExecuteJob(_ context.Context, _, _ string, _ models.ServiceDetails, params models.Params, _ models.OutputFormat) (string, error) {
	if err := p.fail(params); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	id := fmt.Sprintf("remote-%d", p.nextID)
	p.statuses[id] = models.StatusQueued
	return id, nil
}

func (p *Platform) ExecuteSyncJob(_ context.Context, _, _ string, _ models.ServiceDetails, params models.Params, _ models.OutputFormat) (*platforms.SyncResult, error) {
	if err := p.fail(params); err != nil {
		return nil, err
	}
	return &platforms.SyncResult{ContentType: "image/tiff", Body: []byte("II*\x00raster")}, nil
}

func (p *Platform) JobStatus(_ context.Context, _, platformJobID string, _ models.ServiceDetails) (models.ProcessingStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statusCalls++
	if p.statusErr != nil {
		return "", p.statusErr
	}
	return p.statuses[platformJobID], nil
}

func (p *Platform) JobResults(_ context.Context, _, platformJobID string, _ models.ServiceDetails) (json.RawMessage, error) {
	return json.RawMessage(`{"type":"Collection","id":"` + platformJobID + `"}`), nil
}

func (p *Platform) ServiceParameters(context.Context, string, models.ServiceDetails) ([]models.Parameter, error) {
	return []models.Parameter{{Name: "temporal_extent", Type: models.ParamDateInterval}}, nil
}

// Registry serves p under the openEO label.
func Registry(p platforms.Platform) *platforms.Registry {
	r := platforms.NewRegistry()
	r.Register(models.LabelOpenEO, func() platforms.Platform { return p })
	return r
}
