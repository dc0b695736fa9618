package platforms

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"apexdispatch/internal/models"
)

// Factory builds a platform instance.
type Factory func() Platform

// Registry maps labels to platform implementations.
type Registry struct {
	mu        sync.RWMutex
	factories map[models.Label]Factory
	instances map[models.Label]Platform
}

func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[models.Label]Factory),
		instances: make(map[models.Label]Platform),
	}
}

// Register installs factory under label. A later registration for the same label replaces the earlier one.
func (r *Registry) Register(label models.Label, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[label] = factory
	delete(r.instances, label)
}

// Get returns the platform for label, building it on first use.
func (r *Registry) Get(label models.Label) (Platform, error) {
	r.mu.RLock()
	p, ok := r.instances[label]
	r.mu.RUnlock()
	if ok {
		return p, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.instances[label]; ok {
		return p, nil
	}
	factory, ok := r.factories[label]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedServiceType, label)
	}
	p = factory()
	r.instances[label] = p
	return p, nil
}

func (r *Registry) Labels() []models.Label {
	r.mu.RLock()
	defer r.mu.RUnlock()
	labels := make([]models.Label, 0, len(r.factories))
	for l := range r.factories {
		labels = append(labels, l)
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i] < labels[j] })
	return labels
}

// Deps are the collaborators shared by the built-in platforms.
type Deps struct {
	Backends  BackendLookup
	Exchanger TokenExchanger
	Timeout   time.Duration
}

// RegisterDefaults registers every built-in platform.
func RegisterDefaults(r *Registry, deps Deps) {
	r.Register(models.LabelOpenEO, func() Platform { return NewOpenEO(deps) })
	r.Register(models.LabelOGCAPIProcess, func() Platform { return NewOGCAPIProcess(deps) })
}
