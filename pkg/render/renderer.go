// Package render dispatches view lifecycle calls to per-view-type renderers.
package render

import (
	"context"
	"fmt"
	"sync"

	"github.com/shahcompbio/montage-sub000/pkg/model"
)

// ViewRenderer is implemented once per view type. The engine calls Init when
// a view is committed and Update whenever a mutation leaves it stale; calls
// only happen after the graph mutation that triggered them has finished.
type ViewRenderer interface {
	Init(ctx context.Context, node *model.Node) error
	Update(ctx context.Context, node *model.Node) error
	UpdateView(ctx context.Context, node *model.Node) error
	ClearViewFacade(ctx context.Context, node *model.Node) error
	ResizeView(ctx context.Context, node *model.Node) error
}

// Registry maps view types to renderers.
type Registry struct {
	mu        sync.RWMutex
	renderers map[string]ViewRenderer
	fallback  ViewRenderer
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{renderers: make(map[string]ViewRenderer)}
}

// Register installs r for viewType, replacing any previous renderer.
func (r *Registry) Register(viewType string, vr ViewRenderer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renderers[viewType] = vr
}

// SetFallback installs the renderer used for unregistered view types.
func (r *Registry) SetFallback(vr ViewRenderer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = vr
}

// For returns the renderer of viewType.
func (r *Registry) For(viewType string) (ViewRenderer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if vr, ok := r.renderers[viewType]; ok {
		return vr, nil
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, fmt.Errorf("%w: %q", model.ErrUnknownRenderer, viewType)
}
