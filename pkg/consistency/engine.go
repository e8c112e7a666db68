// Package consistency keeps each node's filters and info in agreement with
// the fieldset that currently applies to it.
package consistency

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shahcompbio/montage-sub000/pkg/fieldset"
	"github.com/shahcompbio/montage-sub000/pkg/logging"
	"github.com/shahcompbio/montage-sub000/pkg/metrics"
	"github.com/shahcompbio/montage-sub000/pkg/model"
	"github.com/shahcompbio/montage-sub000/pkg/nodestore"
)

// DefaultChromosomeAttribute is the backend attribute holding chromosomes.
const DefaultChromosomeAttribute = "chrom_number"

// Engine reconciles nodes against their resolved fieldsets.
type Engine struct {
	resolver   *fieldset.Resolver
	store      *nodestore.Store
	processors map[string]PostProcessor
	timeout    time.Duration
	chromESID  string

	mu       sync.Mutex
	inFlight map[int64]struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithPostProcessor registers p under the name fields refer to in their
// postProcessing attribute.
func WithPostProcessor(name string, p PostProcessor) Option {
	return func(e *Engine) {
		e.processors[name] = p
	}
}

// WithTimeout bounds the post-processing join of one reconciliation.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.timeout = d
	}
}

// WithChromosomeAttribute sets the attribute custom chromosome terms apply to.
func WithChromosomeAttribute(esid string) Option {
	return func(e *Engine) {
		e.chromESID = esid
	}
}

// New creates an engine over store.
func New(resolver *fieldset.Resolver, store *nodestore.Store, opts ...Option) *Engine {
	e := &Engine{
		resolver:   resolver,
		store:      store,
		processors: make(map[string]PostProcessor),
		chromESID:  DefaultChromosomeAttribute,
		inFlight:   make(map[int64]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Resolver returns the fieldset resolver the engine reconciles against.
func (e *Engine) Resolver() *fieldset.Resolver {
	return e.resolver
}

// Reconcile brings node's filters and info in line with its fieldset: missing
// fields get their defaults, fields outside the fieldset are dropped, and
// queued post-processing fields are resolved concurrently before returning.
// A second reconciliation of the same node while one is running fails with
// ErrReconcileInProgress.
func (e *Engine) Reconcile(ctx context.Context, node *model.Node) error {
	if err := e.acquire(node.ID); err != nil {
		return err
	}
	defer e.release(node.ID)

	fs, err := e.resolver.Resolve(node.Type, node, nil)
	if err != nil {
		metrics.Reconciliations.WithLabelValues("error").Inc()
		return err
	}

	queued := e.fill(node, fs)
	prune(node, fs)

	if len(queued) > 0 {
		// filled fields had no filter before, so a failed join removes them
		// and the next reconciliation queues them again
		if err := e.PostProcess(ctx, node, fs, queued, nil); err != nil {
			metrics.Reconciliations.WithLabelValues("error").Inc()
			return fmt.Errorf("reconcile node %d: %w", node.ID, err)
		}
	}

	metrics.Reconciliations.WithLabelValues("ok").Inc()
	logging.Debug("node reconciled", "id", node.ID, "type", node.Type, "postProcessed", len(queued))
	return nil
}

// tierOrder is the fixed order in which UpdateTree visits node types.
var tierOrder = []func(string) bool{
	model.IsViewType,
	func(t string) bool { return t == model.TypeViewFilter },
	func(t string) bool { return t == model.TypeDataFilter },
	func(t string) bool { return t == model.TypeData },
}

// UpdateTree reconciles every live node, views first, then view filters,
// data filters and finally data nodes. A field may depend on fields of a
// tier visited later in the same pass, so passes repeat until one leaves
// every node's field keys unchanged, at most once per tier plus a settling
// pass. Failures are collected and do not stop a pass; the errors of the
// last pass are returned.
func (e *Engine) UpdateTree(ctx context.Context) error {
	var errs []error
	for pass := 1; pass <= len(tierOrder)+1; pass++ {
		changed := false
		errs = errs[:0]
		for _, match := range tierOrder {
			for _, n := range e.store.NodesOfType(match) {
				if !e.store.Has(n.ID) {
					continue
				}
				before := n.FieldKeys()
				if err := e.Reconcile(ctx, n); err != nil {
					errs = append(errs, err)
				}
				if !slices.Equal(before, n.FieldKeys()) {
					changed = true
				}
			}
		}
		if !changed {
			logging.Trace("tree settled", "passes", pass)
			return errors.Join(errs...)
		}
	}
	logging.Warn("tree did not settle", "passes", len(tierOrder)+1)
	return errors.Join(errs...)
}

func (e *Engine) fill(node *model.Node, fs model.Fieldset) []string {
	var queued []string
	for _, id := range fs.Keys() {
		if node.HasField(id) {
			continue
		}
		f := fs[id]
		if e.Apply(node, id, f, f.Defaults()) {
			queued = append(queued, id)
		}
	}
	return queued
}

func prune(node *model.Node, fs model.Fieldset) {
	for id := range node.Filters {
		if _, ok := fs[id]; !ok {
			delete(node.Filters, id)
		}
	}
	for id := range node.Info {
		if _, ok := fs[id]; !ok {
			delete(node.Info, id)
		}
	}
}

// PostProcess runs the post-processors of fieldIDs concurrently against a
// snapshot of node and applies all results once every one has finished. The
// first failure cancels the others and nothing is applied: each field gets
// back its filter from prior, or is removed when prior has none. Results for
// a node that was deleted in the meantime are dropped.
func (e *Engine) PostProcess(ctx context.Context, node *model.Node, fs model.Fieldset, fieldIDs []string, prior map[string]model.FilterValue) error {
	results, err := e.join(ctx, node, fs, fieldIDs)
	if err != nil {
		for _, id := range fieldIDs {
			if fv, ok := prior[id]; ok {
				node.Filters[id] = fv
			} else {
				delete(node.Filters, id)
			}
		}
		return err
	}
	if results == nil {
		return nil
	}
	for i, id := range fieldIDs {
		node.Filters[id] = results[i]
	}
	return nil
}

// join returns the post-processed filters of fieldIDs in order, or nil when
// node was deleted while they ran.
func (e *Engine) join(ctx context.Context, node *model.Node, fs model.Fieldset, fieldIDs []string) ([]model.FilterValue, error) {
	procs := make([]PostProcessor, len(fieldIDs))
	names := make([]string, len(fieldIDs))
	for i, id := range fieldIDs {
		f, ok := fs[id]
		if !ok {
			return nil, fmt.Errorf("post-process %s: %w", id, model.ErrUnknownField)
		}
		p, ok := e.processors[f.PostProcessing]
		if !ok {
			return nil, fmt.Errorf("field %s: %w: %q", id, model.ErrUnknownPostProcessor, f.PostProcessing)
		}
		procs[i], names[i] = p, f.PostProcessing
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	live := e.store.Has(node.ID)
	snapshot := node.Clone()
	results := make([]model.FilterValue, len(fieldIDs))

	g, gctx := errgroup.WithContext(ctx)
	for i, id := range fieldIDs {
		g.Go(func() error {
			start := time.Now()
			defer func() {
				metrics.PostProcessDuration.WithLabelValues(names[i]).Observe(time.Since(start).Seconds())
			}()
			fv, err := procs[i].Process(gctx, id, snapshot)
			if err != nil {
				return fmt.Errorf("post-process %s with %s: %w", id, names[i], err)
			}
			results[i] = fv
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if live && !e.store.Has(node.ID) {
		logging.Warn("dropping post-processing results for deleted node", "id", node.ID)
		return nil, nil
	}
	return results, nil
}

func (e *Engine) acquire(id int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.inFlight[id]; busy {
		return fmt.Errorf("node %d: %w", id, model.ErrReconcileInProgress)
	}
	e.inFlight[id] = struct{}{}
	return nil
}

func (e *Engine) release(id int64) {
	e.mu.Lock()
	delete(e.inFlight, id)
	e.mu.Unlock()
}
