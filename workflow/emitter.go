package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/songzhibin97/gkit/generator"
	"github.com/songzhibin97/workflow-graph/events"
	"github.com/songzhibin97/workflow-graph/graph"
	"github.com/songzhibin97/workflow-graph/internal/ctxlog"
	"github.com/songzhibin97/workflow-graph/rules"
	"github.com/songzhibin97/workflow-graph/storage"
	"github.com/songzhibin97/workflow-graph/types"
)

// Standard error definitions
var (
	ErrNoWorkflows       = errors.New("builder recorded no workflows")
	ErrGeneratorRequired = errors.New("generator is required")
	ErrSinkNameRequired  = errors.New("name and sink are required")
	ErrInvalidManifest   = errors.New("manifest failed validation")
	ErrNothingMatched    = errors.New("filter removed every workflow")
)

// Emitter turns recorded builders into stored manifest records and hands
// them to the registered sinks.
type Emitter struct {
	storage   storage.Storage
	evaluator rules.Evaluator
	eventBus  *events.EventBus
	generate  generator.Generator
	sinks     map[string]Sink
	validate  bool
	keepEmpty bool
	mu        sync.RWMutex
}

// EmitterOption configures an Emitter.
type EmitterOption func(*Emitter)

// WithValidation toggles structural validation before a record is saved.
// Validation is on by default.
func WithValidation(enabled bool) EmitterOption {
	return func(e *Emitter) {
		e.validate = enabled
	}
}

// WithKeepEmpty emits records whose filter matched no workflow instead of
// failing with ErrNothingMatched.
func WithKeepEmpty(keep bool) EmitterOption {
	return func(e *Emitter) {
		e.keepEmpty = keep
	}
}

// NewEmitter creates an Emitter. A nil store selects in-memory storage and a
// nil evaluator selects the expr evaluator.
func NewEmitter(generate generator.Generator, store storage.Storage, evaluator rules.Evaluator, opts ...EmitterOption) (*Emitter, error) {
	if generate == nil {
		return nil, ErrGeneratorRequired
	}
	if store == nil {
		store = storage.NewMemoryStorage()
	}
	if evaluator == nil {
		evaluator = rules.NewExprEvaluator()
	}

	e := &Emitter{
		storage:   store,
		evaluator: evaluator,
		eventBus:  events.NewEventBus(),
		generate:  generate,
		sinks:     make(map[string]Sink),
		validate:  true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// SubscribeEvent subscribes a handler to graph events of builders created
// through NewBuilder.
func (e *Emitter) SubscribeEvent(eventType string, handler events.EventHandler) {
	e.eventBus.Subscribe(eventType, handler)
}

// NewBuilder returns a fresh builder for one compilation unit, wired to the
// emitter's event bus.
func (e *Emitter) NewBuilder(opts ...graph.Option) *graph.Builder {
	return graph.NewBuilder(append([]graph.Option{graph.WithEventBus(e.eventBus)}, opts...)...)
}

// RegisterSink registers a sink that receives every emitted record.
func (e *Emitter) RegisterSink(ctx context.Context, name string, sink Sink) error {
	if name == "" || sink == nil {
		return ErrSinkNameRequired
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		e.mu.Lock()
		defer e.mu.Unlock()
		e.sinks[name] = sink
		return nil
	}
}

// GenerateID generates a record ID using the configured generator.
func (e *Emitter) GenerateID() (uint64, error) {
	return e.generate.NextID()
}

// Emit converts b into a manifest, keeps the workflows matching filter,
// validates the result, stores it for filePath and writes it to every sink.
// It returns ErrNoWorkflows, leaving b untouched, when nothing was recorded.
// The saved record is returned even if a sink fails.
func (e *Emitter) Emit(ctx context.Context, filePath string, b *graph.Builder, filter string) (*types.ManifestRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logger := ctxlog.FromContext(ctx).With("file", filePath)

	if b == nil || !b.HasWorkflows() {
		logger.Debug("Nothing to emit.")
		return nil, ErrNoWorkflows
	}

	recorded := b.ToManifest()
	manifest, err := rules.Filter(e.evaluator, recorded, filter)
	if err != nil {
		return nil, err
	}
	if len(manifest.Workflows) == 0 && !e.keepEmpty {
		return nil, fmt.Errorf("%w: %q matched none of %d workflows", ErrNothingMatched, filter, len(recorded.Workflows))
	}
	logger.Debug("Manifest filtered.", "recorded", len(recorded.Workflows), "kept", len(manifest.Workflows))

	if e.validate {
		if err := graph.ValidateManifest(manifest); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
		}
	}

	id, err := e.GenerateID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate ID: %w", err)
	}

	rec := types.ManifestRecord{
		ID:        id,
		FilePath:  filePath,
		Manifest:  manifest,
		CreatedAt: time.Now().UnixMilli(),
	}
	if err := e.storage.SaveManifest(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to save manifest: %w", err)
	}
	logger.Info("Manifest emitted.", "id", id, "workflows", len(manifest.Workflows))

	return &rec, e.writeSinks(ctx, rec)
}

// writeSinks writes rec to every sink in name order and joins their errors.
func (e *Emitter) writeSinks(ctx context.Context, rec types.ManifestRecord) error {
	e.mu.RLock()
	names := make([]string, 0, len(e.sinks))
	for name := range e.sinks {
		names = append(names, name)
	}
	sinks := make(map[string]Sink, len(e.sinks))
	for name, sink := range e.sinks {
		sinks[name] = sink
	}
	e.mu.RUnlock()
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		if err := sinks[name].Write(ctx, rec); err != nil {
			errs = append(errs, fmt.Errorf("sink %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// GetManifest retrieves a stored record by ID.
func (e *Emitter) GetManifest(ctx context.Context, id uint64) (*types.ManifestRecord, error) {
	rec, err := e.storage.GetManifest(ctx, id)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// LatestManifest retrieves the newest stored record for filePath.
func (e *Emitter) LatestManifest(ctx context.Context, filePath string) (*types.ManifestRecord, error) {
	rec, err := e.storage.LatestManifest(ctx, filePath)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Stop shuts down the event bus.
func (e *Emitter) Stop(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		e.eventBus.Stop()
		return nil
	}
}
