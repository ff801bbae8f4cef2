// Package engine implements the operation dispatcher (C10): a single
// Execute(ctx, operation, params) entry point that validates required
// collaborators, mints a request id, times the call, dispatches to a named
// handler, records metrics, and returns a uniform {success, ...} envelope.
//
// Grounded on the donor's internal/mcp/mcphost/host.go ExecuteTool (registry
// lookup, time.Since(start) latency measurement, record-after-call shape)
// and internal/app/app.go's functional-option construction pattern (Option
// funcs applied before a sequence of fallible init steps).
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kgweave/kgweave/internal/observe"
	"github.com/kgweave/kgweave/pkg/decompose"
	"github.com/kgweave/kgweave/pkg/enrich"
	"github.com/kgweave/kgweave/pkg/graph"
	"github.com/kgweave/kgweave/pkg/hyde"
	"github.com/kgweave/kgweave/pkg/kgerr"
	"github.com/kgweave/kgweave/pkg/provider/embeddings"
	"github.com/kgweave/kgweave/pkg/provider/llm"
	"github.com/kgweave/kgweave/pkg/rdf"
	"github.com/kgweave/kgweave/pkg/search"
	"github.com/kgweave/kgweave/pkg/vector"
)

// Config tunes the dispatcher's own cross-cutting behaviour. Per-operation
// tuning (decompose options, enrich thresholds, ...) travels in each call's
// params instead.
type Config struct {
	// MaxTextLength rejects any single text/chunk content longer than this
	// many characters with a ValidationError.
	MaxTextLength int

	// MaxBatchSize rejects chunks/queries slices longer than this with a
	// ValidationError.
	MaxBatchSize int

	// DefaultTimeout bounds a single Execute call. Zero uses 5 minutes.
	DefaultTimeout time.Duration

	// VectorDimension is the embedding dimension enrich uses when a call's
	// params do not override it. Required for the enrich operation to
	// succeed; left zero, enrich params must supply their own dimension.
	VectorDimension int

	// EntityDedupThreshold is the default Jaro-Winkler similarity above
	// which decompose merges a new entity mention into an existing entity
	// instead of minting a new one. A decompose call's own params can still
	// override this per-invocation. Zero disables fuzzy merging.
	EntityDedupThreshold float64
}

// DefaultConfig returns spec.md §4.8's documented size limits.
func DefaultConfig() Config {
	return Config{
		MaxTextLength:  50000,
		MaxBatchSize:   10,
		DefaultTimeout: 5 * time.Minute,
	}
}

// Response is the uniform envelope every operation resolves to.
type Response struct {
	Success          bool       `json:"success"`
	RequestID        string     `json:"requestId"`
	ProcessingTimeMs int64      `json:"processingTimeMs"`
	Result           any        `json:"result,omitempty"`
	Error            *ErrorInfo `json:"error,omitempty"`
}

// ErrorInfo is the {error: kind, message} payload carried by a failed
// Response.
type ErrorInfo struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Engine is the single logical dispatcher instance for one process. It owns
// the shared dataset and (once enrich has run) the shared vector index;
// every operation's handler reads or mutates these under Engine's locks
// rather than owning private copies, matching the single-writer-dataset
// discipline the concurrency model requires.
type Engine struct {
	cfg Config
	reg *rdf.Registry
	now func() time.Time

	llmProvider   llm.Provider
	hydeProvider  llm.Provider
	embedProvider embeddings.Provider

	decomposer *decompose.Decomposer
	hydeEngine *hyde.Engine
	enricher   *enrich.Enricher

	mu      sync.Mutex
	dataset *graph.Dataset
	idx     *vector.Index

	metrics *observe.Metrics

	// hydeSeed, when set via WithHydeSeed, fixes the hyde.Engine's jitter
	// seed at construction time.
	hydeSeed *int64
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithDataset seeds the engine with an existing dataset (e.g. reloaded from
// an Endpoint) instead of an empty one.
func WithDataset(ds *graph.Dataset) Option {
	return func(e *Engine) { e.dataset = ds }
}

// WithVectorIndex seeds the engine with an existing vector index (e.g.
// loaded from disk) instead of waiting for the first enrich call.
func WithVectorIndex(idx *vector.Index) Option {
	return func(e *Engine) { e.idx = idx }
}

// WithMetrics injects a Metrics instance instead of observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithNow overrides the engine's clock, for deterministic tests.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithHydeSeed fixes the HyDE engine's jitter seed, for deterministic tests.
// Has no effect unless set before New wires the hyde.Engine.
func WithHydeSeed(seed int64) Option {
	return func(e *Engine) { e.hydeSeed = &seed }
}

// New wires an Engine from its collaborators. llmProvider and embedProvider
// may be nil if the corresponding operations will never be called; Execute
// returns a ValidationError for any operation whose required collaborator is
// missing, rather than panicking.
func New(cfg Config, reg *rdf.Registry, llmProvider, hydeProvider llm.Provider, embedProvider embeddings.Provider, opts ...Option) (*Engine, error) {
	if reg == nil {
		return nil, fmt.Errorf("engine: New: reg must not be nil")
	}
	if cfg.MaxTextLength <= 0 {
		cfg.MaxTextLength = DefaultConfig().MaxTextLength
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = DefaultConfig().MaxBatchSize
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = DefaultConfig().DefaultTimeout
	}

	e := &Engine{
		cfg:           cfg,
		reg:           reg,
		llmProvider:   llmProvider,
		hydeProvider:  hydeProvider,
		embedProvider: embedProvider,
		dataset:       graph.NewDataset(),
		now:           time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}

	if llmProvider != nil {
		e.decomposer = decompose.New(reg, llmProvider, e.now)
	}
	if hydeProvider != nil {
		seed := e.now().UnixNano()
		if e.hydeSeed != nil {
			seed = *e.hydeSeed
		}
		e.hydeEngine = hyde.New(reg, hydeProvider, seed, e.now)
	}
	if embedProvider != nil {
		e.enricher = enrich.New(reg, embedProvider, e.now)
	}

	return e, nil
}

// Execute dispatches operation against params (may be nil/empty for
// parameter-less operations such as "stats"), returning a uniform Response.
// Execute itself only returns a non-nil error for conditions outside any
// operation's control (none currently); operation failures are reported via
// Response.Error with Response.Success=false, matching spec.md §6's
// `execute(op, params) → {success, ...}` contract.
func (e *Engine) Execute(ctx context.Context, operation string, params json.RawMessage) (*Response, error) {
	requestID := uuid.NewString()
	start := time.Now()

	ctx, span := observe.StartSpan(ctx, "engine.Execute",
		trace.WithAttributes(
			attribute.String("operation", operation),
			attribute.String("request_id", requestID),
		),
	)
	defer span.End()

	timeout := e.cfg.DefaultTimeout
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := e.dispatch(opCtx, operation, params)

	elapsed := time.Since(start)
	resp := &Response{RequestID: requestID, ProcessingTimeMs: elapsed.Milliseconds()}

	status := "ok"
	if err != nil {
		status = "error"
		resp.Success = false
		kind, ok := kgerr.Of(err)
		if !ok {
			kind = kgerr.Internal
		}
		resp.Error = &ErrorInfo{Kind: string(kind), Message: err.Error()}
		observe.Logger(ctx).Error("operation failed",
			"operation", operation, "request_id", requestID, "kind", kind, "err", err)
	} else {
		resp.Success = true
		resp.Result = result
	}

	e.metrics.RecordOperation(ctx, operation, status, elapsed.Seconds())
	return resp, nil
}

// dispatch looks up and invokes the named handler, honouring opCtx's
// deadline set by Execute.
func (e *Engine) dispatch(ctx context.Context, operation string, params json.RawMessage) (any, error) {
	h, ok := operationHandlers[operation]
	if !ok {
		return nil, kgerr.New(kgerr.Validation, "engine.dispatch", fmt.Errorf("unknown operation %q", operation))
	}

	if ctx.Err() != nil {
		return nil, kgerr.New(kgerr.Timeout, "engine.dispatch", ctx.Err())
	}
	return h(ctx, e, params)
}

// mergeDataset merges src's quads into the engine's shared dataset under
// the engine's lock, the single "phase barrier" every operation that
// produces a local dataset (decompose, hyde-generate) passes through before
// its triples become visible to later operations.
func (e *Engine) mergeDataset(src *graph.Dataset) {
	if src == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dataset.Merge(src)
}

// snapshot returns the engine's current dataset and vector index pointers.
// Dataset and Index are themselves internally synchronised, so handlers may
// read/search them after releasing the engine lock.
func (e *Engine) snapshot() (*graph.Dataset, *vector.Index) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dataset, e.idx
}

// setIndex installs a freshly-built vector index, e.g. after an enrich call.
func (e *Engine) setIndex(idx *vector.Index) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.idx = idx
}

// newSearcher builds a Searcher bound to the engine's current index, so
// every search call sees the latest enrich result without the Engine having
// to rebuild a Searcher on every enrich call.
func (e *Engine) newSearcher() *search.Searcher {
	_, idx := e.snapshot()
	return search.New(idx, e.embedProvider, search.DefaultConfig())
}

// Dataset returns the engine's current shared dataset, for collaborators
// (e.g. the CLI's --store-dsn persistence) that need to read every quad the
// engine has produced so far. The returned Dataset is the engine's live
// instance, not a copy; callers must not mutate it.
func (e *Engine) Dataset() *graph.Dataset {
	ds, _ := e.snapshot()
	return ds
}

// VectorIndex returns the engine's current vector index, or nil if enrich
// has never run (or none was seeded via WithVectorIndex).
func (e *Engine) VectorIndex() *vector.Index {
	_, idx := e.snapshot()
	return idx
}

// Config returns the dispatcher configuration this engine was constructed
// with.
func (e *Engine) Config() Config {
	return e.cfg
}
