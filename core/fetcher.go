package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/Skryldev/image-source/errors"
)

const (
	traceScope     = "github.com/Skryldev/image-source/core"
	traceSpanFetch = "imagesource.fetch"

	traceAttrAddress     = "imagesource.address"
	traceAttrScheme      = "imagesource.scheme"
	traceAttrDestination = "imagesource.destination"
	traceAttrStatus      = "imagesource.status"
	traceAttrCacheHit    = "imagesource.cache_hit"
)

// Fetcher is the single-flight fetch orchestrator. Concurrent fetches of the
// same (address, destination) share one fulfilment attempt; fetches of
// different keys run independently. It is safe for concurrent use.
type Fetcher struct {
	sources   *SourceRegistry
	describer Describer
	logger    Logger
	metrics   MetricsCollector
	tracer    trace.Tracer
	workers   int

	mu      sync.Mutex
	flights map[flightKey]*flight

	fetchedCount int64
	errorCount   int64
}

type flightKey struct {
	address     string
	destination string
}

// flight is one in-flight fulfilment attempt. waiters, removed and finished
// are guarded by Fetcher.mu; req and err are written once before done closes.
type flight struct {
	done     chan struct{}
	cancel   context.CancelFunc
	waiters  int
	removed  bool
	finished bool

	req Request
	err error
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithDescriber replaces the registry's own scheme dispatch, e.g. with a
// memoising describer.
func WithDescriber(d Describer) FetcherOption { return func(f *Fetcher) { f.describer = d } }

// WithLogger attaches a structured logger.
func WithLogger(l Logger) FetcherOption { return func(f *Fetcher) { f.logger = l } }

// WithMetrics attaches a metrics collector.
func WithMetrics(m MetricsCollector) FetcherOption { return func(f *Fetcher) { f.metrics = m } }

// WithTracer overrides the OpenTelemetry tracer.
func WithTracer(t trace.Tracer) FetcherOption { return func(f *Fetcher) { f.tracer = t } }

// WithConcurrency bounds the fan-out of FetchAll; n <= 0 means unbounded.
func WithConcurrency(n int) FetcherOption { return func(f *Fetcher) { f.workers = n } }

// NewFetcher creates a Fetcher dispatching through sources.
func NewFetcher(sources *SourceRegistry, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		sources: sources,
		logger:  NopLogger(),
		flights: make(map[flightKey]*flight),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.describer == nil {
		f.describer = sources
	}
	if f.tracer == nil {
		f.tracer = otel.Tracer(traceScope)
	}
	return f
}

// Sources returns the source registry used for dispatch.
func (f *Fetcher) Sources() *SourceRegistry { return f.sources }

// Fetch returns a fulfilled Request for addr in dest. Callers that arrive
// while a fetch for the same key is running attach to it and observe the
// same outcome. A caller whose ctx ends detaches with a Canceled error; the
// shared attempt is aborted only once every attached caller has detached.
func (f *Fetcher) Fetch(ctx context.Context, addr Address, dest Destination) (Request, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Canceled("fetch", err)
	}

	key := flightKey{address: addr.String(), destination: dest.ID()}

	f.mu.Lock()
	fl, joined := f.flights[key]
	var workCtx context.Context
	if !joined {
		var cancel context.CancelFunc
		workCtx, cancel = context.WithCancel(context.WithoutCancel(ctx))
		fl = &flight{done: make(chan struct{}), cancel: cancel}
		f.flights[key] = fl
	}
	fl.waiters++
	f.mu.Unlock()

	if joined {
		f.logger.Debug("fetch.coalesced", "address", key.address, "destination", key.destination)
		if f.metrics != nil {
			f.metrics.RecordCoalesced(addr.Scheme())
		}
	} else {
		go f.run(workCtx, key, fl, addr, dest)
	}

	select {
	case <-fl.done:
		f.release(fl)
		return fl.req, fl.err
	case <-ctx.Done():
		f.detach(key, fl)
		return nil, apperrors.Canceled("fetch", ctx.Err())
	}
}

// FetchFile fetches addr into a file-tier destination.
func (f *Fetcher) FetchFile(ctx context.Context, addr Address, dest Destination) (*FileRequest, error) {
	req, err := f.Fetch(ctx, addr, dest)
	if err != nil {
		return nil, err
	}
	fr, ok := req.(*FileRequest)
	if !ok {
		return nil, UnsupportedRequest("fetch.file", req)
	}
	return fr, nil
}

// FetchMemory fetches addr into a memory-tier destination.
func (f *Fetcher) FetchMemory(ctx context.Context, addr Address, dest Destination) (*MemoryRequest, error) {
	req, err := f.Fetch(ctx, addr, dest)
	if err != nil {
		return nil, err
	}
	mr, ok := req.(*MemoryRequest)
	if !ok {
		return nil, UnsupportedRequest("fetch.memory", req)
	}
	return mr, nil
}

// FetchAll fetches every address into dest concurrently (fan-out / fan-in).
// Results and errors are index-aligned with addrs.
func (f *Fetcher) FetchAll(ctx context.Context, addrs []Address, dest Destination) ([]Request, []error) {
	results := make([]Request, len(addrs))
	errs := make([]error, len(addrs))

	var g errgroup.Group
	if f.workers > 0 {
		g.SetLimit(f.workers)
	}
	for i, addr := range addrs {
		g.Go(func() error {
			results[i], errs[i] = f.Fetch(ctx, addr, dest)
			return nil
		})
	}
	_ = g.Wait()
	return results, errs
}

// Pending returns the number of keys with a fetch in flight.
func (f *Fetcher) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.flights)
}

// FetchedCount returns the number of successful fulfilment attempts.
func (f *Fetcher) FetchedCount() int64 { return atomic.LoadInt64(&f.fetchedCount) }

// ErrorCount returns the number of failed fulfilment attempts.
func (f *Fetcher) ErrorCount() int64 { return atomic.LoadInt64(&f.errorCount) }

// ── flight internals ──────────────────────────────────────────────────────────

func (f *Fetcher) run(ctx context.Context, key flightKey, fl *flight, addr Address, dest Destination) {
	start := time.Now()
	ctx, span := f.tracer.Start(ctx, traceSpanFetch, trace.WithAttributes(
		attribute.String(traceAttrAddress, key.address),
		attribute.String(traceAttrScheme, addr.Scheme()),
		attribute.String(traceAttrDestination, key.destination),
	))

	f.logger.Debug("fetch.start", "address", key.address, "destination", key.destination)
	req, hit, err := f.attempt(ctx, addr, dest)
	elapsed := time.Since(start)

	span.SetAttributes(attribute.Bool(traceAttrCacheHit, hit))
	markSpanResult(span, err)
	span.End()

	fl.req, fl.err = req, err

	f.mu.Lock()
	f.removeLocked(key, fl)
	fl.finished = true
	orphaned := fl.waiters == 0
	close(fl.done)
	f.mu.Unlock()

	fl.cancel()
	if orphaned {
		closeOrphan(fl)
	}
	f.observe(addr, key, hit, elapsed, err)
}

// closeOrphan releases a memory result nobody is left to receive.
func closeOrphan(fl *flight) {
	if mr, ok := fl.req.(*MemoryRequest); ok {
		mr.Close()
	}
}

// attempt resolves, checks the destination and, on a miss, asks the source to
// fulfil the request. A panicking source is reported as a fetch failure.
func (f *Fetcher) attempt(ctx context.Context, addr Address, dest Destination) (req Request, hit bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			req, hit = nil, false
			err = apperrors.FetchFailed(addr.String(), fmt.Errorf("source panicked: %v", r))
		}
	}()

	src, err := f.sources.SourceFor(addr.Scheme())
	if err != nil {
		return nil, false, err
	}
	desc, err := f.describer.Describe(addr)
	if err != nil {
		return nil, false, err
	}

	req = dest.CreateRequest(desc)
	if req.IsFulfilled() {
		return req, true, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, false, apperrors.Canceled("fetch", err)
	}

	if err := src.Fetch(ctx, req); err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return nil, false, apperrors.Canceled("fetch", cerr)
		}
		if apperrors.IsCanceled(err) {
			return nil, false, err
		}
		return nil, false, apperrors.FetchFailed(addr.String(), err)
	}
	if !req.IsFulfilled() {
		return nil, false, apperrors.Unfulfilled(addr.String())
	}
	return req, false, nil
}

// release accounts for a waiter that received the flight's outcome.
func (f *Fetcher) release(fl *flight) {
	f.mu.Lock()
	fl.waiters--
	f.mu.Unlock()
}

// detach drops a waiter whose context ended. The last waiter to leave aborts
// the attempt and clears the key so later callers start afresh.
func (f *Fetcher) detach(key flightKey, fl *flight) {
	f.mu.Lock()
	fl.waiters--
	last := fl.waiters == 0
	finished := fl.finished
	if last {
		f.removeLocked(key, fl)
	}
	f.mu.Unlock()

	switch {
	case last && finished:
		closeOrphan(fl)
	case last:
		fl.cancel()
	}
}

// removeLocked deletes fl's registry entry exactly once. f.mu must be held.
func (f *Fetcher) removeLocked(key flightKey, fl *flight) {
	if fl.removed {
		return
	}
	fl.removed = true
	if f.flights[key] == fl {
		delete(f.flights, key)
	}
}

func (f *Fetcher) observe(addr Address, key flightKey, hit bool, elapsed time.Duration, err error) {
	scheme := addr.Scheme()
	if err != nil {
		atomic.AddInt64(&f.errorCount, 1)
		if apperrors.IsCanceled(err) {
			f.logger.Debug("fetch.canceled", "address", key.address, "destination", key.destination)
		} else {
			f.logger.Warn("fetch.error",
				"address", key.address,
				"destination", key.destination,
				"duration_ms", elapsed.Milliseconds(),
				"error", err.Error(),
			)
		}
		if f.metrics != nil {
			f.metrics.RecordError(scheme, string(apperrors.CategoryOf(err)))
		}
		return
	}

	atomic.AddInt64(&f.fetchedCount, 1)
	if hit {
		f.logger.Debug("fetch.hit", "address", key.address, "destination", key.destination)
	} else {
		f.logger.Info("fetch.done",
			"address", key.address,
			"destination", key.destination,
			"duration_ms", elapsed.Milliseconds(),
		)
	}
	if f.metrics != nil {
		if hit {
			f.metrics.RecordCacheHit(scheme)
		}
		f.metrics.RecordFetchTime(scheme, elapsed)
	}
}

func markSpanResult(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String(traceAttrStatus, "error"))
		return
	}
	span.SetStatus(codes.Ok, "")
	span.SetAttributes(attribute.String(traceAttrStatus, "success"))
}
