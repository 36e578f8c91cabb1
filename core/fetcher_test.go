package core_test

import (
	"context"
	"errors"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skryldev/image-source/core"
	apperrors "github.com/Skryldev/image-source/errors"
)

// ── Test helpers ──────────────────────────────────────────────────────────────

// dirDest is a minimal file-tier destination keyed by the escaped address.
type dirDest struct{ dir string }

func (d dirDest) ID() string { return "dir:" + d.dir }

func (d dirDest) CreateRequest(desc core.Description) core.Request {
	name := url.PathEscape(desc.Address().String())
	return core.NewFileRequest(filepath.Join(d.dir, name), desc)
}

// fakeSource writes a small file for every request. When gate is set it
// blocks until the gate closes or its context ends.
type fakeSource struct {
	calls    atomic.Int32
	gate     chan struct{}
	started  chan struct{}
	canceled chan struct{}
	fetch    func(ctx context.Context, req core.Request) error
}

func (s *fakeSource) Describe(addr core.Address) (core.Description, error) {
	if addr.Query().Get("bad") != "" {
		return nil, apperrors.Malformed(addr.String(), "bad flag")
	}
	return core.AssetDescription{Addr: addr, AssetRef: addr.String(), Ext: addr.Extension()}, nil
}

func (s *fakeSource) Fetch(ctx context.Context, req core.Request) error {
	s.calls.Add(1)
	if s.started != nil {
		select {
		case s.started <- struct{}{}:
		default:
		}
	}
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			if s.canceled != nil {
				close(s.canceled)
			}
			return ctx.Err()
		}
	}
	if s.fetch != nil {
		return s.fetch(ctx, req)
	}
	fr := req.(*core.FileRequest)
	return os.WriteFile(fr.Filename(), []byte("data"), 0o644)
}

type countingMetrics struct {
	coalesced atomic.Int32
	hits      atomic.Int32
	errs      atomic.Int32
}

func (m *countingMetrics) RecordFetchTime(string, time.Duration) {}
func (m *countingMetrics) RecordCacheHit(string)                 { m.hits.Add(1) }
func (m *countingMetrics) RecordCoalesced(string)                { m.coalesced.Add(1) }
func (m *countingMetrics) RecordError(string, string)            { m.errs.Add(1) }
func (m *countingMetrics) RecordStepTime(string, time.Duration)  {}
func (m *countingMetrics) RecordThroughput(int64)                {}

func newFetcher(t *testing.T, src core.Source) (*core.Fetcher, dirDest, *countingMetrics) {
	t.Helper()
	reg := core.NewSourceRegistry()
	reg.Register("test", src)
	metrics := &countingMetrics{}
	return core.NewFetcher(reg, core.WithMetrics(metrics)), dirDest{dir: t.TempDir()}, metrics
}

var testAddr = core.MustParseAddress("test://host/image.jpg")

// ── Unit tests ────────────────────────────────────────────────────────────────

func TestFetch_SingleFlight(t *testing.T) {
	src := &fakeSource{gate: make(chan struct{})}
	f, dest, metrics := newFetcher(t, src)

	const callers = 16
	var wg sync.WaitGroup
	reqs := make([]core.Request, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			reqs[idx], errs[idx] = f.Fetch(context.Background(), testAddr, dest)
		}(i)
	}

	require.Eventually(t, func() bool { return metrics.coalesced.Load() == callers-1 },
		2*time.Second, time.Millisecond)
	assert.Equal(t, 1, f.Pending())
	close(src.gate)
	wg.Wait()

	assert.EqualValues(t, 1, src.calls.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, reqs[0], reqs[i])
	}
	assert.True(t, reqs[0].IsFulfilled())
	assert.Zero(t, f.Pending())
}

func TestFetch_CacheHitSkipsSource(t *testing.T) {
	src := &fakeSource{}
	f, dest, metrics := newFetcher(t, src)

	first, err := f.Fetch(context.Background(), testAddr, dest)
	require.NoError(t, err)
	second, err := f.Fetch(context.Background(), testAddr, dest)
	require.NoError(t, err)

	assert.EqualValues(t, 1, src.calls.Load())
	assert.EqualValues(t, 1, metrics.hits.Load())
	assert.Equal(t, first.(*core.FileRequest).Filename(), second.(*core.FileRequest).Filename())
}

func TestFetch_CanceledBeforeStart(t *testing.T) {
	src := &fakeSource{}
	f, dest, _ := newFetcher(t, src)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Fetch(ctx, testAddr, dest)
	require.Error(t, err)
	assert.True(t, apperrors.IsCanceled(err))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, src.calls.Load())
	assert.Zero(t, f.Pending())
}

func TestFetch_FailureClearsRegistry(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	src := &fakeSource{}
	src.fetch = func(_ context.Context, req core.Request) error {
		if fail.Load() {
			return io.ErrUnexpectedEOF
		}
		return os.WriteFile(req.(*core.FileRequest).Filename(), []byte("ok"), 0o644)
	}
	f, dest, metrics := newFetcher(t, src)

	_, err := f.Fetch(context.Background(), testAddr, dest)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrFetchFailed)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Zero(t, f.Pending())
	assert.EqualValues(t, 1, metrics.errs.Load())

	fail.Store(false)
	req, err := f.Fetch(context.Background(), testAddr, dest)
	require.NoError(t, err)
	assert.True(t, req.IsFulfilled())
	assert.EqualValues(t, 2, src.calls.Load())
	assert.EqualValues(t, 1, f.ErrorCount())
	assert.EqualValues(t, 1, f.FetchedCount())
}

func TestFetch_UnfulfilledAfterFetch(t *testing.T) {
	src := &fakeSource{fetch: func(context.Context, core.Request) error { return nil }}
	f, dest, _ := newFetcher(t, src)

	_, err := f.Fetch(context.Background(), testAddr, dest)
	assert.ErrorIs(t, err, apperrors.ErrUnfulfilledAfterFetch)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryConsistency))
}

func TestFetch_SourceNotFound(t *testing.T) {
	f, dest, _ := newFetcher(t, &fakeSource{})

	_, err := f.Fetch(context.Background(), core.MustParseAddress("ftp://x/y.png"), dest)
	assert.ErrorIs(t, err, apperrors.ErrSourceNotFound)
	assert.Zero(t, f.Pending())
}

func TestFetch_MalformedDescriptionPropagates(t *testing.T) {
	src := &fakeSource{}
	f, dest, _ := newFetcher(t, src)

	_, err := f.Fetch(context.Background(), core.MustParseAddress("test://host/a.jpg?bad=1"), dest)
	assert.ErrorIs(t, err, apperrors.ErrMalformedAddress)
	assert.Zero(t, src.calls.Load())
}

func TestFetch_PanickingSourceFails(t *testing.T) {
	src := &fakeSource{fetch: func(context.Context, core.Request) error { panic("boom") }}
	f, dest, _ := newFetcher(t, src)

	_, err := f.Fetch(context.Background(), testAddr, dest)
	assert.ErrorIs(t, err, apperrors.ErrFetchFailed)
	assert.Zero(t, f.Pending())
}

func TestFetch_CallerCancellationDetachesOnlyThatCaller(t *testing.T) {
	src := &fakeSource{gate: make(chan struct{}), canceled: make(chan struct{})}
	f, dest, metrics := newFetcher(t, src)

	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()

	errA := make(chan error, 1)
	go func() {
		_, err := f.Fetch(ctxA, testAddr, dest)
		errA <- err
	}()

	type result struct {
		req core.Request
		err error
	}
	resB := make(chan result, 1)
	require.Eventually(t, func() bool { return f.Pending() == 1 }, time.Second, time.Millisecond)
	go func() {
		req, err := f.Fetch(context.Background(), testAddr, dest)
		resB <- result{req, err}
	}()
	require.Eventually(t, func() bool { return metrics.coalesced.Load() == 1 }, time.Second, time.Millisecond)

	cancelA()
	assert.True(t, apperrors.IsCanceled(<-errA))

	select {
	case <-src.canceled:
		t.Fatal("shared fetch aborted while another caller was attached")
	case <-time.After(20 * time.Millisecond):
	}

	close(src.gate)
	got := <-resB
	require.NoError(t, got.err)
	assert.True(t, got.req.IsFulfilled())
	assert.EqualValues(t, 1, src.calls.Load())
}

func TestFetch_LastDetachAbortsWork(t *testing.T) {
	src := &fakeSource{gate: make(chan struct{}), started: make(chan struct{}, 1), canceled: make(chan struct{})}
	f, dest, _ := newFetcher(t, src)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := f.Fetch(ctx, testAddr, dest)
		errCh <- err
	}()

	<-src.started
	cancel()
	assert.True(t, apperrors.IsCanceled(<-errCh))

	select {
	case <-src.canceled:
	case <-time.After(2 * time.Second):
		t.Fatal("source never observed cancellation")
	}
	require.Eventually(t, func() bool { return f.Pending() == 0 }, time.Second, time.Millisecond)

	// A fresh caller starts a new attempt instead of joining the aborted one.
	src.gate = nil
	req, err := f.Fetch(context.Background(), testAddr, dest)
	require.NoError(t, err)
	assert.True(t, req.IsFulfilled())
	assert.EqualValues(t, 2, src.calls.Load())
}

func TestFetch_DistinctDestinationsDoNotShare(t *testing.T) {
	src := &fakeSource{}
	f, destA, _ := newFetcher(t, src)
	destB := dirDest{dir: t.TempDir()}

	_, err := f.Fetch(context.Background(), testAddr, destA)
	require.NoError(t, err)
	_, err = f.Fetch(context.Background(), testAddr, destB)
	require.NoError(t, err)
	assert.EqualValues(t, 2, src.calls.Load())
}

func TestFetchAll(t *testing.T) {
	src := &fakeSource{}
	reg := core.NewSourceRegistry()
	reg.Register("test", src)
	f := core.NewFetcher(reg, core.WithConcurrency(2))
	dest := dirDest{dir: t.TempDir()}

	addrs := []core.Address{
		core.MustParseAddress("test://host/a.jpg"),
		core.MustParseAddress("test://host/b.jpg"),
		core.MustParseAddress("nope://host/c.jpg"),
	}
	reqs, errs := f.FetchAll(context.Background(), addrs, dest)

	require.Len(t, reqs, 3)
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.True(t, errors.Is(errs[2], apperrors.ErrSourceNotFound))
	assert.True(t, reqs[0].IsFulfilled())
	assert.Nil(t, reqs[2])
}

func TestFetchFile_WrongTier(t *testing.T) {
	src := &fakeSource{}
	f, dest, _ := newFetcher(t, src)

	_, err := f.FetchMemory(context.Background(), testAddr, dest)
	assert.ErrorIs(t, err, apperrors.ErrUnsupportedRequest)

	fr, err := f.FetchFile(context.Background(), testAddr, dest)
	require.NoError(t, err)
	assert.FileExists(t, fr.Filename())
}
