// Package imagesource resolves opaque image addresses into files on disk or
// decoded images in memory, fetching each address at most once at a time.
package imagesource

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strconv"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/Skryldev/image-source/adapters/decoder"
	"github.com/Skryldev/image-source/adapters/encoder"
	"github.com/Skryldev/image-source/adapters/raster"
	"github.com/Skryldev/image-source/adapters/storage"
	"github.com/Skryldev/image-source/config"
	"github.com/Skryldev/image-source/core"
	"github.com/Skryldev/image-source/describe"
	"github.com/Skryldev/image-source/destination"
	apperrors "github.com/Skryldev/image-source/errors"
	"github.com/Skryldev/image-source/hooks"
	"github.com/Skryldev/image-source/sources"
)

// Re-export Format constants for convenience.
const (
	JPEG = core.FormatJPEG
	PNG  = core.FormatPNG
	WebP = core.FormatWebP
)

// DefaultConfig returns a sensible production configuration.
func DefaultConfig() config.Config { return config.Default() }

// Manager is the primary entry point. It owns the disk and memory tiers, the
// source registry and the single-flight fetcher.
type Manager struct {
	cfg       config.Config
	codecs    core.Registry
	codec     *core.Codec
	sources   *core.SourceRegistry
	describer core.Describer
	fetcher   *core.Fetcher
	files     *destination.File
	memory    *destination.Memory
	env       *sources.Env
}

type options struct {
	assetStore core.AssetStore
	remote     core.RemoteClient
	s3         storage.S3Client
	logger     core.Logger
	metrics    []core.MetricsCollector
	promReg    promclient.Registerer
	hooks      []core.Hook
	tracer     trace.Tracer
	codecs     core.Registry
	raster     core.Rasterizer
}

// Option configures a Manager.
type Option func(*options)

// WithAssetStore overrides the Local store rooted at config.AssetRoot.
func WithAssetStore(s core.AssetStore) Option { return func(o *options) { o.assetStore = s } }

// WithRemoteClient sets the byte store for config.Remote.Scheme, overriding
// config.Remote.Backend.
func WithRemoteClient(c core.RemoteClient) Option { return func(o *options) { o.remote = c } }

// WithS3Client supplies the client used when config.Remote.Backend is "s3".
func WithS3Client(c storage.S3Client) Option { return func(o *options) { o.s3 = c } }

// WithLogger attaches a structured logger to the fetcher and pipelines.
func WithLogger(l core.Logger) Option { return func(o *options) { o.logger = l } }

// WithMetrics attaches a metrics collector. It may be given more than once.
func WithMetrics(m core.MetricsCollector) Option {
	return func(o *options) { o.metrics = append(o.metrics, m) }
}

// WithPrometheus exports metrics to reg under config.MetricsNamespace.
func WithPrometheus(reg promclient.Registerer) Option { return func(o *options) { o.promReg = reg } }

// WithHook registers an observer for pipeline step events.
func WithHook(h core.Hook) Option { return func(o *options) { o.hooks = append(o.hooks, h) } }

// WithTracer overrides the global OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option { return func(o *options) { o.tracer = t } }

// WithCodec replaces the stdlib codecs and rasterizer, e.g. with the libvips
// backend. Required when config.Backend is "vips".
func WithCodec(reg core.Registry, r core.Rasterizer) Option {
	return func(o *options) { o.codecs, o.raster = reg, r }
}

// New creates a fully wired Manager. The asset and scaled schemes are always
// registered; the remote scheme is registered when a remote store is
// configured.
func New(cfg config.Config, opts ...Option) (*Manager, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	m := &Manager{cfg: cfg}
	if err := m.initCodecs(&o); err != nil {
		return nil, err
	}

	files, err := destination.NewFile(cfg.CacheDir, destination.WithHash(cfg.HashAlgorithm))
	if err != nil {
		return nil, err
	}
	m.files = files
	m.memory = destination.NewMemory(files)

	m.sources = core.NewSourceRegistry()
	m.describer = m.sources
	if cfg.ResolverCacheSize > 0 {
		cache, err := describe.NewCache(m.sources, cfg.ResolverCacheSize)
		if err != nil {
			return nil, apperrors.New(apperrors.CategoryConfig, "imagesource.new", err)
		}
		m.describer = cache
	}

	metrics, err := collectMetrics(cfg, &o)
	if err != nil {
		return nil, err
	}
	logger := o.logger
	if logger == nil {
		logger = core.NopLogger()
	}

	fopts := []core.FetcherOption{
		core.WithDescriber(m.describer),
		core.WithLogger(logger),
		core.WithConcurrency(cfg.WorkerCount),
	}
	pipelineHooks := append([]core.Hook{}, o.hooks...)
	if o.logger != nil {
		pipelineHooks = append(pipelineHooks, hooks.NewLoggingHook(logger))
	}
	if metrics != nil {
		fopts = append(fopts, core.WithMetrics(metrics))
		pipelineHooks = append(pipelineHooks, hooks.NewMetricsHook(metrics))
	}
	if o.tracer != nil {
		fopts = append(fopts, core.WithTracer(o.tracer))
	}
	m.fetcher = core.NewFetcher(m.sources, fopts...)

	m.env = &sources.Env{
		Fetcher:       m.fetcher,
		Codec:         m.codec,
		Files:         m.files,
		ChunkSize:     cfg.ChunkSize,
		MaxImageBytes: cfg.MaxImageBytes,
		EvictCorrupt:  cfg.EvictCorrupt,
		Logger:        logger,
		Hooks:         pipelineHooks,
	}
	if err := m.registerSources(&o); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) initCodecs(o *options) error {
	if o.codecs != nil {
		m.codecs = o.codecs
		m.codec = &core.Codec{Registry: o.codecs, Raster: o.raster, Quality: m.cfg.DefaultQuality}
		if o.raster == nil {
			m.codec.Raster = raster.New()
		}
		return nil
	}
	if m.cfg.Backend == config.BackendVips {
		return apperrors.New(apperrors.CategoryConfig, "imagesource.new",
			fmt.Errorf("backend %q needs WithCodec", m.cfg.Backend))
	}
	reg := core.NewRegistry()
	decoder.Register(reg)
	encoder.Register(reg, m.cfg.DefaultQuality)
	m.codecs = reg
	m.codec = &core.Codec{Registry: reg, Raster: raster.New(), Quality: m.cfg.DefaultQuality}
	return nil
}

func collectMetrics(cfg config.Config, o *options) (core.MetricsCollector, error) {
	all := append([]core.MetricsCollector{}, o.metrics...)
	if o.promReg != nil {
		pm, err := hooks.NewPrometheusMetrics(cfg.MetricsNamespace, o.promReg)
		if err != nil {
			return nil, err
		}
		all = append(all, pm)
	}
	switch len(all) {
	case 0:
		return nil, nil
	case 1:
		return all[0], nil
	default:
		return hooks.MultiMetrics(all), nil
	}
}

func (m *Manager) registerSources(o *options) error {
	store := o.assetStore
	if store == nil {
		root := m.cfg.AssetRoot
		if root == "" {
			root = filepath.Join(m.cfg.CacheDir, "assets")
		}
		local, err := storage.NewLocal(root, 0)
		if err != nil {
			return apperrors.New(apperrors.CategoryStorage, "imagesource.new", err)
		}
		store = local
	}
	asset := sources.NewAsset(m.env, store)
	m.sources.Register(describe.SchemeAsset, asset)
	m.sources.Register(describe.SchemeAssetsLibrary, asset)
	m.sources.Register(describe.SchemeScaled, sources.NewScaled(m.env, m.codec.Raster, m.cfg.MaxScaleDepth))

	remote, err := m.remoteClient(o)
	if err != nil {
		return err
	}
	if remote != nil {
		m.sources.Register(m.cfg.Remote.Scheme, sources.NewRemote(m.env, remote))
	}
	return nil
}

func (m *Manager) remoteClient(o *options) (core.RemoteClient, error) {
	if o.remote != nil {
		return o.remote, nil
	}
	rc := m.cfg.Remote
	switch rc.Backend {
	case config.RemoteHTTP:
		return storage.NewHTTP(nil, storage.HTTPConfig{
			BaseURL:       rc.BaseURL,
			ThumbnailPath: rc.ThumbnailPath,
			Timeout:       rc.Timeout,
		})
	case config.RemoteS3:
		if o.s3 == nil {
			return nil, apperrors.New(apperrors.CategoryConfig, "imagesource.new",
				fmt.Errorf("remote backend s3 needs WithS3Client"))
		}
		return storage.NewS3(o.s3, storage.S3Config{Bucket: rc.Bucket, ThumbnailPrefix: rc.ThumbnailPrefix})
	default:
		return nil, nil
	}
}

// RegisterSource adds or replaces the source for scheme.
func (m *Manager) RegisterSource(scheme string, src core.Source) { m.sources.Register(scheme, src) }

// RegisterRemote registers a Remote source over client for scheme.
func (m *Manager) RegisterRemote(scheme string, client core.RemoteClient) {
	m.sources.Register(scheme, sources.NewRemote(m.env, client))
}

// Describe resolves addr into its Description.
func (m *Manager) Describe(addr string) (core.Description, error) {
	a, err := core.ParseAddress(addr)
	if err != nil {
		return nil, err
	}
	return m.describer.Describe(a)
}

// Fetch returns addr decoded in memory. The request is shared with any
// concurrent callers for the same address; it stays valid until closed.
func (m *Manager) Fetch(ctx context.Context, addr string) (*core.MemoryRequest, error) {
	a, err := core.ParseAddress(addr)
	if err != nil {
		return nil, err
	}
	return m.fetcher.FetchMemory(ctx, a, m.memory)
}

// FetchFile returns addr cached on disk.
func (m *Manager) FetchFile(ctx context.Context, addr string) (*core.FileRequest, error) {
	a, err := core.ParseAddress(addr)
	if err != nil {
		return nil, err
	}
	return m.fetcher.FetchFile(ctx, a, m.files)
}

// FetchTo fetches addr into an arbitrary destination.
func (m *Manager) FetchTo(ctx context.Context, addr string, dest core.Destination) (core.Request, error) {
	a, err := core.ParseAddress(addr)
	if err != nil {
		return nil, err
	}
	return m.fetcher.Fetch(ctx, a, dest)
}

// FetchAll fetches every address into dest concurrently, bounded by
// config.WorkerCount. Results and errors are index-aligned with addrs.
func (m *Manager) FetchAll(ctx context.Context, addrs []string, dest core.Destination) ([]core.Request, []error) {
	parsed := make([]core.Address, 0, len(addrs))
	index := make([]int, 0, len(addrs))
	results := make([]core.Request, len(addrs))
	errs := make([]error, len(addrs))

	for i, raw := range addrs {
		a, err := core.ParseAddress(raw)
		if err != nil {
			errs[i] = err
			continue
		}
		parsed = append(parsed, a)
		index = append(index, i)
	}

	reqs, ferrs := m.fetcher.FetchAll(ctx, parsed, dest)
	for j, i := range index {
		results[i], errs[i] = reqs[j], ferrs[j]
	}
	return results, errs
}

// Files returns the disk tier.
func (m *Manager) Files() *destination.File { return m.files }

// Memory returns the memory tier.
func (m *Manager) Memory() *destination.Memory { return m.memory }

// Config returns the configuration the Manager was built with.
func (m *Manager) Config() config.Config { return m.cfg }

// Stats returns lightweight fetch statistics.
func (m *Manager) Stats() (fetched, errors int64, pending int) {
	return m.fetcher.FetchedCount(), m.fetcher.ErrorCount(), m.fetcher.Pending()
}

// ── Address builders ──────────────────────────────────────────────────────────

// ScaledAddress builds the address of src scaled to width×height. crop
// selects Fill over Fit; ext, when non-empty, forces the output extension.
func ScaledAddress(src string, width, height int, crop bool, ext string) string {
	q := url.Values{}
	q.Set("src", src)
	q.Set("width", strconv.Itoa(width))
	q.Set("height", strconv.Itoa(height))
	q.Set("crop", strconv.FormatBool(crop))
	if ext != "" {
		q.Set("ext", ext)
	}
	u := url.URL{Scheme: describe.SchemeScaled, RawQuery: q.Encode()}
	return u.String()
}
