package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Skryldev/image-source/core"
	apperrors "github.com/Skryldev/image-source/errors"
)

// HTTPConfig configures an HTTP remote client.
type HTTPConfig struct {
	// BaseURL is prefixed to every remote path.
	BaseURL string
	// ThumbnailPath is inserted between BaseURL and the path for large
	// thumbnails.
	ThumbnailPath string
	Timeout       time.Duration
	// Header is added to every request, e.g. an Authorization token.
	Header http.Header
}

// HTTP is a core.RemoteClient that GETs remote paths from a base URL.
type HTTP struct {
	client    *http.Client
	base      *url.URL
	thumbPath string
	header    http.Header
}

// NewHTTP builds an HTTP remote client. A nil client uses a fresh
// http.Client with cfg.Timeout.
func NewHTTP(client *http.Client, cfg HTTPConfig) (*HTTP, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, apperrors.New(apperrors.CategoryConfig, "http.new", fmt.Errorf("invalid base url %q", cfg.BaseURL))
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	thumb := cfg.ThumbnailPath
	if thumb == "" {
		thumb = "/thumbnails/large"
	}
	return &HTTP{client: client, base: base, thumbPath: thumb, header: cfg.Header.Clone()}, nil
}

// URL returns the request URL for a remote path.
func (h *HTTP) URL(p string, kind core.RemoteKind) string {
	u := *h.base
	prefix := strings.TrimSuffix(u.Path, "/")
	if kind == core.RemoteLargeThumbnail {
		prefix += "/" + strings.Trim(h.thumbPath, "/")
	}
	u.Path = prefix + "/" + strings.TrimPrefix(p, "/")
	u.RawPath = ""
	return u.String()
}

// Open implements core.RemoteClient. 404 maps to ErrNotFound; 5xx and 429
// responses and transport errors are transient.
func (h *HTTP) Open(ctx context.Context, p string, kind core.RemoteKind) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL(p, kind), nil)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryInput, "http.get", err)
	}
	for k, vs := range h.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := h.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperrors.Canceled("http.get", ctx.Err())
		}
		return nil, apperrors.Transient("http.get", err)
	}
	if resp.StatusCode == http.StatusOK {
		return resp.Body, nil
	}

	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
	status := fmt.Errorf("GET %s: %s", p, resp.Status)
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, apperrors.New(apperrors.CategoryStorage, "http.get", fmt.Errorf("%w: %w", apperrors.ErrNotFound, status))
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, apperrors.Transient("http.get", status)
	default:
		return nil, apperrors.New(apperrors.CategoryStorage, "http.get", status)
	}
}

var _ core.RemoteClient = (*HTTP)(nil)
