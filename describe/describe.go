// Package describe turns addresses into typed core descriptions. Every
// function here is pure: the same address always yields an == result.
package describe

import (
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/Skryldev/image-source/core"
	apperrors "github.com/Skryldev/image-source/errors"
	"github.com/Skryldev/image-source/geometry"
	"github.com/Skryldev/image-source/utils"
)

// Well-known schemes.
const (
	SchemeAsset         = "asset"
	SchemeAssetsLibrary = "assets-library"
	SchemeScaled        = "scaled"
	SchemeDropbox       = "dropbox"
)

// ThumbnailMarker is the host or path segment that selects a thumbnail.
// Asset references name the same item with AssetMarker in its place.
const (
	ThumbnailMarker = "thumbnail"
	AssetMarker     = "asset"
)

// Resolve dispatches on the well-known schemes. Callers with custom schemes
// go through a core.SourceRegistry instead.
func Resolve(addr core.Address) (core.Description, error) {
	switch addr.Scheme() {
	case SchemeAsset, SchemeAssetsLibrary:
		return Asset(addr)
	case SchemeScaled:
		return Scaled(addr)
	case SchemeDropbox:
		return Remote(addr)
	}
	return nil, apperrors.SourceNotFound(addr.Scheme())
}

// Asset resolves a local asset address. The thumbnail marker may appear as
// the host or as any path segment.
func Asset(addr core.Address) (core.AssetDescription, error) {
	d := core.AssetDescription{
		Addr:     addr,
		Kind:     core.AssetFullResolution,
		AssetRef: addr.String(),
		Ext:      addr.Extension(),
	}

	host := addr.Host()
	segments := strings.Split(addr.Path(), "/")
	marked := false
	if host == ThumbnailMarker {
		host, marked = AssetMarker, true
	}
	for i, seg := range segments {
		if seg == ThumbnailMarker {
			segments[i], marked = AssetMarker, true
		}
	}
	if !marked {
		return d, nil
	}

	ref, err := core.ParseAddress(rebuild(addr, host, strings.Join(segments, "/")))
	if err != nil {
		return core.AssetDescription{}, err
	}
	d.Kind = core.AssetThumbnail
	d.AssetRef = ref.String()
	return d, nil
}

func rebuild(addr core.Address, host, p string) string {
	u := url.URL{Scheme: addr.Scheme(), Host: host, Path: p, RawQuery: addr.RawQuery()}
	return u.String()
}

// Remote resolves a remote file address. A thumbnail host selects the large
// thumbnail; any other host is treated as the first path segment.
func Remote(addr core.Address) (core.RemoteDescription, error) {
	d := core.RemoteDescription{Addr: addr, Kind: core.RemoteFullResolution}

	p := addr.Path()
	switch host := addr.Host(); host {
	case "":
	case ThumbnailMarker:
		d.Kind = core.RemoteLargeThumbnail
	default:
		p = "/" + host + p
	}
	if p == "" || p == "/" {
		return core.RemoteDescription{}, apperrors.Malformed(addr.String(), "empty remote path")
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	d.Path = p

	if ext := addr.Query().Get("ext"); ext != "" {
		d.Ext = utils.NormalizeExtension(ext)
	} else {
		d.Ext = utils.NormalizeExtension(path.Ext(p))
	}
	return d, nil
}

// Scaled resolves a scale/crop transform. src, width, height and crop are
// required; ext falls back to the nested address's extension.
func Scaled(addr core.Address) (core.ScaledDescription, error) {
	q := addr.Query()

	raw := q.Get("src")
	if raw == "" {
		return core.ScaledDescription{}, apperrors.Malformed(addr.String(), "missing src")
	}
	src, err := core.ParseAddress(raw)
	if err != nil {
		return core.ScaledDescription{}, apperrors.Malformed(addr.String(), "unparseable src")
	}

	width, err := positiveInt(q.Get("width"))
	if err != nil {
		return core.ScaledDescription{}, apperrors.Malformed(addr.String(), "width: "+err.Error())
	}
	height, err := positiveInt(q.Get("height"))
	if err != nil {
		return core.ScaledDescription{}, apperrors.Malformed(addr.String(), "height: "+err.Error())
	}

	crop, err := strconv.ParseBool(q.Get("crop"))
	if err != nil {
		return core.ScaledDescription{}, apperrors.Malformed(addr.String(), "crop must be a boolean")
	}
	mode := geometry.Fit
	if crop {
		mode = geometry.Fill
	}

	ext := utils.NormalizeExtension(q.Get("ext"))
	if ext == "" {
		ext = src.Extension()
	}

	return core.ScaledDescription{
		Addr:   addr,
		Source: src,
		Size:   geometry.Size{Width: width, Height: height},
		Mode:   mode,
		Ext:    ext,
	}, nil
}

func positiveInt(s string) (int, error) {
	if s == "" {
		return 0, strconv.ErrSyntax
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, strconv.ErrRange
	}
	return n, nil
}
