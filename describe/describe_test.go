package describe_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skryldev/image-source/core"
	"github.com/Skryldev/image-source/describe"
	apperrors "github.com/Skryldev/image-source/errors"
	"github.com/Skryldev/image-source/geometry"
)

func TestScaled_DispatchExample(t *testing.T) {
	addr := core.MustParseAddress("scaled://?src=asset%3A%2F%2Fthumbnail%2Fabc&width=50&height=50&crop=true")

	d, err := describe.Resolve(addr)
	require.NoError(t, err)

	sd, ok := d.(core.ScaledDescription)
	require.True(t, ok, "got %T", d)
	assert.Equal(t, geometry.Size{Width: 50, Height: 50}, sd.Size)
	assert.Equal(t, geometry.Fill, sd.Mode)
	assert.Equal(t, core.MustParseAddress("asset://thumbnail/abc"), sd.Source)
	assert.Equal(t, "asset://thumbnail/abc", sd.Source.String())
	assert.Empty(t, sd.Ext)
}

func TestScaled_ExtensionInheritance(t *testing.T) {
	d, err := describe.Scaled(core.MustParseAddress("scaled://?src=dropbox%3A%2F%2F%2Fa%2Fb.PNG&width=10&height=20&crop=false"))
	require.NoError(t, err)
	assert.Equal(t, ".png", d.Ext)
	assert.Equal(t, geometry.Fit, d.Mode)

	d, err = describe.Scaled(core.MustParseAddress("scaled://?src=dropbox%3A%2F%2F%2Fa%2Fb.png&width=10&height=20&crop=0&ext=JPG"))
	require.NoError(t, err)
	assert.Equal(t, ".jpg", d.Ext)
}

func TestScaled_Malformed(t *testing.T) {
	cases := map[string]string{
		"missing src":    "scaled://?width=1&height=1&crop=true",
		"bad src":        "scaled://?src=%2Fno-scheme&width=1&height=1&crop=true",
		"missing width":  "scaled://?src=asset%3A%2F%2Fx&height=1&crop=true",
		"zero height":    "scaled://?src=asset%3A%2F%2Fx&width=1&height=0&crop=true",
		"negative width": "scaled://?src=asset%3A%2F%2Fx&width=-3&height=1&crop=true",
		"text width":     "scaled://?src=asset%3A%2F%2Fx&width=big&height=1&crop=true",
		"missing crop":   "scaled://?src=asset%3A%2F%2Fx&width=1&height=1",
		"bad crop":       "scaled://?src=asset%3A%2F%2Fx&width=1&height=1&crop=maybe",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := describe.Scaled(core.MustParseAddress(raw))
			assert.ErrorIs(t, err, apperrors.ErrMalformedAddress)
			assert.True(t, apperrors.IsCategory(err, apperrors.CategoryAddress))
		})
	}
}

func TestAsset(t *testing.T) {
	tests := []struct {
		raw  string
		kind core.AssetKind
		ref  string
		ext  string
	}{
		{"asset://thumbnail/abc", core.AssetThumbnail, "asset://asset/abc", ""},
		{"assets-library://asset/asset.JPG?id=1&ext=JPG", core.AssetFullResolution, "assets-library://asset/asset.JPG?id=1&ext=JPG", ".jpg"},
		{"asset://library/thumbnail/a.png", core.AssetThumbnail, "asset://library/asset/a.png", ".png"},
		{"asset://library/full/a.png", core.AssetFullResolution, "asset://library/full/a.png", ".png"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			d, err := describe.Asset(core.MustParseAddress(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.kind, d.Kind)
			assert.Equal(t, tt.ref, d.AssetRef)
			assert.Equal(t, tt.ext, d.Ext)
		})
	}
}

func TestRemote(t *testing.T) {
	tests := []struct {
		raw  string
		kind core.RemoteKind
		path string
		ext  string
	}{
		{"dropbox:///Photos/a%20b.JPG", core.RemoteFullResolution, "/Photos/a b.JPG", ".jpg"},
		{"dropbox://thumbnail/Photos/a.png", core.RemoteLargeThumbnail, "/Photos/a.png", ".png"},
		{"dropbox://Photos/a.png?ext=webp", core.RemoteFullResolution, "/Photos/a.png", ".webp"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			d, err := describe.Remote(core.MustParseAddress(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.kind, d.Kind)
			assert.Equal(t, tt.path, d.Path)
			assert.Equal(t, tt.ext, d.Ext)
		})
	}

	_, err := describe.Remote(core.MustParseAddress("dropbox://thumbnail"))
	assert.ErrorIs(t, err, apperrors.ErrMalformedAddress)
}

func TestResolve_Deterministic(t *testing.T) {
	for _, raw := range []string{
		"asset://thumbnail/abc",
		"dropbox://thumbnail/x/y.jpg",
		"scaled://?src=asset%3A%2F%2Fthumbnail%2Fabc&width=50&height=50&crop=true",
	} {
		a, err := describe.Resolve(core.MustParseAddress(raw))
		require.NoError(t, err)
		b, err := describe.Resolve(core.MustParseAddress(raw))
		require.NoError(t, err)
		assert.True(t, a == b, raw)
	}
}

func TestResolve_UnknownScheme(t *testing.T) {
	_, err := describe.Resolve(core.MustParseAddress("ftp://x/y"))
	assert.ErrorIs(t, err, apperrors.ErrSourceNotFound)
}

func TestCache(t *testing.T) {
	calls := 0
	inner := describe.DescriberFunc(func(addr core.Address) (core.Description, error) {
		calls++
		return describe.Resolve(addr)
	})
	cache, err := describe.NewCache(inner, 2)
	require.NoError(t, err)

	addr := core.MustParseAddress("asset://thumbnail/abc")
	first, err := cache.Describe(addr)
	require.NoError(t, err)
	second, err := cache.Describe(core.MustParseAddress("asset://thumbnail/abc"))
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, first == second)

	_, err = cache.Describe(core.MustParseAddress("scaled://?width=1"))
	assert.Error(t, err)
	assert.Equal(t, 1, cache.Len(), "errors are not memoised")

	cache.Purge()
	assert.Zero(t, cache.Len())
}
