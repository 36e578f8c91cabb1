package core

import (
	"net/url"
	"path"
	"strings"

	apperrors "github.com/Skryldev/image-source/errors"
	"github.com/Skryldev/image-source/utils"
)

// Address is a parsed, immutable resource identifier. Addresses are
// comparable and safe to use as map keys.
type Address struct {
	raw      string
	scheme   string
	host     string
	path     string
	rawQuery string
}

// ParseAddress parses s into an Address. A scheme is required.
func ParseAddress(s string) (Address, error) {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return Address{}, apperrors.Malformed(s, err.Error())
	}
	if u.Scheme == "" {
		return Address{}, apperrors.Malformed(s, "missing scheme")
	}
	return Address{
		raw:      u.String(),
		scheme:   strings.ToLower(u.Scheme),
		host:     u.Host,
		path:     u.Path,
		rawQuery: u.RawQuery,
	}, nil
}

// MustParseAddress is like ParseAddress but panics on error.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// String returns the canonical form used for cache keys.
func (a Address) String() string { return a.raw }

func (a Address) Scheme() string { return a.scheme }
func (a Address) Host() string   { return a.host }
func (a Address) Path() string   { return a.path }

// RawQuery returns the encoded query without the leading '?'.
func (a Address) RawQuery() string { return a.rawQuery }

// IsZero reports whether a was never parsed.
func (a Address) IsZero() bool { return a.raw == "" }

// Query returns a fresh copy of the query parameters.
func (a Address) Query() url.Values {
	v, _ := url.ParseQuery(a.rawQuery)
	return v
}

// Extension returns the explicit ext query parameter when present, else the
// extension of the path. The result is lower-case and dot-prefixed, or empty.
func (a Address) Extension() string {
	if ext := a.Query().Get("ext"); ext != "" {
		return utils.NormalizeExtension(ext)
	}
	return utils.NormalizeExtension(path.Ext(a.path))
}
