package core

import "github.com/Skryldev/image-source/geometry"

// Description is the typed intent parsed from an Address. The concrete types
// are AssetDescription, RemoteDescription and ScaledDescription; all are
// comparable values, so re-resolving an address yields an == result.
type Description interface {
	Address() Address
	// Extension is lower-case and dot-prefixed, or empty.
	Extension() string
	description()
}

// AssetKind selects which representation of a local asset is wanted.
type AssetKind int

const (
	AssetFullResolution AssetKind = iota
	AssetThumbnail
)

func (k AssetKind) String() string {
	if k == AssetThumbnail {
		return "thumbnail"
	}
	return "full"
}

// AssetDescription addresses an image in a local asset store.
type AssetDescription struct {
	Addr Address
	Kind AssetKind
	// AssetRef is the address in the store's own convention.
	AssetRef string
	Ext      string
}

func (d AssetDescription) Address() Address  { return d.Addr }
func (d AssetDescription) Extension() string { return d.Ext }
func (AssetDescription) description()        {}

// RemoteKind selects which representation of a remote file is wanted.
type RemoteKind int

const (
	RemoteFullResolution RemoteKind = iota
	RemoteLargeThumbnail
)

func (k RemoteKind) String() string {
	if k == RemoteLargeThumbnail {
		return "large-thumbnail"
	}
	return "full"
}

// RemoteDescription addresses a file held by a remote byte store.
type RemoteDescription struct {
	Addr Address
	Kind RemoteKind
	Path string
	Ext  string
}

func (d RemoteDescription) Address() Address  { return d.Addr }
func (d RemoteDescription) Extension() string { return d.Ext }
func (RemoteDescription) description()        {}

// ScaledDescription addresses a scale/crop transform over another address.
type ScaledDescription struct {
	Addr   Address
	Source Address
	Size   geometry.Size
	Mode   geometry.Mode
	Ext    string
}

func (d ScaledDescription) Address() Address  { return d.Addr }
func (d ScaledDescription) Extension() string { return d.Ext }
func (ScaledDescription) description()        {}
