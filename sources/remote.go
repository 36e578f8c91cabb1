package sources

import (
	"context"

	"github.com/Skryldev/image-source/core"
	"github.com/Skryldev/image-source/describe"
)

// Remote serves files from a remote byte store. Only the file tier is
// native; memory requests go through the two-tier policy.
type Remote struct {
	env    *Env
	client core.RemoteClient
}

// NewRemote returns a Remote source downloading through client.
func NewRemote(env *Env, client core.RemoteClient) *Remote {
	return &Remote{env: env, client: client}
}

func (s *Remote) Describe(addr core.Address) (core.Description, error) {
	return describe.Remote(addr)
}

func (s *Remote) Fetch(ctx context.Context, req core.Request) error {
	switch r := req.(type) {
	case *core.FileRequest:
		return s.fetchFile(ctx, r)
	case *core.MemoryRequest:
		return s.env.memoryViaFile(ctx, r)
	default:
		return core.UnsupportedRequest("remote.fetch", req)
	}
}

func (s *Remote) fetchFile(ctx context.Context, req *core.FileRequest) error {
	d, ok := req.Description().(core.RemoteDescription)
	if !ok {
		return wrongDescription("remote.fetch", req)
	}
	rc, err := s.client.Open(ctx, d.Path, d.Kind)
	if err != nil {
		return err
	}
	defer rc.Close()
	return s.env.writeFile(ctx, "remote.fetch_file", req, rc)
}

var _ core.Source = (*Remote)(nil)
