// Package upstream defines the boundary between the core pipeline and the
// real LLM vendor call. spec.md §1 names "the real upstream HTTP call" as
// an external collaborator, not core: this package is the small interface
// that boundary takes, plus a fixture implementation for tests.
package upstream

import (
	"context"

	"github.com/luthien-gate/policyproxy/pkg/orchestrator"
	"github.com/luthien-gate/policyproxy/pkg/proxytypes"
)

// Client dispatches a request to an LLM vendor and returns a chunk
// source the orchestrator drives. A real implementation issues an HTTP
// request and adapts the vendor's SSE stream into this shape; this
// package only defines the seam.
type Client interface {
	Stream(ctx context.Context, req proxytypes.Request) (orchestrator.Source, error)
}

// FixtureClient replays a fixed chunk sequence, for tests that don't hold
// a real vendor API key.
type FixtureClient struct {
	Chunks []proxytypes.Chunk
	// Err, if set, is returned from Stream instead of a Source.
	Err error
}

func (c *FixtureClient) Stream(_ context.Context, _ proxytypes.Request) (orchestrator.Source, error) {
	if c.Err != nil {
		return nil, c.Err
	}
	return &fixtureSource{chunks: c.Chunks}, nil
}

// fixtureSource implements orchestrator.Source over an in-memory slice.
type fixtureSource struct {
	chunks []proxytypes.Chunk
	idx    int
}

func (s *fixtureSource) Next(ctx context.Context) (proxytypes.Chunk, bool, error) {
	select {
	case <-ctx.Done():
		return proxytypes.Chunk{}, false, ctx.Err()
	default:
	}
	if s.idx >= len(s.chunks) {
		return proxytypes.Chunk{}, false, nil
	}
	c := s.chunks[s.idx]
	s.idx++
	return c, true, nil
}

func (s *fixtureSource) Close() {}
