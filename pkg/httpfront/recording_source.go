package httpfront

import (
	"context"

	"github.com/luthien-gate/policyproxy/pkg/orchestrator"
	"github.com/luthien-gate/policyproxy/pkg/proxytypes"
)

// recordingSource wraps an orchestrator.Source, handing every chunk that
// passes through to record before returning it, so the Transaction
// Recorder sees raw ingress chunks without the orchestrator needing to
// know the recorder exists.
type recordingSource struct {
	orchestrator.Source
	record func(proxytypes.Chunk)
}

func (s *recordingSource) Next(ctx context.Context) (proxytypes.Chunk, bool, error) {
	chunk, ok, err := s.Source.Next(ctx)
	if ok && s.record != nil {
		s.record(chunk)
	}
	return chunk, ok, err
}
