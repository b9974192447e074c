package policy

import "github.com/luthien-gate/policyproxy/pkg/proxytypes"

// PassthroughPolicy forwards every chunk unmodified and leaves requests
// and responses untouched. It exists as the zero-behavior baseline used
// by spec.md §8's round-trip property ("for all passthrough policies,
// the egress stream is chunk-for-chunk equal to the ingress stream").
type PassthroughPolicy struct {
	Base
}

// NewPassthroughPolicy returns a PassthroughPolicy.
func NewPassthroughPolicy() *PassthroughPolicy {
	p := &PassthroughPolicy{}
	p.WithCapabilities(CapOnChunkReceived)
	return p
}

func (p *PassthroughPolicy) Name() string { return "passthrough" }

func (p *PassthroughPolicy) OnChunkReceived(sctx *StreamingContext) error {
	sctx.Push(sctx.Chunk)
	return nil
}
