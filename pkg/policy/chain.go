package policy

import "github.com/luthien-gate/policyproxy/pkg/proxytypes"

// Chain runs multiple policies' hooks in series for one transaction, each
// policy's request/response transformation feeding the next.
//
// Supplemented from original_source/.../policies/multi_serial_policy.py
// (MultiSerialPolicy), dropped by spec.md's distillation. Only delegates a
// given hook to sub-policies that advertise its capability bit, mirroring
// multi_serial_policy.py's isinstance(policy, OpenAIPolicyInterface) gate
// re-expressed as a capability-bitmask check.
type Chain struct {
	policies []Policy
	caps     Capability
}

// NewChain returns a Chain running policies in the given order. The
// Chain's own Capabilities() is the union of every sub-policy's, so the
// executor still skips hooks none of them implement.
func NewChain(policies ...Policy) *Chain {
	c := &Chain{policies: policies}
	for _, p := range policies {
		c.caps |= p.Capabilities()
	}
	return c
}

func (c *Chain) Name() string {
	name := "Chain("
	for i, p := range c.policies {
		if i > 0 {
			name += ", "
		}
		name += p.Name()
	}
	return name + ")"
}

func (c *Chain) Capabilities() Capability { return c.caps }

func (c *Chain) OnRequest(req proxytypes.Request, pctx *Context) (proxytypes.Request, error) {
	var err error
	for _, p := range c.policies {
		if p.Capabilities()&CapOnRequest == 0 {
			continue
		}
		req, err = p.OnRequest(req, pctx)
		if err != nil {
			return req, err
		}
	}
	return req, nil
}

func (c *Chain) OnResponse(resp proxytypes.Response, pctx *Context) (proxytypes.Response, error) {
	var err error
	for _, p := range c.policies {
		if p.Capabilities()&CapOnResponse == 0 {
			continue
		}
		resp, err = p.OnResponse(resp, pctx)
		if err != nil {
			return resp, err
		}
	}
	return resp, nil
}

func (c *Chain) OnChunkReceived(sctx *StreamingContext) error {
	return c.delegate(CapOnChunkReceived, func(p Policy) error { return p.OnChunkReceived(sctx) })
}

func (c *Chain) OnContentDelta(sctx *StreamingContext) error {
	return c.delegate(CapOnContentDelta, func(p Policy) error { return p.OnContentDelta(sctx) })
}

func (c *Chain) OnContentComplete(sctx *StreamingContext) error {
	return c.delegate(CapOnContentComplete, func(p Policy) error { return p.OnContentComplete(sctx) })
}

func (c *Chain) OnToolCallDelta(sctx *StreamingContext) error {
	return c.delegate(CapOnToolCallDelta, func(p Policy) error { return p.OnToolCallDelta(sctx) })
}

func (c *Chain) OnToolCallComplete(sctx *StreamingContext) error {
	return c.delegate(CapOnToolCallComplete, func(p Policy) error { return p.OnToolCallComplete(sctx) })
}

func (c *Chain) OnFinishReason(sctx *StreamingContext) error {
	return c.delegate(CapOnFinishReason, func(p Policy) error { return p.OnFinishReason(sctx) })
}

func (c *Chain) OnStreamComplete(sctx *StreamingContext) error {
	return c.delegate(CapOnStreamComplete, func(p Policy) error { return p.OnStreamComplete(sctx) })
}

func (c *Chain) OnStreamingPolicyComplete(sctx *StreamingContext) error {
	return c.delegate(CapOnStreamingPolicyComplete, func(p Policy) error { return p.OnStreamingPolicyComplete(sctx) })
}

func (c *Chain) delegate(cap Capability, call func(Policy) error) error {
	for _, p := range c.policies {
		if p.Capabilities()&cap == 0 {
			continue
		}
		if err := call(p); err != nil {
			return err
		}
	}
	return nil
}
