package policy

import "github.com/luthien-gate/policyproxy/pkg/proxytypes"

// ToolCallResult is what an OnToolCallFunc returns: exactly one of
// Blocked (drop it silently, with an event), Replacement (replace the
// tool call with text), or Modified (forward the given block, possibly
// edited) should be meaningful — BufferingPolicy checks them in that
// order.
type ToolCallResult struct {
	Blocked     bool
	Replacement string
	Modified    *proxytypes.StreamBlock
}

// PassThroughToolCall forwards a tool-call block unchanged — the default
// behavior if OnToolCallFunc is nil.
func PassThroughToolCall(block *proxytypes.StreamBlock) ToolCallResult {
	return ToolCallResult{Modified: block}
}

// BufferingPolicy buffers deltas and calls simplified, block-level hooks
// only once a block completes, hiding streaming complexity from simple
// policies.
//
// Grounded on original_source/.../v2/policies/simple_event_based_policy.py
// (SimpleEventBasedPolicy): it suppresses on_content_delta/
// on_tool_call_delta forwarding and pushes exactly one synthesized chunk
// from on_content_complete/on_tool_call_complete, matching the Python
// base class's "buffer until complete, suppress deltas" contract. Per
// spec.md §9's design note this is expressed as a struct of function
// fields (the teacher's LanguageModelMiddleware idiom) rather than a
// subclass with overridable methods.
type BufferingPolicy struct {
	Base

	PolicyName string

	// OnRequestFunc defaults to pass-through if nil.
	OnRequestFunc func(req proxytypes.Request, pctx *Context) (proxytypes.Request, error)

	// OnContentFunc transforms a complete content block's text. Defaults
	// to identity if nil.
	OnContentFunc func(content string, sctx *StreamingContext) string

	// OnToolCallFunc decides the fate of a complete tool call. Defaults
	// to PassThroughToolCall if nil.
	OnToolCallFunc func(block *proxytypes.StreamBlock, sctx *StreamingContext) ToolCallResult
}

// NewBufferingPolicy returns a BufferingPolicy with the buffering
// capability set (content/tool-call delta suppression, completion hooks,
// request hook) already registered.
func NewBufferingPolicy(name string) *BufferingPolicy {
	p := &BufferingPolicy{PolicyName: name}
	p.WithCapabilities(CapOnRequest | CapOnContentComplete | CapOnToolCallComplete)
	return p
}

func (p *BufferingPolicy) Name() string {
	if p.PolicyName != "" {
		return p.PolicyName
	}
	return "BufferingPolicy"
}

func (p *BufferingPolicy) OnRequest(req proxytypes.Request, pctx *Context) (proxytypes.Request, error) {
	if p.OnRequestFunc == nil {
		return req, nil
	}
	return p.OnRequestFunc(req, pctx)
}

// OnContentDelta is intentionally a no-op: deltas are suppressed until
// the block completes (spec.md §4.3 table, "typically not pushed
// progressively").
func (p *BufferingPolicy) OnContentDelta(_ *StreamingContext) error { return nil }

func (p *BufferingPolicy) OnContentComplete(sctx *StreamingContext) error {
	content := sctx.JustCompleted.Content
	transform := p.OnContentFunc
	if transform == nil {
		transform = func(c string, _ *StreamingContext) string { return c }
	}
	modified := transform(content, sctx)
	if modified != "" {
		sctx.PushText(modified)
	}
	return nil
}

// OnToolCallDelta is intentionally a no-op for the same reason as
// OnContentDelta.
func (p *BufferingPolicy) OnToolCallDelta(_ *StreamingContext) error { return nil }

func (p *BufferingPolicy) OnToolCallComplete(sctx *StreamingContext) error {
	block := sctx.JustCompleted
	decide := p.OnToolCallFunc
	if decide == nil {
		decide = func(b *proxytypes.StreamBlock, _ *StreamingContext) ToolCallResult {
			return PassThroughToolCall(b)
		}
	}
	result := decide(block, sctx)

	switch {
	case result.Blocked:
		sctx.Emit(proxytypes.PolicyEvent{
			EventType: "simple_policy.tool_call_blocked",
			Summary:   "tool call blocked: " + block.Name,
			Severity:  proxytypes.SeverityWarning,
			Details:   map[string]any{"tool_name": block.Name, "tool_id": block.ID},
		})
	case result.Replacement != "":
		sctx.Emit(proxytypes.PolicyEvent{
			EventType: "simple_policy.tool_call_replaced",
			Summary:   "tool call replaced with text: " + block.Name,
			Details:   map[string]any{"tool_name": block.Name, "content_length": len(result.Replacement)},
		})
		sctx.PushText(result.Replacement)
	case result.Modified != nil:
		m := result.Modified
		sctx.Push(proxytypes.Chunk{
			ID:    sctx.Chunk.ID,
			Model: sctx.Chunk.Model,
			Choices: []proxytypes.Choice{{
				Delta: proxytypes.Delta{
					ToolCalls: []proxytypes.ToolCallDelta{{
						Index:     m.Index,
						ID:        m.ID,
						Name:      m.Name,
						Arguments: m.Arguments,
					}},
				},
			}},
		})
	}
	return nil
}
