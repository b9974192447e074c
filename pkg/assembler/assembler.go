// Package assembler implements the Chunk Assembler: a pure state machine
// that folds incoming chunks into a StreamState, detecting transitions
// between content blocks and tool-call blocks.
//
// Grounded on the five-step algorithm of
// luthien_proxy/v2/streaming/streaming_chunk_assembler.py and
// stream_processor.py.
package assembler

import "github.com/luthien-gate/policyproxy/pkg/proxytypes"

// Assembler folds chunks into a StreamState. It has no concurrency of its
// own; callers serialize access per transaction.
type Assembler struct {
	state *proxytypes.StreamState
}

// New returns an Assembler wrapping a fresh StreamState.
func New() *Assembler {
	return &Assembler{state: proxytypes.NewStreamState()}
}

// State returns the StreamState being maintained.
func (a *Assembler) State() *proxytypes.StreamState {
	return a.state
}

// Process folds one chunk into the state, per spec.md §4.2. It returns the
// (possibly mutated) chunk — rule 5 strips an empty content field from the
// delta once the tool-call phase has begun — and reports whether the
// stream is now finished.
//
// state.JustCompleted is set at most once per call and must be cleared by
// the caller (after its own downstream callback runs) before the next
// call to Process.
func (a *Assembler) Process(chunk proxytypes.Chunk) (proxytypes.Chunk, bool) {
	s := a.state
	s.RawChunks = append(s.RawChunks, chunk)

	choice, ok := chunk.FirstChoice()
	if !ok {
		return chunk, s.HasFinishReason
	}
	delta := choice.Delta

	if delta.HasContent && delta.Content != "" {
		a.processContentDelta(delta.Content)
	}

	if len(delta.ToolCalls) > 0 {
		a.processToolCallDeltas(delta.ToolCalls)
	}

	finishReason, hasFinish := delta.FinishReason, delta.HasFinish
	if !hasFinish {
		finishReason, hasFinish = choice.FinishReason, choice.HasFinish
	}
	if hasFinish {
		s.FinishReason = finishReason
		s.HasFinishReason = true
		if s.CurrentBlock != nil && !s.CurrentBlock.Complete {
			s.CurrentBlock.Complete = true
			s.JustCompleted = s.CurrentBlock
			s.CurrentBlock = nil
		}
	}

	chunk = a.stripEmptyContent(chunk)

	return chunk, s.HasFinishReason
}

// ClearJustCompleted clears the just-completed marker. Callers invoke this
// after their downstream callback for the current chunk has returned.
func (a *Assembler) ClearJustCompleted() {
	a.state.JustCompleted = nil
}

func (a *Assembler) processContentDelta(content string) {
	s := a.state
	if s.CurrentBlock == nil || s.CurrentBlock.Kind == proxytypes.BlockKindToolCall {
		a.closeCurrentBlock()
		block := &proxytypes.StreamBlock{Kind: proxytypes.BlockKindContent}
		s.Blocks = append(s.Blocks, block)
		s.CurrentBlock = block
	}
	s.CurrentBlock.Content += content
}

func (a *Assembler) processToolCallDeltas(deltas []proxytypes.ToolCallDelta) {
	s := a.state
	s.MarkInToolCallPhase()
	for _, d := range deltas {
		if s.CurrentBlock != nil {
			switch {
			case s.CurrentBlock.Kind == proxytypes.BlockKindToolCall && s.CurrentBlock.Index != d.Index:
				a.closeCurrentBlock()
			case s.CurrentBlock.Kind == proxytypes.BlockKindContent:
				a.closeCurrentBlock()
			}
		}

		id := s.ResolveToolID(d.Index, d.ID)

		if s.CurrentBlock == nil || s.CurrentBlock.Index != d.Index || s.CurrentBlock.Kind != proxytypes.BlockKindToolCall {
			block := &proxytypes.StreamBlock{
				Kind:  proxytypes.BlockKindToolCall,
				ID:    id,
				Index: d.Index,
			}
			s.Blocks = append(s.Blocks, block)
			s.CurrentBlock = block
		}

		if d.Name != "" {
			s.CurrentBlock.Name = d.Name
		}
		if d.Arguments != "" {
			s.CurrentBlock.Arguments += d.Arguments
		}
	}
}

// closeCurrentBlock marks the open block complete and records it as just
// completed. It is a no-op if no block is open or it is already complete.
func (a *Assembler) closeCurrentBlock() {
	s := a.state
	if s.CurrentBlock == nil || s.CurrentBlock.Complete {
		s.CurrentBlock = nil
		return
	}
	s.CurrentBlock.Complete = true
	s.JustCompleted = s.CurrentBlock
	s.CurrentBlock = nil
}

// stripEmptyContent removes an upstream artifact: Anthropic-origin
// upstreams emit delta.content="" alongside tool-call fragments once the
// tool-call phase has begun, which confuses downstream policies.
func (a *Assembler) stripEmptyContent(chunk proxytypes.Chunk) proxytypes.Chunk {
	if !a.state.InToolCallPhase() {
		return chunk
	}
	if len(chunk.Choices) == 0 {
		return chunk
	}
	delta := chunk.Choices[0].Delta
	if delta.HasContent && delta.Content == "" {
		delta.HasContent = false
		chunk.Choices[0].Delta = delta
	}
	return chunk
}
