package proxytypes

import "strconv"

// BlockKind tags which StreamBlock variant a block is.
type BlockKind string

const (
	BlockKindContent  BlockKind = "content"
	BlockKindToolCall BlockKind = "tool_call"
)

// StreamBlock is a higher-level abstraction the assembler builds on top of
// chunks: a run of content deltas, or one accumulating tool call. Only the
// fields relevant to Kind are meaningful.
type StreamBlock struct {
	Kind BlockKind

	// ContentBlock fields.
	Content string

	// ToolCallBlock fields. Arguments is a growing JSON string that is not
	// guaranteed parseable until Complete.
	ID        string
	Index     int
	Name      string
	Arguments string

	Complete bool
}

// StreamState is the per-transaction mutable aggregation state the Chunk
// Assembler folds incoming chunks into.
type StreamState struct {
	// Blocks is the ordered sequence of blocks created so far.
	Blocks []*StreamBlock

	// CurrentBlock is the block actively being appended to, or nil.
	CurrentBlock *StreamBlock

	// JustCompleted is set for exactly one callback invocation when a
	// block transitions from open to complete, then cleared by the
	// caller after the downstream callback returns.
	JustCompleted *StreamBlock

	// FinishReason is set once the stream ends. HasFinishReason
	// distinguishes "not yet set" from the zero value being meaningful.
	FinishReason    FinishReason
	HasFinishReason bool

	// RawChunks is an append-only log of every chunk observed, for
	// reconstruction and recording.
	RawChunks []Chunk

	// toolIndexToID resolves a tool-call index to its synthesized or
	// observed id, across chunks.
	toolIndexToID map[int]string

	// inToolCallPhase is set once any tool-call delta has been observed;
	// it never resets for the lifetime of one StreamState.
	inToolCallPhase bool
}

// NewStreamState returns a fresh, empty StreamState.
func NewStreamState() *StreamState {
	return &StreamState{
		toolIndexToID: make(map[int]string),
	}
}

// InToolCallPhase reports whether any tool-call delta has been observed
// yet for this transaction.
func (s *StreamState) InToolCallPhase() bool {
	return s.inToolCallPhase
}

// ResolveToolID returns the id associated with a tool-call index, creating
// a deterministic "tool_<i>" synthetic id on first use if none has been
// observed from upstream.
func (s *StreamState) ResolveToolID(index int, observed string) string {
	if observed != "" {
		if _, ok := s.toolIndexToID[index]; !ok {
			s.toolIndexToID[index] = observed
		}
	}
	if id, ok := s.toolIndexToID[index]; ok {
		return id
	}
	id := syntheticToolID(index)
	s.toolIndexToID[index] = id
	return id
}

func syntheticToolID(index int) string {
	// "tool_<i>" per spec.md §4.2 step 3.
	return "tool_" + strconv.Itoa(index)
}

// MarkInToolCallPhase flips the sticky tool-call-phase flag. Once set it
// never resets for the lifetime of a StreamState.
func (s *StreamState) MarkInToolCallPhase() {
	s.inToolCallPhase = true
}
