// Package llm defines the agent's generic conversation model and the
// endpoint abstraction over concrete model backends. Each backend owns the
// translation between this representation and its wire format.
package llm

import (
	"context"

	"github.com/duneagent/dune/tools"
)

// Turn is one entry in conversation history. Exactly four variants exist:
// user text, model text, a model tool-call request, and a tool result.
type Turn interface {
	turn()
}

// UserTurn is a prompt supplied by the user.
type UserTurn struct {
	Text string
}

// ModelTextTurn is a final text reply from the model.
type ModelTextTurn struct {
	Text string
}

// ModelToolCallTurn is a model reply requesting one or more tool
// invocations, in order.
type ModelToolCallTurn struct {
	Calls []ToolCall
}

// ToolResultTurn carries the outcome of one tool invocation back to the
// model. Every ModelToolCallTurn is followed by one ToolResultTurn per call,
// in the same order, before any further model call.
type ToolResultTurn struct {
	CallID   string
	ToolName string
	Result   tools.Result
}

func (UserTurn) turn()          {}
func (ModelTextTurn) turn()     {}
func (ModelToolCallTurn) turn() {}
func (ToolResultTurn) turn()    {}

// ToolCall is a single tool invocation requested by the model. The ID is
// opaque and unique within its turn; backends that do not assign IDs get
// synthesized ones.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]interface{}
}

// Reply is the outcome of one blocking generate call: either final text or
// a set of tool calls. A reply carrying neither is malformed and terminates
// the agent loop.
type Reply struct {
	Text  string
	Calls []ToolCall
}

// Chunk is one incremental unit of a streaming reply. It may carry a text
// fragment, fragments of one or more in-progress tool calls, or both.
type Chunk struct {
	Text  string
	Tools []ToolCallDelta
}

// ToolCallDelta is a fragment of an in-progress tool call, identified by a
// stream-local index. The name typically arrives whole in the first fragment
// for an index; argument text arrives incrementally and must be concatenated
// in arrival order before being parsed as JSON.
type ToolCallDelta struct {
	Index int
	ID    string
	Name  string
	Args  string
}

// Stream is a finite, non-restartable sequence of chunks.
type Stream interface {
	Next() bool
	Current() Chunk
	Err() error
	Close() error
}

// MalformedReplyError reports a backend reply that carried neither final
// text nor a tool call. It is fatal to the current execute call.
type MalformedReplyError struct {
	Detail string
}

func (e *MalformedReplyError) Error() string {
	return "malformed model reply: " + e.Detail
}

// Endpoint adapts the generic conversation model to one backend.
type Endpoint interface {
	Generate(ctx context.Context, history []Turn, descriptors []tools.Descriptor, systemPrompt string) (*Reply, error)
}

// StreamingEndpoint is an Endpoint whose backend can additionally stream
// incremental text and partial tool calls.
type StreamingEndpoint interface {
	Endpoint
	GenerateStream(ctx context.Context, history []Turn, descriptors []tools.Descriptor, systemPrompt string) (Stream, error)
}
