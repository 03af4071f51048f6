// Package agent implements the core reasoning loop for the Dune system.
//
// An Agent drives a conversation between the user, a model backend, and the
// tool registry: it sends history to the backend, executes any tool calls the
// model requests (pausing for user approval on dangerous tools), feeds the
// results back, and repeats until the model produces a final text answer or
// the turn limit is reached.
//
// # Architecture
//
// The agent package is organized into two main components:
//
//   - Core agent (this package): the Agent type, the blocking and streaming
//     reasoning loops, and the approval gate
//   - Terminal subpackage (agent/terminal): the interactive CLI, which renders
//     agent events and answers approval prompts
//
// # Execution modes
//
// Execute runs a blocking loop against any llm.Endpoint: each model reply is
// received whole, tool calls are executed in order, and the final text is
// returned when the model stops requesting tools.
//
// ExecuteStream runs the same loop against an llm.StreamingEndpoint and
// returns a channel of events. Text fragments are forwarded as soon as they
// arrive; tool-call fragments are accumulated until the stream ends, parsed,
// and dispatched like their blocking counterparts.
//
// # Approval
//
// Tools that mutate state (shell, write_file, edit) are gated behind an
// Approver. A nil Approver auto-approves everything (yolo mode). For edit
// calls the agent computes a unified diff of the proposed change and hands it
// to the Approver alongside the call.
package agent
