package agent

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/duneagent/dune/errors"
	"github.com/duneagent/dune/llm"
	"github.com/duneagent/dune/tools"
)

// Event is one unit of streaming output. Exactly one field is set: a text
// fragment, a tool-call notification, or a terminal error. The channel
// closes after the final event.
type Event struct {
	Text string
	Tool *ToolNote
	Err  error
}

// ToolNote announces a tool call that is about to run, so a consumer can
// render it before the (possibly slow) execution.
type ToolNote struct {
	Name string
	Args map[string]interface{}
}

// ExecuteStream appends the prompt to the conversation and runs the
// streaming reasoning loop in a goroutine. Text fragments are forwarded on
// the returned channel as they arrive; tool calls are accumulated until the
// stream ends, then executed in order with a ToolNote emitted before each.
// The endpoint must implement llm.StreamingEndpoint.
func (a *Agent) ExecuteStream(ctx context.Context, prompt string) <-chan Event {
	ch := make(chan Event)
	go func() {
		defer close(ch)
		a.runStream(ctx, prompt, ch)
	}()
	return ch
}

func (a *Agent) runStream(ctx context.Context, prompt string, ch chan<- Event) {
	streamer, ok := a.endpoint.(llm.StreamingEndpoint)
	if !ok {
		send(ctx, ch, Event{Err: errors.New("the selected backend does not support streaming")})
		return
	}

	a.history = append(a.history, llm.UserTurn{Text: prompt})

	for turn := 0; turn < a.streamMaxTurns; turn++ {
		stream, err := streamer.GenerateStream(ctx, a.history, a.descriptors, a.systemPrompt)
		if err != nil {
			send(ctx, ch, Event{Err: err})
			return
		}

		var text strings.Builder
		acc := &accumulator{}
		for stream.Next() {
			chunk := stream.Current()
			if chunk.Text != "" {
				text.WriteString(chunk.Text)
				if !send(ctx, ch, Event{Text: chunk.Text}) {
					stream.Close()
					return
				}
			}
			acc.add(chunk.Tools)
		}
		if err := stream.Err(); err != nil {
			stream.Close()
			send(ctx, ch, Event{Err: err})
			return
		}
		stream.Close()

		assembled := acc.finalize()
		if len(assembled) == 0 {
			if text.Len() == 0 {
				send(ctx, ch, Event{Err: &llm.MalformedReplyError{Detail: "stream carried neither text nor a tool call"}})
				return
			}
			a.history = append(a.history, llm.ModelTextTurn{Text: text.String()})
			return
		}

		calls := make([]llm.ToolCall, len(assembled))
		for i, ac := range assembled {
			calls[i] = ac.call
		}
		a.history = append(a.history, llm.ModelToolCallTurn{Calls: calls})

		for i, ac := range assembled {
			if ctx.Err() != nil {
				a.cancelRemaining(assembled[i:])
				return
			}
			var result tools.Result
			if ac.decodeErr != nil {
				result = tools.Errorf("could not decode arguments for tool '%s': %v", ac.call.Name, ac.decodeErr)
			} else {
				if !send(ctx, ch, Event{Tool: &ToolNote{Name: ac.call.Name, Args: ac.call.Args}}) {
					a.cancelRemaining(assembled[i:])
					return
				}
				result = a.dispatch(ctx, ac.call)
			}
			a.history = append(a.history, llm.ToolResultTurn{
				CallID:   ac.call.ID,
				ToolName: ac.call.Name,
				Result:   result,
			})
		}
	}

	send(ctx, ch, Event{Err: ErrTurnsExhausted})
}

// cancelRemaining answers every call that was announced in a
// ModelToolCallTurn but never ran, so the history never holds a tool call
// without a matching result.
func (a *Agent) cancelRemaining(assembled []assembledCall) {
	for _, ac := range assembled {
		a.history = append(a.history, llm.ToolResultTurn{
			CallID:   ac.call.ID,
			ToolName: ac.call.Name,
			Result:   tools.Errorf("tool call '%s' was cancelled before it could run", ac.call.Name),
		})
	}
}

func send(ctx context.Context, ch chan<- Event, ev Event) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// partialCall collects the fragments of one in-progress tool call. The name
// and ID keep the first non-empty value seen; argument text is concatenated
// in arrival order.
type partialCall struct {
	id   string
	name string
	args strings.Builder
}

// accumulator merges tool-call fragments by stream index. Fragments for the
// same index always belong to the same call; indexes may be interleaved.
type accumulator struct {
	calls []*partialCall
}

func (acc *accumulator) add(deltas []llm.ToolCallDelta) {
	for _, d := range deltas {
		for len(acc.calls) <= d.Index {
			acc.calls = append(acc.calls, &partialCall{})
		}
		pc := acc.calls[d.Index]
		if pc.id == "" {
			pc.id = d.ID
		}
		if pc.name == "" {
			pc.name = d.Name
		}
		pc.args.WriteString(d.Args)
	}
}

// assembledCall is a finalized tool call. A decode failure is scoped to this
// call; other calls from the same stream are unaffected.
type assembledCall struct {
	call      llm.ToolCall
	rawArgs   string
	decodeErr error
}

// finalize parses each call's accumulated argument text as JSON, exactly
// once, after the stream has ended.
func (acc *accumulator) finalize() []assembledCall {
	out := make([]assembledCall, 0, len(acc.calls))
	for _, pc := range acc.calls {
		ac := assembledCall{
			call:    llm.ToolCall{ID: pc.id, Name: pc.name},
			rawArgs: pc.args.String(),
		}
		if ac.call.ID == "" {
			ac.call.ID = uuid.NewString()
		}
		if pc.name == "" {
			ac.decodeErr = errors.New("stream never supplied a tool name for this call")
			out = append(out, ac)
			continue
		}
		var args map[string]interface{}
		if err := json.Unmarshal([]byte(ac.rawArgs), &args); err != nil {
			ac.decodeErr = err
		} else {
			ac.call.Args = args
		}
		out = append(out, ac)
	}
	return out
}
