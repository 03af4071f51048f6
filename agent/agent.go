package agent

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/diff"

	"github.com/duneagent/dune/config"
	"github.com/duneagent/dune/llm"
	"github.com/duneagent/dune/tools"
)

// dangerousTools names the built-in tools that mutate the filesystem or run
// arbitrary commands. Calls to these pause for approval unless the agent was
// built without an Approver.
var dangerousTools = map[string]bool{
	"shell":      true,
	"write_file": true,
	"edit":       true,
}

// IsDangerous reports whether a tool call requires user approval.
func IsDangerous(name string) bool {
	return dangerousTools[name]
}

// Approver decides whether a dangerous tool call may run. The preview is a
// unified diff for edit calls and empty otherwise; it is best-effort and may
// be empty even for an edit.
type Approver interface {
	Approve(ctx context.Context, call llm.ToolCall, preview string) bool
}

// ApproverFunc adapts a function to the Approver interface.
type ApproverFunc func(ctx context.Context, call llm.ToolCall, preview string) bool

func (f ApproverFunc) Approve(ctx context.Context, call llm.ToolCall, preview string) bool {
	return f(ctx, call, preview)
}

// Options configures a new Agent. Zero values fall back to the defaults in
// the config package; a nil Approver auto-approves every tool call.
type Options struct {
	SystemPrompt   string
	Approver       Approver
	Descriptors    []tools.Descriptor
	MaxTurns       int
	StreamMaxTurns int
}

// Agent owns one conversation: its history, the backend it talks to, and the
// tools the model may call. An Agent is not safe for concurrent use.
type Agent struct {
	endpoint       llm.Endpoint
	registry       *tools.Registry
	descriptors    []tools.Descriptor
	systemPrompt   string
	approver       Approver
	maxTurns       int
	streamMaxTurns int

	history []llm.Turn
}

// New builds an agent over an endpoint and a tool registry.
func New(endpoint llm.Endpoint, registry *tools.Registry, opts Options) *Agent {
	a := &Agent{
		endpoint:       endpoint,
		registry:       registry,
		descriptors:    opts.Descriptors,
		systemPrompt:   opts.SystemPrompt,
		approver:       opts.Approver,
		maxTurns:       opts.MaxTurns,
		streamMaxTurns: opts.StreamMaxTurns,
	}
	if a.descriptors == nil {
		a.descriptors = registry.Descriptors()
	}
	if a.systemPrompt == "" {
		a.systemPrompt = DefaultSystemPrompt
	}
	if a.maxTurns <= 0 {
		a.maxTurns = config.DefaultMaxTurns
	}
	if a.streamMaxTurns <= 0 {
		a.streamMaxTurns = config.DefaultStreamMaxTurns
	}
	return a
}

// History returns the conversation history accumulated so far.
func (a *Agent) History() []llm.Turn {
	return a.history
}

// CanStream reports whether the agent's backend supports ExecuteStream.
func (a *Agent) CanStream() bool {
	_, ok := a.endpoint.(llm.StreamingEndpoint)
	return ok
}

// Execute appends the prompt to the conversation and runs the blocking
// reasoning loop: generate, execute requested tools, feed results back,
// repeat. It returns the model's final text answer. If the model is still
// requesting tools after the turn limit, it returns ErrTurnsExhausted; the
// history keeps everything accumulated so far either way.
func (a *Agent) Execute(ctx context.Context, prompt string) (string, error) {
	a.history = append(a.history, llm.UserTurn{Text: prompt})

	for turn := 0; turn < a.maxTurns; turn++ {
		reply, err := a.endpoint.Generate(ctx, a.history, a.descriptors, a.systemPrompt)
		if err != nil {
			return "", err
		}
		if reply == nil || (reply.Text == "" && len(reply.Calls) == 0) {
			return "", &llm.MalformedReplyError{Detail: "reply carried neither text nor a tool call"}
		}

		if len(reply.Calls) > 0 {
			a.history = append(a.history, llm.ModelToolCallTurn{Calls: reply.Calls})
			for _, call := range reply.Calls {
				result := a.dispatch(ctx, call)
				a.history = append(a.history, llm.ToolResultTurn{
					CallID:   call.ID,
					ToolName: call.Name,
					Result:   result,
				})
			}
			continue
		}

		a.history = append(a.history, llm.ModelTextTurn{Text: reply.Text})
		return reply.Text, nil
	}

	return "", ErrTurnsExhausted
}

// dispatch runs one tool call through the approval gate and the registry.
// A rejected call never reaches the tool; its result is an error message the
// model can react to on the next turn.
func (a *Agent) dispatch(ctx context.Context, call llm.ToolCall) tools.Result {
	if a.approver != nil && IsDangerous(call.Name) {
		preview := ""
		if call.Name == "edit" {
			p, err := a.editPreview(call.Args)
			if err != nil {
				fmt.Printf("Warning: could not build diff preview: %v\n", err)
			} else {
				preview = p
			}
		}
		if !a.approver.Approve(ctx, call, preview) {
			return tools.Errorf("tool call '%s' was rejected by the user", call.Name)
		}
	}
	return a.registry.Invoke(ctx, call.Name, call.Args)
}

// editPreview computes a unified diff between the current file content and
// the content an edit call would produce. It never touches the file.
func (a *Agent) editPreview(args map[string]interface{}) (string, error) {
	path, searchText, replaceText, err := tools.EditArgs(args)
	if err != nil {
		return "", err
	}
	original, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	proposed, _, err := tools.ProposeEdit(path, searchText, replaceText)
	if err != nil {
		return "", err
	}
	var buf strings.Builder
	if err := diff.Text("a/"+path, "b/"+path, string(original), proposed, &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
