package terminal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/duneagent/dune/agent"
	"github.com/duneagent/dune/llm"
)

// Terminal handles the interactive CLI mode for the agent. It renders agent
// output to stdout and answers approval prompts from stdin, so it doubles as
// the agent's Approver.
type Terminal struct {
	in  *bufio.Reader
	out io.Writer

	promptColor *color.Color
	replyColor  *color.Color
	toolColor   *color.Color
	warnColor   *color.Color
	errColor    *color.Color
}

// New creates a Terminal reading from stdin and writing to stdout.
func New() *Terminal {
	return &Terminal{
		in:          bufio.NewReader(os.Stdin),
		out:         os.Stdout,
		promptColor: color.New(color.FgCyan, color.Bold),
		replyColor:  color.New(color.FgBlue),
		toolColor:   color.New(color.FgYellow),
		warnColor:   color.New(color.FgYellow, color.Bold),
		errColor:    color.New(color.FgRed, color.Bold),
	}
}

// Approve implements agent.Approver: it shows the pending call (and diff
// preview, when there is one) and asks for a y/n answer. Anything other than
// an explicit "y" is a rejection.
func (t *Terminal) Approve(ctx context.Context, call llm.ToolCall, preview string) bool {
	t.toolColor.Fprintf(t.out, "Dune wants to run '%s' with args: %v\n", call.Name, call.Args)
	if preview != "" {
		fmt.Fprintln(t.out, preview)
	}
	fmt.Fprint(t.out, "Do you want to allow this? (y/n): ")
	answer, err := t.in.ReadString('\n')
	if err != nil {
		return false
	}
	return strings.TrimSpace(strings.ToLower(answer)) == "y"
}

// Run starts the interactive session. With an initial prompt it runs that
// single turn and returns; otherwise it loops reading user input until the
// user types 'exit', stdin closes, or the context is cancelled.
func (t *Terminal) Run(ctx context.Context, a *agent.Agent, initialPrompt string) error {
	if initialPrompt != "" {
		text, err := a.Execute(ctx, initialPrompt)
		if err != nil {
			return err
		}
		t.replyColor.Fprintf(t.out, "Dune: %s\n", text)
		return nil
	}

	for {
		if ctx.Err() != nil {
			break
		}
		t.promptColor.Fprint(t.out, "You: ")
		line, err := t.in.ReadString('\n')
		if err != nil {
			// EOF or an interrupted read ends the session.
			fmt.Fprintln(t.out)
			break
		}
		userInput := strings.TrimSpace(line)
		if userInput == "" {
			continue
		}
		if userInput == "exit" || userInput == "/quit" || userInput == "/exit" {
			break
		}

		if err := t.processTurn(ctx, a, userInput); err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			t.errColor.Fprintf(t.out, "An error occurred: %v\n", err)
		}
	}

	t.warnColor.Fprintln(t.out, "Session ended.")
	return nil
}

// processTurn runs one user message through the agent, streaming if the
// backend supports it. Errors are returned for the caller to render; the
// session itself survives them.
func (t *Terminal) processTurn(ctx context.Context, a *agent.Agent, userInput string) error {
	if !a.CanStream() {
		text, err := a.Execute(ctx, userInput)
		if err != nil {
			return err
		}
		t.replyColor.Fprintf(t.out, "Dune: %s\n", text)
		return nil
	}

	t.promptColor.Fprint(t.out, "Dune: ")
	for ev := range a.ExecuteStream(ctx, userInput) {
		switch {
		case ev.Err != nil:
			fmt.Fprintln(t.out)
			return ev.Err
		case ev.Tool != nil:
			t.toolColor.Fprintf(t.out, "\n[tool] %s(%v)\n", ev.Tool.Name, ev.Tool.Args)
		default:
			t.replyColor.Fprint(t.out, ev.Text)
		}
	}
	fmt.Fprintln(t.out)
	return nil
}
