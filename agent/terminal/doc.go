// Package terminal implements the interactive command-line mode for the
// Dune agent.
//
// The Terminal reads user prompts from stdin, renders agent output to
// stdout (streaming text as it arrives when the backend supports it), and
// answers the agent's approval prompts for dangerous tool calls, showing a
// unified diff preview for edits.
//
// # Usage
//
//	term := terminal.New()
//	a := agent.New(endpoint, registry, agent.Options{Approver: term})
//	err := term.Run(ctx, a, initialPrompt)
//
// A non-empty initial prompt runs a single blocking turn and exits;
// otherwise the terminal loops until the user types 'exit' (or '/quit',
// '/exit'), stdin closes, or the context is cancelled. Errors raised inside
// a turn are rendered in red and the session continues.
package terminal
